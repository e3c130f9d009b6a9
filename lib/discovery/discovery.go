/*
Copyright 2024 University of Stuttgart

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package discovery implements the periodic seed crawl that keeps the
// plugin catalog in sync with the deployed plugin landscape, and the purge
// task that ages out plugins discovery no longer sees.
package discovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/config"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/defaults"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/utils"
)

var (
	seedsCrawled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registry_discovery_seeds_crawled_total",
		Help: "Number of seed URLs fetched by the discovery crawler.",
	})
	pluginsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registry_discovery_plugins_ingested_total",
		Help: "Number of plugin self-descriptions ingested into the catalog.",
	})
	pluginsPurged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registry_discovery_plugins_purged_total",
		Help: "Number of stale plugins removed by the purge task.",
	})
	crawlErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registry_discovery_errors_total",
		Help: "Number of failed discovery fetches.",
	})
)

func init() {
	// Registration failures only happen on duplicate metric names and
	// would be caught by any test touching this package.
	_ = utils.RegisterCollectors(seedsCrawled, pluginsIngested, pluginsPurged, crawlErrors)
}

// ServerConfig holds the dependencies of the discovery server.
type ServerConfig struct {
	Catalog *catalog.Catalog
	Config  *config.Config
	// OnPluginCreated is called after a previously unknown plugin was
	// ingested, with the new plugin id. Used to refresh template tab
	// memberships. Optional.
	OnPluginCreated func(ctx context.Context, pluginID int64)
	// Client overrides the outbound HTTP client, used in tests.
	Client *resty.Client
	Clock  clockwork.Clock
	Log    *slog.Logger
}

// Server runs the discovery and purge loops.
type Server struct {
	catalog         *catalog.Catalog
	cfg             *config.Config
	onPluginCreated func(ctx context.Context, pluginID int64)
	client          *resty.Client
	clock           clockwork.Clock
	log             *slog.Logger
	jitter          utils.Jitter
}

// NewServer validates the configuration and creates a discovery server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Catalog == nil {
		return nil, trace.BadParameter("discovery server requires a catalog")
	}
	if cfg.Config == nil {
		return nil, trace.BadParameter("discovery server requires a config")
	}
	for _, interval := range []struct {
		name  string
		value time.Duration
	}{
		{"PLUGIN_DISCOVERY_INTERVAL", cfg.Config.DiscoveryInterval},
		{"PLUGIN_PURGE_INTERVAL", cfg.Config.PurgeInterval},
	} {
		if interval.value != 0 && interval.value < defaults.MinTaskInterval {
			return nil, trace.BadParameter("%s below the %v minimum: %v",
				interval.name, defaults.MinTaskInterval, interval.value)
		}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Client == nil {
		cfg.Client = resty.New()
	}
	cfg.Client.SetTimeout(defaults.DiscoveryRequestTimeout)

	return &Server{
		catalog:         cfg.Catalog,
		cfg:             cfg.Config,
		onPluginCreated: cfg.OnPluginCreated,
		client:          cfg.Client,
		clock:           cfg.Clock,
		log:             cfg.Log.With("component", "discovery"),
		jitter:          utils.NewJitter(),
	}, nil
}

// Run executes the discovery loop until the context is canceled. A zero
// discovery interval disables the loop.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.DiscoveryInterval == 0 {
		s.log.InfoContext(ctx, "plugin discovery is disabled")
		<-ctx.Done()
		return nil
	}
	interval := utils.NewInterval(utils.IntervalConfig{
		Duration: s.cfg.DiscoveryInterval,
		// The first crawl runs shortly after startup so a fresh registry
		// does not stay empty for a full interval.
		FirstDuration: s.jitter(10 * time.Second),
		Jitter:        s.jitter,
		Clock:         s.clock,
	})
	defer interval.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-interval.C:
			if err := s.CrawlAllSeeds(ctx); err != nil {
				s.log.WarnContext(ctx, "seed crawl failed", "error", err)
			}
		}
	}
}

// RunPurge executes the purge loop until the context is canceled. A zero
// purge interval or a "never" policy disables the loop.
func (s *Server) RunPurge(ctx context.Context) error {
	threshold, ok := s.cfg.PurgeAfter.Threshold(s.cfg.DiscoveryInterval)
	if s.cfg.PurgeInterval == 0 || !ok {
		s.log.InfoContext(ctx, "plugin purging is disabled",
			"purge_after", s.cfg.PurgeAfter.String())
		<-ctx.Done()
		return nil
	}
	interval := utils.NewInterval(utils.IntervalConfig{
		Duration: s.cfg.PurgeInterval,
		Jitter:   s.jitter,
		Clock:    s.clock,
	})
	defer interval.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-interval.C:
			if err := s.PurgeOnce(ctx, threshold); err != nil {
				s.log.WarnContext(ctx, "plugin purge failed", "error", err)
			}
		}
	}
}

// CrawlAllSeeds fetches every stored seed, fanning out in batches of the
// configured size. A failing seed never prevents crawling the others.
func (s *Server) CrawlAllSeeds(ctx context.Context) error {
	seeds, err := s.catalog.ListSeeds(ctx)
	if err != nil {
		return trace.Wrap(err)
	}
	s.log.DebugContext(ctx, "starting seed crawl", "seeds", len(seeds))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.DiscoveryBatchSize)
	for _, seed := range seeds {
		group.Go(func() error {
			s.CrawlSeed(groupCtx, CrawlRequest{
				URL:    seed.URL,
				SeedID: seed.ID,
			})
			return nil
		})
	}
	return trace.Wrap(group.Wait())
}

// PurgeOnce removes plugins whose freshness timestamp lies more than
// threshold behind the newest one in the catalog.
func (s *Server) PurgeOnce(ctx context.Context, threshold time.Duration) error {
	purged, err := s.catalog.PurgeStale(ctx, threshold)
	if err != nil {
		return trace.Wrap(err)
	}
	if purged > 0 {
		pluginsPurged.Add(float64(purged))
		s.log.InfoContext(ctx, "purged stale plugins",
			"count", purged, "threshold", threshold)
	}
	return nil
}
