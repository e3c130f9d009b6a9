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

// Package service wires the registry's components together and runs them:
// the catalog store, the discovery and purge loops, the tab materializer,
// the recommendation engine, the background task queue and the HTTP API.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/config"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/discovery"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/recommend"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/tabs"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/tasks"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/web"
)

// shutdownTimeout bounds the graceful HTTP shutdown on exit.
const shutdownTimeout = 10 * time.Second

// Registry is the fully wired registry process.
type Registry struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	disc    *discovery.Server
	tabs    *tabs.Materializer
	engine  *recommend.Engine
	queue   *tasks.Queue
	handler *web.Handler
	clock   clockwork.Clock
	log     *slog.Logger
}

// New wires all components from the configuration, initializes the
// database schema and preloads the configured seeds, services, env
// variables and templates.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Registry, error) {
	if cfg == nil {
		return nil, trace.BadParameter("service requires a config")
	}
	if log == nil {
		log = slog.Default()
	}
	clock := clockwork.NewRealClock()

	store, err := catalog.Open(ctx, catalog.Config{
		DatabaseURI: cfg.DatabaseURI,
		Clock:       clock,
		Log:         log,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	r := &Registry{
		cfg:     cfg,
		catalog: store,
		clock:   clock,
		log:     log.With("component", "service"),
	}

	if err := r.preload(ctx); err != nil {
		store.Close()
		return nil, trace.Wrap(err)
	}

	r.queue = tasks.NewQueue(tasks.QueueConfig{Clock: clock, Log: log})
	r.tabs = tabs.NewMaterializer(store, log)

	r.disc, err = discovery.NewServer(discovery.ServerConfig{
		Catalog: store,
		Config:  cfg,
		OnPluginCreated: func(ctx context.Context, pluginID int64) {
			// Membership refresh runs on the task queue so a slow filter
			// never stalls the crawl.
			_, err := r.queue.SubmitUnique(
				"plugin-lists-"+strconv.FormatInt(pluginID, 10), "update-plugin-lists",
				func(ctx context.Context) error {
					return trace.Wrap(r.tabs.UpdatePluginLists(ctx, pluginID))
				})
			if err != nil {
				log.WarnContext(ctx, "failed to schedule tab refresh",
					"plugin", pluginID, "error", err)
			}
		},
		Clock: clock,
		Log:   log,
	})
	if err != nil {
		store.Close()
		return nil, trace.Wrap(err)
	}

	enricher := recommend.NewEnricher(store, nil, cfg.URLMapToLocalhost, log)
	r.engine, err = recommend.NewEngine(recommend.EngineConfig{
		Catalog:  store,
		Voters:   recommend.BuiltinVoters(store),
		Weights:  cfg.RecommenderWeights,
		Enricher: enricher,
		Clock:    clock,
		Log:      log,
	})
	if err != nil {
		store.Close()
		return nil, trace.Wrap(err)
	}

	r.handler, err = web.NewHandler(web.HandlerConfig{
		Catalog:     store,
		Config:      cfg,
		Discovery:   r.disc,
		Tabs:        r.tabs,
		Recommender: r.engine,
		Tasks:       r.queue,
		Log:         log,
	})
	if err != nil {
		store.Close()
		return nil, trace.Wrap(err)
	}
	return r, nil
}

// Handler exposes the API handler, used by tests.
func (r *Registry) Handler() http.Handler { return r.handler }

// Catalog exposes the catalog store, used by tests and the CLI.
func (r *Registry) Catalog() *catalog.Catalog { return r.catalog }

// Run serves the API and runs the background loops until the context is
// canceled, then shuts everything down.
func (r *Registry) Run(ctx context.Context) error {
	defer r.catalog.Close()

	if r.cfg.BrokerURL != "" || r.cfg.ResultBackend != "" {
		r.log.InfoContext(ctx, "external task broker settings are ignored, tasks run in-process",
			"broker_url", r.cfg.BrokerURL, "result_backend", r.cfg.ResultBackend)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error { return r.queue.Run(groupCtx) })
	group.Go(func() error { return r.disc.Run(groupCtx) })
	group.Go(func() error { return r.disc.RunPurge(groupCtx) })
	group.Go(func() error {
		return r.serve(groupCtx, r.cfg.ListenAddr, r.handler, "api")
	})
	if r.cfg.DiagAddr != "" {
		group.Go(func() error {
			return r.serve(groupCtx, r.cfg.DiagAddr, web.NewDiagHandler(r.catalog), "diag")
		})
	}

	r.log.InfoContext(ctx, "registry started",
		"listen_addr", r.cfg.ListenAddr,
		"url_prefix", r.cfg.URLPrefix,
		"database", r.cfg.DatabaseURI)
	return trace.Wrap(group.Wait())
}

// serve runs one HTTP listener until the context is canceled, then shuts
// it down gracefully.
func (r *Registry) serve(ctx context.Context, addr string, handler http.Handler, name string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	errC := make(chan error, 1)
	go func() {
		errC <- server.ListenAndServe()
	}()
	select {
	case err := <-errC:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return trace.Wrap(err, "%s listener failed", name)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			r.log.WarnContext(ctx, "listener shutdown was not clean",
				"listener", name, "error", err)
		}
		return nil
	}
}
