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

package recommend

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/defaults"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/utils"
)

var (
	recommendationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "registry_recommendation_duration_seconds",
		Help:    "Wall time of recommendation requests.",
		Buckets: prometheus.DefBuckets,
	})
	voterTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registry_recommendation_voter_timeouts_total",
		Help: "Number of voters that missed the ensemble deadline.",
	})
)

func init() {
	_ = utils.RegisterCollectors(recommendationDuration, voterTimeouts)
}

// EngineConfig holds the dependencies of the recommendation engine.
type EngineConfig struct {
	Catalog *catalog.Catalog
	// Voters is the ensemble, fixed at startup.
	Voters []Voter
	// Weights multiplies each voter's votes by name; missing names
	// default to 1.
	Weights map[string]float64
	// Enricher fetches experiment context before voting. Optional.
	Enricher *Enricher
	Clock    clockwork.Clock
	Log      *slog.Logger
}

// Engine runs the voter ensemble.
type Engine struct {
	catalog  *catalog.Catalog
	voters   []Voter
	weights  map[string]float64
	enricher *Enricher
	clock    clockwork.Clock
	log      *slog.Logger
}

// NewEngine creates a recommendation engine. The voter and weight tables
// are treated as immutable after this call.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Catalog == nil {
		return nil, trace.BadParameter("recommendation engine requires a catalog")
	}
	if len(cfg.Voters) == 0 {
		return nil, trace.BadParameter("recommendation engine requires at least one voter")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Engine{
		catalog:  cfg.Catalog,
		voters:   cfg.Voters,
		weights:  cfg.Weights,
		enricher: cfg.Enricher,
		clock:    cfg.Clock,
		log:      cfg.Log.With("component", "recommend"),
	}, nil
}

// Recommendation is one scored result.
type Recommendation struct {
	Plugin *catalog.Plugin
	Score  float64
}

// Request bounds a recommendation run.
type Request struct {
	// Timeout is the global deadline of the ensemble.
	Timeout time.Duration
	// Limit caps the number of results.
	Limit int
}

// Recommend gathers context, runs every voter in parallel under the
// timeout, merges the weighted votes and returns the admissible plugins
// with the highest scores. Voters that fail or miss the deadline are
// dropped; their absence never fails the request.
func (e *Engine) Recommend(ctx context.Context, rc *Context, req Request) ([]Recommendation, error) {
	started := e.clock.Now()
	defer func() {
		recommendationDuration.Observe(e.clock.Since(started).Seconds())
	}()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaults.RecommendationTimeout
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaults.RecommendationLimit
	}

	voteCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if e.enricher != nil {
		e.enricher.Enrich(voteCtx, rc)
	}

	scores := e.collectVotes(voteCtx, rc, timeout)

	admissible, err := e.admissiblePlugins(ctx, rc)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	ranked := make([]Recommendation, 0, len(scores))
	for pluginID, score := range scores {
		if !admissible[pluginID] {
			continue
		}
		ranked = append(ranked, Recommendation{
			Plugin: &catalog.Plugin{ID: pluginID},
			Score:  score,
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Plugin.ID < ranked[j].Plugin.ID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	// Load the full plugin rows only for the surviving results.
	for i := range ranked {
		plugin, err := e.catalog.GetPlugin(ctx, ranked[i].Plugin.ID)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		ranked[i].Plugin = plugin
	}
	return ranked, nil
}

type voterResult struct {
	name  string
	votes []Vote
	err   error
}

// collectVotes fans the ensemble out into goroutines and folds the votes
// that arrive before the deadline into weighted per-plugin scores.
func (e *Engine) collectVotes(ctx context.Context, rc *Context, timeout time.Duration) map[int64]float64 {
	results := make(chan voterResult, len(e.voters))
	for _, voter := range e.voters {
		go func(voter Voter) {
			votes, err := voter.Votes(ctx, rc)
			// The channel is buffered for every voter, so late voters
			// never leak a goroutine.
			results <- voterResult{name: voter.Name(), votes: votes, err: err}
		}(voter)
	}

	deadline := e.clock.After(timeout)
	scores := map[int64]float64{}
	pending := len(e.voters)
	for pending > 0 {
		select {
		case result := <-results:
			pending--
			if result.err != nil {
				e.log.WarnContext(ctx, "voter failed", "voter", result.name, "error", result.err)
				continue
			}
			weight, ok := e.weights[result.name]
			if !ok {
				weight = 1
			}
			for _, vote := range result.votes {
				scores[vote.PluginID] += vote.Weight * weight
			}
		case <-deadline:
			voterTimeouts.Add(float64(pending))
			e.log.WarnContext(ctx, "voters missed the recommendation deadline",
				"pending", pending, "timeout", timeout)
			return scores
		case <-ctx.Done():
			return scores
		}
	}
	return scores
}

// admissiblePlugins computes the set of plugins allowed in results: only
// processing and conversion plugins whose required inputs the available
// data can satisfy.
func (e *Engine) admissiblePlugins(ctx context.Context, rc *Context) (map[int64]bool, error) {
	requirements, err := e.catalog.ListPluginRequirements(ctx)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	items := rc.AvailableDataItems()
	admissible := make(map[int64]bool, len(requirements))
	for _, req := range requirements {
		if req.Type != "processing" && req.Type != "conversion" {
			continue
		}
		if len(rc.AvailableData) > 0 && !satisfiable(req.RequiredInputs, items) {
			continue
		}
		admissible[req.PluginID] = true
	}
	return admissible, nil
}
