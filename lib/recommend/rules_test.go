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
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
)

func newRuleVoter(t *testing.T, rules []Rule) (*RuleBasedVoter, *catalog.Catalog) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := catalog.Open(context.Background(), catalog.Config{
		DatabaseURI: "sqlite://" + filepath.Join(t.TempDir(), "registry.db"),
		Log:         log,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return &RuleBasedVoter{catalog: store, rules: rules}, store
}

func taggedPlugin(t *testing.T, c *catalog.Catalog, identifier, version string, tags ...string) *catalog.Plugin {
	t.Helper()
	plugin, _, err := c.CreateOrUpdatePlugin(context.Background(), catalog.IngestSpec{
		Identifier: identifier,
		Version:    version,
		Name:       identifier,
		Type:       "processing",
		URL:        "http://plugins.example/" + identifier + "/" + version,
		Tags:       tags,
	})
	require.NoError(t, err)
	return plugin
}

func voteWeights(votes []Vote) map[int64]float64 {
	weights := map[int64]float64{}
	for _, vote := range votes {
		weights[vote.PluginID] = vote.Weight
	}
	return weights
}

func TestRuleBasedVoterTagPattern(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	voter, store := newRuleVoter(t, []Rule{{
		Pattern: RulePattern{Tags: []string{"data-loading"}},
		Recommends: []RuleRecommendation{
			{Tags: []string{"preprocessing"}, Weight: 2},
			{Tags: []string{"visualization"}, Weight: 1},
		},
	}})

	loader := taggedPlugin(t, store, "loader", "1.0.0", "data-loading")
	prep := taggedPlugin(t, store, "prep", "1.0.0", "preprocessing")
	vis := taggedPlugin(t, store, "vis", "1.0.0", "visualization")
	taggedPlugin(t, store, "unrelated", "1.0.0", "ml")

	votes, err := voter.Votes(ctx, &Context{
		StepSuccess:     true,
		CurrentPluginID: loader.ID,
	})
	require.NoError(t, err)

	weights := voteWeights(votes)
	assert.Equal(t, map[int64]float64{prep.ID: 2, vis.ID: 1}, weights)
}

func TestRuleBasedVoterIdentifierPattern(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	voter, store := newRuleVoter(t, []Rule{{
		Pattern: RulePattern{PluginID: "distance-calculation"},
		Recommends: []RuleRecommendation{
			{PluginID: "kmeans@2.0.0", Weight: 3},
			{Tags: []string{"clustering"}, Weight: 2},
		},
	}})

	distance := taggedPlugin(t, store, "distance-calculation", "1.0.0")
	kmeansOld := taggedPlugin(t, store, "kmeans", "1.0.0", "clustering")
	kmeansNew := taggedPlugin(t, store, "kmeans", "2.0.0", "clustering")

	votes, err := voter.Votes(ctx, &Context{
		StepSuccess:     true,
		CurrentPluginID: distance.ID,
	})
	require.NoError(t, err)

	weights := voteWeights(votes)
	// The pinned version gets the identifier weight, the other version only
	// the tag weight.
	assert.Equal(t, map[int64]float64{kmeansNew.ID: 3, kmeansOld.ID: 2}, weights)
}

func TestRuleBasedVoterAccumulatesAcrossRules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	voter, store := newRuleVoter(t, []Rule{
		{
			Pattern: RulePattern{Tags: []string{"loader"}},
			Recommends: []RuleRecommendation{
				{PluginID: "next", Weight: 2},
				{Tags: []string{"viz"}, Weight: 1},
			},
		},
		{
			Pattern: RulePattern{PluginID: "start"},
			Recommends: []RuleRecommendation{
				{PluginID: "next", Weight: 3},
				{Tags: []string{"stats"}, Weight: 2},
			},
		},
	})

	start := taggedPlugin(t, store, "start", "1.0.0", "loader")
	next := taggedPlugin(t, store, "next", "1.0.0", "viz")
	both := taggedPlugin(t, store, "both", "1.0.0", "viz", "stats")

	votes, err := voter.Votes(ctx, &Context{StepSuccess: true, CurrentPluginID: start.ID})
	require.NoError(t, err)

	// Both rules match the current plugin. Identifier votes for "next"
	// accumulate to 5, which beats its tag channel vote of 1; the viz and
	// stats tag sets sum up per plugin.
	assert.Equal(t, map[int64]float64{next.ID: 5, both.ID: 3}, voteWeights(votes))
}

func TestRuleBasedVoterBuiltinTable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	voter, store := newRuleVoter(t, builtinRules)
	costume := taggedPlugin(t, store, "costume-loader", "1.0.0")
	wuPalmer := taggedPlugin(t, store, "wu-palmer", "1.0.0")
	symMaxMean := taggedPlugin(t, store, "sym-max-mean", "1.0.0")
	cleaner := taggedPlugin(t, store, "attribute-cleaner", "1.0.0", "data-cleaning")

	votes, err := voter.Votes(ctx, &Context{StepSuccess: true, CurrentPluginID: costume.ID})
	require.NoError(t, err)
	assert.Equal(t, map[int64]float64{wuPalmer.ID: 5, cleaner.ID: 1}, voteWeights(votes))

	// A data-cleaning step also points at wu-palmer.
	votes, err = voter.Votes(ctx, &Context{StepSuccess: true, CurrentPluginID: cleaner.ID})
	require.NoError(t, err)
	assert.Equal(t, map[int64]float64{wuPalmer.ID: 5}, voteWeights(votes))

	// The distance pipeline chains onward.
	votes, err = voter.Votes(ctx, &Context{StepSuccess: true, CurrentPluginID: wuPalmer.ID})
	require.NoError(t, err)
	assert.Equal(t, map[int64]float64{symMaxMean.ID: 5}, voteWeights(votes))
}

func TestRuleBasedVoterRequiresSuccessfulStep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	voter, store := newRuleVoter(t, builtinRules)
	loader := taggedPlugin(t, store, "loader", "1.0.0", "data-loading")
	taggedPlugin(t, store, "prep", "1.0.0", "preprocessing")

	votes, err := voter.Votes(ctx, &Context{CurrentPluginID: loader.ID})
	require.NoError(t, err)
	assert.Empty(t, votes, "no votes without a successful step")

	votes, err = voter.Votes(ctx, &Context{StepSuccess: true})
	require.NoError(t, err)
	assert.Empty(t, votes, "no votes without a current plugin")

	// A vanished plugin is not an error.
	votes, err = voter.Votes(ctx, &Context{StepSuccess: true, CurrentPluginID: 424242})
	require.NoError(t, err)
	assert.Empty(t, votes)
}

func TestRuleBasedVoterPatternRequiresAllTags(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	voter, store := newRuleVoter(t, []Rule{{
		Pattern: RulePattern{Tags: []string{"ml", "quantum"}},
		Recommends: []RuleRecommendation{
			{Tags: []string{"visualization"}, Weight: 1},
		},
	}})

	partial := taggedPlugin(t, store, "partial", "1.0.0", "ml")
	complete := taggedPlugin(t, store, "complete", "1.0.0", "ml", "quantum")
	vis := taggedPlugin(t, store, "vis", "1.0.0", "visualization")

	votes, err := voter.Votes(ctx, &Context{StepSuccess: true, CurrentPluginID: partial.ID})
	require.NoError(t, err)
	assert.Empty(t, votes)

	votes, err = voter.Votes(ctx, &Context{StepSuccess: true, CurrentPluginID: complete.ID})
	require.NoError(t, err)
	assert.Equal(t, map[int64]float64{vis.ID: 1}, voteWeights(votes))
}
