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
	"time"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
)

func newTestEngine(t *testing.T, voters []Voter, weights map[string]float64) (*Engine, *catalog.Catalog) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := catalog.Open(context.Background(), catalog.Config{
		DatabaseURI: "sqlite://" + filepath.Join(t.TempDir(), "registry.db"),
		Log:         log,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine, err := NewEngine(EngineConfig{
		Catalog: store,
		Voters:  voters,
		Weights: weights,
		Log:     log,
	})
	require.NoError(t, err)
	return engine, store
}

// stubVoter returns a fixed vote set, optionally blocking until the
// context is canceled.
type stubVoter struct {
	name  string
	votes []Vote
	err   error
	block bool
}

func (v *stubVoter) Name() string { return v.name }

func (v *stubVoter) Votes(ctx context.Context, rc *Context) ([]Vote, error) {
	if v.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return v.votes, v.err
}

func storeProcessingPlugin(t *testing.T, c *catalog.Catalog, identifier, pluginType string, inputs ...catalog.IOData) *catalog.Plugin {
	t.Helper()
	plugin, _, err := c.CreateOrUpdatePlugin(context.Background(), catalog.IngestSpec{
		Identifier: identifier,
		Version:    "1.0.0",
		Name:       identifier,
		Type:       pluginType,
		URL:        "http://plugins.example/" + identifier + "/",
		IOData:     inputs,
	})
	require.NoError(t, err)
	return plugin
}

func TestNewEngineValidation(t *testing.T) {
	t.Parallel()

	_, err := NewEngine(EngineConfig{Voters: []Voter{&stubVoter{name: "x"}}})
	require.True(t, trace.IsBadParameter(err))

	_, err = NewEngine(EngineConfig{Catalog: &catalog.Catalog{}})
	require.True(t, trace.IsBadParameter(err))
}

func TestRecommendMergesWeightedVotes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	voters := []Voter{
		&stubVoter{name: "weighted"},
		&stubVoter{name: "plain"},
	}
	engine, store := newTestEngine(t, voters, map[string]float64{"weighted": 3})

	a := storeProcessingPlugin(t, store, "a", "processing")
	b := storeProcessingPlugin(t, store, "b", "processing")

	voters[0].(*stubVoter).votes = []Vote{{PluginID: a.ID, Weight: 0.5}}
	voters[1].(*stubVoter).votes = []Vote{
		{PluginID: a.ID, Weight: 0.5},
		{PluginID: b.ID, Weight: 1},
	}

	ranked, err := engine.Recommend(ctx, &Context{}, Request{})
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	// a: 0.5*3 + 0.5*1 = 2, b: 1*1 = 1.
	assert.Equal(t, a.ID, ranked[0].Plugin.ID)
	assert.InDelta(t, 2.0, ranked[0].Score, 1e-9)
	assert.Equal(t, b.ID, ranked[1].Plugin.ID)
	assert.InDelta(t, 1.0, ranked[1].Score, 1e-9)
	// Results carry the full plugin row.
	assert.Equal(t, "a", ranked[0].Plugin.Identifier)
}

func TestRecommendFiltersInadmissiblePlugins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	voter := &stubVoter{name: "v"}
	engine, store := newTestEngine(t, []Voter{voter}, nil)

	processing := storeProcessingPlugin(t, store, "proc", "processing")
	visualization := storeProcessingPlugin(t, store, "vis", "visualization")
	demanding := storeProcessingPlugin(t, store, "demanding", "processing", catalog.IOData{
		Relation: catalog.RelationConsumed,
		Required: true,
		DataType: catalog.SplitDataValue("graph/undirected"),
	})

	voter.votes = []Vote{
		{PluginID: processing.ID, Weight: 1},
		{PluginID: visualization.ID, Weight: 1},
		{PluginID: demanding.ID, Weight: 1},
	}

	rc := &Context{AvailableData: map[string][]string{"entity/list": {"application/json"}}}
	ranked, err := engine.Recommend(ctx, rc, Request{})
	require.NoError(t, err)
	require.Len(t, ranked, 1, "only the satisfiable processing plugin survives")
	assert.Equal(t, processing.ID, ranked[0].Plugin.ID)

	// Without available-data context the input check is skipped.
	ranked, err = engine.Recommend(ctx, &Context{}, Request{})
	require.NoError(t, err)
	require.Len(t, ranked, 2)
}

func TestRecommendLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	voter := &stubVoter{name: "v"}
	engine, store := newTestEngine(t, []Voter{voter}, nil)

	for i, identifier := range []string{"a", "b", "c", "d"} {
		p := storeProcessingPlugin(t, store, identifier, "processing")
		voter.votes = append(voter.votes, Vote{PluginID: p.ID, Weight: float64(i + 1)})
	}

	ranked, err := engine.Recommend(ctx, &Context{}, Request{Limit: 2})
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "d", ranked[0].Plugin.Identifier)
	assert.Equal(t, "c", ranked[1].Plugin.Identifier)
}

func TestRecommendToleratesSlowAndFailingVoters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fast := &stubVoter{name: "fast"}
	engine, store := newTestEngine(t, []Voter{
		fast,
		&stubVoter{name: "slow", block: true},
		&stubVoter{name: "broken", err: trace.ConnectionProblem(nil, "backend down")},
	}, nil)

	plugin := storeProcessingPlugin(t, store, "a", "processing")
	fast.votes = []Vote{{PluginID: plugin.ID, Weight: 1}}

	started := time.Now()
	ranked, err := engine.Recommend(ctx, &Context{}, Request{Timeout: 100 * time.Millisecond})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, plugin.ID, ranked[0].Plugin.ID)
	assert.Less(t, time.Since(started), 5*time.Second)
}

func TestDataQualityAcceptable(t *testing.T) {
	t.Parallel()

	assert.True(t, QualityGood.Acceptable())
	assert.True(t, QualityNeutral.Acceptable())
	assert.True(t, QualityUnknown.Acceptable())
	assert.True(t, DataQuality("").Acceptable())
	assert.False(t, QualityBad.Acceptable())
	assert.False(t, DataQuality("GREAT").Acceptable())
}

func TestDataItemMatches(t *testing.T) {
	t.Parallel()

	io := catalog.IOData{
		DataType: catalog.SplitDataValue("entity/list"),
		ContentTypes: []catalog.DataValue{
			catalog.SplitDataValue("application/json"),
		},
	}

	tests := []struct {
		name string
		item DataItem
		want bool
	}{
		{name: "exact", item: DataItem{DataType: "entity/list", ContentType: "application/json"}, want: true},
		{name: "data type wildcard", item: DataItem{DataType: "entity/*", ContentType: "application/json"}, want: true},
		{name: "content wildcard", item: DataItem{DataType: "entity/list", ContentType: "*"}, want: true},
		{name: "wrong data type", item: DataItem{DataType: "graph/undirected", ContentType: "application/json"}, want: false},
		{name: "wrong content type", item: DataItem{DataType: "entity/list", ContentType: "text/csv"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.item.Matches(io))
		})
	}

	t.Run("no declared content types accept anything", func(t *testing.T) {
		t.Parallel()
		open := catalog.IOData{DataType: catalog.SplitDataValue("entity/list")}
		assert.True(t, DataItem{DataType: "entity/list", ContentType: "text/csv"}.Matches(open))
	})
}

func TestVotesForDataItems(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := catalog.Open(ctx, catalog.Config{
		DatabaseURI: "sqlite://" + filepath.Join(t.TempDir(), "registry.db"),
		Log:         log,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	full := storeProcessingPlugin(t, store, "full-match", "processing", catalog.IOData{
		Relation: catalog.RelationConsumed,
		Required: true,
		DataType: catalog.SplitDataValue("entity/list"),
	})
	half := storeProcessingPlugin(t, store, "half-match", "processing",
		catalog.IOData{
			Relation: catalog.RelationConsumed,
			Required: true,
			DataType: catalog.SplitDataValue("entity/list"),
		},
		catalog.IOData{
			Relation: catalog.RelationConsumed,
			Required: true,
			DataType: catalog.SplitDataValue("graph/undirected"),
		})
	storeProcessingPlugin(t, store, "no-match", "processing", catalog.IOData{
		Relation: catalog.RelationConsumed,
		Required: true,
		DataType: catalog.SplitDataValue("qubit/register"),
	})

	votes, err := votesForDataItems(ctx, store, []DataItem{
		{DataType: "entity/list", ContentType: "application/json"},
	})
	require.NoError(t, err)

	byPlugin := map[int64]float64{}
	for _, vote := range votes {
		byPlugin[vote.PluginID] = vote.Weight
	}
	assert.InDelta(t, 1.0, byPlugin[full.ID], 1e-9)
	assert.InDelta(t, 0.5, byPlugin[half.ID], 1e-9)
	assert.Len(t, byPlugin, 2)
}
