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

package pluginfilter

import (
	"context"
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		filter  string
		kind    Kind
		wantErr bool
	}{
		{name: "empty string", filter: "", kind: KindAll},
		{name: "empty object", filter: "{}", kind: KindAll},
		{name: "tag leaf", filter: `{"tag": "ml"}`, kind: KindTag},
		{name: "id leaf", filter: `{"id": "hello-world@v1"}`, kind: KindID},
		{name: "name leaf", filter: `{"name": "Hello World"}`, kind: KindName},
		{name: "type leaf", filter: `{"type": "processing"}`, kind: KindType},
		{name: "version leaf", filter: `{"version": ">=1.0"}`, kind: KindVersion},
		{name: "and", filter: `{"and": [{"tag": "a"}, {"tag": "b"}]}`, kind: KindAnd},
		{name: "or", filter: `{"or": []}`, kind: KindOr},
		{name: "not", filter: `{"not": {"tag": "a"}}`, kind: KindNot},
		{name: "nested", filter: `{"and": [{"not": {"tag": "a"}}, {"or": [{}, {"type": "t"}]}]}`, kind: KindAnd},
		{name: "not json", filter: `tag=ml`, wantErr: true},
		{name: "list at top level", filter: `[{"tag": "a"}]`, wantErr: true},
		{name: "two keys", filter: `{"tag": "a", "type": "b"}`, wantErr: true},
		{name: "unknown key", filter: `{"label": "a"}`, wantErr: true},
		{name: "and with scalar", filter: `{"and": "nope"}`, wantErr: true},
		{name: "tag with number", filter: `{"tag": 7}`, wantErr: true},
		{name: "bad version spec", filter: `{"version": ">>nope"}`, wantErr: true},
		{name: "bad nested child", filter: `{"and": [{"bogus": "x"}]}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			expr, err := Parse(tt.filter)
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, trace.IsBadParameter(err), "want BadParameter, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, expr.Kind)
		})
	}
}

func TestMatches(t *testing.T) {
	t.Parallel()

	plugin := Plugin{
		ID:         1,
		Identifier: "hello-world",
		Version:    "1.2.0",
		Name:       "Hello World",
		Type:       "processing",
		Tags:       []string{"demo", "ml"},
	}

	tests := []struct {
		name   string
		filter string
		want   bool
	}{
		{name: "match all", filter: `{}`, want: true},
		{name: "full id", filter: `{"id": "hello-world@1.2.0"}`, want: true},
		{name: "bare identifier", filter: `{"id": "hello-world"}`, want: true},
		{name: "wrong version in id", filter: `{"id": "hello-world@2.0.0"}`, want: false},
		{name: "exact name", filter: `{"name": "Hello World"}`, want: true},
		{name: "close name", filter: `{"name": "Hello World!"}`, want: true},
		{name: "name is case sensitive", filter: `{"name": "HELLO WORLD"}`, want: false},
		{name: "distant name", filter: `{"name": "quantum kernel estimation"}`, want: false},
		{name: "tag", filter: `{"tag": "ml"}`, want: true},
		{name: "missing tag", filter: `{"tag": "visualization"}`, want: false},
		{name: "type case insensitive", filter: `{"type": "PROCESSING"}`, want: true},
		{name: "version in range", filter: `{"version": ">=1.0 <2.0"}`, want: true},
		{name: "version out of range", filter: `{"version": ">=2.0"}`, want: false},
		{name: "and", filter: `{"and": [{"tag": "ml"}, {"type": "processing"}]}`, want: true},
		{name: "and fails", filter: `{"and": [{"tag": "ml"}, {"type": "conversion"}]}`, want: false},
		{name: "empty and matches nothing", filter: `{"and": []}`, want: false},
		{name: "empty or matches nothing", filter: `{"or": []}`, want: false},
		{name: "or", filter: `{"or": [{"tag": "nope"}, {"tag": "ml"}]}`, want: true},
		{name: "not", filter: `{"not": {"tag": "visualization"}}`, want: true},
		{name: "double not", filter: `{"not": {"not": {"tag": "ml"}}}`, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			expr, err := Parse(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, expr.Matches(plugin))
		})
	}
}

// sliceSource serves a fixed plugin list in id order.
type sliceSource struct {
	plugins []Plugin
}

func (s *sliceSource) PluginBatch(_ context.Context, afterID int64, limit int) ([]Plugin, error) {
	var batch []Plugin
	for _, p := range s.plugins {
		if p.ID > afterID {
			batch = append(batch, p)
			if len(batch) == limit {
				break
			}
		}
	}
	return batch, nil
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	source := &sliceSource{}
	for i := int64(1); i <= 10; i++ {
		p := Plugin{ID: i, Identifier: "plugin", Version: "1.0.0", Type: "processing"}
		if i%2 == 0 {
			p.Tags = []string{"even"}
		}
		source.plugins = append(source.plugins, p)
	}

	expr, err := Parse(`{"tag": "even"}`)
	require.NoError(t, err)

	var got []int64
	var batches int
	err = Evaluate(context.Background(), expr, source, 3, func(ids []int64) error {
		got = append(got, ids...)
		batches++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4, 6, 8, 10}, got)
	// 10 plugins at batch size 3 means four fetches, all with matches.
	assert.Equal(t, 4, batches)
}

func TestEvaluateStopsOnYieldError(t *testing.T) {
	t.Parallel()

	source := &sliceSource{plugins: []Plugin{{ID: 1}, {ID: 2}}}
	expr, err := Parse("")
	require.NoError(t, err)

	calls := 0
	err = Evaluate(context.Background(), expr, source, 1, func([]int64) error {
		calls++
		return trace.LimitExceeded("stop")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
