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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpecifier(t *testing.T) {
	t.Parallel()

	t.Run("empty matches everything", func(t *testing.T) {
		t.Parallel()
		spec, err := ParseSpecifier("   ")
		require.NoError(t, err)
		assert.Nil(t, spec)
		assert.True(t, VersionMatches(spec, "0.0.1"))
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()
		_, err := ParseSpecifier(">>1.0")
		require.Error(t, err)
	})
}

func TestVersionMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		spec    string
		version string
		want    bool
	}{
		{spec: "==1.2.3", version: "1.2.3", want: true},
		{spec: "==1.2.3", version: "1.2.4", want: false},
		{spec: "===1.2.3", version: "1.2.3", want: true},
		{spec: ">=1.0 <2.0", version: "1.5.0", want: true},
		{spec: ">=1.0,<2.0", version: "2.0.0", want: false},
		{spec: "~=1.4", version: "1.9.0", want: true},
		{spec: "~=1.4", version: "2.0.0", want: false},
		{spec: "!=1.3.0", version: "1.3.0", want: false},
		{spec: "!=1.3.0", version: "1.3.1", want: true},
		{spec: ">=1.0", version: "v1.1.0", want: true},
		{spec: ">=1.0", version: "not-a-version", want: false},
		{spec: ">=1.0", version: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.spec+"/"+tt.version, func(t *testing.T) {
			t.Parallel()
			spec, err := ParseSpecifier(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, VersionMatches(spec, tt.version))
		})
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "equal", a: "hello", b: "hello", want: 1},
		{name: "both empty", a: "", b: "", want: 1},
		{name: "one empty", a: "hello", b: "", want: 0},
		{name: "disjoint", a: "abc", b: "xyz", want: 0},
		// The classic difflib example.
		{name: "abcd vs bcde", a: "abcd", b: "bcde", want: 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
		})
	}

	t.Run("symmetric-ish ordering", func(t *testing.T) {
		t.Parallel()
		// Close names clear the threshold, unrelated names do not.
		assert.Greater(t, Similarity("hello world", "hello world!"), NameSimilarityThreshold)
		assert.Less(t, Similarity("hello world", "entity loader"), NameSimilarityThreshold)
	})
}
