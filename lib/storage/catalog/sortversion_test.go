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

package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortVersionOrdering(t *testing.T) {
	t.Parallel()

	// Listed in ascending version order; the derived keys must sort the
	// same way under plain string comparison.
	ordered := []string{
		"1.0.dev1",
		"1.0a1.dev1",
		"1.0a1",
		"1.0b2",
		"1.0rc1",
		"1.0",
		"1.0.post1.dev1",
		"1.0.post1",
		"1.0.1",
		"1.1",
		"1.10",
		"2.0",
		"2!0.1",
	}
	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1], ordered[i]
		assert.Less(t, SortVersion(prev), SortVersion(cur),
			"%q should sort before %q", prev, cur)
	}
}

func TestSortVersionEquivalences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
	}{
		{name: "v prefix", a: "v1.2.0", b: "1.2.0"},
		{name: "case", a: "1.0RC1", b: "1.0rc1"},
		{name: "alpha spelling", a: "1.0alpha1", b: "1.0a1"},
		{name: "separator", a: "1.0-rc-1", b: "1.0rc1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, SortVersion(tt.a), SortVersion(tt.b))
		})
	}
}

func TestSortVersionFallback(t *testing.T) {
	t.Parallel()

	// Versions outside the recognized shape keep their raw string.
	assert.Equal(t, "not a version", SortVersion("not a version"))
	assert.Equal(t, "latest", SortVersion("latest"))
	// Segments too wide for the fixed padding also fall back.
	assert.Equal(t, "1.123456789", SortVersion("1.123456789"))
}

func TestSortVersionLocal(t *testing.T) {
	t.Parallel()

	plain := SortVersion("1.0")
	local := SortVersion("1.0+ubuntu.1")
	assert.NotEqual(t, plain, local)
	assert.Less(t, plain, local)
}
