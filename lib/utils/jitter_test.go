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

package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJitterBounds(t *testing.T) {
	t.Parallel()

	const d = 7 * time.Second
	for name, tt := range map[string]struct {
		jitter Jitter
		lower  time.Duration
	}{
		"seventh": {jitter: NewSeventhJitter(), lower: 6 * d / 7},
		"half":    {jitter: NewHalfJitter(), lower: d / 2},
	} {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Zero(t, tt.jitter(0))
			for i := 0; i < 100; i++ {
				v := tt.jitter(d)
				assert.GreaterOrEqual(t, v, tt.lower)
				assert.Less(t, v, d)
			}
		})
	}
}
