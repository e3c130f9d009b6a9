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

	"github.com/stretchr/testify/require"
)

func TestIntervalTicks(t *testing.T) {
	t.Parallel()

	interval := NewInterval(IntervalConfig{
		Duration: time.Millisecond,
	})
	defer interval.Stop()

	for i := 0; i < 3; i++ {
		select {
		case <-interval.C:
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for tick %d", i)
		}
	}
}

func TestIntervalFirstDuration(t *testing.T) {
	t.Parallel()

	interval := NewInterval(IntervalConfig{
		Duration:      time.Hour,
		FirstDuration: time.Millisecond,
	})
	defer interval.Stop()

	select {
	case <-interval.C:
	case <-time.After(5 * time.Second):
		t.Fatal("first tick did not honor FirstDuration")
	}
}

func TestIntervalStop(t *testing.T) {
	t.Parallel()

	interval := NewInterval(IntervalConfig{Duration: time.Millisecond})
	interval.Stop()
	// Stop must be idempotent.
	interval.Stop()

	// Drain anything emitted before Stop took effect, then verify
	// silence.
	select {
	case <-interval.C:
	default:
	}
	select {
	case <-interval.C:
		// A single racing tick may still be buffered.
	case <-time.After(20 * time.Millisecond):
	}
	select {
	case <-interval.C:
		t.Fatal("interval kept ticking after Stop")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSeventhJitterRange(t *testing.T) {
	t.Parallel()

	jitter := NewSeventhJitter()
	base := 7 * time.Second
	for i := 0; i < 100; i++ {
		d := jitter(base)
		require.GreaterOrEqual(t, d, 6*base/7)
		require.Less(t, d, base+time.Millisecond)
	}
	require.EqualValues(t, 0, jitter(0))
}

func TestURLMap(t *testing.T) {
	t.Parallel()

	m, err := CompileURLMap([][2]string{
		{`localhost:5005`, "plugin-runner:8080"},
		{`^http://`, "https://"},
	})
	require.NoError(t, err)

	require.Equal(t,
		"https://plugin-runner:8080/plugins/",
		m.Apply("http://localhost:5005/plugins/"),
	)
	// Rules apply in order; urls not matching any rule pass through.
	require.Equal(t, "ftp://example.org", m.Apply("ftp://example.org"))

	_, err = CompileURLMap([][2]string{{`(unclosed`, ""}})
	require.Error(t, err)
}
