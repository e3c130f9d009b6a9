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
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// IntervalConfig configures an Interval.
type IntervalConfig struct {
	// Duration is the base tick interval. Must be positive.
	Duration time.Duration
	// FirstDuration is an optional distinct delay before the first tick.
	// Zero means the first tick is scheduled like any other.
	FirstDuration time.Duration
	// Jitter is an optional jitter applied to each tick interval.
	Jitter Jitter
	// Clock overrides the wall clock, used in tests.
	Clock clockwork.Clock
}

// Interval is a ticker for recurring registry tasks (discovery, purge).
// Unlike time.Ticker it supports a distinct first-tick delay, per-tick
// jitter and an injected clock.
type Interval struct {
	// C delivers the ticks. The channel is never closed; callers
	// multiplex it with a context in a select.
	C <-chan time.Time

	closeOnce sync.Once
	done      chan struct{}
}

// NewInterval starts a new interval ticker. Stop must be called to release
// the associated resources.
func NewInterval(cfg IntervalConfig) *Interval {
	if cfg.Duration <= 0 {
		panic("non-positive duration for NewInterval")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	jitter := cfg.Jitter
	if jitter == nil {
		jitter = func(d time.Duration) time.Duration { return d }
	}

	firstDuration := cfg.FirstDuration
	if firstDuration <= 0 {
		firstDuration = jitter(cfg.Duration)
	}

	// c is never closed, mirroring time.Ticker, to prevent spurious
	// zero-value ticks.
	c, done := make(chan time.Time, 1), make(chan struct{})

	go func() {
		timer := cfg.Clock.NewTimer(firstDuration)
		defer timer.Stop()

		for {
			select {
			case t := <-timer.Chan():
				timer.Reset(jitter(cfg.Duration))
				// Drop the previous tick if it has not been
				// consumed so the send below never blocks.
				select {
				case <-c:
				default:
				}
				c <- t
			case <-done:
				return
			}
		}
	}()

	return &Interval{C: c, done: done}
}

// Stop turns off the interval. No more ticks will be delivered. The tick
// channel is intentionally left open so concurrent readers never observe
// an erroneous zero-value tick.
func (i *Interval) Stop() {
	i.closeOnce.Do(func() {
		close(i.done)
	})
}
