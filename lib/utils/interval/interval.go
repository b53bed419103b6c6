/*
 * Slipstream
 * Copyright (C) 2025  Gravitational, Inc.
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package interval provides a ticker with support for jitter and a custom
// first-tick duration, used to drive periodic background work.
package interval

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/gravitational/slipstream/lib/utils/retryutils"
)

// Config configures an interval.
type Config struct {
	// Duration is the duration on which the interval "ticks" (if a jitter is
	// applied, this represents the upper bound of the range).
	Duration time.Duration

	// FirstDuration is an optional special duration to be used for the first
	// "tick" of the interval.  This duration is not jittered.
	FirstDuration time.Duration

	// Jitter is an optional jitter to be applied to each step of the interval.
	Jitter retryutils.Jitter

	// Clock is the clock to use, defaults to the real clock.
	Clock clockwork.Clock
}

// Interval ticks on the configured cadence. Ticks that find no receiver
// ready are dropped rather than queued.
type Interval struct {
	cfg  Config
	ch   chan time.Time
	done chan struct{}
	once sync.Once
}

// New creates a new interval. Panics on non-positive durations like
// time.NewTicker does.
func New(cfg Config) *Interval {
	if cfg.Duration <= 0 {
		panic("non-positive duration for interval.New")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	i := &Interval{
		cfg:  cfg,
		ch:   make(chan time.Time, 1),
		done: make(chan struct{}),
	}

	first := cfg.FirstDuration
	if first <= 0 {
		first = i.duration()
	}
	go i.run(first)
	return i
}

// Next returns the channel on which the interval ticks are delivered.
func (i *Interval) Next() <-chan time.Time {
	return i.ch
}

// Stop permanently stops the interval. Subsequent Stop calls are no-ops.
func (i *Interval) Stop() {
	i.once.Do(func() {
		close(i.done)
	})
}

func (i *Interval) duration() time.Duration {
	d := i.cfg.Duration
	if i.cfg.Jitter != nil {
		d = i.cfg.Jitter(d)
	}
	return d
}

func (i *Interval) run(first time.Duration) {
	timer := i.cfg.Clock.NewTimer(first)
	defer timer.Stop()

	for {
		select {
		case tick := <-timer.Chan():
			select {
			case i.ch <- tick:
			default:
			}
			timer.Reset(i.duration())
		case <-i.done:
			return
		}
	}
}
