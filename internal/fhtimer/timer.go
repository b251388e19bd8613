// go-fhmac
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-fhmac.
//
// go-fhmac is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-fhmac is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-fhmac; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Package fhtimer provides the one-shot timers the hopping schedule runs on.
//
// A Timer rearmed from its own expiry compensates for the latency between
// the moment it was due and the moment it was rearmed, so a chain of
// rearms keeps the cumulative schedule locked to the tick counter.
package fhtimer

import (
	"time"
)

// Clock is a free-running 32-bit tick counter.
type Clock interface {
	Now() uint32
}

// Stopper cancels a pending callback.
type Stopper interface {
	Stop() bool
}

// Scheduler runs a callback after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

// Timer is a tick based one-shot timer. It is owned by a single goroutine:
// Start, Cancel, Expired and Elapsed must not be called concurrently. The
// fire callback runs on the scheduler's goroutine and receives the
// generation it was armed with, which the owner checks with Expired.
type Timer struct {
	sched        Scheduler
	clock        Clock
	pending      Stopper
	fire         func(gen uint64)
	name         string
	tick         time.Duration
	gen          uint64
	lastStart    uint32
	prevDuration uint32
	compensate   bool
	plain        bool
}

// Option configures a Timer.
type Option func(*Timer)

// Plain disables latency compensation. Plain timers fire exactly the
// requested duration after each Start.
func Plain() Option {
	return func(t *Timer) {
		t.plain = true
	}
}

// WithName labels the timer for logs.
func WithName(name string) Option {
	return func(t *Timer) {
		t.name = name
	}
}

// New returns a stopped timer. tick is the wall duration of one clock tick.
func New(sched Scheduler, clock Clock, tick time.Duration, fire func(gen uint64), opts ...Option) *Timer {
	t := &Timer{
		sched: sched,
		clock: clock,
		tick:  tick,
		fire:  fire,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the label set with WithName.
func (t *Timer) Name() string {
	return t.name
}

// Start arms the timer for duration ticks and returns the duration actually
// armed. When the previous Start was not followed by Cancel, the ticks by
// which this rearm is late relative to the previous expiry are taken off
// the new duration; a rearm that comes early lengthens it instead. The
// armed duration never goes below zero.
func (t *Timer) Start(duration uint32) uint32 {
	now := t.clock.Now()
	if t.compensate {
		late := int64(now-t.lastStart) - int64(t.prevDuration)
		d := int64(duration) - late
		if d < 0 {
			d = 0
		}
		duration = uint32(d)
	}
	t.stop()
	t.gen++
	gen := t.gen
	t.lastStart = now
	t.prevDuration = duration
	t.compensate = !t.plain
	t.pending = t.sched.AfterFunc(time.Duration(duration)*t.tick, func() {
		t.fire(gen)
	})
	return duration
}

// Cancel disarms the timer. The next Start is not compensated.
func (t *Timer) Cancel() {
	t.stop()
	t.gen++
	t.compensate = false
}

func (t *Timer) stop() {
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

// Expired reports whether gen belongs to the currently armed Start. A fire
// from an earlier arming, already in flight when the timer was restarted or
// cancelled, reports false and must be dropped.
func (t *Timer) Expired(gen uint64) bool {
	if gen != t.gen || t.pending == nil {
		return false
	}
	t.pending = nil
	return true
}

// Active reports whether the timer is armed.
func (t *Timer) Active() bool {
	return t.pending != nil
}

// Elapsed returns the ticks since the last Start.
func (t *Timer) Elapsed() uint32 {
	return t.clock.Now() - t.lastStart
}

// LastStart returns the tick count of the last Start.
func (t *Timer) LastStart() uint32 {
	return t.lastStart
}
