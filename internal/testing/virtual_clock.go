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

package testing

import (
	"sort"
	"sync"
	"time"

	"github.com/ZaparooProject/go-fhmac/internal/fhtimer"
)

// VirtualClock is a manually advanced tick counter with a scheduler bound to
// it. Callbacks run on the goroutine calling Advance, in due order.
type VirtualClock struct {
	// Settle, when set, runs after every fired callback so the test can wait
	// for whatever the callback posted to be processed.
	Settle  func()
	pending []*virtualTimer
	mu      sync.Mutex
	tick    time.Duration
	now     uint32
	seq     uint64
	// Latency is added to the clock when a callback fires, simulating the
	// delay between expiry and the handler running.
	Latency uint32
}

type virtualTimer struct {
	clock   *VirtualClock
	f       func()
	due     uint64
	seq     uint64
	stopped bool
}

// NewVirtualClock returns a clock at tick 0 whose ticks last tick.
func NewVirtualClock(tick time.Duration) *VirtualClock {
	return &VirtualClock{tick: tick}
}

// Now returns the current tick count.
func (c *VirtualClock) Now() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Period returns the duration of one tick.
func (c *VirtualClock) Period() time.Duration {
	return c.tick
}

// Set moves the clock to tick n without firing anything.
func (c *VirtualClock) Set(n uint32) {
	c.mu.Lock()
	c.now = n
	c.mu.Unlock()
}

// AfterFunc schedules f to run once the clock has advanced past d.
func (c *VirtualClock) AfterFunc(d time.Duration, f func()) fhtimer.Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	ticks := uint64(d / c.tick)
	t := &virtualTimer{clock: c, f: f, due: uint64(c.now) + ticks, seq: c.seq}
	c.pending = append(c.pending, t)
	return t
}

// Stop cancels the callback.
func (t *virtualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Pending returns the number of armed callbacks.
func (c *VirtualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.pending {
		if !t.stopped {
			n++
		}
	}
	return n
}

// next pops the earliest callback due at or before limit.
func (c *VirtualClock) next(limit uint64) *virtualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	live := c.pending[:0]
	for _, t := range c.pending {
		if !t.stopped {
			live = append(live, t)
		}
	}
	c.pending = live
	sort.Slice(c.pending, func(i, j int) bool {
		if c.pending[i].due != c.pending[j].due {
			return c.pending[i].due < c.pending[j].due
		}
		return c.pending[i].seq < c.pending[j].seq
	})
	if len(c.pending) == 0 || c.pending[0].due > limit {
		return nil
	}
	t := c.pending[0]
	c.pending = c.pending[1:]
	t.stopped = true
	if t.due > uint64(c.now) {
		c.now = uint32(t.due)
	}
	c.now += c.Latency
	return t
}

// Advance moves the clock forward by ticks, firing every callback that
// falls due on the way, including those armed by earlier callbacks.
func (c *VirtualClock) Advance(ticks uint32) {
	c.mu.Lock()
	limit := uint64(c.now) + uint64(ticks)
	c.mu.Unlock()
	for {
		t := c.next(limit)
		if t == nil {
			break
		}
		t.f()
		if c.Settle != nil {
			c.Settle()
		}
	}
	c.mu.Lock()
	if uint64(c.now) < limit {
		c.now = uint32(limit)
	}
	c.mu.Unlock()
}

// AdvanceMs advances by ms milliseconds.
func (c *VirtualClock) AdvanceMs(ms uint32) {
	c.Advance(ms * uint32(time.Millisecond/c.tick))
}
