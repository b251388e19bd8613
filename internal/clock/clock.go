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

// Package clock is the host tick source the hopping schedule is measured in.
package clock

import (
	"time"

	"github.com/ZaparooProject/go-fhmac/internal/fhtimer"
)

// DefaultPeriod is the duration of one tick.
const DefaultPeriod = 10 * time.Microsecond

// Ticks is a free-running 32-bit counter advancing once per period, backed
// by the system monotonic clock. It also schedules callbacks on the Go
// runtime timers.
type Ticks struct {
	period time.Duration
	origin time.Duration
}

// New returns a counter starting at zero.
func New(period time.Duration) *Ticks {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Ticks{period: period, origin: monotonic()}
}

// Now returns the current tick count. It wraps at 32 bits.
func (t *Ticks) Now() uint32 {
	return uint32((monotonic() - t.origin) / t.period)
}

// Period returns the duration of one tick.
func (t *Ticks) Period() time.Duration {
	return t.period
}

// PerMs returns the number of ticks in one millisecond.
func (t *Ticks) PerMs() uint32 {
	return uint32(time.Millisecond / t.period)
}

// AfterFunc runs f on its own goroutine after d.
func (*Ticks) AfterFunc(d time.Duration, f func()) fhtimer.Stopper {
	return time.AfterFunc(d, f)
}
