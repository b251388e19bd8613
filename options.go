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

package fhmac

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/ie"
	"github.com/ZaparooProject/go-fhmac/nt"
	"github.com/ZaparooProject/go-fhmac/pib"
)

// Option is a functional option for configuring an Engine
type Option func(*Engine) error

// WithLogger sets the structured logger for engine events
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) error {
		if l == nil {
			return errors.New("logger cannot be nil")
		}
		e.logger = l
		return nil
	}
}

// WithMailboxSize sets how many requests may wait for the engine goroutine
func WithMailboxSize(n int) Option {
	return func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("%w: mailbox size %d", ErrInvalidParameter, n)
		}
		e.mailboxSize = n
		return nil
	}
}

// WithTickPeriod sets the period of the host tick counter the schedule is
// measured in. It has no effect together with WithClock.
func WithTickPeriod(d time.Duration) Option {
	return func(e *Engine) error {
		if d <= 0 || d > time.Millisecond || time.Millisecond%d != 0 {
			return fmt.Errorf("%w: tick period %v must divide 1ms", ErrInvalidParameter, d)
		}
		e.tick = d
		return nil
	}
}

// WithClock runs the engine on c instead of the host monotonic clock.
func WithClock(c Clock) Option {
	return func(e *Engine) error {
		if c == nil {
			return errors.New("clock cannot be nil")
		}
		e.clock = c
		return nil
	}
}

// WithCoordinator makes the node the PAN coordinator. A coordinator owns
// the broadcast schedule instead of following a parent's.
func WithCoordinator() Option {
	return func(e *Engine) error {
		e.coordinator = true
		return nil
	}
}

// WithSleepy makes the node a sleepy device: its receiver is off outside
// the broadcast dwell and it does not hop unicast channels.
func WithSleepy() Option {
	return func(e *Engine) error {
		e.rxOnIdle = false
		return nil
	}
}

// WithEUI sets the node's own extended address. It seeds the unicast
// channel hash.
func WithEUI(eui dh1cf.EUI64) Option {
	return func(e *Engine) error {
		e.eui = eui
		return nil
	}
}

// WithPlan sets the PHY channel plan.
func WithPlan(p ie.Plan) Option {
	return func(e *Engine) error {
		if p.NumChannels == 0 {
			return fmt.Errorf("%w: plan without channels", ErrInvalidParameter)
		}
		e.plan = p
		return nil
	}
}

// WithPHY sets the PHY mode used for slot edge and SFD timing.
func WithPHY(phy PHY) Option {
	return func(e *Engine) error {
		switch phy.SymbolRate {
		case 50, 100, 150, 200, 300:
		default:
			if !phy.LongRange {
				return fmt.Errorf("%w: symbol rate %d", ErrInvalidParameter, phy.SymbolRate)
			}
		}
		e.phy = phy
		return nil
	}
}

// WithQueueSize sets how many direct and indirect frames may wait for
// transmission.
func WithQueueSize(direct, indirect int) Option {
	return func(e *Engine) error {
		if direct <= 0 || indirect < 0 {
			return fmt.Errorf("%w: queue size %d/%d", ErrInvalidParameter, direct, indirect)
		}
		e.maxDirect = direct
		e.maxIndirect = indirect
		return nil
	}
}

// WithConfirm sets the callback receiving transmission outcomes. It runs on
// the engine goroutine and must not call back into the engine.
func WithConfirm(fn func(Confirm)) Option {
	return func(e *Engine) error {
		e.confirm = fn
		return nil
	}
}

// WithDeviceTable shares the address index space of a security device
// table with the neighbor table.
func WithDeviceTable(d nt.DeviceTable) Option {
	return func(e *Engine) error {
		e.devices = d
		return nil
	}
}

// WithStore uses an existing attribute store, for example one restored from
// a snapshot. Its channel count must match the plan.
func WithStore(s *pib.Store) Option {
	return func(e *Engine) error {
		if s == nil {
			return errors.New("store cannot be nil")
		}
		e.store = s
		return nil
	}
}

// WithRand sets the random source for CSMA backoff.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) error {
		e.rng = r
		return nil
	}
}
