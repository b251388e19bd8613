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

package fhtimer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-fhmac/internal/fhtimer"
	virt "github.com/ZaparooProject/go-fhmac/internal/testing"
)

const tick = 10 * time.Microsecond

type harness struct {
	clock *virt.VirtualClock
	timer *fhtimer.Timer
	fires []uint32
}

// newPeriodic builds a timer that rearms itself with period ticks on every
// expiry, the way the dwell timers run.
func newPeriodic(latency, period uint32, opts ...fhtimer.Option) *harness {
	h := &harness{clock: virt.NewVirtualClock(tick)}
	h.clock.Latency = latency
	h.timer = fhtimer.New(h.clock, h.clock, tick, func(gen uint64) {
		if !h.timer.Expired(gen) {
			return
		}
		h.fires = append(h.fires, h.clock.Now()-latency)
		h.timer.Start(period)
	}, opts...)
	return h
}

func TestTimer_CompensatesLatency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		latency uint32
		period  uint32
		periods int
	}{
		{name: "no latency", latency: 0, period: 25000, periods: 10},
		{name: "small latency", latency: 7, period: 25000, periods: 100},
		{name: "large latency", latency: 400, period: 1500, periods: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newPeriodic(tt.latency, tt.period)
			h.timer.Start(tt.period)
			h.clock.Advance(tt.period*uint32(tt.periods) + tt.period/2)

			require.Len(t, h.fires, tt.periods)
			for i, at := range h.fires {
				assert.Equal(t, uint32(i+1)*tt.period, at, "fire %d drifted", i)
			}
		})
	}
}

func TestTimer_PlainAccumulatesLatency(t *testing.T) {
	t.Parallel()

	h := newPeriodic(10, 1000, fhtimer.Plain())
	h.timer.Start(1000)
	h.clock.Advance(5000)

	require.NotEmpty(t, h.fires)
	assert.Equal(t, uint32(1000), h.fires[0])
	if len(h.fires) > 1 {
		assert.Equal(t, uint32(2010), h.fires[1])
	}
}

func TestTimer_CancelResetsCompensation(t *testing.T) {
	t.Parallel()

	clock := virt.NewVirtualClock(tick)
	fired := 0
	var timer *fhtimer.Timer
	timer = fhtimer.New(clock, clock, tick, func(gen uint64) {
		if timer.Expired(gen) {
			fired++
		}
	})

	assert.Equal(t, uint32(100), timer.Start(100))
	clock.Advance(150)
	assert.Equal(t, 1, fired)

	// Rearming 50 ticks late shortens the next period.
	assert.Equal(t, uint32(50), timer.Start(100))

	timer.Cancel()
	assert.False(t, timer.Active())
	clock.Advance(500)
	assert.Equal(t, 1, fired)

	// After Cancel the duration is armed as requested.
	assert.Equal(t, uint32(100), timer.Start(100))
}

func TestTimer_EarlyRestartLengthens(t *testing.T) {
	t.Parallel()

	clock := virt.NewVirtualClock(tick)
	timer := fhtimer.New(clock, clock, tick, func(uint64) {})

	timer.Start(100)
	clock.Set(40)
	assert.Equal(t, uint32(160), timer.Start(100))
}

func TestTimer_NeverNegative(t *testing.T) {
	t.Parallel()

	clock := virt.NewVirtualClock(tick)
	timer := fhtimer.New(clock, clock, tick, func(uint64) {})

	timer.Start(10)
	clock.Set(1000)
	assert.Equal(t, uint32(0), timer.Start(10))
}

func TestTimer_StaleFireDropped(t *testing.T) {
	t.Parallel()

	clock := virt.NewVirtualClock(tick)
	var gens []uint64
	timer := fhtimer.New(clock, clock, tick, func(gen uint64) {
		gens = append(gens, gen)
	})

	timer.Start(100)

	// Capture a fire that raced with a restart.
	clock.Advance(100)
	require.Len(t, gens, 1)
	stale := gens[0]
	timer.Start(100)
	assert.False(t, timer.Expired(stale))

	clock.Advance(100)
	require.Len(t, gens, 2)
	assert.True(t, timer.Expired(gens[1]))
	assert.False(t, timer.Expired(gens[1]), "a fire is consumed once")
}

func TestTimer_Elapsed(t *testing.T) {
	t.Parallel()

	clock := virt.NewVirtualClock(tick)
	timer := fhtimer.New(clock, clock, tick, func(uint64) {}, fhtimer.WithName("uc"))
	clock.Set(500)
	timer.Start(1000)
	clock.Set(730)

	assert.Equal(t, uint32(230), timer.Elapsed())
	assert.Equal(t, uint32(500), timer.LastStart())
	assert.Equal(t, "uc", timer.Name())
}
