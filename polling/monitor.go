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

// Package polling watches a running engine's neighbor table, reporting
// neighbors as they join, update, go stale and leave, and saves the node's
// state periodically.
package polling

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	fhmac "github.com/ZaparooProject/go-fhmac"
	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/nt"
)

const finalSaveTimeout = 5 * time.Second

// Source is what the monitor polls. *fhmac.Engine implements it.
type Source interface {
	Neighbors(ctx context.Context) ([]nt.Neighbor, error)
	Metrics() fhmac.Metrics
}

var _ Source = (*fhmac.Engine)(nil)

// Callbacks receive monitor events. All are optional and run on the
// monitor goroutine.
type Callbacks struct {
	OnJoined   func(nb nt.Neighbor)
	OnUpdated  func(nb nt.Neighbor)
	OnPresence func(nb nt.Neighbor, p Presence)
	OnLeft     func(eui dh1cf.EUI64)
	OnMetrics  func(m fhmac.Metrics)
	OnSave     func(ctx context.Context) error
}

// Metrics tracks operational counters of a Monitor
type Metrics struct {
	PollCycles      int64         // Total number of polls
	PollErrors      int64         // Polls that failed to read the table
	Joined          int64         // Neighbors seen for the first time
	Left            int64         // Neighbors gone from the table
	Saves           int64         // Successful OnSave calls
	SaveErrors      int64         // Failed OnSave calls
	LastPollLatency time.Duration // Duration of the last table read
}

// Monitor polls a Source on a fixed interval
type Monitor struct {
	source    Source
	config    *Config
	neighbors map[dh1cf.EUI64]*NeighborState
	now       func() time.Time
	callbacks Callbacks
	mu        sync.Mutex
	paused    atomic.Bool

	pollCycles  int64
	pollErrors  int64
	joined      int64
	left        int64
	saves       int64
	saveErrors  int64
	pollLatency int64
}

// NewMonitor creates a monitor for src. A nil config uses DefaultConfig.
func NewMonitor(src Source, config *Config, callbacks Callbacks) (*Monitor, error) {
	if src == nil {
		return nil, errors.New("source cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid polling config: %w", err)
	}
	return &Monitor{
		source:    src,
		config:    config,
		callbacks: callbacks,
		neighbors: make(map[dh1cf.EUI64]*NeighborState),
		now:       time.Now,
	}, nil
}

// Run polls until ctx is done. When saving is configured, state is saved
// on every SaveInterval and once more on the way out.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	var saveC <-chan time.Time
	if m.config.SaveInterval > 0 && m.callbacks.OnSave != nil {
		saveTicker := time.NewTicker(m.config.SaveInterval)
		defer saveTicker.Stop()
		saveC = saveTicker.C
	}

	_ = m.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			if saveC != nil {
				saveCtx, cancel := context.WithTimeout(context.Background(), finalSaveTimeout)
				_ = m.save(saveCtx)
				cancel()
			}
			return ctx.Err()
		case <-ticker.C:
			_ = m.Poll(ctx)
		case <-saveC:
			_ = m.save(ctx)
		}
	}
}

func (m *Monitor) save(ctx context.Context) error {
	if err := m.callbacks.OnSave(ctx); err != nil {
		atomic.AddInt64(&m.saveErrors, 1)
		return err
	}
	atomic.AddInt64(&m.saves, 1)
	return nil
}

// Poll reads the neighbor table once and fires callbacks for what changed.
// A paused monitor does nothing.
func (m *Monitor) Poll(ctx context.Context) error {
	if m.paused.Load() {
		return nil
	}

	pollCtx, cancel := context.WithTimeout(ctx, m.config.PollInterval)
	defer cancel()

	start := m.now()
	list, err := m.source.Neighbors(pollCtx)
	atomic.AddInt64(&m.pollCycles, 1)
	atomic.StoreInt64(&m.pollLatency, int64(time.Since(start)))
	if err != nil {
		atomic.AddInt64(&m.pollErrors, 1)
		return fmt.Errorf("read neighbors: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[dh1cf.EUI64]bool, len(list))
	for _, nb := range list {
		seen[nb.EUI] = true
		st, ok := m.neighbors[nb.EUI]
		if !ok {
			st = &NeighborState{Neighbor: nb, LastUpdate: start}
			m.neighbors[nb.EUI] = st
			atomic.AddInt64(&m.joined, 1)
			if m.callbacks.OnJoined != nil {
				m.callbacks.OnJoined(nb)
			}
		}
		updated, moved := st.observe(nb, start, m.config.StaleAfter)
		if ok && updated && m.callbacks.OnUpdated != nil {
			m.callbacks.OnUpdated(nb)
		}
		if moved && m.callbacks.OnPresence != nil {
			m.callbacks.OnPresence(nb, st.Presence)
		}
	}

	for eui := range m.neighbors {
		if seen[eui] {
			continue
		}
		delete(m.neighbors, eui)
		atomic.AddInt64(&m.left, 1)
		if m.callbacks.OnLeft != nil {
			m.callbacks.OnLeft(eui)
		}
	}

	if m.callbacks.OnMetrics != nil {
		m.callbacks.OnMetrics(m.source.Metrics())
	}
	return nil
}

// Pause stops polling until Resume
func (m *Monitor) Pause() {
	m.paused.Store(true)
}

// Resume restarts polling after Pause
func (m *Monitor) Resume() {
	m.paused.Store(false)
}

// Paused reports whether the monitor is paused
func (m *Monitor) Paused() bool {
	return m.paused.Load()
}

// Neighbors returns the tracked neighbors ordered by address
func (m *Monitor) Neighbors() []NeighborState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]NeighborState, 0, len(m.neighbors))
	for _, st := range m.neighbors {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Neighbor.EUI[:], out[j].Neighbor.EUI[:]) < 0
	})
	return out
}

// Metrics returns the monitor counters
func (m *Monitor) Metrics() Metrics {
	return Metrics{
		PollCycles:      atomic.LoadInt64(&m.pollCycles),
		PollErrors:      atomic.LoadInt64(&m.pollErrors),
		Joined:          atomic.LoadInt64(&m.joined),
		Left:            atomic.LoadInt64(&m.left),
		Saves:           atomic.LoadInt64(&m.saves),
		SaveErrors:      atomic.LoadInt64(&m.saveErrors),
		LastPollLatency: time.Duration(atomic.LoadInt64(&m.pollLatency)),
	}
}
