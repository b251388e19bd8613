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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMachine(log *[]action) *machine {
	m := &machine{}
	for a := actPendUc; a < numActions; a++ {
		a := a
		m.actions[a] = func() { *log = append(*log, a) }
	}
	return m
}

func TestMachine_Transitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		events []Event
		want   State
		acts   []action
	}{
		{
			name:   "unicast hop in HOP",
			events: []Event{EventUcTimer},
			want:   StateHop,
			acts:   []action{actUpdateUc},
		},
		{
			name:   "hop latched during TX and replayed",
			events: []Event{EventTxStart, EventUcTimer, EventBcTimer, EventTxDone},
			want:   StateHop,
			acts:   []action{actPendUc, actPendBc, actUpdateHopping},
		},
		{
			name:   "reception",
			events: []Event{EventRxStart, EventUcTimer, EventRxDone},
			want:   StateHop,
			acts:   []action{actPendUc, actUpdateHopping},
		},
		{
			name:   "async walk",
			events: []Event{EventAsyncStart, EventTxDone, EventTxDone, EventAsyncDone},
			want:   StateHop,
			acts:   []action{actProcAsync, actProcAsync, actProcAsync, actUpdateHopping},
		},
		{
			name:   "async start while receiving requeues",
			events: []Event{EventRxStart, EventAsyncStart},
			want:   StateRx,
			acts:   []action{actRequeue},
		},
		{
			name:   "edfe exchange",
			events: []Event{EventEDFEStart, EventEDFERcv, EventEDFEReq, EventEDFEFin},
			want:   StateHop,
			acts:   []action{actStartEDFE, actProcEDFE, actProcEDFE, actUpdateHopping},
		},
		{
			name:   "edfe frame received while in RX",
			events: []Event{EventRxStart, EventEDFERcv},
			want:   StateEDFE,
			acts:   []action{actProcEDFE},
		},
		{
			name:   "tx done without tx start",
			events: []Event{EventTxDone},
			want:   StateHop,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var log []action
			m := newTestMachine(&log)
			for _, ev := range tt.events {
				m.event(ev)
			}
			assert.Equal(t, tt.want, m.state)
			assert.Equal(t, tt.acts, log)
		})
	}
}

func TestMachine_InvariantPanics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup []Event
		ev    Event
		state State
	}{
		{name: "async done in HOP", ev: EventAsyncDone, state: StateHop},
		{name: "async start in ASYNC", setup: []Event{EventAsyncStart}, ev: EventAsyncStart, state: StateAsync},
		{name: "edfe start in TX", setup: []Event{EventTxStart}, ev: EventEDFEStart, state: StateTx},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var log []action
			m := newTestMachine(&log)
			for _, ev := range tt.setup {
				m.event(ev)
			}

			defer func() {
				r := recover()
				require.NotNil(t, r)
				ie, ok := r.(*InvariantError)
				require.True(t, ok)
				assert.True(t, errors.Is(ie, ErrFSMInvariant))
				assert.Equal(t, tt.state, ie.State)
				assert.Equal(t, tt.ev, ie.Event)
			}()
			m.event(tt.ev)
		})
	}
}

func TestMachine_StateSetBeforeAction(t *testing.T) {
	t.Parallel()

	m := &machine{}
	var seen State
	m.actions[actProcAsync] = func() { seen = m.state }
	m.event(EventAsyncStart)
	assert.Equal(t, StateAsync, seen)
	assert.Equal(t, StateHop, m.prev)

	m.reset()
	assert.Equal(t, StateHop, m.state)
}

func TestStateAndEventStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ASYNC", StateAsync.String())
	assert.Equal(t, "UNKNOWN", numStates.String())
	assert.Equal(t, "EDFE_FIN", EventEDFEFin.String())
	assert.Equal(t, "UNKNOWN", numEvents.String())
}
