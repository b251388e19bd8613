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

// State is the hopping engine state.
type State uint8

// Engine states.
const (
	StateHop State = iota
	StateTx
	StateRx
	StateAsync
	StateEDFE
	numStates
)

func (s State) String() string {
	switch s {
	case StateHop:
		return "HOP"
	case StateTx:
		return "TX"
	case StateRx:
		return "RX"
	case StateAsync:
		return "ASYNC"
	case StateEDFE:
		return "EDFE"
	default:
		return "UNKNOWN"
	}
}

// Event drives the state machine.
type Event uint8

// Engine events.
const (
	EventUcTimer Event = iota
	EventBcTimer
	EventRxStart
	EventRxDone
	EventTxStart
	EventTxDone
	EventAsyncStart
	EventAsyncDone
	EventEDFEStart
	EventEDFEReq
	EventEDFERcv
	EventEDFEFin
	numEvents
)

func (e Event) String() string {
	switch e {
	case EventUcTimer:
		return "UC_TIMER"
	case EventBcTimer:
		return "BC_TIMER"
	case EventRxStart:
		return "RX_START"
	case EventRxDone:
		return "RX_DONE"
	case EventTxStart:
		return "TX_START"
	case EventTxDone:
		return "TX_DONE"
	case EventAsyncStart:
		return "ASYNC_START"
	case EventAsyncDone:
		return "ASYNC_DONE"
	case EventEDFEStart:
		return "EDFE_START"
	case EventEDFEReq:
		return "EDFE_REQ"
	case EventEDFERcv:
		return "EDFE_RCV"
	case EventEDFEFin:
		return "EDFE_FIN"
	default:
		return "UNKNOWN"
	}
}

type action uint8

const (
	actNone action = iota
	actAssert
	actPendUc
	actPendBc
	actUpdateUc
	actUpdateBc
	actUpdateHopping
	actProcAsync
	actStartEDFE
	actProcEDFE
	actRequeue
	numActions
)

type transition struct {
	next State
	act  action
}

// Shorthands keep the table readable.
var (
	toHop   = func(a action) transition { return transition{StateHop, a} }
	toTX    = func(a action) transition { return transition{StateTx, a} }
	toRX    = func(a action) transition { return transition{StateRx, a} }
	toAsync = func(a action) transition { return transition{StateAsync, a} }
	toEDFE  = func(a action) transition { return transition{StateEDFE, a} }
	fatal   = transition{act: actAssert}
)

// transitions is indexed by [state][event]. Timer events outside HOP only
// latch the hop; it is replayed by updateHopping on the way back to HOP.
var transitions = [numStates][numEvents]transition{
	StateHop: {
		EventUcTimer:    toHop(actUpdateUc),
		EventBcTimer:    toHop(actUpdateBc),
		EventRxStart:    toRX(actNone),
		EventRxDone:     toHop(actNone),
		EventTxStart:    toTX(actNone),
		EventTxDone:     toHop(actNone),
		EventAsyncStart: toAsync(actProcAsync),
		EventAsyncDone:  fatal,
		EventEDFEStart:  toEDFE(actStartEDFE),
		EventEDFEReq:    toEDFE(actStartEDFE),
		EventEDFERcv:    toEDFE(actProcEDFE),
		EventEDFEFin:    toHop(actNone),
	},
	StateTx: {
		EventUcTimer:    toTX(actPendUc),
		EventBcTimer:    toTX(actPendBc),
		EventRxStart:    toTX(actNone),
		EventRxDone:     toTX(actNone),
		EventTxStart:    toTX(actNone),
		EventTxDone:     toHop(actUpdateHopping),
		EventAsyncStart: toTX(actRequeue),
		EventAsyncDone:  fatal,
		EventEDFEStart:  fatal,
		EventEDFEReq:    fatal,
		EventEDFERcv:    fatal,
		EventEDFEFin:    toTX(actNone),
	},
	StateRx: {
		EventUcTimer:    toRX(actPendUc),
		EventBcTimer:    toRX(actPendBc),
		EventRxStart:    toRX(actNone),
		EventRxDone:     toHop(actUpdateHopping),
		EventTxStart:    toRX(actNone),
		EventTxDone:     toRX(actNone),
		EventAsyncStart: toRX(actRequeue),
		EventAsyncDone:  fatal,
		EventEDFEStart:  fatal,
		EventEDFEReq:    fatal,
		EventEDFERcv:    toEDFE(actProcEDFE),
		EventEDFEFin:    toRX(actNone),
	},
	StateAsync: {
		EventUcTimer:    toAsync(actPendUc),
		EventBcTimer:    toAsync(actPendBc),
		EventRxStart:    toAsync(actNone),
		EventRxDone:     toAsync(actNone),
		EventTxStart:    toAsync(actNone),
		EventTxDone:     toAsync(actProcAsync),
		EventAsyncStart: fatal,
		EventAsyncDone:  toHop(actUpdateHopping),
		EventEDFEStart:  fatal,
		EventEDFEReq:    fatal,
		EventEDFERcv:    fatal,
		EventEDFEFin:    toAsync(actNone),
	},
	StateEDFE: {
		EventUcTimer:    toEDFE(actPendUc),
		EventBcTimer:    toEDFE(actPendBc),
		EventRxStart:    toEDFE(actNone),
		EventRxDone:     toEDFE(actNone),
		EventTxStart:    toEDFE(actNone),
		EventTxDone:     toEDFE(actNone),
		EventAsyncStart: toEDFE(actRequeue),
		EventAsyncDone:  fatal,
		EventEDFEStart:  fatal,
		EventEDFEReq:    toEDFE(actProcEDFE),
		EventEDFERcv:    toEDFE(actProcEDFE),
		EventEDFEFin:    toHop(actUpdateHopping),
	},
}

// machine runs the transition table. The next state is entered before the
// action runs, so an action may itself raise a further event.
type machine struct {
	actions [numActions]func()
	state   State
	prev    State
}

func (m *machine) event(ev Event) {
	t := transitions[m.state][ev]
	if t.act == actAssert {
		panic(&InvariantError{Err: ErrFSMInvariant, State: m.state, Event: ev})
	}
	m.prev = m.state
	m.state = t.next
	if fn := m.actions[t.act]; fn != nil {
		fn()
	}
}

func (m *machine) reset() {
	m.state = StateHop
	m.prev = StateHop
}
