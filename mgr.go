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
	"log/slog"
	"sync/atomic"

	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/nt"
	"github.com/ZaparooProject/go-fhmac/pib"
)

// ucTimerFired closes a unicast slot. Sleepy devices park on one channel
// and let the timer lapse.
func (e *Engine) ucTimerFired() {
	if !e.rxOnIdle {
		return
	}
	dwell := uint32(e.store.Uint8(pib.UcDwellInterval))
	e.ucTimer.Start(dwell * e.tpm)
	e.h.ucSlotIdx++
	e.h.ufsi += dwell
	if e.h.ucSlotIdx == 0 {
		e.h.ufsi = 0
	}
	atomic.AddInt64(&e.stats.ucHops, 1)
	e.fsm.event(EventUcTimer)
}

// bcTimerFired alternates between the start and the end of the broadcast
// dwell.
func (e *Engine) bcTimerFired() {
	dwell := uint32(e.store.Uint8(pib.BcDwellInterval))
	if dwell == 0 {
		return
	}
	interval := e.store.Uint32(pib.BcInterval)
	ev := EventBcTimer

	if !e.h.bcDwellActive {
		e.bcTimer.Start(dwell * e.tpm)
		e.h.bcSlotIdx++
		e.h.bfio = 0
		e.h.bcDwellActive = true
		atomic.AddInt64(&e.stats.bcHops, 1)
		e.radioCall("rx enable", e.radio.RxEnable)
		if !e.rxOnIdle {
			return
		}
	} else {
		e.radioCall("rx disable", e.radio.RxDisable)
		e.h.bcDwellActive = false
		e.h.bfio = dwell
		e.bcTimer.Start((interval - dwell) * e.tpm)
		if !e.rxOnIdle {
			if e.h.pktPending {
				e.kick()
			} else {
				e.radioCall("off", e.radio.Off)
			}
			return
		}
		// The unicast slot may be about to end anyway; let its own
		// timer do the hop then.
		ucDwell := uint32(e.store.Uint8(pib.UcDwellInterval))
		if ucDwell <= ucDwellBufMs || e.currentUfsi()%ucDwell >= ucDwell-ucDwellBufMs {
			return
		}
		ev = EventUcTimer
	}
	e.fsm.event(ev)
}

// updateUc tunes to our own unicast channel, unless the broadcast dwell
// holds the radio, in which case the hop is left pending.
func (e *Engine) updateUc() {
	var ch uint16
	switch dh1cf.ChannelFunction(e.store.Uint8(pib.UcChannelFunction)) {
	case dh1cf.FunctionFixed:
		ch = e.store.Uint16(pib.UcFixedChannel)
	case dh1cf.FunctionDH1:
		ch = e.ownUnicastChannel()
	default:
		return
	}
	if e.h.bcDwellActive {
		e.h.pendUc = true
		return
	}
	e.setChannel(ch)
	e.h.pendUc = false
	if e.h.pktPending {
		e.kick()
	}
}

func (e *Engine) updateBc() {
	ch := e.broadcastChannel(e.h.bcSlotIdx)
	e.setChannel(ch)
	e.h.pendBc = false
	if e.h.bcPktPending {
		e.kick()
	}
}

// updateHopping replays the hop latched while the radio was busy, or
// retunes to the last channel.
func (e *Engine) updateHopping() {
	if !e.rxOnIdle {
		return
	}
	switch {
	case e.h.pendBc:
		e.updateBc()
	case e.h.pendUc && !e.h.bcDwellActive:
		e.updateUc()
	default:
		e.setChannel(e.h.lastChannel)
	}
}

// startBS aligns the broadcast timer to the broadcast offset held in the
// handle.
func (e *Engine) startBS() {
	dwell := uint32(e.store.Uint8(pib.BcDwellInterval))
	interval := e.store.Uint32(pib.BcInterval)
	if dwell == 0 || interval == 0 {
		return
	}
	var d uint32
	switch {
	case e.h.bfio < dwell:
		d = dwell - e.h.bfio
		e.h.bcDwellActive = true
	case e.h.bfio < interval:
		d = interval - e.h.bfio
		e.h.bcDwellActive = false
	default:
		panic(&InvariantError{Err: ErrBroadcastOffset, State: e.fsm.state, Event: EventBcTimer})
	}
	e.bcTimer.Cancel()
	e.bcTimer.Start(d * e.tpm)
	e.h.bsStarted = true
}

func (e *Engine) purgeFired() {
	if n := e.table.Purge(); n > 0 {
		e.logger.Debug("purged neighbors", slog.Int("count", n))
	}
	e.purgeTimer.Start(nt.PurgePeriodMs() * e.tpm)
}

func (e *Engine) setChannel(ch uint16) {
	e.h.lastChannel = ch
	if err := e.radio.SetChannel(ch); err != nil {
		e.logger.Warn("set channel failed", slog.Int("channel", int(ch)), slog.Any("error", err))
		return
	}
	debugf("channel %d state %s", ch, e.fsm.state)
}

func (e *Engine) radioCall(op string, fn func() error) {
	if err := fn(); err != nil {
		e.logger.Warn("radio "+op+" failed", slog.Any("error", err))
	}
}
