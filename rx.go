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
	"github.com/ZaparooProject/go-fhmac/ie"
	"github.com/ZaparooProject/go-fhmac/nt"
	"github.com/ZaparooProject/go-fhmac/pib"
)

// CompleteTx implements Listener.
func (e *Engine) CompleteTx(status TxStatus) {
	e.post(func() { e.completeTx(status) })
}

// CompleteRx implements Listener.
func (e *Engine) CompleteRx(rx RxFrame) {
	e.post(func() { e.completeRx(rx) })
}

// RadioState implements Listener.
func (e *Engine) RadioState(ev RadioEvent) {
	e.post(func() { e.radioState(ev) })
}

// SFD implements Listener.
func (e *Engine) SFD(status SFDStatus) {
	e.post(func() { e.sfd(status) })
}

func (e *Engine) radioState(ev RadioEvent) {
	switch ev {
	case RadioTxStart:
		e.fsm.event(EventTxStart)
	case RadioRxSFD:
		e.fsm.event(EventRxStart)
	case RadioCCABusy, RadioRSSIBusy:
		e.fsm.event(EventTxDone)
	}
}

func (e *Engine) sfd(status SFDStatus) {
	switch status {
	case SFDDetected:
		e.h.rxSfdTs = e.clock.Now()
		if e.fsm.state == StateHop {
			e.fsm.event(EventRxStart)
		}
	case SFDFrameReceived:
		if e.fsm.state == StateRx {
			e.fsm.event(EventRxDone)
			e.kick()
		}
	}
}

// completeRx takes the schedule IEs of a received frame into the neighbor
// table and, from the parent, the broadcast timing.
func (e *Engine) completeRx(rx RxFrame) {
	if !e.h.regSFD || rx.Err != nil {
		atomic.AddInt64(&e.stats.rxDrop, 1)
		return
	}

	us, err := e.codec.ExtractPie(rx.PayloadIEs, ie.IDUS)
	sched, ok := us.(ie.Schedule)
	if err != nil || !ok || sched.ChannelFunc == dh1cf.FunctionFixed {
		ch := e.h.lastChannel
		if ok && err == nil {
			ch = sched.FixedChannel
		}
		if rx.DataRequest {
			e.table.AddOpt(rx.Src[:], ch)
			e.releaseIndirect(rx.Src)
			e.kick()
			return
		}
	}

	if len(rx.HeaderIEs) == 0 {
		atomic.AddInt64(&e.stats.rxDrop, 1)
		return
	}
	if _, err := e.codec.ExtractHie(rx.HeaderIEs, ie.IDUT); err != nil {
		atomic.AddInt64(&e.stats.rxDrop, 1)
		return
	}
	atomic.AddInt64(&e.stats.rxFrames, 1)

	s := sink{e}
	if len(rx.PayloadIEs) > 0 {
		if _, _, err := e.codec.ParsePie(rx.PayloadIEs, rx.Src, s); err != nil {
			e.logger.Debug("payload IE rejected", slog.Any("error", wrapStatus(err)))
			return
		}
	}
	if _, _, err := e.codec.ParseHie(rx.HeaderIEs, rx.Src, s); err != nil {
		e.logger.Debug("header IE rejected", slog.Any("error", wrapStatus(err)))
		return
	}

	if !e.coordinator && e.fromParent(rx.Src) && e.h.btiePresent && e.h.fhBSRcvd {
		if e.updateBTIE(e.h.btie, e.h.rxSlotIdx) {
			atomic.AddInt64(&e.stats.btie, 1)
			e.startBS()
		}
		e.h.bsStarted = true
	}
	e.h.btiePresent = false
}

// fromParent reports whether src is the tracked parent, or any node while
// no parent is tracked.
func (e *Engine) fromParent(src dh1cf.EUI64) bool {
	parent := e.store.EUI(pib.TrackParentEUI)
	return parent == pib.InvalidEUI || parent == src
}

// sink applies parsed schedule IEs to the engine.
type sink struct{ e *Engine }

func (s sink) OnUSIE(src dh1cf.EUI64, us ie.Schedule) error {
	e := s.e
	kind := nt.KindHopping
	if us.ChannelFunc == dh1cf.FunctionFixed {
		kind = nt.KindFixed
	}
	en, ok := e.table.Lookup(src)
	switch {
	case !ok:
		var err error
		if en, err = e.table.Create(src, kind); err != nil {
			return err
		}
	case en.Kind != kind:
		moved, err := e.table.Move(src, kind)
		if err != nil {
			e.logger.Debug("neighbor kept in its pool",
				slog.String("kind", en.Kind.String()), slog.Any("error", err))
		} else {
			en = moved
		}
	}
	en.Valid |= nt.StateWaitUSIE
	en.Dwell = us.Dwell
	en.ClockDrift = us.ClockDrift
	en.TimingAccuracy = us.TimingAccuracy
	en.ChannelFunc = us.ChannelFunc
	en.FixedChannel = us.FixedChannel
	en.ExcludeMask = us.ExcludeMask
	if us.ChannelFunc != dh1cf.FunctionFixed {
		maxCh := e.store.MaxChannels()
		en.NumChannels = maxCh - dh1cf.ExcludedCount(us.ExcludeMask[:], maxCh)
	}
	return e.table.Put(en)
}

func (s sink) OnBSIE(src dh1cf.EUI64, bs ie.BroadcastSchedule) {
	e := s.e
	if e.coordinator || !e.fromParent(src) {
		return
	}
	st := e.store
	set := func(err error) {
		if err != nil {
			e.logger.Debug("BS-IE value rejected", slog.Any("error", err))
		}
	}
	set(st.SetUint32(pib.BcInterval, bs.Interval))
	set(st.SetUint16(pib.BroadcastSchedID, bs.BSI))
	set(st.SetUint8(pib.BcDwellInterval, bs.Dwell))
	set(st.SetUint8(pib.ClockDrift, bs.ClockDrift))
	set(st.SetUint8(pib.TimingAccuracy, bs.TimingAccuracy))
	set(st.SetUint8(pib.BcChannelFunction, uint8(bs.ChannelFunc)))
	if bs.ChannelFunc == dh1cf.FunctionFixed {
		set(st.SetUint16(pib.BcFixedChannel, bs.FixedChannel))
	} else {
		set(st.Set(pib.BcExcludedChannels, bs.ExcludeMask[:]))
	}
	e.h.fhBSRcvd = true
}

func (s sink) OnUTIE(src dh1cf.EUI64, ut ie.UT) {
	e := s.e
	en, ok := e.table.Lookup(src)
	if !ok {
		return
	}
	en.Valid |= nt.StateWaitUTIE
	en.Valid &^= nt.StateExpired
	en.UFSI = ut.UFSI
	en.RefTimestamp = e.h.rxSfdTs
	_ = e.table.Put(en)
}

func (s sink) OnBTIE(_ dh1cf.EUI64, bt ie.BT) {
	s.e.h.rxSlotIdx = bt.Slot
	s.e.h.btie = bt.BFIO
	s.e.h.btiePresent = true
}
