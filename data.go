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
	"log/slog"
	"sync/atomic"

	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/nt"
	"github.com/ZaparooProject/go-fhmac/pib"
)

func (e *Engine) room(indirect bool) bool {
	if indirect {
		return e.nIndirect < e.maxIndirect
	}
	return e.nDirect < e.maxDirect
}

func (e *Engine) count(f *Frame, delta int) {
	if f.Indirect {
		e.nIndirect += delta
	} else {
		e.nDirect += delta
	}
}

func (e *Engine) enqueue(f *Frame) error {
	if !e.room(f.Indirect) {
		return ErrQueueFull
	}
	f.ready = !f.Indirect
	e.queue = append(e.queue, f)
	e.count(f, 1)
	return nil
}

// pushFront puts a deferred frame back at the head of the queue.
func (e *Engine) pushFront(f *Frame) {
	e.queue = append([]*Frame{f}, e.queue...)
	e.count(f, 1)
}

// take removes and returns the first ready frame matching fn.
func (e *Engine) take(fn func(*Frame) bool) *Frame {
	for i, f := range e.queue {
		if f.ready && fn(f) {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			e.count(f, -1)
			return f
		}
	}
	return nil
}

func (e *Engine) has(fn func(*Frame) bool) bool {
	for _, f := range e.queue {
		if f.ready && fn(f) {
			return true
		}
	}
	return false
}

// purge drops every queued frame matching fn, confirming each with status.
func (e *Engine) purge(fn func(*Frame) bool, status TxStatus, err error) int {
	kept := e.queue[:0]
	var dropped []*Frame
	for _, f := range e.queue {
		if fn(f) {
			dropped = append(dropped, f)
			e.count(f, -1)
			continue
		}
		kept = append(kept, f)
	}
	e.queue = kept
	for _, f := range dropped {
		e.confirmFrame(f, status, err)
	}
	return len(dropped)
}

func ofType(t FrameType) func(*Frame) bool {
	return func(f *Frame) bool { return f.Type == t }
}

func isUnicast(f *Frame) bool { return f.Type.unicast() }

func isEDFE(f *Frame) bool { return f.Type.edfe() }

// releaseIndirect makes the frames held for a polling device sendable.
func (e *Engine) releaseIndirect(src dh1cf.EUI64) {
	for _, f := range e.queue {
		if f.Indirect && f.Dst == src {
			f.ready = true
		}
	}
}

func (e *Engine) confirmCur(status TxStatus, err error) {
	f := e.cur
	e.cur = nil
	e.confirmFrame(f, status, err)
}

func (e *Engine) confirmFrame(f *Frame, status TxStatus, err error) {
	if f == nil {
		return
	}
	switch status {
	case TxSuccess:
		atomic.AddInt64(&e.stats.txOK, 1)
	case TxTransactionOverflow:
		atomic.AddInt64(&e.stats.txOverflow, 1)
	default:
		atomic.AddInt64(&e.stats.txFailed, 1)
	}
	e.logger.Debug("tx confirm",
		slog.String("type", f.Type.String()),
		slog.Int("handle", int(f.Handle)),
		slog.String("status", status.String()))
	if f.NoConfirm || e.confirm == nil {
		return
	}
	e.confirm(Confirm{Frame: *f, Status: status, Err: err})
}

// sendData picks the next frame that may go out now. Async and EDFE frames
// go first, then broadcast frames inside the broadcast dwell, then unicast
// frames outside it.
func (e *Engine) sendData() {
	if e.cur != nil || len(e.queue) == 0 || e.fsm.state == StateRx {
		return
	}
	e.purge(func(f *Frame) bool { return !f.Type.supported() }, TxAborted, ErrInvalidFrameType)

	if f := e.take(ofType(FrameAsync)); f != nil {
		e.cur = f
		e.h.asyncOK = false
		e.checkAsyncStart()
		return
	}
	if f := e.take(isEDFE); f != nil {
		e.cur = f
		e.fsm.event(EventEDFEStart)
		return
	}

	bcDwell := uint32(e.store.Uint8(pib.BcDwellInterval))
	bfio, _ := e.currentBfio()
	if e.has(ofType(FrameBroadcast)) {
		if !e.h.bsStarted {
			e.confirmFrame(e.take(ofType(FrameBroadcast)), TxBadState, nil)
			e.kick()
			return
		}
		_, edgeMs := e.slotEdge()
		if int64(bfio) < int64(bcDwell)-int64(edgeMs) {
			e.cur = e.take(ofType(FrameBroadcast))
			e.h.bcPktPending = false
			e.transmit(TxCSMA)
			return
		}
		e.h.bcPktPending = true
	}

	f := e.take(isUnicast)
	if f == nil {
		return
	}
	e.cur = f
	if _, err := e.entry(f.Dst); err != nil {
		e.confirmCur(TxAborted, err)
		e.kick()
		return
	}
	if !e.h.bsStarted || bfio >= bcDwell {
		e.h.pktPending = false
		e.transmit(TxCSMA)
		return
	}
	e.completeTx(TxNoTime)
}

// entry returns the schedule to reach dst. A coordinator first looks at
// the channels polling devices were last heard on.
func (e *Engine) entry(dst dh1cf.EUI64) (nt.Entry, error) {
	if e.coordinator {
		if ch, ok := e.table.Opt(dst[:]); ok {
			return nt.Entry{ChannelFunc: dh1cf.FunctionFixed, FixedChannel: ch, Valid: nt.StateCreated}, nil
		}
	}
	en, err := e.table.Get(dst)
	if err != nil {
		return en, wrapStatus(err)
	}
	return en, nil
}

// backoff draws the CSMA backoff for f in µs.
func (e *Engine) backoff(f *Frame) uint32 {
	be := min(minBE+uint32(f.nb), maxBE)
	units := e.rng.Uint32N(1 << be)
	base := uint32(e.store.Uint8(pib.CSMABaseBackoff))
	if f.Retransmit && f.nb == 0 && base != 0 {
		units += e.remainingDwell(f.Dst) / unitBackoffUs
	}
	units += base * uint32(f.nb)
	return units * unitBackoffUs
}

func (e *Engine) transmit(mode TxMode) {
	f := e.cur
	p := TxParams{Channel: e.h.lastTxChannel}
	if mode == TxCSMA {
		var err error
		p, err = e.txParams(f, e.backoff(f))
		if errors.Is(err, ErrOutSlot) {
			e.completeTx(TxNoTime)
			return
		}
		if err != nil {
			e.confirmCur(TxAborted, err)
			e.kick()
			return
		}
	}
	e.updateCCA()

	req := TxRequest{
		Payload: f.Payload,
		Backoff: p.Backoff,
		Dst:     f.Dst,
		Channel: p.Channel,
		CCATime: e.h.ccaTime,
		Type:    f.Type,
		Handle:  f.Handle,
		Mode:    mode,
	}
	if f.HeaderIEs != 0 {
		req.HeaderIEs = e.codec.Gen(f.HeaderIEs, f.IEFrameType, &f.Info)
	}
	if f.PayloadIEs != 0 {
		req.PayloadIEs = e.codec.Gen(f.PayloadIEs, f.IEFrameType, &f.Info)
	}
	atomic.AddInt64(&e.stats.txFrames, 1)
	debugf("tx %s ch %d backoff %dus mode %s", f.Type, p.Channel, p.Backoff, mode)
	if err := e.radio.Transmit(req); err != nil {
		e.logger.Warn("radio transmit failed", slog.Any("error", err))
		e.completeTx(TxNoResources)
	}
}

// txParams returns the backoff and channel for a frame. Under listen
// before talk the backoff is pushed out until the chosen channel has been
// quiet for the minimum off time.
func (e *Engine) txParams(f *Frame, backoff uint32) (TxParams, error) {
	if !e.h.lbt {
		return e.txParamsOnce(f, backoff)
	}
	for range txTimingSize {
		p, err := e.txParamsOnce(f, backoff)
		if err != nil {
			return p, err
		}
		wait := e.minTxOffRemaining(f, p.Channel, p.Backoff)
		if wait == 0 {
			return p, nil
		}
		atomic.AddInt64(&e.stats.lbtDefer, 1)
		backoff = p.Backoff + wait*1000
	}
	panic(&InvariantError{Err: ErrNoTxWindow, State: e.fsm.state, Event: EventTxStart})
}

func (e *Engine) txParamsOnce(f *Frame, backoff uint32) (TxParams, error) {
	if f.Type == FrameBroadcast {
		ch, err := e.bcTxParams(&backoff)
		if err != nil {
			return TxParams{}, err
		}
		e.h.lastTxChannel = ch
		return TxParams{Backoff: backoff, Channel: ch}, nil
	}
	en, err := e.entry(f.Dst)
	if err != nil {
		return TxParams{}, err
	}
	ufsi, err := e.adjustBackoff(en, &backoff)
	if err != nil {
		return TxParams{}, err
	}
	ch := e.txChannel(en, f.Dst, ufsi, backoff)
	e.h.lastTxChannel = ch
	return TxParams{Backoff: backoff, Channel: ch}, nil
}

// remainingDwell returns the µs left in dst's current unicast dwell.
func (e *Engine) remainingDwell(dst dh1cf.EUI64) uint32 {
	en, err := e.entry(dst)
	if err != nil || en.ChannelFunc == dh1cf.FunctionFixed || en.Dwell == 0 {
		return 0
	}
	dwell := uint32(en.Dwell)
	return (dwell - e.txUfsi(en)%dwell) * 1000
}

// minTxOffRemaining returns how many ms a frame on channel must still wait,
// counted from now plus its CSMA backoff, before the last transmission on
// that channel is the minimum off time old.
func (e *Engine) minTxOffRemaining(f *Frame, channel uint16, backoffUs uint32) uint32 {
	if !e.h.lbt || (f.NoConfirm && f.Type == FrameUnicast) {
		return 0
	}
	now := e.clock.Now()
	limit := minTxOffMs * e.tpm
	for i := range e.ring.n {
		r := e.ring.back(i)
		if r.channel != channel {
			continue
		}
		elapsed := now - r.ts + (backoffUs/1000)*e.tpm
		if elapsed < limit {
			return (limit - elapsed + e.tpm/2) / e.tpm
		}
		return 0
	}
	return 0
}

// asyncDelay returns in ticks how long an async frame must wait for the
// minimum off time after the last transmission.
func (e *Engine) asyncDelay() uint32 {
	if !e.h.lbt || e.ring.n == 0 {
		return 0
	}
	elapsed := e.clock.Now() - e.ring.back(0).ts
	limit := minTxOffMs * e.tpm
	if elapsed < limit {
		return limit - elapsed + e.tpm
	}
	return 0
}

func (e *Engine) checkAsyncStart() {
	if d := e.asyncDelay(); d > 0 {
		atomic.AddInt64(&e.stats.lbtDefer, 1)
		e.minTxOffTimer.Start(d)
		return
	}
	e.asyncStart()
}

func (e *Engine) asyncStart() {
	e.fsm.event(EventAsyncStart)
	if e.fsm.state != StateAsync && e.cur != nil && e.cur.Type == FrameAsync {
		status := TxAborted
		if e.h.asyncOK {
			status = TxSuccess
		}
		e.confirmCur(status, nil)
		e.kick()
	}
}

// procAsync sends the current async frame on the next channel of its
// channel list.
func (e *Engine) procAsync() {
	maxCh := e.store.MaxChannels()
	if e.h.asyncStop || e.cur == nil || e.h.asyncChIdx >= maxCh {
		e.h.asyncChIdx = 0
		e.fsm.event(EventAsyncDone)
		return
	}
	for ch := e.h.asyncChIdx; ch < maxCh; ch++ {
		if dh1cf.Excluded(e.cur.ChannelList, ch) {
			e.h.lastTxChannel = ch
			e.h.asyncChIdx = ch + 1
			atomic.AddInt64(&e.stats.asyncCh, 1)
			e.transmit(TxNoCSMA)
			return
		}
	}
	e.h.asyncChIdx = 0
	e.h.asyncOK = true
	e.fsm.event(EventAsyncDone)
}

// requeue puts back the frame an async start found the radio busy with.
func (e *Engine) requeue() {
	if e.cur == nil {
		return
	}
	if e.room(e.cur.Indirect) {
		e.pushFront(e.cur)
		e.cur = nil
		return
	}
	e.confirmCur(TxTransactionOverflow, nil)
}

func (e *Engine) startEDFE() {
	if e.cur != nil {
		e.transmit(TxCSMA)
	}
}

func (e *Engine) procEDFE() {
	if e.cur != nil {
		e.transmit(TxNoCSMA)
	}
}

// completeTx handles the radio's report on the current frame.
func (e *Engine) completeTx(status TxStatus) {
	if e.cur == nil {
		return
	}
	if status == TxSuccess || status == TxNoAck {
		e.ring.add(e.h.lastTxChannel, e.clock.Now())
	}
	if status == TxNoTime && e.fsm.state == StateAsync {
		status = TxChannelAccessFailure
	}

	if status == TxNoTime {
		atomic.AddInt64(&e.stats.txNT, 1)
		f := e.cur
		if !e.room(f.Indirect) {
			e.confirmCur(TxTransactionOverflow, nil)
			return
		}
		f.nb++
		e.pushFront(f)
		if f.Type == FrameBroadcast {
			e.h.bcPktPending = true
		} else {
			e.h.pktPending = true
		}
		e.cur = nil
		return
	}

	switch {
	case status != TxSuccess && e.fsm.state == StateAsync && status != TxChannelAccessFailure:
		e.h.asyncChIdx = 0
		e.fsm.event(EventAsyncDone)
	default:
		e.fsm.event(EventTxDone)
	}

	if e.fsm.state != StateAsync && e.cur != nil {
		if e.cur.Type == FrameAsync && e.h.asyncOK {
			status = TxSuccess
		}
		e.confirmCur(status, nil)
	}
	if e.h.asyncStop {
		e.purge(ofType(FrameAsync), TxAborted, nil)
		e.h.asyncStop = false
	}
	e.kick()
}
