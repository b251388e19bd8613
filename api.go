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
	"context"
	"fmt"
	"log/slog"

	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/ie"
	"github.com/ZaparooProject/go-fhmac/nt"
	"github.com/ZaparooProject/go-fhmac/pib"
)

// resetState returns the engine to its power-on state: timers stopped,
// attributes at their defaults, no neighbors, hopping state cleared.
func (e *Engine) resetState() {
	e.stopTimers()
	e.h = handle{regSFD: true}
	e.store.Reset()
	e.store.RecomputeChannelCounts()
	e.table.Reset()
	e.ring.reset()
	e.fsm.reset()
}

// Reset stops the schedule and restores every default. Queued frames are
// confirmed as aborted.
func (e *Engine) Reset(ctx context.Context) error {
	return e.do(ctx, func() {
		if e.cur != nil {
			e.confirmCur(TxAborted, nil)
		}
		e.purge(func(*Frame) bool { return true }, TxAborted, nil)
		e.resetState()
		e.logger.Info("hopping engine reset")
	})
}

// Start begins hopping. A coordinator also starts the broadcast schedule;
// other nodes wait for their parent's broadcast timing.
func (e *Engine) Start(ctx context.Context) error {
	return e.do(ctx, e.start)
}

func (e *Engine) start() {
	ucDwell := uint32(e.store.Uint8(pib.UcDwellInterval))
	e.ucTimer.Cancel()
	if e.coordinator {
		e.store.RecomputeChannelCounts()
		bcDwell := uint32(e.store.Uint8(pib.BcDwellInterval))
		if bcDwell > 0 && e.store.Uint32(pib.BcInterval) > 0 {
			e.bcTimer.Cancel()
			e.bcTimer.Start(bcDwell * e.tpm)
			e.updateBc()
			e.h.bcDwellActive = true
			e.h.bsStarted = true
		}
		e.ucTimer.Start(ucDwell * e.tpm)
	} else {
		e.ucTimer.Start(ucDwell * e.tpm)
		e.updateUc()
	}
	e.h.lbt = e.radio.CCAType() == CCALBT
	if !e.h.fhStarted {
		e.table.Reset()
		e.h.fhStarted = true
		e.purgeTimer.Start(nt.PurgePeriodMs() * e.tpm)
	}
	e.logger.Info("hopping started",
		slog.Bool("coordinator", e.coordinator),
		slog.Bool("rx_on_idle", e.rxOnIdle),
		slog.String("cca", e.radio.CCAType().String()))
}

// StartBS (re)starts the broadcast schedule from the broadcast offset last
// adopted.
func (e *Engine) StartBS(ctx context.Context) error {
	return e.do(ctx, e.startBS)
}

// Send queues f for transmission. The outcome is reported through the
// confirm callback.
func (e *Engine) Send(ctx context.Context, f Frame) error {
	err, doErr := call(ctx, e, func() error {
		fr := f
		fr.nb = 0
		err := e.enqueue(&fr)
		if err == nil {
			e.kick()
		}
		return err
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// StopAsync ends async transmission. A frame already on air completes its
// current channel first; queued async frames are dropped. It returns
// ErrNotInAsync when there was nothing to stop.
func (e *Engine) StopAsync(ctx context.Context) error {
	err, doErr := call(ctx, e, func() error {
		if e.fsm.state == StateAsync {
			e.h.asyncStop = true
			return nil
		}
		n := e.purge(ofType(FrameAsync), TxAborted, nil)
		if e.cur != nil && e.cur.Type == FrameAsync {
			e.minTxOffTimer.Cancel()
			e.confirmCur(TxAborted, nil)
			e.kick()
			n++
		}
		if n == 0 {
			return ErrNotInAsync
		}
		return nil
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// TxParams returns the backoff in µs and the channel to send f on, given
// an initial CSMA backoff. It returns ErrOutSlot when the frame does not
// fit the current slot.
func (e *Engine) TxParams(ctx context.Context, f Frame, backoff uint32) (TxParams, error) {
	type result struct {
		err error
		p   TxParams
	}
	r, err := call(ctx, e, func() result {
		p, err := e.txParams(&f, backoff)
		return result{p: p, err: err}
	})
	if err != nil {
		return TxParams{}, err
	}
	return r.p, r.err
}

// RemainingDwell returns the µs left in dst's current unicast dwell, or 0
// for a fixed channel neighbor.
func (e *Engine) RemainingDwell(ctx context.Context, dst dh1cf.EUI64) (uint32, error) {
	return call(ctx, e, func() uint32 { return e.remainingDwell(dst) })
}

// GenIEs builds the header or payload IEs selected by bitmap from the live
// schedule.
func (e *Engine) GenIEs(ctx context.Context, bitmap ie.Bitmap, ft ie.FrameType, info ie.Info) ([]byte, error) {
	if bitmap&ie.HeaderMask != 0 && bitmap&ie.PayloadMask != 0 {
		return nil, fmt.Errorf("%w: header and payload IEs requested together", ErrInvalidParameter)
	}
	return call(ctx, e, func() []byte { return e.codec.Gen(bitmap, ft, &info) })
}

// EDFE feeds an EDFE exchange event, EventEDFEReq, EventEDFERcv or
// EventEDFEFin, into the state machine.
func (e *Engine) EDFE(ctx context.Context, ev Event) error {
	switch ev {
	case EventEDFEReq, EventEDFERcv, EventEDFEFin:
	default:
		return fmt.Errorf("%w: %s is not an EDFE event", ErrInvalidParameter, ev)
	}
	return e.do(ctx, func() {
		e.fsm.event(ev)
		if ev == EventEDFEFin {
			if e.cur != nil && e.cur.Type.edfe() {
				e.confirmCur(TxSuccess, nil)
			}
			e.kick()
		}
	})
}

// PIB returns the attribute store. It is safe for concurrent use.
func (e *Engine) PIB() *pib.Store {
	return e.store
}

// SetPIB validates and stores an attribute. Changes to the neighbor pool
// sizes take effect at the next Reset.
func (e *Engine) SetPIB(ctx context.Context, id pib.ID, data []byte) error {
	err, doErr := call(ctx, e, func() error { return e.store.Set(id, data) })
	if doErr != nil {
		return doErr
	}
	return wrapStatus(err)
}

// Neighbors returns a copy of every neighbor record with its address,
// hopping neighbors first, each pool in slot order. The copy is taken on
// the engine goroutine between two events, so it never shows a record
// half updated. It is safe to call from any goroutine; if ctx ends first
// the result is nil with ctx's error.
func (e *Engine) Neighbors(ctx context.Context) ([]nt.Neighbor, error) {
	return call(ctx, e, e.table.Neighbors)
}

// RestoreNeighbors loads saved neighbor records and returns how many were
// taken. Records are taken in list order until their pool is full, and an
// address already in the table is overwritten. The first Start sizes the
// table afresh, so restore after it. It is safe to call from any
// goroutine; when ctx ends before the engine gets to the request the
// count is 0, though the records may still be loaded afterwards.
func (e *Engine) RestoreNeighbors(ctx context.Context, list []nt.Neighbor) (int, error) {
	return call(ctx, e, func() int { return e.table.Restore(list) })
}

// AddDevice tells the neighbor table that eui now lives at index devIndex
// of the security device table.
func (e *Engine) AddDevice(ctx context.Context, eui dh1cf.EUI64, devIndex uint16) error {
	moved, err := call(ctx, e, func() bool { return e.table.OnDeviceAdded(eui, devIndex) })
	if err != nil {
		return err
	}
	if !moved {
		return ErrNoEntryInNT
	}
	return nil
}

// DelDevice tells the neighbor table that the device table entry at
// devIndex is going away.
func (e *Engine) DelDevice(ctx context.Context, devIndex uint16) error {
	moved, err := call(ctx, e, func() bool { return e.table.OnDeviceRemoved(devIndex) })
	if err != nil {
		return err
	}
	if !moved {
		return ErrNoEntryInNT
	}
	return nil
}
