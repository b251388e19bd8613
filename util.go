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
	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/ie"
	"github.com/ZaparooProject/go-fhmac/nt"
	"github.com/ZaparooProject/go-fhmac/pib"
)

const (
	defaultDriftPpm = 10
	ticksPerSecond  = 1000
)

func (e *Engine) elapsedMs(prev uint32) uint32 {
	return (e.clock.Now() - prev) / e.tpm
}

// calcUfsi converts a UFSI in 1/256ths of a dwell to ms.
func calcUfsi(ufsi uint32, dwell uint8) uint32 {
	return (ufsi*uint32(dwell) + 128) >> 8
}

func (e *Engine) slotEdge() (us, ms uint32) {
	if e.phy.LongRange {
		return lrmSlotEdgeUs, lrmSlotEdgeMs
	}
	return slotEdgeUs, slotEdgeMs
}

// txUfsi estimates the neighbor's current offset into its unicast sequence
// in ms, from the UFSI it last announced.
func (e *Engine) txUfsi(en nt.Entry) uint32 {
	if en.Dwell == 0 {
		return 0
	}
	u := e.elapsedMs(en.RefTimestamp) + calcUfsi(en.UFSI, en.Dwell)
	return u % (numSlots * uint32(en.Dwell))
}

// guardTime returns in µs how far the neighbor's clock may have drifted
// from ours since its timing was last heard.
func (e *Engine) guardTime(en nt.Entry) uint32 {
	own := uint32(e.store.Uint8(pib.ClockDrift))
	if own == nt.ClockDriftUnknown {
		own = defaultDriftPpm
	}
	peer := uint32(en.ClockDrift)
	if peer == nt.ClockDriftUnknown {
		peer = defaultDriftPpm
	}
	secs := (e.clock.Now() - en.RefTimestamp) / (e.tpm * ticksPerSecond)
	guard := secs * (own + peer)
	if limit := uint32(en.Dwell>>2) * 1000; guard > limit {
		guard = limit
	}
	return guard
}

// adjustBackoff moves backoff so the frame does not go out across a slot
// edge. It returns ErrOutSlot when the frame cannot fit in the remaining
// unicast window before the next broadcast dwell, and the neighbor's UFSI
// it estimated.
func (e *Engine) adjustBackoff(en nt.Entry, backoff *uint32) (uint32, error) {
	edgeUs, _ := e.slotEdge()
	if dwell := uint32(e.store.Uint8(pib.BcDwellInterval)); dwell > 0 && e.h.bsStarted {
		bfio, _ := e.currentBfio()
		at := int64(bfio)*1000 + int64(*backoff)
		remDwell := int64(dwell)*1000 - at
		remInterval := int64(e.store.Uint32(pib.BcInterval))*1000 - at
		if remDwell > int64(edgeUs) || remInterval < int64(edgeUs) {
			return 0, ErrOutSlot
		}
		if remDwell > 0 && remDwell < int64(edgeUs) {
			*backoff += (edgeUs / 1000) * unitBackoffUs
		}
	}

	if en.ChannelFunc == dh1cf.FunctionFixed || en.Dwell == 0 {
		return 0, nil
	}
	guard := int64(e.guardTime(en)) + slotEdgeUs
	ufsi := e.txUfsi(en)
	dwellUs := int64(en.Dwell) * 1000
	rem := dwellUs - (int64(ufsi%uint32(en.Dwell))*1000 + int64(*backoff))
	switch {
	case rem >= 0 && rem < guard:
		*backoff += uint32((guard<<1)/1000) * unitBackoffUs
	case rem < 0 && rem > -guard:
		*backoff += uint32(guard/1000) * unitBackoffUs
	}
	return ufsi, nil
}

func (e *Engine) unicastChannel(en nt.Entry, dst dh1cf.EUI64, ufsi uint32) uint16 {
	if en.ChannelFunc == dh1cf.FunctionFixed || en.Dwell == 0 {
		return en.FixedChannel
	}
	slot := uint16(ufsi / uint32(en.Dwell))
	return dh1cf.UnicastChannelNumber(slot, dst, en.ExcludeMask[:], e.store.MaxChannels())
}

func (e *Engine) broadcastChannel(slot uint16) uint16 {
	if dh1cf.ChannelFunction(e.store.Uint8(pib.BcChannelFunction)) == dh1cf.FunctionFixed {
		return e.store.Uint16(pib.BcFixedChannel)
	}
	return dh1cf.BroadcastChannelNumber(slot, e.store.Uint16(pib.BroadcastSchedID),
		e.store.Bytes(pib.BcExcludedChannels), e.store.MaxChannels())
}

func (e *Engine) ownUnicastChannel() uint16 {
	return dh1cf.UnicastChannelNumber(e.h.ucSlotIdx, e.eui,
		e.store.Bytes(pib.UcExcludedChannels), e.store.MaxChannels())
}

// txChannel picks the channel a frame going out offset µs from now lands
// on: the broadcast channel when that moment falls inside a broadcast
// dwell, else the neighbor's unicast channel.
func (e *Engine) txChannel(en nt.Entry, dst dh1cf.EUI64, ufsi, offset uint32) uint16 {
	bfio, slot := e.currentBfio()
	bfio += offset / 1000
	interval := e.store.Uint32(pib.BcInterval)
	if e.h.bsStarted && (bfio >= interval || bfio < uint32(e.store.Uint8(pib.BcDwellInterval))) {
		if bfio >= interval {
			slot++
		}
		return e.broadcastChannel(slot)
	}
	if en.Dwell > 0 {
		ufsi = (ufsi + offset/1000) % (numSlots * uint32(en.Dwell))
	}
	return e.unicastChannel(en, dst, ufsi)
}

// bcTxParams fits a broadcast frame into the current broadcast dwell.
func (e *Engine) bcTxParams(backoff *uint32) (uint16, error) {
	edgeUs, _ := e.slotEdge()
	dwellUs := int64(e.store.Uint8(pib.BcDwellInterval)) * 1000
	room := dwellUs - int64(edgeUs) - slotErrEstUs
	if int64(*backoff) > room {
		room -= slotErrEstUs
		if room <= 0 {
			return 0, ErrOutSlot
		}
		*backoff %= uint32(room)
	}
	bfio, _ := e.currentBfio()
	rem := dwellUs - (int64(bfio)*1000 + int64(*backoff))
	if rem < int64(edgeUs) {
		return 0, ErrOutSlot
	}
	if rem > dwellUs-slotErrEstUs {
		*backoff += slotErrEstUs
	}
	return e.broadcastChannel(e.h.bcSlotIdx), nil
}

// currentUfsi returns the offset into our unicast sequence in ms.
func (e *Engine) currentUfsi() uint32 {
	return e.ucTimer.Elapsed()/e.tpm + e.h.ufsi
}

// currentBfio returns the offset into the broadcast interval in ms and the
// broadcast slot number. A sleepy device does not run the broadcast timer
// and extrapolates from the last BT-IE instead.
func (e *Engine) currentBfio() (uint32, uint16) {
	if !e.h.bsStarted {
		return 0, 0
	}
	interval := e.store.Uint32(pib.BcInterval)
	if interval == 0 {
		return 0, e.h.bcSlotIdx
	}
	if !e.rxOnIdle {
		el := e.elapsedMs(e.h.btieTs)
		slot := e.h.bcSlotIdx + uint16(el/interval)
		bfio := e.h.bfio + el%interval
		if bfio >= interval {
			bfio -= interval
			slot++
		}
		return bfio, slot
	}
	bfio := e.bcTimer.Elapsed()/e.tpm + e.h.bfio
	slot := e.h.bcSlotIdx
	if bfio >= interval {
		bfio -= interval
		slot++
	}
	return bfio, slot
}

// updateBTIE adopts the broadcast timing heard in a BT-IE, advanced by the
// time since its SFD. It reports whether the local timing changed.
func (e *Engine) updateBTIE(bfio uint32, slot uint16) bool {
	interval := e.store.Uint32(pib.BcInterval)
	bfio += e.elapsedMs(e.h.rxSfdTs)
	if interval > 0 && bfio >= interval {
		bfio -= interval
		slot++
	}
	if bfio == e.h.bfio && slot == e.h.bcSlotIdx {
		return false
	}
	e.h.bfio = bfio
	e.h.bcSlotIdx = slot
	e.h.pendBc = false
	e.h.btieTs = e.clock.Now()
	return true
}

// ccaSfdTime returns the ms between building a frame's IEs and its SFD
// going on air.
func (e *Engine) ccaSfdTime(ft ie.FrameType) uint32 {
	t := uint32(sfdTimeRAT)
	switch {
	case e.phy.LongRange:
		t = lrmSfdTimeRAT
	case e.phy.SymbolRate == 100:
		t /= 2
	case e.phy.SymbolRate == 150:
		t /= 3
	case e.phy.SymbolRate == 200:
		t /= 4
	case e.phy.SymbolRate == 300:
		t /= 6
	}
	if ft != ie.FrameAck {
		if e.h.lbt {
			t += uint32(e.h.ccaTime)
		} else {
			t += defaultCCARAT
		}
	}
	t += radioDelayRAT
	return (t + ratHalfMs) / (2 * ratHalfMs)
}

func (e *Engine) updateCCA() {
	if e.cur != nil && e.cur.Type == FrameAsync {
		e.h.ccaTime = lbtCCARAT
		return
	}
	if e.phy.LongRange {
		e.h.ccaTime = lrmDefaultCCARAT
		return
	}
	e.h.ccaTime = defaultCCARAT
}
