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

// Timing constants. RAT values are in quarter microseconds.
const (
	unitBackoffUs = 1160
	numSlots      = 65536

	slotEdgeUs    = 3000 + 160 + 200 + 1000
	slotEdgeMs    = 4
	lrmSlotEdgeUs = 13000
	lrmSlotEdgeMs = 13
	slotErrEstUs  = 2000

	ucDwellBufMs = 5
	minTxOffMs   = 50
	txTimingSize = 10

	ratHalfMs        = 2000
	sfdTimeRAT       = 6400
	lrmSfdTimeRAT    = 38400
	radioDelayRAT    = 4000
	defaultCCARAT    = 1000
	lrmDefaultCCARAT = 1600
	lbtCCARAT        = 20000

	minBE = 3
	maxBE = 5
)

// handle is the hopping state owned by the engine goroutine.
type handle struct {
	// btieTs is when the broadcast timing was last adopted from a BT-IE.
	btieTs  uint32
	rxSfdTs uint32
	// ufsi is the unicast offset in ms at the start of the current slot.
	ufsi uint32
	// bfio is the broadcast offset in ms at the last broadcast timer start.
	bfio uint32

	ucSlotIdx     uint16
	bcSlotIdx     uint16
	rxSlotIdx     uint16
	lastChannel   uint16
	lastTxChannel uint16
	asyncChIdx    uint16
	ccaTime       uint16
	btie          uint32

	pendUc        bool
	pendBc        bool
	bcDwellActive bool
	bsStarted     bool
	fhStarted     bool
	fhBSRcvd      bool
	btiePresent   bool
	pktPending    bool
	bcPktPending  bool
	asyncStop     bool
	asyncOK       bool
	lbt           bool
	regSFD        bool
}

type txTiming struct {
	ts      uint32
	channel uint16
}

// txRing remembers when and where the last transmissions went out, for the
// listen before talk off time.
type txRing struct {
	entries [txTimingSize]txTiming
	next    int
	n       int
}

func (r *txRing) add(channel uint16, ts uint32) {
	r.entries[r.next] = txTiming{ts: ts, channel: channel}
	r.next = (r.next + 1) % txTimingSize
	if r.n < txTimingSize {
		r.n++
	}
}

// back returns the i-th most recent record.
func (r *txRing) back(i int) txTiming {
	return r.entries[(r.next-1-i+2*txTimingSize)%txTimingSize]
}

func (r *txRing) reset() {
	*r = txRing{}
}
