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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/ie"
	"github.com/ZaparooProject/go-fhmac/nt"
	"github.com/ZaparooProject/go-fhmac/pib"
)

func TestCalcUfsi(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ufsi  uint32
		dwell uint8
		want  uint32
	}{
		{ufsi: 0, dwell: 250, want: 0},
		{ufsi: 128, dwell: 250, want: 125},
		{ufsi: 255, dwell: 250, want: 249},
		{ufsi: 256 * 3, dwell: 100, want: 300},
		{ufsi: 1, dwell: 15, want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, calcUfsi(tt.ufsi, tt.dwell), "ufsi %d dwell %d", tt.ufsi, tt.dwell)
	}
}

func TestTxRing(t *testing.T) {
	t.Parallel()

	var r txRing
	for i := range txTimingSize + 3 {
		r.add(uint16(i), uint32(i*10))
	}
	assert.Equal(t, txTimingSize, r.n)
	assert.Equal(t, uint16(txTimingSize+2), r.back(0).channel)
	assert.Equal(t, uint16(3), r.back(txTimingSize-1).channel)

	r.reset()
	assert.Equal(t, 0, r.n)
}

func TestEngine_CCASFDTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		phy  PHY
		ft   ie.FrameType
		lbt  bool
		want uint32
	}{
		{name: "50k data", phy: PHY{SymbolRate: 50}, ft: ie.FrameData, want: 3},
		{name: "50k ack", phy: PHY{SymbolRate: 50}, ft: ie.FrameAck, want: 3},
		{name: "150k data", phy: PHY{SymbolRate: 150}, ft: ie.FrameData, want: 2},
		{name: "300k ack", phy: PHY{SymbolRate: 300}, ft: ie.FrameAck, want: 1},
		{name: "long range", phy: PHY{LongRange: true}, ft: ie.FrameData, want: 11},
		{name: "50k async lbt", phy: PHY{SymbolRate: 50}, ft: ie.FrameData, lbt: true, want: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e, _, _ := newTestEngine(t, WithPHY(tt.phy))
			var got uint32
			onEngine(t, e, func() {
				e.h.lbt = tt.lbt
				if tt.lbt {
					e.h.ccaTime = lbtCCARAT
				}
				got = e.ccaSfdTime(tt.ft)
			})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_GuardTime(t *testing.T) {
	t.Parallel()

	e, _, clock := newTestEngine(t)
	en := nt.Entry{Dwell: 200, ClockDrift: 30}

	var fresh, aged, capped, unknown uint32
	onEngine(t, e, func() { fresh = e.guardTime(en) })
	clock.AdvanceMs(10 * 1000)
	onEngine(t, e, func() { aged = e.guardTime(en) })
	clock.AdvanceMs(30 * 60 * 1000)
	onEngine(t, e, func() { capped = e.guardTime(en) })
	onEngine(t, e, func() {
		en.RefTimestamp = e.clock.Now() - 2*1000*e.tpm
		en.ClockDrift = nt.ClockDriftUnknown
		unknown = e.guardTime(en)
	})

	assert.Equal(t, uint32(0), fresh)
	// 10 s at 20 + 30 ppm.
	assert.Equal(t, uint32(500), aged)
	assert.Equal(t, uint32(50*1000), capped)
	// 2 s at 20 + 10 ppm.
	assert.Equal(t, uint32(60), unknown)
}

func TestEngine_AdjustBackoff(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t)
	eui := dh1cf.EUI64{1, 2, 3, 4, 5, 6, 7, 8}

	tests := []struct {
		name    string
		entry   nt.Entry
		backoff uint32
		want    uint32
	}{
		{
			name:    "fixed neighbor untouched",
			entry:   nt.Entry{ChannelFunc: dh1cf.FunctionFixed, FixedChannel: 4},
			backoff: 3480,
			want:    3480,
		},
		{
			name:    "mid dwell untouched",
			entry:   nt.Entry{ChannelFunc: dh1cf.FunctionDH1, Dwell: 100, ClockDrift: 20},
			backoff: 10 * unitBackoffUs,
			want:    10 * unitBackoffUs,
		},
		{
			name: "near dwell end pushed into next slot",
			// 97 ms into a 100 ms dwell, guard is 4360 µs.
			entry:   nt.Entry{ChannelFunc: dh1cf.FunctionDH1, Dwell: 100, ClockDrift: 20, UFSI: 97 * 256 / 100},
			backoff: 1000,
			want:    1000 + 8*unitBackoffUs,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				got uint32
				err error
			)
			onEngine(t, e, func() {
				en := tt.entry
				en.RefTimestamp = e.clock.Now()
				got = tt.backoff
				_, err = e.adjustBackoff(en, &got)
				_ = e.txChannel(en, eui, 0, got)
			})
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_BroadcastTxParams(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t)
	onEngine(t, e, func() {
		_ = e.store.SetUint8(pib.BcDwellInterval, 100)
		_ = e.store.SetUint32(pib.BcInterval, 1000)
		_ = e.store.SetUint16(pib.BcFixedChannel, 9)
		e.h.bsStarted = true
	})

	tests := []struct {
		name    string
		bfio    uint32
		backoff uint32
		want    uint32
		wantErr error
	}{
		{name: "dwell start gets error margin", bfio: 0, backoff: 0, want: slotErrEstUs},
		{name: "inside dwell", bfio: 40, backoff: 5000, want: 5000},
		{name: "too close to dwell end", bfio: 97, backoff: 0, wantErr: ErrOutSlot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				ch  uint16
				got uint32
				err error
			)
			onEngine(t, e, func() {
				e.h.bfio = tt.bfio
				e.bcTimer.Cancel()
				e.bcTimer.Start(1)
				e.bcTimer.Cancel()
				got = tt.backoff
				ch, err = e.bcTxParams(&got)
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, uint16(9), ch)
		})
	}
}
