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

package pib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Defaults(t *testing.T) {
	t.Parallel()
	s := New(DefaultMaxChannels)

	assert.Equal(t, uint32(4250), s.Uint32(BcInterval))
	assert.Equal(t, uint8(250), s.Uint8(UcDwellInterval))
	assert.Equal(t, uint8(20), s.Uint8(ClockDrift))
	assert.Equal(t, uint16(120), s.Uint16(NeighborValidTime))
	assert.Equal(t, InvalidEUI, s.EUI(TrackParentEUI))
	assert.Equal(t, uint16(129), s.UcNumChannels())
	assert.Equal(t, uint16(129), s.BcNumChannels())
	assert.Len(t, IDs(), 30)
}

func TestStore_ExcludedChannelsScenario(t *testing.T) {
	t.Parallel()
	s := New(DefaultMaxChannels)

	var changed []ID
	s.OnChange(func(id ID) { changed = append(changed, id) })

	mask := make([]byte, BitmapSize)
	mask[0] = 0x07
	require.NoError(t, s.Set(UcExcludedChannels, mask))

	got, err := s.Get(UcExcludedChannels)
	require.NoError(t, err)
	assert.Equal(t, mask, got)
	assert.Equal(t, uint16(126), s.UcNumChannels())
	assert.Equal(t, uint16(129), s.BcNumChannels())
	assert.Equal(t, []ID{UcExcludedChannels}, changed)

	bcMask := make([]byte, BitmapSize)
	bcMask[16] = 0xFF
	require.NoError(t, s.Set(BcExcludedChannels, bcMask))
	assert.Equal(t, uint16(128), s.BcNumChannels())
}

func TestStore_Set(t *testing.T) {
	t.Parallel()
	tests := []struct {
		wantErr error
		name    string
		data    []byte
		id      ID
	}{
		{name: "unknown id", id: 0x2100, data: []byte{1}, wantErr: ErrNotSupported},
		{name: "wrong length", id: UcDwellInterval, data: []byte{1, 2}, wantErr: ErrInvalidParam},
		{name: "below min", id: UcDwellInterval, data: []byte{14}, wantErr: ErrInvalidParam},
		{name: "above max", id: UcChannelFunction, data: []byte{4}, wantErr: ErrInvalidParam},
		{name: "in range", id: UcDwellInterval, data: []byte{15}},
		{name: "bc interval below min", id: BcInterval, data: u32(249), wantErr: ErrInvalidParam},
		{name: "bc interval max", id: BcInterval, data: u32(16777215)},
		{name: "valid time above max", id: NeighborValidTime, data: u16(601), wantErr: ErrInvalidParam},
		{name: "array without range", id: GTK2Hash, data: []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
		{name: "parent eui", id: TrackParentEUI, data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{name: "fixed channel in plan", id: UcFixedChannel, data: u16(128)},
		{name: "fixed channel beyond plan", id: BcFixedChannel, data: u16(129), wantErr: ErrInvalidParam},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := New(DefaultMaxChannels)
			err := s.Set(tt.id, tt.data)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			got, err := s.Get(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.data, got)
		})
	}
}

func TestStore_ReadOnly(t *testing.T) {
	t.Parallel()
	s := &Store{
		table: map[ID]attr{
			0x3000: {name: "Frozen", size: 1, min: 7, max: 7, def: u8(7)},
			0x3001: {name: "Free", size: 2},
		},
		maxChannels: DefaultMaxChannels,
	}
	s.Reset()

	for _, v := range []byte{0, 7, 255} {
		require.ErrorIs(t, s.Set(0x3000, []byte{v}), ErrReadOnly)
	}
	for _, v := range []uint16{0, 1, 0xFFFF} {
		require.NoError(t, s.Set(0x3001, u16(v)))
	}
}

func TestStore_ResetAndNetworkName(t *testing.T) {
	t.Parallel()
	s := New(DefaultMaxChannels)

	require.NoError(t, s.SetNetworkName("wisun-field"))
	assert.Equal(t, "wisun-field", s.NetworkName())
	require.ErrorIs(t, s.SetNetworkName(string(make([]byte, 33))), ErrInvalidParam)

	require.NoError(t, s.SetUint8(ClockDrift, 5))
	s.Reset()
	assert.Equal(t, "", s.NetworkName())
	assert.Equal(t, uint8(20), s.Uint8(ClockDrift))
}

func TestStore_GetReturnsCopy(t *testing.T) {
	t.Parallel()
	s := New(DefaultMaxChannels)
	got, err := s.Get(GTK0Hash)
	require.NoError(t, err)
	got[0] = 0xAA
	assert.Equal(t, byte(0), s.Bytes(GTK0Hash)[0])
}

func TestID_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "BcInterval", BcInterval.String())
	assert.Equal(t, "0x3FFF", ID(0x3FFF).String())
	id, ok := ParseID("NetName")
	assert.True(t, ok)
	assert.Equal(t, NetName, id)
}
