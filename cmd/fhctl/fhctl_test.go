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

package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fhmac "github.com/ZaparooProject/go-fhmac"
	"github.com/ZaparooProject/go-fhmac/config"
	"github.com/ZaparooProject/go-fhmac/detection"
	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/ie"
	"github.com/ZaparooProject/go-fhmac/nt"
	"github.com/ZaparooProject/go-fhmac/pib"
	"github.com/ZaparooProject/go-fhmac/polling"
	"github.com/ZaparooProject/go-fhmac/snapshot"
)

func TestParseSlots(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		lo, hi  uint16
		wantErr bool
	}{
		{name: "range", in: "3-9", lo: 3, hi: 9},
		{name: "single", in: "7", lo: 7, hi: 7},
		{name: "spaces", in: " 1 - 2", lo: 1, hi: 2},
		{name: "reversed", in: "9-3", wantErr: true},
		{name: "garbage", in: "a-b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			lo, hi, err := parseSlots(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.lo, lo)
			assert.Equal(t, tt.hi, hi)
		})
	}
}

func TestHashSequence(t *testing.T) {
	t.Parallel()

	eui := dh1cf.EUI64{0x00, 0x12, 0x4B, 0x00, 0x00, 0x00, 0x1C, 0x02}
	exclude, err := config.ExcludeMask([]string{"0-3"}, 129)
	require.NoError(t, err)

	seq, err := hashSequence(&eui, 0, 10, 14, exclude, 129)
	require.NoError(t, err)
	require.Len(t, seq, 5)
	for i, ch := range seq {
		assert.Equal(t, dh1cf.UnicastChannelNumber(uint16(10+i), eui, exclude, 129), ch)
		assert.GreaterOrEqual(t, ch, uint16(4))
	}

	seq, err = hashSequence(nil, 7, 0, 2, nil, 35)
	require.NoError(t, err)
	for i, ch := range seq {
		assert.Equal(t, dh1cf.BroadcastChannelNumber(uint16(i), 7, nil, 35), ch)
	}

	all, err := config.ExcludeMask([]string{"0-34"}, 35)
	require.NoError(t, err)
	_, err = hashSequence(nil, 7, 0, 2, all, 35)
	assert.ErrorIs(t, err, dh1cf.ErrNoFreeChannel)
}

func testCodec(t *testing.T) (*ie.Codec, *pib.Store) {
	t.Helper()
	store := pib.New(ie.DefaultPlan.NumChannels)
	return ie.NewCodec(ie.StaticSource{Store: store}, ie.DefaultPlan), store
}

func TestBuildAndDecodePayloadIEs(t *testing.T) {
	t.Parallel()

	c, store := testCodec(t)
	require.NoError(t, store.SetNetworkName("field-net"))
	require.NoError(t, store.SetUint16(pib.PANVersion, 42))

	data, err := buildIEs(c, []string{"us", "NetName", "panver"}, ie.FrameData)
	require.NoError(t, err)

	decoded, err := decodeIEs(c, data, false)
	require.NoError(t, err)
	require.Len(t, decoded, 3)
	assert.Equal(t, "US-IE", decoded[0].name)
	assert.Contains(t, decoded[0].detail, "func=fixed")
	assert.Equal(t, decodedIE{name: "NETNAME-IE", detail: `"field-net"`}, decoded[1])
	assert.Equal(t, decodedIE{name: "PANVER-IE", detail: "42"}, decoded[2])
}

func TestBuildAndDecodeHeaderIEs(t *testing.T) {
	t.Parallel()

	c, _ := testCodec(t)
	data, err := buildIEs(c, []string{"ut"}, ie.FramePANConfig)
	require.NoError(t, err)

	decoded, err := decodeIEs(c, data, true)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, "UT-IE", decoded[0].name)
	assert.Equal(t, "frame=pan-config ufsi=0", decoded[0].detail)
}

func TestBuildIEs_Errors(t *testing.T) {
	t.Parallel()

	c, _ := testCodec(t)
	_, err := buildIEs(c, []string{"us", "ut"}, ie.FrameData)
	assert.ErrorContains(t, err, "cannot be built together")

	_, err = buildIEs(c, []string{"bogus"}, ie.FrameData)
	assert.ErrorContains(t, err, "unknown IE")

	_, err = decodeIEs(c, []byte{0x00}, false)
	assert.ErrorIs(t, err, ie.ErrInvalidFormat)
}

func TestParseFrameType(t *testing.T) {
	t.Parallel()

	ft, err := parseFrameType("eapol")
	require.NoError(t, err)
	assert.Equal(t, ie.FrameEAPOL, ft)

	_, err = parseFrameType("beacon")
	assert.Error(t, err)
}

func TestFormatAttr(t *testing.T) {
	t.Parallel()

	mask := make([]byte, pib.BitmapSize)
	mask[0] = 0x0F
	mask[1] = 0x01

	tests := []struct {
		name string
		want string
		data []byte
		id   pib.ID
	}{
		{name: "no parent", id: pib.TrackParentEUI, data: pib.InvalidEUI[:], want: "none"},
		{name: "parent", id: pib.TrackParentEUI, data: []byte{0, 0x12, 0x4B, 0, 0, 0, 0x1C, 0x02},
			want: "00:12:4b:00:00:00:1c:02"},
		{name: "mask", id: pib.UcExcludedChannels, data: mask, want: "0-3,8"},
		{name: "empty mask", id: pib.BcExcludedChannels, data: make([]byte, pib.BitmapSize), want: "none"},
		{name: "netname", id: pib.NetName, data: append([]byte("abc"), 0, 0), want: `"abc"`},
		{name: "u8", id: pib.UcDwellInterval, data: []byte{250}, want: "250"},
		{name: "u16", id: pib.NeighborValidTime, data: []byte{0x78, 0x00}, want: "120"},
		{name: "u32", id: pib.BcInterval, data: []byte{0x9A, 0x10, 0, 0}, want: "4250"},
		{name: "gtk", id: pib.GTK1Hash, data: []byte{1, 2, 3, 4, 5, 6, 7, 8}, want: "0102030405060708"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, formatAttr(tt.id, tt.data, 129))
		})
	}
}

func TestAttrRows_Ordered(t *testing.T) {
	t.Parallel()

	store := pib.New(129)
	rows := attrRows(store.Snapshot(), 129)
	require.Len(t, rows, len(pib.IDs()))
	assert.Equal(t, []string{"0x2000", "TrackParentEUI", "8", "none"}, rows[0])
	assert.Equal(t, "NumMaxTempNodes", rows[len(rows)-1][1])
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	m, err := parseMode("FULL")
	require.NoError(t, err)
	assert.Equal(t, detection.Full, m)

	_, err = parseMode("aggressive")
	assert.Error(t, err)
}

func TestFormatMetadata(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "bus=1 firmware=1.2", formatMetadata(map[string]string{"firmware": "1.2", "bus": "1"}))
	assert.Empty(t, formatMetadata(nil))
}

func TestLogBuffer(t *testing.T) {
	t.Parallel()

	b := newLogBuffer(3)
	_, _ = b.Write([]byte("one\ntwo\n"))
	_, _ = b.Write([]byte("three\n"))
	_, _ = b.Write([]byte("four\n"))

	assert.Equal(t, []string{"two", "three", "four"}, b.Tail(10))
	assert.Equal(t, []string{"four"}, b.Tail(1))
}

type fakeNode struct {
	states []polling.NeighborState
}

func (f fakeNode) neighbors() []polling.NeighborState { return f.states }
func (fakeNode) engineMetrics() fhmac.Metrics { return fhmac.Metrics{UnicastHops: 12, TxFailed: 1} }
func (fakeNode) monitorMetrics() polling.Metrics { return polling.Metrics{PollCycles: 3} }
func (fakeNode) state() fhmac.State { return fhmac.StateRx }

func TestMonitorModel(t *testing.T) {
	t.Parallel()

	now := time.Now()
	n := fakeNode{states: []polling.NeighborState{{
		LastUpdate: now.Add(-5 * time.Second),
		Presence:   polling.PresenceFresh,
		Neighbor: nt.Neighbor{
			EUI:   dh1cf.EUI64{1, 2, 3, 4, 5, 6, 7, 8},
			Entry: nt.Entry{ChannelFunc: dh1cf.FunctionDH1, NumChannels: 129, Dwell: 250},
		},
	}}}
	logs := newLogBuffer(10)
	_, _ = logs.Write([]byte("level=INFO msg=\"neighbor joined\"\n"))

	m := newMonitorModel("node", n, logs)
	require.Len(t, m.table.Rows(), 1)
	assert.Equal(t, table.Row{"01:02:03:04:05:06:07:08", "hopping", "dh1cf 129ch 250ms", "fresh", "5s"},
		m.table.Rows()[0])

	view := m.View()
	assert.Contains(t, view, "neighbor joined")
	assert.Contains(t, view, "01:02:03:04:05:06:07:08")

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.True(t, updated.(monitorModel).quitting)
	assert.Equal(t, "Shutting down...\n", updated.View())
}

func TestNode_SavesAndRestores(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "node.snap")
	cfg := &config.Config{}
	cfg.Node.EUI = "00:12:4b:00:00:00:1c:02"
	cfg.Snapshot.Path = path
	require.NoError(t, config.Validate(cfg))
	config.Normalize(cfg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	n, err := startNode(context.Background(), cfg, fhmac.NewMockRadio(fhmac.CCACSMA), logger, nodeHooks{})
	require.NoError(t, err)
	require.NoError(t, n.engine.PIB().SetNetworkName("saved-net"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, n.run(ctx, nil))

	snap, err := snapshot.Load(path)
	require.NoError(t, err)
	assert.Equal(t, dh1cf.EUI64{0x00, 0x12, 0x4B, 0x00, 0x00, 0x00, 0x1C, 0x02}, snap.EUI)

	// A restart picks the saved attributes back up.
	again, err := startNode(context.Background(), cfg, fhmac.NewMockRadio(fhmac.CCACSMA), logger, nodeHooks{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = again.engine.Close() })
	assert.Equal(t, "saved-net", again.engine.PIB().NetworkName())
}

func TestNode_RadioLost(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	config.Normalize(cfg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	n, err := startNode(context.Background(), cfg, fhmac.NewMockRadio(fhmac.CCALBT), logger, nodeHooks{})
	require.NoError(t, err)

	done := make(chan struct{})
	close(done)
	err = n.run(context.Background(), done)
	assert.ErrorContains(t, err, "radio connection lost")
}
