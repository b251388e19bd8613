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
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/ie"
	virt "github.com/ZaparooProject/go-fhmac/internal/testing"
	"github.com/ZaparooProject/go-fhmac/nt"
	"github.com/ZaparooProject/go-fhmac/pib"
)

const testTick = 10 * time.Microsecond

var (
	testEUI = dh1cf.EUI64{0x00, 0x12, 0x4B, 0x00, 0x14, 0xF9, 0x1C, 0x01}
	peerEUI = dh1cf.EUI64{0x00, 0x12, 0x4B, 0x00, 0x14, 0xF9, 0x1C, 0x02}
)

func newTestEngineWith(t *testing.T, radio *MockRadio, opts ...Option) (*Engine, *virt.VirtualClock) {
	t.Helper()
	vc := virt.NewVirtualClock(testTick)
	base := []Option{
		WithClock(vc),
		WithEUI(testEUI),
		WithRand(rand.New(rand.NewPCG(1, 2))),
	}
	e, err := New(radio, append(base, opts...)...)
	require.NoError(t, err)
	vc.Settle = func() { _ = e.do(context.Background(), func() {}) }
	t.Cleanup(func() { _ = e.Close() })
	return e, vc
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *MockRadio, *virt.VirtualClock) {
	t.Helper()
	radio := NewMockRadio(CCACSMA)
	e, vc := newTestEngineWith(t, radio, opts...)
	return e, radio, vc
}

// onEngine runs fn on the engine goroutine.
func onEngine(t *testing.T, e *Engine, fn func()) {
	t.Helper()
	require.NoError(t, e.do(context.Background(), fn))
}

// settle waits until everything posted so far has been handled.
func settle(t *testing.T, e *Engine) {
	t.Helper()
	onEngine(t, e, func() {})
}

type confirmLog struct {
	list []Confirm
	mu   sync.Mutex
}

func (c *confirmLog) add(cf Confirm) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = append(c.list, cf)
}

func (c *confirmLog) all() []Confirm {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Confirm(nil), c.list...)
}

func setPIB(t *testing.T, e *Engine, id pib.ID, v uint32) {
	t.Helper()
	var err error
	switch pib.Size(id) {
	case 1:
		err = e.PIB().SetUint8(id, uint8(v))
	case 2:
		err = e.PIB().SetUint16(id, uint16(v))
	default:
		err = e.PIB().SetUint32(id, v)
	}
	require.NoError(t, err)
}

// peerFrame builds what a neighbor configured by setup would put on air.
func peerFrame(t *testing.T, setup func(*pib.Store), payload ie.Bitmap, header ie.Bitmap) RxFrame {
	t.Helper()
	store := pib.New(ie.DefaultPlan.NumChannels)
	if setup != nil {
		setup(store)
	}
	codec := ie.NewCodec(ie.StaticSource{Store: store}, ie.DefaultPlan)
	rx := RxFrame{Src: peerEUI}
	if payload != 0 {
		rx.PayloadIEs = codec.Gen(payload, ie.FrameData, &ie.Info{})
		require.NotEmpty(t, rx.PayloadIEs)
	}
	if header != 0 {
		rx.HeaderIEs = codec.Gen(header, ie.FrameData, &ie.Info{})
		require.NotEmpty(t, rx.HeaderIEs)
	}
	return rx
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		radio   Radio
		name    string
		opts    []Option
		wantErr bool
	}{
		{name: "Valid_MockRadio", radio: NewMockRadio(CCACSMA)},
		{name: "Nil_Radio", radio: nil, wantErr: true},
		{name: "Bad_Mailbox", radio: NewMockRadio(CCACSMA), opts: []Option{WithMailboxSize(0)}, wantErr: true},
		{name: "Bad_Tick", radio: NewMockRadio(CCACSMA), opts: []Option{WithTickPeriod(3 * time.Microsecond)}, wantErr: true},
		{name: "Bad_PHY", radio: NewMockRadio(CCACSMA), opts: []Option{WithPHY(PHY{SymbolRate: 75})}, wantErr: true},
		{
			name:    "Store_Plan_Mismatch",
			radio:   NewMockRadio(CCACSMA),
			opts:    []Option{WithStore(pib.New(64))},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e, err := New(tt.radio, tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, e)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StateHop, e.State())
			assert.NotNil(t, tt.radio.(*MockRadio).Listener())
			require.NoError(t, e.Close())
			require.NoError(t, e.Close())
		})
	}
}

func TestEngine_ClosedCalls(t *testing.T) {
	t.Parallel()

	e, err := New(NewMockRadio(CCACSMA))
	require.NoError(t, err)
	require.NoError(t, e.Close())

	ctx := context.Background()
	tests := []struct {
		call func() error
		name string
	}{
		{name: "Start", call: func() error { return e.Start(ctx) }},
		{name: "Reset", call: func() error { return e.Reset(ctx) }},
		{name: "StartBS", call: func() error { return e.StartBS(ctx) }},
		{name: "Send", call: func() error { return e.Send(ctx, Frame{Type: FrameUnicast}) }},
		{name: "StopAsync", call: func() error { return e.StopAsync(ctx) }},
		{name: "EDFE", call: func() error { return e.EDFE(ctx, EventEDFEFin) }},
		{name: "SetPIB", call: func() error { return e.SetPIB(ctx, pib.UcDwellInterval, []byte{40}) }},
		{name: "AddDevice", call: func() error { return e.AddDevice(ctx, peerEUI, 1) }},
		{name: "DelDevice", call: func() error { return e.DelDevice(ctx, 1) }},
		{name: "TxParams", call: func() error {
			p, err := e.TxParams(ctx, Frame{Type: FrameUnicast, Dst: peerEUI}, 0)
			assert.Zero(t, p)
			return err
		}},
		{name: "RemainingDwell", call: func() error {
			rem, err := e.RemainingDwell(ctx, peerEUI)
			assert.Zero(t, rem)
			return err
		}},
		{name: "GenIEs", call: func() error {
			out, err := e.GenIEs(ctx, ie.BitUT, ie.FrameData, ie.Info{})
			assert.Nil(t, out)
			return err
		}},
		{name: "Neighbors", call: func() error {
			out, err := e.Neighbors(ctx)
			assert.Nil(t, out)
			return err
		}},
		{name: "RestoreNeighbors", call: func() error {
			n, err := e.RestoreNeighbors(ctx, []nt.Neighbor{{EUI: peerEUI}})
			assert.Zero(t, n)
			return err
		}},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, tt.call(), ErrClosed, tt.name)
	}
	// Reports after close are dropped.
	e.CompleteTx(TxSuccess)
}

func TestEngine_CallsGiveUpWhileBusy(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t)
	require.NoError(t, e.Start(context.Background()))
	e.CompleteRx(peerFrame(t, nil, ie.BitUS, ie.BitUT))
	settle(t, e)

	busy := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	t.Cleanup(unblock)
	e.post(func() {
		close(busy)
		<-release
	})
	<-busy

	// Each call is queued behind the stuck handler and then abandoned.
	tests := []struct {
		call func(ctx context.Context) error
		name string
	}{
		{name: "Neighbors", call: func(ctx context.Context) error {
			out, err := e.Neighbors(ctx)
			assert.Nil(t, out)
			return err
		}},
		{name: "RemainingDwell", call: func(ctx context.Context) error {
			rem, err := e.RemainingDwell(ctx, peerEUI)
			assert.Zero(t, rem)
			return err
		}},
		{name: "TxParams", call: func(ctx context.Context) error {
			p, err := e.TxParams(ctx, Frame{Type: FrameUnicast, Dst: peerEUI}, 0)
			assert.Zero(t, p)
			return err
		}},
		{name: "SetPIB", call: func(ctx context.Context) error {
			return e.SetPIB(ctx, pib.UcDwellInterval, []byte{40})
		}},
	}
	for i, tt := range tests {
		ctx, cancel := context.WithCancel(context.Background())
		errc := make(chan error, 1)
		go func() { errc <- tt.call(ctx) }()
		require.Eventually(t, func() bool { return len(e.mailbox) == i+1 },
			time.Second, time.Millisecond, tt.name)
		cancel()
		select {
		case err := <-errc:
			require.ErrorIs(t, err, context.Canceled, tt.name)
		case <-time.After(time.Second):
			t.Fatalf("%s did not return after cancel", tt.name)
		}
	}

	// The abandoned requests still run once the engine is free.
	unblock()
	settle(t, e)
	assert.Equal(t, uint8(40), e.PIB().Uint8(pib.UcDwellInterval))
	nbrs, err := e.Neighbors(context.Background())
	require.NoError(t, err)
	require.Len(t, nbrs, 1)
	assert.Equal(t, peerEUI, nbrs[0].EUI)
}

func TestEngine_NeighborChangesChannelFunction(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t)
	require.NoError(t, e.Start(context.Background()))

	e.CompleteRx(peerFrame(t, func(s *pib.Store) {
		require.NoError(t, s.SetUint16(pib.UcFixedChannel, 7))
	}, ie.BitUS, ie.BitUT))
	settle(t, e)
	nbrs, err := e.Neighbors(context.Background())
	require.NoError(t, err)
	require.Len(t, nbrs, 1)
	assert.Equal(t, nt.KindFixed, nbrs[0].Kind)

	e.CompleteRx(peerFrame(t, func(s *pib.Store) {
		require.NoError(t, s.SetUint8(pib.UcChannelFunction, uint8(dh1cf.FunctionDH1)))
	}, ie.BitUS, ie.BitUT))
	settle(t, e)
	nbrs, err = e.Neighbors(context.Background())
	require.NoError(t, err)
	require.Len(t, nbrs, 1)
	assert.Equal(t, nt.KindHopping, nbrs[0].Kind)
	assert.Equal(t, dh1cf.FunctionDH1, nbrs[0].ChannelFunc)

	rem, err := e.RemainingDwell(context.Background(), peerEUI)
	require.NoError(t, err)
	assert.NotZero(t, rem)
}

func TestEngine_UnicastHopping(t *testing.T) {
	t.Parallel()

	e, radio, clock := newTestEngine(t)
	setPIB(t, e, pib.UcChannelFunction, uint32(dh1cf.FunctionDH1))
	setPIB(t, e, pib.UcDwellInterval, 100)
	require.NoError(t, e.Start(context.Background()))

	clock.AdvanceMs(4 * 100)

	var want []uint16
	mask := make([]byte, pib.BitmapSize)
	for slot := uint16(0); slot <= 4; slot++ {
		want = append(want, dh1cf.UnicastChannelNumber(slot, testEUI, mask, pib.DefaultMaxChannels))
	}
	assert.Equal(t, want, radio.Channels())
	assert.Equal(t, int64(4), e.Metrics().UnicastHops)

	var ufsi uint32
	clock.AdvanceMs(30)
	onEngine(t, e, func() { ufsi = e.currentUfsi() })
	assert.Equal(t, uint32(430), ufsi)
}

func TestEngine_SleepyDeviceDoesNotHop(t *testing.T) {
	t.Parallel()

	e, radio, clock := newTestEngine(t, WithSleepy())
	setPIB(t, e, pib.UcFixedChannel, 11)
	require.NoError(t, e.Start(context.Background()))

	clock.AdvanceMs(1000)
	assert.Equal(t, []uint16{11}, radio.Channels())
	assert.Equal(t, int64(0), e.Metrics().UnicastHops)
}

func TestEngine_CoordinatorBroadcastDwell(t *testing.T) {
	t.Parallel()

	e, radio, clock := newTestEngine(t, WithCoordinator())
	setPIB(t, e, pib.UcChannelFunction, uint32(dh1cf.FunctionDH1))
	setPIB(t, e, pib.BcChannelFunction, uint32(dh1cf.FunctionDH1))
	setPIB(t, e, pib.BroadcastSchedID, 0x1234)
	setPIB(t, e, pib.UcDwellInterval, 250)
	setPIB(t, e, pib.BcDwellInterval, 100)
	setPIB(t, e, pib.BcInterval, 1000)
	require.NoError(t, e.Start(context.Background()))

	clock.AdvanceMs(1100)

	mask := make([]byte, pib.BitmapSize)
	uc := func(slot uint16) uint16 {
		return dh1cf.UnicastChannelNumber(slot, testEUI, mask, pib.DefaultMaxChannels)
	}
	bc := func(slot uint16) uint16 {
		return dh1cf.BroadcastChannelNumber(slot, 0x1234, mask, pib.DefaultMaxChannels)
	}
	// The unicast hop at 1000 ms falls in the broadcast dwell and is taken
	// when the dwell ends.
	assert.Equal(t, []uint16{bc(0), uc(0), uc(1), uc(2), uc(3), bc(1), uc(4)}, radio.Channels())
	assert.Equal(t, []string{"rx-disable", "rx-enable", "rx-disable"}, radio.Calls())
	assert.Equal(t, int64(1), e.Metrics().BroadcastHops)

	var (
		bfio uint32
		slot uint16
	)
	clock.AdvanceMs(50)
	onEngine(t, e, func() { bfio, slot = e.currentBfio() })
	assert.Equal(t, uint32(150), bfio)
	assert.Equal(t, uint16(1), slot)
}

func TestEngine_SendUnicastToFixedNeighbor(t *testing.T) {
	t.Parallel()

	confirms := &confirmLog{}
	e, radio, _ := newTestEngine(t, WithConfirm(confirms.add))
	require.NoError(t, e.Start(context.Background()))

	rx := peerFrame(t, func(s *pib.Store) {
		require.NoError(t, s.SetUint16(pib.UcFixedChannel, 7))
	}, ie.BitUS, ie.BitUT)
	e.CompleteRx(rx)
	settle(t, e)

	nbrs, err := e.Neighbors(context.Background())
	require.NoError(t, err)
	require.Len(t, nbrs, 1)
	assert.Equal(t, peerEUI, nbrs[0].EUI)
	assert.Equal(t, dh1cf.FunctionFixed, nbrs[0].ChannelFunc)

	require.NoError(t, e.Send(context.Background(), Frame{
		Type:      FrameUnicast,
		Dst:       peerEUI,
		Handle:    5,
		Payload:   []byte("hello"),
		HeaderIEs: ie.BitUT,
	}))
	sent := radio.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, uint16(7), sent[0].Channel)
	assert.Equal(t, TxCSMA, sent[0].Mode)
	assert.NotEmpty(t, sent[0].HeaderIEs)
	assert.Equal(t, uint32(0), sent[0].Backoff%unitBackoffUs)

	e.RadioState(RadioTxStart)
	settle(t, e)
	assert.Equal(t, StateTx, e.State())

	e.CompleteTx(TxSuccess)
	settle(t, e)
	assert.Equal(t, StateHop, e.State())

	got := confirms.all()
	require.Len(t, got, 1)
	assert.Equal(t, TxSuccess, got[0].Status)
	assert.Equal(t, uint8(5), got[0].Frame.Handle)
	assert.Equal(t, int64(1), e.Metrics().TxConfirmed)
}

func TestEngine_SendUnicastToHoppingNeighbor(t *testing.T) {
	t.Parallel()

	e, radio, _ := newTestEngine(t)
	require.NoError(t, e.Start(context.Background()))

	e.CompleteRx(peerFrame(t, func(s *pib.Store) {
		require.NoError(t, s.SetUint8(pib.UcChannelFunction, uint8(dh1cf.FunctionDH1)))
	}, ie.BitUS, ie.BitUT))
	require.NoError(t, e.Send(context.Background(), Frame{Type: FrameUnicast, Dst: peerEUI}))

	sent := radio.Sent()
	require.Len(t, sent, 1)
	mask := make([]byte, pib.BitmapSize)
	assert.Equal(t, dh1cf.UnicastChannelNumber(0, peerEUI, mask, pib.DefaultMaxChannels), sent[0].Channel)

	rem, err := e.RemainingDwell(context.Background(), peerEUI)
	require.NoError(t, err)
	assert.Equal(t, uint32(250*1000), rem)
}

func TestEngine_SendFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr    error
		name       string
		frame      Frame
		wantStatus TxStatus
	}{
		{
			name:       "unknown neighbor",
			frame:      Frame{Type: FrameUnicast, Dst: peerEUI},
			wantStatus: TxAborted,
			wantErr:    ErrNoEntryInNT,
		},
		{
			name:       "broadcast before broadcast schedule",
			frame:      Frame{Type: FrameBroadcast},
			wantStatus: TxBadState,
		},
		{
			name:       "unsupported frame type",
			frame:      Frame{Type: FrameType(0x77)},
			wantStatus: TxAborted,
			wantErr:    ErrInvalidFrameType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			confirms := &confirmLog{}
			e, radio, _ := newTestEngine(t, WithConfirm(confirms.add))
			require.NoError(t, e.Start(context.Background()))
			require.NoError(t, e.Send(context.Background(), tt.frame))

			assert.Empty(t, radio.Sent())
			got := confirms.all()
			require.Len(t, got, 1)
			assert.Equal(t, tt.wantStatus, got[0].Status)
			if tt.wantErr != nil {
				assert.ErrorIs(t, got[0].Err, tt.wantErr)
			}
		})
	}
}

func TestEngine_QueueFull(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t, WithQueueSize(1, 1))

	onEngine(t, e, func() { e.cur = &Frame{Type: FrameUnicast} })
	require.NoError(t, e.Send(context.Background(), Frame{Type: FrameUnicast, Dst: peerEUI}))
	assert.ErrorIs(t, e.Send(context.Background(), Frame{Type: FrameUnicast, Dst: peerEUI}), ErrQueueFull)
	require.NoError(t, e.Send(context.Background(), Frame{Type: FrameUnicast, Dst: peerEUI, Indirect: true}))
}

func TestEngine_NoTimeRequeuesUntilNextHop(t *testing.T) {
	t.Parallel()

	e, radio, clock := newTestEngine(t)
	setPIB(t, e, pib.UcChannelFunction, uint32(dh1cf.FunctionDH1))
	setPIB(t, e, pib.UcDwellInterval, 100)
	require.NoError(t, e.Start(context.Background()))

	e.CompleteRx(peerFrame(t, func(s *pib.Store) {
		require.NoError(t, s.SetUint16(pib.UcFixedChannel, 3))
	}, ie.BitUS, ie.BitUT))
	require.NoError(t, e.Send(context.Background(), Frame{Type: FrameUnicast, Dst: peerEUI}))
	require.Len(t, radio.Sent(), 1)

	e.CompleteTx(TxNoTime)
	settle(t, e)
	assert.Len(t, radio.Sent(), 1)
	assert.Equal(t, int64(1), e.Metrics().TxNoTime)

	clock.AdvanceMs(100)
	assert.Len(t, radio.Sent(), 2)
}

func TestEngine_RadioTransmitError(t *testing.T) {
	t.Parallel()

	confirms := &confirmLog{}
	radio := NewMockRadio(CCACSMA)
	radio.TransmitFunc = func(TxRequest) error { return ErrTransportWrite }
	e, _ := newTestEngineWith(t, radio, WithConfirm(confirms.add))
	require.NoError(t, e.Start(context.Background()))

	e.CompleteRx(peerFrame(t, nil, ie.BitUS, ie.BitUT))
	require.NoError(t, e.Send(context.Background(), Frame{Type: FrameUnicast, Dst: peerEUI}))

	got := confirms.all()
	require.Len(t, got, 1)
	assert.Equal(t, TxNoResources, got[0].Status)
}

func asyncList(channels ...uint16) []byte {
	list := make([]byte, pib.BitmapSize)
	for _, ch := range channels {
		list[ch>>3] |= 1 << (ch & 7)
	}
	return list
}

func TestEngine_AsyncWalk(t *testing.T) {
	t.Parallel()

	confirms := &confirmLog{}
	e, radio, _ := newTestEngine(t, WithConfirm(confirms.add))
	require.NoError(t, e.Start(context.Background()))

	require.NoError(t, e.Send(context.Background(), Frame{
		Type:        FrameAsync,
		ChannelList: asyncList(3, 5, 9),
		PayloadIEs:  ie.BitUS,
	}))
	assert.Equal(t, StateAsync, e.State())

	for range 3 {
		e.CompleteTx(TxSuccess)
		settle(t, e)
	}

	var chans []uint16
	for _, req := range radio.Sent() {
		assert.Equal(t, TxNoCSMA, req.Mode)
		assert.Equal(t, uint16(lbtCCARAT), req.CCATime)
		chans = append(chans, req.Channel)
	}
	assert.Equal(t, []uint16{3, 5, 9}, chans)
	assert.Equal(t, StateHop, e.State())
	got := confirms.all()
	require.Len(t, got, 1)
	assert.Equal(t, TxSuccess, got[0].Status)
	assert.Equal(t, int64(3), e.Metrics().AsyncChannels)
}

func TestEngine_StopAsync(t *testing.T) {
	t.Parallel()

	confirms := &confirmLog{}
	e, radio, _ := newTestEngine(t, WithConfirm(confirms.add))
	require.NoError(t, e.Start(context.Background()))

	assert.ErrorIs(t, e.StopAsync(context.Background()), ErrNotInAsync)

	require.NoError(t, e.Send(context.Background(), Frame{Type: FrameAsync, ChannelList: asyncList(1, 2, 3)}))
	require.NoError(t, e.StopAsync(context.Background()))
	e.CompleteTx(TxSuccess)
	settle(t, e)

	assert.Len(t, radio.Sent(), 1)
	assert.Equal(t, StateHop, e.State())
	require.Len(t, confirms.all(), 1)
}

func TestEngine_AsyncChannelAccessFailureMovesOn(t *testing.T) {
	t.Parallel()

	e, radio, _ := newTestEngine(t)
	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Send(context.Background(), Frame{Type: FrameAsync, ChannelList: asyncList(4, 6)}))

	e.CompleteTx(TxChannelAccessFailure)
	settle(t, e)
	require.Len(t, radio.Sent(), 2)
	assert.Equal(t, uint16(6), radio.Sent()[1].Channel)

	e.CompleteTx(TxNoAck)
	settle(t, e)
	assert.Equal(t, StateHop, e.State())
}

func TestEngine_LBTMinTxOff(t *testing.T) {
	t.Parallel()

	radio := NewMockRadio(CCALBT)
	e, clock := newTestEngineWith(t, radio)
	require.NoError(t, e.Start(context.Background()))

	onEngine(t, e, func() { e.ring.add(5, e.clock.Now()) })
	clock.AdvanceMs(10)

	var (
		same, other, noConfirm, delay uint32
	)
	onEngine(t, e, func() {
		f := &Frame{Type: FrameUnicast}
		same = e.minTxOffRemaining(f, 5, 0)
		other = e.minTxOffRemaining(f, 6, 0)
		noConfirm = e.minTxOffRemaining(&Frame{Type: FrameUnicast, NoConfirm: true}, 5, 0)
		delay = e.asyncDelay()
	})
	assert.Equal(t, uint32(40), same)
	assert.Equal(t, uint32(0), other)
	assert.Equal(t, uint32(0), noConfirm)
	assert.Equal(t, uint32(4100), delay)

	require.NoError(t, e.Send(context.Background(), Frame{Type: FrameAsync, ChannelList: asyncList(2)}))
	assert.Empty(t, radio.Sent())
	assert.Equal(t, StateHop, e.State())

	clock.AdvanceMs(41)
	require.Len(t, radio.Sent(), 1)
	assert.Equal(t, StateAsync, e.State())
	assert.Equal(t, int64(1), e.Metrics().LBTDeferrals)
}

func TestEngine_LBTPushesBackoff(t *testing.T) {
	t.Parallel()

	radio := NewMockRadio(CCALBT)
	e, _ := newTestEngineWith(t, radio)
	require.NoError(t, e.Start(context.Background()))
	e.CompleteRx(peerFrame(t, func(s *pib.Store) {
		require.NoError(t, s.SetUint16(pib.UcFixedChannel, 5))
	}, ie.BitUS, ie.BitUT))

	var (
		p   TxParams
		err error
	)
	onEngine(t, e, func() {
		e.ring.add(5, e.clock.Now())
		p, err = e.txParams(&Frame{Type: FrameUnicast, Dst: peerEUI}, 0)
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(5), p.Channel)
	assert.GreaterOrEqual(t, p.Backoff, uint32(minTxOffMs*1000))
}

func TestEngine_AdoptsParentBroadcastTiming(t *testing.T) {
	t.Parallel()

	e, radio, clock := newTestEngine(t)
	require.NoError(t, e.Start(context.Background()))

	rx := peerFrame(t, func(s *pib.Store) {
		require.NoError(t, s.SetUint32(pib.BcInterval, 1000))
		require.NoError(t, s.SetUint8(pib.BcDwellInterval, 100))
		require.NoError(t, s.SetUint16(pib.BroadcastSchedID, 0x4242))
		require.NoError(t, s.SetUint16(pib.BcFixedChannel, 12))
	}, ie.BitUS|ie.BitBS, ie.BitUT|ie.BitBT)

	clock.AdvanceMs(30)
	e.CompleteRx(rx)
	settle(t, e)

	assert.Equal(t, uint32(1000), e.PIB().Uint32(pib.BcInterval))
	assert.Equal(t, uint16(0x4242), e.PIB().Uint16(pib.BroadcastSchedID))
	assert.Equal(t, int64(1), e.Metrics().BTIEAdopted)

	var bfio uint32
	onEngine(t, e, func() { bfio, _ = e.currentBfio() })
	assert.Equal(t, uint32(30), bfio)

	clock.AdvanceMs(70)
	assert.Contains(t, radio.Calls(), "rx-disable")

	// A broadcast frame waits for the next dwell.
	require.NoError(t, e.Send(context.Background(), Frame{Type: FrameBroadcast}))
	assert.Empty(t, radio.Sent())
	clock.AdvanceMs(900)
	sent := radio.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, uint16(12), sent[0].Channel)
}

func TestEngine_IgnoresBroadcastTimingFromOthers(t *testing.T) {
	t.Parallel()

	e, _, clock := newTestEngine(t)
	require.NoError(t, e.PIB().SetEUI(pib.TrackParentEUI, testEUI))
	require.NoError(t, e.Start(context.Background()))

	clock.AdvanceMs(30)
	e.CompleteRx(peerFrame(t, func(s *pib.Store) {
		require.NoError(t, s.SetUint32(pib.BcInterval, 1000))
	}, ie.BitUS|ie.BitBS, ie.BitUT|ie.BitBT))
	settle(t, e)

	assert.Equal(t, uint32(4250), e.PIB().Uint32(pib.BcInterval))
	assert.Equal(t, int64(0), e.Metrics().BTIEAdopted)
}

func TestEngine_DataRequestReleasesIndirect(t *testing.T) {
	t.Parallel()

	e, radio, clock := newTestEngine(t, WithCoordinator())
	require.NoError(t, e.Start(context.Background()))

	require.NoError(t, e.Send(context.Background(), Frame{Type: FrameUnicast, Dst: peerEUI, Indirect: true}))
	assert.Empty(t, radio.Sent())

	// Leave the broadcast dwell the coordinator starts in.
	clock.AdvanceMs(250)
	assert.Empty(t, radio.Sent())

	// A data request without schedule IEs records the channel it came on.
	onEngine(t, e, func() { e.h.lastChannel = 17 })
	e.CompleteRx(RxFrame{Src: peerEUI, DataRequest: true})
	settle(t, e)

	sent := radio.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, uint16(17), sent[0].Channel)
}

func TestEngine_RxDrops(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t)
	require.NoError(t, e.Start(context.Background()))

	e.CompleteRx(RxFrame{Src: peerEUI, Err: ErrFrameCorrupted})
	e.CompleteRx(RxFrame{Src: peerEUI})
	e.CompleteRx(peerFrame(t, nil, ie.BitUS, ie.BitBT))
	settle(t, e)

	assert.Equal(t, int64(3), e.Metrics().RxDropped)
	nbrs, err := e.Neighbors(context.Background())
	require.NoError(t, err)
	assert.Empty(t, nbrs)
}

func TestEngine_SFDDrivesReception(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t)
	require.NoError(t, e.Start(context.Background()))

	e.SFD(SFDDetected)
	settle(t, e)
	assert.Equal(t, StateRx, e.State())

	// A second SFD while receiving only refreshes the timestamp.
	e.SFD(SFDDetected)
	e.SFD(SFDFrameReceived)
	settle(t, e)
	assert.Equal(t, StateHop, e.State())

	e.SFD(SFDFrameReceived)
	settle(t, e)
	assert.Equal(t, StateHop, e.State())
}

func TestEngine_CCABusyEndsTx(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t)
	e.RadioState(RadioTxStart)
	settle(t, e)
	assert.Equal(t, StateTx, e.State())

	e.RadioState(RadioPushToQueue)
	settle(t, e)
	assert.Equal(t, StateTx, e.State())

	e.RadioState(RadioCCABusy)
	settle(t, e)
	assert.Equal(t, StateHop, e.State())
}

func TestEngine_EDFE(t *testing.T) {
	t.Parallel()

	confirms := &confirmLog{}
	e, radio, _ := newTestEngine(t, WithConfirm(confirms.add))
	require.NoError(t, e.Start(context.Background()))
	e.CompleteRx(peerFrame(t, nil, ie.BitUS, ie.BitUT))

	require.NoError(t, e.Send(context.Background(), Frame{Type: FrameEDFE, Dst: peerEUI}))
	assert.Equal(t, StateEDFE, e.State())
	require.Len(t, radio.Sent(), 1)
	assert.Equal(t, TxCSMA, radio.Sent()[0].Mode)

	require.NoError(t, e.EDFE(context.Background(), EventEDFERcv))
	require.Len(t, radio.Sent(), 2)
	assert.Equal(t, TxNoCSMA, radio.Sent()[1].Mode)

	require.NoError(t, e.EDFE(context.Background(), EventEDFEFin))
	assert.Equal(t, StateHop, e.State())
	got := confirms.all()
	require.Len(t, got, 1)
	assert.Equal(t, TxSuccess, got[0].Status)

	assert.ErrorIs(t, e.EDFE(context.Background(), EventTxDone), ErrInvalidParameter)
}

func TestEngine_Reset(t *testing.T) {
	t.Parallel()

	confirms := &confirmLog{}
	e, _, clock := newTestEngine(t, WithConfirm(confirms.add), WithQueueSize(4, 4))
	setPIB(t, e, pib.UcDwellInterval, 50)
	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Send(context.Background(), Frame{Type: FrameUnicast, Dst: peerEUI, Indirect: true}))

	require.NoError(t, e.Reset(context.Background()))
	assert.Equal(t, uint8(250), e.PIB().Uint8(pib.UcDwellInterval))
	require.Len(t, confirms.all(), 1)
	assert.Equal(t, TxAborted, confirms.all()[0].Status)

	clock.AdvanceMs(1000)
	assert.Equal(t, int64(0), e.Metrics().UnicastHops)
}

func TestEngine_SetPIB(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t)
	err := e.SetPIB(context.Background(), pib.UcDwellInterval, []byte{5})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidParamPIB)
	assert.ErrorIs(t, err, pib.ErrInvalidParam)

	require.NoError(t, e.SetPIB(context.Background(), pib.UcDwellInterval, []byte{40}))
	assert.Equal(t, uint8(40), e.PIB().Uint8(pib.UcDwellInterval))
}

func TestEngine_GenIEs(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t)
	_, err := e.GenIEs(context.Background(), ie.BitUT|ie.BitUS, ie.FrameData, ie.Info{})
	require.ErrorIs(t, err, ErrInvalidParameter)

	hie, err := e.GenIEs(context.Background(), ie.BitUT, ie.FrameData, ie.Info{})
	require.NoError(t, err)
	assert.NotEmpty(t, hie)
}

func TestEngine_Devices(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t)
	require.NoError(t, e.Start(context.Background()))
	assert.ErrorIs(t, e.AddDevice(context.Background(), peerEUI, 3), ErrNoEntryInNT)
	assert.ErrorIs(t, e.DelDevice(context.Background(), 3), ErrNoEntryInNT)
}
