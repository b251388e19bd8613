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

package i2c

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"

	fhmac "github.com/ZaparooProject/go-fhmac"
	"github.com/ZaparooProject/go-fhmac/internal/frame"
	virt "github.com/ZaparooProject/go-fhmac/internal/testing"
)

// fakeDev is an I2C device whose register interface is backed by a
// virtual radio.
type fakeDev struct {
	radio   net.Conn
	failTx  error
	out     []byte
	reads   int
	mu      sync.Mutex
	writeMu sync.Mutex
}

func newFakeDev(t *testing.T, reply virt.ReplyFunc) (*fakeDev, *virt.VirtualRadio) {
	t.Helper()
	radio, host := virt.NewVirtualRadio(reply)
	d := &fakeDev{radio: host}
	go d.drain()
	t.Cleanup(func() { _ = radio.Close() })
	return d, radio
}

// drain collects what the radio sends so reads can hand it out in chunks.
func (d *fakeDev) drain() {
	buf := make([]byte, 32)
	for {
		n, err := d.radio.Read(buf)
		d.mu.Lock()
		d.out = append(d.out, buf[:n]...)
		d.mu.Unlock()
		if err != nil {
			return
		}
	}
}

func (*fakeDev) String() string { return "fake-radio" }

func (*fakeDev) Duplex() conn.Duplex { return conn.Half }

func (d *fakeDev) Tx(w, r []byte) error {
	d.mu.Lock()
	if d.failTx != nil {
		err := d.failTx
		d.mu.Unlock()
		return err
	}
	if r != nil {
		d.reads++
		clear(r)
		n := copy(r[1:], d.out)
		d.out = d.out[n:]
		r[0] = byte(n)
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	_, err := d.radio.Write(w)
	return err
}

func openFake(t *testing.T, dev *fakeDev, opts ...Option) (*Transport, error) {
	t.Helper()
	cfg := config{addr: DefaultAddress, timeout: 50 * time.Millisecond, probe: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	tr, err := newTransport(context.Background(), newBusConn(dev, nil), "i2c-1", cfg)
	if tr != nil {
		t.Cleanup(func() { _ = tr.Close() })
	}
	return tr, err
}

func pingReply(req frame.Frame, n int) []frame.Frame {
	if req.Cmd == frame.CmdPing {
		return []frame.Frame{virt.BuildPingResponse(req, 3, 1, byte(fhmac.CCALBT))}
	}
	return virt.AckAll(req, n)
}

func TestTransport_Probe(t *testing.T) {
	t.Parallel()

	dev, _ := newFakeDev(t, pingReply)
	tr, err := openFake(t, dev)
	require.NoError(t, err)

	assert.Equal(t, fhmac.RadioI2C, tr.Type())
	assert.Equal(t, fhmac.CCALBT, tr.CCAType())
	assert.Equal(t, "v3.1 lbt", tr.Info().String())
	assert.Equal(t, "i2c-1", tr.BusName())
}

func TestTransport_LongCommandIsChunked(t *testing.T) {
	t.Parallel()

	dev, radio := newFakeDev(t, pingReply)
	tr, err := openFake(t, dev, WithCCA(fhmac.CCACSMA))
	require.NoError(t, err)
	assert.Equal(t, fhmac.CCACSMA, tr.CCAType())

	payload := make([]byte, 3*maxChunk)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, tr.Transmit(fhmac.TxRequest{Payload: payload, Channel: 12}))

	sent := radio.Commands(frame.CmdTransmit)
	require.Len(t, sent, 1)
	assert.Equal(t, payload, sent[0].Payload[len(sent[0].Payload)-len(payload):])
}

func TestTransport_ContextCancellation(t *testing.T) {
	t.Parallel()

	dev, _ := newFakeDev(t, pingReply)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTransport(ctx, newBusConn(dev, nil), "i2c-1",
		config{addr: DefaultAddress, timeout: 50 * time.Millisecond, probe: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBusConn_ReadPollsUntilData(t *testing.T) {
	t.Parallel()

	dev := &fakeDev{}
	bc := newBusConn(dev, nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		dev.mu.Lock()
		dev.out = append(dev.out, 1, 2, 3)
		dev.mu.Unlock()
	}()

	p := make([]byte, 2)
	n, err := bc.Read(p)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, p[:n])

	// The rest of the chunk is kept for the next read.
	n, err = bc.Read(p)
	require.NoError(t, err)
	assert.Equal(t, []byte{3}, p[:n])

	dev.mu.Lock()
	assert.Greater(t, dev.reads, 1)
	dev.mu.Unlock()
}

func TestBusConn_Close(t *testing.T) {
	t.Parallel()

	bc := newBusConn(&fakeDev{}, nil)
	require.NoError(t, bc.Close())
	require.NoError(t, bc.Close())

	_, err := bc.Read(make([]byte, 4))
	assert.ErrorIs(t, err, io.EOF)
}

func TestBusConn_TxError(t *testing.T) {
	t.Parallel()

	busErr := errors.New("nack")
	bc := newBusConn(&fakeDev{failTx: busErr}, nil)

	_, err := bc.Read(make([]byte, 4))
	assert.ErrorIs(t, err, busErr)

	n, err := bc.Write([]byte{1, 2, 3})
	assert.ErrorIs(t, err, busErr)
	assert.Equal(t, 0, n)
}
