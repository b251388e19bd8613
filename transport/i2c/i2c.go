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

// Package i2c provides the radio co-processor link over an I2C bus
package i2c

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	fhmac "github.com/ZaparooProject/go-fhmac"
	"github.com/ZaparooProject/go-fhmac/internal/transport"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// DefaultAddress is the 7-bit address radio co-processor firmware
	// answers on.
	DefaultAddress = 0x24

	// Max clock frequency (400 kHz).
	maxClockFreq = 400 * physic.KiloHertz

	// The radio answers a read with a count byte followed by up to
	// maxChunk bytes of its output stream.
	maxChunk     = 64
	pollInterval = 2 * time.Millisecond

	defaultReadyTimeout = 2 * time.Second
)

type config struct {
	logger  *slog.Logger
	cca     *fhmac.CCAType
	timeout time.Duration
	addr    uint16
	probe   bool
}

// Option configures an I2C transport
type Option func(*config)

// WithAddress sets the radio's bus address
func WithAddress(addr uint16) Option {
	return func(c *config) {
		c.addr = addr
	}
}

// WithCCA fixes the channel access mode instead of taking the one the
// radio reports
func WithCCA(cca fhmac.CCAType) Option {
	return func(c *config) {
		c.cca = &cca
	}
}

// WithTimeout sets how long one command waits for its response
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithoutProbe skips the ping on open
func WithoutProbe() Option {
	return func(c *config) {
		c.probe = false
	}
}

// WithLogger sets the logger for link events
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// Transport implements fhmac.Radio for a co-processor on an I2C bus
type Transport struct {
	*transport.Link
	busName string
	info    fhmac.RadioInfo
	cca     fhmac.CCAType
}

// Open opens the I2C bus busName ("" picks the first one) and, unless
// WithoutProbe is given, waits for the radio to answer
func Open(ctx context.Context, busName string, opts ...Option) (*Transport, error) {
	cfg := config{addr: DefaultAddress, timeout: transport.DefaultTimeout, probe: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fhmac.NewTransportError("open", busName, err, fhmac.ErrorTypePermanent)
	}

	// Ignore error, continue with default speed
	_ = bus.SetSpeed(maxClockFreq)

	dev := &i2c.Dev{Addr: cfg.addr, Bus: bus}
	return newTransport(ctx, newBusConn(dev, bus), busName, cfg)
}

func newTransport(ctx context.Context, rw io.ReadWriteCloser, busName string, cfg config) (*Transport, error) {
	t := &Transport{busName: busName}
	if cfg.cca != nil {
		t.cca = *cfg.cca
	}
	t.Link = transport.NewLink(rw, transport.Config{
		Logger:  cfg.logger,
		Name:    busName,
		Type:    fhmac.RadioI2C,
		Timeout: cfg.timeout,
		Retries: transport.DefaultRetries,
		CCA:     t.cca,
	})
	if !cfg.probe {
		return t, nil
	}

	info, err := t.WaitReady(ctx, defaultReadyTimeout)
	if err != nil {
		_ = t.Link.Close()
		return nil, fmt.Errorf("radio on %s not responding: %w", busName, err)
	}
	t.info = info
	if cfg.cca == nil {
		t.cca = info.CCA
	}
	return t, nil
}

// CCAType implements fhmac.Radio
func (t *Transport) CCAType() fhmac.CCAType {
	return t.cca
}

// Info returns what the radio reported when it was opened
func (t *Transport) Info() fhmac.RadioInfo {
	return t.info
}

// BusName returns the bus the radio is on
func (t *Transport) BusName() string {
	return t.busName
}

// busConn turns the radio's polled register interface into a byte stream.
// Reads poll until the radio has output or the conn is closed.
type busConn struct {
	dev     conn.Conn
	closer  io.Closer
	done    chan struct{}
	pending []byte
	buf     [1 + maxChunk]byte
	txMu    sync.Mutex
	once    sync.Once
}

func newBusConn(dev conn.Conn, closer io.Closer) *busConn {
	return &busConn{dev: dev, closer: closer, done: make(chan struct{})}
}

func (b *busConn) Read(p []byte) (int, error) {
	for len(b.pending) == 0 {
		select {
		case <-b.done:
			return 0, io.EOF
		default:
		}

		b.txMu.Lock()
		err := b.dev.Tx(nil, b.buf[:])
		b.txMu.Unlock()
		if err != nil {
			return 0, fmt.Errorf("I2C read failed: %w", err)
		}

		n := int(b.buf[0])
		if n == 0 {
			select {
			case <-b.done:
				return 0, io.EOF
			case <-time.After(pollInterval):
			}
			continue
		}
		b.pending = append(b.pending, b.buf[1:1+min(n, maxChunk)]...)
	}

	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	return n, nil
}

func (b *busConn) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		end := min(written+maxChunk, len(p))
		b.txMu.Lock()
		err := b.dev.Tx(p[written:end], nil)
		b.txMu.Unlock()
		if err != nil {
			return written, fmt.Errorf("I2C write failed: %w", err)
		}
		written = end
	}
	return written, nil
}

func (b *busConn) Close() error {
	var err error
	b.once.Do(func() {
		close(b.done)
		if b.closer != nil {
			err = b.closer.Close()
		}
	})
	return err
}
