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

// Package uart provides the radio co-processor link over a serial port
package uart

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	fhmac "github.com/ZaparooProject/go-fhmac"
	"github.com/ZaparooProject/go-fhmac/internal/transport"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the rate radio co-processor firmware ships with.
	DefaultBaudRate = 115200

	defaultReadyTimeout = 2 * time.Second
)

type config struct {
	logger       *slog.Logger
	cca          *fhmac.CCAType
	baud         int
	timeout      time.Duration
	readyTimeout time.Duration
	retries      int
	probe        bool
}

// Option configures a UART transport
type Option func(*config)

// WithBaudRate sets the serial line rate
func WithBaudRate(baud int) Option {
	return func(c *config) {
		c.baud = baud
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

// WithRetries sets how often a lost command is repeated
func WithRetries(n int) Option {
	return func(c *config) {
		c.retries = n
	}
}

// WithReadyTimeout sets how long Open waits for the radio to answer a ping
func WithReadyTimeout(d time.Duration) Option {
	return func(c *config) {
		c.readyTimeout = d
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

func newConfig(opts []Option) config {
	c := config{
		baud:         DefaultBaudRate,
		timeout:      transport.DefaultTimeout,
		retries:      transport.DefaultRetries,
		readyTimeout: defaultReadyTimeout,
		probe:        true,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Transport implements fhmac.Radio for a co-processor on a serial port
type Transport struct {
	*transport.Link
	portName string
	info     fhmac.RadioInfo
	cca      fhmac.CCAType
}

// Open opens portName and, unless WithoutProbe is given, waits for the
// radio to answer
func Open(ctx context.Context, portName string, opts ...Option) (*Transport, error) {
	cfg := newConfig(opts)
	if cfg.baud <= 0 {
		return nil, fmt.Errorf("%w: baud rate %d", fhmac.ErrInvalidParameter, cfg.baud)
	}

	mode := &serial.Mode{
		BaudRate: cfg.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fhmac.NewTransportError("open", portName, err, fhmac.ErrorTypePermanent)
	}

	// USB CDC ACM radios only talk once DTR is asserted.
	_ = port.SetDTR(true)
	_ = port.SetRTS(true)

	return newTransport(ctx, port, portName, cfg)
}

// New opens portName with a background context
func New(portName string, opts ...Option) (*Transport, error) {
	return Open(context.Background(), portName, opts...)
}

func newTransport(ctx context.Context, rw io.ReadWriteCloser, portName string, cfg config) (*Transport, error) {
	t := &Transport{portName: portName}
	if cfg.cca != nil {
		t.cca = *cfg.cca
	}
	t.Link = transport.NewLink(rw, transport.Config{
		Logger:  cfg.logger,
		Name:    portName,
		Type:    fhmac.RadioUART,
		Timeout: cfg.timeout,
		Retries: cfg.retries,
		CCA:     t.cca,
	})
	if !cfg.probe {
		return t, nil
	}

	info, err := t.WaitReady(ctx, cfg.readyTimeout)
	if err != nil {
		_ = t.Link.Close()
		return nil, fmt.Errorf("radio on %s not responding: %w", portName, err)
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

// PortName returns the serial port the radio is on
func (t *Transport) PortName() string {
	return t.portName
}
