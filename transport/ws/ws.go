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

// Package ws provides the radio co-processor link over a WebSocket bridge,
// for radios attached to another host
package ws

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	fhmac "github.com/ZaparooProject/go-fhmac"
	"github.com/ZaparooProject/go-fhmac/internal/transport"
	"github.com/gorilla/websocket"
)

const (
	// DefaultTimeout is the per command timeout. A bridge adds a network
	// round trip to every command.
	DefaultTimeout = 500 * time.Millisecond

	defaultHandshakeTimeout = 10 * time.Second
	defaultReadyTimeout     = 5 * time.Second
	closeGrace              = time.Second
)

// ErrConnectionClosed is returned when reading from a closed WebSocket
var ErrConnectionClosed = errors.New("websocket connection closed")

type config struct {
	logger           *slog.Logger
	cca              *fhmac.CCAType
	username         string
	password         string
	timeout          time.Duration
	readyTimeout     time.Duration
	handshakeTimeout time.Duration
	retries          int
	skipVerify       bool
	probe            bool
}

// Option configures a WebSocket transport
type Option func(*config)

// WithBasicAuth sends HTTP basic credentials with the handshake
func WithBasicAuth(username, password string) Option {
	return func(c *config) {
		c.username = username
		c.password = password
	}
}

// WithInsecureSkipVerify accepts any server certificate on wss:// URLs
func WithInsecureSkipVerify() Option {
	return func(c *config) {
		c.skipVerify = true
	}
}

// WithHandshakeTimeout bounds the opening handshake
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *config) {
		c.handshakeTimeout = d
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

// WithReadyTimeout sets how long Dial waits for the radio to answer a ping
func WithReadyTimeout(d time.Duration) Option {
	return func(c *config) {
		c.readyTimeout = d
	}
}

// WithoutProbe skips the ping after the handshake
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
		timeout:          DefaultTimeout,
		retries:          transport.DefaultRetries,
		readyTimeout:     defaultReadyTimeout,
		handshakeTimeout: defaultHandshakeTimeout,
		probe:            true,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Transport implements fhmac.Radio for a co-processor behind a bridge
type Transport struct {
	*transport.Link
	url  string
	info fhmac.RadioInfo
	cca  fhmac.CCAType
}

// Dial connects to the bridge at wsURL and, unless WithoutProbe is given,
// waits for the radio behind it to answer
func Dial(ctx context.Context, wsURL string, opts ...Option) (*Transport, error) {
	cfg := newConfig(opts)

	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %w", fhmac.ErrInvalidParameter, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("%w: unsupported URL scheme %q (use ws:// or wss://)",
			fhmac.ErrInvalidParameter, u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.handshakeTimeout}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: cfg.skipVerify, //nolint:gosec // opt-in for bridges with self-signed certificates
		}
	}

	headers := http.Header{}
	if cfg.username != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(cfg.username + ":" + cfg.password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("HTTP %d: %w", resp.StatusCode, err)
		}
		return nil, fhmac.NewTransportError("dial", u.Host, err, fhmac.ErrorTypePermanent)
	}

	return newTransport(ctx, &wsConn{conn: conn}, wsURL, cfg)
}

func newTransport(ctx context.Context, rw io.ReadWriteCloser, wsURL string, cfg config) (*Transport, error) {
	t := &Transport{url: wsURL}
	if cfg.cca != nil {
		t.cca = *cfg.cca
	}
	t.Link = transport.NewLink(rw, transport.Config{
		Logger:  cfg.logger,
		Name:    wsURL,
		Type:    fhmac.RadioWebSocket,
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
		return nil, fmt.Errorf("radio behind %s not responding: %w", wsURL, err)
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

// Info returns what the radio reported when the bridge was dialed
func (t *Transport) Info() fhmac.RadioInfo {
	return t.info
}

// URL returns the bridge address
func (t *Transport) URL() string {
	return t.url
}

// wsConn turns binary WebSocket messages into a byte stream. The link
// reads from one goroutine and serializes its writes.
type wsConn struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool
}

func (w *wsConn) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}

	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}

		// Text frames carry bridge chatter, not link bytes
		if messageType != websocket.BinaryMessage {
			continue
		}

		w.buf = data
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *wsConn) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	return w.conn.Close()
}
