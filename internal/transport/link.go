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

package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	fhmac "github.com/ZaparooProject/go-fhmac"
	"github.com/ZaparooProject/go-fhmac/internal/frame"
)

const (
	// DefaultTimeout is how long one command attempt waits for its response.
	DefaultTimeout = 100 * time.Millisecond
	// DefaultRetries is how often a lost or busy command is sent again.
	DefaultRetries = 2

	retryDelay     = 5 * time.Millisecond
	readyPoll      = 20 * time.Millisecond
	eventQueueSize = 64
	readBufSize    = 256
)

var (
	_ fhmac.Radio          = (*Link)(nil)
	_ fhmac.ListenerSetter = (*Link)(nil)
)

// Config describes the link to one radio.
type Config struct {
	Logger *slog.Logger
	// Name is the port or bus the radio sits on, used in errors and logs.
	Name    string
	Type    fhmac.RadioType
	Timeout time.Duration
	Retries int
	CCA     fhmac.CCAType
}

// Link speaks the co-processor protocol over a byte stream. Commands are
// matched to responses by sequence number. Indications are handed to the
// registered Listener from a goroutine of their own, never from inside a
// Radio method.
type Link struct {
	rw        io.ReadWriteCloser
	logger    *slog.Logger
	listener  fhmac.Listener
	pending   map[byte]chan frame.Frame
	events    chan frame.Frame
	done      chan struct{}
	closeErr  error
	cfg       Config
	wg        sync.WaitGroup
	mu        sync.Mutex
	wmu       sync.Mutex
	closeOnce sync.Once
	seq       byte
}

// NewLink starts a link over rw. The link owns rw and closes it on Close.
func NewLink(rw io.ReadWriteCloser, cfg Config) *Link {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	l := &Link{
		rw:      rw,
		cfg:     cfg,
		logger:  cfg.Logger.With(slog.String("radio", cfg.Name)),
		pending: make(map[byte]chan frame.Frame),
		events:  make(chan frame.Frame, eventQueueSize),
		done:    make(chan struct{}),
	}
	l.wg.Add(2)
	go l.readLoop()
	go l.dispatch()
	return l
}

// SetListener implements fhmac.ListenerSetter.
func (l *Link) SetListener(lis fhmac.Listener) {
	l.mu.Lock()
	l.listener = lis
	l.mu.Unlock()
}

// Ping asks the radio for its firmware version and channel access mode.
func (l *Link) Ping(ctx context.Context) (fhmac.RadioInfo, error) {
	resp, err := l.request(ctx, frame.CmdPing, nil, l.cfg.Retries)
	if err != nil {
		return fhmac.RadioInfo{}, err
	}
	return DecodeInfo(resp)
}

// WaitReady pings the radio until it answers or timeout passes. A radio
// coming out of reset may take a while to open its port.
func (l *Link) WaitReady(ctx context.Context, timeout time.Duration) (fhmac.RadioInfo, error) {
	return TimeoutRetry(ctx, timeout, readyPoll, func() (fhmac.RadioInfo, bool, error) {
		info, err := l.Ping(ctx)
		switch {
		case err == nil:
			return info, false, nil
		case fhmac.IsRetryable(err):
			return info, true, nil
		default:
			return info, false, err
		}
	})
}

// SetChannel implements fhmac.Radio.
func (l *Link) SetChannel(channel uint16) error {
	_, err := l.request(context.Background(), frame.CmdSetChannel,
		binary.LittleEndian.AppendUint16(nil, channel), l.cfg.Retries)
	return err
}

// Transmit implements fhmac.Radio. It is sent once: after a lost response
// the radio may already be on air.
func (l *Link) Transmit(req fhmac.TxRequest) error {
	payload, err := EncodeTransmit(req)
	if err != nil {
		return err
	}
	_, err = l.request(context.Background(), frame.CmdTransmit, payload, 0)
	return err
}

// RxEnable implements fhmac.Radio.
func (l *Link) RxEnable() error {
	_, err := l.request(context.Background(), frame.CmdRxEnable, nil, l.cfg.Retries)
	return err
}

// RxDisable implements fhmac.Radio.
func (l *Link) RxDisable() error {
	_, err := l.request(context.Background(), frame.CmdRxDisable, nil, l.cfg.Retries)
	return err
}

// Off implements fhmac.Radio.
func (l *Link) Off() error {
	_, err := l.request(context.Background(), frame.CmdOff, nil, l.cfg.Retries)
	return err
}

// CCAType implements fhmac.Radio.
func (l *Link) CCAType() fhmac.CCAType {
	return l.cfg.CCA
}

// Type implements fhmac.Radio.
func (l *Link) Type() fhmac.RadioType {
	return l.cfg.Type
}

// Close stops the link and closes the underlying stream.
func (l *Link) Close() error {
	l.shutdown(nil)
	l.wg.Wait()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeErr
}

// Done is closed once the link has stopped.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// shutdown stops the link once. cause is the read error that killed it,
// nil for an orderly Close.
func (l *Link) shutdown(cause error) {
	l.closeOnce.Do(func() {
		close(l.done)
		err := l.rw.Close()
		l.mu.Lock()
		l.closeErr = err
		l.pending = make(map[byte]chan frame.Frame)
		l.mu.Unlock()
		if cause != nil {
			l.logger.Error("radio link failed", slog.Any("err", cause))
		}
	})
}

func (l *Link) closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *Link) request(ctx context.Context, cmd byte, payload []byte, retries int) ([]byte, error) {
	op := cmdName(cmd)
	cfg := RetryConfig{
		Description: op,
		Port:        l.cfg.Name,
		MaxRetries:  retries,
		RetryDelay:  retryDelay,
		OnRetry: func(attempt int, cause error) {
			l.logger.Debug("retrying radio command",
				slog.String("cmd", op), slog.Int("attempt", attempt), slog.Any("err", cause))
		},
	}
	return WithRetry(ctx, cfg, func() ([]byte, bool, error) {
		return l.attempt(ctx, cmd, payload)
	})
}

func (l *Link) attempt(ctx context.Context, cmd byte, payload []byte) ([]byte, bool, error) {
	seq, ch, err := l.register()
	if err != nil {
		return nil, false, err
	}
	defer l.unregister(seq)

	wire, err := frame.Encode(frame.Frame{Cmd: cmd, Seq: seq, Payload: payload})
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", fhmac.ErrInvalidParameter, err)
	}
	if err := l.write(wire); err != nil {
		if l.closed() {
			return nil, false, fhmac.ErrTransportClosed
		}
		return nil, true, fmt.Errorf("%w: %w", fhmac.ErrTransportWrite, err)
	}

	timer := time.NewTimer(l.cfg.Timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return checkResponse(cmd, resp)
	case <-timer.C:
		return nil, true, fhmac.ErrTransportTimeout
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case <-l.done:
		return nil, false, fhmac.ErrTransportClosed
	}
}

func checkResponse(cmd byte, resp frame.Frame) ([]byte, bool, error) {
	if resp.Cmd != cmd|frame.RespFlag || len(resp.Payload) == 0 {
		return nil, true, fmt.Errorf("%w: response 0x%02X to 0x%02X", fhmac.ErrFrameCorrupted, resp.Cmd, cmd)
	}
	switch resp.Payload[0] {
	case frame.StatusOK:
		return resp.Payload[1:], false, nil
	case frame.StatusBusy:
		return nil, true, fhmac.ErrRadioBusy
	case frame.StatusInvalid:
		return nil, false, fmt.Errorf("%w: rejected by radio", fhmac.ErrInvalidParameter)
	default:
		return nil, false, fmt.Errorf("%w: status 0x%02X", fhmac.ErrCommunicationFailed, resp.Payload[0])
	}
}

func (l *Link) register() (byte, chan frame.Frame, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed() {
		return 0, nil, fhmac.ErrTransportClosed
	}
	for range 256 {
		l.seq++
		if _, busy := l.pending[l.seq]; !busy {
			ch := make(chan frame.Frame, 1)
			l.pending[l.seq] = ch
			return l.seq, ch, nil
		}
	}
	return 0, nil, fmt.Errorf("%w: no free sequence number", fhmac.ErrRadioBusy)
}

func (l *Link) unregister(seq byte) {
	l.mu.Lock()
	delete(l.pending, seq)
	l.mu.Unlock()
}

func (l *Link) write(b []byte) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	for len(b) > 0 {
		n, err := l.rw.Write(b)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		b = b[n:]
	}
	return nil
}

func (l *Link) readLoop() {
	defer l.wg.Done()

	dec := frame.NewDecoder()
	buf := make([]byte, readBufSize)
	dropped := func(err error) {
		l.logger.Warn("dropped radio frame", slog.Any("err", err))
	}
	for {
		n, err := l.rw.Read(buf)
		for _, f := range dec.Write(buf[:n], dropped) {
			l.route(f)
		}
		if err != nil {
			if l.closed() {
				return
			}
			if errors.Is(err, io.EOF) {
				err = fhmac.ErrTransportClosed
			}
			l.shutdown(fhmac.NewTransportError("read", l.cfg.Name, err, fhmac.ErrorTypePermanent))
			return
		}
		if l.closed() {
			return
		}
	}
}

func (l *Link) route(f frame.Frame) {
	if frame.IsResponse(f.Cmd) {
		l.mu.Lock()
		ch, ok := l.pending[f.Seq]
		delete(l.pending, f.Seq)
		l.mu.Unlock()
		if !ok {
			l.logger.Debug("late radio response", slog.String("cmd", cmdName(f.Cmd)), slog.Int("seq", int(f.Seq)))
			return
		}
		ch <- f
		return
	}
	select {
	case l.events <- f:
	case <-l.done:
	}
}

func (l *Link) dispatch() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			return
		case f := <-l.events:
			l.deliver(f)
		}
	}
}

func (l *Link) deliver(f frame.Frame) {
	l.mu.Lock()
	lis := l.listener
	l.mu.Unlock()
	if lis == nil {
		l.logger.Debug("no listener for radio indication", slog.String("ind", cmdName(f.Cmd)))
		return
	}

	if f.Cmd == frame.IndRx {
		rx, err := DecodeRx(f.Payload)
		if err != nil {
			l.logger.Warn("bad rx indication", slog.Any("err", err))
			return
		}
		lis.CompleteRx(rx)
		return
	}

	if len(f.Payload) != 1 {
		l.logger.Warn("bad radio indication",
			slog.String("ind", cmdName(f.Cmd)), slog.Int("len", len(f.Payload)))
		return
	}
	switch v := f.Payload[0]; f.Cmd {
	case frame.IndTxDone:
		lis.CompleteTx(fhmac.TxStatus(v))
	case frame.IndRadioEvent:
		lis.RadioState(fhmac.RadioEvent(v))
	case frame.IndSFD:
		lis.SFD(fhmac.SFDStatus(v))
	default:
		l.logger.Warn("unknown radio indication", slog.String("ind", cmdName(f.Cmd)))
	}
}

func cmdName(cmd byte) string {
	switch cmd &^ frame.RespFlag {
	case frame.CmdPing:
		return "ping"
	case frame.CmdSetChannel:
		return "set-channel"
	case frame.CmdTransmit:
		return "transmit"
	case frame.CmdRxEnable:
		return "rx-enable"
	case frame.CmdRxDisable:
		return "rx-disable"
	case frame.CmdOff:
		return "off"
	case frame.IndTxDone:
		return "tx-done"
	case frame.IndRx:
		return "rx"
	case frame.IndRadioEvent:
		return "radio-event"
	case frame.IndSFD:
		return "sfd"
	default:
		return fmt.Sprintf("0x%02X", cmd)
	}
}
