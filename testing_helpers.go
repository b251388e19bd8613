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
	"sync"
)

// MockRadio is a Radio that records what the engine asks of it. Reports are
// fed back by the test through the engine's Listener methods.
type MockRadio struct {
	TransmitFunc func(req TxRequest) error
	listener     Listener
	channels     []uint16
	sent         []TxRequest
	calls        []string
	mu           sync.Mutex
	cca          CCAType
	channel      uint16
	rxOn         bool
	closed       bool
}

// NewMockRadio returns a mock radio using the given channel access mode.
func NewMockRadio(cca CCAType) *MockRadio {
	return &MockRadio{cca: cca}
}

// SetChannel records the channel.
func (m *MockRadio) SetChannel(channel uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.channel = channel
	m.channels = append(m.channels, channel)
	return nil
}

// Transmit records the request and calls TransmitFunc when set.
func (m *MockRadio) Transmit(req TxRequest) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.sent = append(m.sent, req)
	fn := m.TransmitFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return nil
}

// RxEnable records the call.
func (m *MockRadio) RxEnable() error {
	m.record("rx-enable")
	m.mu.Lock()
	m.rxOn = true
	m.mu.Unlock()
	return nil
}

// RxDisable records the call.
func (m *MockRadio) RxDisable() error {
	m.record("rx-disable")
	m.mu.Lock()
	m.rxOn = false
	m.mu.Unlock()
	return nil
}

// Off records the call.
func (m *MockRadio) Off() error {
	m.record("off")
	return nil
}

func (m *MockRadio) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

// CCAType returns the mode given to NewMockRadio.
func (m *MockRadio) CCAType() CCAType {
	return m.cca
}

// Close marks the radio closed.
func (m *MockRadio) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Type returns RadioMock
func (*MockRadio) Type() RadioType {
	return RadioMock
}

// SetListener keeps the listener so tests can reach it through Listener.
func (m *MockRadio) SetListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = l
}

// Listener returns the registered listener.
func (m *MockRadio) Listener() Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listener
}

// Channel returns the last channel set.
func (m *MockRadio) Channel() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channel
}

// Channels returns every channel set, in order.
func (m *MockRadio) Channels() []uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint16(nil), m.channels...)
}

// Sent returns every transmit request, in order.
func (m *MockRadio) Sent() []TxRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TxRequest(nil), m.sent...)
}

// Calls returns the receiver control calls, in order.
func (m *MockRadio) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// RxOn reports whether the receiver was last enabled.
func (m *MockRadio) RxOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rxOn
}
