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

import "fmt"

// Radio is the driver the engine tunes and transmits through. It can be a
// radio co-processor behind UART or I2C, or a mock for testing.
type Radio interface {
	// SetChannel retunes the receiver.
	SetChannel(channel uint16) error

	// Transmit starts sending a frame. It returns once the request is
	// accepted; the outcome arrives later through Listener.CompleteTx.
	Transmit(req TxRequest) error

	// RxEnable and RxDisable switch the receiver on and off around a
	// broadcast dwell.
	RxEnable() error
	RxDisable() error

	// Off powers the receiver down between slots on a sleepy device.
	Off() error

	// CCAType returns the channel access mode of the PHY.
	CCAType() CCAType

	// Close releases the driver.
	Close() error

	// Type returns the radio type
	Type() RadioType
}

// Listener receives the radio's asynchronous reports. Engine implements it.
// A radio must not call a Listener from inside one of its own Radio methods.
type Listener interface {
	CompleteTx(status TxStatus)
	CompleteRx(rx RxFrame)
	RadioState(ev RadioEvent)
	SFD(status SFDStatus)
}

// ListenerSetter is implemented by radios that report events on their own.
// The engine registers itself when it is built.
type ListenerSetter interface {
	SetListener(l Listener)
}

// RadioType represents the type of radio link
type RadioType string

const (
	// RadioUART is a radio co-processor on a serial port.
	RadioUART RadioType = "uart"
	// RadioI2C is a radio co-processor on an I2C bus.
	RadioI2C RadioType = "i2c"
	// RadioWebSocket is a radio co-processor bridged over a WebSocket.
	RadioWebSocket RadioType = "ws"
	// RadioMock is a mock radio for testing
	RadioMock RadioType = "mock"
)

// RadioInfo is what a radio co-processor reports about itself.
type RadioInfo struct {
	Major uint8
	Minor uint8
	CCA   CCAType
}

func (i RadioInfo) String() string {
	return fmt.Sprintf("v%d.%d %s", i.Major, i.Minor, i.CCA)
}

// CCAType is the channel access mode of a PHY.
type CCAType uint8

const (
	// CCACSMA is plain CSMA-CA.
	CCACSMA CCAType = iota
	// CCALBT is listen before talk, as required in some regulatory domains.
	CCALBT
)

func (c CCAType) String() string {
	if c == CCALBT {
		return "lbt"
	}
	return "csma"
}
