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

// Package frame implements the byte-stuffed framing spoken between the host
// and a radio co-processor, protected by a CRC-16/X.25 frame check sequence.
//
// A frame on the wire is
//
//	START | stuffed(cmd | seq | payload | fcs lo | fcs hi) | END
//
// where every START, END or ESC byte inside the body is sent as ESC
// followed by the byte XOR EscXor.
package frame

// Framing bytes.
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Frame size limits.
const (
	// MaxPayload covers a 2047 byte PSDU plus the transmit request header.
	MaxPayload = 2200
	headerLen  = 2
	fcsLen     = 2
	minBody    = headerLen + fcsLen
)

// Host to radio commands. The radio answers each with a response carrying
// the same sequence number and the command with RespFlag set.
const (
	CmdPing       = 0x01
	CmdSetChannel = 0x02
	CmdTransmit   = 0x03
	CmdRxEnable   = 0x04
	CmdRxDisable  = 0x05
	CmdOff        = 0x06

	RespFlag = 0x80
)

// Radio to host indications. They carry no meaningful sequence number.
const (
	IndTxDone     = 0x40
	IndRx         = 0x41
	IndRadioEvent = 0x42
	IndSFD        = 0x43
)

// Response status codes, the first payload byte of every response.
const (
	StatusOK      = 0x00
	StatusBusy    = 0x01
	StatusInvalid = 0x02
	StatusFailed  = 0x03
)

// IsResponse reports whether cmd is the response to a host command.
func IsResponse(cmd byte) bool {
	return cmd&RespFlag != 0
}
