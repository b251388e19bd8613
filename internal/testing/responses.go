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

package testing

import (
	"encoding/binary"

	"github.com/ZaparooProject/go-fhmac/internal/frame"
)

// BuildResponse creates the OK response to req carrying body
func BuildResponse(req frame.Frame, body ...byte) frame.Frame {
	return frame.Frame{
		Cmd:     req.Cmd | frame.RespFlag,
		Seq:     req.Seq,
		Payload: append([]byte{frame.StatusOK}, body...),
	}
}

// BuildErrorResponse creates a response to req with a non-OK status
func BuildErrorResponse(req frame.Frame, status byte) frame.Frame {
	return frame.Frame{Cmd: req.Cmd | frame.RespFlag, Seq: req.Seq, Payload: []byte{status}}
}

// BuildPingResponse creates a ping response for firmware major.minor
// running the given channel access mode
func BuildPingResponse(req frame.Frame, major, minor, cca byte) frame.Frame {
	return BuildResponse(req, major, minor, cca)
}

// BuildTxDone creates a transmit completion indication
func BuildTxDone(status byte) frame.Frame {
	return frame.Frame{Cmd: frame.IndTxDone, Payload: []byte{status}}
}

// BuildRadioEvent creates a radio state indication
func BuildRadioEvent(ev byte) frame.Frame {
	return frame.Frame{Cmd: frame.IndRadioEvent, Payload: []byte{ev}}
}

// BuildSFD creates a start of frame delimiter indication
func BuildSFD(status byte) frame.Frame {
	return frame.Frame{Cmd: frame.IndSFD, Payload: []byte{status}}
}

// BuildRx creates a receive indication from src with the given flags and
// IE blocks
func BuildRx(src [8]byte, flags byte, headerIEs, payloadIEs []byte) frame.Frame {
	p := make([]byte, 0, 12+len(headerIEs)+len(payloadIEs))
	p = append(p, src[:]...)
	p = append(p, flags, byte(len(headerIEs)))
	p = append(p, headerIEs...)
	p = binary.LittleEndian.AppendUint16(p, uint16(len(payloadIEs)))
	p = append(p, payloadIEs...)
	return frame.Frame{Cmd: frame.IndRx, Payload: p}
}

// ChannelOf returns the channel carried by a set-channel command
func ChannelOf(req frame.Frame) uint16 {
	if req.Cmd != frame.CmdSetChannel || len(req.Payload) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(req.Payload)
}
