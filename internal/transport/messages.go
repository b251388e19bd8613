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
	"encoding/binary"
	"fmt"

	fhmac "github.com/ZaparooProject/go-fhmac"
	"github.com/ZaparooProject/go-fhmac/dh1cf"
)

const (
	// dst, channel, backoff, cca time, type, handle, mode, header IE length
	txFixedLen = 8 + 2 + 4 + 2 + 1 + 1 + 1 + 1
	// src, flags, header IE length
	rxFixedLen = 8 + 1 + 1
	ieLenField = 2
)

// Rx indication flags.
const (
	RxFlagAck         = 0x01
	RxFlagDataRequest = 0x02
	RxFlagCRCError    = 0x04
)

func corrupted(what string, n int) error {
	return fmt.Errorf("%w: %s of %d bytes", fhmac.ErrFrameCorrupted, what, n)
}

// EncodeTransmit packs a transmit request.
func EncodeTransmit(req fhmac.TxRequest) ([]byte, error) {
	if len(req.HeaderIEs) > 0xFF || len(req.PayloadIEs) > 0xFFFF {
		return nil, fmt.Errorf("%w: IE lengths %d/%d", fhmac.ErrInvalidParameter,
			len(req.HeaderIEs), len(req.PayloadIEs))
	}
	out := make([]byte, 0, txFixedLen+len(req.HeaderIEs)+ieLenField+len(req.PayloadIEs)+len(req.Payload))
	out = append(out, req.Dst[:]...)
	out = binary.LittleEndian.AppendUint16(out, req.Channel)
	out = binary.LittleEndian.AppendUint32(out, req.Backoff)
	out = binary.LittleEndian.AppendUint16(out, req.CCATime)
	out = append(out, byte(req.Type), req.Handle, byte(req.Mode), byte(len(req.HeaderIEs)))
	out = append(out, req.HeaderIEs...)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(req.PayloadIEs)))
	out = append(out, req.PayloadIEs...)
	return append(out, req.Payload...), nil
}

// DecodeTransmit unpacks a transmit request.
func DecodeTransmit(b []byte) (fhmac.TxRequest, error) {
	var req fhmac.TxRequest
	if len(b) < txFixedLen+ieLenField {
		return req, corrupted("transmit request", len(b))
	}
	copy(req.Dst[:], b[:8])
	req.Channel = binary.LittleEndian.Uint16(b[8:])
	req.Backoff = binary.LittleEndian.Uint32(b[10:])
	req.CCATime = binary.LittleEndian.Uint16(b[14:])
	req.Type = fhmac.FrameType(b[16])
	req.Handle = b[17]
	req.Mode = fhmac.TxMode(b[18])

	hie, rest, ok := cutIEs(b[19:], 1)
	if !ok {
		return req, corrupted("transmit request", len(b))
	}
	pie, rest, ok := cutIEs(rest, ieLenField)
	if !ok {
		return req, corrupted("transmit request", len(b))
	}
	req.HeaderIEs, req.PayloadIEs, req.Payload = hie, pie, rest
	return req, nil
}

// cutIEs splits off a length prefixed IE block whose length field is
// width bytes wide.
func cutIEs(b []byte, width int) (ies, rest []byte, ok bool) {
	if len(b) < width {
		return nil, nil, false
	}
	var n int
	if width == 1 {
		n = int(b[0])
	} else {
		n = int(binary.LittleEndian.Uint16(b))
	}
	b = b[width:]
	if len(b) < n {
		return nil, nil, false
	}
	return clone(b[:n]), b[n:], true
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}

// EncodeRx packs a receive indication. A frame carrying Err is flagged as
// failed.
func EncodeRx(rx fhmac.RxFrame) ([]byte, error) {
	if len(rx.HeaderIEs) > 0xFF || len(rx.PayloadIEs) > 0xFFFF {
		return nil, fmt.Errorf("%w: IE lengths %d/%d", fhmac.ErrInvalidParameter,
			len(rx.HeaderIEs), len(rx.PayloadIEs))
	}
	var flags byte
	if rx.Ack {
		flags |= RxFlagAck
	}
	if rx.DataRequest {
		flags |= RxFlagDataRequest
	}
	if rx.Err != nil {
		flags |= RxFlagCRCError
	}
	out := make([]byte, 0, rxFixedLen+len(rx.HeaderIEs)+ieLenField+len(rx.PayloadIEs))
	out = append(out, rx.Src[:]...)
	out = append(out, flags, byte(len(rx.HeaderIEs)))
	out = append(out, rx.HeaderIEs...)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(rx.PayloadIEs)))
	return append(out, rx.PayloadIEs...), nil
}

// DecodeRx unpacks a receive indication.
func DecodeRx(b []byte) (fhmac.RxFrame, error) {
	var rx fhmac.RxFrame
	if len(b) < rxFixedLen+ieLenField {
		return rx, corrupted("rx indication", len(b))
	}
	rx.Src = dh1cf.EUI64(b[:8])
	flags := b[8]
	rx.Ack = flags&RxFlagAck != 0
	rx.DataRequest = flags&RxFlagDataRequest != 0
	if flags&RxFlagCRCError != 0 {
		rx.Err = fhmac.ErrFrameCorrupted
	}

	hie, rest, ok := cutIEs(b[9:], 1)
	if !ok {
		return rx, corrupted("rx indication", len(b))
	}
	pie, rest, ok := cutIEs(rest, ieLenField)
	if !ok || len(rest) != 0 {
		return rx, corrupted("rx indication", len(b))
	}
	rx.HeaderIEs, rx.PayloadIEs = hie, pie
	return rx, nil
}

// DecodeInfo unpacks a ping response body.
func DecodeInfo(b []byte) (fhmac.RadioInfo, error) {
	if len(b) < 3 {
		return fhmac.RadioInfo{}, corrupted("ping response", len(b))
	}
	return fhmac.RadioInfo{Major: b[0], Minor: b[1], CCA: fhmac.CCAType(b[2])}, nil
}
