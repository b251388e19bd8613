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

package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/snksoft/crc"
)

// Decoding errors.
var (
	ErrTooLarge = errors.New("frame: payload too large")
	ErrChecksum = errors.New("frame: checksum mismatch")
	ErrShort    = errors.New("frame: body too short")
)

// Frame is one decoded link frame.
type Frame struct {
	Payload []byte
	Cmd     byte
	Seq     byte
}

// FCS returns the CRC-16/X.25 of b.
func FCS(b []byte) uint16 {
	return uint16(crc.CalculateCRC(crc.X25, b))
}

func needsEscape(b byte) bool {
	return b == StartByte || b == EndByte || b == EscByte
}

func appendStuffed(out []byte, b byte) []byte {
	if needsEscape(b) {
		return append(out, EscByte, b^EscXor)
	}
	return append(out, b)
}

// Encode returns the wire form of f.
func Encode(f Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(f.Payload))
	}
	body := make([]byte, 0, headerLen+len(f.Payload)+fcsLen)
	body = append(body, f.Cmd, f.Seq)
	body = append(body, f.Payload...)
	body = binary.LittleEndian.AppendUint16(body, FCS(body))

	out := make([]byte, 0, len(body)+len(body)/8+2)
	out = append(out, StartByte)
	for _, b := range body {
		out = appendStuffed(out, b)
	}
	return append(out, EndByte), nil
}

// Decoder reassembles frames from a byte stream. Bytes outside a frame
// are skipped, so the decoder resynchronises on the next START.
type Decoder struct {
	buf     []byte
	inFrame bool
	escape  bool
}

// NewDecoder returns an idle decoder.
func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, 0, 64)}
}

// Reset drops any partial frame.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.inFrame = false
	d.escape = false
}

// Feed consumes one byte. It returns ok once a whole frame has arrived, or
// an error when a frame was dropped.
func (d *Decoder) Feed(b byte) (f Frame, ok bool, err error) {
	switch {
	case b == StartByte:
		d.Reset()
		d.inFrame = true
		return Frame{}, false, nil
	case !d.inFrame:
		return Frame{}, false, nil
	case b == EndByte:
		f, err = d.finish()
		d.Reset()
		return f, err == nil, err
	case b == EscByte:
		d.escape = true
		return Frame{}, false, nil
	}

	if d.escape {
		b ^= EscXor
		d.escape = false
	}
	if len(d.buf) >= headerLen+MaxPayload+fcsLen {
		d.Reset()
		return Frame{}, false, ErrTooLarge
	}
	d.buf = append(d.buf, b)
	return Frame{}, false, nil
}

// Write feeds p and returns the frames it completed. Dropped frames are
// reported through onErr when it is not nil.
func (d *Decoder) Write(p []byte, onErr func(error)) []Frame {
	var out []Frame
	for _, b := range p {
		f, ok, err := d.Feed(b)
		switch {
		case err != nil && onErr != nil:
			onErr(err)
		case ok:
			out = append(out, f)
		}
	}
	return out
}

func (d *Decoder) finish() (Frame, error) {
	if len(d.buf) < minBody {
		return Frame{}, ErrShort
	}
	n := len(d.buf) - fcsLen
	want := binary.LittleEndian.Uint16(d.buf[n:])
	if got := FCS(d.buf[:n]); got != want {
		return Frame{}, fmt.Errorf("%w: got 0x%04X, want 0x%04X", ErrChecksum, got, want)
	}
	return Frame{
		Cmd:     d.buf[0],
		Seq:     d.buf[1],
		Payload: bytes.Clone(d.buf[headerLen:n]),
	}, nil
}
