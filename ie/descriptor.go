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

// Package ie encodes and decodes the Wi-SUN header and payload information
// elements that carry frequency hopping schedules between nodes.
//
// Header IEs (UT, BT, FC, RSL) travel in the MAC header and describe the
// sender's position in its schedule at transmit time. Payload IEs (US, BS,
// PAN, NETNAME, PANVER, GTKHASH) are nested inside one WISUN payload IE and
// describe the schedules themselves.
package ie

import (
	"encoding/binary"
	"errors"
)

// Errors returned by the decoders.
var (
	ErrInvalidFormat = errors.New("ie: invalid format")
	ErrNotSupported  = errors.New("ie: element not supported")
)

// PayloadID identifies a sub-IE of the WISUN payload IE.
type PayloadID uint8

// Payload sub-IE ids.
const (
	IDUS      PayloadID = 0x01
	IDBS      PayloadID = 0x02
	IDVP      PayloadID = 0x03
	IDPAN     PayloadID = 0x04
	IDNetName PayloadID = 0x05
	IDPANVer  PayloadID = 0x06
	IDGTKHash PayloadID = 0x07
)

func (id PayloadID) String() string {
	switch id {
	case IDUS:
		return "US-IE"
	case IDBS:
		return "BS-IE"
	case IDVP:
		return "VP-IE"
	case IDPAN:
		return "PAN-IE"
	case IDNetName:
		return "NETNAME-IE"
	case IDPANVer:
		return "PANVER-IE"
	case IDGTKHash:
		return "GTKHASH-IE"
	default:
		return "unknown"
	}
}

// HeaderID identifies a sub-IE of the WISUN header IE.
type HeaderID uint8

// Header sub-IE ids.
const (
	IDUT  HeaderID = 0x01
	IDBT  HeaderID = 0x02
	IDFC  HeaderID = 0x03
	IDRSL HeaderID = 0x04
	IDEA  HeaderID = 0x09
)

func (id HeaderID) String() string {
	switch id {
	case IDUT:
		return "UT-IE"
	case IDBT:
		return "BT-IE"
	case IDFC:
		return "FC-IE"
	case IDRSL:
		return "RSL-IE"
	case IDEA:
		return "EA-IE"
	default:
		return "unknown"
	}
}

// Bitmap selects the IEs to generate. Header and payload bits must not be
// mixed in one request.
type Bitmap uint32

// IE selection bits.
const (
	BitFC      Bitmap = 0x00000001
	BitUT      Bitmap = 0x00000002
	BitRSL     Bitmap = 0x00000004
	BitBT      Bitmap = 0x00000008
	BitUS      Bitmap = 0x00010000
	BitBS      Bitmap = 0x00020000
	BitPAN     Bitmap = 0x00040000
	BitNetName Bitmap = 0x00080000
	BitPANVer  Bitmap = 0x00100000
	BitGTKHash Bitmap = 0x00200000

	HeaderMask  Bitmap = 0x0000000F
	PayloadMask Bitmap = 0x00FF0000
)

const (
	descriptorLen    = 2
	subDescriptorLen = 2

	typeHeader  = 0
	typePayload = 1

	// ElementIDWiSUN is the header IE element id of the WISUN IE.
	ElementIDWiSUN = 0x2A
	// GroupIDWiSUN is the payload IE group id of the WISUN IE.
	GroupIDWiSUN = 0x4

	pieMaxLen = 127
	pieMinLen = subDescriptorLen
	hieMaxLen = 127
	hieMinLen = 1

	hieSubIDLen = 1
	utLen       = 4
	btLen       = 5
	fcLen       = 2
	rslLen      = 1

	usFixedLen   = 4
	bsFixedLen   = 10
	panLen       = 4
	panVerLen    = 2
	gtkHashLen   = 32
	netNameMax   = 32
	planRDLen    = 2
	planVSLen    = 6
	fixedChanLen = 2
)

func pack(v uint16, size, pos uint) uint16 {
	return (v & (1<<size - 1)) << pos
}

func unpack(v uint16, size, pos uint) uint16 {
	return (v >> pos) & (1<<size - 1)
}

// headerDescriptor: length 7 bits, element id 8 bits, type bit 15 clear.
func headerDescriptor(id uint8, length int) uint16 {
	return pack(typeHeader, 1, 15) | pack(uint16(id), 8, 7) | pack(uint16(length), 7, 0)
}

// payloadDescriptor: length 11 bits, group id 4 bits, type bit 15 set.
func payloadDescriptor(group uint8, length int) uint16 {
	return pack(typePayload, 1, 15) | pack(uint16(group), 4, 11) | pack(uint16(length), 11, 0)
}

// Short sub-IEs carry an 8 bit length and 7 bit id, long ones an 11 bit
// length and 4 bit id.
func subDescriptor(id PayloadID, length int, long bool) uint16 {
	if long {
		return pack(1, 1, 15) | pack(uint16(id), 4, 11) | pack(uint16(length), 11, 0)
	}
	return pack(0, 1, 15) | pack(uint16(id), 7, 8) | pack(uint16(length), 8, 0)
}

type descriptor struct {
	length int
	kind   uint8
	id     uint8
}

func readHeader(b []byte) (descriptor, bool) {
	if len(b) < descriptorLen {
		return descriptor{}, false
	}
	v := binary.LittleEndian.Uint16(b)
	d := descriptor{
		kind:   uint8(unpack(v, 1, 15)),
		id:     uint8(unpack(v, 8, 7)),
		length: int(unpack(v, 7, 0)),
	}
	if d.kind != typeHeader || d.id != ElementIDWiSUN || d.length > hieMaxLen || d.length < hieMinLen {
		return descriptor{}, false
	}
	if len(b) < descriptorLen+d.length {
		return descriptor{}, false
	}
	return d, true
}

func readPayload(b []byte) (descriptor, bool) {
	if len(b) < descriptorLen {
		return descriptor{}, false
	}
	v := binary.LittleEndian.Uint16(b)
	d := descriptor{
		kind:   uint8(unpack(v, 1, 15)),
		id:     uint8(unpack(v, 4, 11)),
		length: int(unpack(v, 11, 0)),
	}
	if d.kind != typePayload || d.id != GroupIDWiSUN || d.length > pieMaxLen || d.length < pieMinLen {
		return descriptor{}, false
	}
	if len(b) < descriptorLen+d.length {
		return descriptor{}, false
	}
	return d, true
}

func readSubPayload(b []byte) (descriptor, bool) {
	if len(b) < subDescriptorLen {
		return descriptor{}, false
	}
	v := binary.LittleEndian.Uint16(b)
	d := descriptor{kind: uint8(unpack(v, 1, 15))}
	if d.kind == 1 {
		d.id = uint8(unpack(v, 4, 11))
		d.length = int(unpack(v, 11, 0))
	} else {
		d.id = uint8(unpack(v, 7, 8))
		d.length = int(unpack(v, 8, 0))
	}
	if d.length > pieMaxLen || d.length < pieMinLen {
		return descriptor{}, false
	}
	switch PayloadID(d.id) {
	case IDUS, IDBS, IDPAN, IDNetName, IDPANVer, IDGTKHash:
	default:
		return descriptor{}, false
	}
	if len(b) < subDescriptorLen+d.length {
		return descriptor{}, false
	}
	return d, true
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

func uint24(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}
