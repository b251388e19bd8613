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

// Package dh1cf implements the Direct Hash channel function used by Wi-SUN
// frequency hopping to map a slot number to a channel.
//
// The hash is Bob Jenkins' lookup3 hashword. Results must match other Wi-SUN
// nodes bit for bit, so nothing here may be tuned or reordered.
package dh1cf

import (
	"errors"
	"math/bits"
)

// EUI64 is an extended address in over-the-air order, most significant byte
// first.
type EUI64 [8]byte

// ErrNoFreeChannel is the panic value raised when an index cannot be mapped
// because every channel of the plan is excluded.
var ErrNoFreeChannel = errors.New("dh1cf: no free channel in exclude mask")

const initSeed = 0xdeadbeef

func mix(a, b, c uint32) (x, y, z uint32) {
	a -= c
	a ^= bits.RotateLeft32(c, 4)
	c += b
	b -= a
	b ^= bits.RotateLeft32(a, 6)
	a += c
	c -= b
	c ^= bits.RotateLeft32(b, 8)
	b += a
	a -= c
	a ^= bits.RotateLeft32(c, 16)
	c += b
	b -= a
	b ^= bits.RotateLeft32(a, 19)
	a += c
	c -= b
	c ^= bits.RotateLeft32(b, 4)
	b += a
	return a, b, c
}

func final(a, b, c uint32) (x, y, z uint32) {
	c ^= b
	c -= bits.RotateLeft32(b, 14)
	a ^= c
	a -= bits.RotateLeft32(c, 11)
	b ^= a
	b -= bits.RotateLeft32(a, 25)
	c ^= b
	c -= bits.RotateLeft32(b, 16)
	a ^= c
	a -= bits.RotateLeft32(c, 4)
	b ^= a
	b -= bits.RotateLeft32(a, 14)
	c ^= b
	c -= bits.RotateLeft32(b, 24)
	return a, b, c
}

// Hashword hashes a slice of 32-bit words with the given seed.
func Hashword(k []uint32, initval uint32) uint32 {
	n := len(k)
	a := uint32(initSeed) + uint32(n)<<2 + initval
	b, c := a, a

	for n > 3 {
		a += k[0]
		b += k[1]
		c += k[2]
		a, b, c = mix(a, b, c)
		n -= 3
		k = k[3:]
	}

	switch n {
	case 3:
		c += k[2]
		fallthrough
	case 2:
		b += k[1]
		fallthrough
	case 1:
		a += k[0]
		_, _, c = final(a, b, c)
	}
	return c
}

func unicastKey(slot uint16, eui EUI64) []uint32 {
	lo := uint32(eui[4])<<24 | uint32(eui[5])<<16 | uint32(eui[6])<<8 | uint32(eui[7])
	hi := uint32(eui[0])<<24 | uint32(eui[1])<<16 | uint32(eui[2])<<8 | uint32(eui[3])
	return []uint32{uint32(slot), lo, hi}
}

// UnicastChannel returns the channel index a node with address eui listens on
// during the given unicast slot. numChannels must be non-zero.
func UnicastChannel(slot uint16, eui EUI64, numChannels uint16) uint16 {
	return uint16(Hashword(unicastKey(slot, eui), 0) % uint32(numChannels))
}

// BroadcastChannel returns the channel index of a broadcast slot for the
// broadcast schedule identified by bsi.
func BroadcastChannel(slot, bsi uint16, numChannels uint16) uint16 {
	key := []uint32{uint32(slot), uint32(bsi) << 16, 0}
	return uint16(Hashword(key, 0) % uint32(numChannels))
}

// MapIndex converts an index into the list of usable channels into an
// absolute channel number by skipping channels set in the exclude mask.
//
// It panics with ErrNoFreeChannel when idx does not name a usable channel.
// Callers derive idx modulo the usable channel count, so reaching the panic
// means the mask and the cached count disagree.
func MapIndex(idx uint16, exclude []byte, maxChannels uint16) uint16 {
	var free uint16
	for ch := uint16(0); ch < maxChannels; ch++ {
		if Excluded(exclude, ch) {
			continue
		}
		if free == idx {
			return ch
		}
		free++
	}
	panic(ErrNoFreeChannel)
}

// Excluded reports whether channel ch is set in the bitmap. Bits beyond the
// end of the mask are treated as not excluded.
func Excluded(mask []byte, ch uint16) bool {
	i := int(ch >> 3)
	if i >= len(mask) {
		return false
	}
	return mask[i]&(1<<(ch&7)) != 0
}

// ExcludedCount counts excluded channels among the first maxChannels bits.
func ExcludedCount(mask []byte, maxChannels uint16) uint16 {
	if mask == nil || maxChannels == 0 {
		return 0
	}
	nBytes := int(maxChannels+7) >> 3
	rem := maxChannels % 8
	var count uint16
	for i := 0; i < nBytes && i < len(mask); i++ {
		data := mask[i]
		if i == nBytes-1 && rem != 0 {
			data &= byte(1<<rem) - 1
		}
		for ; data != 0; count++ {
			data &= data - 1
		}
	}
	return count
}

// Available returns the number of usable channels for a plan of maxChannels.
func Available(mask []byte, maxChannels uint16) uint16 {
	return maxChannels - ExcludedCount(mask, maxChannels)
}

// UnicastChannelNumber resolves the absolute unicast channel for a neighbor,
// hashing over the usable channels and mapping through its exclude mask.
func UnicastChannelNumber(slot uint16, eui EUI64, exclude []byte, maxChannels uint16) uint16 {
	n := Available(exclude, maxChannels)
	if n == 0 {
		panic(ErrNoFreeChannel)
	}
	return MapIndex(UnicastChannel(slot, eui, n), exclude, maxChannels)
}

// BroadcastChannelNumber resolves the absolute broadcast channel.
func BroadcastChannelNumber(slot, bsi uint16, exclude []byte, maxChannels uint16) uint16 {
	n := Available(exclude, maxChannels)
	if n == 0 {
		panic(ErrNoFreeChannel)
	}
	return MapIndex(BroadcastChannel(slot, bsi, n), exclude, maxChannels)
}
