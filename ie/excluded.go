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

package ie

import (
	"encoding/binary"

	"github.com/ZaparooProject/go-fhmac/pib"
)

func maskBytes(numChannels uint16) int {
	return (int(numChannels) + 7) >> 3
}

func bitSet(mask []byte, ch int) bool {
	return mask[ch/8]&(1<<(ch%8)) != 0
}

// ExcludedRanges encodes the excluded channels of mask as a range list: a
// count byte followed by little-endian start/end channel pairs. No excluded
// channel yields nil.
func ExcludedRanges(mask []byte, numChannels uint16) []byte {
	limit := maskBytes(numChannels) * 8
	if limit > len(mask)*8 {
		limit = len(mask) * 8
	}
	if limit > int(numChannels) {
		limit = int(numChannels)
	}
	out := []byte{0}
	inRange := false
	for ch := 0; ch < limit; ch++ {
		if bitSet(mask, ch) == inRange {
			continue
		}
		if !inRange {
			out[0]++
			out = binary.LittleEndian.AppendUint16(out, uint16(ch))
		} else {
			out = binary.LittleEndian.AppendUint16(out, uint16(ch-1))
		}
		inRange = !inRange
	}
	if inRange {
		out = binary.LittleEndian.AppendUint16(out, uint16(limit-1))
	}
	if out[0] == 0 {
		return nil
	}
	return out
}

// ParseExcludedRanges decodes a range list into an exclude mask. It returns
// the number of bytes consumed.
func ParseExcludedRanges(data []byte) ([pib.BitmapSize]byte, int, error) {
	var mask [pib.BitmapSize]byte
	if len(data) < 1 {
		return mask, 0, ErrInvalidFormat
	}
	n := int(data[0])
	size := 4*n + 1
	if len(data) < size {
		return mask, 0, ErrInvalidFormat
	}
	for i := 0; i < n; i++ {
		start := int(binary.LittleEndian.Uint16(data[1+4*i:]))
		end := int(binary.LittleEndian.Uint16(data[3+4*i:]))
		if start > end || end >= pib.BitmapSize*8 {
			return mask, 0, ErrInvalidFormat
		}
		for ch := start; ch <= end; ch++ {
			mask[ch/8] |= 1 << (ch % 8)
		}
	}
	return mask, size, nil
}

// ExcludedControl picks how a mask is announced: nothing when no channel is
// excluded, a range list when it is shorter than the bitmask, the bitmask
// otherwise.
func ExcludedControl(mask []byte, numChannels uint16) uint8 {
	n := len(ExcludedRanges(mask, numChannels))
	switch {
	case n == 0:
		return ExcludeNone
	case n < maskBytes(numChannels):
		return ExcludeRange
	default:
		return ExcludeBitmask
	}
}

// excludedBitmask returns the announced bitmask: the bits past the last
// channel of the plan are set.
func excludedBitmask(mask []byte, numChannels uint16) []byte {
	out := make([]byte, maskBytes(numChannels))
	copy(out, mask)
	if numChannels > 0 {
		last := int(numChannels) - 1
		out[last/8] |= ^byte(1<<(last%8+1) - 1)
	}
	return out
}
