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

	"periph.io/x/conn/v3/physic"

	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/pib"
)

// parseCommon decodes the channel plan, channel function and excluded
// channel part of a US-IE or BS-IE. The plan must match the local one.
func (c *Codec) parseCommon(data []byte, control byte, s *Schedule) (int, error) {
	s.PlanKind = control & 7
	s.ChannelFunc = dh1cf.ChannelFunction((control >> 3) & 7)
	s.ExcludedControl = (control >> 6) & 3

	pos := 0
	switch s.PlanKind {
	case PlanRegulatory:
		if len(data) < planRDLen {
			return 0, ErrInvalidFormat
		}
		s.Plan, _ = planByClass(data[0], data[1])
		pos += planRDLen
	case PlanVendor:
		if len(data) < planVSLen {
			return 0, ErrInvalidFormat
		}
		s.Plan, _ = LocalPlan(
			physic.Frequency(uint24(data))*physic.KiloHertz,
			data[3]&0xF,
			binary.LittleEndian.Uint16(data[4:]),
		)
		pos += planVSLen
	default:
		return 0, ErrInvalidFormat
	}
	if !s.Plan.matches(s.PlanKind, c.plan) {
		return 0, ErrInvalidFormat
	}
	s.NumChannels = s.Plan.NumChannels

	switch s.ChannelFunc {
	case dh1cf.FunctionFixed:
		if len(data) < pos+fixedChanLen {
			return 0, ErrInvalidFormat
		}
		s.FixedChannel = binary.LittleEndian.Uint16(data[pos:])
		pos += fixedChanLen
	case dh1cf.FunctionDH1:
	default:
		return 0, ErrInvalidFormat
	}

	switch s.ExcludedControl {
	case ExcludeRange:
		mask, n, err := ParseExcludedRanges(data[pos:])
		if err != nil {
			return 0, err
		}
		s.ExcludeMask = mask
		pos += n
	case ExcludeBitmask:
		n := maskBytes(s.NumChannels)
		if n > pib.BitmapSize || len(data) < pos+n {
			return 0, ErrInvalidFormat
		}
		copy(s.ExcludeMask[:], data[pos:pos+n])
		if s.NumChannels > 0 {
			last := int(s.NumChannels) - 1
			s.ExcludeMask[last/8] &= byte(1<<(last%8+1) - 1)
		}
		pos += n
	}
	return pos, nil
}

func (c *Codec) parseUS(content []byte) (Schedule, error) {
	var s Schedule
	if len(content) <= usFixedLen {
		return s, ErrInvalidFormat
	}
	s.Dwell = content[0]
	s.ClockDrift = content[1]
	s.TimingAccuracy = content[2]
	if _, err := c.parseCommon(content[usFixedLen:], content[3], &s); err != nil {
		return s, err
	}
	return s, nil
}

// parseBS rejects schedules announced under an older broadcast schedule id
// than the local one.
func (c *Codec) parseBS(content []byte) (BroadcastSchedule, error) {
	var bs BroadcastSchedule
	if len(content) <= bsFixedLen {
		return bs, ErrInvalidFormat
	}
	bs.Interval = binary.LittleEndian.Uint32(content)
	bs.BSI = binary.LittleEndian.Uint16(content[4:])
	if bs.BSI < c.src.PIB().Uint16(pib.BroadcastSchedID) {
		return bs, ErrInvalidFormat
	}
	s, err := c.parseUS(content[6:])
	if err != nil {
		return bs, err
	}
	bs.Schedule = s
	return bs, nil
}

// ParsePie walks the WISUN payload IE at the start of data and hands the
// US-IE and BS-IE found to sink. It returns the total length of the payload
// IE and how many of its bytes were left unparsed because an unsupported
// sub-IE stopped the walk.
func (c *Codec) ParsePie(data []byte, src dh1cf.EUI64, sink Sink) (total, remaining int, err error) {
	d, ok := readPayload(data)
	if !ok {
		return 0, 0, ErrInvalidFormat
	}
	content := data[descriptorLen : descriptorLen+d.length]
	parsed := 0
	for parsed < d.length {
		sub, ok := readSubPayload(content[parsed:])
		if !ok {
			break
		}
		body := content[parsed+subDescriptorLen : parsed+subDescriptorLen+sub.length]
		switch PayloadID(sub.id) {
		case IDUS:
			us, err := c.parseUS(body)
			if err != nil {
				return 0, 0, err
			}
			if err := sink.OnUSIE(src, us); err != nil {
				return 0, 0, err
			}
		case IDBS:
			bs, err := c.parseBS(body)
			if err != nil {
				return 0, 0, err
			}
			sink.OnBSIE(src, bs)
		}
		parsed += subDescriptorLen + sub.length
	}
	if parsed == 0 {
		return 0, 0, ErrInvalidFormat
	}
	total = descriptorLen + d.length
	return total, d.length - parsed, nil
}

// ParseHie walks the WISUN header IEs at the start of data and hands the
// UT-IE and BT-IE found to sink. It returns the length walked and the length
// of the sub-IEs it did not understand.
func (c *Codec) ParseHie(data []byte, src dh1cf.EUI64, sink Sink) (parsed, unsupported int, err error) {
	for {
		d, ok := readHeader(data[parsed:])
		if !ok {
			break
		}
		content := data[parsed+descriptorLen : parsed+descriptorLen+d.length]
		size := descriptorLen + d.length
		switch HeaderID(content[0]) {
		case IDFC:
			if d.length != hieSubIDLen+fcLen {
				unsupported += size
			}
		case IDUT:
			if d.length != hieSubIDLen+utLen {
				unsupported += size
				break
			}
			sink.OnUTIE(src, UT{FrameType: FrameType(content[1] & 0xF), UFSI: uint24(content[2:])})
		case IDRSL:
			if d.length != hieSubIDLen+rslLen {
				unsupported += size
			}
		case IDBT:
			if d.length != hieSubIDLen+btLen {
				unsupported += size
				break
			}
			sink.OnBTIE(src, BT{Slot: binary.LittleEndian.Uint16(content[1:]), BFIO: uint24(content[3:])})
		default:
			unsupported += size
		}
		parsed += size
	}
	if parsed <= descriptorLen {
		return 0, 0, ErrInvalidFormat
	}
	return parsed, unsupported, nil
}

// ExtractPie finds payload sub-IE id inside the WISUN payload IE at the
// start of data and decodes it.
func (c *Codec) ExtractPie(data []byte, id PayloadID) (PayloadIE, error) {
	d, ok := readPayload(data)
	if !ok {
		return nil, ErrInvalidFormat
	}
	content := data[descriptorLen : descriptorLen+d.length]
	var body []byte
	for pos := 0; pos < d.length; {
		sub, ok := readSubPayload(content[pos:])
		if !ok {
			break
		}
		if PayloadID(sub.id) == id {
			body = content[pos+subDescriptorLen : pos+subDescriptorLen+sub.length]
			break
		}
		pos += subDescriptorLen + sub.length
	}
	if body == nil {
		return nil, ErrInvalidFormat
	}

	switch id {
	case IDUS:
		us, err := c.parseUS(body)
		if err != nil {
			return nil, err
		}
		return us, nil
	case IDBS:
		bs, err := c.parseBS(body)
		if err != nil {
			return nil, err
		}
		return bs, nil
	case IDPAN:
		if len(body) != panLen {
			return nil, ErrInvalidFormat
		}
		ctl := body[3]
		return PAN{
			Size:          binary.LittleEndian.Uint16(body),
			RoutingCost:   body[2],
			UseParentBSIE: ctl&1 != 0,
			RoutingMethod: ctl>>1&1 != 0,
			EAPOLReady:    ctl>>2&1 != 0,
			FANTPSVersion: ctl >> 5 & 7,
		}, nil
	case IDNetName:
		if len(body) > netNameMax {
			return nil, ErrInvalidFormat
		}
		return NetName(body), nil
	case IDPANVer:
		if len(body) != panVerLen {
			return nil, ErrInvalidFormat
		}
		return PANVersion(binary.LittleEndian.Uint16(body)), nil
	case IDGTKHash:
		if len(body) != gtkHashLen {
			return nil, ErrInvalidFormat
		}
		var h GTKHashes
		for i := range h {
			copy(h[i][:], body[i*pib.GTKHashSize:])
		}
		return h, nil
	default:
		return nil, ErrNotSupported
	}
}

// ExtractHie finds header sub-IE id among the WISUN header IEs at the start
// of data and decodes it.
func (c *Codec) ExtractHie(data []byte, id HeaderID) (HeaderIE, error) {
	var body []byte
	for pos := 0; ; {
		d, ok := readHeader(data[pos:])
		if !ok {
			break
		}
		content := data[pos+descriptorLen : pos+descriptorLen+d.length]
		if HeaderID(content[0]) == id {
			body = content[hieSubIDLen:]
			break
		}
		pos += descriptorLen + d.length
	}
	if body == nil {
		return nil, ErrInvalidFormat
	}

	switch id {
	case IDFC:
		if len(body) != fcLen {
			return nil, ErrInvalidFormat
		}
		return FC{Tx: body[0], Rx: body[1]}, nil
	case IDUT:
		if len(body) != utLen || FrameType(body[0]) > FrameEAPOL {
			return nil, ErrInvalidFormat
		}
		return UT{FrameType: FrameType(body[0]), UFSI: uint24(body[1:])}, nil
	case IDRSL:
		if len(body) != rslLen {
			return nil, ErrInvalidFormat
		}
		return RSL(body[0]), nil
	case IDBT:
		if len(body) != btLen {
			return nil, ErrInvalidFormat
		}
		return BT{Slot: binary.LittleEndian.Uint16(body), BFIO: uint24(body[2:])}, nil
	default:
		return nil, ErrNotSupported
	}
}
