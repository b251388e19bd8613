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

	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/pib"
)

// Source supplies the local values IEs are built from.
type Source interface {
	PIB() *pib.Store
	// CurrentUFSI returns the offset into the current unicast sequence in ms.
	CurrentUFSI() uint32
	// CurrentBFIO returns the offset into the broadcast interval in ms and
	// the broadcast slot number.
	CurrentBFIO() (bfio uint32, slot uint16)
	// CCASFDTime returns the time in ms between IE generation and the start
	// of frame delimiter going on air for a frame of type ft.
	CCASFDTime(ft FrameType) uint32
}

// Sink receives the schedules found while parsing a received frame.
type Sink interface {
	OnUSIE(src dh1cf.EUI64, us Schedule) error
	OnBSIE(src dh1cf.EUI64, bs BroadcastSchedule)
	OnUTIE(src dh1cf.EUI64, ut UT)
	OnBTIE(src dh1cf.EUI64, bt BT)
}

// Codec builds IEs from a Source and parses received ones against the local
// channel plan.
type Codec struct {
	src      Source
	plan     Plan
	planKind uint8
}

// NewCodec returns a codec for a node using the given PHY channel plan.
func NewCodec(src Source, plan Plan) *Codec {
	p, kind := LocalPlan(plan.Ch0, plan.Spacing, plan.NumChannels)
	return &Codec{src: src, plan: p, planKind: kind}
}

// Plan returns the local channel plan.
func (c *Codec) Plan() Plan {
	return c.plan
}

var payloadOrder = []struct {
	bit  Bitmap
	id   PayloadID
	long bool
}{
	{BitUS, IDUS, true},
	{BitBS, IDBS, true},
	{BitPAN, IDPAN, false},
	{BitNetName, IDNetName, false},
	{BitPANVer, IDPANVer, false},
	{BitGTKHash, IDGTKHash, false},
}

// Gen builds the IEs selected by bitmap. A bitmap mixing header and payload
// bits, or selecting nothing that can be built, yields nil.
func (c *Codec) Gen(bitmap Bitmap, ft FrameType, info *Info) []byte {
	hdr := bitmap & HeaderMask
	pay := bitmap & PayloadMask
	switch {
	case hdr != 0 && pay != 0:
		return nil
	case pay != 0:
		return c.GenPie(bitmap)
	case hdr != 0:
		return c.GenHie(bitmap, ft, info)
	default:
		return nil
	}
}

// Len returns the length Gen would produce for bitmap.
func (c *Codec) Len(bitmap Bitmap) int {
	hdr := bitmap & HeaderMask
	pay := bitmap & PayloadMask
	switch {
	case hdr != 0 && pay != 0:
		return 0
	case pay != 0:
		return c.PieLen(bitmap)
	case hdr != 0:
		return c.HieLen(bitmap)
	default:
		return 0
	}
}

// GenPie builds one WISUN payload IE holding the selected sub-IEs.
func (c *Codec) GenPie(bitmap Bitmap) []byte {
	out := make([]byte, descriptorLen, 64)
	for _, p := range payloadOrder {
		if bitmap&p.bit == 0 {
			continue
		}
		content := c.PieContent(p.id)
		out = binary.LittleEndian.AppendUint16(out, subDescriptor(p.id, len(content), p.long))
		out = append(out, content...)
	}
	if len(out) == descriptorLen {
		return nil
	}
	binary.LittleEndian.PutUint16(out, payloadDescriptor(GroupIDWiSUN, len(out)-descriptorLen))
	return out
}

// PieLen returns the length GenPie would produce.
func (c *Codec) PieLen(bitmap Bitmap) int {
	n := descriptorLen
	for _, p := range payloadOrder {
		if bitmap&p.bit != 0 {
			n += subDescriptorLen + len(c.PieContent(p.id))
		}
	}
	if n == descriptorLen {
		return 0
	}
	return n
}

// GenHie builds one WISUN header IE per selected sub-IE. The BT-IE is left
// out while the broadcast dwell is zero.
func (c *Codec) GenHie(bitmap Bitmap, ft FrameType, info *Info) []byte {
	var out []byte
	if info == nil {
		info = &Info{}
	}
	if bitmap&BitFC != 0 {
		out = appendHeader(out, IDFC, info.FC.Tx, info.FC.Rx)
	}
	if bitmap&BitUT != 0 {
		out = appendHeader(out, IDUT, c.utContent(ft)...)
	}
	if bitmap&BitRSL != 0 {
		out = appendHeader(out, IDRSL, byte(info.RSL))
	}
	if bitmap&BitBT != 0 && c.src.PIB().Uint8(pib.BcDwellInterval) != 0 {
		out = appendHeader(out, IDBT, c.btContent(ft)...)
	}
	return out
}

// HieLen returns the length GenHie would produce.
func (c *Codec) HieLen(bitmap Bitmap) int {
	n := 0
	if bitmap&BitFC != 0 {
		n += descriptorLen + hieSubIDLen + fcLen
	}
	if bitmap&BitUT != 0 {
		n += descriptorLen + hieSubIDLen + utLen
	}
	if bitmap&BitRSL != 0 {
		n += descriptorLen + hieSubIDLen + rslLen
	}
	if bitmap&BitBT != 0 && c.src.PIB().Uint8(pib.BcDwellInterval) != 0 {
		n += descriptorLen + hieSubIDLen + btLen
	}
	return n
}

func appendHeader(out []byte, id HeaderID, content ...byte) []byte {
	out = binary.LittleEndian.AppendUint16(out, headerDescriptor(ElementIDWiSUN, hieSubIDLen+len(content)))
	out = append(out, byte(id))
	return append(out, content...)
}

// utContent stamps the unicast position the frame will have when its SFD
// leaves the antenna, as a 24 bit fraction of the dwell in 1/256ths.
func (c *Codec) utContent(ft FrameType) []byte {
	dwell := uint32(c.src.PIB().Uint8(pib.UcDwellInterval))
	ufsi := c.src.CurrentUFSI() + c.src.CCASFDTime(ft)
	if dwell != 0 {
		ufsi = ((ufsi << 8) + dwell>>1) / dwell
	}
	b := make([]byte, utLen)
	b[0] = byte(ft)
	putUint24(b[1:], ufsi)
	return b
}

func (c *Codec) btContent(ft FrameType) []byte {
	interval := c.src.PIB().Uint32(pib.BcInterval)
	bfio, slot := c.src.CurrentBFIO()
	bfio += c.src.CCASFDTime(ft)
	if bfio >= interval {
		bfio -= interval
		slot++
	}
	b := make([]byte, btLen)
	binary.LittleEndian.PutUint16(b, slot)
	putUint24(b[2:], bfio)
	return b
}

// Refresh rewrites the UT-IE and BT-IE contents of an already built header
// IE block with the current schedule position. It returns how many were
// updated.
func (c *Codec) Refresh(hie []byte, ft FrameType) int {
	n := 0
	for pos := 0; ; {
		d, ok := readHeader(hie[pos:])
		if !ok {
			return n
		}
		content := hie[pos+descriptorLen : pos+descriptorLen+d.length]
		switch {
		case HeaderID(content[0]) == IDUT && d.length == hieSubIDLen+utLen:
			copy(content[1:], c.utContent(ft))
			n++
		case HeaderID(content[0]) == IDBT && d.length == hieSubIDLen+btLen:
			copy(content[1:], c.btContent(ft))
			n++
		}
		pos += descriptorLen + d.length
	}
}

// PieContent returns the body of one payload sub-IE built from local
// values. Unknown ids yield nil.
func (c *Codec) PieContent(id PayloadID) []byte {
	store := c.src.PIB()
	switch id {
	case IDUS:
		return c.scheduleContent(nil, pib.UcDwellInterval, pib.UcChannelFunction,
			pib.UcFixedChannel, pib.UcExcludedChannels)
	case IDBS:
		out := binary.LittleEndian.AppendUint32(nil, store.Uint32(pib.BcInterval))
		out = binary.LittleEndian.AppendUint16(out, store.Uint16(pib.BroadcastSchedID))
		return c.scheduleContent(out, pib.BcDwellInterval, pib.BcChannelFunction,
			pib.BcFixedChannel, pib.BcExcludedChannels)
	case IDPAN:
		p := PAN{
			Size:          store.Uint16(pib.PANSize),
			RoutingCost:   store.Uint8(pib.RoutingCost),
			UseParentBSIE: store.Uint8(pib.UseParentBSIE) != 0,
			RoutingMethod: store.Uint8(pib.RoutingMethod) != 0,
			EAPOLReady:    store.Uint8(pib.EAPOLReady) != 0,
			FANTPSVersion: store.Uint8(pib.FANTPSVersion),
		}
		out := binary.LittleEndian.AppendUint16(nil, p.Size)
		return append(out, p.RoutingCost, p.control())
	case IDNetName:
		return []byte(store.NetworkName())
	case IDPANVer:
		return binary.LittleEndian.AppendUint16(nil, store.Uint16(pib.PANVersion))
	case IDGTKHash:
		out := make([]byte, 0, gtkHashLen)
		for _, h := range []pib.ID{pib.GTK0Hash, pib.GTK1Hash, pib.GTK2Hash, pib.GTK3Hash} {
			out = append(out, store.Bytes(h)...)
		}
		return out
	default:
		return nil
	}
}

func (c *Codec) scheduleContent(out []byte, dwellID, funcID, fixedID, maskID pib.ID) []byte {
	store := c.src.PIB()
	cf := store.Uint8(funcID)
	mask := store.Bytes(maskID)
	ecc := ExcludeNone
	if cf != 0 {
		ecc = ExcludedControl(mask, c.plan.NumChannels)
	}
	out = append(out,
		store.Uint8(dwellID),
		store.Uint8(pib.ClockDrift),
		store.Uint8(pib.TimingAccuracy),
		c.planKind&7|(cf&7)<<3|(ecc&3)<<6,
	)

	switch c.planKind {
	case PlanRegulatory:
		out = append(out, c.plan.RegulatoryDomain, c.plan.OperatingClass)
	case PlanVendor:
		ch0 := make([]byte, 3)
		putUint24(ch0, c.plan.ch0kHz())
		out = append(out, ch0...)
		out = append(out, c.plan.Spacing)
		out = binary.LittleEndian.AppendUint16(out, c.plan.NumChannels)
	}

	if dh1cf.ChannelFunction(cf) == dh1cf.FunctionFixed {
		out = binary.LittleEndian.AppendUint16(out, store.Uint16(fixedID))
	}

	switch ecc {
	case ExcludeRange:
		out = append(out, ExcludedRanges(mask, c.plan.NumChannels)...)
	case ExcludeBitmask:
		out = append(out, excludedBitmask(mask, c.plan.NumChannels)...)
	}
	return out
}

// StaticSource is a Source with no running schedule, used to build and
// decode IEs offline.
type StaticSource struct {
	Store *pib.Store
}

// PIB implements Source.
func (s StaticSource) PIB() *pib.Store { return s.Store }

// CurrentUFSI implements Source.
func (StaticSource) CurrentUFSI() uint32 { return 0 }

// CurrentBFIO implements Source.
func (StaticSource) CurrentBFIO() (uint32, uint16) { return 0, 0 }

// CCASFDTime implements Source.
func (StaticSource) CCASFDTime(FrameType) uint32 { return 0 }
