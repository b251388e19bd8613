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
	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/pib"
)

// FrameType is the Wi-SUN frame type carried in the UT-IE.
type FrameType uint8

// Frame types.
const (
	FramePANAdvert FrameType = iota
	FramePANAdvertSolicit
	FramePANConfig
	FramePANConfigSolicit
	FrameData
	FrameAck
	FrameEAPOL
)

func (f FrameType) String() string {
	switch f {
	case FramePANAdvert:
		return "pan-advert"
	case FramePANAdvertSolicit:
		return "pan-advert-solicit"
	case FramePANConfig:
		return "pan-config"
	case FramePANConfigSolicit:
		return "pan-config-solicit"
	case FrameData:
		return "data"
	case FrameAck:
		return "ack"
	case FrameEAPOL:
		return "eapol"
	default:
		return "unknown"
	}
}

// PayloadIE is a decoded payload sub-IE.
type PayloadIE interface {
	PayloadID() PayloadID
}

// HeaderIE is a decoded header sub-IE.
type HeaderIE interface {
	HeaderID() HeaderID
}

// Schedule is the content of a US-IE, and the schedule part of a BS-IE.
type Schedule struct {
	ExcludeMask     [pib.BitmapSize]byte
	Plan            Plan
	NumChannels     uint16
	FixedChannel    uint16
	Dwell           uint8
	ClockDrift      uint8
	TimingAccuracy  uint8
	PlanKind        uint8
	ExcludedControl uint8
	ChannelFunc     dh1cf.ChannelFunction
}

// PayloadID implements PayloadIE.
func (Schedule) PayloadID() PayloadID { return IDUS }

// BroadcastSchedule is the content of a BS-IE.
type BroadcastSchedule struct {
	Schedule
	Interval uint32
	BSI      uint16
}

// PayloadID implements PayloadIE.
func (BroadcastSchedule) PayloadID() PayloadID { return IDBS }

// PAN is the content of a PAN-IE.
type PAN struct {
	Size          uint16
	RoutingCost   uint8
	FANTPSVersion uint8
	UseParentBSIE bool
	RoutingMethod bool
	EAPOLReady    bool
}

// PayloadID implements PayloadIE.
func (PAN) PayloadID() PayloadID { return IDPAN }

func (p PAN) control() byte {
	var b byte
	if p.UseParentBSIE {
		b |= 1
	}
	if p.RoutingMethod {
		b |= 1 << 1
	}
	if p.EAPOLReady {
		b |= 1 << 2
	}
	return b | (p.FANTPSVersion&7)<<5
}

// NetName is the content of a NETNAME-IE.
type NetName string

// PayloadID implements PayloadIE.
func (NetName) PayloadID() PayloadID { return IDNetName }

// PANVersion is the content of a PANVER-IE.
type PANVersion uint16

// PayloadID implements PayloadIE.
func (PANVersion) PayloadID() PayloadID { return IDPANVer }

// GTKHashes is the content of a GTKHASH-IE.
type GTKHashes [4][pib.GTKHashSize]byte

// PayloadID implements PayloadIE.
func (GTKHashes) PayloadID() PayloadID { return IDGTKHash }

// UT is the content of a UT-IE: the sender's unicast fractional sequence
// interval, in 1/256ths of its dwell.
type UT struct {
	UFSI      uint32
	FrameType FrameType
}

// HeaderID implements HeaderIE.
func (UT) HeaderID() HeaderID { return IDUT }

// BT is the content of a BT-IE: the sender's broadcast slot number and its
// offset into the broadcast interval in milliseconds.
type BT struct {
	BFIO uint32
	Slot uint16
}

// HeaderID implements HeaderIE.
func (BT) HeaderID() HeaderID { return IDBT }

// FC is the content of an FC-IE.
type FC struct {
	Tx uint8
	Rx uint8
}

// HeaderID implements HeaderIE.
func (FC) HeaderID() HeaderID { return IDFC }

// RSL is the content of an RSL-IE.
type RSL uint8

// HeaderID implements HeaderIE.
func (RSL) HeaderID() HeaderID { return IDRSL }

// Info carries the caller supplied values of FC-IE and RSL-IE.
type Info struct {
	FC  FC
	RSL RSL
}
