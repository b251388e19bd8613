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

package fhmac

import (
	"fmt"

	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/ie"
)

// FrameType tells the engine how a queued frame is scheduled.
type FrameType uint8

// Frame types. The command types use the 802.15.4 command frame ids and
// are scheduled like unicast data.
const (
	FrameAssocRequest   FrameType = 0x01
	FrameAssocResponse  FrameType = 0x02
	FrameDisassocNotify FrameType = 0x03
	FrameDataRequest    FrameType = 0x04
	FrameUnicast        FrameType = 0x15
	FrameBroadcast      FrameType = 0x25
	FrameAsync          FrameType = 0x35
	FrameEDFE           FrameType = 0x45
	FrameEDFEFinal      FrameType = 0x55
)

func (t FrameType) String() string {
	switch t {
	case FrameAssocRequest:
		return "assoc-request"
	case FrameAssocResponse:
		return "assoc-response"
	case FrameDisassocNotify:
		return "disassoc-notify"
	case FrameDataRequest:
		return "data-request"
	case FrameUnicast:
		return "unicast"
	case FrameBroadcast:
		return "broadcast"
	case FrameAsync:
		return "async"
	case FrameEDFE:
		return "edfe"
	case FrameEDFEFinal:
		return "edfe-final"
	default:
		return fmt.Sprintf("FrameType(0x%02X)", uint8(t))
	}
}

func (t FrameType) supported() bool {
	switch t {
	case FrameAsync, FrameEDFE, FrameEDFEFinal, FrameBroadcast, FrameUnicast,
		FrameAssocRequest, FrameAssocResponse, FrameDataRequest, FrameDisassocNotify:
		return true
	default:
		return false
	}
}

// unicast reports whether frames of type t go to one neighbor on its
// unicast schedule.
func (t FrameType) unicast() bool {
	switch t {
	case FrameUnicast, FrameAssocRequest, FrameAssocResponse, FrameDataRequest, FrameDisassocNotify:
		return true
	default:
		return false
	}
}

func (t FrameType) edfe() bool {
	return t == FrameEDFE || t == FrameEDFEFinal
}

// Frame is a frame handed to the engine for transmission.
type Frame struct {
	Payload []byte
	// ChannelList is the bitmap of channels an async frame is sent on.
	ChannelList []byte
	Info        ie.Info
	HeaderIEs   ie.Bitmap
	PayloadIEs  ie.Bitmap
	Dst         dh1cf.EUI64
	Type        FrameType
	// IEFrameType is the Wi-SUN frame type stamped into the UT-IE.
	IEFrameType ie.FrameType
	Handle      uint8
	// Indirect frames wait in the queue until Dst polls with a data request.
	Indirect bool
	// NoConfirm marks frames the upper layer expects no confirm for.
	NoConfirm bool
	// Retransmit marks a frame the upper layer is sending again.
	Retransmit bool

	nb    uint8
	ready bool
}

// Confirm reports the outcome of a frame passed to Send.
type Confirm struct {
	Err    error
	Frame  Frame
	Status TxStatus
}

// RxFrame is a frame the radio received, reduced to what the hopping
// schedule needs.
type RxFrame struct {
	// Err is set when the radio reported the reception as failed.
	Err        error
	HeaderIEs  []byte
	PayloadIEs []byte
	Src        dh1cf.EUI64
	Ack        bool
	// DataRequest is set for a data request command from a polling device.
	DataRequest bool
}

// RadioEvent is a state change reported by the radio while it works on a
// transmission.
type RadioEvent uint8

// Radio events.
const (
	RadioTxStart RadioEvent = iota
	RadioRxSFD
	RadioCCABusy
	RadioRSSIBusy
	RadioPushToQueue
)

func (r RadioEvent) String() string {
	switch r {
	case RadioTxStart:
		return "tx-start"
	case RadioRxSFD:
		return "rx-sfd"
	case RadioCCABusy:
		return "cca-busy"
	case RadioRSSIBusy:
		return "rssi-busy"
	case RadioPushToQueue:
		return "push-to-queue"
	default:
		return "unknown"
	}
}

// SFDStatus is reported by the radio's start of frame delimiter detector.
type SFDStatus uint8

// SFD statuses.
const (
	SFDDetected SFDStatus = iota
	SFDFrameReceived
	SFDAborted
)

// TxParams are the backoff in microseconds and the channel a transmission
// should use.
type TxParams struct {
	Backoff uint32
	Channel uint16
}

// TxMode selects whether the radio runs channel access before sending.
type TxMode uint8

// Transmit modes.
const (
	TxCSMA TxMode = iota
	TxNoCSMA
)

func (m TxMode) String() string {
	if m == TxNoCSMA {
		return "no-csma"
	}
	return "csma"
}

// TxRequest is what the engine asks the radio to send.
type TxRequest struct {
	HeaderIEs  []byte
	PayloadIEs []byte
	Payload    []byte
	Backoff    uint32
	Dst        dh1cf.EUI64
	Channel    uint16
	CCATime    uint16
	Type       FrameType
	Handle     uint8
	Mode       TxMode
}

// PHY describes the radio PHY mode the schedule timing depends on.
type PHY struct {
	// SymbolRate in ksymbols/s: 50, 100, 150, 200 or 300.
	SymbolRate uint32
	// LongRange selects the 5 kbps long range mode.
	LongRange bool
}
