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
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// Channel plan encodings in the channel control byte.
const (
	PlanRegulatory uint8 = 0
	PlanVendor     uint8 = 1
)

// Excluded channel control encodings.
const (
	ExcludeNone    uint8 = 0
	ExcludeRange   uint8 = 1
	ExcludeBitmask uint8 = 2
)

// Plan is a PHY channel plan.
type Plan struct {
	Ch0              physic.Frequency
	NumChannels      uint16
	RegulatoryDomain uint8
	OperatingClass   uint8
	// Spacing is the over-the-air spacing code: 0 is 200 kHz, 1 is 400 kHz,
	// 2 is 600 kHz and 3 is 100 kHz.
	Spacing uint8
}

var spacings = [...]physic.Frequency{
	200 * physic.KiloHertz,
	400 * physic.KiloHertz,
	600 * physic.KiloHertz,
	100 * physic.KiloHertz,
}

// SpacingFrequency returns the channel spacing.
func (p Plan) SpacingFrequency() physic.Frequency {
	if int(p.Spacing) >= len(spacings) {
		return 0
	}
	return spacings[p.Spacing]
}

// Channel returns the center frequency of channel ch.
func (p Plan) Channel(ch uint16) physic.Frequency {
	return p.Ch0 + physic.Frequency(ch)*p.SpacingFrequency()
}

func (p Plan) ch0kHz() uint32 {
	return uint32(p.Ch0/physic.KiloHertz) & 0xFFFFFF
}

func (p Plan) String() string {
	return fmt.Sprintf("ch0=%s spacing=%s channels=%d domain=%d class=%d",
		p.Ch0, p.SpacingFrequency(), p.NumChannels, p.RegulatoryDomain, p.OperatingClass)
}

// Plans lists the regulatory domain plans a node can announce by domain and
// operating class instead of spelling out the plan.
var Plans = []Plan{
	{RegulatoryDomain: 0x01, OperatingClass: 1, Ch0: 902200 * physic.KiloHertz, Spacing: 0, NumChannels: 129},
	{RegulatoryDomain: 0x01, OperatingClass: 2, Ch0: 902400 * physic.KiloHertz, Spacing: 1, NumChannels: 64},
	{RegulatoryDomain: 0x01, OperatingClass: 3, Ch0: 902600 * physic.KiloHertz, Spacing: 2, NumChannels: 42},
	{RegulatoryDomain: 0x03, OperatingClass: 1, Ch0: 863100 * physic.KiloHertz, Spacing: 3, NumChannels: 69},
	{RegulatoryDomain: 0x03, OperatingClass: 2, Ch0: 863100 * physic.KiloHertz, Spacing: 0, NumChannels: 35},
	{RegulatoryDomain: 0x09, OperatingClass: 1, Ch0: 920600 * physic.KiloHertz, Spacing: 0, NumChannels: 38},
	{RegulatoryDomain: 0x09, OperatingClass: 2, Ch0: 920900 * physic.KiloHertz, Spacing: 1, NumChannels: 18},
	{RegulatoryDomain: 0x09, OperatingClass: 3, Ch0: 920800 * physic.KiloHertz, Spacing: 2, NumChannels: 12},
}

// DefaultPlan is the 902 MHz, 200 kHz, 129 channel plan.
var DefaultPlan = Plans[0]

// LocalPlan fills in the regulatory domain and operating class of a PHY
// plan when it matches a known one. The second result reports how the plan
// is announced.
func LocalPlan(ch0 physic.Frequency, spacing uint8, numChannels uint16) (Plan, uint8) {
	p := Plan{Ch0: ch0, Spacing: spacing, NumChannels: numChannels}
	for _, known := range Plans {
		if known.ch0kHz() == p.ch0kHz() && known.Spacing == spacing && known.NumChannels == numChannels {
			p.RegulatoryDomain = known.RegulatoryDomain
			p.OperatingClass = known.OperatingClass
			return p, PlanRegulatory
		}
	}
	return p, PlanVendor
}

func planByClass(domain, class uint8) (Plan, bool) {
	for _, known := range Plans {
		if known.RegulatoryDomain == domain && known.OperatingClass == class {
			return known, true
		}
	}
	return Plan{RegulatoryDomain: domain, OperatingClass: class}, false
}

// matches reports whether a received plan equals the local one under the
// given encoding.
func (p Plan) matches(kind uint8, local Plan) bool {
	switch kind {
	case PlanRegulatory:
		return p.RegulatoryDomain == local.RegulatoryDomain && p.OperatingClass == local.OperatingClass
	case PlanVendor:
		return p.ch0kHz() == local.ch0kHz() && p.Spacing == local.Spacing && p.NumChannels == local.NumChannels
	default:
		return false
	}
}
