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

package dh1cf

// ChannelFunction selects how a schedule maps slots to channels.
type ChannelFunction uint8

// Channel functions as carried in schedule IEs.
const (
	FunctionFixed   ChannelFunction = 0
	FunctionTR51    ChannelFunction = 1
	FunctionDH1     ChannelFunction = 2
	FunctionVendor  ChannelFunction = 3
	FunctionUnknown ChannelFunction = 255
)

func (f ChannelFunction) String() string {
	switch f {
	case FunctionFixed:
		return "fixed"
	case FunctionTR51:
		return "tr51cf"
	case FunctionDH1:
		return "dh1cf"
	case FunctionVendor:
		return "vendor"
	case FunctionUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}
