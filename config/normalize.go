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

package config

import "github.com/ZaparooProject/go-fhmac/transport/i2c"

// Defaults applied by Normalize.
const (
	DefaultTickPeriodUs = 10
	DefaultSymbolRate   = 50
	DefaultBaud         = 115200
	DefaultLogLevel     = "info"
	// DefaultSnapshotIntervalS applies when a snapshot path is set.
	DefaultSnapshotIntervalS = 300
)

// Normalize fills in defaults. It mutates cfg and must only be called
// after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Node.Role == "" {
		cfg.Node.Role = RoleRouter
	}
	if cfg.Node.TickPeriodUs == 0 {
		cfg.Node.TickPeriodUs = DefaultTickPeriodUs
	}

	if cfg.PHY.SymbolRate == 0 && !cfg.PHY.LongRange {
		cfg.PHY.SymbolRate = DefaultSymbolRate
	}
	plan := &cfg.PHY.Plan
	if plan.RegulatoryDomain == 0 && plan.OperatingClass == 0 && plan.Channels == 0 {
		plan.RegulatoryDomain, plan.OperatingClass = 0x01, 1
	}

	if cfg.Radio.Transport == "" {
		cfg.Radio.Transport = TransportUART
	}
	switch cfg.Radio.Transport {
	case TransportUART:
		if cfg.Radio.Baud == 0 {
			cfg.Radio.Baud = DefaultBaud
		}
	case TransportI2C:
		if cfg.Radio.Address == 0 {
			cfg.Radio.Address = i2c.DefaultAddress
		}
	}

	if cfg.Snapshot.Path != "" && cfg.Snapshot.IntervalS == 0 {
		cfg.Snapshot.IntervalS = DefaultSnapshotIntervalS
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
		if cfg.Log.Debug {
			cfg.Log.Level = "debug"
		}
	}
}
