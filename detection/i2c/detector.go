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

// Package i2c detects radio co-processors on I2C buses
package i2c

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ZaparooProject/go-fhmac/detection"
	"github.com/ZaparooProject/go-fhmac/transport/i2c"
)

const probeTimeout = 500 * time.Millisecond

// busInfo describes an I2C bus
type busInfo struct {
	Path   string // Device path, e.g., "/dev/i2c-1"
	Number int    // Bus number
}

// detector implements the Detector interface for I2C devices
type detector struct {
	buses func() ([]busInfo, error)
	scan  func(path string) []uint16
	probe func(ctx context.Context, bus busInfo, addr uint16) (map[string]string, bool)
}

// New creates a new I2C detector
func New() detection.Detector {
	return &detector{buses: findBuses, scan: scanBus, probe: probeAddress}
}

// init registers the detector on package import
func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "i2c"
}

// Detect searches the I2C buses for radio co-processors
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	buses, err := d.buses()
	if err != nil {
		return nil, err
	}

	var devices []detection.DeviceInfo
	for _, bus := range buses {
		select {
		case <-ctx.Done():
			return devices, detection.ErrDetectionTimeout
		default:
		}

		for _, addr := range d.scan(bus.Path) {
			if device, ok := d.inspect(ctx, bus, addr, opts); ok {
				devices = append(devices, device)
			}
		}
	}
	return devices, nil
}

func (d *detector) inspect(ctx context.Context, bus busInfo, addr uint16, opts *detection.Options) (
	detection.DeviceInfo, bool,
) {
	devicePath := fmt.Sprintf("%s:0x%02X", bus.Path, addr)
	if detection.IsPathIgnored(devicePath, opts.IgnorePaths) {
		return detection.DeviceInfo{}, false
	}

	isDefault := addr == i2c.DefaultAddress
	if !isDefault && opts.Mode != detection.Full {
		return detection.DeviceInfo{}, false
	}

	device := detection.DeviceInfo{
		Transport:  "i2c",
		Path:       devicePath,
		Name:       fmt.Sprintf("I2C device at %s address 0x%02X", bus.Path, addr),
		Confidence: detection.Low,
		Metadata: map[string]string{
			"bus":     strconv.Itoa(bus.Number),
			"address": fmt.Sprintf("0x%02X", addr),
		},
	}
	if isDefault {
		device.Confidence = detection.Medium
	}
	if opts.Mode == detection.Passive {
		return device, true
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	meta, confirmed := d.probe(probeCtx, bus, addr)
	cancel()
	if !confirmed {
		// Skip low confidence devices that don't respond
		return device, isDefault
	}
	device.Confidence = detection.High
	for k, v := range meta {
		device.Metadata[k] = v
	}
	return device, true
}

// probeAddress pings a radio at addr through periph's bus driver
func probeAddress(ctx context.Context, bus busInfo, addr uint16) (map[string]string, bool) {
	t, err := i2c.Open(ctx, strconv.Itoa(bus.Number), i2c.WithAddress(addr))
	if err != nil {
		return nil, false
	}
	defer func() { _ = t.Close() }()

	info := t.Info()
	return map[string]string{
		"firmware": fmt.Sprintf("%d.%d", info.Major, info.Minor),
		"cca":      info.CCA.String(),
	}, true
}
