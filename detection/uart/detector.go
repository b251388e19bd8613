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

// Package uart detects radio co-processors on serial ports
package uart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-fhmac/detection"
	"github.com/ZaparooProject/go-fhmac/transport/uart"
	"go.bug.st/serial/enumerator"
)

const probeTimeout = 500 * time.Millisecond

// detector implements the Detector interface for serial ports
type detector struct {
	list  func() ([]*enumerator.PortDetails, error)
	probe func(ctx context.Context, path string) (map[string]string, bool)
}

// New creates a new serial port detector
func New() detection.Detector {
	return &detector{list: enumerator.GetDetailedPortsList, probe: probePort}
}

// init registers the detector on package import
func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "uart"
}

// Detect lists serial ports and, outside passive mode, pings the likely
// ones
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.list()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, p := range ports {
		select {
		case <-ctx.Done():
			return devices, detection.ErrDetectionTimeout
		default:
		}

		device, ok := d.inspect(ctx, p, opts)
		if ok {
			devices = append(devices, device)
		}
	}
	return devices, nil
}

func (d *detector) inspect(ctx context.Context, p *enumerator.PortDetails, opts *detection.Options) (
	detection.DeviceInfo, bool,
) {
	if detection.IsPathIgnored(p.Name, opts.IgnorePaths) {
		return detection.DeviceInfo{}, false
	}

	device := detection.DeviceInfo{
		Transport:  "uart",
		Path:       p.Name,
		Name:       p.Name,
		Confidence: detection.Low,
		Metadata:   map[string]string{},
	}

	known := false
	if p.IsUSB {
		vidpid := strings.ToUpper(p.VID + ":" + p.PID)
		if detection.IsBlocked(vidpid, opts.Blocklist) {
			return detection.DeviceInfo{}, false
		}
		device.Metadata["vid_pid"] = vidpid
		if p.SerialNumber != "" {
			device.Metadata["serial"] = p.SerialNumber
		}
		if p.Product != "" {
			device.Name = p.Product
		}
		if name, ok := detection.KnownRadio(vidpid); ok {
			known = true
			device.Name = name
			device.Confidence = detection.Medium
		}
	}

	shouldProbe := opts.Mode == detection.Full || (opts.Mode == detection.Safe && known)
	if !shouldProbe {
		// Without a probe only USB bridges are worth reporting.
		return device, p.IsUSB
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	meta, confirmed := d.probe(probeCtx, p.Name)
	cancel()
	if !confirmed {
		return device, known
	}
	device.Confidence = detection.High
	for k, v := range meta {
		device.Metadata[k] = v
	}
	return device, true
}

func probePort(ctx context.Context, path string) (map[string]string, bool) {
	deadline, ok := ctx.Deadline()
	timeout := probeTimeout
	if ok {
		timeout = time.Until(deadline)
	}
	t, err := uart.Open(ctx, path, uart.WithReadyTimeout(timeout), uart.WithRetries(0))
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
