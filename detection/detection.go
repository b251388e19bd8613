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

// Package detection finds radio co-processors attached to the host.
//
// Detectors for each transport register themselves when their package is
// imported:
//
//	import (
//		"github.com/ZaparooProject/go-fhmac/detection"
//		_ "github.com/ZaparooProject/go-fhmac/detection/i2c"
//		_ "github.com/ZaparooProject/go-fhmac/detection/uart"
//	)
package detection

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Detection errors.
var (
	ErrNoDevicesFound      = errors.New("no radio devices found")
	ErrUnsupportedPlatform = errors.New("detection not supported on this platform")
	ErrDetectionTimeout    = errors.New("detection timed out")
)

// Mode controls how hard detectors look.
type Mode int

const (
	// Passive only inspects what the OS reports about a port.
	Passive Mode = iota
	// Safe pings ports that look like a known radio bridge.
	Safe
	// Full pings every candidate port.
	Full
)

func (m Mode) String() string {
	switch m {
	case Passive:
		return "passive"
	case Safe:
		return "safe"
	case Full:
		return "full"
	default:
		return "unknown"
	}
}

// Confidence is how sure a detector is that a device is a radio.
type Confidence int

// Confidence levels.
const (
	Low Confidence = iota
	Medium
	High
)

func (c Confidence) String() string {
	switch c {
	case High:
		return "high"
	case Medium:
		return "medium"
	default:
		return "low"
	}
}

// DeviceInfo describes one candidate radio.
type DeviceInfo struct {
	Metadata   map[string]string
	Transport  string
	Path       string
	Name       string
	Confidence Confidence
}

// Options configures detection.
type Options struct {
	// Blocklist holds VID:PID pairs never opened.
	Blocklist []string
	// IgnorePaths holds device paths skipped entirely.
	IgnorePaths []string
	// Timeout bounds the whole detection run.
	Timeout time.Duration
	Mode    Mode
}

// DefaultOptions returns safe detection with the default blocklist.
func DefaultOptions() Options {
	return Options{
		Mode:      Safe,
		Timeout:   5 * time.Second,
		Blocklist: DefaultBlocklist(),
	}
}

// Detector finds devices for one transport.
type Detector interface {
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
	Transport() string
}

var (
	detectorsMu sync.Mutex
	detectors   []Detector
)

// RegisterDetector adds d to the detectors DetectAll runs.
func RegisterDetector(d Detector) {
	detectorsMu.Lock()
	defer detectorsMu.Unlock()
	detectors = append(detectors, d)
}

func registered() []Detector {
	detectorsMu.Lock()
	defer detectorsMu.Unlock()
	return append([]Detector(nil), detectors...)
}

// DetectAll runs every registered detector and returns what they found,
// most confident first.
func DetectAll(opts *Options) ([]DeviceInfo, error) {
	if opts == nil {
		o := DefaultOptions()
		opts = &o
	}
	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	return detectWith(ctx, registered(), opts)
}

func detectWith(ctx context.Context, ds []Detector, opts *Options) ([]DeviceInfo, error) {
	var all []DeviceInfo
	timedOut := false
	for _, d := range ds {
		found, err := d.Detect(ctx, opts)
		if errors.Is(err, ErrDetectionTimeout) {
			timedOut = true
		}
		all = append(all, found...)
	}

	if len(all) == 0 {
		if timedOut || ctx.Err() != nil {
			return nil, ErrDetectionTimeout
		}
		return nil, ErrNoDevicesFound
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Confidence != all[j].Confidence {
			return all[i].Confidence > all[j].Confidence
		}
		return all[i].Path < all[j].Path
	})
	return all, nil
}
