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

package detection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	err   error
	name  string
	found []DeviceInfo
}

func (f fakeDetector) Detect(context.Context, *Options) ([]DeviceInfo, error) {
	return f.found, f.err
}

func (f fakeDetector) Transport() string { return f.name }

func TestDetectWith_Sorted(t *testing.T) {
	t.Parallel()

	ds := []Detector{
		fakeDetector{name: "uart", found: []DeviceInfo{
			{Path: "/dev/ttyUSB1", Confidence: Low},
			{Path: "/dev/ttyACM0", Confidence: High},
		}},
		fakeDetector{name: "i2c", err: ErrUnsupportedPlatform},
		fakeDetector{name: "i2c", found: []DeviceInfo{
			{Path: "/dev/i2c-1:0x24", Confidence: Medium},
			{Path: "/dev/i2c-0:0x24", Confidence: High},
		}},
	}

	opts := DefaultOptions()
	got, err := detectWith(context.Background(), ds, &opts)
	require.NoError(t, err)

	paths := make([]string, 0, len(got))
	for _, d := range got {
		paths = append(paths, d.Path)
	}
	assert.Equal(t, []string{"/dev/i2c-0:0x24", "/dev/ttyACM0", "/dev/i2c-1:0x24", "/dev/ttyUSB1"}, paths)
}

func TestDetectWith_Empty(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	_, err := detectWith(context.Background(), []Detector{fakeDetector{name: "uart"}}, &opts)
	assert.ErrorIs(t, err, ErrNoDevicesFound)

	_, err = detectWith(context.Background(),
		[]Detector{fakeDetector{name: "uart", err: ErrDetectionTimeout}}, &opts)
	assert.ErrorIs(t, err, ErrDetectionTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	_, err = detectWith(ctx, []Detector{fakeDetector{name: "uart"}}, &opts)
	assert.ErrorIs(t, err, ErrDetectionTimeout)
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	assert.Equal(t, Safe, opts.Mode)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.NotEmpty(t, opts.Blocklist)
}

func TestModeAndConfidenceString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "passive", Passive.String())
	assert.Equal(t, "safe", Safe.String())
	assert.Equal(t, "full", Full.String())
	assert.Equal(t, "unknown", Mode(9).String())
	assert.Equal(t, "high", High.String())
	assert.Equal(t, "medium", Medium.String())
	assert.Equal(t, "low", Low.String())
}
