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

package uart

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"

	"github.com/ZaparooProject/go-fhmac/detection"
)

func fakeDetector(ports []*enumerator.PortDetails, confirm map[string]bool) (*detector, *[]string) {
	var probed []string
	return &detector{
		list: func() ([]*enumerator.PortDetails, error) { return ports, nil },
		probe: func(_ context.Context, path string) (map[string]string, bool) {
			probed = append(probed, path)
			if confirm[path] {
				return map[string]string{"firmware": "1.0"}, true
			}
			return nil, false
		},
	}, &probed
}

var testPorts = []*enumerator.PortDetails{
	{Name: "/dev/ttyACM0", IsUSB: true, VID: "0451", PID: "bef3", SerialNumber: "L1100ABC"},
	{Name: "/dev/ttyACM1", IsUSB: true, VID: "2341", PID: "0043"},
	{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1a86", PID: "7523", Product: "USB Serial"},
	{Name: "/dev/ttyS0"},
}

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		confirm    map[string]bool
		want       map[string]detection.Confidence
		name       string
		wantProbed []string
		ignore     []string
		mode       detection.Mode
	}{
		{
			name: "passive reports usb bridges",
			mode: detection.Passive,
			want: map[string]detection.Confidence{
				"/dev/ttyACM0": detection.Medium,
				"/dev/ttyUSB0": detection.Low,
			},
		},
		{
			name:       "safe probes known radios only",
			mode:       detection.Safe,
			confirm:    map[string]bool{"/dev/ttyACM0": true},
			wantProbed: []string{"/dev/ttyACM0"},
			want: map[string]detection.Confidence{
				"/dev/ttyACM0": detection.High,
				"/dev/ttyUSB0": detection.Low,
			},
		},
		{
			name:       "full probes everything not blocked",
			mode:       detection.Full,
			confirm:    map[string]bool{"/dev/ttyS0": true},
			wantProbed: []string{"/dev/ttyACM0", "/dev/ttyUSB0", "/dev/ttyS0"},
			want: map[string]detection.Confidence{
				"/dev/ttyACM0": detection.Medium,
				"/dev/ttyS0":   detection.High,
			},
		},
		{
			name:   "ignored paths are skipped",
			mode:   detection.Passive,
			ignore: []string{"/dev/ttyACM0"},
			want: map[string]detection.Confidence{
				"/dev/ttyUSB0": detection.Low,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, probed := fakeDetector(testPorts, tt.confirm)
			opts := detection.DefaultOptions()
			opts.Mode = tt.mode
			opts.IgnorePaths = tt.ignore

			found, err := d.Detect(context.Background(), &opts)
			require.NoError(t, err)

			got := map[string]detection.Confidence{}
			for _, dev := range found {
				assert.Equal(t, "uart", dev.Transport)
				got[dev.Path] = dev.Confidence
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantProbed, *probed)
		})
	}
}

func TestDetect_Metadata(t *testing.T) {
	t.Parallel()

	d, _ := fakeDetector(testPorts[:1], map[string]bool{"/dev/ttyACM0": true})
	opts := detection.DefaultOptions()

	found, err := d.Detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "0451:BEF3", found[0].Metadata["vid_pid"])
	assert.Equal(t, "L1100ABC", found[0].Metadata["serial"])
	assert.Equal(t, "1.0", found[0].Metadata["firmware"])
	assert.Contains(t, found[0].Name, "XDS110")
}

func TestDetect_ListError(t *testing.T) {
	t.Parallel()

	d := &detector{list: func() ([]*enumerator.PortDetails, error) { return nil, errors.New("no sysfs") }}
	opts := detection.DefaultOptions()
	_, err := d.Detect(context.Background(), &opts)
	assert.Error(t, err)
}

func TestDetect_Cancelled(t *testing.T) {
	t.Parallel()

	d, _ := fakeDetector(testPorts, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := detection.DefaultOptions()
	_, err := d.Detect(ctx, &opts)
	assert.ErrorIs(t, err, detection.ErrDetectionTimeout)
}
