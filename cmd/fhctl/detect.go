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

package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ZaparooProject/go-fhmac/detection"
	"github.com/spf13/cobra"
)

var (
	detectMode    string
	detectTimeout time.Duration
	detectIgnore  []string
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Find radio co-processors on serial ports and I2C buses",
	Long: `Find radio co-processors on serial ports and I2C buses.

Modes:
  passive  list candidates without opening them
  safe     probe likely candidates only (default)
  full     probe every candidate, including unknown I2C addresses`,
	Args: cobra.NoArgs,
	RunE: runDetect,
}

func init() {
	detectCmd.Flags().StringVar(&detectMode, "mode", "safe", "Detection mode: passive, safe or full")
	detectCmd.Flags().DurationVar(&detectTimeout, "timeout", 5*time.Second, "Overall detection timeout")
	detectCmd.Flags().StringSliceVar(&detectIgnore, "ignore", nil, "Device paths to skip")
	rootCmd.AddCommand(detectCmd)
}

func parseMode(name string) (detection.Mode, error) {
	for _, m := range []detection.Mode{detection.Passive, detection.Safe, detection.Full} {
		if m.String() == strings.ToLower(name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown detection mode %q", name)
}

func formatMetadata(meta map[string]string) string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+meta[k])
	}
	return strings.Join(parts, " ")
}

func runDetect(cmd *cobra.Command, _ []string) error {
	mode, err := parseMode(detectMode)
	if err != nil {
		return err
	}
	opts := detection.DefaultOptions()
	opts.Mode = mode
	opts.Timeout = detectTimeout
	opts.IgnorePaths = detectIgnore

	devices, err := detection.DetectAll(&opts)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, []string{d.Transport, d.Path, d.Confidence.String(), d.Name, formatMetadata(d.Metadata)})
	}
	out := cmd.OutOrStdout()
	printTitle(out, fmt.Sprintf("DETECTED RADIOS (%s)", mode))
	_, _ = fmt.Fprintln(out, renderTable([]string{"Transport", "Path", "Confidence", "Name", "Details"}, rows))
	return nil
}
