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
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/pib"
	"github.com/spf13/cobra"
)

var pibCmd = &cobra.Command{
	Use:   "pib",
	Short: "Inspect frequency hopping attributes",
}

var pibListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every attribute with its configured value",
	Long: `List every attribute with the value a node started from --config would
use: the default, overridden by the config file's pib section.`,
	Args: cobra.NoArgs,
	RunE: runPIBList,
}

func init() {
	pibCmd.AddCommand(pibListCmd)
	rootCmd.AddCommand(pibCmd)
}

// channelRanges renders the channels set in mask as "0-3,7".
func channelRanges(mask []byte, maxChannels uint16) string {
	var parts []string
	for ch := uint16(0); ch < maxChannels; ch++ {
		if !dh1cf.Excluded(mask, ch) {
			continue
		}
		lo := ch
		for ch+1 < maxChannels && dh1cf.Excluded(mask, ch+1) {
			ch++
		}
		if lo == ch {
			parts = append(parts, strconv.Itoa(int(lo)))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", lo, ch))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// formatAttr renders a raw attribute value for display.
func formatAttr(id pib.ID, data []byte, maxChannels uint16) string {
	switch id {
	case pib.TrackParentEUI:
		if len(data) != 8 {
			break
		}
		eui := dh1cf.EUI64(data)
		if eui == pib.InvalidEUI {
			return "none"
		}
		return eui.String()
	case pib.UcExcludedChannels, pib.BcExcludedChannels:
		return channelRanges(data, maxChannels)
	case pib.NetName:
		return strconv.Quote(strings.TrimRight(string(data), "\x00"))
	case pib.GTK0Hash, pib.GTK1Hash, pib.GTK2Hash, pib.GTK3Hash:
		return hex.EncodeToString(data)
	}

	switch len(data) {
	case 1:
		return strconv.Itoa(int(data[0]))
	case 2:
		return strconv.Itoa(int(binary.LittleEndian.Uint16(data)))
	case 4:
		return strconv.FormatUint(uint64(binary.LittleEndian.Uint32(data)), 10)
	default:
		return hex.EncodeToString(data)
	}
}

func attrRows(values map[pib.ID][]byte, maxChannels uint16) [][]string {
	rows := make([][]string, 0, len(values))
	for _, id := range pib.IDs() {
		data, ok := values[id]
		if !ok {
			continue
		}
		rows = append(rows, []string{
			fmt.Sprintf("0x%04X", uint16(id)),
			id.String(),
			strconv.Itoa(pib.Size(id)),
			formatAttr(id, data, maxChannels),
		})
	}
	return rows
}

func runPIBList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	plan, err := cfg.Plan()
	if err != nil {
		return err
	}
	store := pib.New(plan.NumChannels)
	if err := cfg.ApplyPIB(store); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printTitle(out, "ATTRIBUTES")
	printField(out, "Plan", plan)
	rows := attrRows(store.Snapshot(), plan.NumChannels)
	_, _ = fmt.Fprintln(out, renderTable([]string{"ID", "Name", "Size", "Value"}, rows))
	return nil
}
