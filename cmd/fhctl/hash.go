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
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ZaparooProject/go-fhmac/config"
	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/pib"
	"github.com/spf13/cobra"
)

var (
	hashEUI      string
	hashBSI      uint16
	hashSlots    string
	hashExclude  []string
	hashChannels uint16
)

var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Print the DH1CF channel sequence of a node",
	Long: `Print the channels a node hops through using the DH1CF channel function.

With --eui the unicast sequence of that address is shown; with --bsi the
broadcast sequence of that broadcast schedule. Excluded channels are
skipped the way a neighbor would skip them.`,
	Example: `  fhctl hash --eui 00:12:4b:00:00:00:1c:02 --slots 0-15
  fhctl hash --bsi 7 --channels 35 --exclude 0-3,20`,
	Args: cobra.NoArgs,
	RunE: runHash,
}

func init() {
	hashCmd.Flags().StringVar(&hashEUI, "eui", "", "Node address for the unicast sequence")
	hashCmd.Flags().Uint16Var(&hashBSI, "bsi", 0, "Broadcast schedule id for the broadcast sequence")
	hashCmd.Flags().StringVar(&hashSlots, "slots", "0-9", "Slot range, lo-hi")
	hashCmd.Flags().StringSliceVar(&hashExclude, "exclude", nil, "Excluded channels or ranges, e.g. 0-3,20")
	hashCmd.Flags().Uint16Var(&hashChannels, "channels", 0, "Channel count (default: the configured plan)")
	rootCmd.AddCommand(hashCmd)
}

func parseSlots(s string) (lo, hi uint16, err error) {
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		to = from
	}
	a, err := strconv.ParseUint(strings.TrimSpace(from), 10, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("bad slot range %q: %w", s, err)
	}
	b, err := strconv.ParseUint(strings.TrimSpace(to), 10, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("bad slot range %q: %w", s, err)
	}
	if b < a {
		return 0, 0, fmt.Errorf("bad slot range %q: end before start", s)
	}
	return uint16(a), uint16(b), nil
}

// hashSequence returns the absolute channel of every slot in [lo, hi].
// A nil eui selects the broadcast sequence of bsi.
func hashSequence(eui *dh1cf.EUI64, bsi, lo, hi uint16, exclude []byte, maxChannels uint16) ([]uint16, error) {
	if dh1cf.Available(exclude, maxChannels) == 0 {
		return nil, dh1cf.ErrNoFreeChannel
	}
	out := make([]uint16, 0, int(hi-lo)+1)
	for slot := int(lo); slot <= int(hi); slot++ {
		if eui != nil {
			out = append(out, dh1cf.UnicastChannelNumber(uint16(slot), *eui, exclude, maxChannels))
		} else {
			out = append(out, dh1cf.BroadcastChannelNumber(uint16(slot), bsi, exclude, maxChannels))
		}
	}
	return out, nil
}

func runHash(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	plan, err := cfg.Plan()
	if err != nil {
		return err
	}
	maxChannels := plan.NumChannels
	if hashChannels != 0 {
		maxChannels = hashChannels
	}
	if maxChannels > pib.BitmapSize*8 {
		return fmt.Errorf("at most %d channels are supported", pib.BitmapSize*8)
	}

	lo, hi, err := parseSlots(hashSlots)
	if err != nil {
		return err
	}
	exclude, err := config.ExcludeMask(hashExclude, maxChannels)
	if err != nil {
		return err
	}

	var eui *dh1cf.EUI64
	title := fmt.Sprintf("BROADCAST SEQUENCE bsi=%d", hashBSI)
	if hashEUI != "" {
		e, err := dh1cf.ParseEUI(hashEUI)
		if err != nil {
			return err
		}
		eui = &e
		title = "UNICAST SEQUENCE " + e.String()
	} else if !cmd.Flags().Changed("bsi") {
		return errors.New("one of --eui or --bsi is required")
	}

	seq, err := hashSequence(eui, hashBSI, lo, hi, exclude, maxChannels)
	if err != nil {
		return err
	}

	// Frequencies only make sense for the plan's own channel count.
	showFreq := maxChannels == plan.NumChannels
	rows := make([][]string, 0, len(seq))
	for i, ch := range seq {
		row := []string{strconv.Itoa(int(lo) + i), strconv.Itoa(int(ch))}
		if showFreq {
			row = append(row, plan.Channel(ch).String())
		}
		rows = append(rows, row)
	}
	headers := []string{"Slot", "Channel"}
	if showFreq {
		headers = append(headers, "Frequency")
	}

	out := cmd.OutOrStdout()
	printTitle(out, title)
	printField(out, "Usable channels", fmt.Sprintf("%d of %d", dh1cf.Available(exclude, maxChannels), maxChannels))
	_, _ = fmt.Fprintln(out, renderTable(headers, rows))
	return nil
}
