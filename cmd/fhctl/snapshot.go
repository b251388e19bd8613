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
	"strconv"
	"time"

	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/nt"
	"github.com/ZaparooProject/go-fhmac/pib"
	"github.com/ZaparooProject/go-fhmac/snapshot"
	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect saved node state",
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print the attributes and neighbors of a snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotShow,
}

func init() {
	snapshotCmd.AddCommand(snapshotShowCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func neighborRows(s *snapshot.Snapshot) [][]string {
	rows := make([][]string, 0, len(s.Neighbors))
	for _, nb := range s.Neighbors {
		schedule := dh1cf.ChannelFunction(nb.ChannelFunc).String()
		if dh1cf.ChannelFunction(nb.ChannelFunc) == dh1cf.FunctionFixed {
			schedule += " ch " + strconv.Itoa(int(nb.FixedChannel))
		} else {
			schedule += fmt.Sprintf(" %d ch %dms", nb.NumChannels, nb.Dwell)
		}
		rows = append(rows, []string{
			nb.EUI.String(),
			nt.Kind(nb.Kind).String(),
			schedule,
			(time.Duration(nb.AgeMs) * time.Millisecond).String(),
			strconv.FormatUint(uint64(nb.UFSI), 10),
		})
	}
	return rows
}

func runSnapshotShow(cmd *cobra.Command, args []string) error {
	s, err := snapshot.Load(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printTitle(out, "SNAPSHOT "+args[0])
	printField(out, "Saved", s.SavedAt.Format(time.RFC3339))
	printField(out, "Node", s.EUI.String())
	printField(out, "Channels", s.MaxChannels)

	values := make(map[pib.ID][]byte, len(s.PIB))
	for id, v := range s.PIB {
		values[pib.ID(id)] = v
	}
	_, _ = fmt.Fprintln(out, renderTable([]string{"ID", "Name", "Size", "Value"}, attrRows(values, s.MaxChannels)))

	if len(s.Neighbors) == 0 {
		_, _ = fmt.Fprintln(out, dimStyle.Render("No neighbors saved"))
		return nil
	}
	_, _ = fmt.Fprintln(out, renderTable([]string{"Neighbor", "Kind", "Schedule", "Age", "UFSI"}, neighborRows(s)))
	return nil
}
