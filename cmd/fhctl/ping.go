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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the radio co-processor answers",
	Args:  cobra.NoArgs,
	RunE:  runPing,
}

func init() {
	pingCmd.Flags().IntVarP(&pingCount, "count", "n", 4, "Number of pings (0 runs until interrupted)")
	pingCmd.Flags().DurationVarP(&pingInterval, "interval", "i", time.Second, "Time between pings")
	rootCmd.AddCommand(pingCmd)
}

func runPing(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := openRadio(ctx, &cfg.Radio, logger)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	out := cmd.OutOrStdout()
	printField(out, "Radio", fmt.Sprintf("%s firmware %s", r.Type(), r.Info()))

	var sent, answered int
	var total time.Duration
	for i := 0; pingCount == 0 || i < pingCount; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(pingInterval):
			}
		}
		if ctx.Err() != nil {
			break
		}

		sent++
		start := time.Now()
		info, err := r.Ping(ctx)
		elapsed := time.Since(start)
		if err != nil {
			_, _ = fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf("ping %d: %v", i+1, err)))
			continue
		}
		answered++
		total += elapsed
		_, _ = fmt.Fprintf(out, "ping %d: %s time=%s\n", i+1, info, elapsed.Round(time.Microsecond))
	}

	summary := fmt.Sprintf("%d sent, %d answered", sent, answered)
	if answered > 0 {
		summary += fmt.Sprintf(", avg %s", (total / time.Duration(answered)).Round(time.Microsecond))
	}
	printField(out, "Summary", summary)
	if answered == 0 {
		return fmt.Errorf("radio did not answer")
	}
	return nil
}
