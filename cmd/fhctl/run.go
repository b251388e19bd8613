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
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	fhmac "github.com/ZaparooProject/go-fhmac"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var runTUI bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a hopping node on the radio",
	Long: `Run a frequency hopping node on the radio co-processor.

The node follows its unicast schedule, and a coordinator also runs the
broadcast schedule. When the config file names a snapshot path, attributes
and neighbors are restored from it at startup and saved periodically and on
exit.

Press Ctrl+C to stop. With --tui the neighbor table and engine counters are
shown live; press 'q' to quit.`,
	Args: cobra.NoArgs,
	RunE: runNode,
}

func init() {
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show a live neighbor and counter view")
	rootCmd.AddCommand(runCmd)
}

func runNode(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var logs *logBuffer
	var logOut io.Writer = cmd.ErrOrStderr()
	if runTUI {
		logs = newLogBuffer(maxLogLines)
		logOut = logs
	}
	logger := newLogger(cfg, logOut)
	fhmac.SetDebugLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := openRadio(ctx, &cfg.Radio, logger)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	logger.Info("radio connected",
		slog.String("transport", string(r.Type())),
		slog.String("firmware", r.Info().String()))

	n, err := startNode(ctx, cfg, r, logger, nodeHooks{})
	if err != nil {
		return err
	}

	if !runTUI {
		return n.run(ctx, r.Done())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- n.run(ctx, r.Done()) }()

	title := fmt.Sprintf("%s via %s (%s)", n.eui, r.Type(), cfg.Node.Role)
	p := tea.NewProgram(newMonitorModel(title, n, logs), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		cancel()
		<-errCh
		return fmt.Errorf("error running TUI: %w", err)
	}
	cancel()
	return <-errCh
}
