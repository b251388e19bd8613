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
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync/atomic"
	"time"

	fhmac "github.com/ZaparooProject/go-fhmac"
	"github.com/ZaparooProject/go-fhmac/config"
	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/nt"
	"github.com/ZaparooProject/go-fhmac/pib"
	"github.com/ZaparooProject/go-fhmac/polling"
	"github.com/ZaparooProject/go-fhmac/snapshot"
)

// node is a running engine with its neighbor monitor.
type node struct {
	engine   *fhmac.Engine
	monitor  *polling.Monitor
	logger   *slog.Logger
	snapPath string
	eui      dh1cf.EUI64
}

// nodeHooks lets the TUI observe a node. All fields are optional.
type nodeHooks struct {
	callbacks polling.Callbacks
	confirm   func(fhmac.Confirm)
}

// startNode builds an engine on r from cfg, restores the saved snapshot if
// there is one and starts hopping.
func startNode(ctx context.Context, cfg *config.Config, r fhmac.Radio, logger *slog.Logger, hooks nodeHooks) (*node, error) {
	plan, err := cfg.Plan()
	if err != nil {
		return nil, err
	}
	eui, err := cfg.EUI()
	if err != nil {
		return nil, err
	}

	// Saved attributes first so the config file has the last word.
	store := pib.New(plan.NumChannels)
	snap, err := loadSnapshot(cfg.Snapshot.Path, logger)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		if err := snap.ApplyPIB(store); err != nil {
			logger.Warn("snapshot attributes not fully restored", slog.Any("error", err))
		}
	}
	if err := cfg.ApplyPIB(store); err != nil {
		return nil, err
	}

	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		fhmac.WithLogger(logger),
		fhmac.WithStore(store),
		fhmac.WithConfirm(func(c fhmac.Confirm) {
			if c.Status != fhmac.TxSuccess {
				logger.Debug("transmit failed",
					slog.String("dst", c.Frame.Dst.String()),
					slog.String("status", c.Status.String()))
			}
			if hooks.confirm != nil {
				hooks.confirm(c)
			}
		}))
	engine, err := fhmac.New(r, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	n := &node{engine: engine, logger: logger, snapPath: cfg.Snapshot.Path, eui: eui}
	if err := engine.Start(ctx); err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("failed to start hopping: %w", err)
	}
	if snap != nil {
		restored, err := snap.RestoreNeighbors(ctx, engine)
		if err != nil {
			_ = engine.Close()
			return nil, fmt.Errorf("failed to restore neighbors: %w", err)
		}
		logger.Info("neighbors restored", slog.Int("count", restored), slog.Int("saved", len(snap.Neighbors)))
	}

	pollCfg := polling.DefaultConfig()
	callbacks := n.callbacks(hooks.callbacks)
	if n.snapPath != "" {
		pollCfg.SaveInterval = time.Duration(cfg.Snapshot.IntervalS) * time.Second
	} else {
		callbacks.OnSave = nil
	}
	n.monitor, err = polling.NewMonitor(engine, pollCfg, callbacks)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}
	return n, nil
}

func loadSnapshot(path string, logger *slog.Logger) (*snapshot.Snapshot, error) {
	if path == "" {
		return nil, nil
	}
	snap, err := snapshot.Load(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("no snapshot yet", slog.String("path", path))
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	logger.Info("snapshot loaded",
		slog.String("path", path),
		slog.Time("saved_at", snap.SavedAt),
		slog.Int("neighbors", len(snap.Neighbors)))
	return snap, nil
}

// callbacks logs monitor events and chains to extra.
func (n *node) callbacks(extra polling.Callbacks) polling.Callbacks {
	return polling.Callbacks{
		OnJoined: func(nb nt.Neighbor) {
			n.logger.Info("neighbor joined", slog.String("eui", nb.EUI.String()), slog.String("kind", nb.Kind.String()))
			if extra.OnJoined != nil {
				extra.OnJoined(nb)
			}
		},
		OnUpdated: extra.OnUpdated,
		OnPresence: func(nb nt.Neighbor, p polling.Presence) {
			n.logger.Info("neighbor presence", slog.String("eui", nb.EUI.String()), slog.String("presence", p.String()))
			if extra.OnPresence != nil {
				extra.OnPresence(nb, p)
			}
		},
		OnLeft: func(eui dh1cf.EUI64) {
			n.logger.Info("neighbor left", slog.String("eui", eui.String()))
			if extra.OnLeft != nil {
				extra.OnLeft(eui)
			}
		},
		OnMetrics: extra.OnMetrics,
		OnSave:    n.save,
	}
}

func (n *node) save(ctx context.Context) error {
	snap, err := snapshot.Take(ctx, n.eui, n.engine)
	if err != nil {
		n.logger.Warn("snapshot failed", slog.Any("error", err))
		return err
	}
	if err := snapshot.Save(n.snapPath, snap); err != nil {
		n.logger.Warn("snapshot failed", slog.Any("error", err))
		return err
	}
	n.logger.Debug("snapshot saved", slog.String("path", n.snapPath), slog.Int("neighbors", len(snap.Neighbors)))
	return nil
}

// run monitors the node until ctx is done or the radio goes away, then
// shuts the engine down.
func (n *node) run(ctx context.Context, radioDone <-chan struct{}) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var lost atomic.Bool
	go func() {
		select {
		case <-radioDone:
			lost.Store(true)
			cancel()
		case <-ctx.Done():
		}
	}()

	err := n.monitor.Run(ctx)
	closeErr := n.engine.Close()
	switch {
	case lost.Load():
		return errors.New("radio connection lost")
	case ctx.Err() != nil:
		return closeErr
	default:
		return errors.Join(err, closeErr)
	}
}
