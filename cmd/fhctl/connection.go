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
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	fhmac "github.com/ZaparooProject/go-fhmac"
	"github.com/ZaparooProject/go-fhmac/config"
	"github.com/ZaparooProject/go-fhmac/detection"
	// Import all detectors to register them
	_ "github.com/ZaparooProject/go-fhmac/detection/i2c"
	_ "github.com/ZaparooProject/go-fhmac/detection/uart"
	"github.com/ZaparooProject/go-fhmac/transport/i2c"
	"github.com/ZaparooProject/go-fhmac/transport/uart"
	"github.com/ZaparooProject/go-fhmac/transport/ws"
	"golang.org/x/term"
)

const passwordEnv = "FHMAC_PASSWORD"

// radio is what every transport offers on top of fhmac.Radio.
type radio interface {
	fhmac.Radio
	Info() fhmac.RadioInfo
	Ping(ctx context.Context) (fhmac.RadioInfo, error)
	Done() <-chan struct{}
}

// getPassword returns the WebSocket password from the environment or
// prompts for it without echo.
func getPassword() (string, error) {
	if password := os.Getenv(passwordEnv); password != "" {
		return password, nil
	}

	_, _ = fmt.Fprint(os.Stderr, "Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal, read a plain line instead
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		_, _ = fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}
	_, _ = fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

func ccaOverride(name string) (fhmac.CCAType, bool) {
	switch name {
	case "lbt":
		return fhmac.CCALBT, true
	case "csma":
		return fhmac.CCACSMA, true
	default:
		return 0, false
	}
}

func linkTimeout(rc *config.RadioConfig) time.Duration {
	return time.Duration(rc.TimeoutMs) * time.Millisecond
}

// openRadio connects to the radio described by rc. A serial transport
// without a path falls back to auto-detection.
func openRadio(ctx context.Context, rc *config.RadioConfig, logger *slog.Logger) (radio, error) {
	cca, hasCCA := ccaOverride(rc.CCA)

	switch rc.Transport {
	case config.TransportWebSocket:
		opts := []ws.Option{ws.WithLogger(logger)}
		if rc.Username != "" {
			password, err := getPassword()
			if err != nil {
				return nil, err
			}
			opts = append(opts, ws.WithBasicAuth(rc.Username, password))
		}
		if rc.InsecureSkipVerify {
			opts = append(opts, ws.WithInsecureSkipVerify())
		}
		if hasCCA {
			opts = append(opts, ws.WithCCA(cca))
		}
		if rc.TimeoutMs > 0 {
			opts = append(opts, ws.WithTimeout(linkTimeout(rc)))
		}
		if rc.Retries != nil {
			opts = append(opts, ws.WithRetries(*rc.Retries))
		}
		t, err := ws.Dial(ctx, rc.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", rc.URL, err)
		}
		return t, nil

	case config.TransportI2C:
		opts := []i2c.Option{i2c.WithLogger(logger), i2c.WithAddress(rc.Address)}
		if hasCCA {
			opts = append(opts, i2c.WithCCA(cca))
		}
		if rc.TimeoutMs > 0 {
			opts = append(opts, i2c.WithTimeout(linkTimeout(rc)))
		}
		t, err := i2c.Open(ctx, rc.Path, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport: %w", err)
		}
		return t, nil

	default:
		if rc.Path == "" {
			return detectRadio(ctx, logger)
		}
		opts := []uart.Option{uart.WithLogger(logger), uart.WithBaudRate(rc.Baud)}
		if hasCCA {
			opts = append(opts, uart.WithCCA(cca))
		}
		if rc.TimeoutMs > 0 {
			opts = append(opts, uart.WithTimeout(linkTimeout(rc)))
		}
		if rc.Retries != nil {
			opts = append(opts, uart.WithRetries(*rc.Retries))
		}
		t, err := uart.Open(ctx, rc.Path, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create UART transport: %w", err)
		}
		return t, nil
	}
}

// detectRadio opens the most confident radio auto-detection finds.
func detectRadio(ctx context.Context, logger *slog.Logger) (radio, error) {
	_, _ = fmt.Fprintln(os.Stderr, "Auto-detecting radio devices...")
	opts := detection.DefaultOptions()
	devices, err := detection.DetectAll(&opts)
	if err != nil {
		return nil, fmt.Errorf("auto-detection failed: %w", err)
	}

	var errs []error
	for _, device := range devices {
		r, err := newRadioFromDevice(ctx, device, logger)
		if err == nil {
			logger.Info("using detected radio",
				slog.String("transport", device.Transport),
				slog.String("path", device.Path),
				slog.String("confidence", device.Confidence.String()))
			return r, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

// newRadioFromDevice opens a detected device.
func newRadioFromDevice(ctx context.Context, device detection.DeviceInfo, logger *slog.Logger) (radio, error) {
	switch strings.ToLower(device.Transport) {
	case "uart":
		t, err := uart.Open(ctx, device.Path, uart.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create UART transport: %w", err)
		}
		return t, nil
	case "i2c":
		bus := device.Metadata["bus"]
		var addr uint16 = i2c.DefaultAddress
		if a, ok := device.Metadata["address"]; ok {
			if _, err := fmt.Sscanf(a, "0x%X", &addr); err != nil {
				return nil, fmt.Errorf("bad I2C address %q: %w", a, err)
			}
		}
		t, err := i2c.Open(ctx, bus, i2c.WithAddress(addr), i2c.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport: %w", err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", device.Transport)
	}
}
