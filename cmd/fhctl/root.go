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
	"io"
	"log/slog"
	"os"
	"strings"

	fhmac "github.com/ZaparooProject/go-fhmac"
	"github.com/ZaparooProject/go-fhmac/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool

	// Connection overrides for the radio section of the config file
	portName      string
	baudRate      int
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "fhctl",
	Short: "Frequency hopping MAC control tool",
	Long: `fhctl - run and inspect a Wi-SUN frequency hopping MAC node.

The node drives a radio co-processor over a serial port, an I2C bus or a
WebSocket bridge. Settings come from a YAML file (--config); the connection
flags override its radio section.

Connection modes:
  Serial:    --port /dev/ttyACM0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the FHMAC_PASSWORD
environment variable, or prompted interactively if not set.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(*cobra.Command, []string) {
		if debug {
			fhmac.SetDebugEnabled(true)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output")

	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port or I2C bus of the radio")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate (serial only)")
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false,
		"Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads --config, or starts from defaults, and applies the
// connection flags.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if configPath != "" {
		c, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	} else {
		cfg = &config.Config{}
	}

	switch {
	case wsURL != "":
		cfg.Radio.Transport = config.TransportWebSocket
		cfg.Radio.URL = wsURL
		cfg.Radio.Username = wsUsername
		cfg.Radio.InsecureSkipVerify = wsNoSSLVerify
	case portName != "":
		cfg.Radio.Path = portName
		cfg.Radio.Transport = config.TransportUART
		if strings.Contains(strings.ToLower(portName), "i2c") {
			cfg.Radio.Transport = config.TransportI2C
		}
		if baudRate > 0 {
			cfg.Radio.Baud = baudRate
		}
	}
	if debug {
		cfg.Log.Debug = true
		cfg.Log.Level = ""
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	config.Normalize(cfg)
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return cfg.Logger(w)
}
