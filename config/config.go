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

// Package config loads the YAML description of a frequency hopping node:
// its role and PHY, attribute overrides, the radio it drives and where its
// state is kept.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root of a node configuration file.
type Config struct {
	PIB      map[string]yaml.Node `yaml:"pib"`
	Snapshot SnapshotConfig       `yaml:"snapshot"`
	Radio    RadioConfig          `yaml:"radio"`
	Node     NodeConfig           `yaml:"node"`
	PHY      PHYConfig            `yaml:"phy"`
	Log      LogConfig            `yaml:"log"`
}

// ---- NODE ----

// Node roles.
const (
	RoleRouter      = "router"
	RoleCoordinator = "coordinator"
	RoleSleepy      = "sleepy"
)

// NodeConfig describes the node itself.
type NodeConfig struct {
	EUI          string      `yaml:"eui"`
	Role         string      `yaml:"role"`
	TickPeriodUs int         `yaml:"tick_period_us"`
	MailboxSize  int         `yaml:"mailbox_size"`
	Queue        QueueConfig `yaml:"queue"`
}

// QueueConfig sizes the transmit queue.
type QueueConfig struct {
	Direct   int `yaml:"direct"`
	Indirect int `yaml:"indirect"`
}

// ---- PHY ----

// PHYConfig selects the PHY mode and channel plan.
type PHYConfig struct {
	Plan       PlanConfig `yaml:"plan"`
	SymbolRate uint32     `yaml:"symbol_rate"`
	LongRange  bool       `yaml:"long_range"`
}

// PlanConfig names a regulatory plan by domain and class, or spells one out.
type PlanConfig struct {
	RegulatoryDomain uint8  `yaml:"regulatory_domain"`
	OperatingClass   uint8  `yaml:"operating_class"`
	Ch0kHz           uint32 `yaml:"ch0_khz"`
	Spacing          uint8  `yaml:"spacing"`
	Channels         uint16 `yaml:"channels"`
}

// ---- RADIO ----

// Radio transports.
const (
	TransportUART      = "uart"
	TransportI2C       = "i2c"
	TransportWebSocket = "ws"
)

// RadioConfig selects the radio co-processor link.
type RadioConfig struct {
	Transport string `yaml:"transport"`
	// Path is the serial port or I2C bus.
	Path string `yaml:"path"`
	URL  string `yaml:"url"`
	// Username enables basic auth on a WebSocket bridge. The password is
	// taken from FHMAC_PASSWORD or prompted for.
	Username           string `yaml:"username"`
	CCA                string `yaml:"cca"`
	Baud               int    `yaml:"baud"`
	TimeoutMs          int    `yaml:"timeout_ms"`
	Retries            *int   `yaml:"retries"`
	Address            uint16 `yaml:"address"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// ---- SNAPSHOT ----

// SnapshotConfig controls persistence of attributes and neighbors.
type SnapshotConfig struct {
	Path      string `yaml:"path"`
	IntervalS int    `yaml:"interval_s"`
}

// ---- LOG ----

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"`
	Debug bool   `yaml:"debug"`
}

// Parse decodes a configuration document. Unknown keys are an error.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Load reads, validates and normalizes the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	Normalize(cfg)
	return cfg, nil
}
