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

package config

import (
	"fmt"
	"net/url"
	"sort"

	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/pib"
)

const maxPlanChannels = pib.BitmapSize * 8

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if err := validateNode(&cfg.Node); err != nil {
		return err
	}
	if err := validatePHY(&cfg.PHY); err != nil {
		return err
	}
	if err := validateRadio(&cfg.Radio); err != nil {
		return err
	}

	if cfg.Snapshot.IntervalS < 0 {
		return fmt.Errorf("snapshot: interval_s must not be negative")
	}
	if cfg.Snapshot.IntervalS > 0 && cfg.Snapshot.Path == "" {
		return fmt.Errorf("snapshot: interval_s is set but no path is given")
	}

	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: unknown level %q", cfg.Log.Level)
	}

	return validatePIB(cfg)
}

func validateNode(n *NodeConfig) error {
	if n.EUI != "" {
		if _, err := dh1cf.ParseEUI(n.EUI); err != nil {
			return fmt.Errorf("node: %w", err)
		}
	}

	switch n.Role {
	case "", RoleRouter, RoleCoordinator, RoleSleepy:
	default:
		return fmt.Errorf("node: unknown role %q", n.Role)
	}

	if n.TickPeriodUs < 0 || n.TickPeriodUs > 1000 || (n.TickPeriodUs > 0 && 1000%n.TickPeriodUs != 0) {
		return fmt.Errorf("node: tick_period_us %d must divide 1000", n.TickPeriodUs)
	}
	if n.MailboxSize < 0 {
		return fmt.Errorf("node: mailbox_size must not be negative")
	}
	if n.Queue.Direct < 0 || n.Queue.Indirect < 0 {
		return fmt.Errorf("node: queue sizes must not be negative")
	}
	return nil
}

func validatePHY(p *PHYConfig) error {
	switch p.SymbolRate {
	case 0, 50, 100, 150, 200, 300:
	default:
		if !p.LongRange {
			return fmt.Errorf("phy: unsupported symbol_rate %d", p.SymbolRate)
		}
	}

	plan := p.Plan
	byClass := plan.RegulatoryDomain != 0 || plan.OperatingClass != 0
	explicit := plan.Ch0kHz != 0 || plan.Channels != 0
	switch {
	case byClass && explicit:
		return fmt.Errorf("phy: plan must be given by class or spelled out, not both")
	case byClass:
		if _, ok := planByClass(plan.RegulatoryDomain, plan.OperatingClass); !ok {
			return fmt.Errorf("phy: no plan for regulatory_domain %d operating_class %d",
				plan.RegulatoryDomain, plan.OperatingClass)
		}
	case explicit:
		if plan.Ch0kHz == 0 || plan.Channels == 0 {
			return fmt.Errorf("phy: an explicit plan needs ch0_khz and channels")
		}
		if plan.Channels > maxPlanChannels {
			return fmt.Errorf("phy: %d channels exceed the %d channel exclude mask", plan.Channels, maxPlanChannels)
		}
		if plan.Spacing > 3 {
			return fmt.Errorf("phy: unknown spacing code %d", plan.Spacing)
		}
	}
	return nil
}

func validateRadio(r *RadioConfig) error {
	switch r.Transport {
	case "", TransportUART, TransportI2C:
	case TransportWebSocket:
		u, err := url.Parse(r.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("radio: ws transport needs a ws:// or wss:// url, got %q", r.URL)
		}
	default:
		return fmt.Errorf("radio: unknown transport %q", r.Transport)
	}

	switch r.CCA {
	case "", "lbt", "csma":
	default:
		return fmt.Errorf("radio: unknown cca %q", r.CCA)
	}
	if r.Baud < 0 {
		return fmt.Errorf("radio: baud must not be negative")
	}
	if r.TimeoutMs < 0 {
		return fmt.Errorf("radio: timeout_ms must not be negative")
	}
	if r.Retries != nil && *r.Retries < 0 {
		return fmt.Errorf("radio: retries must not be negative")
	}
	if r.Address > 0x7F {
		return fmt.Errorf("radio: I2C address 0x%X is not a 7-bit address", r.Address)
	}
	return nil
}

// validatePIB encodes every override and checks it against a scratch store
// sized for the configured plan.
func validatePIB(cfg *Config) error {
	plan, err := cfg.Plan()
	if err != nil {
		return err
	}
	store := pib.New(plan.NumChannels)
	for _, name := range sortedKeys(cfg.PIB) {
		id, ok := pib.ParseID(name)
		if !ok {
			return fmt.Errorf("pib: unknown attribute %q", name)
		}
		node := cfg.PIB[name]
		data, err := encodeAttr(id, &node, plan.NumChannels)
		if err != nil {
			return fmt.Errorf("pib: %s: %w", name, err)
		}
		if err := store.Set(id, data); err != nil {
			return fmt.Errorf("pib: %s: %w", name, err)
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
