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
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	fhmac "github.com/ZaparooProject/go-fhmac"
	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/ie"
	"github.com/ZaparooProject/go-fhmac/pib"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
)

func planByClass(domain, class uint8) (ie.Plan, bool) {
	for _, p := range ie.Plans {
		if p.RegulatoryDomain == domain && p.OperatingClass == class {
			return p, true
		}
	}
	return ie.Plan{}, false
}

// Plan resolves the configured channel plan. An empty plan section selects
// ie.DefaultPlan.
func (c *Config) Plan() (ie.Plan, error) {
	p := c.PHY.Plan
	switch {
	case p.Channels != 0:
		plan, _ := ie.LocalPlan(physic.Frequency(p.Ch0kHz)*physic.KiloHertz, p.Spacing, p.Channels)
		return plan, nil
	case p.RegulatoryDomain != 0 || p.OperatingClass != 0:
		plan, ok := planByClass(p.RegulatoryDomain, p.OperatingClass)
		if !ok {
			return ie.Plan{}, fmt.Errorf("phy: no plan for regulatory_domain %d operating_class %d",
				p.RegulatoryDomain, p.OperatingClass)
		}
		return plan, nil
	default:
		return ie.DefaultPlan, nil
	}
}

// EUI returns the node address, the zero address when none is configured.
func (c *Config) EUI() (dh1cf.EUI64, error) {
	if c.Node.EUI == "" {
		return dh1cf.EUI64{}, nil
	}
	return dh1cf.ParseEUI(c.Node.EUI)
}

// EngineOptions translates the node and PHY sections into engine options.
func (c *Config) EngineOptions() ([]fhmac.Option, error) {
	eui, err := c.EUI()
	if err != nil {
		return nil, err
	}
	plan, err := c.Plan()
	if err != nil {
		return nil, err
	}

	opts := []fhmac.Option{fhmac.WithEUI(eui), fhmac.WithPlan(plan)}
	switch c.Node.Role {
	case RoleCoordinator:
		opts = append(opts, fhmac.WithCoordinator())
	case RoleSleepy:
		opts = append(opts, fhmac.WithSleepy())
	}
	if c.Node.TickPeriodUs > 0 {
		opts = append(opts, fhmac.WithTickPeriod(time.Duration(c.Node.TickPeriodUs)*time.Microsecond))
	}
	if c.Node.MailboxSize > 0 {
		opts = append(opts, fhmac.WithMailboxSize(c.Node.MailboxSize))
	}
	if c.Node.Queue.Direct > 0 {
		opts = append(opts, fhmac.WithQueueSize(c.Node.Queue.Direct, c.Node.Queue.Indirect))
	}
	if c.PHY.SymbolRate != 0 || c.PHY.LongRange {
		opts = append(opts, fhmac.WithPHY(fhmac.PHY{SymbolRate: c.PHY.SymbolRate, LongRange: c.PHY.LongRange}))
	}
	return opts, nil
}

// ApplyPIB writes the attribute overrides into store, in attribute name
// order.
func (c *Config) ApplyPIB(store *pib.Store) error {
	for _, name := range sortedKeys(c.PIB) {
		id, ok := pib.ParseID(name)
		if !ok {
			return fmt.Errorf("pib: unknown attribute %q", name)
		}
		node := c.PIB[name]
		data, err := encodeAttr(id, &node, store.MaxChannels())
		if err != nil {
			return fmt.Errorf("pib: %s: %w", name, err)
		}
		if err := store.Set(id, data); err != nil {
			return fmt.Errorf("pib: %s: %w", name, err)
		}
	}
	return nil
}

// Logger builds a text logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch c.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// encodeAttr turns a YAML value into the raw bytes of attribute id.
func encodeAttr(id pib.ID, node *yaml.Node, maxChannels uint16) ([]byte, error) {
	switch id {
	case pib.TrackParentEUI:
		var s string
		if err := node.Decode(&s); err != nil {
			return nil, err
		}
		eui, err := dh1cf.ParseEUI(s)
		if err != nil {
			return nil, err
		}
		return eui[:], nil

	case pib.NetName:
		var s string
		if err := node.Decode(&s); err != nil {
			return nil, err
		}
		if len(s) > pib.NetNameSize {
			return nil, fmt.Errorf("longer than %d bytes", pib.NetNameSize)
		}
		buf := make([]byte, pib.NetNameSize)
		copy(buf, s)
		return buf, nil

	case pib.UcExcludedChannels, pib.BcExcludedChannels:
		var items []string
		if err := node.Decode(&items); err != nil {
			return nil, fmt.Errorf("expected a channel list: %w", err)
		}
		return ExcludeMask(items, maxChannels)

	case pib.GTK0Hash, pib.GTK1Hash, pib.GTK2Hash, pib.GTK3Hash:
		var s string
		if err := node.Decode(&s); err != nil {
			return nil, err
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, err
		}
		if len(b) != pib.GTKHashSize {
			return nil, fmt.Errorf("hash must be %d bytes", pib.GTKHashSize)
		}
		return b, nil
	}

	size := pib.Size(id)
	var v uint64
	if err := node.Decode(&v); err != nil {
		return nil, err
	}
	if size < 8 && v >= 1<<(8*size) {
		return nil, fmt.Errorf("%d does not fit in %d bytes", v, size)
	}
	buf := binary.LittleEndian.AppendUint64(nil, v)
	return buf[:size], nil
}

// ExcludeMask builds an exclude bitmap from channel numbers and inclusive
// "lo-hi" ranges.
func ExcludeMask(items []string, maxChannels uint16) ([]byte, error) {
	mask := make([]byte, pib.BitmapSize)
	for _, item := range items {
		lo, hi, err := parseRange(item)
		if err != nil {
			return nil, err
		}
		if hi >= maxChannels {
			return nil, fmt.Errorf("channel %d outside the %d channel plan", hi, maxChannels)
		}
		for ch := lo; ch <= hi; ch++ {
			mask[ch>>3] |= 1 << (ch & 7)
		}
	}
	return mask, nil
}

func parseRange(s string) (lo, hi uint16, err error) {
	s = strings.TrimSpace(s)
	first, last, isRange := strings.Cut(s, "-")
	a, err := strconv.ParseUint(strings.TrimSpace(first), 10, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("bad channel %q", s)
	}
	b := a
	if isRange {
		b, err = strconv.ParseUint(strings.TrimSpace(last), 10, 16)
		if err != nil || b < a {
			return 0, 0, fmt.Errorf("bad channel range %q", s)
		}
	}
	return uint16(a), uint16(b), nil
}
