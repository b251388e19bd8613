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

package polling

import (
	"fmt"
	"time"
)

// Config controls how often the neighbor table is polled and saved
type Config struct {
	// PollInterval is the time between neighbor table reads
	PollInterval time.Duration
	// StaleAfter is how long a neighbor may go without a schedule update
	// before it is reported stale. Zero disables stale reports.
	StaleAfter time.Duration
	// SaveInterval is the time between OnSave calls. Zero disables saving.
	SaveInterval time.Duration
}

// DefaultConfig returns the default polling configuration
func DefaultConfig() *Config {
	return &Config{
		PollInterval: time.Second,
		StaleAfter:   10 * time.Minute,
	}
}

// Validate checks the configuration for usable values
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.StaleAfter < 0 || c.SaveInterval < 0 {
		return fmt.Errorf("stale and save intervals must not be negative")
	}
	return nil
}
