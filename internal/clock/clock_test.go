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

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTicks_Advance(t *testing.T) {
	t.Parallel()

	c := New(DefaultPeriod)
	before := c.Now()
	time.Sleep(5 * time.Millisecond)
	after := c.Now()

	assert.GreaterOrEqual(t, after-before, uint32(500))
	assert.Equal(t, uint32(100), c.PerMs())
	assert.Equal(t, DefaultPeriod, c.Period())
}

func TestTicks_DefaultPeriod(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultPeriod, New(0).Period())
}

func TestTicks_AfterFunc(t *testing.T) {
	t.Parallel()

	c := New(DefaultPeriod)
	done := make(chan struct{})
	c.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback did not run")
	}

	s := c.AfterFunc(time.Hour, func() {})
	assert.True(t, s.Stop())
}
