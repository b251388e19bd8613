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
	"time"

	"github.com/ZaparooProject/go-fhmac/nt"
)

// Presence is what the monitor last concluded about a neighbor
type Presence int

const (
	// PresenceFresh means the schedule was updated recently.
	PresenceFresh Presence = iota
	// PresenceStale means no schedule update arrived within StaleAfter.
	PresenceStale
	// PresenceExpired means the engine marked the schedule expired.
	PresenceExpired
)

func (p Presence) String() string {
	switch p {
	case PresenceFresh:
		return "fresh"
	case PresenceStale:
		return "stale"
	case PresenceExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// NeighborState tracks one neighbor between polls
type NeighborState struct {
	LastUpdate time.Time
	Neighbor   nt.Neighbor
	Presence   Presence
}

// observe folds a fresh read of the neighbor into the state and reports
// whether its schedule changed and whether its presence changed.
func (s *NeighborState) observe(nb nt.Neighbor, now time.Time, staleAfter time.Duration) (updated, moved bool) {
	updated = nb.RefTimestamp != s.Neighbor.RefTimestamp || nb.UFSI != s.Neighbor.UFSI
	if updated {
		s.LastUpdate = now
	}
	s.Neighbor = nb

	next := PresenceFresh
	switch {
	case nb.Valid&nt.StateExpired != 0:
		next = PresenceExpired
	case staleAfter > 0 && now.Sub(s.LastUpdate) >= staleAfter:
		next = PresenceStale
	}
	moved = next != s.Presence
	s.Presence = next
	return updated, moved
}
