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

// Package snapshot persists a node's attributes and neighbor schedules so
// a restarted node can reach its neighbors before hearing from them again.
//
// Neighbor timestamps are tick counts of the host that saved them. They are
// stored as ages and rebased onto the restoring host's clock, with the wall
// time spent down added on.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"

	fhmac "github.com/ZaparooProject/go-fhmac"
	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/nt"
	"github.com/ZaparooProject/go-fhmac/pib"
)

// Version is the snapshot format version written by this package.
const Version = 1

// Errors returned when a snapshot cannot be used.
var (
	ErrVersion      = errors.New("snapshot: unsupported version")
	ErrPlanMismatch = errors.New("snapshot: saved for a different channel plan")
)

// Snapshot is the persisted state of one node.
type Snapshot struct {
	SavedAt     time.Time         `cbor:"1,keyasint"`
	PIB         map[uint16][]byte `cbor:"2,keyasint"`
	Neighbors   []Neighbor        `cbor:"3,keyasint,omitempty"`
	EUI         dh1cf.EUI64       `cbor:"4,keyasint"`
	MaxChannels uint16            `cbor:"5,keyasint"`
	Version     uint8             `cbor:"0,keyasint"`
}

// Neighbor is one saved neighbor schedule.
type Neighbor struct {
	ExcludeMask    []byte      `cbor:"1,keyasint,omitempty"`
	EUI            dh1cf.EUI64 `cbor:"0,keyasint"`
	AgeMs          uint32      `cbor:"2,keyasint"`
	UFSI           uint32      `cbor:"3,keyasint"`
	NumChannels    uint16      `cbor:"4,keyasint"`
	FixedChannel   uint16      `cbor:"5,keyasint"`
	Kind           uint8       `cbor:"6,keyasint"`
	Valid          uint8       `cbor:"7,keyasint"`
	Dwell          uint8       `cbor:"8,keyasint"`
	ClockDrift     uint8       `cbor:"9,keyasint"`
	TimingAccuracy uint8       `cbor:"10,keyasint"`
	ChannelFunc    uint8       `cbor:"11,keyasint"`
}

// Ticks is the tick source neighbor timestamps are taken from.
type Ticks interface {
	Now() uint32
	Period() time.Duration
}

func ticksPerMs(t Ticks) uint32 {
	if p := t.Period(); p > 0 {
		return uint32(time.Millisecond / p)
	}
	return 1
}

var encMode = func() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	opts.TimeTag = cbor.EncTagRequired
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Capture records store and the neighbor list read at the current tick of
// clk.
func Capture(eui dh1cf.EUI64, store *pib.Store, neighbors []nt.Neighbor, clk Ticks, wall time.Time) *Snapshot {
	s := &Snapshot{
		Version:     Version,
		SavedAt:     wall,
		EUI:         eui,
		MaxChannels: store.MaxChannels(),
		PIB:         make(map[uint16][]byte),
	}
	for id, v := range store.Snapshot() {
		s.PIB[uint16(id)] = v
	}

	now, tpm := clk.Now(), ticksPerMs(clk)
	for _, nb := range neighbors {
		s.Neighbors = append(s.Neighbors, Neighbor{
			EUI:            nb.EUI,
			ExcludeMask:    append([]byte(nil), nb.ExcludeMask[:]...),
			AgeMs:          (now - nb.RefTimestamp) / tpm,
			UFSI:           nb.UFSI,
			NumChannels:    nb.NumChannels,
			FixedChannel:   nb.FixedChannel,
			Kind:           uint8(nb.Kind),
			Valid:          uint8(nb.Valid),
			Dwell:          nb.Dwell,
			ClockDrift:     nb.ClockDrift,
			TimingAccuracy: nb.TimingAccuracy,
			ChannelFunc:    uint8(nb.ChannelFunc),
		})
	}
	return s
}

// ApplyPIB writes the saved attributes into store in id order. Values the
// store rejects are skipped and reported together.
func (s *Snapshot) ApplyPIB(store *pib.Store) error {
	if store.MaxChannels() != s.MaxChannels {
		return fmt.Errorf("%w: %d channels saved, %d configured", ErrPlanMismatch, s.MaxChannels, store.MaxChannels())
	}
	ids := make([]uint16, 0, len(s.PIB))
	for id := range s.PIB {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var errs []error
	for _, id := range ids {
		if err := store.Set(pib.ID(id), s.PIB[id]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", pib.ID(id), err))
		}
	}
	return errors.Join(errs...)
}

// RestoreList rebases the saved neighbors onto clk. Hashed schedules that
// would have expired while the node was down are dropped.
func (s *Snapshot) RestoreList(clk Ticks, wall time.Time, validMs uint32) []nt.Neighbor {
	down := wall.Sub(s.SavedAt)
	if down < 0 {
		down = 0
	}
	now, tpm := clk.Now(), ticksPerMs(clk)

	var out []nt.Neighbor
	for _, saved := range s.Neighbors {
		age := uint64(saved.AgeMs) + uint64(down.Milliseconds())
		hashed := dh1cf.ChannelFunction(saved.ChannelFunc) == dh1cf.FunctionDH1
		if hashed && age >= uint64(validMs) {
			continue
		}

		ref := now
		if ageTicks := age * uint64(tpm); ageTicks < 1<<31 {
			ref = now - uint32(ageTicks)
		} else if hashed {
			// The UFSI reference can no longer be placed on the tick counter.
			continue
		}

		nb := nt.Neighbor{EUI: saved.EUI}
		copy(nb.ExcludeMask[:], saved.ExcludeMask)
		nb.RefTimestamp = ref
		nb.UFSI = saved.UFSI
		nb.NumChannels = saved.NumChannels
		nb.FixedChannel = saved.FixedChannel
		nb.Kind = nt.Kind(saved.Kind)
		nb.Valid = nt.State(saved.Valid) &^ nt.StateExpired
		nb.Dwell = saved.Dwell
		nb.ClockDrift = saved.ClockDrift
		nb.TimingAccuracy = saved.TimingAccuracy
		nb.ChannelFunc = dh1cf.ChannelFunction(saved.ChannelFunc)
		out = append(out, nb)
	}
	return out
}

// Encode writes s as CBOR.
func Encode(w io.Writer, s *Snapshot) error {
	data, err := encMode.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// Decode reads a CBOR snapshot.
func Decode(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, s.Version)
	}
	return &s, nil
}

// Save writes s to path, replacing any earlier snapshot atomically.
func Save(path string, s *Snapshot) error {
	var buf bytes.Buffer
	if err := Encode(&buf, s); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot at path.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// Node is the engine surface a snapshot is taken from and restored into.
// *fhmac.Engine implements it.
type Node interface {
	PIB() *pib.Store
	Clock() fhmac.Clock
	Neighbors(ctx context.Context) ([]nt.Neighbor, error)
	RestoreNeighbors(ctx context.Context, list []nt.Neighbor) (int, error)
}

var _ Node = (*fhmac.Engine)(nil)

// Take captures the current state of node.
func Take(ctx context.Context, eui dh1cf.EUI64, node Node) (*Snapshot, error) {
	neighbors, err := node.Neighbors(ctx)
	if err != nil {
		return nil, err
	}
	return Capture(eui, node.PIB(), neighbors, node.Clock(), time.Now()), nil
}

// RestoreNeighbors rebases the saved neighbors and loads them into node.
// Call it after the node's first Start.
func (s *Snapshot) RestoreNeighbors(ctx context.Context, node Node) (int, error) {
	validMs := uint32(node.PIB().Uint16(pib.NeighborValidTime)) * 60 * 1000
	return node.RestoreNeighbors(ctx, s.RestoreList(node.Clock(), time.Now(), validMs))
}
