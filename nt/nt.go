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

// Package nt keeps the per-neighbor hop schedules a node needs to reach its
// neighbors: their unicast slot timing, clock quality and channel plan.
//
// Hopping and fixed-channel (sleepy) neighbors share one pool and are told
// apart by Kind. Addresses live either in the security device table, when
// security is enabled and the neighbor has been registered there, or in a
// small temporary table owned by this package.
package nt

import (
	"errors"
	"sync"

	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/pib"
)

// Kind tags how a neighbor is scheduled.
type Kind uint8

const (
	// KindHopping is a rx-on-when-idle neighbor following a channel function.
	KindHopping Kind = iota
	// KindFixed is a sleepy neighbor parked on a single channel.
	KindFixed
)

func (k Kind) String() string {
	if k == KindFixed {
		return "fixed"
	}
	return "hopping"
}

// State holds the validity bits of an entry. Zero means the slot is free.
type State uint8

const (
	StateInvalid  State = 0
	StateCreated  State = 0x01
	StateWaitUTIE State = 0x02
	StateWaitUSIE State = 0x04
	StateExpired  State = 0x08
)

const (
	// ClockDriftUnknown marks a neighbor whose drift has not been announced.
	ClockDriftUnknown = 255
	// InvalidIndex is returned when no address index applies.
	InvalidIndex uint16 = 0xFFFF

	purgePeriodMs   = 60 * 60 * 1000
	purgeIntervalMs = 10 * purgePeriodMs
	optNodes        = 8
)

// Errors returned by table operations.
var (
	ErrNotFound = errors.New("nt: neighbor not found")
	ErrExpired  = errors.New("nt: neighbor schedule expired")
	ErrNoEntry  = errors.New("nt: no entries configured")
	ErrFull     = errors.New("nt: table full")
	ErrSchedule = errors.New("nt: neighbor has no usable schedule")
)

// Entry is a copy of one neighbor record.
type Entry struct {
	ExcludeMask    [pib.BitmapSize]byte
	UFSI           uint32
	RefTimestamp   uint32
	EUIIndex       uint16
	NumChannels    uint16
	FixedChannel   uint16
	Kind           Kind
	Valid          State
	Dwell          uint8
	ClockDrift     uint8
	TimingAccuracy uint8
	ChannelFunc    dh1cf.ChannelFunction
}

// Clock supplies the tick counter timestamps are taken from.
type Clock interface {
	Now() uint32
}

// DeviceTable is the security device table sharing the address index space.
type DeviceTable interface {
	Lookup(eui dh1cf.EUI64) (uint16, bool)
	EUI(index uint16) (dh1cf.EUI64, bool)
	Size() uint16
}

type optEntry struct {
	addr    []byte
	channel uint16
	used    bool
}

// Table is the neighbor table. It is safe for concurrent use.
type Table struct {
	clock      Clock
	devices    DeviceTable
	store      *pib.Store
	entries    []Entry
	temp       []dh1cf.EUI64
	opt        [optNodes]optEntry
	mu         sync.Mutex
	ticksPerMs uint32
	maxHopping uint16
	maxFixed   uint16
	numTemp    uint16
	optIdx     int
}

// Option configures a Table.
type Option func(*Table)

// WithDeviceTable shares the address index space with a security device table.
func WithDeviceTable(d DeviceTable) Option {
	return func(t *Table) {
		t.devices = d
	}
}

// WithTicksPerMs sets the clock resolution. The default is 100 (10 us ticks).
func WithTicksPerMs(n uint32) Option {
	return func(t *Table) {
		if n > 0 {
			t.ticksPerMs = n
		}
	}
}

// New builds a table sized from the pool limits held in store.
func New(store *pib.Store, clock Clock, opts ...Option) *Table {
	t := &Table{
		store:      store,
		clock:      clock,
		ticksPerMs: 100,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.Reset()
	return t
}

// Reset drops every neighbor and resizes the pools from the current limits.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maxHopping = t.store.Uint16(pib.NumMaxNonSleepNodes)
	t.maxFixed = t.store.Uint16(pib.NumMaxSleepNodes)
	t.entries = make([]Entry, int(t.maxHopping)+int(t.maxFixed))
	for i := range t.entries {
		t.entries[i].EUIIndex = InvalidIndex
		t.entries[i].Kind = KindHopping
		if i >= int(t.maxHopping) {
			t.entries[i].Kind = KindFixed
		}
	}
	t.temp = make([]dh1cf.EUI64, t.store.Uint16(pib.NumMaxTempNodes))
	for i := range t.temp {
		t.temp[i] = pib.InvalidEUI
	}
	t.numTemp = 0
	t.opt = [optNodes]optEntry{}
	t.optIdx = 0
}

func (t *Table) pool(kind Kind) []Entry {
	if kind == KindFixed {
		return t.entries[t.maxHopping:]
	}
	return t.entries[:t.maxHopping]
}

func (t *Table) indexBase() uint16 {
	if t.devices != nil {
		return t.devices.Size()
	}
	return 0
}

// eui resolves an address index. Unknown indices yield InvalidEUI.
func (t *Table) eui(index uint16) dh1cf.EUI64 {
	base := t.indexBase()
	if t.devices != nil && index < base {
		if e, ok := t.devices.EUI(index); ok {
			return e
		}
		return pib.InvalidEUI
	}
	slot := int(index) - int(base)
	if slot < 0 || slot >= len(t.temp) {
		return pib.InvalidEUI
	}
	return t.temp[slot]
}

// EUI resolves an address index to the EUI it names.
func (t *Table) EUI(index uint16) (dh1cf.EUI64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.eui(index)
	return e, e != pib.InvalidEUI
}

// addTempEUI registers eui in the temporary table, or returns its device
// table index when the security table already knows it.
func (t *Table) addTempEUI(eui dh1cf.EUI64) uint16 {
	if t.devices != nil {
		if idx, ok := t.devices.Lookup(eui); ok {
			return idx
		}
	}
	for i := range t.temp {
		if t.temp[i] == pib.InvalidEUI {
			t.temp[i] = eui
			t.numTemp++
			return uint16(i) + t.indexBase()
		}
	}
	return InvalidIndex
}

// delTempIndex frees a temporary slot. Device table indices are left alone.
func (t *Table) delTempIndex(index uint16) {
	base := t.indexBase()
	if t.devices != nil && index < base {
		return
	}
	slot := int(index) - int(base)
	if slot < 0 || slot >= len(t.temp) || t.temp[slot] == pib.InvalidEUI {
		return
	}
	t.temp[slot] = pib.InvalidEUI
	t.numTemp--
}

// tempBacked reports whether index names a temporary address slot.
func (t *Table) tempBacked(index uint16) bool {
	return index != InvalidIndex && index >= t.indexBase()
}

// needsTemp reports whether eui would take a temporary address.
func (t *Table) needsTemp(eui dh1cf.EUI64) bool {
	if t.devices == nil {
		return true
	}
	_, ok := t.devices.Lookup(eui)
	return !ok
}

func (t *Table) elapsed(now, ts uint32) uint32 {
	return now - ts
}

// removeCandidate picks the least recently updated entry of a pool that is
// not the tracked parent.
func (t *Table) removeCandidate(pool []Entry) int {
	parent := t.store.EUI(pib.TrackParentEUI)
	now := t.clock.Now()
	victim := -1
	var oldest uint32
	for i := range pool {
		if pool[i].Valid == StateInvalid {
			continue
		}
		if t.eui(pool[i].EUIIndex) == parent {
			continue
		}
		if age := t.elapsed(now, pool[i].RefTimestamp); victim < 0 || age > oldest {
			oldest = age
			victim = i
		}
	}
	return victim
}

func (t *Table) release(e *Entry) {
	t.delTempIndex(e.EUIIndex)
	kind := e.Kind
	*e = Entry{EUIIndex: InvalidIndex, Kind: kind}
}

// evictTemp frees a temporary address by dropping the oldest neighbor that
// still uses one.
func (t *Table) evictTemp() {
	now := t.clock.Now()
	base := t.indexBase()
	victim := -1
	var oldest uint32
	for i := range t.entries {
		e := &t.entries[i]
		if e.Valid == StateInvalid || e.EUIIndex < base || e.EUIIndex == InvalidIndex {
			continue
		}
		if age := t.elapsed(now, e.RefTimestamp); victim < 0 || age > oldest {
			oldest = age
			victim = i
		}
	}
	if victim >= 0 {
		t.release(&t.entries[victim])
	}
}

func (t *Table) count(pool []Entry) int {
	n := 0
	for i := range pool {
		if pool[i].Valid != StateInvalid {
			n++
		}
	}
	return n
}

// Create allocates a record for eui in the pool of the given kind. A full
// pool evicts its least recently updated neighbor, never the tracked parent.
// The new record carries unknown drift and channel function.
func (t *Table) Create(eui dh1cf.EUI64, kind Kind) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pool := t.pool(kind)
	if len(pool) == 0 {
		return Entry{}, ErrNoEntry
	}

	slot := -1
	if t.count(pool) == len(pool) {
		slot = t.removeCandidate(pool)
		if slot < 0 {
			return Entry{}, ErrFull
		}
		// A device-indexed victim frees no temporary address.
		if int(t.numTemp) == len(t.temp) && !t.tempBacked(pool[slot].EUIIndex) && t.needsTemp(eui) {
			return Entry{}, ErrFull
		}
		t.release(&pool[slot])
	} else if int(t.numTemp) == len(t.temp) {
		t.evictTemp()
	}
	if slot < 0 {
		for i := range pool {
			if pool[i].Valid == StateInvalid {
				slot = i
				break
			}
		}
		if slot < 0 {
			return Entry{}, ErrFull
		}
	}

	index := t.addTempEUI(eui)
	if index == InvalidIndex {
		return Entry{}, ErrFull
	}
	e := &pool[slot]
	*e = Entry{
		EUIIndex:    index,
		Kind:        kind,
		Valid:       StateCreated,
		ClockDrift:  ClockDriftUnknown,
		ChannelFunc: dh1cf.FunctionUnknown,
	}
	if kind == KindFixed {
		e.ChannelFunc = dh1cf.FunctionFixed
	}
	return *e, nil
}

func (t *Table) find(eui dh1cf.EUI64) *Entry {
	// Fixed neighbors are looked up first.
	for _, kind := range []Kind{KindFixed, KindHopping} {
		pool := t.pool(kind)
		for i := range pool {
			if pool[i].Valid == StateInvalid {
				continue
			}
			if t.eui(pool[i].EUIIndex) == eui {
				return &pool[i]
			}
		}
	}
	return nil
}

// Move files the record for eui in the pool of kind, keeping its address
// and schedule. A full destination pool evicts the way Create does. When
// the record cannot move it stays where it was and the error says why.
func (t *Table) Move(eui dh1cf.EUI64, kind Kind) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	src := t.find(eui)
	if src == nil {
		return Entry{}, ErrNotFound
	}
	if src.Kind == kind {
		return *src, nil
	}
	pool := t.pool(kind)
	if len(pool) == 0 {
		return *src, ErrNoEntry
	}
	slot := -1
	for i := range pool {
		if pool[i].Valid == StateInvalid {
			slot = i
			break
		}
	}
	if slot < 0 {
		if slot = t.removeCandidate(pool); slot < 0 {
			return *src, ErrFull
		}
		t.release(&pool[slot])
	}
	moved := *src
	moved.Kind = kind
	pool[slot] = moved
	*src = Entry{EUIIndex: InvalidIndex, Kind: src.Kind}
	return moved, nil
}

// Get returns the record for eui. A hashed schedule not refreshed within the
// neighbor valid time is flagged expired and reported with ErrExpired; the
// record stays in the table. Fixed-channel neighbors never expire.
func (t *Table) Get(eui dh1cf.EUI64) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.find(eui)
	if e == nil {
		return Entry{}, ErrNotFound
	}
	switch e.ChannelFunc {
	case dh1cf.FunctionDH1:
		validMs := uint32(t.store.Uint16(pib.NeighborValidTime)) * 60 * 1000
		if t.elapsed(t.clock.Now(), e.RefTimestamp) >= validMs*t.ticksPerMs {
			e.Valid |= StateExpired
			return *e, ErrExpired
		}
		return *e, nil
	case dh1cf.FunctionFixed:
		return *e, nil
	default:
		return *e, ErrSchedule
	}
}

// Lookup returns the record for eui without expiry checks.
func (t *Table) Lookup(eui dh1cf.EUI64) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e := t.find(eui); e != nil {
		return *e, true
	}
	return Entry{}, false
}

// Put stores an updated copy of a record previously returned by Create or Get.
func (t *Table) Put(entry Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		e := &t.entries[i]
		if e.Valid == StateInvalid || e.EUIIndex != entry.EUIIndex {
			continue
		}
		entry.Kind = e.Kind
		*e = entry
		return nil
	}
	return ErrNotFound
}

// Remove drops the record for eui.
func (t *Table) Remove(eui dh1cf.EUI64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.find(eui)
	if e == nil {
		return false
	}
	t.release(e)
	return true
}

// Purge invalidates neighbors that have been heard from but not refreshed
// for ten hours. The tracked parent is kept. It returns the number dropped.
func (t *Table) Purge() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent := t.store.EUI(pib.TrackParentEUI)
	now := t.clock.Now()
	limit := uint32(purgeIntervalMs) * t.ticksPerMs
	dropped := 0
	for i := range t.entries {
		e := &t.entries[i]
		if e.Valid&StateWaitUTIE == 0 {
			continue
		}
		if t.eui(e.EUIIndex) == parent {
			continue
		}
		if t.elapsed(now, e.RefTimestamp) >= limit {
			t.release(e)
			dropped++
		}
	}
	return dropped
}

// PurgePeriodMs is how often Purge should run.
func PurgePeriodMs() uint32 {
	return purgePeriodMs
}

// OnDeviceAdded moves eui from the temporary table to device table index
// devIndex. It returns false if eui had no temporary address.
func (t *Table) OnDeviceAdded(eui dh1cf.EUI64, devIndex uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.devices == nil {
		return false
	}
	slot := -1
	for i := range t.temp {
		if t.temp[i] == eui {
			slot = i
			break
		}
	}
	if slot < 0 {
		return false
	}
	tempIndex := uint16(slot) + t.indexBase()
	for i := range t.entries {
		e := &t.entries[i]
		if e.Valid != StateInvalid && e.EUIIndex == tempIndex {
			e.EUIIndex = devIndex
			t.temp[slot] = pib.InvalidEUI
			t.numTemp--
			return true
		}
	}
	return false
}

// OnDeviceRemoved drops the neighbor stored under a device table index.
func (t *Table) OnDeviceRemoved(devIndex uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.devices == nil {
		return false
	}
	for i := range t.entries {
		e := &t.entries[i]
		if e.Valid != StateInvalid && e.EUIIndex == devIndex {
			kind := e.Kind
			*e = Entry{EUIIndex: InvalidIndex, Kind: kind}
			return true
		}
	}
	return false
}

// AddOpt remembers the channel a polling device was heard on, keyed by its
// raw source address. The table is a small ring.
func (t *Table) AddOpt(addr []byte, channel uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.opt {
		if t.opt[i].used && string(t.opt[i].addr) == string(addr) {
			t.opt[i].channel = channel
			return
		}
	}
	t.opt[t.optIdx] = optEntry{addr: append([]byte(nil), addr...), channel: channel, used: true}
	t.optIdx = (t.optIdx + 1) % optNodes
}

// Opt returns the channel recorded by AddOpt for addr.
func (t *Table) Opt(addr []byte) (uint16, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.opt {
		if t.opt[i].used && string(t.opt[i].addr) == string(addr) {
			return t.opt[i].channel, true
		}
	}
	return 0, false
}

// Neighbor pairs a record with its resolved address.
type Neighbor struct {
	Entry
	EUI dh1cf.EUI64
}

// Neighbors returns every valid record with its address.
func (t *Table) Neighbors() []Neighbor {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Neighbor
	for i := range t.entries {
		if t.entries[i].Valid == StateInvalid {
			continue
		}
		out = append(out, Neighbor{Entry: t.entries[i], EUI: t.eui(t.entries[i].EUIIndex)})
	}
	return out
}

// Restore recreates neighbors from a saved list in list order, evicting the
// way Create does once a pool is full. Records that cannot be placed are
// skipped; the number restored is returned.
func (t *Table) Restore(list []Neighbor) int {
	n := 0
	for _, nb := range list {
		created, err := t.Create(nb.EUI, nb.Kind)
		if err != nil {
			continue
		}
		e := nb.Entry
		e.EUIIndex = created.EUIIndex
		if t.Put(e) == nil {
			n++
		}
	}
	return n
}

// Len returns the number of valid records.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count(t.entries)
}

// TempLen returns the number of addresses held in the temporary table.
func (t *Table) TempLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int(t.numTemp)
}
