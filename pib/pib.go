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

// Package pib holds the frequency hopping attribute base: dwell intervals,
// channel functions, exclude masks and PAN metadata, each addressed by a
// 16-bit attribute id.
package pib

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ZaparooProject/go-fhmac/dh1cf"
)

// ID identifies an attribute.
type ID uint16

// Attribute ids. The numbering is shared with other stacks and must not change.
const (
	TrackParentEUI      ID = 0x2000
	BcInterval          ID = 0x2001
	UcExcludedChannels  ID = 0x2002
	BcExcludedChannels  ID = 0x2003
	UcDwellInterval     ID = 0x2004
	BcDwellInterval     ID = 0x2005
	ClockDrift          ID = 0x2006
	TimingAccuracy      ID = 0x2007
	UcChannelFunction   ID = 0x2008
	BcChannelFunction   ID = 0x2009
	UseParentBSIE       ID = 0x200A
	BroadcastSchedID    ID = 0x200B
	UcFixedChannel      ID = 0x200C
	BcFixedChannel      ID = 0x200D
	PANSize             ID = 0x200E
	RoutingCost         ID = 0x200F
	RoutingMethod       ID = 0x2010
	EAPOLReady          ID = 0x2011
	FANTPSVersion       ID = 0x2012
	NetName             ID = 0x2013
	PANVersion          ID = 0x2014
	GTK0Hash            ID = 0x2015
	GTK1Hash            ID = 0x2016
	GTK2Hash            ID = 0x2017
	GTK3Hash            ID = 0x2018
	NeighborValidTime   ID = 0x2019
	CSMABaseBackoff     ID = 0x201A
	NumMaxNonSleepNodes ID = 0x201B
	NumMaxSleepNodes    ID = 0x201C
	NumMaxTempNodes     ID = 0x201D
)

const (
	// BitmapSize is the byte length of an exclude mask (136 channels).
	BitmapSize = 17
	// NetNameSize is the maximum network name length.
	NetNameSize = 32
	// GTKHashSize is the byte length of one GTK hash.
	GTKHashSize = 8
	// DefaultMaxChannels is the channel count of the default 902 MHz plan.
	DefaultMaxChannels = 129
)

// InvalidEUI marks an unset EUI, for example no tracked parent.
var InvalidEUI = dh1cf.EUI64{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// Errors returned by Set and Get.
var (
	ErrNotSupported = errors.New("pib: attribute not supported")
	ErrReadOnly     = errors.New("pib: attribute is read only")
	ErrInvalidParam = errors.New("pib: invalid attribute value")
)

// attr describes one attribute. min == max == 0 disables the range check,
// min == max != 0 marks the attribute read only.
type attr struct {
	name string
	def  []byte
	size int
	min  uint32
	max  uint32
}

func u8(v uint8) []byte { return []byte{v} }

func u16(v uint16) []byte { return binary.LittleEndian.AppendUint16(nil, v) }

func u32(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }

var defaultTable = map[ID]attr{
	TrackParentEUI:      {name: "TrackParentEUI", size: 8, def: InvalidEUI[:]},
	BcInterval:          {name: "BcInterval", size: 4, min: 250, max: 16777215, def: u32(4250)},
	UcExcludedChannels:  {name: "UcExcludedChannels", size: BitmapSize, def: make([]byte, BitmapSize)},
	BcExcludedChannels:  {name: "BcExcludedChannels", size: BitmapSize, def: make([]byte, BitmapSize)},
	UcDwellInterval:     {name: "UcDwellInterval", size: 1, min: 15, max: 250, def: u8(250)},
	BcDwellInterval:     {name: "BcDwellInterval", size: 1, min: 0, max: 250, def: u8(250)},
	ClockDrift:          {name: "ClockDrift", size: 1, min: 0, max: 255, def: u8(20)},
	TimingAccuracy:      {name: "TimingAccuracy", size: 1, min: 0, max: 255, def: u8(0)},
	UcChannelFunction:   {name: "UcChannelFunction", size: 1, min: 0, max: 3, def: u8(0)},
	BcChannelFunction:   {name: "BcChannelFunction", size: 1, min: 0, max: 3, def: u8(0)},
	UseParentBSIE:       {name: "UseParentBSIE", size: 1, min: 0, max: 1, def: u8(0)},
	BroadcastSchedID:    {name: "BroadcastSchedID", size: 2, min: 0, max: 65535, def: u16(0)},
	UcFixedChannel:      {name: "UcFixedChannel", size: 2, min: 0, max: 255, def: u16(0)},
	BcFixedChannel:      {name: "BcFixedChannel", size: 2, min: 0, max: 255, def: u16(0)},
	PANSize:             {name: "PANSize", size: 2, min: 0, max: 65535, def: u16(1)},
	RoutingCost:         {name: "RoutingCost", size: 1, min: 0, max: 255, def: u8(0)},
	RoutingMethod:       {name: "RoutingMethod", size: 1, min: 0, max: 1, def: u8(1)},
	EAPOLReady:          {name: "EAPOLReady", size: 1, min: 0, max: 1, def: u8(1)},
	FANTPSVersion:       {name: "FANTPSVersion", size: 1, min: 0, max: 7, def: u8(0)},
	NetName:             {name: "NetName", size: NetNameSize, def: make([]byte, NetNameSize)},
	PANVersion:          {name: "PANVersion", size: 2, min: 0, max: 65535, def: u16(0)},
	GTK0Hash:            {name: "GTK0Hash", size: GTKHashSize, def: make([]byte, GTKHashSize)},
	GTK1Hash:            {name: "GTK1Hash", size: GTKHashSize, def: make([]byte, GTKHashSize)},
	GTK2Hash:            {name: "GTK2Hash", size: GTKHashSize, def: make([]byte, GTKHashSize)},
	GTK3Hash:            {name: "GTK3Hash", size: GTKHashSize, def: make([]byte, GTKHashSize)},
	NeighborValidTime:   {name: "NeighborValidTime", size: 2, min: 5, max: 600, def: u16(120)},
	CSMABaseBackoff:     {name: "CSMABaseBackoff", size: 1, min: 0, max: 16, def: u8(8)},
	NumMaxNonSleepNodes: {name: "NumMaxNonSleepNodes", size: 2, min: 0, max: 50, def: u16(2)},
	NumMaxSleepNodes:    {name: "NumMaxSleepNodes", size: 2, min: 0, max: 50, def: u16(48)},
	NumMaxTempNodes:     {name: "NumMaxTempNodes", size: 2, min: 0, max: 10, def: u16(10)},
}

// String returns the attribute name, or the hex id for unknown attributes.
func (id ID) String() string {
	if a, ok := defaultTable[id]; ok {
		return a.name
	}
	return fmt.Sprintf("0x%04X", uint16(id))
}

// IDs lists every known attribute in ascending order.
func IDs() []ID {
	ids := make([]ID, 0, len(defaultTable))
	for id := TrackParentEUI; id <= NumMaxTempNodes; id++ {
		ids = append(ids, id)
	}
	return ids
}

// Size returns the byte length of an attribute, or 0 if unknown.
func Size(id ID) int {
	return defaultTable[id].size
}

// ParseID resolves an attribute by name.
func ParseID(name string) (ID, bool) {
	for id, a := range defaultTable {
		if a.name == name {
			return id, true
		}
	}
	return 0, false
}

// Store is the attribute base. It is safe for concurrent use.
type Store struct {
	table         map[ID]attr
	values        map[ID][]byte
	onChange      func(ID)
	mu            sync.RWMutex
	maxChannels   uint16
	ucNumChannels uint16
	bcNumChannels uint16
}

// New returns a store holding default values for a plan of maxChannels
// channels.
func New(maxChannels uint16) *Store {
	s := &Store{
		table:       defaultTable,
		maxChannels: maxChannels,
	}
	s.Reset()
	return s
}

// OnChange registers a hook invoked after every successful Set. The hook
// runs outside the store lock.
func (s *Store) OnChange(fn func(ID)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Reset restores all defaults.
func (s *Store) Reset() {
	s.mu.Lock()
	s.values = make(map[ID][]byte, len(s.table))
	for id, a := range s.table {
		s.values[id] = append([]byte(nil), a.def...)
	}
	s.ucNumChannels = s.maxChannels
	s.bcNumChannels = s.maxChannels
	s.mu.Unlock()
}

// MaxChannels returns the channel count of the plan the store was built for.
func (s *Store) MaxChannels() uint16 {
	return s.maxChannels
}

// UcNumChannels returns the number of usable unicast channels, derived from
// the unicast exclude mask.
func (s *Store) UcNumChannels() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ucNumChannels
}

// BcNumChannels returns the number of usable broadcast channels.
func (s *Store) BcNumChannels() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bcNumChannels
}

// RecomputeChannelCounts refreshes the cached usable channel counts from the
// exclude masks currently stored.
func (s *Store) RecomputeChannelCounts() {
	s.mu.Lock()
	s.ucNumChannels = dh1cf.Available(s.values[UcExcludedChannels], s.maxChannels)
	s.bcNumChannels = dh1cf.Available(s.values[BcExcludedChannels], s.maxChannels)
	s.mu.Unlock()
}

func numeric(b []byte) uint32 {
	switch len(b) {
	case 1:
		return uint32(b[0])
	case 2:
		return uint32(binary.LittleEndian.Uint16(b))
	case 4:
		return binary.LittleEndian.Uint32(b)
	default:
		return 0
	}
}

// Set validates and stores an attribute value. data must be exactly the
// attribute size.
func (s *Store) Set(id ID, data []byte) error {
	a, ok := s.table[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotSupported, id)
	}
	if a.min == a.max && a.min != 0 {
		return fmt.Errorf("%w: %s", ErrReadOnly, id)
	}
	if len(data) != a.size {
		return fmt.Errorf("%w: %s expects %d bytes, got %d", ErrInvalidParam, id, a.size, len(data))
	}
	if a.min != 0 || a.max != 0 {
		v := numeric(data)
		if v < a.min || v > a.max {
			return fmt.Errorf("%w: %s value %d outside [%d,%d]", ErrInvalidParam, id, v, a.min, a.max)
		}
	}
	if (id == UcFixedChannel || id == BcFixedChannel) && numeric(data) >= uint32(s.maxChannels) {
		return fmt.Errorf("%w: %s channel %d beyond plan of %d", ErrInvalidParam, id, numeric(data), s.maxChannels)
	}

	s.mu.Lock()
	s.values[id] = append([]byte(nil), data...)
	switch id {
	case UcExcludedChannels:
		s.ucNumChannels = dh1cf.Available(data, s.maxChannels)
	case BcExcludedChannels:
		s.bcNumChannels = dh1cf.Available(data, s.maxChannels)
	}
	hook := s.onChange
	s.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	return nil
}

// Get returns a copy of the raw attribute bytes.
func (s *Store) Get(id ID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotSupported, id)
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) raw(id ID) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[id]
}

// Uint8 reads a one byte attribute.
func (s *Store) Uint8(id ID) uint8 {
	return uint8(numeric(s.raw(id)))
}

// Uint16 reads a two byte attribute.
func (s *Store) Uint16(id ID) uint16 {
	return uint16(numeric(s.raw(id)))
}

// Uint32 reads a four byte attribute.
func (s *Store) Uint32(id ID) uint32 {
	return numeric(s.raw(id))
}

// Bytes returns a copy of an array attribute, or nil if unknown.
func (s *Store) Bytes(id ID) []byte {
	b, err := s.Get(id)
	if err != nil {
		return nil
	}
	return b
}

// EUI reads an 8 byte address attribute.
func (s *Store) EUI(id ID) dh1cf.EUI64 {
	var e dh1cf.EUI64
	copy(e[:], s.raw(id))
	return e
}

// SetUint8 stores a one byte attribute.
func (s *Store) SetUint8(id ID, v uint8) error {
	return s.Set(id, u8(v))
}

// SetUint16 stores a two byte attribute.
func (s *Store) SetUint16(id ID, v uint16) error {
	return s.Set(id, u16(v))
}

// SetUint32 stores a four byte attribute.
func (s *Store) SetUint32(id ID, v uint32) error {
	return s.Set(id, u32(v))
}

// SetEUI stores an 8 byte address attribute.
func (s *Store) SetEUI(id ID, e dh1cf.EUI64) error {
	return s.Set(id, e[:])
}

// NetworkName returns the network name without trailing zero padding.
func (s *Store) NetworkName() string {
	b := s.raw(NetName)
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

// SetNetworkName stores a network name of at most NetNameSize bytes.
func (s *Store) SetNetworkName(name string) error {
	if len(name) > NetNameSize {
		return fmt.Errorf("%w: network name longer than %d bytes", ErrInvalidParam, NetNameSize)
	}
	buf := make([]byte, NetNameSize)
	copy(buf, name)
	return s.Set(NetName, buf)
}

// Snapshot copies every attribute value.
func (s *Store) Snapshot() map[ID][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[ID][]byte, len(s.values))
	for id, v := range s.values {
		out[id] = append([]byte(nil), v...)
	}
	return out
}
