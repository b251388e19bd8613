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

package fhmac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/ie"
	"github.com/ZaparooProject/go-fhmac/internal/clock"
	"github.com/ZaparooProject/go-fhmac/internal/fhtimer"
	"github.com/ZaparooProject/go-fhmac/nt"
	"github.com/ZaparooProject/go-fhmac/pib"
)

const (
	defaultMailboxSize = 32
	defaultDirectQueue = 8
	defaultIndirect    = 4
)

// Clock is the tick counter and timer scheduler the engine runs on.
type Clock interface {
	Now() uint32
	Period() time.Duration
	AfterFunc(d time.Duration, f func()) fhtimer.Stopper
}

// Metrics tracks operational counters of an Engine
type Metrics struct {
	UnicastHops   int64 // Unicast slot boundaries
	BroadcastHops int64 // Broadcast dwell starts
	TxFrames      int64 // Frames handed to the radio
	TxConfirmed   int64 // Frames confirmed successfully
	TxFailed      int64 // Frames confirmed with an error status
	TxNoTime      int64 // Frames deferred because the slot had no room
	TxOverflow    int64 // Frames dropped on a full queue
	RxFrames      int64 // Frames parsed for schedule IEs
	RxDropped     int64 // Frames dropped before parsing
	AsyncChannels int64 // Channels covered by async frames
	LBTDeferrals  int64 // Transmissions pushed back by the LBT off time
	BTIEAdopted   int64 // Broadcast timing updates taken from a BT-IE
}

type counters struct {
	ucHops, bcHops    int64
	txFrames, txOK    int64
	txFailed, txNT    int64
	txOverflow        int64
	rxFrames, rxDrop  int64
	asyncCh, lbtDefer int64
	btie              int64
}

// Engine is a frequency hopping MAC engine. A single goroutine owns the
// hopping state, the neighbor table and the transmit queue; exported
// methods hand work to it and wait for the result.
type Engine struct {
	radio   Radio
	clock   Clock
	logger  *slog.Logger
	store   *pib.Store
	table   *nt.Table
	codec   *ie.Codec
	rng     *rand.Rand
	confirm func(Confirm)
	devices nt.DeviceTable

	mailbox   chan func()
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	ucTimer       *fhtimer.Timer
	bcTimer       *fhtimer.Timer
	minTxOffTimer *fhtimer.Timer
	purgeTimer    *fhtimer.Timer

	queue []*Frame
	cur   *Frame
	ring  txRing
	fsm   machine
	h     handle
	stats counters
	state atomic.Uint32

	plan        ie.Plan
	phy         PHY
	tick        time.Duration
	mailboxSize int
	maxDirect   int
	maxIndirect int
	nDirect     int
	nIndirect   int
	eui         dh1cf.EUI64
	tpm         uint32
	coordinator bool
	rxOnIdle    bool
	kicked      bool
}

// New builds an engine driving radio and starts its goroutine. The
// schedule does not run until Start.
func New(radio Radio, opts ...Option) (*Engine, error) {
	if radio == nil {
		return nil, errors.New("radio cannot be nil")
	}
	e := &Engine{
		radio:       radio,
		logger:      slog.Default(),
		tick:        clock.DefaultPeriod,
		plan:        ie.DefaultPlan,
		phy:         PHY{SymbolRate: 50},
		mailboxSize: defaultMailboxSize,
		maxDirect:   defaultDirectQueue,
		maxIndirect: defaultIndirect,
		rxOnIdle:    true,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	if e.clock == nil {
		e.clock = clock.New(e.tick)
	}
	e.tpm = uint32(time.Millisecond / e.clock.Period())
	if e.tpm == 0 {
		return nil, fmt.Errorf("%w: clock period %v above 1ms", ErrInvalidParameter, e.clock.Period())
	}
	if e.store == nil {
		e.store = pib.New(e.plan.NumChannels)
	} else if e.store.MaxChannels() != e.plan.NumChannels {
		return nil, fmt.Errorf("%w: store sized for %d channels, plan has %d",
			ErrInvalidParameter, e.store.MaxChannels(), e.plan.NumChannels)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	ntOpts := []nt.Option{nt.WithTicksPerMs(e.tpm)}
	if e.devices != nil {
		ntOpts = append(ntOpts, nt.WithDeviceTable(e.devices))
	}
	e.table = nt.New(e.store, e.clock, ntOpts...)
	e.codec = ie.NewCodec(source{e}, e.plan)

	e.ucTimer = e.newTimer("unicast", e.ucTimerFired)
	e.bcTimer = e.newTimer("broadcast", e.bcTimerFired)
	e.minTxOffTimer = e.newTimer("min-tx-off", e.asyncStart, fhtimer.Plain())
	e.purgeTimer = e.newTimer("nt-purge", e.purgeFired, fhtimer.Plain())

	e.fsm.actions = [numActions]func(){
		actPendUc:        func() { e.h.pendUc = true },
		actPendBc:        func() { e.h.pendBc = true },
		actUpdateUc:      e.updateUc,
		actUpdateBc:      e.updateBc,
		actUpdateHopping: e.updateHopping,
		actProcAsync:     e.procAsync,
		actStartEDFE:     e.startEDFE,
		actProcEDFE:      e.procEDFE,
		actRequeue:       e.requeue,
	}
	e.h = handle{regSFD: true}

	e.mailbox = make(chan func(), e.mailboxSize)
	e.done = make(chan struct{})
	e.stopped = make(chan struct{})
	if ls, ok := radio.(ListenerSetter); ok {
		ls.SetListener(e)
	}
	go e.run()
	return e, nil
}

// newTimer returns a timer whose expiry runs fn on the engine goroutine. A
// fire that raced with a restart or cancel is dropped there.
func (e *Engine) newTimer(name string, fn func(), opts ...fhtimer.Option) *fhtimer.Timer {
	var t *fhtimer.Timer
	t = fhtimer.New(e.clock, e.clock, e.clock.Period(), func(gen uint64) {
		e.post(func() {
			if t.Expired(gen) {
				fn()
			}
		})
	}, append(opts, fhtimer.WithName(name))...)
	return t
}

func (e *Engine) run() {
	defer close(e.stopped)
	for {
		select {
		case fn := <-e.mailbox:
			fn()
			e.flush()
		case <-e.done:
			return
		}
	}
}

// do runs fn on the engine goroutine and waits for it to finish.
func (e *Engine) do(ctx context.Context, fn func()) error {
	reply := make(chan struct{})
	select {
	case e.mailbox <- func() { fn(); e.flush(); close(reply) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrClosed
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrClosed
	}
}

// call runs fn on the engine goroutine and hands back its result. When
// do gives up early fn may still run later; its result then goes to the
// buffered channel nobody reads, and the caller gets the zero value.
func call[T any](ctx context.Context, e *Engine, fn func() T) (T, error) {
	res := make(chan T, 1)
	if err := e.do(ctx, func() { res <- fn() }); err != nil {
		var zero T
		return zero, err
	}
	return <-res, nil
}

// flush runs the transmit queue while it was kicked and publishes the
// state.
func (e *Engine) flush() {
	for e.kicked {
		e.kicked = false
		e.sendData()
	}
	e.state.Store(uint32(e.fsm.state))
}

// post queues fn without waiting for it to run. Events posted after Close
// are dropped.
func (e *Engine) post(fn func()) {
	select {
	case e.mailbox <- fn:
	case <-e.done:
	}
}

// kick asks the run loop to look at the transmit queue once the current
// message is handled.
func (e *Engine) kick() {
	e.kicked = true
}

// Close stops the schedule and the engine goroutine, then closes the radio.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		_ = e.do(context.Background(), e.stopTimers)
		close(e.done)
		<-e.stopped
		err = e.radio.Close()
	})
	return err
}

func (e *Engine) stopTimers() {
	e.ucTimer.Cancel()
	e.bcTimer.Cancel()
	e.minTxOffTimer.Cancel()
	e.purgeTimer.Cancel()
}

// Clock returns the tick source the schedule runs on.
func (e *Engine) Clock() Clock {
	return e.clock
}

// State returns the hopping state as of the last handled event.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Metrics returns the engine counters.
func (e *Engine) Metrics() Metrics {
	return Metrics{
		UnicastHops:   atomic.LoadInt64(&e.stats.ucHops),
		BroadcastHops: atomic.LoadInt64(&e.stats.bcHops),
		TxFrames:      atomic.LoadInt64(&e.stats.txFrames),
		TxConfirmed:   atomic.LoadInt64(&e.stats.txOK),
		TxFailed:      atomic.LoadInt64(&e.stats.txFailed),
		TxNoTime:      atomic.LoadInt64(&e.stats.txNT),
		TxOverflow:    atomic.LoadInt64(&e.stats.txOverflow),
		RxFrames:      atomic.LoadInt64(&e.stats.rxFrames),
		RxDropped:     atomic.LoadInt64(&e.stats.rxDrop),
		AsyncChannels: atomic.LoadInt64(&e.stats.asyncCh),
		LBTDeferrals:  atomic.LoadInt64(&e.stats.lbtDefer),
		BTIEAdopted:   atomic.LoadInt64(&e.stats.btie),
	}
}

// source exposes the live schedule to the IE codec.
type source struct{ e *Engine }

func (s source) PIB() *pib.Store { return s.e.store }
func (s source) CurrentUFSI() uint32 { return s.e.currentUfsi() }
func (s source) CurrentBFIO() (uint32, uint16) { return s.e.currentBfio() }
func (s source) CCASFDTime(ft ie.FrameType) uint32 { return s.e.ccaSfdTime(ft) }
