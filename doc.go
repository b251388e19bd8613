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

/*
Package fhmac provides a pure Go frequency hopping MAC engine for Wi-SUN
FAN nodes on 802.15.4g radios.

The engine follows the node's own unicast schedule, tracks the unicast and
broadcast schedules of its neighbors, and decides for every queued frame
which channel it goes out on and when. The radio itself sits behind a small
co-processor link; the engine only ever tells it which channel to tune to,
when to listen and what to transmit.

Features:
  - DH1CF and fixed channel functions with exclude masks
  - Unicast and broadcast schedules with BT-IE timing adoption
  - Neighbor table with per-neighbor clock drift handling
  - Direct and indirect (sleepy child) transmit queues
  - Async frames across a channel list with LBT off time
  - EDFE frame exchanges
  - US-IE, BS-IE, UT-IE, BT-IE and PAN metadata IE generation and parsing
  - Radio links over UART, I2C and WebSocket bridges

Basic Usage:

	import (
	    fhmac "github.com/ZaparooProject/go-fhmac"
	    "github.com/ZaparooProject/go-fhmac/transport/uart"
	)

	radio, err := uart.New("/dev/ttyACM0")
	if err != nil {
	    log.Fatal(err)
	}

	engine, err := fhmac.New(radio,
	    fhmac.WithEUI(eui),
	    fhmac.WithCoordinator(),
	    fhmac.WithConfirm(func(c fhmac.Confirm) {
	        log.Printf("handle %d: %s", c.Frame.Handle, c.Status)
	    }),
	)
	if err != nil {
	    log.Fatal(err)
	}
	defer engine.Close()

	if err := engine.Start(ctx); err != nil {
	    log.Fatal(err)
	}

	err = engine.Send(ctx, fhmac.Frame{
	    Type:       fhmac.FrameUnicast,
	    Dst:        parent,
	    HeaderIEs:  ie.BitUT,
	    PayloadIEs: ie.BitUS,
	    Payload:    payload,
	})

Concurrency:

One goroutine owns the hopping state, the neighbor table and the transmit
queue. Exported methods hand work to it and wait for the result, so an
Engine is safe for concurrent use. Radio reports arrive through the
Listener methods and are queued the same way. Confirm callbacks run on the
engine goroutine and must not call back into the engine synchronously.

Error Handling:

Engine operations return Status values that match with errors.Is, and
radio link failures return a *TransportError:

	if errors.Is(err, fhmac.ErrNoEntryInNT) {
	    // destination not heard from yet
	}
	if fhmac.IsRetryable(err) {
	    // the radio was busy or timed out
	}
*/
package fhmac
