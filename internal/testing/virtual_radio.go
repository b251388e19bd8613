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

package testing

import (
	"net"
	"sync"

	"github.com/ZaparooProject/go-fhmac/internal/frame"
)

// ReplyFunc answers one command. n counts the commands received so far,
// this one included.
type ReplyFunc func(req frame.Frame, n int) []frame.Frame

// AckAll acknowledges every command.
func AckAll(req frame.Frame, _ int) []frame.Frame {
	return []frame.Frame{BuildResponse(req)}
}

// AckAndComplete acknowledges every command and completes each transmit
// with success, the way a radio with a quiet channel does.
func AckAndComplete(req frame.Frame, _ int) []frame.Frame {
	out := []frame.Frame{BuildResponse(req)}
	if req.Cmd == frame.CmdTransmit {
		out = append(out, BuildTxDone(0))
	}
	return out
}

// VirtualRadio simulates the radio co-processor end of a link
type VirtualRadio struct {
	conn     net.Conn
	reply    ReplyFunc
	done     chan struct{}
	received []frame.Frame
	mu       sync.Mutex
	wmu      sync.Mutex
}

// NewVirtualRadio starts a simulated co-processor and returns it with the
// host end of its connection. A nil reply leaves every command unanswered.
func NewVirtualRadio(reply ReplyFunc) (*VirtualRadio, net.Conn) {
	host, radio := net.Pipe()
	v := &VirtualRadio{conn: radio, reply: reply, done: make(chan struct{})}
	go v.serve()
	return v, host
}

func (v *VirtualRadio) serve() {
	defer close(v.done)

	dec := frame.NewDecoder()
	buf := make([]byte, 128)
	for {
		n, err := v.conn.Read(buf)
		for _, f := range dec.Write(buf[:n], nil) {
			v.mu.Lock()
			v.received = append(v.received, f)
			count := len(v.received)
			v.mu.Unlock()
			if v.reply == nil {
				continue
			}
			for _, r := range v.reply(f, count) {
				_ = v.Send(r)
			}
		}
		if err != nil {
			return
		}
	}
}

// Send writes f to the host
func (v *VirtualRadio) Send(f frame.Frame) error {
	wire, err := frame.Encode(f)
	if err != nil {
		return err
	}
	v.wmu.Lock()
	defer v.wmu.Unlock()
	_, err = v.conn.Write(wire)
	return err
}

// Received returns a copy of every command received so far
func (v *VirtualRadio) Received() []frame.Frame {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]frame.Frame(nil), v.received...)
}

// Commands returns the received commands of one kind
func (v *VirtualRadio) Commands(cmd byte) []frame.Frame {
	var out []frame.Frame
	for _, f := range v.Received() {
		if f.Cmd == cmd {
			out = append(out, f)
		}
	}
	return out
}

// Close hangs up the radio end and waits for it to stop
func (v *VirtualRadio) Close() error {
	err := v.conn.Close()
	<-v.done
	return err
}
