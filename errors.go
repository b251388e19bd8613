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
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/ie"
	"github.com/ZaparooProject/go-fhmac/nt"
	"github.com/ZaparooProject/go-fhmac/pib"
)

// Status is the result code of a hopping engine operation. Every value
// other than StatusSuccess is also an error and can be matched with
// errors.Is.
type Status uint8

// Status codes.
const (
	StatusSuccess Status = iota
	ErrGeneral
	ErrNotSupportedIE
	ErrNotInAsync
	ErrNoEntryInNT
	ErrOutSlot
	ErrInvalidAddress
	ErrInvalidFormat
	ErrNotSupportedPIB
	ErrReadOnlyPIB
	ErrInvalidParamPIB
	ErrInvalidFrameType
	ErrExpiredNode
	ErrNoFreeChannel
	ErrEDFEDFENotSupported
	ErrEDFEPrevFrameNotFinished
	ErrNTFull
)

var statusText = map[Status]string{
	StatusSuccess:               "success",
	ErrGeneral:                  "general error",
	ErrNotSupportedIE:           "IE not supported",
	ErrNotInAsync:               "no async transmission in progress",
	ErrNoEntryInNT:              "neighbor not in table",
	ErrOutSlot:                  "transmission would cross a slot boundary",
	ErrInvalidAddress:           "invalid address",
	ErrInvalidFormat:            "invalid format",
	ErrNotSupportedPIB:          "PIB attribute not supported",
	ErrReadOnlyPIB:              "PIB attribute is read only",
	ErrInvalidParamPIB:          "invalid PIB attribute value",
	ErrInvalidFrameType:         "invalid frame type",
	ErrExpiredNode:              "neighbor schedule expired",
	ErrNoFreeChannel:            "no free channel",
	ErrEDFEDFENotSupported:      "EDFE not supported by destination",
	ErrEDFEPrevFrameNotFinished: "previous EDFE exchange not finished",
	ErrNTFull:                   "neighbor table full",
}

func (s Status) Error() string {
	if text, ok := statusText[s]; ok {
		return "fhmac: " + text
	}
	return fmt.Sprintf("fhmac: status 0x%02X", uint8(s))
}

// String implements fmt.Stringer.
func (s Status) String() string {
	return s.Error()
}

// statusMap ties the errors of the sub-packages to the status they surface
// as.
var statusMap = []struct {
	err    error
	status Status
}{
	{pib.ErrNotSupported, ErrNotSupportedPIB},
	{pib.ErrReadOnly, ErrReadOnlyPIB},
	{pib.ErrInvalidParam, ErrInvalidParamPIB},
	{nt.ErrNotFound, ErrNoEntryInNT},
	{nt.ErrExpired, ErrExpiredNode},
	{nt.ErrNoEntry, ErrNoEntryInNT},
	{nt.ErrFull, ErrNTFull},
	{nt.ErrSchedule, ErrInvalidFormat},
	{ie.ErrInvalidFormat, ErrInvalidFormat},
	{ie.ErrNotSupported, ErrNotSupportedIE},
	{dh1cf.ErrNoFreeChannel, ErrNoFreeChannel},
}

// StatusOf returns the status carried by err. A nil error is
// StatusSuccess; an error with no known status is ErrGeneral.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	for _, m := range statusMap {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return ErrGeneral
}

// wrapStatus attaches the matching status to an error from a sub-package so
// callers can test it against either.
func wrapStatus(err error) error {
	if err == nil {
		return nil
	}
	var s Status
	if errors.As(err, &s) {
		return err
	}
	return fmt.Errorf("%w: %w", StatusOf(err), err)
}

// TxStatus is the completion code reported for a transmission, in the
// numbering used by 802.15.4 MAC confirms.
type TxStatus uint8

// Transmission completion codes.
const (
	TxSuccess              TxStatus = 0x00
	TxBadState             TxStatus = 0x19
	TxNoResources          TxStatus = 0x1A
	TxNoTime               TxStatus = 0x1C
	TxAborted              TxStatus = 0x1D
	TxChannelAccessFailure TxStatus = 0xE1
	TxNoAck                TxStatus = 0xE9
	TxTransactionOverflow  TxStatus = 0xF1
)

func (s TxStatus) String() string {
	switch s {
	case TxSuccess:
		return "success"
	case TxBadState:
		return "bad state"
	case TxNoResources:
		return "no resources"
	case TxNoTime:
		return "no time"
	case TxAborted:
		return "aborted"
	case TxChannelAccessFailure:
		return "channel access failure"
	case TxNoAck:
		return "no ack"
	case TxTransactionOverflow:
		return "transaction overflow"
	default:
		return fmt.Sprintf("0x%02X", uint8(s))
	}
}

// ErrorType classifies radio link errors for retry decisions.
type ErrorType int

const (
	// ErrorTypePermanent errors will not go away by retrying.
	ErrorTypePermanent ErrorType = iota
	// ErrorTypeTransient errors may succeed on retry.
	ErrorTypeTransient
	// ErrorTypeTimeout errors are timeouts, retryable.
	ErrorTypeTimeout
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return "permanent"
	}
}

// Radio link errors.
var (
	ErrTransportTimeout    = errors.New("radio link timeout")
	ErrTransportRead       = errors.New("radio link read failed")
	ErrTransportWrite      = errors.New("radio link write failed")
	ErrCommunicationFailed = errors.New("radio communication failed")
	ErrNoACK               = errors.New("radio did not acknowledge command")
	ErrFrameCorrupted      = errors.New("radio link frame corrupted")
	ErrChecksumMismatch    = errors.New("radio link checksum mismatch")
	ErrDeviceNotFound      = errors.New("radio not found")
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrClosed              = errors.New("engine closed")
	ErrTransportClosed     = errors.New("radio link closed")
	ErrRadioBusy           = errors.New("radio busy")
)

var transientErrors = []error{
	ErrTransportRead,
	ErrTransportWrite,
	ErrCommunicationFailed,
	ErrNoACK,
	ErrFrameCorrupted,
	ErrChecksumMismatch,
	ErrRadioBusy,
}

// TransportError describes a failed radio link operation.
type TransportError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s on %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps err with the operation and port it happened on.
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Err:       err,
		Op:        op,
		Port:      port,
		Type:      errType,
		Retryable: errType != ErrorTypePermanent,
	}
}

// NewTimeoutError returns a retryable timeout error.
func NewTimeoutError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportTimeout, ErrorTypeTimeout)
}

// IsRetryable reports whether err is worth retrying. A TransportError
// decides by its Retryable flag; bare sentinels by their kind.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return GetErrorType(err) != ErrorTypePermanent
}

// GetErrorType classifies err.
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Type
	}
	if errors.Is(err, ErrTransportTimeout) {
		return ErrorTypeTimeout
	}
	for _, t := range transientErrors {
		if errors.Is(err, t) {
			return ErrorTypeTransient
		}
	}
	return ErrorTypePermanent
}

// InvariantError is the panic value raised when the hopping engine detects
// a state that must be unreachable.
type InvariantError struct {
	Err   error
	State State
	Event Event
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("fhmac: invariant violated in %s on %s: %v", e.State, e.Event, e.Err)
}

func (e *InvariantError) Unwrap() error {
	return e.Err
}

// Invariant violations carried by InvariantError.
var (
	// ErrFSMInvariant is raised for an event the current state cannot take.
	ErrFSMInvariant = errors.New("unexpected event")
	// ErrBroadcastOffset is raised when the broadcast offset lies past the
	// broadcast interval.
	ErrBroadcastOffset = errors.New("broadcast offset beyond interval")
	// ErrNoTxWindow is raised when no listen before talk window was found
	// within the transmit history.
	ErrNoTxWindow = errors.New("no transmit window")
)

// ErrQueueFull is returned by Send when the transmit queue has no room.
var ErrQueueFull = errors.New("transmit queue full")
