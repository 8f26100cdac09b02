// Copyright 2026 The go-sdspi Authors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sdspi

import (
	"errors"
	"fmt"
)

// Error categories. Stall errors mean the card stopped answering within the
// configured attempt budget; callers can recover with a power cycle and a
// fresh Init. Everything else is a protocol- or usage-level failure.
var (
	// ErrInitTimeout is returned when ACMD41 polling exhausts its attempt
	// budget without the card leaving the idle state. This is terminal for
	// the card: no further progress is possible without a hardware reset.
	ErrInitTimeout = errors.New("card did not leave idle state")

	// ErrTokenTimeout is returned when a data-start token is not observed
	// within the configured number of filler exchanges.
	ErrTokenTimeout = errors.New("data token not received")

	// ErrCardBusy is returned when the card holds the data line low past
	// the configured busy-wait budget.
	ErrCardBusy = errors.New("card busy past wait budget")

	// ErrIncompatibleCard is returned by Init under the strict interface
	// check when the card echoes a different voltage window or check
	// pattern than the host sent.
	ErrIncompatibleCard = errors.New("interface condition mismatch")

	// ErrBufferSize is returned when a transfer buffer does not match the
	// requested sector count.
	ErrBufferSize = errors.New("buffer length does not match sector count")
)

// CommandError reports a command that completed the byte exchange but came
// back with error bits set in its R1 status.
type CommandError struct {
	Cmd    byte
	Status R1
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("CMD%d failed: status 0x%02X (%s)", e.Cmd, byte(e.Status), e.Status)
}

// IllegalCommand reports whether the card rejected the command index
// outright, which usually means a legacy card that predates the command.
func (e *CommandError) IllegalCommand() bool {
	return e.Status&R1IllegalCommand != 0
}

// TransferError wraps a failure of the underlying serial exchange with the
// operation that was in flight.
type TransferError struct {
	Err error
	Op  string
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// IsStall reports whether err is one of the bounded-wait exhaustion errors:
// the card went silent mid-operation rather than answering with an error
// status.
func IsStall(err error) bool {
	return errors.Is(err, ErrTokenTimeout) || errors.Is(err, ErrCardBusy)
}

// IsProtocolError reports whether err carries an R1 status with error bits,
// as opposed to a transport failure or a stall.
func IsProtocolError(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce)
}

func newTransferError(op string, err error) *TransferError {
	return &TransferError{Op: op, Err: err}
}
