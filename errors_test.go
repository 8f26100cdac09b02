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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsStall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{ErrTokenTimeout, "token_timeout", true},
		{ErrCardBusy, "card_busy", true},
		{fmt.Errorf("reading sector: %w", ErrCardBusy), "wrapped_busy", true},
		{ErrInitTimeout, "init_timeout_is_not_a_stall", false},
		{&CommandError{Cmd: 17, Status: R1AddressError}, "command_error", false},
		{nil, "nil", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsStall(tt.err))
		})
	}
}

func TestIsProtocolError(t *testing.T) {
	t.Parallel()

	assert.True(t, IsProtocolError(&CommandError{Cmd: 24, Status: R1ParameterError}))
	assert.True(t, IsProtocolError(fmt.Errorf("write: %w", &CommandError{Cmd: 25, Status: R1IdleState})))
	assert.False(t, IsProtocolError(ErrTokenTimeout))
	assert.False(t, IsProtocolError(nil))
}

func TestCommandError(t *testing.T) {
	t.Parallel()

	err := &CommandError{Cmd: 8, Status: R1IdleState | R1IllegalCommand}
	assert.Equal(t, "CMD8 failed: status 0x05 (idle|illegal-command)", err.Error())
	assert.True(t, err.IllegalCommand())

	err = &CommandError{Cmd: 17, Status: R1AddressError}
	assert.False(t, err.IllegalCommand())
}

func TestTransferErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("bus contention")
	err := newTransferError("CMD0 transmit", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "CMD0 transmit: bus contention", err.Error())

	var te *TransferError
	require.ErrorAs(t, fmt.Errorf("init: %w", err), &te)
	assert.Equal(t, "CMD0 transmit", te.Op)
}
