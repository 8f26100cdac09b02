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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    []Option
		errMsg  string
		wantErr bool
	}{
		{
			name: "defaults",
		},
		{
			name:    "nil_logger_rejected",
			opts:    []Option{WithLogger(nil)},
			errMsg:  "logger must not be nil",
			wantErr: true,
		},
		{
			name:    "nil_config_rejected",
			opts:    []Option{WithConfig(nil)},
			errMsg:  "config must not be nil",
			wantErr: true,
		},
		{
			name: "zero_attempt_budget_rejected",
			opts: []Option{WithConfig(&Config{
				InitAttempts:  0,
				TokenAttempts: 1,
				BusyAttempts:  1,
			})},
			errMsg:  "init attempts must be at least 1",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			card, err := New(NewMockTransport(), tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, card)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, card)
			assert.Equal(t, DefaultConfig(), card.config)
		})
	}
}

func TestSendCommandFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		wantFrame []byte
		arg       uint32
		cmd       byte
	}{
		{
			name:      "reset_uses_real_CRC",
			cmd:       cmdGoIdleState,
			arg:       0,
			wantFrame: []byte{0x40, 0x00, 0x00, 0x00, 0x00, 0x95},
		},
		{
			name:      "interface_check_uses_real_CRC",
			cmd:       cmdSendIfCond,
			arg:       ifCondVoltage | ifCondPattern,
			wantFrame: []byte{0x48, 0x00, 0x00, 0x01, 0xAA, 0x87},
		},
		{
			name:      "read_command_uses_filler_checksum",
			cmd:       cmdReadMultipleBlock,
			arg:       0x01020304,
			wantFrame: []byte{0x52, 0x01, 0x02, 0x03, 0x04, 0xFF},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := NewMockTransport()
			card, err := New(mock)
			require.NoError(t, err)

			status, err := card.sendCommand(tt.cmd, tt.arg)
			require.NoError(t, err)
			assert.False(t, status.Valid(), "mock idles high, no valid R1 expected")

			tx := mock.TxBytes()
			require.Len(t, tx, 8, "six frame bytes plus two response probes")
			assert.Equal(t, tt.wantFrame, tx[:6])
			assert.Equal(t, []byte{0xFF, 0xFF}, tx[6:], "response probes clock out filler")
		})
	}
}

func TestSendCommandStatusOnSecondProbe(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	card, err := New(mock)
	require.NoError(t, err)

	// Six don't-care bytes while the frame clocks out, then a garbage
	// byte on the first probe and the real status on the second.
	mock.QueueReplies(0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x3C, 0x01)

	status, err := card.sendCommand(cmdGoIdleState, 0)
	require.NoError(t, err)
	assert.Equal(t, R1IdleState, status, "first probed byte must be discarded")
}

func TestSendCommandTransferError(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	card, err := New(mock)
	require.NoError(t, err)

	wantErr := errors.New("bus gone")
	mock.SetError(wantErr)

	_, err = card.sendCommand(cmdReadOCR, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)

	var te *TransferError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Op, "CMD58")
}

func TestReadExtendedResponse(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	card, err := New(mock)
	require.NoError(t, err)

	mock.QueueReplies(0xC0, 0xFF, 0x80, 0x00)

	payload, err := card.readExtendedResponse()
	require.NoError(t, err)
	assert.Equal(t, [4]byte{0xC0, 0xFF, 0x80, 0x00}, payload, "bytes land in transmission order")
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, mock.TxBytes(), "payload is clocked with filler")
}

func TestWaitTokenConsumesExactly(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	card, err := New(mock)
	require.NoError(t, err)

	// Token shows up after five filler exchanges.
	mock.QueueReplies(0xFF, 0xFF, 0xFF, 0xFF, 0xFF, tokenData)

	require.NoError(t, card.waitToken(tokenData))
	assert.Len(t, mock.TxBytes(), 6, "five fillers consumed, token on the sixth exchange")
}

func TestWaitTokenTimeout(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	config.TokenAttempts = 4

	mock := NewMockTransport()
	card, err := New(mock, WithConfig(config))
	require.NoError(t, err)

	err = card.waitToken(tokenData)
	assert.ErrorIs(t, err, ErrTokenTimeout)
	assert.True(t, IsStall(err))
	assert.Len(t, mock.TxBytes(), 4, "wait is bounded by the configured budget")
}

func TestWaitNotBusy(t *testing.T) {
	t.Parallel()

	t.Run("released_line_ends_wait", func(t *testing.T) {
		t.Parallel()

		mock := NewMockTransport()
		card, err := New(mock)
		require.NoError(t, err)

		mock.QueueReplies(0x00, 0x00, 0x01)

		require.NoError(t, card.waitNotBusy())
		assert.Len(t, mock.TxBytes(), 3)
	})

	t.Run("budget_exhaustion", func(t *testing.T) {
		t.Parallel()

		config := DefaultConfig()
		config.BusyAttempts = 3

		mock := NewMockTransport()
		card, err := New(mock, WithConfig(config))
		require.NoError(t, err)

		mock.QueueReplies(0x00, 0x00, 0x00, 0x00)

		err = card.waitNotBusy()
		assert.ErrorIs(t, err, ErrCardBusy)
		assert.True(t, IsStall(err))
	})
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	assert.Equal(t, 10, config.InitAttempts)
	assert.Equal(t, 20*time.Millisecond, config.InitDelay)
	assert.Equal(t, 5*time.Millisecond, config.WriteRetryDelay)
	assert.False(t, config.StrictInterfaceCheck)
	require.NoError(t, config.validate())
}
