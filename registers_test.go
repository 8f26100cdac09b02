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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSDSectors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		csd     CSD
		version int
		sectors uint64
	}{
		{
			// 1 GB standard capacity card: C_SIZE 3809, C_SIZE_MULT 7,
			// READ_BL_LEN 9.
			name:    "v1_1gb",
			csd:     CSD{0x00, 0x2F, 0x00, 0x32, 0x5F, 0x59, 0x83, 0xB8, 0x6D, 0xB7, 0xFF, 0x9F, 0x96, 0x40, 0x00, 0x00},
			version: 1,
			sectors: 1950720,
		},
		{
			// 8 GB SDHC card: C_SIZE 15231 in the fixed v2 layout.
			name:    "v2_8gb",
			csd:     CSD{0x40, 0x0E, 0x00, 0x32, 0x5B, 0x59, 0x00, 0x00, 0x3B, 0x7F, 0x7F, 0x80, 0x0A, 0x40, 0x00, 0x00},
			version: 2,
			sectors: 15597568,
		},
		{
			// Cards with 1024-byte blocks report READ_BL_LEN 10; the sector
			// count still comes out in 512-byte units.
			name:    "v1_1024_byte_blocks",
			csd:     CSD{0x00, 0x2F, 0x00, 0x32, 0x5F, 0x5A, 0x83, 0xB8, 0x6D, 0xB7, 0xFF, 0x9F, 0x96, 0x40, 0x00, 0x00},
			version: 1,
			sectors: 2 * 1950720,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.version, tt.csd.Version())
			assert.Equal(t, tt.sectors, tt.csd.Sectors())
		})
	}
}

func TestCIDDecode(t *testing.T) {
	t.Parallel()

	cid := CID{0x03, 'S', 'D', 'S', 'I', 'M', 'U', 'L', 0x10, 0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x86, 0x00}

	assert.Equal(t, byte(0x03), cid.ManufacturerID())
	assert.Equal(t, "SD", cid.OEMID())
	assert.Equal(t, "SIMUL", cid.ProductName())
	assert.Equal(t, "1.0", cid.Revision())
	assert.Equal(t, uint32(0xDEADBEEF), cid.Serial())

	year, month := cid.ManufactureDate()
	assert.Equal(t, 2024, year)
	assert.Equal(t, time.June, month)
}

func TestCIDProductNamePadding(t *testing.T) {
	t.Parallel()

	cid := CID{0x1B, 'S', 'M', 'E', 'D', ' ', ' ', ' '}
	assert.Equal(t, "ED", cid.ProductName())

	cid = CID{0x1B, 'S', 'M', 'S', 'D', 0x00, 0x00, 0x00}
	assert.Equal(t, "SD", cid.ProductName())
}

func TestReadRegisterExchange(t *testing.T) {
	t.Parallel()

	session, mock := newTestSession(t, true)

	raw := []byte{0x40, 0x0E, 0x00, 0x32, 0x5B, 0x59, 0x00, 0x00, 0x3B, 0x7F, 0x7F, 0x80, 0x0A, 0x40, 0x00, 0x00}
	mock.QueueStatus(0x00)
	mock.QueueReplies(0xFF, tokenData)
	mock.QueueBlock(raw)

	csd, err := session.CSD()
	require.NoError(t, err)
	assert.Equal(t, CSD(raw), csd)
	assert.Equal(t, uint64(15597568), csd.Sectors())

	assert.Equal(t, 1, countFrames(mock.TxBytes(), cmdSendCSD))
	assert.Equal(t, 1, mock.DeselectCount())
}

func TestReadRegisterRejected(t *testing.T) {
	t.Parallel()

	session, mock := newTestSession(t, false)
	mock.QueueStatus(byte(R1IllegalCommand))

	_, err := session.CID()
	require.Error(t, err)

	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, byte(cmdSendCID), ce.Cmd)
	assert.True(t, ce.IllegalCommand())
}
