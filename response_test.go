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

	"github.com/stretchr/testify/assert"
)

func TestR1Classification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		r     R1
		idle  bool
		err   bool
		valid bool
	}{
		{"ready", 0x00, false, false, true},
		{"idle_only", R1IdleState, true, false, true},
		{"illegal_command", R1IllegalCommand, false, true, true},
		{"idle_plus_crc_error", R1IdleState | R1CRCError, true, true, true},
		{"parameter_error", R1ParameterError, false, true, true},
		{"line_idle_high", 0xFF, true, true, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.idle, tt.r.Idle())
			assert.Equal(t, tt.err, tt.r.Err())
			assert.Equal(t, tt.valid, tt.r.Valid())
		})
	}
}

func TestR1String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ready", R1(0).String())
	assert.Equal(t, "idle", R1IdleState.String())
	assert.Equal(t, "idle|illegal-command", (R1IdleState | R1IllegalCommand).String())
	assert.Equal(t, "invalid(0x80)", r1ValidResponseBit.String())
}

func TestOCRBits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		ocr          OCR
		poweredUp    bool
		highCapacity bool
	}{
		{"busy_sdsc", OCR{0x00, 0xFF, 0x80, 0x00}, false, false},
		{"ready_sdsc", OCR{0x80, 0xFF, 0x80, 0x00}, true, false},
		{"ready_sdhc", OCR{0xC0, 0xFF, 0x80, 0x00}, true, true},
		{"capacity_bit_without_powerup", OCR{0x40, 0x00, 0x00, 0x00}, false, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.poweredUp, tt.ocr.PoweredUp())
			assert.Equal(t, tt.highCapacity, tt.ocr.HighCapacity())
		})
	}
}
