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
	"fmt"
	"strings"
)

// R1 is the one-byte status returned by every standard SPI-mode command.
// Bit 7 is reserved and always zero on a valid response.
type R1 byte

// R1 status bits
const (
	R1IdleState        R1 = 1 << 0
	R1EraseReset       R1 = 1 << 1
	R1IllegalCommand   R1 = 1 << 2
	R1CRCError         R1 = 1 << 3
	R1EraseSeqError    R1 = 1 << 4
	R1AddressError     R1 = 1 << 5
	R1ParameterError   R1 = 1 << 6
	r1ValidResponseBit R1 = 1 << 7
)

// Idle reports whether the card is in the idle state (still initializing).
func (r R1) Idle() bool { return r&R1IdleState != 0 }

// Err reports whether any error bit is set. The idle bit is state, not an
// error.
func (r R1) Err() bool { return r&^R1IdleState != 0 }

// Valid reports whether the byte can be an R1 response at all. The card
// holds the line high (0xFF) while it has nothing to say.
func (r R1) Valid() bool { return r&r1ValidResponseBit == 0 }

func (r R1) String() string {
	if r == 0 {
		return "ready"
	}
	names := []struct {
		name string
		bit  R1
	}{
		{"idle", R1IdleState},
		{"erase-reset", R1EraseReset},
		{"illegal-command", R1IllegalCommand},
		{"crc-error", R1CRCError},
		{"erase-seq-error", R1EraseSeqError},
		{"address-error", R1AddressError},
		{"parameter-error", R1ParameterError},
	}
	var set []string
	for _, n := range names {
		if r&n.bit != 0 {
			set = append(set, n.name)
		}
	}
	if len(set) == 0 {
		return fmt.Sprintf("invalid(0x%02X)", byte(r))
	}
	return strings.Join(set, "|")
}

// OCR is the 4-byte operation conditions register payload of an R3 response,
// in transmission order (most significant byte first).
type OCR [4]byte

// PoweredUp reports whether the card has finished its power-up routine. The
// capacity bit is only meaningful once this is set.
func (o OCR) PoweredUp() bool { return o[0]&0x80 != 0 }

// HighCapacity reports the card capacity status bit: set for block-addressed
// SDHC/SDXC cards, clear for byte-addressed SDSC cards.
func (o OCR) HighCapacity() bool { return o[0]&0x40 != 0 }

func (o OCR) String() string {
	return fmt.Sprintf("%02x %02x %02x %02x", o[0], o[1], o[2], o[3])
}
