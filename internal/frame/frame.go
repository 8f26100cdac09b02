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

// Package frame encodes the fixed 6-byte SD command frame used in SPI mode.
//
// A frame is the command index with the transmission bit set, the 32-bit
// argument most-significant-byte first, and a trailing checksum byte. CRC
// checking is disabled in SPI mode, so only the two commands issued before
// the card knows that (GO_IDLE_STATE and SEND_IF_COND) need a real CRC-7;
// everything else carries a filler byte.
package frame

// Length is the size of an SD command frame in bytes.
const Length = 6

// Filler is the idle byte clocked out whenever the host only wants to
// receive. It doubles as the checksum byte for commands whose CRC the card
// ignores.
const Filler = 0xFF

// Command indices that are checked for a valid CRC even in SPI mode.
const (
	cmdGoIdleState = 0
	cmdSendIfCond  = 8
)

// crc7 computes the SD CRC-7 (polynomial x^7 + x^3 + 1) over data.
func crc7(data []byte) byte {
	var crc byte
	for _, b := range data {
		for i := 0; i < 8; i++ {
			crc <<= 1
			if (b^crc)&0x80 != 0 {
				crc ^= 0x09
			}
			b <<= 1
		}
	}
	return crc & 0x7F
}

// Encode builds the wire frame for a command and its argument. cmd must be
// in [0,63]; the top two bits are fixed by the protocol.
func Encode(cmd byte, arg uint32) [Length]byte {
	f := [Length]byte{
		0x40 | cmd,
		byte(arg >> 24),
		byte(arg >> 16),
		byte(arg >> 8),
		byte(arg),
	}
	f[5] = Checksum(cmd, f[:5])
	return f
}

// Checksum returns the checksum byte for a command frame body (the first
// five bytes). GO_IDLE_STATE and SEND_IF_COND get a real CRC-7 shifted into
// the upper bits with the end bit set; all other commands get the filler.
func Checksum(cmd byte, body []byte) byte {
	switch cmd {
	case cmdGoIdleState, cmdSendIfCond:
		return crc7(body)<<1 | 0x01
	default:
		return Filler
	}
}
