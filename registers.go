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
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// CSD is the 16-byte card-specific data register in transmission order.
type CSD [16]byte

// Version returns the CSD structure version: 1 for standard capacity
// layouts, 2 for the fixed SDHC/SDXC layout.
func (c CSD) Version() int {
	return int(c[0]>>6) + 1
}

// Sectors returns the card capacity in 512-byte sectors.
func (c CSD) Sectors() uint64 {
	if c.Version() == 2 {
		// Fixed layout: capacity = (C_SIZE+1) * 512 KiB.
		csize := uint64(c[7]&0x3F)<<16 | uint64(c[8])<<8 | uint64(c[9])
		return (csize + 1) * 1024
	}
	readBlLen := uint(c[5] & 0x0F)
	csize := uint64(c[6]&0x03)<<10 | uint64(c[7])<<2 | uint64(c[8])>>6
	csizeMult := uint(c[9]&0x03)<<1 | uint(c[10])>>7
	// Capacity in bytes is (C_SIZE+1) * 2^(C_SIZE_MULT+2) * 2^READ_BL_LEN.
	return (csize + 1) << (csizeMult + 2 + readBlLen - 9)
}

// CID is the 16-byte card identification register in transmission order.
type CID [16]byte

// ManufacturerID returns the one-byte manufacturer code.
func (c CID) ManufacturerID() byte {
	return c[0]
}

// OEMID returns the two-character OEM/application identifier.
func (c CID) OEMID() string {
	return string(c[1:3])
}

// ProductName returns the five-character product name, trimmed.
func (c CID) ProductName() string {
	return strings.TrimRight(string(c[3:8]), " \x00")
}

// Revision returns the product revision as "major.minor".
func (c CID) Revision() string {
	return fmt.Sprintf("%d.%d", c[8]>>4, c[8]&0x0F)
}

// Serial returns the 32-bit product serial number.
func (c CID) Serial() uint32 {
	return binary.BigEndian.Uint32(c[9:13])
}

// ManufactureDate returns the year and month the card was manufactured.
func (c CID) ManufactureDate() (int, time.Month) {
	year := 2000 + int(c[13]&0x0F)<<4 + int(c[14]>>4)
	month := time.Month(c[14] & 0x0F)
	return year, month
}

// CSD reads the card-specific data register.
func (s *Session) CSD() (CSD, error) {
	var csd CSD
	err := s.readRegister(cmdSendCSD, csd[:])
	return csd, err
}

// CID reads the card identification register.
func (s *Session) CID() (CID, error) {
	var cid CID
	err := s.readRegister(cmdSendCID, cid[:])
	return cid, err
}

// Sectors returns the card capacity in sectors, read from the CSD.
func (s *Session) Sectors() (uint64, error) {
	csd, err := s.CSD()
	if err != nil {
		return 0, err
	}
	return csd.Sectors(), nil
}

// readRegister fetches a 16-byte register. Registers travel like a data
// block: a 0xFE token, the payload, then two checksum bytes.
func (s *Session) readRegister(cmd byte, buf []byte) error {
	c := s.card
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transport.Select()
	defer c.transport.Deselect()

	status, err := c.sendCommand(cmd, 0)
	if err != nil {
		return err
	}
	if status != 0 {
		return &CommandError{Cmd: cmd, Status: status}
	}
	return s.readBlock(buf)
}
