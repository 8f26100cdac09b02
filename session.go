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

import "github.com/mksdev/go-sdspi/internal/frame"

// Session is an initialized card. It carries the one persistent fact
// initialization produces: the capacity class, which decides whether the
// card is byte- or block-addressed. A Session is only obtainable from
// Card.Init, so block transfers cannot reach an uninitialized card.
type Session struct {
	card         *Card
	highCapacity bool
}

// HighCapacity reports whether the card is block-addressed (SDHC/SDXC).
func (s *Session) HighCapacity() bool {
	return s.highCapacity
}

// address translates a sector index into a protocol address. Standard
// capacity cards address bytes, high capacity cards address blocks. Every
// transfer goes through here; the capacity class is never re-derived.
func (s *Session) address(sector uint32) uint32 {
	if s.highCapacity {
		return sector
	}
	return sector * SectorSize
}

// ReadSectors reads count sectors starting at sector into buf, which must
// hold exactly count*512 bytes.
func (s *Session) ReadSectors(buf []byte, sector uint32, count int) error {
	if len(buf) != count*SectorSize {
		return ErrBufferSize
	}
	c := s.card
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transport.Select()
	defer c.transport.Deselect()

	status, err := c.sendCommand(cmdReadMultipleBlock, s.address(sector))
	if err != nil {
		return err
	}
	if status != 0 {
		return &CommandError{Cmd: cmdReadMultipleBlock, Status: status}
	}

	for i := 0; i < count; i++ {
		if err := s.readBlock(buf[i*SectorSize : (i+1)*SectorSize]); err != nil {
			return err
		}
	}

	// The response right after STOP_TRANSMISSION includes a stuff byte
	// and is unreliable on many cards; it is logged, not acted on.
	status, err = c.sendCommand(cmdStopTransmission, 0)
	if err != nil {
		return err
	}
	if status != 0 {
		c.log.Warn("STOP_TRANSMISSION returned unexpected status", "status", status.String())
	}
	return c.waitNotBusy()
}

// ReadSector reads a single sector using the single-block read command,
// saving the stop-transmission round trip.
func (s *Session) ReadSector(buf []byte, sector uint32) error {
	if len(buf) != SectorSize {
		return ErrBufferSize
	}
	c := s.card
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transport.Select()
	defer c.transport.Deselect()

	status, err := c.sendCommand(cmdReadSingleBlock, s.address(sector))
	if err != nil {
		return err
	}
	if status != 0 {
		return &CommandError{Cmd: cmdReadSingleBlock, Status: status}
	}
	return s.readBlock(buf)
}

// readBlock waits for the data token, reads one payload (a 512-byte sector
// or a 16-byte register) and consumes the two trailing checksum bytes. CRC
// is disabled in SPI mode, so their value is ignored.
func (s *Session) readBlock(buf []byte) error {
	c := s.card
	if err := c.waitToken(tokenData); err != nil {
		return err
	}
	if err := c.transport.ReadBlock(buf); err != nil {
		return newTransferError("block read", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := c.transport.Transfer(frame.Filler); err != nil {
			return newTransferError("block checksum", err)
		}
	}
	return nil
}

// WriteSectors writes count sectors starting at sector from buf, which must
// hold exactly count*512 bytes.
func (s *Session) WriteSectors(buf []byte, sector uint32, count int) error {
	if len(buf) != count*SectorSize {
		return ErrBufferSize
	}
	c := s.card
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transport.Select()
	defer c.transport.Deselect()

	if err := s.armWrite(s.address(sector)); err != nil {
		return err
	}
	if _, err := c.transport.Transfer(frame.Filler); err != nil {
		return newTransferError("write gap", err)
	}

	for i := 0; i < count; i++ {
		if err := s.writeBlock(tokenWriteMulti, buf[i*SectorSize:(i+1)*SectorSize]); err != nil {
			return err
		}
	}

	if _, err := c.transport.Transfer(tokenStopTran); err != nil {
		return newTransferError("stop token", err)
	}
	if _, err := c.transport.Transfer(frame.Filler); err != nil {
		return newTransferError("stop token", err)
	}
	return c.waitNotBusy()
}

// WriteSector writes a single sector using the single-block write command.
// Unlike the multi-block path it needs no stop token, only the busy wait.
func (s *Session) WriteSector(buf []byte, sector uint32) error {
	if len(buf) != SectorSize {
		return ErrBufferSize
	}
	c := s.card
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transport.Select()
	defer c.transport.Deselect()

	status, err := c.sendCommand(cmdWriteBlock, s.address(sector))
	if err != nil {
		return err
	}
	if status != 0 {
		return &CommandError{Cmd: cmdWriteBlock, Status: status}
	}
	if err := s.writeBlock(tokenData, buf); err != nil {
		return err
	}
	return c.waitNotBusy()
}

// armWrite issues WRITE_MULTIPLE_BLOCK until the card accepts it. Cards
// still finishing internal housekeeping refuse the command for a while, so
// the attempt budget is paired with a fixed inter-attempt delay.
func (s *Session) armWrite(addr uint32) error {
	c := s.card
	var status R1
	for i := 0; i < c.config.WriteRetryAttempts; i++ {
		var err error
		status, err = c.sendCommand(cmdWriteMultipleBlock, addr)
		if err != nil {
			return err
		}
		if status == 0 {
			return nil
		}
		c.transport.Delay(c.config.WriteRetryDelay)
	}
	return &CommandError{Cmd: cmdWriteMultipleBlock, Status: status}
}

// writeBlock sends one data token, 512 bytes of payload and two filler bytes
// standing in for the CRC.
func (s *Session) writeBlock(token byte, buf []byte) error {
	c := s.card
	if _, err := c.transport.Transfer(token); err != nil {
		return newTransferError("data token", err)
	}
	if err := c.transport.WriteBlock(buf); err != nil {
		return newTransferError("block write", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := c.transport.Transfer(frame.Filler); err != nil {
			return newTransferError("block checksum", err)
		}
	}
	return nil
}

// Erase wipes the sector range [startSector, endSector], both inclusive.
// The erased content is card-defined (all ones or all zeros).
func (s *Session) Erase(startSector, endSector uint32) error {
	c := s.card
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transport.Select()
	defer c.transport.Deselect()

	steps := []struct {
		cmd byte
		arg uint32
	}{
		{cmdEraseWrBlkStart, s.address(startSector)},
		{cmdEraseWrBlkEnd, s.address(endSector)},
		{cmdErase, 0},
	}
	for _, step := range steps {
		status, err := c.sendCommand(step.cmd, step.arg)
		if err != nil {
			return err
		}
		if status != 0 {
			return &CommandError{Cmd: step.cmd, Status: status}
		}
	}
	return c.waitNotBusy()
}
