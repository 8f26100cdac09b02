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

// Package cardsim simulates an SD card at the byte-exchange level. It
// implements the driver's Transport contract and decodes command frames,
// data tokens and block payloads exactly as a card's SPI engine would, so
// tests can exercise the full init and transfer paths without hardware.
//
// The simulation models the quirks the driver is written against: the valid
// R1 token appearing on the second probed byte after a command, configurable
// ACMD41 rounds before leaving idle, configurable filler latency before data
// tokens, and busy bytes after stop and erase operations.
package cardsim

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const sectorSize = 512

// Command indices the simulator understands.
const (
	cmdGoIdleState        = 0
	cmdSendIfCond         = 8
	cmdSendCSD            = 9
	cmdSendCID            = 10
	cmdStopTransmission   = 12
	cmdReadSingleBlock    = 17
	cmdReadMultipleBlock  = 18
	cmdWriteBlock         = 24
	cmdWriteMultipleBlock = 25
	cmdEraseWrBlkStart    = 32
	cmdEraseWrBlkEnd      = 33
	cmdErase              = 38
	cmdAppCmd             = 55
	cmdReadOCR            = 58
)

const (
	tokenData       = 0xFE
	tokenWriteMulti = 0xFC
	tokenStopTran   = 0xFD
)

// busyBytes is how many 0x00 bytes the simulated card holds the line low
// after a stop or erase before signalling ready.
const busyBytes = 2

type ioMode int

const (
	modeNone ioMode = iota
	modeReadMulti
	modeWriteMulti
	modeWriteSingle
)

// Card is a simulated SD card. Configure it with options, hand it to the
// driver as its Transport, and inspect the backing store afterwards.
type Card struct {
	store         map[uint32]*[sectorSize]byte
	commandCounts map[byte]int

	csd [16]byte
	cid [16]byte

	// scripted behavior
	ifCondEcho   [4]byte
	readyAfter   int // ACMD41 rounds until the card leaves idle
	tokenLatency int // filler bytes before each data token
	armFailures  int // CMD25 rejections before acceptance

	// protocol state
	out         []byte
	frame       [6]byte
	frameLen    int
	inFrame     bool
	acmdArmed   bool
	ready       bool
	mode        ioMode
	awaitToken  bool
	acmd41Seen  int
	armSeen     int
	readSector  uint32
	writeSector uint32
	eraseStart  uint32
	eraseEnd    uint32

	selected   bool
	delayCount int

	mu sync.Mutex
}

// Option configures the simulated card.
type Option func(*Card)

// WithHighCapacity makes the card block-addressed (SDHC).
func WithHighCapacity() Option {
	return func(c *Card) {
		c.csd[0] = 0x40
	}
}

// WithReadyAfter sets how many ACMD41 rounds the card stays idle for.
// 1 means the first poll succeeds.
func WithReadyAfter(n int) Option {
	return func(c *Card) { c.readyAfter = n }
}

// WithTokenLatency sets how many filler bytes precede every data token.
func WithTokenLatency(n int) Option {
	return func(c *Card) { c.tokenLatency = n }
}

// WithArmFailures makes the card reject the first n WRITE_MULTIPLE_BLOCK
// commands before accepting one.
func WithArmFailures(n int) Option {
	return func(c *Card) { c.armFailures = n }
}

// WithIfCondEcho overrides the 4-byte SEND_IF_COND echo, for exercising
// incompatible-card handling.
func WithIfCondEcho(echo [4]byte) Option {
	return func(c *Card) { c.ifCondEcho = echo }
}

// highCapacity reports the simulated capacity class, stored in the CSD
// structure version bit.
func (c *Card) highCapacity() bool {
	return c.csd[0]&0xC0 == 0x40
}

// New creates a standard-capacity card that becomes ready on the first
// ACMD41 poll and emits data tokens after two filler bytes.
func New(opts ...Option) *Card {
	c := &Card{
		store:         make(map[uint32]*[sectorSize]byte),
		commandCounts: make(map[byte]int),
		ifCondEcho:    [4]byte{0x00, 0x00, 0x01, 0xAA},
		readyAfter:    1,
		tokenLatency:  2,
	}
	// CSD version 1.0 for SDSC; WithHighCapacity switches to the fixed
	// version 2.0 layout.
	c.csd = [16]byte{
		0x00, 0x2F, 0x00, 0x32, 0x5F, 0x59, 0x83, 0xB8,
		0x6D, 0xB7, 0xFF, 0x9F, 0x96, 0x40, 0x00, 0x00,
	}
	c.cid = [16]byte{
		0x03, 'S', 'D', 'S', 'I', 'M', 'U', 'L',
		0x10, 0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x86, 0x00,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.highCapacity() {
		// Fixed CSD 2.0 layout, C_SIZE 15231 -> 15,597,568 sectors.
		c.csd = [16]byte{
			0x40, 0x0E, 0x00, 0x32, 0x5B, 0x59, 0x00, 0x00,
			0x3B, 0x7F, 0x7F, 0x80, 0x0A, 0x40, 0x00, 0x00,
		}
	}
	return c
}

// Select implements the Transport contract.
func (c *Card) Select() {
	c.mu.Lock()
	c.selected = true
	c.mu.Unlock()
}

// Deselect implements the Transport contract.
func (c *Card) Deselect() {
	c.mu.Lock()
	c.selected = false
	c.mu.Unlock()
}

// Delay implements the Transport contract. No time passes in simulation.
func (c *Card) Delay(time.Duration) {
	c.mu.Lock()
	c.delayCount++
	c.mu.Unlock()
}

// Transfer implements the Transport contract: the reply byte for this
// exchange is decided before the incoming byte is interpreted, exactly like
// a shift register.
func (c *Card) Transfer(b byte) (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reply := c.popOut()
	c.feed(b)
	return reply, nil
}

// ReadBlock implements the Transport contract, serving payload bytes from
// the same output stream Transfer drains.
func (c *Card) ReadBlock(buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range buf {
		buf[i] = c.popOut()
	}
	return nil
}

// WriteBlock implements the Transport contract. A block is only accepted
// directly after a write data token.
func (c *Card) WriteBlock(buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != modeWriteMulti && c.mode != modeWriteSingle {
		return errors.New("block written outside a write transaction")
	}
	if c.awaitToken {
		return errors.New("block written before data token")
	}
	if len(buf) != sectorSize {
		return fmt.Errorf("block length %d, card expects %d", len(buf), sectorSize)
	}
	var sector [sectorSize]byte
	copy(sector[:], buf)
	c.store[c.writeSector] = &sector
	c.writeSector++
	if c.mode == modeWriteSingle {
		// Busy while the block programs, then ready.
		c.mode = modeNone
		c.stageBusy()
	} else {
		c.awaitToken = true
	}
	return nil
}

// popOut returns the next scheduled reply byte, restocking the read stream
// when a multi-block read has drained it.
func (c *Card) popOut() byte {
	if len(c.out) == 0 && c.mode == modeReadMulti {
		c.stageReadBlock(c.readSector)
		c.readSector++
	}
	if len(c.out) == 0 {
		return 0xFF
	}
	b := c.out[0]
	c.out = c.out[1:]
	return b
}

// feed interprets one received byte.
func (c *Card) feed(b byte) {
	if c.inFrame {
		c.frame[c.frameLen] = b
		c.frameLen++
		if c.frameLen == len(c.frame) {
			c.inFrame = false
			c.execute(c.frame[0]&0x3F, uint32(c.frame[1])<<24|uint32(c.frame[2])<<16|uint32(c.frame[3])<<8|uint32(c.frame[4]))
		}
		return
	}
	if c.awaitToken {
		switch {
		case c.mode == modeWriteMulti && b == tokenWriteMulti:
			c.awaitToken = false
			return
		case c.mode == modeWriteSingle && b == tokenData:
			c.awaitToken = false
			return
		case c.mode == modeWriteMulti && b == tokenStopTran:
			c.mode = modeNone
			c.awaitToken = false
			// One gap byte, then busy until programming finishes.
			c.out = []byte{0xFF}
			c.stageBusy()
			return
		}
	}
	// A command byte carries 01 in its top two bits; filler (0xFF) and
	// tokens never match.
	if b&0xC0 == 0x40 {
		c.inFrame = true
		c.frame[0] = b
		c.frameLen = 1
	}
}

// execute runs one decoded command frame and schedules its response.
func (c *Card) execute(cmd byte, arg uint32) {
	c.commandCounts[cmd]++
	armed := c.acmdArmed
	c.acmdArmed = false

	idle := byte(0x00)
	if !c.ready {
		idle = 0x01
	}

	switch {
	case cmd == cmdGoIdleState:
		// Reset returns the card to idle, but internal initialization
		// keeps progressing; the ACMD41 round count is not cleared.
		c.ready = false
		c.mode = modeNone
		c.stageR1(0x01)

	case cmd == cmdSendIfCond:
		c.stageR1(0x01)
		c.out = append(c.out, c.ifCondEcho[:]...)

	case cmd == cmdAppCmd:
		c.acmdArmed = true
		c.stageR1(idle)

	case cmd == 41 && armed:
		c.acmd41Seen++
		if c.acmd41Seen >= c.readyAfter {
			c.ready = true
			c.stageR1(0x00)
		} else {
			c.stageR1(0x01)
		}

	case cmd == cmdReadOCR:
		c.stageR1(idle)
		ocr := byte(0)
		if c.ready {
			ocr |= 0x80
		}
		if c.highCapacity() {
			ocr |= 0x40
		}
		c.out = append(c.out, ocr, 0xFF, 0x80, 0x00)

	case cmd == cmdSendCSD:
		c.stageR1(0x00)
		c.stageRegister(c.csd)

	case cmd == cmdSendCID:
		c.stageR1(0x00)
		c.stageRegister(c.cid)

	case cmd == cmdReadSingleBlock:
		c.stageR1(0x00)
		c.stageReadBlock(c.sectorOf(arg))

	case cmd == cmdReadMultipleBlock:
		c.mode = modeReadMulti
		c.readSector = c.sectorOf(arg)
		c.stageR1(0x00)

	case cmd == cmdStopTransmission:
		c.mode = modeNone
		c.stageR1(0x00)
		c.stageBusy()

	case cmd == cmdWriteBlock:
		c.mode = modeWriteSingle
		c.awaitToken = true
		c.writeSector = c.sectorOf(arg)
		c.stageR1(0x00)

	case cmd == cmdWriteMultipleBlock:
		c.armSeen++
		if c.armSeen <= c.armFailures {
			c.stageR1(0x01)
		} else {
			c.mode = modeWriteMulti
			c.awaitToken = true
			c.writeSector = c.sectorOf(arg)
			c.stageR1(0x00)
		}

	case cmd == cmdEraseWrBlkStart:
		c.eraseStart = c.sectorOf(arg)
		c.stageR1(0x00)

	case cmd == cmdEraseWrBlkEnd:
		c.eraseEnd = c.sectorOf(arg)
		c.stageR1(0x00)

	case cmd == cmdErase:
		for s := c.eraseStart; s <= c.eraseEnd; s++ {
			delete(c.store, s)
		}
		c.stageR1(0x00)
		c.stageBusy()

	default:
		c.stageR1(idle | 0x04) // illegal command
	}
}

// stageR1 schedules the two-byte response window: one busy filler, then the
// R1 token on the second probed byte.
func (c *Card) stageR1(r1 byte) {
	c.out = []byte{0xFF, r1}
}

// stageBusy appends the programming busy window and the ready byte.
func (c *Card) stageBusy() {
	for i := 0; i < busyBytes; i++ {
		c.out = append(c.out, 0x00)
	}
	c.out = append(c.out, 0xFF)
}

// stageRegister appends a 16-byte register transfer: token latency, data
// token, payload, two checksum bytes.
func (c *Card) stageRegister(reg [16]byte) {
	c.stageToken()
	c.out = append(c.out, reg[:]...)
	c.out = append(c.out, 0x00, 0x00)
}

// stageReadBlock appends one sector's read stream.
func (c *Card) stageReadBlock(sector uint32) {
	c.stageToken()
	if data, ok := c.store[sector]; ok {
		c.out = append(c.out, data[:]...)
	} else {
		for i := 0; i < sectorSize; i++ {
			c.out = append(c.out, 0xFF)
		}
	}
	c.out = append(c.out, 0x00, 0x00)
}

func (c *Card) stageToken() {
	for i := 0; i < c.tokenLatency; i++ {
		c.out = append(c.out, 0xFF)
	}
	c.out = append(c.out, tokenData)
}

// sectorOf translates a protocol address back into a sector index according
// to the card's addressing mode.
func (c *Card) sectorOf(arg uint32) uint32 {
	if c.highCapacity() {
		return arg
	}
	return arg / sectorSize
}

// Test inspection helpers

// CommandCount returns how many frames carrying cmd the card decoded.
func (c *Card) CommandCount(cmd byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commandCounts[cmd]
}

// DelayCount returns how many delay requests the driver issued.
func (c *Card) DelayCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delayCount
}

// Sector returns a copy of a stored sector, or 0xFF filler if it was never
// written.
func (c *Card) Sector(sector uint32) [sectorSize]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if data, ok := c.store[sector]; ok {
		return *data
	}
	var blank [sectorSize]byte
	for i := range blank {
		blank[i] = 0xFF
	}
	return blank
}

// SetSector stores sector content directly, bypassing the wire protocol.
func (c *Card) SetSector(sector uint32, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var s [sectorSize]byte
	copy(s[:], data)
	c.store[sector] = &s
}
