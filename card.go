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

// Package sdspi drives SD memory cards over a synchronous serial (SPI-mode)
// link. It brings a raw card from power-on into a known addressing mode and
// performs single- and multi-block sector reads and writes.
//
// The driver owns no hardware: it talks through a Transport, which is the
// chip-select plus half-duplex byte exchange contract of an SPI peripheral.
// Initialization yields a Session carrying the card's capacity class; all
// block transfers go through the Session, so a transfer cannot be attempted
// on an uninitialized card.
package sdspi

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/mksdev/go-sdspi/internal/frame"
	"github.com/mksdev/go-sdspi/internal/syncutil"
)

// clockTrainBytes is how many filler bytes are clocked out before the first
// command to synchronize the card's SPI engine after power-on.
const clockTrainBytes = 20

// Card is an SD card attached to a Transport. It is safe for concurrent use;
// command sequences are serialized so two never interleave on the bus.
type Card struct {
	transport Transport
	config    *Config
	log       *log.Logger
	mu        syncutil.Mutex
}

// New creates a Card on the given transport. The card is not touched until
// Init is called.
func New(transport Transport, opts ...Option) (*Card, error) {
	card := &Card{
		transport: transport,
		config:    DefaultConfig(),
		log:       log.New(io.Discard),
	}
	for _, opt := range opts {
		if err := opt(card); err != nil {
			return nil, err
		}
	}
	return card, nil
}

// Transport returns the underlying transport.
func (c *Card) Transport() Transport {
	return c.transport
}

// sendCommand transmits one command frame and returns the card's R1 status.
// The card must already be selected. No retry happens at this layer; the
// status byte always reaches the caller for interpretation.
func (c *Card) sendCommand(cmd byte, arg uint32) (R1, error) {
	f := frame.Encode(cmd, arg)
	for _, b := range f {
		if _, err := c.transport.Transfer(b); err != nil {
			return 0, newTransferError(fmt.Sprintf("CMD%d transmit", cmd), err)
		}
	}

	// The card puts its valid response token on the second probed byte
	// after the frame, so clock one dummy byte out first and discard it.
	if _, err := c.transport.Transfer(frame.Filler); err != nil {
		return 0, newTransferError(fmt.Sprintf("CMD%d response", cmd), err)
	}
	b, err := c.transport.Transfer(frame.Filler)
	if err != nil {
		return 0, newTransferError(fmt.Sprintf("CMD%d response", cmd), err)
	}

	status := R1(b)
	c.log.Debug("command exchange", "cmd", cmd, "arg", fmt.Sprintf("0x%08X", arg), "status", status.String())
	return status, nil
}

// readExtendedResponse reads the 4-byte payload that follows the R1 byte of
// an R3 or R7 response, in transmission order. There is no framing to
// validate; the bytes mean whatever the command says they mean.
func (c *Card) readExtendedResponse() ([4]byte, error) {
	var buf [4]byte
	for i := range buf {
		b, err := c.transport.Transfer(frame.Filler)
		if err != nil {
			return buf, newTransferError("extended response", err)
		}
		buf[i] = b
	}
	return buf, nil
}

// waitToken exchanges filler bytes until the card emits the wanted data
// token. The wait is bounded by Config.TokenAttempts.
func (c *Card) waitToken(token byte) error {
	for i := 0; i < c.config.TokenAttempts; i++ {
		b, err := c.transport.Transfer(frame.Filler)
		if err != nil {
			return newTransferError("token wait", err)
		}
		if b == token {
			return nil
		}
	}
	return ErrTokenTimeout
}

// waitNotBusy exchanges filler bytes until the card releases the data line
// (any non-zero bit pattern). The wait is bounded by Config.BusyAttempts.
func (c *Card) waitNotBusy() error {
	for i := 0; i < c.config.BusyAttempts; i++ {
		b, err := c.transport.Transfer(frame.Filler)
		if err != nil {
			return newTransferError("busy wait", err)
		}
		if b != 0 {
			return nil
		}
	}
	return ErrCardBusy
}

// Init drives the mandatory SPI-mode bring-up sequence: reset, interface
// condition check, operation condition polling, capacity class read. On
// success it returns a Session bound to the detected addressing mode.
//
// Real cards deviate from the specification in tolerated ways; unexpected
// statuses during reset and the interface check are logged and forgiven
// unless WithStrictInterfaceCheck is set. Exhausting the ACMD41 attempt
// budget returns ErrInitTimeout, which no amount of retrying fixes: the
// card needs a power cycle.
func (c *Card) Init() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transport.Select()
	defer c.transport.Deselect()

	for i := 0; i < clockTrainBytes; i++ {
		if _, err := c.transport.Transfer(frame.Filler); err != nil {
			return nil, newTransferError("clock train", err)
		}
	}

	if err := c.reset(); err != nil {
		return nil, err
	}
	if err := c.checkInterfaceCondition(); err != nil {
		return nil, err
	}

	// Pre-init OCR read. The content is not acted on here; it only shows
	// up in diagnostics to explain misbehaving cards.
	status, err := c.sendCommand(cmdReadOCR, 0)
	if err != nil {
		return nil, err
	}
	ocr, err := c.readExtendedResponse()
	if err != nil {
		return nil, err
	}
	if status != R1IdleState {
		c.log.Warn("READ_OCR before init returned unexpected status", "status", status.String())
	}
	c.log.Debug("OCR before init", "ocr", OCR(ocr).String())

	if err := c.pollOperatingCondition(); err != nil {
		return nil, err
	}

	return c.readCapacityClass()
}

// reset issues GO_IDLE_STATE. Some cards come back with a not-perfectly-clean
// idle byte; that is logged and tolerated.
func (c *Card) reset() error {
	status, err := c.sendCommand(cmdGoIdleState, 0)
	if err != nil {
		return err
	}
	if status != R1IdleState {
		c.log.Warn("GO_IDLE_STATE returned unexpected status", "status", status.String())
	}
	return nil
}

// checkInterfaceCondition issues SEND_IF_COND and validates the echoed
// voltage window and check pattern.
func (c *Card) checkInterfaceCondition() error {
	status, err := c.sendCommand(cmdSendIfCond, ifCondVoltage|ifCondPattern)
	if err != nil {
		return err
	}
	echo, err := c.readExtendedResponse()
	if err != nil {
		return err
	}
	if status != R1IdleState {
		c.log.Warn("SEND_IF_COND returned unexpected status", "status", status.String())
	}
	if echo[3] != ifCondPattern || echo[2] != ifCondVoltage>>8 {
		c.log.Warn("interface condition mismatch",
			"echo", fmt.Sprintf("%02x %02x %02x %02x", echo[0], echo[1], echo[2], echo[3]))
		if c.config.StrictInterfaceCheck {
			return ErrIncompatibleCard
		}
	}
	return nil
}

// pollOperatingCondition sends APP_CMD + ACMD41 with host capacity support
// until the card reports it has left the idle state.
func (c *Card) pollOperatingCondition() error {
	for i := 0; i < c.config.InitAttempts; i++ {
		if _, err := c.sendCommand(cmdAppCmd, 0); err != nil {
			return err
		}
		status, err := c.sendCommand(acmdSendOpCond, acmd41HCS)
		if err != nil {
			return err
		}
		// Cards fresh from power-on need time to make progress out of
		// idle; without this delay first-time initialization fails on
		// real hardware.
		c.transport.Delay(c.config.InitDelay)
		if status == 0 {
			return nil
		}
	}
	return ErrInitTimeout
}

// readCapacityClass reads the OCR a second time, now that the power-up bit
// is expected to be set, and derives the addressing mode.
func (c *Card) readCapacityClass() (*Session, error) {
	status, err := c.sendCommand(cmdReadOCR, 0)
	if err != nil {
		return nil, err
	}
	raw, err := c.readExtendedResponse()
	if err != nil {
		return nil, err
	}
	if status != 0 {
		c.log.Warn("READ_OCR after init returned unexpected status", "status", status.String())
	}

	ocr := OCR(raw)
	if !ocr.PoweredUp() {
		c.log.Warn("capacity bit read before power-up completion", "ocr", ocr.String())
	}
	c.log.Debug("OCR after init", "ocr", ocr.String())

	if ocr.HighCapacity() {
		c.log.Info("SDHC card connected")
	} else {
		c.log.Info("SDSC card connected")
	}

	return &Session{card: c, highCapacity: ocr.HighCapacity()}, nil
}
