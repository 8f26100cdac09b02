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

// Package spi provides a hardware Transport for the SD driver on top of
// periph.io. The chip-select line is driven as a plain GPIO rather than the
// controller's native CS, because the SD protocol needs the card held
// selected across many separate byte exchanges.
package spi

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// defaultFreq keeps the bus inside the 400 kHz window SD cards require
// until initialization completes. Raise it with WithFrequency once the card
// is up if the wiring allows.
const defaultFreq = 400 * physic.KiloHertz

// Transport implements sdspi.Transport over a periph.io SPI port and a GPIO
// chip-select pin.
type Transport struct {
	port     spi.PortCloser
	conn     spi.Conn
	cs       gpio.PinOut
	portName string
	freq     physic.Frequency
}

// TransportOption configures a Transport at construction time.
type TransportOption func(*Transport) error

// WithFrequency overrides the default 400 kHz bus clock.
func WithFrequency(freq physic.Frequency) TransportOption {
	return func(t *Transport) error {
		if freq <= 0 {
			return fmt.Errorf("frequency must be positive, got %s", freq)
		}
		t.freq = freq
		return nil
	}
}

// New opens an SPI port and a chip-select pin by their periph.io registry
// names (for example "/dev/spidev0.0" and "GPIO8").
func New(portName, csName string, opts ...TransportOption) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	transport := &Transport{
		portName: portName,
		freq:     defaultFreq,
	}
	for _, opt := range opts {
		if err := opt(transport); err != nil {
			return nil, err
		}
	}

	cs := gpioreg.ByName(csName)
	if cs == nil {
		return nil, fmt.Errorf("chip-select pin %q not found", csName)
	}
	if err := cs.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("failed to drive chip-select %q: %w", csName, err)
	}
	transport.cs = cs

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	conn, err := port.Connect(transport.freq, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	transport.port = port
	transport.conn = conn
	return transport, nil
}

// Select asserts the chip-select line.
func (t *Transport) Select() {
	_ = t.cs.Out(gpio.Low)
}

// Deselect releases the chip-select line.
func (t *Transport) Deselect() {
	_ = t.cs.Out(gpio.High)
}

// Transfer exchanges a single byte on the bus.
func (t *Transport) Transfer(b byte) (byte, error) {
	var rx [1]byte
	if err := t.conn.Tx([]byte{b}, rx[:]); err != nil {
		return 0, fmt.Errorf("SPI transfer on %s failed: %w", t.portName, err)
	}
	return rx[0], nil
}

// ReadBlock fills buf from the bus, clocking out 0xFF filler.
func (t *Transport) ReadBlock(buf []byte) error {
	tx := make([]byte, len(buf))
	for i := range tx {
		tx[i] = 0xFF
	}
	if err := t.conn.Tx(tx, buf); err != nil {
		return fmt.Errorf("SPI block read on %s failed: %w", t.portName, err)
	}
	return nil
}

// WriteBlock clocks out buf, discarding the received bytes.
func (t *Transport) WriteBlock(buf []byte) error {
	if err := t.conn.Tx(buf, nil); err != nil {
		return fmt.Errorf("SPI block write on %s failed: %w", t.portName, err)
	}
	return nil
}

// Delay blocks for d.
func (*Transport) Delay(d time.Duration) {
	time.Sleep(d)
}

// Close releases the SPI port. The chip-select pin is left deselected.
func (t *Transport) Close() error {
	t.Deselect()
	if t.port != nil {
		if err := t.port.Close(); err != nil {
			return fmt.Errorf("SPI close failed: %w", err)
		}
	}
	return nil
}
