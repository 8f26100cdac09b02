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
	"sync"
	"time"
)

// Transport is the half-duplex serial link the driver talks through. The SD
// card is a pure SPI slave: every received byte costs one transmitted byte,
// and block transfers are clocked with filler bytes.
//
// Implementations are not required to be safe for concurrent use; the driver
// serializes all access and never interleaves two command sequences.
type Transport interface {
	// Select asserts the card's chip-select line.
	Select()

	// Deselect releases the chip-select line.
	Deselect()

	// Transfer exchanges a single byte: b is clocked out, the byte the
	// card clocked back is returned.
	Transfer(b byte) (byte, error)

	// ReadBlock fills buf with received bytes, clocking out filler.
	ReadBlock(buf []byte) error

	// WriteBlock clocks out buf, discarding whatever the card returns.
	WriteBlock(buf []byte) error

	// Delay blocks the calling context for d. It exists so tests and
	// tickless targets can substitute the timing source.
	Delay(d time.Duration)
}

// MockTransport is a scripted Transport for tests. Reply bytes are consumed
// one per Transfer in the order queued; when the queue is empty the card
// "idles" at 0xFF. Every transmitted byte and block is recorded.
type MockTransport struct {
	replies    []byte
	tx         []byte
	blockReads [][]byte
	written    [][]byte
	delays     []time.Duration
	selects    int
	deselects  int
	err        error
	mu         sync.Mutex
}

// NewMockTransport creates an empty mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Select implements Transport.
func (m *MockTransport) Select() {
	m.mu.Lock()
	m.selects++
	m.mu.Unlock()
}

// Deselect implements Transport.
func (m *MockTransport) Deselect() {
	m.mu.Lock()
	m.deselects++
	m.mu.Unlock()
}

// Transfer implements Transport.
func (m *MockTransport) Transfer(b byte) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.tx = append(m.tx, b)
	if len(m.replies) == 0 {
		return 0xFF, nil
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

// ReadBlock implements Transport. It serves the next queued block, or 0xFF
// filler when nothing is queued.
func (m *MockTransport) ReadBlock(buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if len(m.blockReads) == 0 {
		for i := range buf {
			buf[i] = 0xFF
		}
		return nil
	}
	copy(buf, m.blockReads[0])
	m.blockReads = m.blockReads[1:]
	return nil
}

// WriteBlock implements Transport.
func (m *MockTransport) WriteBlock(buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	b := make([]byte, len(buf))
	copy(b, buf)
	m.written = append(m.written, b)
	return nil
}

// Delay implements Transport. No time passes; the request is recorded.
func (m *MockTransport) Delay(d time.Duration) {
	m.mu.Lock()
	m.delays = append(m.delays, d)
	m.mu.Unlock()
}

// Test helper methods

// QueueReplies appends raw reply bytes for upcoming Transfer calls.
func (m *MockTransport) QueueReplies(b ...byte) {
	m.mu.Lock()
	m.replies = append(m.replies, b...)
	m.mu.Unlock()
}

// QueueStatus scripts the reply to one full command exchange: six don't-care
// bytes while the frame is clocked out, one dummy byte, then the status on
// the second probed byte.
func (m *MockTransport) QueueStatus(status byte) {
	m.QueueReplies(0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, status)
}

// QueueBlock appends a payload for an upcoming ReadBlock call.
func (m *MockTransport) QueueBlock(data []byte) {
	b := make([]byte, len(data))
	copy(b, data)
	m.mu.Lock()
	m.blockReads = append(m.blockReads, b)
	m.mu.Unlock()
}

// SetError makes every subsequent exchange fail with err.
func (m *MockTransport) SetError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// TxBytes returns a copy of every byte transmitted so far.
func (m *MockTransport) TxBytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := make([]byte, len(m.tx))
	copy(b, m.tx)
	return b
}

// WrittenBlocks returns the payloads passed to WriteBlock, in order.
func (m *MockTransport) WrittenBlocks() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.written))
	copy(out, m.written)
	return out
}

// Delays returns every Delay request, in order.
func (m *MockTransport) Delays() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.delays))
	copy(out, m.delays)
	return out
}

// SelectCount returns how many times the card was selected.
func (m *MockTransport) SelectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selects
}

// DeselectCount returns how many times the card was deselected.
func (m *MockTransport) DeselectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deselects
}

// Reset clears all scripted replies and recordings.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = nil
	m.tx = nil
	m.blockReads = nil
	m.written = nil
	m.delays = nil
	m.selects = 0
	m.deselects = 0
	m.err = nil
}
