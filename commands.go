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

// SD command indices (SPI-mode subset, SD Physical Layer Specification)
const (
	cmdGoIdleState        = 0  // GO_IDLE_STATE: reset the card into idle state
	cmdSendIfCond         = 8  // SEND_IF_COND: voltage range / check pattern handshake
	cmdSendCSD            = 9  // SEND_CSD: card-specific data register
	cmdSendCID            = 10 // SEND_CID: card identification register
	cmdStopTransmission   = 12 // STOP_TRANSMISSION: end a multi-block read
	cmdReadSingleBlock    = 17 // READ_SINGLE_BLOCK
	cmdReadMultipleBlock  = 18 // READ_MULTIPLE_BLOCK
	cmdWriteBlock         = 24 // WRITE_BLOCK
	cmdWriteMultipleBlock = 25 // WRITE_MULTIPLE_BLOCK
	cmdEraseWrBlkStart    = 32 // ERASE_WR_BLK_START_ADDR
	cmdEraseWrBlkEnd      = 33 // ERASE_WR_BLK_END_ADDR
	cmdErase              = 38 // ERASE
	cmdAppCmd             = 55 // APP_CMD: next command is application specific
	cmdReadOCR            = 58 // READ_OCR

	// Application-specific commands, issued after APP_CMD
	acmdSendOpCond = 41 // ACMD41 SEND_OP_COND: start initialization, send host capacity
)

// Data tokens separating command traffic from block payloads
const (
	tokenData       = 0xFE // single-block read/write and multi-block read
	tokenWriteMulti = 0xFC // leads every block of a multi-block write
	tokenStopTran   = 0xFD // terminates a multi-block write
)

// SEND_IF_COND argument layout
const (
	ifCondVoltage = 1 << 8 // host supplies 2.7-3.6 V
	ifCondPattern = 0xAA   // check pattern echoed back by the card
)

// ACMD41 argument layout
const (
	acmd41HCS = 1 << 30 // host capacity support: host can handle SDHC
)

// SectorSize is the only block length the driver supports. Cards default to
// it and SDHC cards cannot use anything else.
const SectorSize = 512
