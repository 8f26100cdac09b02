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
	"time"

	"github.com/charmbracelet/log"
)

// Config bounds every wait and retry loop in the driver. The SD protocol has
// no timeouts of its own in SPI mode; these budgets are what turn a silent
// card into a reportable stall instead of an indefinite hang.
type Config struct {
	// InitAttempts is the number of APP_CMD+ACMD41 rounds before Init
	// gives up with ErrInitTimeout.
	InitAttempts int

	// InitDelay is the pause after each ACMD41 round.
	InitDelay time.Duration

	// TokenAttempts is the number of filler exchanges to wait for a data
	// token before ErrTokenTimeout.
	TokenAttempts int

	// BusyAttempts is the number of filler exchanges to wait for the card
	// to release the data line before ErrCardBusy.
	BusyAttempts int

	// WriteRetryAttempts is the number of times the multi-block write
	// command is reissued while the card refuses it.
	WriteRetryAttempts int

	// WriteRetryDelay is the pause between write command attempts.
	WriteRetryDelay time.Duration

	// StrictInterfaceCheck makes Init fail with ErrIncompatibleCard when
	// the SEND_IF_COND echo disagrees with what was sent, instead of
	// logging and continuing.
	StrictInterfaceCheck bool
}

// DefaultConfig returns the budgets used on real hardware. The token and
// busy budgets are generous because cards stall for thousands of byte times
// during internal programming.
func DefaultConfig() *Config {
	return &Config{
		InitAttempts:       10,
		InitDelay:          20 * time.Millisecond,
		TokenAttempts:      65536,
		BusyAttempts:       65536,
		WriteRetryAttempts: 10,
		WriteRetryDelay:    5 * time.Millisecond,
	}
}

func (c *Config) validate() error {
	if c.InitAttempts < 1 {
		return fmt.Errorf("init attempts must be at least 1, got %d", c.InitAttempts)
	}
	if c.TokenAttempts < 1 {
		return fmt.Errorf("token attempts must be at least 1, got %d", c.TokenAttempts)
	}
	if c.BusyAttempts < 1 {
		return fmt.Errorf("busy attempts must be at least 1, got %d", c.BusyAttempts)
	}
	if c.WriteRetryAttempts < 1 {
		return fmt.Errorf("write retry attempts must be at least 1, got %d", c.WriteRetryAttempts)
	}
	return nil
}

// Option configures a Card at construction time.
type Option func(*Card) error

// WithConfig replaces the default wait and retry budgets.
func WithConfig(config *Config) Option {
	return func(c *Card) error {
		if config == nil {
			return fmt.Errorf("config must not be nil")
		}
		if err := config.validate(); err != nil {
			return err
		}
		c.config = config
		return nil
	}
}

// WithLogger sets the diagnostic sink. The driver logs protocol deviations
// and state transitions through it; logging never influences control flow.
func WithLogger(logger *log.Logger) Option {
	return func(c *Card) error {
		if logger == nil {
			return fmt.Errorf("logger must not be nil")
		}
		c.log = logger
		return nil
	}
}

// WithStrictInterfaceCheck rejects cards whose SEND_IF_COND echo does not
// match the sent voltage window and check pattern.
func WithStrictInterfaceCheck() Option {
	return func(c *Card) error {
		c.config.StrictInterfaceCheck = true
		return nil
	}
}
