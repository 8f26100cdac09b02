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

// sdtool is a diagnostic CLI for SD cards attached over SPI. It initializes
// the card and performs raw sector reads, writes and erases, bypassing any
// filesystem.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	sdspi "github.com/mksdev/go-sdspi"
	"github.com/mksdev/go-sdspi/transport/spi"
)

var (
	port  string
	cs    string
	debug bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sdtool",
		Short: "raw sector access to SD cards over SPI",
		Long:  "sdtool initializes an SD card in SPI mode and reads, writes or erases raw sectors.",
	}

	rootCmd.PersistentFlags().StringVar(&port, "port", "/dev/spidev0.0", "SPI port registry name")
	rootCmd.PersistentFlags().StringVar(&cs, "cs", "GPIO8", "chip-select GPIO registry name")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(infoCmd())
	rootCmd.AddCommand(readCmd())
	rootCmd.AddCommand(writeCmd())
	rootCmd.AddCommand(eraseCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error("unexpected error", "error", err)
		os.Exit(1)
	}
}

// connect opens the transport and brings the card up.
func connect() (*sdspi.Session, *spi.Transport, error) {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "sd",
	})
	if debug {
		logger.SetLevel(log.DebugLevel)
	}

	transport, err := spi.New(port, cs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open transport: %w", err)
	}

	card, err := sdspi.New(transport, sdspi.WithLogger(logger))
	if err != nil {
		_ = transport.Close()
		return nil, nil, err
	}
	session, err := card.Init()
	if err != nil {
		_ = transport.Close()
		return nil, nil, fmt.Errorf("card initialization failed: %w", err)
	}
	return session, transport, nil
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "print card identification and capacity",
		RunE: func(_ *cobra.Command, _ []string) error {
			session, transport, err := connect()
			if err != nil {
				return err
			}
			defer transport.Close()

			cid, err := session.CID()
			if err != nil {
				return fmt.Errorf("failed to read CID: %w", err)
			}
			csd, err := session.CSD()
			if err != nil {
				return fmt.Errorf("failed to read CSD: %w", err)
			}

			year, month := cid.ManufactureDate()
			fmt.Printf("manufacturer:  0x%02X (%s)\n", cid.ManufacturerID(), cid.OEMID())
			fmt.Printf("product:       %s rev %s\n", cid.ProductName(), cid.Revision())
			fmt.Printf("serial:        %08X\n", cid.Serial())
			fmt.Printf("manufactured:  %04d-%02d\n", year, month)
			fmt.Printf("csd version:   %d\n", csd.Version())
			fmt.Printf("capacity:      %d sectors (%.2f GiB)\n",
				csd.Sectors(), float64(csd.Sectors())*sdspi.SectorSize/(1<<30))
			fmt.Printf("addressing:    %s\n", addressing(session))
			return nil
		},
	}
}

func addressing(s *sdspi.Session) string {
	if s.HighCapacity() {
		return "block (SDHC/SDXC)"
	}
	return "byte (SDSC)"
}

func readCmd() *cobra.Command {
	var sector uint32
	var count int

	cmd := &cobra.Command{
		Use:   "read",
		Short: "hex dump sectors to stdout",
		RunE: func(_ *cobra.Command, _ []string) error {
			session, transport, err := connect()
			if err != nil {
				return err
			}
			defer transport.Close()

			buf := make([]byte, count*sdspi.SectorSize)
			if err := session.ReadSectors(buf, sector, count); err != nil {
				return fmt.Errorf("failed to read sectors: %w", err)
			}

			dumper := hex.Dumper(os.Stdout)
			defer dumper.Close()
			_, err = dumper.Write(buf)
			return err
		},
	}
	cmd.Flags().Uint32Var(&sector, "sector", 0, "first sector to read")
	cmd.Flags().IntVar(&count, "count", 1, "number of sectors")
	return cmd
}

func writeCmd() *cobra.Command {
	var sector uint32
	var file string

	cmd := &cobra.Command{
		Use:   "write",
		Short: "write a file's content to sectors, zero padded",
		RunE: func(_ *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read input file: %w", err)
			}
			count := (len(data) + sdspi.SectorSize - 1) / sdspi.SectorSize
			buf := make([]byte, count*sdspi.SectorSize)
			copy(buf, data)

			session, transport, err := connect()
			if err != nil {
				return err
			}
			defer transport.Close()

			if err := session.WriteSectors(buf, sector, count); err != nil {
				return fmt.Errorf("failed to write sectors: %w", err)
			}
			fmt.Printf("wrote %d sectors at %d\n", count, sector)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&sector, "sector", 0, "first sector to write")
	cmd.Flags().StringVar(&file, "file", "", "input file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func eraseCmd() *cobra.Command {
	var start, end uint32

	cmd := &cobra.Command{
		Use:   "erase",
		Short: "erase a sector range, both ends inclusive",
		RunE: func(_ *cobra.Command, _ []string) error {
			session, transport, err := connect()
			if err != nil {
				return err
			}
			defer transport.Close()

			if err := session.Erase(start, end); err != nil {
				return fmt.Errorf("failed to erase: %w", err)
			}
			fmt.Printf("erased sectors %d-%d\n", start, end)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&start, "start", 0, "first sector")
	cmd.Flags().Uint32Var(&end, "end", 0, "last sector")
	return cmd
}
