// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package tmcm

import (
	"fmt"
	"io"
	"time"

	serial "github.com/hootrhino/goserial"
)

// SerialConfig holds the line settings for a TMCM module.
type SerialConfig struct {
	Address  string        // Device path, e.g. /dev/ttyACM0 or COM3
	BaudRate int           // Bits per second
	DataBits int           // 5, 6, 7 or 8
	StopBits int           // 1 or 2
	Parity   string        // "N", "E" or "O"
	Timeout  time.Duration // Read timeout; returns early once bytes arrive
}

// DefaultSerialConfig returns the factory line settings: 9600 baud, 8N1,
// one second read timeout.
func DefaultSerialConfig(address string) SerialConfig {
	return SerialConfig{
		Address:  address,
		BaudRate: 9600,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  1 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultSerialConfig.
func (c SerialConfig) withDefaults() SerialConfig {
	d := DefaultSerialConfig(c.Address)
	if c.BaudRate == 0 {
		c.BaudRate = d.BaudRate
	}
	if c.DataBits == 0 {
		c.DataBits = d.DataBits
	}
	if c.StopBits == 0 {
		c.StopBits = d.StopBits
	}
	if c.Parity == "" {
		c.Parity = d.Parity
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// Validate checks the settings before the port is opened.
func (c SerialConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("serial address cannot be empty")
	}
	switch c.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("invalid parity: %q", c.Parity)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return fmt.Errorf("invalid data bits: %d", c.DataBits)
	}
	if c.StopBits != 1 && c.StopBits != 2 {
		return fmt.Errorf("invalid stop bits: %d", c.StopBits)
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate: %d", c.BaudRate)
	}
	return nil
}

// OpenSerial opens a raw serial port. Zero fields take the defaults.
func OpenSerial(config SerialConfig) (io.ReadWriteCloser, error) {
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	port, err := serial.Open(&serial.Config{
		Address:  config.Address,
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
		StopBits: config.StopBits,
		Parity:   config.Parity,
		Timeout:  config.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", config.Address, err)
	}
	return port, nil
}

// NewSerialTransport opens a serial port and wraps it in a StreamTransport
// whose frame timeout equals the port's read timeout.
func NewSerialTransport(config SerialConfig) (*StreamTransport, error) {
	config = config.withDefaults()
	port, err := OpenSerial(config)
	if err != nil {
		return nil, err
	}
	return NewStreamTransport(port, config.Timeout, config.Timeout), nil
}
