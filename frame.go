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
	"encoding/binary"
	"fmt"
	"strings"
)

// Frame is one 9-byte TMCL command as it goes on the wire.
type Frame [FrameSize]byte

// Address returns the target module address.
func (f Frame) Address() uint8 { return f[offsetAddress] }

// Command returns the instruction number.
func (f Frame) Command() Command { return Command(f[offsetCommand]) }

// Type returns the type/bank selector.
func (f Frame) Type() uint8 { return f[offsetType] }

// Motor returns the motor/bank index.
func (f Frame) Motor() uint8 { return f[offsetMotor] }

// Value returns the signed 32-bit argument.
func (f Frame) Value() int32 {
	return int32(binary.BigEndian.Uint32(f[offsetValue:offsetChecksum]))
}

// Checksum returns the checksum byte carried by the frame.
func (f Frame) Checksum() byte { return f[offsetChecksum] }

// Bytes returns a copy of the frame as a slice, ready for a transport.
func (f Frame) Bytes() []byte {
	b := make([]byte, FrameSize)
	copy(b, f[:])
	return b
}

func (f Frame) String() string {
	return fmt.Sprintf("%s addr=%d type=%d motor=%d value=%d [% X]",
		f.Command(), f.Address(), f.Type(), f.Motor(), f.Value(), f[:])
}

// ReplyFrame is a decoded, checksum-verified reply from a module.
type ReplyFrame struct {
	ReceiverAddress uint8
	ModuleAddress   uint8
	Status          uint8
	Command         Command
	Value           int32
}

// OK reports whether the module accepted the command.
func (r ReplyFrame) OK() bool { return StatusOK(r.Status) }

func (r ReplyFrame) String() string {
	return fmt.Sprintf("reply from %d to %d: %s status=%d (%s) value=%d",
		r.ModuleAddress, r.ReceiverAddress, r.Command, r.Status, getStatusMessage(r.Status), r.Value)
}

// DumpFrame returns an annotated hex dump of a raw frame. role selects the
// field names: "command" for outbound frames, anything else for replies.
func DumpFrame(frame []byte, role string) string {
	if len(frame) == 0 {
		return "Empty frame"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Frame Length: %d bytes\n", len(frame))
	fmt.Fprintf(&b, "Hex: % X\n", frame)
	if len(frame) != FrameSize {
		fmt.Fprintf(&b, "Invalid: expected %d bytes\n", FrameSize)
		return b.String()
	}
	if role == "command" {
		fmt.Fprintf(&b, "Module Address: %d\n", frame[offsetAddress])
		fmt.Fprintf(&b, "Command: %s (%d)\n", Command(frame[offsetCommand]), frame[offsetCommand])
		fmt.Fprintf(&b, "Type: %d\n", frame[offsetType])
		fmt.Fprintf(&b, "Motor/Bank: %d\n", frame[offsetMotor])
	} else {
		fmt.Fprintf(&b, "Receiver Address: %d\n", frame[offsetAddress])
		fmt.Fprintf(&b, "Module Address: %d\n", frame[offsetCommand])
		fmt.Fprintf(&b, "Status: %d (%s)\n", frame[offsetType], getStatusMessage(frame[offsetType]))
		fmt.Fprintf(&b, "Command: %s (%d)\n", Command(frame[offsetMotor]), frame[offsetMotor])
	}
	fmt.Fprintf(&b, "Value: %d\n", int32(binary.BigEndian.Uint32(frame[offsetValue:offsetChecksum])))
	calculated := Checksum(frame)
	fmt.Fprintf(&b, "Checksum Calculated: 0x%02X\n", calculated)
	fmt.Fprintf(&b, "Checksum Received: 0x%02X\n", frame[offsetChecksum])
	fmt.Fprintf(&b, "Checksum Valid: %t\n", calculated == frame[offsetChecksum])
	return b.String()
}
