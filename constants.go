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
	"strconv"
	"strings"
)

// FrameSize is the fixed length of every TMCL command and reply frame.
const FrameSize = 9

// Frame byte offsets
const (
	offsetAddress  = 0
	offsetCommand  = 1
	offsetType     = 2
	offsetMotor    = 3
	offsetValue    = 4
	offsetChecksum = 8
)

// Command is a TMCL instruction number. Values are wire constants.
type Command uint8

const (
	CmdROR   Command = 1  // Rotate right
	CmdROL   Command = 2  // Rotate left
	CmdMST   Command = 3  // Motor stop
	CmdMVP   Command = 4  // Move to position
	CmdSAP   Command = 5  // Set axis parameter
	CmdGAP   Command = 6  // Get axis parameter
	CmdSTAP  Command = 7  // Store axis parameter to EEPROM
	CmdRSAP  Command = 8  // Restore axis parameter from EEPROM
	CmdSGP   Command = 9  // Set global parameter
	CmdGGP   Command = 10 // Get global parameter
	CmdSTGP  Command = 11 // Store global parameter to EEPROM
	CmdRSGP  Command = 12 // Restore global parameter from EEPROM
	CmdSIO   Command = 14 // Set output
	CmdGIO   Command = 15 // Get input/output
	CmdCALC  Command = 19 // Arithmetic on accumulator
	CmdCOMP  Command = 20 // Compare accumulator
	CmdJC    Command = 21 // Jump conditional
	CmdJA    Command = 22 // Jump absolute
	CmdCSUB  Command = 23 // Call subroutine
	CmdRSUB  Command = 24 // Return from subroutine
	CmdWAIT  Command = 27 // Wait for event
	CmdSTOP  Command = 28 // Stop TMCL program
	CmdCALCX Command = 33 // Arithmetic accumulator <-> X register
	CmdAAP   Command = 34 // Accumulator to axis parameter
	CmdAGP   Command = 35 // Accumulator to global parameter
)

var commandNames = map[Command]string{
	CmdROR: "ROR", CmdROL: "ROL", CmdMST: "MST", CmdMVP: "MVP",
	CmdSAP: "SAP", CmdGAP: "GAP", CmdSTAP: "STAP", CmdRSAP: "RSAP",
	CmdSGP: "SGP", CmdGGP: "GGP", CmdSTGP: "STGP", CmdRSGP: "RSGP",
	CmdSIO: "SIO", CmdGIO: "GIO", CmdCALC: "CALC", CmdCOMP: "COMP",
	CmdJC: "JC", CmdJA: "JA", CmdCSUB: "CSUB", CmdRSUB: "RSUB",
	CmdWAIT: "WAIT", CmdSTOP: "STOP", CmdCALCX: "CALCX", CmdAAP: "AAP",
	CmdAGP: "AGP",
}

// String returns the TMCL mnemonic, or the number for opcodes outside the table.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CMD(%d)", uint8(c))
}

// ParseCommand accepts a mnemonic in any case or a decimal opcode.
func ParseCommand(s string) (Command, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for cmd, name := range commandNames {
		if name == upper {
			return cmd, nil
		}
	}
	n, err := strconv.ParseUint(upper, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown command %q", s)
	}
	return Command(n), nil
}

// Type selectors for MVP.
const (
	MoveAbsolute uint8 = 0
	MoveRelative uint8 = 1
)

// Reply status codes.
const (
	StatusSuccess         uint8 = 100
	StatusLoadedToEEPROM  uint8 = 101
	StatusWrongChecksum   uint8 = 1
	StatusInvalidCommand  uint8 = 2
	StatusWrongType       uint8 = 3
	StatusInvalidValue    uint8 = 4
	StatusEEPROMLocked    uint8 = 5
	StatusCommandNotAvail uint8 = 6
)

// StatusOK reports whether a reply status signals successful execution.
func StatusOK(status uint8) bool {
	return status == StatusSuccess || status == StatusLoadedToEEPROM
}

// getStatusMessage returns a human-readable message for a reply status code.
func getStatusMessage(status uint8) string {
	switch status {
	case StatusSuccess:
		return "Successfully executed"
	case StatusLoadedToEEPROM:
		return "Command loaded into EEPROM"
	case StatusWrongChecksum:
		return "Wrong checksum"
	case StatusInvalidCommand:
		return "Invalid command"
	case StatusWrongType:
		return "Wrong type"
	case StatusInvalidValue:
		return "Invalid value"
	case StatusEEPROMLocked:
		return "Configuration EEPROM locked"
	case StatusCommandNotAvail:
		return "Command not available"
	default:
		return "Unknown status code"
	}
}
