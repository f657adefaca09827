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
	"strings"
	"testing"
)

func TestFrame_String(t *testing.T) {
	f := NewCodec().MoveAbsolute(-1)
	s := f.String()
	if !strings.HasPrefix(s, "MVP addr=0 type=0 motor=0 value=-1") {
		t.Errorf("String() = %q", s)
	}
	if Command(99).String() != "CMD(99)" {
		t.Errorf("unknown command String() = %q", Command(99).String())
	}
}

func TestReplyFrame_OK(t *testing.T) {
	for status, ok := range map[uint8]bool{100: true, 101: true, 1: false, 6: false, 0: false} {
		if (ReplyFrame{Status: status}).OK() != ok {
			t.Errorf("status %d OK() != %v", status, ok)
		}
	}
}

func TestDumpFrame(t *testing.T) {
	cmd := NewCodec().RotateRight(100)
	dump := DumpFrame(cmd[:], "command")
	for _, want := range []string{"Command: ROR (1)", "Value: 100", "Checksum Calculated: 0x65", "Checksum Valid: true"} {
		if !strings.Contains(dump, want) {
			t.Errorf("command dump missing %q:\n%s", want, dump)
		}
	}

	reply := []byte{2, 1, 4, 5, 0, 0, 0, 0, 0}
	dump = DumpFrame(reply, "reply")
	for _, want := range []string{"Status: 4 (Invalid value)", "Command: SAP (5)", "Checksum Valid: false"} {
		if !strings.Contains(dump, want) {
			t.Errorf("reply dump missing %q:\n%s", want, dump)
		}
	}

	if !strings.Contains(DumpFrame([]byte{1, 2}, "reply"), "Invalid: expected 9 bytes") {
		t.Error("short frame dump should flag the length")
	}
	if DumpFrame(nil, "command") != "Empty frame" {
		t.Error("empty frame dump")
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in      string
		want    Command
		wantErr bool
	}{
		{"ROR", CmdROR, false},
		{"gap", CmdGAP, false},
		{" stgp ", CmdSTGP, false},
		{"6", CmdGAP, false},
		{"200", Command(200), false},
		{"256", 0, true},
		{"JUMP", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseCommand(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseCommand(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseCommand(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}
