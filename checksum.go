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

// Checksum returns the TMCL frame checksum: the 8-bit wrapping sum of the
// first eight bytes, module address included once. frame must hold at least
// eight bytes; anything past the eighth byte is ignored.
func Checksum(frame []byte) byte {
	var sum byte
	for _, b := range frame[:offsetChecksum] {
		sum += b
	}
	return sum
}

// VerifyChecksum reports whether the trailing byte of a full frame matches
// the checksum of the bytes before it.
func VerifyChecksum(frame []byte) bool {
	if len(frame) != FrameSize {
		return false
	}
	return Checksum(frame) == frame[offsetChecksum]
}
