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
	"errors"
	"fmt"
)

var (
	// ErrChecksumMismatch is matched by every *ChecksumError.
	ErrChecksumMismatch = errors.New("tmcm: checksum mismatch")
	// ErrInvalidFrameLength is returned when a buffer handed to the decoder
	// is not exactly FrameSize bytes long. It is a caller bug.
	ErrInvalidFrameLength = errors.New("tmcm: invalid frame length")
	// ErrUnexpectedReply is returned when a reply echoes a different command
	// than the one that was sent.
	ErrUnexpectedReply = errors.New("tmcm: unexpected reply")
	// ErrClosed is returned by transports and clients used after Close.
	ErrClosed = errors.New("tmcm: transport closed")
)

// ChecksumError describes a received frame that failed the integrity check.
type ChecksumError struct {
	Calculated byte
	Received   byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("tmcm: checksum mismatch: calculated=0x%02X, received=0x%02X", e.Calculated, e.Received)
}

// Is lets errors.Is(err, ErrChecksumMismatch) match.
func (e *ChecksumError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

// StatusError is returned by the Client when a module answers with a
// non-success status.
type StatusError struct {
	Command Command
	Status  uint8
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tmcm: %s failed: %s (%d)", e.Command, getStatusMessage(e.Status), e.Status)
}

// IsStatusError returns true if err is or wraps a *StatusError.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}
