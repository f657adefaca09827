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
	"net"
	"sync"
	"time"
)

// Transport is the byte pipe a Client talks through.
type Transport interface {
	Send(frame []byte) error
	Receive(maxLen int) ([]byte, error)
}

// FrameReader is implemented by transports that can assemble a complete
// fixed-size frame out of several short reads.
type FrameReader interface {
	ReadFrame() ([]byte, error)
}

// StreamTransport moves frames over a serial port, a TCP serial bridge or
// any other io.ReadWriteCloser. Close does not wait for a pending read; it
// closes the connection under it so the read fails.
type StreamTransport struct {
	conn         io.ReadWriteCloser
	readTimeout  time.Duration
	writeTimeout time.Duration
	mu           sync.RWMutex // guards conn and the timeouts
	ioMu         sync.Mutex   // one read or write at a time
}

// NewStreamTransport creates a StreamTransport. A zero readTimeout makes
// ReadFrame wait until the frame is complete or the connection fails.
func NewStreamTransport(conn io.ReadWriteCloser, readTimeout, writeTimeout time.Duration) *StreamTransport {
	return &StreamTransport{
		conn:         conn,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

func (t *StreamTransport) state() (io.ReadWriteCloser, time.Duration, time.Duration) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conn, t.readTimeout, t.writeTimeout
}

// WriteRaw writes all bytes to the underlying connection.
func (t *StreamTransport) WriteRaw(data []byte) error {
	t.ioMu.Lock()
	defer t.ioMu.Unlock()
	conn, _, writeTimeout := t.state()
	if conn == nil {
		return ErrClosed
	}
	if len(data) == 0 {
		return fmt.Errorf("cannot write empty data")
	}
	if c, ok := conn.(net.Conn); ok && writeTimeout > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
		defer c.SetWriteDeadline(time.Time{})
	}
	written := 0
	for written < len(data) {
		n, err := conn.Write(data[written:])
		written += n
		if err != nil {
			return fmt.Errorf("write failed after %d bytes: %w", written, err)
		}
		if n == 0 {
			return fmt.Errorf("partial write: expected %d bytes, wrote %d", len(data), written)
		}
	}
	return nil
}

// ReadRaw performs a single read of up to maxLen bytes.
func (t *StreamTransport) ReadRaw(maxLen int) ([]byte, error) {
	t.ioMu.Lock()
	defer t.ioMu.Unlock()
	conn, readTimeout, _ := t.state()
	if conn == nil {
		return nil, ErrClosed
	}
	if maxLen <= 0 {
		maxLen = FrameSize
	}
	buf := make([]byte, maxLen)
	if c, ok := conn.(net.Conn); ok && readTimeout > 0 {
		_ = c.SetReadDeadline(time.Now().Add(readTimeout))
		defer c.SetReadDeadline(time.Time{})
	}
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("no data read")
	}
	return buf[:n], nil
}

// ReadFrame reads until exactly FrameSize bytes have arrived. Serial ports
// configured for a read timeout return whatever came in so far, so short
// reads are accumulated until the read timeout elapses.
func (t *StreamTransport) ReadFrame() ([]byte, error) {
	t.ioMu.Lock()
	defer t.ioMu.Unlock()
	conn, readTimeout, _ := t.state()
	if conn == nil {
		return nil, ErrClosed
	}
	var deadline time.Time
	if readTimeout > 0 {
		deadline = time.Now().Add(readTimeout)
	}
	if c, ok := conn.(net.Conn); ok && !deadline.IsZero() {
		_ = c.SetReadDeadline(deadline)
		defer c.SetReadDeadline(time.Time{})
	}

	frame := make([]byte, FrameSize)
	got := 0
	for got < FrameSize {
		n, err := conn.Read(frame[got:])
		got += n
		if err != nil {
			if err == io.EOF && got == FrameSize {
				break
			}
			return nil, fmt.Errorf("read failed after %d of %d bytes: %w", got, FrameSize, err)
		}
		if got < FrameSize && !deadline.IsZero() && time.Now().After(deadline) {
			return nil, fmt.Errorf("frame timeout after %v: got %d of %d bytes", readTimeout, got, FrameSize)
		}
	}
	return frame, nil
}

// Send writes one frame.
func (t *StreamTransport) Send(frame []byte) error {
	return t.WriteRaw(frame)
}

// Receive performs a single read of up to maxLen bytes.
func (t *StreamTransport) Receive(maxLen int) ([]byte, error) {
	return t.ReadRaw(maxLen)
}

// Close closes the underlying connection. A read blocked on it returns an
// error; later calls return ErrClosed.
func (t *StreamTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// IsConnected returns true if the connection is still open.
func (t *StreamTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conn != nil
}

// SetReadTimeout sets the read timeout for the transport.
func (t *StreamTransport) SetReadTimeout(timeout time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readTimeout = timeout
}

// SetWriteTimeout sets the write timeout for the transport.
func (t *StreamTransport) SetWriteTimeout(timeout time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeTimeout = timeout
}
