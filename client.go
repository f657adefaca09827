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
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// Client runs request/reply exchanges with one module. The line is
// half-duplex, so a Client keeps at most one command outstanding; callers
// from several goroutines are queued on an internal lock.
type Client struct {
	mu        sync.Mutex
	codec     *Codec
	transport Transport
	logger    io.Writer
	metrics   *Metrics
}

// NewClient creates a Client. A nil codec is replaced by NewCodec().
func NewClient(transport Transport, codec *Codec) *Client {
	if codec == nil {
		codec = NewCodec()
	}
	return &Client{
		codec:     codec,
		transport: transport,
	}
}

// SetLogger sets the writer that receives leveled log lines.
func (c *Client) SetLogger(logger io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
}

// SetMetrics attaches Prometheus metrics. Nil disables recording.
func (c *Client) SetMetrics(m *Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// ModuleAddress returns the address commands are sent to.
func (c *Client) ModuleAddress() uint8 { return c.codec.ModuleAddress() }

// Exchange sends a prebuilt frame and waits for its reply.
func (c *Client) Exchange(ctx context.Context, frame Frame) (ReplyFrame, error) {
	return c.exchange(ctx, func(*Codec) Frame { return frame })
}

// exchange builds a frame under the client lock, so the codec's buffer is
// never shared, then sends it and decodes the reply. When ctx is done while
// the reply is still being read, the lock is held until that read returns.
func (c *Client) exchange(ctx context.Context, build func(*Codec) Frame) (ReplyFrame, error) {
	c.mu.Lock()
	if err := ctx.Err(); err != nil {
		c.mu.Unlock()
		return ReplyFrame{}, err
	}
	frame := build(c.codec)
	cmd := frame.Command()
	start := time.Now()

	logf(c.logger, LevelDebug, "tmcm: send %s", frame)
	if err := c.transport.Send(frame.Bytes()); err != nil {
		c.metrics.reply(resultTransport)
		c.mu.Unlock()
		return ReplyFrame{}, fmt.Errorf("send %s: %w", cmd, err)
	}
	c.metrics.sent(cmd)

	type result struct {
		buf []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		buf, err := c.receive()
		done <- result{buf, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		go func() {
			<-done
			c.mu.Unlock()
		}()
		c.metrics.reply(resultTransport)
		return ReplyFrame{}, ctx.Err()
	}
	defer c.mu.Unlock()

	if res.err != nil {
		c.metrics.reply(resultTransport)
		logf(c.logger, LevelError, "tmcm: receive reply to %s: %v", cmd, res.err)
		return ReplyFrame{}, fmt.Errorf("receive reply to %s: %w", cmd, res.err)
	}
	reply, err := DecodeFrame(res.buf)
	if err != nil {
		if errors.Is(err, ErrChecksumMismatch) {
			c.metrics.reply(resultChecksum)
		} else {
			c.metrics.reply(resultFrameLength)
		}
		logf(c.logger, LevelWarning, "tmcm: discard reply to %s [% X]: %v", cmd, res.buf, err)
		return ReplyFrame{}, err
	}
	c.metrics.observe(cmd, start)
	logf(c.logger, LevelDebug, "tmcm: %s", reply)

	if reply.Command != cmd {
		c.metrics.reply(resultMismatch)
		return reply, fmt.Errorf("%w: sent %s, reply echoes %s", ErrUnexpectedReply, cmd, reply.Command)
	}
	if !reply.OK() {
		c.metrics.reply(resultStatus)
		return reply, &StatusError{Command: cmd, Status: reply.Status}
	}
	c.metrics.reply(resultOK)
	return reply, nil
}

func (c *Client) receive() ([]byte, error) {
	if fr, ok := c.transport.(FrameReader); ok {
		return fr.ReadFrame()
	}
	return c.transport.Receive(FrameSize)
}

// RotateRight spins the motor clockwise at velocity.
func (c *Client) RotateRight(ctx context.Context, velocity int32) (ReplyFrame, error) {
	return c.exchange(ctx, func(cd *Codec) Frame { return cd.RotateRight(velocity) })
}

// RotateLeft spins the motor counter-clockwise at velocity.
func (c *Client) RotateLeft(ctx context.Context, velocity int32) (ReplyFrame, error) {
	return c.exchange(ctx, func(cd *Codec) Frame { return cd.RotateLeft(velocity) })
}

// Stop halts the motor.
func (c *Client) Stop(ctx context.Context) (ReplyFrame, error) {
	return c.exchange(ctx, (*Codec).Stop)
}

// MoveAbsolute moves to position.
func (c *Client) MoveAbsolute(ctx context.Context, position int32) (ReplyFrame, error) {
	return c.exchange(ctx, func(cd *Codec) Frame { return cd.MoveAbsolute(position) })
}

// MoveRelative moves by offset.
func (c *Client) MoveRelative(ctx context.Context, offset int32) (ReplyFrame, error) {
	return c.exchange(ctx, func(cd *Codec) Frame { return cd.MoveRelative(offset) })
}

// SetAxisParameter writes an axis parameter.
func (c *Client) SetAxisParameter(ctx context.Context, param Parameter, value int32) error {
	_, err := c.exchange(ctx, func(cd *Codec) Frame { return cd.SetAxisParameter(param, value) })
	return err
}

// GetAxisParameter reads an axis parameter.
func (c *Client) GetAxisParameter(ctx context.Context, param Parameter) (int32, error) {
	reply, err := c.exchange(ctx, func(cd *Codec) Frame { return cd.GetAxisParameter(param) })
	if err != nil {
		return 0, err
	}
	return reply.Value, nil
}

// SaveAxisParameter stores an axis parameter in EEPROM.
func (c *Client) SaveAxisParameter(ctx context.Context, param Parameter) error {
	_, err := c.exchange(ctx, func(cd *Codec) Frame { return cd.SaveAxisParameter(param) })
	return err
}

// LoadAxisParameter restores an axis parameter from EEPROM.
func (c *Client) LoadAxisParameter(ctx context.Context, param Parameter) error {
	_, err := c.exchange(ctx, func(cd *Codec) Frame { return cd.LoadAxisParameter(param) })
	return err
}

// SetGlobalParameter writes a global parameter in bank.
func (c *Client) SetGlobalParameter(ctx context.Context, param Parameter, bank uint8, value int32) error {
	_, err := c.exchange(ctx, func(cd *Codec) Frame { return cd.SetGlobalParameter(param, bank, value) })
	return err
}

// GetGlobalParameter reads a global parameter from bank.
func (c *Client) GetGlobalParameter(ctx context.Context, param Parameter, bank uint8) (int32, error) {
	reply, err := c.exchange(ctx, func(cd *Codec) Frame { return cd.GetGlobalParameter(param, bank) })
	if err != nil {
		return 0, err
	}
	return reply.Value, nil
}

// SaveGlobalParameter stores a global parameter in EEPROM.
func (c *Client) SaveGlobalParameter(ctx context.Context, param Parameter, bank uint8) error {
	_, err := c.exchange(ctx, func(cd *Codec) Frame { return cd.SaveGlobalParameter(param, bank) })
	return err
}

// LoadGlobalParameter restores a global parameter from EEPROM.
func (c *Client) LoadGlobalParameter(ctx context.Context, param Parameter, bank uint8) error {
	_, err := c.exchange(ctx, func(cd *Codec) Frame { return cd.LoadGlobalParameter(param, bank) })
	return err
}

// Close closes the transport if it can be closed. It does not wait for an
// exchange in progress; a pending read fails once the transport is closed.
func (c *Client) Close() error {
	if closer, ok := c.transport.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
