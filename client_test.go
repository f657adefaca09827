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
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeReply(receiver, module, status uint8, cmd Command, value int32) []byte {
	f := NewCodec().BuildFrame(receiver, module, status, uint8(cmd), value)
	return f.Bytes()
}

// fakeModule answers every command through respond, one reply per Send.
type fakeModule struct {
	mu      sync.Mutex
	sent    []Frame
	pending [][]byte
	respond func(Frame) []byte
}

func (m *fakeModule) Send(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var f Frame
	copy(f[:], frame)
	m.sent = append(m.sent, f)
	if m.respond != nil {
		m.pending = append(m.pending, m.respond(f))
	}
	return nil
}

func (m *fakeModule) Receive(maxLen int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return nil, fmt.Errorf("no data read")
	}
	reply := m.pending[0]
	m.pending = m.pending[1:]
	return reply, nil
}

// echoModule replies with status 100 and a value derived from the request.
func echoModule(values map[Parameter]int32) *fakeModule {
	return &fakeModule{respond: func(f Frame) []byte {
		value := f.Value()
		if f.Command() == CmdGAP || f.Command() == CmdGGP {
			value = values[Parameter(f.Type())]
		}
		return makeReply(2, 1, StatusSuccess, f.Command(), value)
	}}
}

func TestClient_Commands(t *testing.T) {
	module := echoModule(map[Parameter]int32{ParamActualPosition: -4200, ParamGlobalSerialAddress: 1})
	client := NewClient(module, nil)
	ctx := context.Background()

	reply, err := client.RotateRight(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, ReplyFrame{ReceiverAddress: 2, ModuleAddress: 1, Status: 100, Command: CmdROR, Value: 100}, reply)

	_, err = client.RotateLeft(ctx, 50)
	require.NoError(t, err)
	_, err = client.MoveAbsolute(ctx, 1000)
	require.NoError(t, err)
	_, err = client.MoveRelative(ctx, -10)
	require.NoError(t, err)
	_, err = client.Stop(ctx)
	require.NoError(t, err)

	require.NoError(t, client.SetAxisParameter(ctx, ParamMaxCurrent, 1500))
	pos, err := client.GetAxisParameter(ctx, ParamActualPosition)
	require.NoError(t, err)
	assert.Equal(t, int32(-4200), pos)
	require.NoError(t, client.SaveAxisParameter(ctx, ParamMaxCurrent))
	require.NoError(t, client.LoadAxisParameter(ctx, ParamMaxCurrent))

	require.NoError(t, client.SetGlobalParameter(ctx, ParamGlobalSerialAddress, 0, 1))
	addr, err := client.GetGlobalParameter(ctx, ParamGlobalSerialAddress, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), addr)
	require.NoError(t, client.SaveGlobalParameter(ctx, ParamGlobalSerialAddress, 0))
	require.NoError(t, client.LoadGlobalParameter(ctx, ParamGlobalSerialAddress, 0))

	var cmds []Command
	for _, f := range module.sent {
		cmds = append(cmds, f.Command())
		assert.True(t, VerifyChecksum(f[:]), "bad checksum on %s", f)
	}
	assert.Equal(t, []Command{
		CmdROR, CmdROL, CmdMVP, CmdMVP, CmdMST,
		CmdSAP, CmdGAP, CmdSTAP, CmdRSAP,
		CmdSGP, CmdGGP, CmdSTGP, CmdRSGP,
	}, cmds)
	assert.Equal(t, MoveRelative, module.sent[3].Type())
}

func TestClient_StatusError(t *testing.T) {
	module := &fakeModule{respond: func(f Frame) []byte {
		return makeReply(2, 1, StatusWrongType, f.Command(), 0)
	}}
	client := NewClient(module, nil)

	err := client.SetAxisParameter(context.Background(), 99, 1)
	require.Error(t, err)
	assert.True(t, IsStatusError(err))
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, CmdSAP, se.Command)
	assert.Equal(t, StatusWrongType, se.Status)
	assert.Contains(t, se.Error(), "Wrong type")
}

func TestClient_ChecksumMismatch(t *testing.T) {
	module := &fakeModule{respond: func(f Frame) []byte {
		reply := makeReply(2, 1, StatusSuccess, f.Command(), 7)
		reply[8]++
		return reply
	}}
	client := NewClient(module, nil)
	_, err := client.GetAxisParameter(context.Background(), ParamActualVelocity)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestClient_ShortReply(t *testing.T) {
	module := &fakeModule{respond: func(f Frame) []byte {
		return makeReply(2, 1, StatusSuccess, f.Command(), 7)[:5]
	}}
	client := NewClient(module, nil)
	_, err := client.Stop(context.Background())
	assert.ErrorIs(t, err, ErrInvalidFrameLength)
}

func TestClient_UnexpectedReply(t *testing.T) {
	module := &fakeModule{respond: func(f Frame) []byte {
		return makeReply(2, 1, StatusSuccess, CmdGAP, 0)
	}}
	client := NewClient(module, nil)
	_, err := client.Stop(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedReply)
}

func TestClient_TransportError(t *testing.T) {
	client := NewClient(&fakeModule{}, nil)
	_, err := client.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "receive reply to MST")
}

func TestClient_ModuleAddress(t *testing.T) {
	module := echoModule(nil)
	client := NewClient(module, NewCodec(WithModuleAddress(4)))
	_, err := client.RotateRight(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint8(4), client.ModuleAddress())
	assert.Equal(t, uint8(4), module.sent[0].Address())
}

func TestClient_ExchangeRawFrame(t *testing.T) {
	module := echoModule(nil)
	client := NewClient(module, nil)
	frame := NewCodec().BuildFrame(0, uint8(CmdSIO), 1, 2, 1)
	reply, err := client.Exchange(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, CmdSIO, reply.Command)
	assert.Equal(t, frame, module.sent[0])
}

func TestClient_CanceledContext(t *testing.T) {
	module := echoModule(nil)
	client := NewClient(module, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Stop(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, module.sent, "nothing may be sent with a canceled context")
}

// slowModule blocks in Receive until a reply is queued.
type slowModule struct {
	replies chan []byte
}

func (m *slowModule) Send(frame []byte) error { return nil }

func (m *slowModule) Receive(maxLen int) ([]byte, error) { return <-m.replies, nil }

func TestClient_TimeoutKeepsLineBusy(t *testing.T) {
	module := &slowModule{replies: make(chan []byte, 2)}
	client := NewClient(module, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.RotateRight(ctx, 100)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The late reply to ROR is consumed by the abandoned read, so the next
	// exchange sees its own reply.
	module.replies <- makeReply(2, 1, StatusSuccess, CmdROR, 100)
	module.replies <- makeReply(2, 1, StatusSuccess, CmdMST, 0)
	reply, err := client.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CmdMST, reply.Command)
}

func TestClient_CloseDuringAbandonedRead(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	go func() {
		// Take the command, never answer.
		buf := make([]byte, FrameSize)
		_, _ = io.ReadFull(remote, buf)
	}()
	client := NewClient(NewStreamTransport(local, 0, 0), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Stop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	closed := make(chan error, 1)
	go func() { closed <- client.Close() }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close blocked behind the pending read")
	}

	// The failed read releases the line, so later calls report the closed
	// transport instead of hanging.
	_, err = client.Stop(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClient_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	calls := 0
	module := &fakeModule{respond: func(f Frame) []byte {
		calls++
		reply := makeReply(2, 1, StatusSuccess, f.Command(), 0)
		if calls == 2 {
			reply[8]++
		}
		return reply
	}}
	client := NewClient(module, nil)
	client.SetMetrics(metrics)

	ctx := context.Background()
	_, _ = client.Stop(ctx)
	_, _ = client.Stop(ctx)
	_, _ = client.RotateRight(ctx, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.FramesSent.WithLabelValues("MST")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FramesSent.WithLabelValues("ROR")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Replies.WithLabelValues(resultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Replies.WithLabelValues(resultChecksum)))
}

func TestClient_Logger(t *testing.T) {
	var out strings.Builder
	logger := NewSimpleLogger(&out, LevelDebug, "test")
	client := NewClient(echoModule(nil), nil)
	client.SetLogger(logger)

	_, err := client.RotateRight(context.Background(), 100)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "[DEBUG] <test> tmcm: send ROR")
}

func TestClient_Close(t *testing.T) {
	conn := &mockConn{Reader: strings.NewReader(""), Writer: &strings.Builder{}}
	client := NewClient(NewStreamTransport(conn, 0, 0), nil)
	require.NoError(t, client.Close())
	assert.True(t, conn.closed)
	_, err := client.Stop(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
