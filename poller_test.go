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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu     sync.Mutex
	axis   map[Parameter]int32
	global map[Parameter]int32
	fail   map[Parameter]bool
	reads  int
}

func (r *fakeReader) GetAxisParameter(ctx context.Context, p Parameter) (int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if r.fail[p] {
		return 0, &StatusError{Command: CmdGAP, Status: StatusWrongType}
	}
	return r.axis[p], nil
}

func (r *fakeReader) GetGlobalParameter(ctx context.Context, p Parameter, bank uint8) (int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	return r.global[p] + int32(bank), nil
}

func fastPollerConfig() PollerConfig {
	return PollerConfig{Interval: 5 * time.Millisecond, Rate: 1000, Burst: 10, BufferSize: 4}
}

func TestParameterPoller_Load(t *testing.T) {
	p := NewParameterPoller(&fakeReader{}, PollerConfig{})
	require.NoError(t, p.Load([]PollTarget{
		{Parameter: ParamActualPosition},
		{Name: "vel", Parameter: ParamActualVelocity},
		{Scope: ScopeGlobal, Parameter: ParamGlobalSerialAddress},
	}))
	targets := p.Targets()
	require.Len(t, targets, 3)
	assert.Equal(t, "actual_position", targets[0].Name)
	assert.Equal(t, ScopeAxis, targets[0].Scope)
	assert.Equal(t, "vel", targets[1].Name)
	assert.Equal(t, "serial_address", targets[2].Name)

	assert.Error(t, p.Load([]PollTarget{{Parameter: 1}, {Parameter: 1}}), "duplicate labels")
	assert.Error(t, p.Load([]PollTarget{{Scope: "bank", Parameter: 1}}))
}

func TestParameterPoller_Defaults(t *testing.T) {
	p := NewParameterPoller(&fakeReader{}, PollerConfig{})
	assert.Equal(t, DefaultPollerConfig(), p.config)
}

func TestParameterPoller_PollOnce(t *testing.T) {
	reader := &fakeReader{
		axis:   map[Parameter]int32{ParamActualPosition: 1234, ParamActualVelocity: -50},
		global: map[Parameter]int32{ParamGlobalSerialAddress: 1},
		fail:   map[Parameter]bool{ParamDriverTemperature: true},
	}
	p := NewParameterPoller(reader, fastPollerConfig())
	require.NoError(t, p.Load([]PollTarget{
		{Parameter: ParamActualPosition},
		{Parameter: ParamDriverTemperature},
		{Parameter: ParamActualVelocity},
		{Scope: ScopeGlobal, Parameter: ParamGlobalSerialAddress, Bank: 2},
	}))

	samples, errs := p.PollOnce(context.Background())
	require.Len(t, samples, 3)
	assert.Equal(t, int32(1234), samples[0].Value)
	assert.Equal(t, int32(-50), samples[1].Value)
	assert.Equal(t, int32(3), samples[2].Value)
	assert.Equal(t, ScopeGlobal, samples[2].Scope)
	require.Len(t, errs, 1)
	assert.True(t, IsStatusError(errs[0]))
	assert.Contains(t, errs[0].Error(), "driver_temperature")
}

func TestParameterPoller_PollOnceCanceled(t *testing.T) {
	reader := &fakeReader{}
	p := NewParameterPoller(reader, PollerConfig{Rate: 0.001, Burst: 1})
	require.NoError(t, p.Load([]PollTarget{{Parameter: 1}, {Parameter: 2}}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	samples, errs := p.PollOnce(ctx)
	assert.Len(t, samples, 1, "first read uses the burst token")
	require.Len(t, errs, 1)
	assert.Equal(t, 1, reader.reads)
}

func TestParameterPoller_StartStop(t *testing.T) {
	reader := &fakeReader{
		axis: map[Parameter]int32{ParamActualPosition: 7},
		fail: map[Parameter]bool{ParamActualCurrent: true},
	}
	p := NewParameterPoller(reader, fastPollerConfig())
	require.NoError(t, p.Load([]PollTarget{{Parameter: ParamActualPosition}, {Parameter: ParamActualCurrent}}))

	cycles := make(chan []Sample, 16)
	var errCount int
	var mu sync.Mutex
	p.SetOnData(func(s []Sample) {
		select {
		case cycles <- s:
		default:
		}
	})
	p.SetOnError(func(err error) {
		mu.Lock()
		errCount++
		mu.Unlock()
	})

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.Running())
	assert.Error(t, p.Start(context.Background()), "second Start must fail")

	for i := 0; i < 2; i++ {
		select {
		case s := <-cycles:
			require.Len(t, s, 1)
			assert.Equal(t, int32(7), s[0].Value)
		case <-time.After(2 * time.Second):
			t.Fatal("no poll cycle delivered")
		}
	}

	p.Stop()
	assert.False(t, p.Running())
	p.Stop()

	mu.Lock()
	assert.Positive(t, errCount)
	mu.Unlock()
}

func TestParameterPoller_StopsWithContext(t *testing.T) {
	p := NewParameterPoller(&fakeReader{}, fastPollerConfig())
	require.NoError(t, p.Load([]PollTarget{{Parameter: 1}}))
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	cancel()

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after context cancel")
	}
}

func TestParameterPoller_RestartAfterContextCancel(t *testing.T) {
	p := NewParameterPoller(&fakeReader{}, fastPollerConfig())
	require.NoError(t, p.Load([]PollTarget{{Parameter: 1}}))
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	assert.True(t, p.Running())
	cancel()

	assert.Eventually(t, func() bool { return !p.Running() }, time.Second, 5*time.Millisecond)

	var mu sync.Mutex
	cycles := 0
	p.SetOnData(func([]Sample) {
		mu.Lock()
		cycles++
		mu.Unlock()
	})
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()
	assert.True(t, p.Running())
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return cycles > 0
	}, time.Second, 5*time.Millisecond)
}

func TestParameterPoller_WithClient(t *testing.T) {
	module := echoModule(map[Parameter]int32{ParamActualVelocity: 321})
	client := NewClient(module, nil)
	p := NewParameterPoller(client, fastPollerConfig())
	require.NoError(t, p.Load([]PollTarget{{Parameter: ParamActualVelocity}}))

	samples, errs := p.PollOnce(context.Background())
	require.Empty(t, errs)
	require.Len(t, samples, 1)
	assert.Equal(t, int32(321), samples[0].Value)
	assert.Equal(t, CmdGAP, module.sent[0].Command())
}
