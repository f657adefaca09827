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
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// ParameterReader is the part of Client the poller needs.
type ParameterReader interface {
	GetAxisParameter(ctx context.Context, param Parameter) (int32, error)
	GetGlobalParameter(ctx context.Context, param Parameter, bank uint8) (int32, error)
}

// PollTarget names one parameter to read on every cycle.
type PollTarget struct {
	Name      string // Label used in samples; defaults to the catalog name
	Scope     Scope
	Parameter Parameter
	Bank      uint8 // Global parameters only
}

// Sample is one value read by the poller.
type Sample struct {
	Name      string
	Scope     Scope
	Parameter Parameter
	Value     int32
	Time      time.Time
}

// OnSamplesFunc receives the samples of one poll cycle.
type OnSamplesFunc func([]Sample)

// OnErrorFunc receives read errors.
type OnErrorFunc func(error)

// PollerConfig controls the poll cadence.
type PollerConfig struct {
	Interval   time.Duration // Time between the starts of two cycles
	Rate       float64       // Maximum requests per second on the line
	Burst      int
	BufferSize int // Cycles queued for the callback before the poller blocks
}

// DefaultPollerConfig polls once a second and sends at most 20 requests a
// second, which leaves a 9600 baud line about half idle.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:   1 * time.Second,
		Rate:       20,
		Burst:      1,
		BufferSize: 16,
	}
}

// ParameterPoller reads a fixed set of parameters periodically and hands
// each cycle to a callback on a separate goroutine.
type ParameterPoller struct {
	reader  ParameterReader
	config  PollerConfig
	limiter *rate.Limiter
	logger  io.Writer

	mu      sync.Mutex
	targets []PollTarget
	cancel  context.CancelFunc
	done    chan struct{} // closed when the current run has fully exited
	wg      sync.WaitGroup

	onData  atomic.Value // OnSamplesFunc
	onError atomic.Value // OnErrorFunc
}

// NewParameterPoller creates a poller. Zero config fields take defaults.
func NewParameterPoller(reader ParameterReader, config PollerConfig) *ParameterPoller {
	d := DefaultPollerConfig()
	if config.Interval <= 0 {
		config.Interval = d.Interval
	}
	if config.Rate <= 0 {
		config.Rate = d.Rate
	}
	if config.Burst <= 0 {
		config.Burst = d.Burst
	}
	if config.BufferSize <= 0 {
		config.BufferSize = d.BufferSize
	}
	return &ParameterPoller{
		reader:  reader,
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.Rate), config.Burst),
	}
}

// SetLogger sets the writer that receives leveled log lines.
func (p *ParameterPoller) SetLogger(logger io.Writer) { p.logger = logger }

// SetOnData sets the callback for poll cycles.
func (p *ParameterPoller) SetOnData(fn OnSamplesFunc) { p.onData.Store(fn) }

// SetOnError sets the callback for read errors.
func (p *ParameterPoller) SetOnError(fn OnErrorFunc) { p.onError.Store(fn) }

// Load replaces the poll targets. Labels must be unique.
func (p *ParameterPoller) Load(targets []PollTarget) error {
	seen := make(map[string]bool, len(targets))
	loaded := make([]PollTarget, 0, len(targets))
	for _, t := range targets {
		if t.Scope == "" {
			t.Scope = ScopeAxis
		}
		if t.Scope != ScopeAxis && t.Scope != ScopeGlobal {
			return fmt.Errorf("invalid scope %q", t.Scope)
		}
		if t.Name == "" {
			t.Name = builtin.Name(t.Scope, t.Parameter)
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate poll target: %s", t.Name)
		}
		seen[t.Name] = true
		loaded = append(loaded, t)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.targets = loaded
	return nil
}

// Targets returns a copy of the loaded targets.
func (p *ParameterPoller) Targets() []PollTarget {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PollTarget, len(p.targets))
	copy(out, p.targets)
	return out
}

// PollOnce reads every target in order and returns the successful samples
// along with the errors of the failed reads.
func (p *ParameterPoller) PollOnce(ctx context.Context) ([]Sample, []error) {
	targets := p.Targets()
	samples := make([]Sample, 0, len(targets))
	var errs []error
	for _, t := range targets {
		if err := p.limiter.Wait(ctx); err != nil {
			errs = append(errs, err)
			break
		}
		var value int32
		var err error
		if t.Scope == ScopeGlobal {
			value, err = p.reader.GetGlobalParameter(ctx, t.Parameter, t.Bank)
		} else {
			value, err = p.reader.GetAxisParameter(ctx, t.Parameter)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("poll %s: %w", t.Name, err))
			continue
		}
		samples = append(samples, Sample{
			Name:      t.Name,
			Scope:     t.Scope,
			Parameter: t.Parameter,
			Value:     value,
			Time:      time.Now(),
		})
	}
	return samples, errs
}

// Start launches the poll loop and the callback dispatcher. It returns an
// error if the poller is already running.
func (p *ParameterPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running() {
		return fmt.Errorf("poller already running")
	}
	if p.cancel != nil {
		// Previous run ended with its parent context.
		p.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	done := make(chan struct{})
	p.done = done
	dataCh := make(chan []Sample, p.config.BufferSize)

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		defer close(dataCh)
		ticker := time.NewTicker(p.config.Interval)
		defer ticker.Stop()
		for {
			p.cycle(ctx, dataCh)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	go func() {
		defer p.wg.Done()
		defer close(done)
		for samples := range dataCh {
			if cb, ok := p.onData.Load().(OnSamplesFunc); ok && cb != nil {
				cb(samples)
			}
		}
	}()
	logf(p.logger, LevelInfo, "tmcm: poller started, %d targets every %v", len(p.targets), p.config.Interval)
	return nil
}

func (p *ParameterPoller) cycle(ctx context.Context, dataCh chan<- []Sample) {
	samples, errs := p.PollOnce(ctx)
	if ctx.Err() != nil {
		return
	}
	for _, err := range errs {
		logf(p.logger, LevelWarning, "tmcm: %v", err)
		if cb, ok := p.onError.Load().(OnErrorFunc); ok && cb != nil {
			cb(err)
		}
	}
	if len(samples) == 0 {
		return
	}
	select {
	case dataCh <- samples:
	case <-ctx.Done():
	}
}

// Stop ends the poll loop and waits for the dispatcher to drain.
func (p *ParameterPoller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	logf(p.logger, LevelInfo, "tmcm: poller stopped")
}

// Running reports whether the poll loop is active. A loop whose parent
// context was canceled is not running even if Stop was never called.
func (p *ParameterPoller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running()
}

func (p *ParameterPoller) running() bool {
	if p.cancel == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}
