// Copyright 2024 The Parca Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package profiler implements a signal driven CPU sampling profiler. Every
// delivery of the profiling signal captures a bounded stack and the identity
// of the thread that received it, and hands the unresolved sample to a Sink.
//
// The profiler is a process wide singleton since a signal handler cannot
// carry any context of its own.
package profiler

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/parca-dev/sigprof/pkg/blocklist"
)

var (
	// mtx guards the process wide profiler. The control path takes it
	// exclusively and may block; the signal path only ever tries to take it.
	mtx       sync.RWMutex
	initOnce  sync.Once
	global    *Profiler
	globalErr error

	sampleMetrics = newMetrics()

	newProfiler = func() (*Profiler, error) {
		return &Profiler{
			logger:    log.NewNopLogger(),
			metrics:   sampleMetrics,
			registrar: newRegistrar(),
			signal:    DefaultSignal,
			sink:      DiscardSink{},
		}, nil
	}
)

// Profiler is the state of the process wide profiler. Its methods are not
// safe for concurrent use; the package level functions, the builder and the
// signal handler serialize access to it.
type Profiler struct {
	logger    log.Logger
	metrics   *metrics
	registrar registrar
	signal    os.Signal
	sink      Sink

	running       bool
	sampleCounter uint64
	// generation is bumped on every successful start, so that a Guard can
	// tell its own session apart from a later one.
	generation uint64

	// Immutable while running, it is scanned by the signal handler.
	blocklist blocklist.Segments
}

// Start installs the signal handler. It fails with ErrAlreadyRunning if the
// profiler is running and with a *SignalError if the handler cannot be
// installed, in which case the profiler stays idle.
func (p *Profiler) Start() error {
	if p.running {
		p.metrics.transition(labelOpStart, labelWrongState)
		return ErrAlreadyRunning
	}

	level.Info(p.logger).Log("msg", "starting cpu profiler", "signal", p.signal, "blocklisted_segments", len(p.blocklist))
	if err := p.registrar.register(p.signal); err != nil {
		p.metrics.transition(labelOpStart, labelError)
		return &SignalError{Op: "register", Signal: p.signal, Err: err}
	}

	p.running = true
	p.sampleCounter = 0
	p.generation++
	p.metrics.running.Set(1)
	p.metrics.transition(labelOpStart, labelSuccess)
	return nil
}

// Stop ignores the profiling signal from now on and resets the counters. It
// fails with ErrNotRunning if the profiler is idle. Deliveries already being
// handled on other threads may still complete after Stop returns.
func (p *Profiler) Stop() error {
	if !p.running {
		p.metrics.transition(labelOpStop, labelWrongState)
		return ErrNotRunning
	}

	level.Info(p.logger).Log("msg", "stopping cpu profiler", "samples", p.sampleCounter)

	if err := p.registrar.unregister(p.signal); err != nil {
		p.metrics.transition(labelOpStop, labelError)
		return &SignalError{Op: "unregister", Signal: p.signal, Err: err}
	}

	p.reset()
	p.metrics.transition(labelOpStop, labelSuccess)
	return nil
}

func (p *Profiler) reset() {
	p.sampleCounter = 0
	p.running = false
	p.metrics.running.Set(0)
}

// Running reports whether the profiler is between a successful Start and a
// successful Stop.
func (p *Profiler) Running() bool {
	return p.running
}

// SampleCount returns the number of samples taken since the last start.
func (p *Profiler) SampleCount() uint64 {
	return p.sampleCounter
}

// IsBlocklisted reports whether addr lies inside a blocklisted segment.
func (p *Profiler) IsBlocklisted(addr uintptr) bool {
	return p.blocklist.Contains(addr)
}

// Sample records one sample and forwards it to the sink. It is called from
// the signal path: it neither blocks nor allocates.
func (p *Profiler) Sample(frames []uintptr, threadName []byte, threadID uint64) {
	s := NewRawSample(frames, threadName, threadID)
	p.sampleCounter++
	p.metrics.samples.Inc()

	if !p.sink.Sample(s) {
		p.metrics.droppedSinkFull.Inc()
	}
}

// triggerLazy creates the process wide profiler on first use.
func triggerLazy() {
	initOnce.Do(func() {
		p, err := newProfiler()

		mtx.Lock()
		defer mtx.Unlock()
		global, globalErr = p, err
	})
}

// instance returns the process wide profiler. mtx must be held.
func instance() (*Profiler, error) {
	if globalErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreating, globalErr)
	}
	return global, nil
}

// Stop stops the process wide profiler.
func Stop() error {
	triggerLazy()

	mtx.Lock()
	defer mtx.Unlock()

	p, err := instance()
	if err != nil {
		return err
	}
	return p.Stop()
}

// Running reports whether the process wide profiler is running.
func Running() bool {
	triggerLazy()

	mtx.RLock()
	defer mtx.RUnlock()

	p, err := instance()
	if err != nil {
		return false
	}
	return p.Running()
}

// SampleCount returns the number of samples the process wide profiler took
// since it was last started.
func SampleCount() uint64 {
	triggerLazy()

	mtx.RLock()
	defer mtx.RUnlock()

	p, err := instance()
	if err != nil {
		return 0
	}
	return p.SampleCount()
}
