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

package profiler

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/parca-dev/sigprof/pkg/blocklist"
)

// GuardBuilder configures and starts the process wide profiler.
//
//	guard, err := profiler.NewGuardBuilder().
//		WithLogger(logger).
//		Blocklist("libc", "libgcc").
//		Start()
type GuardBuilder struct {
	logger   log.Logger
	reg      prometheus.Registerer
	sink     Sink
	signal   os.Signal
	resolver *blocklist.Resolver

	blocklist []string
	consumed  bool
}

// NewGuardBuilder returns a builder with the default signal, no blocklist
// and a sink that discards samples.
func NewGuardBuilder() *GuardBuilder {
	return &GuardBuilder{
		logger: log.NewNopLogger(),
		sink:   DiscardSink{},
		signal: DefaultSignal,
	}
}

// WithLogger sets the logger of the profiler and of the default resolver.
func (b *GuardBuilder) WithLogger(logger log.Logger) *GuardBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithRegisterer registers the profiler metrics with reg on Start.
func (b *GuardBuilder) WithRegisterer(reg prometheus.Registerer) *GuardBuilder {
	b.reg = reg
	return b
}

// WithSink sets where samples are handed over to. Samples are counted and
// discarded by default.
func (b *GuardBuilder) WithSink(sink Sink) *GuardBuilder {
	if sink != nil {
		b.sink = sink
	}
	return b
}

// WithSignal overrides the profiling signal, DefaultSignal by default.
func (b *GuardBuilder) WithSignal(sig os.Signal) *GuardBuilder {
	b.signal = sig
	return b
}

// WithResolver sets the resolver used to look up blocklisted objects. A
// resolver reading /proc/self/maps is used by default.
func (b *GuardBuilder) WithResolver(r *blocklist.Resolver) *GuardBuilder {
	b.resolver = r
	return b
}

// Blocklist excludes from sampling every delivery that interrupts code in a
// shared object whose path contains one of names. Names add up over calls.
// The address ranges are resolved by Start from the objects loaded at that
// time, with the final resolver and logger.
func (b *GuardBuilder) Blocklist(names ...string) *GuardBuilder {
	b.blocklist = append(b.blocklist, names...)
	return b
}

func (b *GuardBuilder) resolveBlocklist() (blocklist.Segments, error) {
	if len(b.blocklist) == 0 {
		return nil, nil
	}
	r := b.resolver
	if r == nil {
		r = blocklist.NewResolver(b.logger)
	}
	segments, err := r.Resolve(b.blocklist)
	if err != nil {
		return nil, &IOError{Op: "resolve blocklist", Err: err}
	}
	return segments, nil
}

// Start configures the process wide profiler and starts it. A builder can
// only be started once. The profiler keeps running until the returned Guard
// or the package level Stop stops it.
func (b *GuardBuilder) Start() (*Guard, error) {
	if b.consumed {
		return nil, ErrBuilderConsumed
	}
	b.consumed = true

	segments, err := b.resolveBlocklist()
	if err != nil {
		return nil, err
	}

	triggerLazy()

	mtx.Lock()
	defer mtx.Unlock()

	p, err := instance()
	if err != nil {
		level.Error(b.logger).Log("msg", "error in creating profiler", "err", err)
		return nil, err
	}
	if p.running {
		// The running session keeps its configuration.
		return nil, p.Start()
	}

	if b.reg != nil {
		if err := p.metrics.register(b.reg); err != nil {
			return nil, fmt.Errorf("failed to register profiler metrics: %w", err)
		}
	}

	p.logger = b.logger
	p.sink = b.sink
	p.signal = b.signal
	p.blocklist = segments

	if err := p.Start(); err != nil {
		return nil, err
	}
	return &Guard{generation: p.generation}, nil
}

// Guard stops the profiling session it was returned for.
type Guard struct {
	generation uint64

	once sync.Once
	err  error
}

// Stop stops the profiler if it is still running the session this guard
// was created for, and returns ErrNotRunning otherwise. Only the first call
// has an effect; later calls return the same result.
func (g *Guard) Stop() error {
	g.once.Do(func() {
		mtx.Lock()
		defer mtx.Unlock()

		p, err := instance()
		if err != nil {
			g.err = err
			return
		}
		if !p.running || p.generation != g.generation {
			g.err = ErrNotRunning
			return
		}
		g.err = p.Stop()
	})
	return g.err
}
