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
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	labelDropReasonLockContended = "lock_contended"
	labelDropReasonBlocklisted   = "blocklisted"
	labelDropReasonSinkFull      = "sink_full"
	labelDropReasonSlotsFull     = "trampoline_full"

	labelOpStart = "start"
	labelOpStop  = "stop"

	labelSuccess    = "success"
	labelError      = "error"
	labelWrongState = "wrong_state"
)

// The counters used while sampling are resolved once so that the signal
// path only performs atomic increments.
type metrics struct {
	collectors []prometheus.Collector

	samples            prometheus.Counter
	stackTruncated     prometheus.Counter
	threadNameFallback prometheus.Counter

	droppedLockContended prometheus.Counter
	droppedBlocklisted   prometheus.Counter
	droppedSinkFull      prometheus.Counter

	// Deliveries the trampoline had no free slot for.
	droppedTrampolineFull prometheus.Counter

	running     prometheus.Gauge
	transitions *prometheus.CounterVec
}

func newMetrics() *metrics {
	// Collectors are registered with the registerer given to each builder,
	// they outlive any single start/stop cycle.
	factory := promauto.With(nil)

	samples := factory.NewCounter(prometheus.CounterOpts{
		Name: "sigprof_samples_total",
		Help: "Total number of samples taken.",
	})
	stackTruncated := factory.NewCounter(prometheus.CounterOpts{
		Name: "sigprof_stack_truncated_total",
		Help: "Total number of samples whose stack was deeper than the maximum depth.",
	})
	threadNameFallback := factory.NewCounter(prometheus.CounterOpts{
		Name: "sigprof_thread_name_fallback_total",
		Help: "Total number of samples named after the thread id because the thread name could not be read.",
	})
	dropped := factory.NewCounterVec(prometheus.CounterOpts{
		Name: "sigprof_samples_dropped_total",
		Help: "Total number of signal deliveries that did not produce an accepted sample.",
	}, []string{"reason"})
	running := factory.NewGauge(prometheus.GaugeOpts{
		Name: "sigprof_profiler_running",
		Help: "Whether the profiler is currently running.",
	})
	transitions := factory.NewCounterVec(prometheus.CounterOpts{
		Name: "sigprof_profiler_transitions_total",
		Help: "Total number of start and stop attempts by result.",
	}, []string{"op", "status"})

	m := &metrics{
		collectors: []prometheus.Collector{samples, stackTruncated, threadNameFallback, dropped, running, transitions},

		samples:            samples,
		stackTruncated:     stackTruncated,
		threadNameFallback: threadNameFallback,

		droppedLockContended: dropped.WithLabelValues(labelDropReasonLockContended),
		droppedBlocklisted:   dropped.WithLabelValues(labelDropReasonBlocklisted),
		droppedSinkFull:      dropped.WithLabelValues(labelDropReasonSinkFull),

		droppedTrampolineFull: dropped.WithLabelValues(labelDropReasonSlotsFull),

		running:     running,
		transitions: transitions,
	}

	for _, op := range []string{labelOpStart, labelOpStop} {
		m.transitions.WithLabelValues(op, labelSuccess)
		m.transitions.WithLabelValues(op, labelError)
		m.transitions.WithLabelValues(op, labelWrongState)
	}

	return m
}

// register adds the collectors to reg. Registering twice with the same
// registry is not an error.
func (m *metrics) register(reg prometheus.Registerer) error {
	for _, c := range m.collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) && are.ExistingCollector == c {
				continue
			}
			return err
		}
	}
	return nil
}

func (m *metrics) transition(op, status string) {
	m.transitions.WithLabelValues(op, status).Inc()
}
