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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-kit/log"
	pprofprofile "github.com/google/pprof/profile"
	"github.com/stretchr/testify/require"

	"github.com/parca-dev/sigprof/pkg/pprof"
	"github.com/parca-dev/sigprof/pkg/profiler"
)

func newTestConsumer(t *testing.T, size int) *consumer {
	t.Helper()
	converter := pprof.NewManager(log.NewNopLogger(), nil).NewConverter(nil, time.Now(), int64(time.Millisecond))
	return newConsumer(log.NewNopLogger(), profiler.NewChannelSink(size), converter)
}

func TestConsumerCountsPerThread(t *testing.T) {
	c := newTestConsumer(t, 8)

	pcs := []uintptr{0x1000, 0x2000}
	for _, s := range []profiler.RawSample{
		profiler.NewRawSample(pcs, []byte("main"), 1),
		profiler.NewRawSample(pcs, []byte("worker"), 2),
		profiler.NewRawSample(pcs, []byte("worker"), 2),
	} {
		require.True(t, c.sink.Sample(s))
	}
	c.drain()

	require.Equal(t, uint64(3), c.samples.Load())
	require.Equal(t, []threadSamples{
		{Name: "worker", ID: 2, Samples: 2},
		{Name: "main", ID: 1, Samples: 1},
	}, c.Threads())
	require.Len(t, c.Profile().Sample, 2)
}

func TestConsumerRunStopsWithContext(t *testing.T) {
	c := newTestConsumer(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- c.Run(ctx) }()

	require.True(t, c.sink.Sample(profiler.NewRawSample(nil, []byte("main"), 1)))
	require.Eventually(t, func() bool { return c.samples.Load() == 1 }, 5*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestHandleSamples(t *testing.T) {
	c := newTestConsumer(t, 1)
	c.record(&profiler.RawSample{ThreadID: 7})
	require.True(t, c.sink.Sample(profiler.RawSample{}))
	require.False(t, c.sink.Sample(profiler.RawSample{}))

	rec := httptest.NewRecorder()
	c.handleSamples(rec, httptest.NewRequest("GET", "/samples", nil))
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got struct {
		Samples uint64          `json:"samples"`
		Dropped uint64          `json:"dropped"`
		Threads []threadSamples `json:"threads"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, uint64(1), got.Samples)
	require.Equal(t, uint64(1), got.Dropped)
	require.Equal(t, []threadSamples{{ID: 7, Samples: 1}}, got.Threads)
}

func TestHandleProfile(t *testing.T) {
	c := newTestConsumer(t, 1)
	s := profiler.NewRawSample([]uintptr{0x1000}, []byte("main"), 1)
	c.record(&s)

	rec := httptest.NewRecorder()
	c.handleProfile(rec, httptest.NewRequest("GET", "/debug/sigprof/profile", nil))

	prof, err := pprofprofile.Parse(rec.Body)
	require.NoError(t, err)
	require.Len(t, prof.Sample, 1)
}

func TestTopFunctions(t *testing.T) {
	fn := func(name string) *pprofprofile.Location {
		return &pprofprofile.Location{Line: []pprofprofile.Line{{Function: &pprofprofile.Function{Name: name}}}}
	}
	prof := &pprofprofile.Profile{
		Sample: []*pprofprofile.Sample{
			{Value: []int64{3}, Location: []*pprofprofile.Location{fn("isPrime"), fn("primes")}},
			{Value: []int64{1}, Location: []*pprofprofile.Location{fn("primes")}},
			{Value: []int64{2}, Location: []*pprofprofile.Location{fn("isPrime")}},
			{Value: []int64{1}, Location: []*pprofprofile.Location{{}}},
			{Value: []int64{1}},
		},
	}

	require.Equal(t, []functionSamples{
		{name: "isPrime", samples: 5},
		{name: "<unknown>", samples: 2},
	}, topFunctions(prof, 2))
	require.Len(t, topFunctions(prof, 10), 3)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, log.NewNopLogger(), summary{
		samples:   12345,
		frequency: 19,
		threads:   []threadSamples{{Name: "sigprof", ID: 42, Samples: 12345}},
		functions: []functionSamples{{name: "main.isPrime", samples: 1000}},
	})

	out := buf.String()
	require.Contains(t, out, "samples taken:    12,345")
	require.Contains(t, out, "sigprof")
	require.Contains(t, out, "main.isPrime")
}

func TestWorkloadStopsAfterDuration(t *testing.T) {
	w := &workload{goroutines: 2, duration: 50 * time.Millisecond}
	require.NoError(t, w.Run(context.Background()))
	require.Positive(t, w.iterations.Load())
}

func TestPrimes(t *testing.T) {
	require.Equal(t, 25, primes(100))
	require.False(t, isPrime(91))
	require.True(t, isPrime(97))
}
