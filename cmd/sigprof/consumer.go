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
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	pprofprofile "github.com/google/pprof/profile"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"

	"github.com/parca-dev/sigprof/pkg/pprof"
	"github.com/parca-dev/sigprof/pkg/profiler"
)

type threadKey struct {
	name string
	id   uint64
}

type threadSamples struct {
	Name    string `json:"thread_name"`
	ID      uint64 `json:"thread_id"`
	Samples uint64 `json:"samples"`
}

// consumer drains the sink outside of the signal path. It keeps per thread
// counts that can be read concurrently and builds the pprof profile.
type consumer struct {
	logger log.Logger
	sink   *profiler.ChannelSink

	samples atomic.Uint64
	threads *xsync.MapOf[threadKey, uint64]

	mtx       sync.Mutex
	converter *pprof.Converter
}

func newConsumer(logger log.Logger, sink *profiler.ChannelSink, converter *pprof.Converter) *consumer {
	return &consumer{
		logger:    logger,
		sink:      sink,
		threads:   xsync.NewMapOf[threadKey, uint64](),
		converter: converter,
	}
}

func (c *consumer) Run(ctx context.Context) error {
	level.Debug(c.logger).Log("msg", "starting: sample consumer")
	defer level.Debug(c.logger).Log("msg", "stopped: sample consumer")

	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-c.sink.Samples():
			c.record(&s)
		}
	}
}

// drain records the samples still buffered in the sink.
func (c *consumer) drain() {
	for {
		select {
		case s := <-c.sink.Samples():
			c.record(&s)
		default:
			return
		}
	}
}

func (c *consumer) record(s *profiler.RawSample) {
	c.samples.Inc()
	c.threads.Compute(threadKey{name: string(s.Name()), id: s.ThreadID}, func(old uint64, _ bool) (uint64, bool) {
		return old + 1, false
	})

	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.converter.Add(s)
}

// Threads returns the sample counts per thread, most sampled first.
func (c *consumer) Threads() []threadSamples {
	var res []threadSamples
	c.threads.Range(func(k threadKey, n uint64) bool {
		res = append(res, threadSamples{Name: k.name, ID: k.id, Samples: n})
		return true
	})
	sort.Slice(res, func(i, j int) bool {
		if res[i].Samples != res[j].Samples {
			return res[i].Samples > res[j].Samples
		}
		return res[i].ID < res[j].ID
	})
	return res
}

// Profile returns a copy of the profile built so far.
func (c *consumer) Profile() *pprofprofile.Profile {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.converter.Profile().Copy()
}

func (c *consumer) handleSamples(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(struct {
		Samples uint64          `json:"samples"`
		Dropped uint64          `json:"dropped"`
		Threads []threadSamples `json:"threads"`
	}{
		Samples: c.samples.Load(),
		Dropped: c.sink.Dropped(),
		Threads: c.Threads(),
	}); err != nil {
		level.Error(c.logger).Log("msg", "failed to write samples", "err", err)
	}
}

func (c *consumer) handleProfile(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="cpu.pb.gz"`)
	if err := pprof.WriteCompressed(w, c.Profile()); err != nil {
		level.Error(c.logger).Log("msg", "failed to write profile", "err", err)
	}
}

type functionSamples struct {
	name    string
	samples int64
}

// topFunctions returns the n functions most often found at the top of a
// sampled stack.
func topFunctions(prof *pprofprofile.Profile, n int) []functionSamples {
	counts := map[string]int64{}
	for _, s := range prof.Sample {
		if len(s.Location) == 0 || len(s.Location[0].Line) == 0 {
			counts["<unknown>"] += s.Value[0]
			continue
		}
		counts[s.Location[0].Line[0].Function.Name] += s.Value[0]
	}

	res := make([]functionSamples, 0, len(counts))
	for name, samples := range counts {
		res = append(res, functionSamples{name: name, samples: samples})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].samples != res[j].samples {
			return res[i].samples > res[j].samples
		}
		return res[i].name < res[j].name
	})
	if len(res) > n {
		res = res[:n]
	}
	return res
}
