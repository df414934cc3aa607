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

// Package pprof turns raw samples of the signal driven profiler into pprof
// profiles. Stacks are symbolized in process, on the consumer side.
package pprof

import (
	"encoding/binary"
	"runtime"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	pprofprofile "github.com/google/pprof/profile"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/parca-dev/sigprof/pkg/profiler"
)

const (
	threadIDLabel   = "thread_id"
	threadNameLabel = "thread_name"
)

type Manager struct {
	logger  log.Logger
	metrics *converterMetrics
}

func NewManager(logger log.Logger, reg prometheus.Registerer) *Manager {
	return &Manager{
		logger:  logger,
		metrics: newConverterMetrics(reg),
	}
}

// Converter accumulates samples into one profile. Identical stacks taken on
// the same thread are merged into one pprof sample. It is not safe for
// concurrent use.
type Converter struct {
	m      *Manager
	logger log.Logger

	functionIndex     map[functionKey]*pprofprofile.Function
	addrLocationIndex map[uint64]*pprofprofile.Location
	sampleIndex       map[sampleKey]*pprofprofile.Sample

	captureTime time.Time
	result      *pprofprofile.Profile
}

// NewConverter starts a profile captured at captureTime with one sample
// every periodNS nanoseconds of CPU time. mappings are the executable
// mappings of the process, see SelfMappings.
func (m *Manager) NewConverter(mappings []*pprofprofile.Mapping, captureTime time.Time, periodNS int64) *Converter {
	for i, mapping := range mappings {
		// pprof uses 1-indexing to be able to differentiate from 0 (unset).
		mapping.ID = uint64(i) + 1
	}

	return &Converter{
		m:      m,
		logger: m.logger,

		functionIndex:     map[functionKey]*pprofprofile.Function{},
		addrLocationIndex: map[uint64]*pprofprofile.Location{},
		sampleIndex:       map[sampleKey]*pprofprofile.Sample{},

		captureTime: captureTime,
		result: &pprofprofile.Profile{
			TimeNanos: captureTime.UnixNano(),
			Period:    periodNS,
			SampleType: []*pprofprofile.ValueType{{
				Type: "samples",
				Unit: "count",
			}},
			// Sampling at 100Hz would be every 10 Million nanoseconds.
			PeriodType: &pprofprofile.ValueType{
				Type: "cpu",
				Unit: "nanoseconds",
			},
			Mapping: mappings,
		},
	}
}

type sampleKey struct {
	stack    uint64
	threadID uint64
}

// Add adds one sample to the profile.
func (c *Converter) Add(s *profiler.RawSample) {
	stack := s.Stack()
	key := sampleKey{stack: stackKey(stack), threadID: s.ThreadID}
	if ps, ok := c.sampleIndex[key]; ok {
		ps.Value[0]++
		return
	}

	ps := &pprofprofile.Sample{
		Value:    []int64{1},
		Location: make([]*pprofprofile.Location, 0, len(stack)),
		Label: map[string][]string{
			threadIDLabel: {strconv.FormatUint(s.ThreadID, 10)},
		},
	}
	if name := string(s.Name()); name != "" {
		ps.Label[threadNameLabel] = []string{name}
	}

	for _, pc := range stack {
		addr := uint64(pc)
		m := mappingForAddr(c.result.Mapping, addr)
		if m == nil {
			c.m.metrics.frameDrop.WithLabelValues(labelFrameDropReasonMappingNil).Inc()
		}
		ps.Location = append(ps.Location, c.addAddrLocation(m, addr))
	}

	c.sampleIndex[key] = ps
	c.result.Sample = append(c.result.Sample, ps)
}

// Profile returns the profile built so far.
func (c *Converter) Profile() *pprofprofile.Profile {
	c.result.DurationNanos = int64(time.Since(c.captureTime))
	level.Debug(c.logger).Log("msg", "converted samples to pprof",
		"samples", len(c.result.Sample),
		"locations", len(c.result.Location),
		"functions", len(c.result.Function),
	)
	return c.result
}

func stackKey(stack []uintptr) uint64 {
	b := make([]byte, 0, 8*len(stack))
	for _, pc := range stack {
		b = binary.LittleEndian.AppendUint64(b, uint64(pc))
	}
	return xxhash.Sum64(b)
}

func mappingForAddr(mappings []*pprofprofile.Mapping, addr uint64) *pprofprofile.Mapping {
	for _, m := range mappings {
		if m.Start <= addr && addr < m.Limit {
			return m
		}
	}
	return nil
}

// addAddrLocation symbolizes addr against the running binary. Inlined calls
// become additional lines of the same location, innermost first.
func (c *Converter) addAddrLocation(m *pprofprofile.Mapping, addr uint64) *pprofprofile.Location {
	if l, ok := c.addrLocationIndex[addr]; ok {
		return l
	}

	l := &pprofprofile.Location{
		ID:      uint64(len(c.result.Location)) + 1,
		Mapping: m,
		Address: addr,
	}

	frames := runtime.CallersFrames([]uintptr{uintptr(addr)})
	for {
		frame, more := frames.Next()
		if frame.Function != "" {
			l.Line = append(l.Line, pprofprofile.Line{
				Function: c.addFunction(frame.Function, frame.File),
				Line:     int64(frame.Line),
			})
		}
		if !more {
			break
		}
	}
	if len(l.Line) == 0 {
		c.m.metrics.frameDrop.WithLabelValues(labelFrameDropReasonUnsymbolized).Inc()
	}

	c.addrLocationIndex[addr] = l
	c.result.Location = append(c.result.Location, l)

	return l
}

type functionKey struct {
	name     string
	filename string
}

func (c *Converter) addFunction(
	name string,
	filename string,
) *pprofprofile.Function {
	key := functionKey{name: name, filename: filename}
	if f, ok := c.functionIndex[key]; ok {
		return f
	}

	f := &pprofprofile.Function{
		ID:         uint64(len(c.result.Function) + 1),
		Name:       name,
		SystemName: name,
		Filename:   filename,
	}

	c.functionIndex[key] = f
	c.result.Function = append(c.result.Function, f)

	return f
}
