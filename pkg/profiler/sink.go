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

import "go.uber.org/atomic"

// Sink receives the samples produced by the profiler.
type Sink interface {
	// Sample is called while handling the profiling signal with the profiler
	// lock held. Implementations must not block, allocate or call back into
	// the profiler. It reports whether the sample was accepted.
	Sample(s RawSample) bool
}

// DiscardSink accepts and drops every sample. The profiler still counts them.
type DiscardSink struct{}

// Sample accepts s.
func (DiscardSink) Sample(RawSample) bool { return true }

// ChannelSink hands samples over to a consumer goroutine through a bounded
// channel. When the channel is full the sample is dropped.
type ChannelSink struct {
	c       chan RawSample
	dropped atomic.Uint64
}

// NewChannelSink returns a sink buffering up to size samples, at least one.
func NewChannelSink(size int) *ChannelSink {
	if size < 1 {
		size = 1
	}
	return &ChannelSink{c: make(chan RawSample, size)}
}

// Sample queues r without blocking and reports false if the channel is full.
func (s *ChannelSink) Sample(r RawSample) bool {
	select {
	case s.c <- r:
		return true
	default:
		s.dropped.Inc()
		return false
	}
}

// Samples returns the channel the accepted samples are sent on. It is never
// closed.
func (s *ChannelSink) Samples() <-chan RawSample {
	return s.c
}

// Dropped returns the number of samples dropped because the channel was full.
func (s *ChannelSink) Dropped() uint64 {
	return s.dropped.Load()
}
