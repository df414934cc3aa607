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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRawSample(t *testing.T) {
	s := NewRawSample([]uintptr{0x10, 0x20}, []byte("worker"), 42)
	require.Equal(t, []uintptr{0x10, 0x20}, s.Stack())
	require.Equal(t, []byte("worker"), s.Name())
	require.Equal(t, uint64(42), s.ThreadID)
	require.Equal(t, `thread="worker" tid=42 frames=[0x10 0x20]`, s.String())
}

func TestNewRawSampleTruncates(t *testing.T) {
	frames := make([]uintptr, 2*MaxDepth)
	for i := range frames {
		frames[i] = uintptr(i + 1)
	}
	name := []byte("a-thread-name-longer-than-the-buffer")

	s := NewRawSample(frames, name, 1)
	require.Equal(t, MaxDepth, s.Depth)
	require.Equal(t, frames[:MaxDepth], s.Stack())
	require.Equal(t, MaxThreadName, s.ThreadNameLen)
	require.Equal(t, name[:MaxThreadName], s.Name())
}

func TestChannelSink(t *testing.T) {
	sink := NewChannelSink(2)
	require.True(t, sink.Sample(NewRawSample(nil, nil, 1)))
	require.True(t, sink.Sample(NewRawSample(nil, nil, 2)))
	require.False(t, sink.Sample(NewRawSample(nil, nil, 3)))
	require.Equal(t, uint64(1), sink.Dropped())

	require.Equal(t, uint64(1), (<-sink.Samples()).ThreadID)
	require.Equal(t, uint64(2), (<-sink.Samples()).ThreadID)

	require.True(t, DiscardSink{}.Sample(RawSample{}))
	require.Equal(t, 1, cap(NewChannelSink(0).Samples()))
}
