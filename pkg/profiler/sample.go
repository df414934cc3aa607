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
	"strings"

	"github.com/parca-dev/sigprof/pkg/thread"
)

const (
	// MaxDepth is the maximum number of frames kept per sample. Deeper
	// stacks are truncated.
	MaxDepth = 32
	// MaxThreadName is the capacity of the thread name of a sample.
	MaxThreadName = thread.NameLen
)

// RawSample is the unresolved result of one delivery of the profiling
// signal. It holds no pointers and is passed by value, so building and
// handing it over never allocates.
type RawSample struct {
	Frames [MaxDepth]uintptr
	Depth  int

	ThreadName    [MaxThreadName]byte
	ThreadNameLen int

	ThreadID uint64
}

// NewRawSample copies at most MaxDepth frames and MaxThreadName bytes of
// name into a new sample.
func NewRawSample(frames []uintptr, name []byte, threadID uint64) RawSample {
	var s RawSample
	s.Depth = copy(s.Frames[:], frames)
	s.ThreadNameLen = copy(s.ThreadName[:], name)
	s.ThreadID = threadID
	return s
}

// Stack returns the captured program counters, innermost first.
func (s *RawSample) Stack() []uintptr {
	return s.Frames[:s.Depth]
}

// Name returns the thread name bytes.
func (s *RawSample) Name() []byte {
	return s.ThreadName[:s.ThreadNameLen]
}

// String formats the sample for logs. It allocates and must not be used
// while sampling.
func (s *RawSample) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "thread=%q tid=%d frames=[", s.Name(), s.ThreadID)
	for i, pc := range s.Stack() {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%#x", pc)
	}
	b.WriteByte(']')
	return b.String()
}
