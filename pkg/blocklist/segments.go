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

// Package blocklist computes the address ranges of loaded shared objects
// that must never be sampled.
package blocklist

import "fmt"

// Segment is the virtual address range [Start, End) of one mapped segment
// of a shared object.
type Segment struct {
	Start uintptr
	End   uintptr
}

func (s Segment) String() string {
	return fmt.Sprintf("%#x-%#x", s.Start, s.End)
}

// Segments is an ordered list of blocklisted segments. It is immutable once
// handed to the profiler and is scanned from the signal path, so it must
// not be modified while a profiler is running with it.
type Segments []Segment

// Contains reports whether addr lies strictly inside any of the segments.
// It does not allocate.
func (ss Segments) Contains(addr uintptr) bool {
	for i := range ss {
		if addr > ss[i].Start && addr < ss[i].End {
			return true
		}
	}
	return false
}
