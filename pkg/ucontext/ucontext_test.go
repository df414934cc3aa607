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

package ucontext

import (
	"runtime"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestPCNilContext(t *testing.T) {
	pc, ok := PC(nil)
	require.False(t, ok)
	require.Zero(t, pc)
}

func TestSynthesizeRoundTrip(t *testing.T) {
	if !Supported {
		require.Nil(t, Synthesize(0x1234))
		t.Skipf("machine context is not supported on %s/%s", runtime.GOOS, runtime.GOARCH)
	}

	for _, want := range []uintptr{0, 1, 0x7f1a2b228123, ^uintptr(0)} {
		pc, ok := PC(Synthesize(want))
		require.True(t, ok)
		require.Equal(t, want, pc)
	}
}

func TestPCOffsetLayout(t *testing.T) {
	if !Supported {
		t.Skipf("machine context is not supported on %s/%s", runtime.GOOS, runtime.GOARCH)
	}

	var expected int
	switch runtime.GOARCH {
	case "amd64":
		expected = 168
	case "arm64":
		expected = 440
	}
	require.Equal(t, expected, pcOffset)
	require.Zero(t, pcOffset%8)
	require.Less(t, pcOffset+8, contextWords*8)

	// Only the program counter slot is read.
	var uc [contextWords]uint64
	for i := range uc {
		uc[i] = 0xdeadbeef
	}
	uc[pcOffset/8] = 0x4000
	pc, ok := PC(unsafe.Pointer(&uc))
	require.True(t, ok)
	require.Equal(t, uintptr(0x4000), pc)
}
