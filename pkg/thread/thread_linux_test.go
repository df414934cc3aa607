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

package thread

import (
	"runtime"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestCaptureNamedThread(t *testing.T) {
	type result struct {
		id       uint64
		tid      int
		name     string
		fallback bool
	}
	done := make(chan result)

	go func() {
		// The thread is renamed, never hand it back to the scheduler: it is
		// terminated when this goroutine exits while still locked.
		runtime.LockOSThread()

		name := [NameLen]byte{}
		copy(name[:], "sigprof-worker")
		if err := unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&name[0])), 0, 0, 0); err != nil {
			done <- result{fallback: true}
			return
		}

		var buf [NameLen]byte
		id, n, fallback := Capture(&buf)
		done <- result{id: id, tid: unix.Gettid(), name: string(buf[:n]), fallback: fallback}
	}()

	res := <-done
	require.False(t, res.fallback)
	require.Equal(t, "sigprof-worker", res.name)
	require.Equal(t, uint64(res.tid), res.id)
}

func TestNameTruncatedToKernelLimit(t *testing.T) {
	done := make(chan string)

	go func() {
		runtime.LockOSThread()

		name := []byte("a-very-long-thread-name\x00")
		_ = unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&name[0])), 0, 0, 0)

		var buf [NameLen]byte
		n, _ := Name(&buf)
		done <- string(buf[:n])
	}()

	// TASK_COMM_LEN includes the terminating NUL.
	require.Equal(t, "a-very-long-thr", <-done)
}

func TestNameDoesNotAllocate(t *testing.T) {
	var buf [NameLen]byte
	allocs := testing.AllocsPerRun(100, func() {
		Name(&buf)
	})
	require.Zero(t, allocs)
}
