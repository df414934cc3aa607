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
	"unsafe"

	"golang.org/x/sys/unix"
)

// ID returns the kernel id of the calling OS thread.
func ID() uint64 {
	return uint64(unix.Gettid())
}

// Name reads the name of the calling OS thread into buf with
// prctl(PR_GET_NAME).
func Name(buf *[NameLen]byte) (int, bool) {
	_, _, errno := unix.RawSyscall(unix.SYS_PRCTL, unix.PR_GET_NAME, uintptr(unsafe.Pointer(buf)), 0)
	if errno != 0 {
		return 0, false
	}
	return nameLen(buf), true
}
