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

// Package ucontext reads the machine context the kernel hands to a signal
// handler installed with SA_SIGINFO. It is the only place in the profiler
// that dereferences raw context pointers.
package ucontext

import "unsafe"

// Supported reports whether the program counter can be read from a machine
// context on this platform.
const Supported = supported

// PC returns the program counter saved in the machine context uc at the
// point of interruption. uc must be nil or point at a ucontext_t that stays
// valid for the duration of the call. It does not allocate and is safe to
// call from a signal handler.
func PC(uc unsafe.Pointer) (uintptr, bool) {
	if !supported || uc == nil {
		return 0, false
	}
	return uintptr(*(*uint64)(unsafe.Add(uc, pcOffset))), true
}

// Synthesize returns a zeroed machine context whose saved program counter
// is pc. It backs synthetic signal deliveries; on unsupported platforms it
// returns nil.
func Synthesize(pc uintptr) unsafe.Pointer {
	if !supported {
		return nil
	}
	uc := new([contextWords]uint64)
	uc[pcOffset/8] = uint64(pc)
	return unsafe.Pointer(uc)
}
