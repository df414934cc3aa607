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

// Package thread captures the identity of the calling OS thread without
// allocating, so it can be used while handling a signal.
package thread

// NameLen is the capacity of a thread name buffer, the same as the kernel's
// TASK_COMM_LEN.
const NameLen = 16

// Capture writes the name of the calling OS thread into buf and returns the
// thread id and the name length. When the name cannot be read, or is empty,
// the decimal thread id is written instead and fallback is true.
func Capture(buf *[NameLen]byte) (id uint64, n int, fallback bool) {
	id = ID()
	if n, ok := Name(buf); ok && n > 0 {
		return id, n, false
	}
	return id, EncodeID(id, buf), true
}

// EncodeID writes the decimal digits of id into buf using arithmetic only
// and returns the number of digits written. Zero encodes as "0". Ids with
// more than NameLen digits keep their NameLen least significant digits.
// The rest of buf is zeroed.
func EncodeID(id uint64, buf *[NameLen]byte) int {
	n := 1
	for v := id / 10; v > 0 && n < NameLen; v /= 10 {
		n++
	}

	v := id
	for i := n - 1; i >= 0; i-- {
		buf[i] = '0' + byte(v%10)
		v /= 10
	}
	for i := n; i < NameLen; i++ {
		buf[i] = 0
	}
	return n
}

func nameLen(buf *[NameLen]byte) int {
	n := 0
	for n < NameLen && buf[n] != 0 {
		n++
	}
	return n
}
