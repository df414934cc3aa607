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

// Package hash computes content digests used to detect changes in
// procfs files between profiler start cycles.
package hash

import (
	"encoding/hex"
	"hash"
	"io"

	"github.com/minio/highwayhash"
)

// The digests never leave the process, a fixed key is fine.
var key = mustDecode("5d3b4f0a6c1e92a87f40b1c3e6d5a2980c7e1f43b2a6d9e85f01c4a7b3e2d691")

func mustDecode(key string) []byte {
	keyBytes, err := hex.DecodeString(key)
	if err != nil {
		panic("cannot decode hex key: " + err.Error())
	}
	return keyBytes
}

// New returns a 64-bit highwayhash.
func New() (hash.Hash64, error) {
	return highwayhash.New64(key)
}

// Reader returns the digest of everything read from r.
func Reader(r io.Reader) (uint64, error) {
	h, err := New()
	if err != nil {
		return 0, err
	}

	if _, err := io.Copy(h, r); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
