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

package testutil

import (
	"bytes"
	"io"
	"io/fs"
	"sync"
)

type fakefile struct {
	content io.Reader
}

func (f *fakefile) Stat() (fs.FileInfo, error) { return nil, nil }
func (f *fakefile) Read(b []byte) (int, error) { return f.content.Read(b) }
func (f *fakefile) Close() error               { return nil }

// FakeFS is an in-memory fs.FS whose files can be replaced between reads,
// e.g. to emulate a process loading a new shared object.
type FakeFS struct {
	mtx   sync.Mutex
	data  map[string][]byte
	opens map[string]int
}

func (f *FakeFS) Open(name string) (fs.File, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	f.opens[name]++
	d, ok := f.data[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return &fakefile{content: bytes.NewReader(d)}, nil
}

// Set replaces the content of the named file.
func (f *FakeFS) Set(name string, content []byte) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.data[name] = content
}

// Opens returns how many times the named file was opened.
func (f *FakeFS) Opens(name string) int {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.opens[name]
}

type errorfs struct{ err error }

func (f *errorfs) Open(string) (fs.File, error) {
	return nil, f.err
}

func NewFakeFS(files map[string][]byte) *FakeFS {
	data := make(map[string][]byte, len(files))
	for k, v := range files {
		data[k] = v
	}
	return &FakeFS{data: data, opens: map[string]int{}}
}

func NewErrorFS(err error) fs.FS {
	return &errorfs{err}
}
