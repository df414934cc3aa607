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

package blocklist

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/pprof/profile"

	"github.com/parca-dev/sigprof/pkg/hash"
)

const defaultMapsFile = "/proc/self/maps"

type realfs struct{}

func (f *realfs) Open(name string) (fs.File, error) {
	return os.Open(name)
}

// Resolver enumerates the shared objects loaded into the current process and
// turns name matches into address ranges. It reads procfs and allocates, so
// it must only be called from the control path, never while sampling.
type Resolver struct {
	logger   log.Logger
	fs       fs.FS
	mapsFile string

	mtx sync.Mutex
	// Parsed mappings of the last read, keyed by the digest of the maps file.
	digest   uint64
	mappings []*profile.Mapping
}

type Option func(*Resolver)

// WithFS makes the resolver read mapsFile from fsys instead of the live
// /proc/self/maps.
func WithFS(fsys fs.FS, mapsFile string) Option {
	return func(r *Resolver) {
		r.fs = fsys
		r.mapsFile = mapsFile
	}
}

func NewResolver(logger log.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	r := &Resolver{
		logger:   logger,
		fs:       &realfs{},
		mapsFile: defaultMapsFile,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the segments of every loaded shared object whose path
// contains one of names. Only executable mappings are considered since the
// blocklist is matched against program counters. On platforms without a
// maps file the result is empty.
//
// The maps file is read in full on every call, since objects may have been
// loaded or unloaded in between. Only the parse of an unchanged file is
// cached.
func (r *Resolver) Resolve(names []string) (Segments, error) {
	if len(names) == 0 {
		return nil, nil
	}

	mappings, err := r.loadedObjects()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			level.Debug(r.logger).Log("msg", "shared object enumeration is not supported, blocklist is empty", "file", r.mapsFile)
			return nil, nil
		}
		return nil, err
	}

	var (
		segments Segments
		matched  = map[string]int{}
	)
	for _, m := range mappings {
		if !isSharedObject(m.File) || !matches(m.File, names) {
			continue
		}
		segments = append(segments, Segment{Start: uintptr(m.Start), End: uintptr(m.Limit)})
		matched[m.File]++
	}

	for file, n := range matched {
		level.Debug(r.logger).Log("msg", "blocklisted shared object", "object", file, "segments", n)
	}
	return segments, nil
}

// loadedObjects reads the maps file and returns its parsed mappings. The
// parsed mappings are reused while the digest of the contents is unchanged.
func (r *Resolver) loadedObjects() ([]*profile.Mapping, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	f, err := r.fs.Open(r.mapsFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	digest, err := hash.Reader(io.TeeReader(f, &buf))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.mapsFile, err)
	}
	if r.mappings != nil && digest == r.digest {
		return r.mappings, nil
	}

	mappings, err := profile.ParseProcMaps(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", r.mapsFile, err)
	}
	if mappings == nil {
		mappings = []*profile.Mapping{}
	}

	r.digest = digest
	r.mappings = mappings
	return mappings, nil
}

func matches(path string, names []string) bool {
	for _, name := range names {
		if name != "" && strings.Contains(path, name) {
			return true
		}
	}
	return false
}

func isSharedObject(path string) bool {
	path = strings.TrimSpace(path)
	return path != "" &&
		!strings.HasPrefix(path, "[") &&
		!strings.HasPrefix(path, "anon_inode:[") &&
		!strings.Contains(path, "memfd:")
}
