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

package pprof

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	pprofprofile "github.com/google/pprof/profile"
	"github.com/klauspost/compress/gzip"
)

// WriteCompressed writes prof gzip compressed, the format pprof tools read.
func WriteCompressed(w io.Writer, prof *pprofprofile.Profile) error {
	zw, err := gzip.NewWriterLevel(w, gzip.BestSpeed)
	if err != nil {
		return err
	}
	if err := prof.WriteUncompressed(zw); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// FileProfileWriter writes profiles to a local directory.
type FileProfileWriter struct {
	dir string
}

// NewFileProfileWriter creates a new FileProfileWriter.
func NewFileProfileWriter(dirPath string) *FileProfileWriter {
	return &FileProfileWriter{dir: dirPath}
}

// Write stores prof in a new file and returns its path.
func (fw *FileProfileWriter) Write(prof *pprofprofile.Profile) (string, error) {
	name := fmt.Sprintf("cpu_%d_%03d.pb.gz", os.Getpid(), time.Now().UnixNano())

	if err := os.MkdirAll(fw.dir, 0o755); err != nil {
		return "", fmt.Errorf("could not use profile dir, %s: %w", fw.dir, err)
	}

	path := filepath.Join(fw.dir, name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return "", err
	}
	if err := WriteCompressed(f, prof); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}
