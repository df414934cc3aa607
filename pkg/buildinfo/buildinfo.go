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

// Package buildinfo reads what the Go toolchain stamped into the binary.
package buildinfo

import (
	"errors"
	"runtime/debug"
)

type BuildInfo struct {
	Path, GoVersion                    string
	GoArch, GoOs, VcsRevision, VcsTime string
	VcsModified                        bool
}

// Revision returns the VCS revision, suffixed when the tree was dirty.
func (b BuildInfo) Revision() string {
	if b.VcsRevision == "" {
		return "unknown"
	}
	if b.VcsModified {
		return b.VcsRevision + "-dirty"
	}
	return b.VcsRevision
}

func FetchBuildInfo() (*BuildInfo, error) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return nil, errors.New("can't read the build info")
	}
	return fromDebug(bi), nil
}

func fromDebug(bi *debug.BuildInfo) *BuildInfo {
	buildInfo := BuildInfo{
		Path:      bi.Path,
		GoVersion: bi.GoVersion,
	}

	for _, setting := range bi.Settings {
		key := setting.Key
		value := setting.Value

		switch key {
		case "GOARCH":
			buildInfo.GoArch = value
		case "GOOS":
			buildInfo.GoOs = value
		case "vcs.revision":
			buildInfo.VcsRevision = value
		case "vcs.time":
			buildInfo.VcsTime = value
		case "vcs.modified":
			buildInfo.VcsModified = value == "true"
		}
	}

	return &buildInfo
}
