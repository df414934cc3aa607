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
	pprofprofile "github.com/google/pprof/profile"
	"github.com/prometheus/procfs"
)

// ConvertMappings turns the executable file backed entries of a maps file
// into pprof mappings.
func ConvertMappings(maps []*procfs.ProcMap) []*pprofprofile.Mapping {
	res := make([]*pprofprofile.Mapping, 0, len(maps))
	for _, m := range maps {
		if m.Perms == nil || !m.Perms.Execute || m.Pathname == "" || m.Pathname[0] == '[' {
			continue
		}
		res = append(res, &pprofprofile.Mapping{
			Start:  uint64(m.StartAddr),
			Limit:  uint64(m.EndAddr),
			Offset: uint64(m.Offset),
			File:   m.Pathname,
			// Symbolized in process.
			HasFunctions:    true,
			HasFilenames:    true,
			HasLineNumbers:  true,
			HasInlineFrames: true,
		})
	}
	return res
}
