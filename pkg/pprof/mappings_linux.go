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

	pprofprofile "github.com/google/pprof/profile"
	"github.com/prometheus/procfs"
)

// SelfMappings returns the executable mappings of the current process.
func SelfMappings() ([]*pprofprofile.Mapping, error) {
	proc, err := procfs.Self()
	if err != nil {
		return nil, fmt.Errorf("failed to open /proc/self: %w", err)
	}
	maps, err := proc.ProcMaps()
	if err != nil {
		return nil, fmt.Errorf("failed to read process mappings: %w", err)
	}
	return ConvertMappings(maps), nil
}
