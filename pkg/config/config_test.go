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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		input   string
		want    *Config
		wantErr bool
	}{
		{
			name:    "empty",
			input:   ``,
			want:    nil,
			wantErr: true,
		},
		{
			name:  "comment only",
			input: `# comment`,
			want:  &Config{},
		},
		{
			name: "full",
			input: `blocklist:
- libc
- libgcc
sampling_frequency: 99
duration: 30s
sink_buffer_size: 1024
`,
			want: &Config{
				Blocklist:         []string{"libc", "libgcc"},
				SamplingFrequency: 99,
				Duration:          30 * time.Second,
				SinkBufferSize:    1024,
			},
		},
		{
			name:    "negative frequency",
			input:   `sampling_frequency: -1`,
			wantErr: true,
		},
		{
			name:    "bad duration",
			input:   `duration: soon`,
			wantErr: true,
		},
		{
			name:    "not yaml",
			input:   `blocklist: [`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Load([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestLoadEmpty(t *testing.T) {
	t.Parallel()

	_, err := Load(nil)
	require.ErrorIs(t, err, ErrEmptyConfig)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sigprof.yaml")
	require.NoError(t, os.WriteFile(path, []byte("blocklist: [libfoo]\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{"libfoo"}, cfg.Blocklist)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfigString(t *testing.T) {
	t.Parallel()

	c := Config{Blocklist: []string{"libfoo"}, SamplingFrequency: 19}
	require.Equal(t, "blocklist:\n    - libfoo\nsampling_frequency: 19\n", c.String())
}
