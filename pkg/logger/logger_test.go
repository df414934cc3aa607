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

package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/go-kit/log/level"
	"github.com/stretchr/testify/require"
)

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", LogFormatLogfmt, "sigprof")

	level.Info(logger).Log("msg", "hidden")
	require.Empty(t, buf.String())

	level.Warn(logger).Log("msg", "shown")
	require.Contains(t, buf.String(), "msg=shown")
	require.Contains(t, buf.String(), "name=sigprof")
	require.Contains(t, buf.String(), "level=warn")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "debug", LogFormatJSON, "")

	level.Debug(logger).Log("msg", "starting cpu profiler")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "starting cpu profiler", line["msg"])
	require.NotContains(t, line, "name")
}

func TestUnknownLevelPanics(t *testing.T) {
	require.Panics(t, func() {
		NewLogger("trace", LogFormatLogfmt, "")
	})
}
