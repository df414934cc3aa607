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
	"bytes"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	pprofprofile "github.com/google/pprof/profile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/procfs"
	"github.com/stretchr/testify/require"

	"github.com/parca-dev/sigprof/pkg/profiler"
)

//go:noinline
func callers() []uintptr {
	pcs := make([]uintptr, profiler.MaxDepth)
	return pcs[:runtime.Callers(1, pcs)]
}

func newTestConverter(t *testing.T, mappings []*pprofprofile.Mapping) (*Converter, *Manager) {
	t.Helper()
	m := NewManager(log.NewNopLogger(), prometheus.NewRegistry())
	return m.NewConverter(mappings, time.Now(), int64(10*time.Millisecond)), m
}

func TestConverterSymbolizes(t *testing.T) {
	c, _ := newTestConverter(t, nil)

	s := profiler.NewRawSample(callers(), []byte("worker"), 42)
	c.Add(&s)
	prof := c.Profile()
	require.NoError(t, prof.CheckValid())

	require.Len(t, prof.Sample, 1)
	sample := prof.Sample[0]
	require.Equal(t, []int64{1}, sample.Value)
	require.Equal(t, []string{"42"}, sample.Label[threadIDLabel])
	require.Equal(t, []string{"worker"}, sample.Label[threadNameLabel])

	require.NotEmpty(t, sample.Location[0].Line)
	require.Equal(t, "github.com/parca-dev/sigprof/pkg/pprof.callers", sample.Location[0].Line[0].Function.Name)
	require.Equal(t, "github.com/parca-dev/sigprof/pkg/pprof.TestConverterSymbolizes", sample.Location[1].Line[0].Function.Name)
}

func TestConverterMergesIdenticalStacks(t *testing.T) {
	c, _ := newTestConverter(t, nil)

	stack := callers()
	for i := 0; i < 3; i++ {
		s := profiler.NewRawSample(stack, []byte("a"), 1)
		c.Add(&s)
	}
	other := profiler.NewRawSample(stack, []byte("b"), 2)
	c.Add(&other)

	prof := c.Profile()
	require.NoError(t, prof.CheckValid())
	require.Len(t, prof.Sample, 2)
	require.Equal(t, int64(3), prof.Sample[0].Value[0])
	require.Equal(t, int64(1), prof.Sample[1].Value[0])
	// Locations and functions are shared.
	require.Len(t, prof.Location, len(stack))
	require.Equal(t, prof.Sample[0].Location, prof.Sample[1].Location)
}

func TestConverterMappings(t *testing.T) {
	stack := callers()
	pc := uint64(stack[0])

	mappings := []*pprofprofile.Mapping{
		{Start: 0x1000, Limit: 0x2000, File: "/lib/other.so"},
		{Start: pc - 1, Limit: pc + 1, File: "/proc/self/exe"},
	}
	c, m := newTestConverter(t, mappings)

	s := profiler.NewRawSample(stack[:2], nil, 1)
	c.Add(&s)
	prof := c.Profile()
	require.NoError(t, prof.CheckValid())

	require.Equal(t, uint64(2), prof.Mapping[1].ID)
	require.Same(t, mappings[1], prof.Sample[0].Location[0].Mapping)
	require.Nil(t, prof.Sample[0].Location[1].Mapping)
	require.NotContains(t, prof.Sample[0].Label, threadNameLabel)
	require.Equal(t, 1.0, testutil.ToFloat64(m.metrics.frameDrop.WithLabelValues(labelFrameDropReasonMappingNil)))
}

func TestConvertMappings(t *testing.T) {
	got := ConvertMappings([]*procfs.ProcMap{
		{StartAddr: 0x1000, EndAddr: 0x2000, Perms: &procfs.ProcMapPermissions{Read: true, Execute: true}, Offset: 0x100, Pathname: "/usr/bin/app"},
		{StartAddr: 0x2000, EndAddr: 0x3000, Perms: &procfs.ProcMapPermissions{Read: true}, Pathname: "/usr/bin/app"},
		{StartAddr: 0x4000, EndAddr: 0x5000, Perms: &procfs.ProcMapPermissions{Read: true, Execute: true}, Pathname: "[vdso]"},
		{StartAddr: 0x6000, EndAddr: 0x7000, Perms: &procfs.ProcMapPermissions{Read: true, Execute: true}},
	})
	want := []*pprofprofile.Mapping{{
		Start:           0x1000,
		Limit:           0x2000,
		Offset:          0x100,
		File:            "/usr/bin/app",
		HasFunctions:    true,
		HasFilenames:    true,
		HasLineNumbers:  true,
		HasInlineFrames: true,
	}}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreUnexported(pprofprofile.Mapping{})); diff != "" {
		t.Errorf("ConvertMappings() mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteCompressed(t *testing.T) {
	c, _ := newTestConverter(t, nil)
	s := profiler.NewRawSample(callers(), []byte("worker"), 42)
	c.Add(&s)

	var buf bytes.Buffer
	require.NoError(t, WriteCompressed(&buf, c.Profile()))

	prof, err := pprofprofile.Parse(&buf)
	require.NoError(t, err)
	require.Len(t, prof.Sample, 1)
	require.Equal(t, "cpu", prof.PeriodType.Type)
}

func TestFileProfileWriter(t *testing.T) {
	c, _ := newTestConverter(t, nil)

	path, err := NewFileProfileWriter(t.TempDir()).Write(c.Profile())
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	prof, err := pprofprofile.Parse(f)
	require.NoError(t, err)
	require.Empty(t, prof.Sample)
}
