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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	runtimepprof "runtime/pprof"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	okrun "github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/procfs"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/parca-dev/sigprof/flags"
	"github.com/parca-dev/sigprof/pkg/buildinfo"
	"github.com/parca-dev/sigprof/pkg/config"
	"github.com/parca-dev/sigprof/pkg/itimer"
	"github.com/parca-dev/sigprof/pkg/logger"
	"github.com/parca-dev/sigprof/pkg/pprof"
	"github.com/parca-dev/sigprof/pkg/profiler"
)

var (
	version string
	commit  string
	date    string
	goArch  string
)

func main() {
	os.Exit(int(mainWithExitCode()))
}

func mainWithExitCode() flags.ExitCode {
	f, err := flags.Parse()
	if err != nil {
		return flags.ParseError("Failed to parse flags: %v", err)
	}

	if f.Version {
		fmt.Printf("sigprof, version %s (commit: %s, date: %s), arch: %s\n", version, commit, date, goArch)
		return flags.ExitSuccess
	}

	if f.ConfigPath != "" {
		cfg, err := config.LoadFile(f.ConfigPath)
		if err != nil {
			return flags.Failure("Failed to read config: %v", err)
		}
		f.MergeConfig(cfg)
	}

	if code := f.Validate(); code != flags.ExitSuccess {
		return code
	}

	logger := logger.NewLogger(f.Log.Level, f.Log.Format, "sigprof")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	intro := figure.NewColorFigure("sigprof ", "roman", "yellow", true)
	intro.Print()

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, a ...interface{}) {
		level.Info(logger).Log("msg", fmt.Sprintf(format, a...))
	})); err != nil {
		level.Warn(logger).Log("msg", "failed to set GOMAXPROCS automatically", "err", err)
	}

	if err := run(logger, reg, f); err != nil {
		level.Error(logger).Log("err", err)
		return flags.ExitFailure
	}
	return flags.ExitSuccess
}

func run(logger log.Logger, reg *prometheus.Registry, f flags.Flags) error {
	// Fetch build info such as the git revision we are based off
	buildInfo, err := buildinfo.FetchBuildInfo()
	if err != nil {
		return fmt.Errorf("failed to fetch build info: %w", err)
	}

	if commit == "" {
		commit = buildInfo.Revision()
	}
	if date == "" {
		date = buildInfo.VcsTime
	}
	if goArch == "" {
		goArch = buildInfo.GoArch
	}
	level.Debug(logger).Log("msg", "sigprof initialized",
		"version", version,
		"commit", commit,
		"date", date,
		"config", fmt.Sprintf("%+v", f),
		"arch", goArch,
		"go", buildInfo.GoVersion,
	)

	if !itimer.Supported {
		return errors.New("the profiling timer is not supported on this platform")
	}

	period, err := itimer.Period(f.Profiling.CPUSamplingFrequency)
	if err != nil {
		return err
	}

	mappings, err := pprof.SelfMappings()
	if err != nil {
		level.Warn(logger).Log("msg", "failed to read process mappings, profile will have no mappings", "err", err)
	}

	var (
		ctx = context.Background()

		g        okrun.Group
		sink     = profiler.NewChannelSink(f.Profiling.SinkBufferSize)
		consumer = newConsumer(logger, sink, pprof.NewManager(logger, reg).NewConverter(mappings, time.Now(), period.Nanoseconds()))
		work     = &workload{goroutines: f.Workload.Goroutines, duration: f.Profiling.Duration}
	)

	guard, err := profiler.NewGuardBuilder().
		WithLogger(logger).
		WithRegisterer(reg).
		WithSink(sink).
		Blocklist(f.Profiling.Blocklist...).
		Start()
	if err != nil {
		return fmt.Errorf("failed to start profiler: %w", err)
	}
	defer func() {
		if err := guard.Stop(); err != nil && !errors.Is(err, profiler.ErrNotRunning) {
			level.Warn(logger).Log("msg", "failed to stop profiler", "err", err)
		}
	}()

	if err := itimer.Start(f.Profiling.CPUSamplingFrequency); err != nil {
		return fmt.Errorf("failed to arm profiling timer: %w", err)
	}
	defer func() {
		if err := itimer.Stop(); err != nil {
			level.Warn(logger).Log("msg", "failed to disarm profiling timer", "err", err)
		}
	}()

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			var err error
			runtimepprof.Do(ctx, runtimepprof.Labels("component", "sample_consumer"), func(ctx context.Context) {
				err = consumer.Run(ctx)
			})
			return err
		}, func(error) {
			cancel()
		})
	}

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			level.Info(logger).Log("msg", "profiling workload", "duration", f.Profiling.Duration, "goroutines", f.Workload.Goroutines, "frequency", f.Profiling.CPUSamplingFrequency)
			defer level.Debug(logger).Log("msg", "stopped: workload")

			var err error
			runtimepprof.Do(ctx, runtimepprof.Labels("component", "workload"), func(ctx context.Context) {
				err = work.Run(ctx)
			})
			return err
		}, func(error) {
			cancel()
		})
	}

	if f.HTTPAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		mux.HandleFunc("/samples", consumer.handleSamples)
		mux.HandleFunc("/debug/sigprof/profile", consumer.handleProfile)

		ln, err := net.Listen("tcp", f.HTTPAddress)
		if err != nil {
			return fmt.Errorf("failed to listen: %w", err)
		}
		g.Add(func() error {
			level.Info(logger).Log("msg", "serving metrics and samples", "address", ln.Addr())
			return http.Serve(ln, mux)
		}, func(error) {
			ln.Close()
		})
	}

	g.Add(okrun.SignalHandler(ctx, os.Interrupt, os.Kill))

	err = g.Run()
	var sigErr okrun.SignalError
	if err != nil && !errors.As(err, &sigErr) {
		return err
	}

	if err := itimer.Stop(); err != nil {
		return fmt.Errorf("failed to disarm profiling timer: %w", err)
	}
	samples := profiler.SampleCount()
	if err := guard.Stop(); err != nil {
		return fmt.Errorf("failed to stop profiler: %w", err)
	}
	consumer.drain()

	prof := consumer.Profile()
	if f.Profiling.OutputDir != "" {
		path, err := pprof.NewFileProfileWriter(f.Profiling.OutputDir).Write(prof)
		if err != nil {
			return fmt.Errorf("failed to write profile: %w", err)
		}
		level.Info(logger).Log("msg", "profile written", "path", path)
	}

	printSummary(os.Stdout, logger, summary{
		samples:    samples,
		dropped:    sink.Dropped(),
		iterations: work.iterations.Load(),
		frequency:  f.Profiling.CPUSamplingFrequency,
		threads:    consumer.Threads(),
		functions:  topFunctions(prof, 10),
	})
	return nil
}

type summary struct {
	samples    uint64
	dropped    uint64
	iterations uint64
	frequency  int
	threads    []threadSamples
	functions  []functionSamples
}

func printSummary(w io.Writer, logger log.Logger, s summary) {
	fmt.Fprintf(w, "\nsamples taken:    %s\n", humanize.Comma(int64(s.samples)))
	fmt.Fprintf(w, "samples dropped:  %s\n", humanize.Comma(int64(s.dropped)))
	fmt.Fprintf(w, "workload primes:  %s\n", humanize.Comma(int64(s.iterations)))

	if cpu, err := processCPUTime(); err != nil {
		level.Debug(logger).Log("msg", "failed to read process cpu time", "err", err)
	} else {
		expected := cpu.Seconds() * float64(s.frequency)
		fmt.Fprintf(w, "process cpu time: %s (about %s samples expected at %dHz)\n",
			cpu.Round(time.Millisecond), humanize.CommafWithDigits(expected, 0), s.frequency)
	}

	fmt.Fprintf(w, "\nthreads:\n")
	for _, t := range s.threads {
		fmt.Fprintf(w, "  %-16s %8d %10s\n", t.Name, t.ID, humanize.Comma(int64(t.Samples)))
	}

	fmt.Fprintf(w, "\ntop functions:\n")
	for _, fn := range s.functions {
		fmt.Fprintf(w, "  %10s  %s\n", humanize.Comma(fn.samples), fn.name)
	}
}

func processCPUTime() (time.Duration, error) {
	proc, err := procfs.Self()
	if err != nil {
		return 0, err
	}
	stat, err := proc.Stat()
	if err != nil {
		return 0, err
	}
	return time.Duration(stat.CPUTime() * float64(time.Second)), nil
}
