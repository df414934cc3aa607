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

package flags

import (
	"strconv"
	"time"

	"github.com/alecthomas/kong"
	log "github.com/sirupsen/logrus"

	"github.com/parca-dev/sigprof/pkg/config"
)

const (
	// We sample at 19Hz (19 times per second) because it is a prime number,
	// and primes are good to avoid collisions with other things
	// that may be happening periodically on a machine.
	defaultCPUSamplingFrequency = 19
	// Setting the CPU sampling frequency too high makes the sampling
	// routine itself show up in the profile.
	maxAdvicedCPUSamplingFrequency = 1000

	defaultSinkBufferSize = 4096
)

// Parse parses the command line into Flags.
func Parse() (Flags, error) {
	return parse(nil)
}

func parse(args []string, options ...kong.Option) (Flags, error) {
	flags := Flags{}
	options = append([]kong.Option{
		kong.Name("sigprof"),
		kong.Description("Samples the CPU usage of a busy workload with a signal driven profiler."),
		kong.Vars{
			"default_cpu_sampling_frequency": strconv.Itoa(defaultCPUSamplingFrequency),
			"default_sink_buffer_size":       strconv.Itoa(defaultSinkBufferSize),
		},
	}, options...)

	if args == nil {
		kong.Parse(&flags, options...)
	} else {
		parser, err := kong.New(&flags, options...)
		if err != nil {
			return Flags{}, err
		}
		if _, err := parser.Parse(args); err != nil {
			return Flags{}, err
		}
	}

	flags.Log.ConfigureLogger()

	return flags, nil
}

type Flags struct {
	Log         FlagsLogs `embed:""                         prefix:"log-"`
	HTTPAddress string    `default:"127.0.0.1:7071"         help:"Address to bind HTTP server to. Leave empty to disable."`
	Version     bool      `help:"Show application version."`

	ConfigPath string `default:"" help:"Path to config file. Settings in the file take precedence over flags."`

	Profiling FlagsProfiling `embed:"" prefix:"profiling-"`
	Workload  FlagsWorkload  `embed:"" prefix:"workload-"`
}

// MergeConfig overrides the flags with the settings given in cfg.
func (f *Flags) MergeConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if len(cfg.Blocklist) > 0 {
		f.Profiling.Blocklist = cfg.Blocklist
	}
	if cfg.SamplingFrequency > 0 {
		f.Profiling.CPUSamplingFrequency = cfg.SamplingFrequency
	}
	if cfg.Duration > 0 {
		f.Profiling.Duration = cfg.Duration
	}
	if cfg.SinkBufferSize > 0 {
		f.Profiling.SinkBufferSize = cfg.SinkBufferSize
	}
}

type ExitCode int

const (
	ExitSuccess ExitCode = 0
	ExitFailure ExitCode = 1

	// Go 'flag' package calls os.Exit(2) on flag parse errors, if ExitOnError is set
	ExitParseError ExitCode = 2
)

func ParseError(msg string, args ...interface{}) ExitCode {
	log.Errorf(msg, args...)
	return ExitParseError
}

func Failure(msg string, args ...interface{}) ExitCode {
	log.Errorf(msg, args...)
	return ExitFailure
}

func (f Flags) Validate() ExitCode {
	if f.Profiling.CPUSamplingFrequency <= 0 {
		return ParseError("Invalid argument for profiling-cpu-sampling-frequency: %d, must be positive",
			f.Profiling.CPUSamplingFrequency)
	}

	if f.Profiling.CPUSamplingFrequency > maxAdvicedCPUSamplingFrequency {
		log.Warnf("CPU sampling frequency %d is above %d, the profiler overhead will show in the profile",
			f.Profiling.CPUSamplingFrequency, maxAdvicedCPUSamplingFrequency)
	}

	if f.Profiling.Duration <= 0 {
		return ParseError("Invalid argument for profiling-duration: %s, must be positive", f.Profiling.Duration)
	}

	if f.Profiling.SinkBufferSize <= 0 {
		return ParseError("Invalid argument for profiling-sink-buffer-size: %d, must be positive",
			f.Profiling.SinkBufferSize)
	}

	if f.Workload.Goroutines <= 0 {
		return ParseError("Invalid argument for workload-goroutines: %d, must be positive", f.Workload.Goroutines)
	}

	return ExitSuccess
}

// FlagsProfiling contains flags to configure the profiling session.
type FlagsProfiling struct {
	Duration             time.Duration `default:"10s"                               help:"How long to profile the workload for."`
	CPUSamplingFrequency int           `default:"${default_cpu_sampling_frequency}" help:"The frequency at which profiling data is collected, e.g., 19 samples per second of CPU time."`
	Blocklist            []string      `help:"Substrings of the paths of shared objects whose code must never be sampled."`
	SinkBufferSize       int           `default:"${default_sink_buffer_size}"       help:"Number of samples buffered between the signal handler and the consumer."`
	OutputDir            string        `default:""                                  help:"Directory to write the pprof profile to when profiling ends. Leave empty to skip."`
}

// FlagsWorkload contains flags to configure the busy workload that is
// profiled.
type FlagsWorkload struct {
	Goroutines int `default:"4" help:"Number of goroutines spinning on the CPU."`
}

type FlagsLogs struct {
	Level  string `default:"info"   enum:"error,warn,info,debug" help:"Log level."`
	Format string `default:"logfmt" enum:"logfmt,json"           help:"Configure if structured logging as JSON or as logfmt"`
}

func (f FlagsLogs) logrusLevel() log.Level {
	switch f.Level {
	case "error":
		return log.ErrorLevel
	case "warn":
		return log.WarnLevel
	case "info":
		return log.InfoLevel
	case "debug":
		return log.DebugLevel
	default:
		return log.InfoLevel
	}
}

func (f FlagsLogs) logrusFormatter() log.Formatter {
	switch f.Format {
	case "logfmt":
		return &log.TextFormatter{}
	case "json":
		return &log.JSONFormatter{}
	default:
		return &log.TextFormatter{}
	}
}

// ConfigureLogger configures the logger used to report flag errors, before
// the application logger exists.
func (f FlagsLogs) ConfigureLogger() {
	log.SetLevel(f.logrusLevel())
	log.SetFormatter(f.logrusFormatter())
}
