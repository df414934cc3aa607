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

package profiler

import (
	"errors"
	"fmt"
	"os"
)

var (
	ErrAlreadyRunning  = errors.New("cpu profiler is already running")
	ErrNotRunning      = errors.New("cpu profiler is not running")
	ErrCreating        = errors.New("failed to create cpu profiler")
	ErrBuilderConsumed = errors.New("profiler guard builder was already started")
)

// SignalError is returned when installing or removing the handler of the
// profiling signal fails.
type SignalError struct {
	Op     string
	Signal os.Signal
	Err    error
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("failed to %s handler for signal %v: %v", e.Op, e.Signal, e.Err)
}

func (e *SignalError) Unwrap() error { return e.Err }

// IOError wraps failures of OS calls made on the control path, such as
// reading the process mappings.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
