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

// Package itimer arms the process interval timer that raises the profiling
// signal while the process consumes CPU time.
package itimer

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidFrequency = errors.New("sampling frequency must be positive")

// Period returns the interval between two samples at frequency Hz. The
// kernel does not go below one microsecond.
func Period(frequency int) (time.Duration, error) {
	if frequency <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidFrequency, frequency)
	}
	period := time.Second / time.Duration(frequency)
	if period < time.Microsecond {
		period = time.Microsecond
	}
	return period, nil
}

// Start arms the timer to fire frequency times per second of CPU time
// consumed by the process.
func Start(frequency int) error {
	period, err := Period(frequency)
	if err != nil {
		return err
	}
	return set(period)
}

// Stop disarms the timer. Stopping a disarmed timer is not an error.
func Stop() error {
	return set(0)
}
