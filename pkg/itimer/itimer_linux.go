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

package itimer

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Supported reports whether the timer can be armed on this platform.
const Supported = true

// set arms ITIMER_VIRTUAL, which delivers SIGVTALRM. A zero period disarms
// it.
func set(period time.Duration) error {
	tv := unix.NsecToTimeval(period.Nanoseconds())
	if _, err := unix.Setitimer(unix.ItimerVirtual, unix.Itimerval{Interval: tv, Value: tv}); err != nil {
		return fmt.Errorf("setitimer: %w", err)
	}
	return nil
}

// current returns the interval of the armed timer.
func current() (time.Duration, error) {
	v, err := unix.Getitimer(unix.ItimerVirtual)
	if err != nil {
		return 0, fmt.Errorf("getitimer: %w", err)
	}
	return time.Duration(v.Interval.Nano()), nil
}
