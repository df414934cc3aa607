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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPeriod(t *testing.T) {
	for _, tc := range []struct {
		frequency int
		want      time.Duration
	}{
		{frequency: 1, want: time.Second},
		{frequency: 19, want: 52631578 * time.Nanosecond},
		{frequency: 100, want: 10 * time.Millisecond},
		{frequency: 10_000_000, want: time.Microsecond},
	} {
		got, err := Period(tc.frequency)
		require.NoError(t, err)
		require.Equal(t, tc.want, got, "frequency %d", tc.frequency)
	}

	for _, frequency := range []int{0, -1} {
		_, err := Period(frequency)
		require.ErrorIs(t, err, ErrInvalidFrequency)
	}
}
