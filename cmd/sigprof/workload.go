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
	"math"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// workload keeps goroutines busy on the CPU so that the interval timer,
// which only counts CPU time, fires.
type workload struct {
	goroutines int
	duration   time.Duration

	iterations atomic.Uint64
}

func (w *workload) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.goroutines; i++ {
		g.Go(func() error {
			w.spin(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (w *workload) spin(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		w.iterations.Add(uint64(primes(20_000)))
	}
}

//go:noinline
func primes(limit int) int {
	n := 0
	for i := 2; i < limit; i++ {
		if isPrime(i) {
			n++
		}
	}
	return n
}

//go:noinline
func isPrime(v int) bool {
	sqrt := int(math.Sqrt(float64(v)))
	for d := 2; d <= sqrt; d++ {
		if v%d == 0 {
			return false
		}
	}
	return true
}
