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
	"os/signal"
	"runtime"
	"sync"
)

var errNoSignal = errors.New("no profiling signal available on this platform")

// registrar installs and removes the process handler of the profiling signal.
type registrar interface {
	register(sig os.Signal) error
	unregister(sig os.Signal) error
}

// osRegistrar relays signal deliveries from os/signal to a dispatcher
// goroutine locked to its own OS thread. It is the fallback on builds
// without the cgo trampoline: the Go runtime owns the real handler, so the
// machine context is lost and samples carry the stack and thread id of the
// dispatcher instead of the interrupted thread.
type osRegistrar struct {
	mtx  sync.Mutex
	c    chan os.Signal
	done chan struct{}
}

func newOSRegistrar() *osRegistrar {
	return &osRegistrar{}
}

func (r *osRegistrar) register(sig os.Signal) error {
	if err := checkSignal(sig); err != nil {
		return err
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	if r.c != nil {
		return errors.New("a handler is already registered")
	}

	// A single slot coalesces deliveries that arrive while a sample is being
	// taken; those are dropped.
	c := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(c, sig)
	go dispatch(c, done, dispatchSignal)

	r.c = c
	r.done = done
	return nil
}

func (r *osRegistrar) unregister(sig os.Signal) error {
	if sig == nil {
		return errNoSignal
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	signal.Ignore(sig)
	if r.c != nil {
		signal.Stop(r.c)
		close(r.done)
		r.c = nil
		r.done = nil
	}
	return nil
}

// dispatch does not wait for anything on exit: a delivery already being
// handled completes on its own.
func dispatch(c <-chan os.Signal, done <-chan struct{}, handle func()) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case <-done:
			return
		case <-c:
			handle()
		}
	}
}

func checkSignal(sig os.Signal) error {
	if sig == nil {
		return errNoSignal
	}
	for _, reserved := range reservedSignals {
		if sig == reserved {
			return fmt.Errorf("signal %v cannot be used for profiling", sig)
		}
	}
	return nil
}
