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
	"runtime"
	"unsafe"

	"github.com/parca-dev/sigprof/pkg/thread"
	"github.com/parca-dev/sigprof/pkg/ucontext"
)

// Frames skipped so that stacks start at the code that received the
// signal: runtime.Callers, captureStack, handleSignal and the entry point.
const skipFrames = 4

// SignalContext describes one delivery of the profiling signal.
type SignalContext struct {
	// UContext is the ucontext_t passed to an SA_SIGINFO handler, or nil if
	// the delivery path has no machine context. It only needs to be valid
	// for the duration of Deliver.
	UContext unsafe.Pointer
}

// Deliver runs the sampling routine on the calling thread as if it had
// just received the profiling signal. It is meant for embedders that
// install their own handler and can pass its machine context, and for
// synthetic deliveries. It never blocks, never allocates and never fails: a
// delivery that cannot be sampled is dropped.
func Deliver(ctx SignalContext) {
	handleSignal(ctx)
}

// dispatchSignal is called by the os/signal dispatcher goroutine.
func dispatchSignal() {
	handleSignal(SignalContext{})
}

func handleSignal(ctx SignalContext) {
	// Never block here: the interrupted thread may be the one holding the
	// lock.
	if !mtx.TryLock() {
		sampleMetrics.droppedLockContended.Inc()
		return
	}
	defer mtx.Unlock()

	p := global
	if p == nil || !p.running {
		return
	}

	pc, hasPC := ucontext.PC(ctx.UContext)
	if hasPC && p.IsBlocklisted(pc) {
		p.metrics.droppedBlocklisted.Inc()
		return
	}

	var pcs [MaxDepth + 1]uintptr
	n := captureStack(&pcs, pc, hasPC)

	var name [MaxThreadName]byte
	tid, nameLen, fallback := thread.Capture(&name)
	p.record(pcs[:n], name[:nameLen], tid, fallback)
}

// capturedStack is a delivery recorded by the signal trampoline on the
// interrupted thread itself. pcs[0] is the interrupted program counter and
// the remaining entries are return addresses.
type capturedStack struct {
	pcs     [MaxDepth + 1]uintptr
	depth   int
	name    [MaxThreadName]byte
	nameLen int
	tid     uint64
}

// handleCaptured samples a delivery recorded by the trampoline. It runs on
// the goroutine draining the trampoline and follows the same rules as
// handleSignal.
func handleCaptured(c *capturedStack) {
	if !mtx.TryLock() {
		sampleMetrics.droppedLockContended.Inc()
		return
	}
	defer mtx.Unlock()

	p := global
	if p == nil || !p.running {
		return
	}

	if c.depth > 0 && p.IsBlocklisted(c.pcs[0]) {
		p.metrics.droppedBlocklisted.Inc()
		return
	}

	depth := min(max(c.depth, 0), len(c.pcs))
	name, nameLen, fallback := c.name, c.nameLen, false
	if nameLen <= 0 || nameLen > MaxThreadName {
		nameLen = thread.EncodeID(c.tid, &name)
		fallback = true
	}
	p.record(c.pcs[:depth], name[:nameLen], c.tid, fallback)
}

// record truncates frames to MaxDepth and samples them. frames may hold one
// entry more than MaxDepth to signal that the stack was deeper.
func (p *Profiler) record(frames []uintptr, name []byte, tid uint64, fallback bool) {
	if len(frames) > MaxDepth {
		frames = frames[:MaxDepth]
		p.metrics.stackTruncated.Inc()
	}
	if fallback {
		p.metrics.threadNameFallback.Inc()
	}
	p.Sample(frames, name, tid)
}

// captureStack fills pcs with the interrupted program counter, when known,
// followed by the return addresses of the current goroutine. One slot more
// than MaxDepth is used so that truncation can be detected.
func captureStack(pcs *[MaxDepth + 1]uintptr, pc uintptr, hasPC bool) int {
	n := 0
	if hasPC {
		pcs[0] = pc
		n = 1
	}
	return n + runtime.Callers(skipFrames, pcs[n:])
}
