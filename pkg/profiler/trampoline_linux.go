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
//go:build cgo && (amd64 || arm64)

package profiler

/*
#cgo CFLAGS: -O2 -D_GNU_SOURCE

#include <errno.h>
#include <signal.h>
#include <stdint.h>
#include <string.h>
#include <sys/prctl.h>
#include <sys/syscall.h>
#include <sys/uio.h>
#include <ucontext.h>
#include <unistd.h>

enum {
	SIGPROF_DEPTH = 33,
	SIGPROF_NAME_LEN = 16,
	SIGPROF_SLOTS = 64,
	// Largest distance between two frame pointers that is still followed.
	SIGPROF_FRAME_LIMIT = 1 << 16,
};

enum {
	SIGPROF_SLOT_FREE,
	SIGPROF_SLOT_WRITING,
	SIGPROF_SLOT_READY,
};

typedef struct {
	uint64_t tid;
	uint64_t depth;
	uint64_t pcs[SIGPROF_DEPTH];
	char name[SIGPROF_NAME_LEN];
} sigprof_sample;

typedef struct {
	uint32_t state;
	sigprof_sample sample;
} sigprof_slot;

static sigprof_slot sigprof_slots[SIGPROF_SLOTS];
static int sigprof_wake_fd = -1;
static int sigprof_in_flight;
static uint64_t sigprof_dropped;
static struct sigaction sigprof_previous;

// Reads the saved frame pointer and return address at fp. A bad address
// makes the syscall fail with EFAULT instead of faulting the handler.
static int sigprof_read_frame(uintptr_t fp, uintptr_t frame[2]) {
	struct iovec local = { frame, 2 * sizeof(uintptr_t) };
	struct iovec remote = { (void *)fp, 2 * sizeof(uintptr_t) };
	return process_vm_readv(getpid(), &local, 1, &remote, 1, 0) == (ssize_t)(2 * sizeof(uintptr_t));
}

static void sigprof_handler(int sig, siginfo_t *info, void *ctx) {
	ucontext_t *uc = ctx;
	sigprof_slot *slot = NULL;
	uintptr_t pc, sp, fp;
	uint64_t n;
	int saved_errno = errno;
	int fd, i;

	(void)sig;
	(void)info;

	__atomic_add_fetch(&sigprof_in_flight, 1, __ATOMIC_SEQ_CST);
	fd = __atomic_load_n(&sigprof_wake_fd, __ATOMIC_SEQ_CST);
	if (fd < 0)
		goto out;

	for (i = 0; i < SIGPROF_SLOTS; i++) {
		uint32_t expected = SIGPROF_SLOT_FREE;
		if (__atomic_compare_exchange_n(&sigprof_slots[i].state, &expected, SIGPROF_SLOT_WRITING, 0,
				__ATOMIC_ACQUIRE, __ATOMIC_RELAXED)) {
			slot = &sigprof_slots[i];
			break;
		}
	}
	if (slot == NULL) {
		__atomic_add_fetch(&sigprof_dropped, 1, __ATOMIC_RELAXED);
		goto out;
	}

#if defined(__x86_64__)
	pc = (uintptr_t)uc->uc_mcontext.gregs[REG_RIP];
	sp = (uintptr_t)uc->uc_mcontext.gregs[REG_RSP];
	fp = (uintptr_t)uc->uc_mcontext.gregs[REG_RBP];
#elif defined(__aarch64__)
	pc = (uintptr_t)uc->uc_mcontext.pc;
	sp = (uintptr_t)uc->uc_mcontext.sp;
	fp = (uintptr_t)uc->uc_mcontext.regs[29];
#endif

	slot->sample.tid = (uint64_t)syscall(SYS_gettid);
	slot->sample.pcs[0] = pc;
	n = 1;
	while (n < SIGPROF_DEPTH && fp >= sp && fp - sp < SIGPROF_FRAME_LIMIT && (fp & (sizeof(uintptr_t) - 1)) == 0) {
		uintptr_t frame[2];
		if (!sigprof_read_frame(fp, frame) || frame[1] == 0)
			break;
		slot->sample.pcs[n++] = frame[1];
		sp = fp + 1;
		fp = frame[0];
	}
	slot->sample.depth = n;

	memset(slot->sample.name, 0, SIGPROF_NAME_LEN);
	if (prctl(PR_GET_NAME, slot->sample.name) != 0)
		slot->sample.name[0] = 0;

	__atomic_store_n(&slot->state, SIGPROF_SLOT_READY, __ATOMIC_RELEASE);
	{
		char b = 0;
		ssize_t r = write(fd, &b, 1);
		(void)r;
	}

out:
	__atomic_sub_fetch(&sigprof_in_flight, 1, __ATOMIC_SEQ_CST);
	errno = saved_errno;
}

static int sigprof_install(int sig, int wake_fd) {
	struct sigaction sa;
	int i;

	for (i = 0; i < SIGPROF_SLOTS; i++)
		__atomic_store_n(&sigprof_slots[i].state, SIGPROF_SLOT_FREE, __ATOMIC_RELAXED);
	__atomic_store_n(&sigprof_dropped, 0, __ATOMIC_RELAXED);
	__atomic_store_n(&sigprof_wake_fd, wake_fd, __ATOMIC_SEQ_CST);

	memset(&sa, 0, sizeof(sa));
	sa.sa_sigaction = sigprof_handler;
	sa.sa_flags = SA_SIGINFO | SA_ONSTACK | SA_RESTART;
	sigemptyset(&sa.sa_mask);
	if (sigaction(sig, &sa, &sigprof_previous) != 0) {
		int err = errno;
		__atomic_store_n(&sigprof_wake_fd, -1, __ATOMIC_SEQ_CST);
		return err;
	}
	return 0;
}

static int sigprof_uninstall(int sig) {
	__atomic_store_n(&sigprof_wake_fd, -1, __ATOMIC_SEQ_CST);
	if (sigaction(sig, &sigprof_previous, NULL) != 0)
		return errno;
	return 0;
}

static int sigprof_handlers_running(void) {
	return __atomic_load_n(&sigprof_in_flight, __ATOMIC_SEQ_CST);
}

static int sigprof_take(sigprof_sample *out) {
	int i;

	for (i = 0; i < SIGPROF_SLOTS; i++) {
		if (__atomic_load_n(&sigprof_slots[i].state, __ATOMIC_ACQUIRE) != SIGPROF_SLOT_READY)
			continue;
		memcpy(out, &sigprof_slots[i].sample, sizeof(*out));
		__atomic_store_n(&sigprof_slots[i].state, SIGPROF_SLOT_FREE, __ATOMIC_RELEASE);
		return 1;
	}
	return 0;
}

static uint64_t sigprof_take_dropped(void) {
	return __atomic_exchange_n(&sigprof_dropped, 0, __ATOMIC_RELAXED);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

func newRegistrar() registrar {
	return &trampolineRegistrar{}
}

// trampolineRegistrar installs a C SA_SIGINFO handler for the profiling
// signal. The handler runs on the interrupted thread and records its program
// counter, frame pointer chain, thread id and thread name into a fixed array
// of slots without calling into Go. A goroutine woken through a pipe drains
// the slots into the profiler.
//
// Frames are recovered by walking frame pointers, which Go maintains on
// amd64 and arm64. Code built without them yields the interrupted program
// counter and whatever part of the chain can be read.
type trampolineRegistrar struct {
	mtx    sync.Mutex
	wake   *os.File
	wakeFD int
	done   chan struct{}
}

func (r *trampolineRegistrar) register(sig os.Signal) error {
	if err := checkSignal(sig); err != nil {
		return err
	}
	s, ok := sig.(syscall.Signal)
	if !ok {
		return fmt.Errorf("signal %v is not a system signal", sig)
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	if r.wake != nil {
		return errors.New("a handler is already registered")
	}

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return fmt.Errorf("failed to create wake pipe: %w", err)
	}
	if errno := C.sigprof_install(C.int(s), C.int(fds[1])); errno != 0 {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return syscall.Errno(errno)
	}

	// The read end is non-blocking, so reads park on the runtime poller.
	r.wake = os.NewFile(uintptr(fds[0]), "sigprof-wake")
	r.wakeFD = fds[1]
	r.done = make(chan struct{})
	go drainTrampoline(r.wake, r.done)
	return nil
}

func (r *trampolineRegistrar) unregister(sig os.Signal) error {
	if sig == nil {
		return errNoSignal
	}
	s, ok := sig.(syscall.Signal)
	if !ok {
		return fmt.Errorf("signal %v is not a system signal", sig)
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	if r.wake == nil {
		return nil
	}

	if errno := C.sigprof_uninstall(C.int(s)); errno != 0 {
		return syscall.Errno(errno)
	}
	// A handler that started before the uninstall may still hold the wake
	// descriptor.
	for C.sigprof_handlers_running() > 0 {
		time.Sleep(time.Millisecond)
	}

	// Closing the write end makes the drainer read EOF.
	unix.Close(r.wakeFD)
	<-r.done
	err := r.wake.Close()

	r.wake = nil
	r.wakeFD = -1
	r.done = nil
	return err
}

func drainTrampoline(wake *os.File, done chan<- struct{}) {
	defer close(done)

	buf := make([]byte, 64)
	for {
		_, err := wake.Read(buf)
		takeCaptured()
		if err != nil {
			return
		}
	}
}

// takeCaptured hands every recorded delivery to the profiler.
func takeCaptured() {
	var (
		s C.sigprof_sample
		c capturedStack
	)
	for C.sigprof_take(&s) != 0 {
		c.tid = uint64(s.tid)
		c.depth = min(int(s.depth), len(c.pcs))
		for i := 0; i < c.depth; i++ {
			c.pcs[i] = uintptr(s.pcs[i])
		}
		c.nameLen = 0
		for c.nameLen < len(c.name) && s.name[c.nameLen] != 0 {
			c.name[c.nameLen] = byte(s.name[c.nameLen])
			c.nameLen++
		}
		handleCaptured(&c)
	}

	if n := C.sigprof_take_dropped(); n > 0 {
		sampleMetrics.droppedTrampolineFull.Add(float64(n))
	}
}
