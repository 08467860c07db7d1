//go:build linux

package fmq

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// errFutexTimeout reports that a futex wait hit its deadline.
var errFutexTimeout = errors.New("fmq: futex wait timed out")

// Linux futex op codes. spec.md §5's primary scenario is two unrelated
// OS processes mapping the same region and waking each other through it,
// so these deliberately are NOT the FUTEX_WAIT_PRIVATE/FUTEX_WAKE_PRIVATE
// variants: the private ops hash the futex by the waiting thread's
// address space and are only correct when every waiter and waker lives
// in one process. The plain ops hash by the word's physical page instead,
// which is what a MAP_SHARED word spanning process boundaries needs.
//
// Grounded on
// markrussinovich-grpc-go-shmem/internal/transport/shm/shm_futex_linux.go,
// adapted from a monotonic sequence-number futex to EventFlag's
// bit-masked one: here we futex-wait on the word's current value rather
// than a dedicated sequence counter.
const (
	futexWait = 0 // FUTEX_WAIT
	futexWake = 1 // FUTEX_WAKE
)

// platformWait blocks while *word == the value observed at call time,
// for up to timeout (timeout < 0 means wait indefinitely). Re-checking
// the mask after this returns is the caller's job — spurious wakes,
// unrelated bit changes, and EAGAIN/EINTR races are all folded into an
// ordinary "try again" return.
func platformWait(word *uint32, mask uint32, timeout time.Duration) error {
	val := atomic.LoadUint32(word)
	if val&mask != 0 {
		return nil
	}

	var ts unix.Timespec
	var tsPtr *unix.Timespec
	if timeout >= 0 {
		ts = unix.NsecToTimespec(timeout.Nanoseconds())
		tsPtr = &ts
	}

	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(word)),
		uintptr(futexWait),
		uintptr(val),
		uintptr(unsafe.Pointer(tsPtr)),
		0,
		0,
	)

	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	case unix.ETIMEDOUT:
		return errFutexTimeout
	default:
		return fmt.Errorf("futex wait: %w", errno)
	}
}

// platformWake wakes every waiter on word. The mask isn't passed to the
// kernel (Linux futexes have no concept of it) — multiple EventFlag bits
// sharing one word simply share one futex wait queue, and wakers always
// wake everyone, who then re-check their own mask against the word
// (spec.md §4.2 already requires this re-check for spurious wakes).
func platformWake(word *uint32, mask uint32) {
	unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(word)),
		uintptr(futexWake),
		^uintptr(0)>>1, // INT_MAX waiters
		0, 0, 0,
	)
}
