package fmq

import (
	"runtime"
	"sync/atomic"
	"time"
)

// futexSpin is the adaptive spin-then-block policy behind EventFlag.Wait:
// busy-poll the shared word for a cheap bounded number of iterations
// before paying for a futex syscall, and adapt the spin budget based on
// whether spinning paid off last time. It also owns the deadline
// bookkeeping for the fallback block call, since the blocking phase is
// always "wait out whatever time remains before the caller's deadline."
type futexSpin struct {
	currentLimit int32
	minSpin      int32
	maxSpin      int32
	incStep      int32
	decStep      int32
}

// newFutexSpin creates a futexSpin with default optimized values.
func newFutexSpin() *futexSpin {
	return &futexSpin{
		currentLimit: 2000,
		minSpin:      100,
		maxSpin:      20000,
		incStep:      200,
		decStep:      100,
	}
}

// wait spins on condition for the current adaptive limit; if that fails,
// it calls block with however long remains until deadline (a zero
// deadline means block indefinitely) and re-checks condition once block
// returns. Returns false without calling block if deadline has already
// passed.
func (s *futexSpin) wait(condition func() bool, deadline time.Time, block func(remaining time.Duration) error) bool {
	limit := int(atomic.LoadInt32(&s.currentLimit))

	for i := 0; i < limit; i++ {
		if condition() {
			s.reward(limit)
			return true
		}
		// Yield less frequently to reduce scheduler overhead.
		if i&0x3F == 0 {
			runtime.Gosched()
		}
	}
	s.punish(limit)

	remaining := time.Duration(-1)
	if !deadline.IsZero() {
		remaining = time.Until(deadline)
		if remaining <= 0 {
			return false
		}
	}

	block(remaining)
	return condition()
}

func (s *futexSpin) reward(limit int) {
	if limit >= int(s.maxSpin) {
		return
	}
	newLimit := limit + int(s.incStep)
	if newLimit > int(s.maxSpin) {
		newLimit = int(s.maxSpin)
	}
	atomic.StoreInt32(&s.currentLimit, int32(newLimit))
}

func (s *futexSpin) punish(limit int) {
	if limit <= int(s.minSpin) {
		return
	}
	newLimit := limit - int(s.decStep)
	if newLimit < int(s.minSpin) {
		newLimit = int(s.minSpin)
	}
	atomic.StoreInt32(&s.currentLimit, int32(newLimit))
}
