package fmq

import "time"

// WriteBlocking behaves like Write, but instead of failing immediately
// when there isn't enough room, it waits on the queue's EventFlag for a
// NotFull signal and retries until it succeeds or timeout elapses from
// the moment WriteBlocking was called — not from the moment of the last
// retry (spec.md §4.3.2). timeout == 0 means "no wait": a single Write
// attempt, reported synchronously, same as calling Write directly. A
// queue with no EventFlag also degrades to a single Write attempt, since
// there is nothing to wait on.
//
// This is WriteBlockingBits with the queue's default bit convention
// (wait on NotFull, notify NotEmpty) — see WriteBlockingBits for a caller
// that multiplexes its own bits on a shared EventFlag.
func (q *MessageQueue[T]) WriteBlocking(items []T, timeout time.Duration) bool {
	return q.WriteBlockingBits(items, NotFull, NotEmpty, timeout)
}

// WriteBlockingBits is write_blocking(src, n, ready, notify, timeout_ns)
// from spec.md §6.2: ready is the bit this call waits on before retrying
// Write, notify is the bit raised (in addition to Write's own default
// NotEmpty wake) once the write succeeds, for callers sharing one
// EventFlag word across several queues or conditions. n == 0 short-
// circuits to true without touching the EventFlag (spec.md §4.3.2, P4);
// n > QuantumCount fails fast with TooLarge rather than waiting out the
// timeout on a write that can never be satisfied.
//
// Grounded on the teacher's spin.go adaptive wait strategy, adapted into
// futexSpin's deadline-aware form, composed with a deadline loop in the
// style of
// markrussinovich-grpc-go-shmem/internal/transport/shm's context/timeout
// handling, adapted from a context.Context cancellation to a plain
// time.Duration per spec.md §7's boolean-only surface.
func (q *MessageQueue[T]) WriteBlockingBits(items []T, ready, notify uint32, timeout time.Duration) bool {
	if len(items) == 0 {
		return true
	}
	if uint32(len(items)) > q.ring.quantumCount {
		logKind("queue.write_blocking", KindTooLarge, "count", len(items))
		return false
	}
	notifyWake := func() {
		if q.evt != nil && notify != 0 {
			q.evt.Wake(notify)
		}
	}

	if q.evt == nil || timeout == 0 {
		ok := q.Write(items)
		if ok {
			notifyWake()
		}
		return ok
	}

	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if q.Write(items) {
			notifyWake()
			return true
		}

		remaining := time.Duration(-1)
		if timeout > 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return false
			}
		}
		if _, ok := q.evt.Wait(ready, remaining); !ok {
			if timeout > 0 && !time.Now().Before(deadline) {
				return false
			}
		}
	}
}

// ReadBlocking behaves like Read, but waits on the queue's EventFlag for
// a NotEmpty signal and retries until it succeeds or timeout elapses from
// the moment ReadBlocking was called (spec.md §4.3.2). timeout == 0 means
// "no wait": a single Read attempt, reported synchronously, same as
// calling Read directly. A queue with no EventFlag also degrades to a
// single Read attempt.
//
// This is ReadBlockingBits with the queue's default bit convention (wait
// on NotEmpty, notify NotFull) — see ReadBlockingBits for a caller that
// multiplexes its own bits on a shared EventFlag.
func (q *MessageQueue[T]) ReadBlocking(items []T, timeout time.Duration) bool {
	return q.ReadBlockingBits(items, NotEmpty, NotFull, timeout)
}

// ReadBlockingBits is read_blocking(dst, n, ready, notify, timeout_ns)
// from spec.md §6.2: ready is the bit this call waits on before retrying
// Read, notify is the bit raised (in addition to Read's own default
// NotFull wake) once the read succeeds. n == 0 short-circuits to true
// without touching the EventFlag (spec.md §4.3.2, P4); n > QuantumCount
// fails fast with TooLarge rather than spinning/waiting out the full
// timeout on a read that can never be satisfied (spec.md §4.3.1).
func (q *MessageQueue[T]) ReadBlockingBits(items []T, ready, notify uint32, timeout time.Duration) bool {
	if len(items) == 0 {
		return true
	}
	if uint32(len(items)) > q.ring.quantumCount {
		logKind("queue.read_blocking", KindTooLarge, "count", len(items))
		return false
	}
	notifyWake := func() {
		if q.evt != nil && notify != 0 {
			q.evt.Wake(notify)
		}
	}

	if q.evt == nil || timeout == 0 {
		ok := q.Read(items)
		if ok {
			notifyWake()
		}
		return ok
	}

	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if q.Read(items) {
			notifyWake()
			return true
		}

		remaining := time.Duration(-1)
		if timeout > 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return false
			}
		}
		if _, ok := q.evt.Wait(ready, remaining); !ok {
			if timeout > 0 && !time.Now().Before(deadline) {
				return false
			}
		}
	}
}
