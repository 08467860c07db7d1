package fmq

import "sync/atomic"

// writeUnsync implements Write for an Unsynchronized queue: the writer
// never fails for lack of space, since it has no shared read counter to
// consult and therefore no notion of "full" beyond the ring's own size.
// It still fails for items larger than the ring itself — there is no
// amount of overwriting that makes that fit (spec.md P5).
//
// Grounded on the teacher's SPSCQueue.Enqueue, with the capacity check
// against a shared ReadPos dropped: this flavor's whole point is that a
// slow or dead reader can never block or fail the writer (spec.md §4.4).
func (q *MessageQueue[T]) writeUnsync(items []T) bool {
	count := uint32(len(items))
	if count == 0 {
		return true
	}
	if count > q.ring.quantumCount {
		logKind("queue.write", KindTooLarge, "count", count, "quantum_count", q.ring.quantumCount)
		return false
	}

	pos := q.ring.loadWrite()
	q.ring.copyIn(pos, toBytes(items))
	q.ring.storeWrite(pos + uint64(count))

	if q.evt != nil {
		q.evt.Wake(NotEmpty)
	}
	return true
}

// readUnsync implements Read for an Unsynchronized queue using this
// endpoint's private read counter. If the writer has advanced by more
// than quantumCount elements since this endpoint last read, the data it
// was about to read has been overwritten; the endpoint does a full
// resync of its local counter to the writer's current position and
// fails this one Read so the caller can detect the loss (spec.md §4.4,
// scenario "UnsynchronizedOverflow"). Resyncing to W, not W-N, is the
// spec's mandated choice: after the resync the reader has caught all the
// way up, and only elements the writer appends from this point on are
// visible to it.
func (q *MessageQueue[T]) readUnsync(items []T) bool {
	count := uint64(len(items))
	if count == 0 {
		return true
	}

	w := q.ring.loadWrite()
	r := atomic.LoadUint64(&q.localRead)

	if w-r > uint64(q.ring.quantumCount) {
		atomic.StoreUint64(&q.localRead, w)
		logKind("queue.read", KindOverflow, "writer_pos", w, "reader_pos", r, "quantum_count", q.ring.quantumCount)
		return false
	}

	avail := w - r
	if count > avail {
		logKind("queue.read", KindNotEnough, "count", count, "available", avail)
		return false
	}

	q.ring.copyOut(r, toBytes(items))
	atomic.StoreUint64(&q.localRead, r+count)
	return true
}
