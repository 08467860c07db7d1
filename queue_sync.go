package fmq

import "unsafe"

// toBytes views a non-empty slice of T as a raw byte slice, the same way
// the teacher's SPSCQueue treats its buffer as raw bytes rather than any
// particular wire type. T is expected to be a fixed-size, pointer-free
// value type (spec.md §3.1) — copying its bytes across a shared-memory
// boundary is exactly what this module promises to do, nothing more.
func toBytes[T any](items []T) []byte {
	if len(items) == 0 {
		return nil
	}
	size := int(elemSize[T]())
	return unsafe.Slice((*byte)(unsafe.Pointer(&items[0])), len(items)*size)
}

// writeSync implements Write for a Synchronized queue: it fails without
// writing anything if items is larger than the ring (spec.md P5) or
// larger than the space currently available (spec.md scenario
// "WriteWhenFull") — a Synchronized writer never overwrites data the
// reader hasn't consumed. An empty items is always a successful no-op
// (spec.md P4).
func (q *MessageQueue[T]) writeSync(items []T) bool {
	count := uint32(len(items))
	if count == 0 {
		return true
	}
	if count > q.ring.quantumCount {
		logKind("queue.write", KindTooLarge, "count", count, "quantum_count", q.ring.quantumCount)
		return false
	}
	if count > q.AvailableToWrite() {
		logKind("queue.write", KindNotEnough, "count", count, "available", q.AvailableToWrite())
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

// readSync implements Read for a Synchronized queue: it fills items with
// exactly len(items) elements, or fails leaving items untouched if fewer
// than that are available. An empty items is always a successful no-op.
func (q *MessageQueue[T]) readSync(items []T) bool {
	count := uint32(len(items))
	if count == 0 {
		return true
	}
	if count > q.AvailableToRead() {
		logKind("queue.read", KindNotEnough, "count", count, "available", q.AvailableToRead())
		return false
	}

	pos := q.ring.loadRead()
	q.ring.copyOut(pos, toBytes(items))
	q.ring.storeRead(pos + uint64(count))

	if q.evt != nil {
		q.evt.Wake(NotFull)
	}
	return true
}
