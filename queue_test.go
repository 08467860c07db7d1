package fmq

import (
	"testing"
	"time"
)

type record struct {
	A int64
	B int64
}

func mustCreateSync(t *testing.T, quantumCount uint32, withEvent bool) (*MessageQueue[record], *MessageQueue[record]) {
	t.Helper()
	alloc := DefaultAllocator()
	w, err := Create[record](Config{Flavor: Synchronized, QuantumCount: quantumCount, EventFlag: withEvent}, alloc)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	desc := w.GetDescriptor()
	r, err := Attach[record](desc, w.DescriptorHandles(), Config{Flavor: Synchronized, QuantumCount: quantumCount, EventFlag: withEvent}, alloc)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	return w, r
}

func mustCreateUnsync(t *testing.T, quantumCount uint32) *MessageQueue[record] {
	t.Helper()
	alloc := DefaultAllocator()
	w, err := Create[record](Config{Flavor: Unsynchronized, QuantumCount: quantumCount}, alloc)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return w
}

// TestAvailabilityInvariant is spec.md P1: for a Synchronized queue with
// one reader, AvailableToRead()+AvailableToWrite() == QuantumCount at
// every observation point.
func TestAvailabilityInvariant(t *testing.T) {
	w, r := mustCreateSync(t, 8, false)
	defer w.Close()
	defer r.Close()

	check := func() {
		if got := w.AvailableToRead() + w.AvailableToWrite(); got != w.QuantumCount() {
			t.Fatalf("writer view: AvailableToRead+AvailableToWrite = %d, want %d", got, w.QuantumCount())
		}
	}
	check()

	if !w.Write([]record{{1, 1}, {2, 2}, {3, 3}}) {
		t.Fatalf("Write should have succeeded with room to spare")
	}
	check()

	out := make([]record, 2)
	if !r.Read(out) {
		t.Fatalf("Read should have succeeded")
	}
	check()
}

// TestRoundTrip is spec.md P2: data read back matches data written, in order.
func TestRoundTrip(t *testing.T) {
	w, r := mustCreateSync(t, 8, false)
	defer w.Close()
	defer r.Close()

	in := []record{{1, 10}, {2, 20}, {3, 30}, {4, 40}}
	if !w.Write(in) {
		t.Fatalf("Write failed")
	}

	out := make([]record, len(in))
	if !r.Read(out) {
		t.Fatalf("Read failed")
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("element %d: got %+v, want %+v", i, out[i], in[i])
		}
	}
}

// TestWrapAround exercises the two-sub-copy path in ringBuffer.splitCopy
// by writing and reading enough times that the counters cross the
// physical end of the buffer partway through a multi-element write.
func TestWrapAround(t *testing.T) {
	w, r := mustCreateSync(t, 4, false)
	defer w.Close()
	defer r.Close()

	for round := 0; round < 20; round++ {
		in := []record{{int64(round), int64(round * 2)}, {int64(round) + 1, int64(round)*2 + 1}, {int64(round) + 2, int64(round)*2 + 2}}
		if !w.Write(in) {
			t.Fatalf("round %d: Write failed", round)
		}
		out := make([]record, len(in))
		if !r.Read(out) {
			t.Fatalf("round %d: Read failed", round)
		}
		for i := range in {
			if out[i] != in[i] {
				t.Fatalf("round %d element %d: got %+v, want %+v", round, i, out[i], in[i])
			}
		}
	}
}

// TestZeroLengthIsNoOp is spec.md P4.
func TestZeroLengthIsNoOp(t *testing.T) {
	w, r := mustCreateSync(t, 4, false)
	defer w.Close()
	defer r.Close()

	if !w.Write(nil) {
		t.Fatalf("zero-length Write must succeed")
	}
	if !r.Read(nil) {
		t.Fatalf("zero-length Read must succeed")
	}
	if w.AvailableToRead() != 0 {
		t.Fatalf("zero-length Write must not have written anything")
	}
}

// TestOversizeWriteFails is spec.md P5.
func TestOversizeWriteFails(t *testing.T) {
	w, _ := mustCreateSync(t, 4, false)
	defer w.Close()

	oversize := make([]record, 5)
	if w.Write(oversize) {
		t.Fatalf("Write of more elements than QuantumCount must fail")
	}
}

// TestWriteWhenFullFails: a Synchronized writer must not overwrite
// unread data.
func TestWriteWhenFullFails(t *testing.T) {
	w, r := mustCreateSync(t, 4, false)
	defer w.Close()
	defer r.Close()

	full := make([]record, 4)
	if !w.Write(full) {
		t.Fatalf("filling the queue exactly should succeed")
	}
	if w.Write([]record{{1, 1}}) {
		t.Fatalf("Write into a full Synchronized queue must fail")
	}

	out := make([]record, 1)
	if !r.Read(out) {
		t.Fatalf("Read should succeed once data is present")
	}
	if !w.Write([]record{{9, 9}}) {
		t.Fatalf("Write should succeed again after the reader freed a slot")
	}
}

// TestMultipleSmallReads: data written in one call can be read back in
// several smaller calls.
func TestMultipleSmallReads(t *testing.T) {
	w, r := mustCreateSync(t, 8, false)
	defer w.Close()
	defer r.Close()

	if !w.Write([]record{{1, 1}, {2, 2}, {3, 3}, {4, 4}}) {
		t.Fatalf("Write failed")
	}

	first := make([]record, 1)
	if !r.Read(first) || first[0] != (record{1, 1}) {
		t.Fatalf("first Read mismatch: %+v", first)
	}
	rest := make([]record, 3)
	if !r.Read(rest) {
		t.Fatalf("second Read failed")
	}
	want := []record{{2, 2}, {3, 3}, {4, 4}}
	for i := range want {
		if rest[i] != want[i] {
			t.Fatalf("rest[%d] = %+v, want %+v", i, rest[i], want[i])
		}
	}
}

// TestBlockingRendezvous exercises WriteBlocking/ReadBlocking across a
// reader that starts before any data exists.
func TestBlockingRendezvous(t *testing.T) {
	w, r := mustCreateSync(t, 4, true)
	defer w.Close()
	defer r.Close()

	done := make(chan bool, 1)
	go func() {
		out := make([]record, 1)
		done <- r.ReadBlocking(out, time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	if !w.WriteBlocking([]record{{7, 7}}, time.Second) {
		t.Fatalf("WriteBlocking failed")
	}

	if ok := <-done; !ok {
		t.Fatalf("ReadBlocking failed to observe the write")
	}
}

// TestUnsynchronizedWriterNeverFails: the writer must succeed even when
// no reader is draining the queue, unlike the Synchronized flavor.
func TestUnsynchronizedWriterNeverFails(t *testing.T) {
	w := mustCreateUnsync(t, 4)
	defer w.Close()

	for i := 0; i < 100; i++ {
		if !w.Write([]record{{int64(i), int64(i)}}) {
			t.Fatalf("iteration %d: Unsynchronized Write must never fail for lack of space", i)
		}
	}
}

// TestUnsynchronizedOverflowResyncs is spec.md P6 / scenario
// "UnsynchronizedOverflow" (mirroring the original's
// MultipleReadersAfterOverflow2): a reader that falls more than
// QuantumCount elements behind detects the gap and fails that Read, with
// its local counter fully resynced to the writer's current position
// (spec.md §4.3.1/§7/§9: resync to W, not W-N). Since the resync catches
// the reader all the way up, a Read with no new data afterward must fail
// NotEnough; only elements the writer appends after the resync become
// visible.
func TestUnsynchronizedOverflowResyncs(t *testing.T) {
	w := mustCreateUnsync(t, 4)
	defer w.Close()

	alloc := DefaultAllocator()
	r, err := Attach[record](w.GetDescriptor(), w.DescriptorHandles(), Config{Flavor: Unsynchronized, QuantumCount: 4}, alloc)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer r.Close()

	for i := 0; i < 10; i++ {
		if !w.Write([]record{{int64(i), int64(i)}}) {
			t.Fatalf("Write %d failed", i)
		}
	}

	out := make([]record, 1)
	if r.Read(out) {
		t.Fatalf("expected the Read after overflow to fail and resync")
	}

	// The resync caught the reader all the way up to W; with nothing new
	// written since, there is nothing to read.
	if r.Read(out) {
		t.Fatalf("expected Read to fail again with no new data after the resync")
	}

	// Once the writer appends fresh data, the reader can see exactly
	// that data, not the stale elements from before the overflow.
	fresh := make([]record, 4)
	for i := range fresh {
		fresh[i] = record{int64(100 + i), int64(100 + i)}
		if !w.Write([]record{fresh[i]}) {
			t.Fatalf("Write of fresh element %d failed", i)
		}
	}

	got := make([]record, 4)
	if !r.Read(got) {
		t.Fatalf("Read of freshly written elements should succeed after resync")
	}
	for i := range fresh {
		if got[i] != fresh[i] {
			t.Fatalf("element %d: got %+v, want %+v", i, got[i], fresh[i])
		}
	}
}
