package fmq

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Flavor selects a queue's concurrency contract (spec.md §4). A
// Synchronized queue has exactly one reader and tracks its read position
// in shared memory; an Unsynchronized queue supports any number of
// readers, none of which can make the writer block or fail, at the cost
// of each reader tracking its own read position and detecting overflow
// independently.
type Flavor int

const (
	Synchronized Flavor = iota
	Unsynchronized
)

// Config describes the shape of a queue to create. ElementSize is
// inferred from the generic type parameter at Create/Attach time; Config
// carries only what a caller must choose explicitly.
type Config struct {
	Flavor       Flavor
	QuantumCount uint32 // ring capacity, in elements
	EventFlag    bool   // allocate/attach a fourth grantor for blocking ops
}

// MessageQueue is one endpoint's attachment to a fixed-size-element ring
// in shared memory (spec.md §3-§4). A value returned by Create is the
// writer's endpoint; every value returned by Attach is a reader's or
// writer's endpoint depending on which side of the handshake called it —
// nothing in the type distinguishes them, matching spec.md's symmetric
// Write/Read API.
//
// Grounded on the teacher's SPSCQueue (queue.go) for the shape of a queue
// handle bundling header, buffer and event together, generalized to
// cover both flavors and a generic element type instead of a single
// byte-buffer/SPSC combination.
type MessageQueue[T any] struct {
	flavor Flavor
	ring   ringBuffer
	evt    *EventFlag

	alloc   Allocator
	handles []Handle
	bases   []unsafe.Pointer
	sizes   []uint64
	desc    *GrantorDescriptor

	// localRead is this endpoint's private read position, used only by
	// Unsynchronized readers (spec.md §4.4 — "each reader keeps an
	// independent local read counter").
	localRead uint64

	valid bool
}

func elemSize[T any]() uint32 {
	var zero T
	return uint32(unsafe.Sizeof(zero))
}

// Create allocates a brand-new queue of the given shape and returns the
// writer's endpoint. Call GetDescriptor on the result and ship it (plus
// the handles DescriptorHandles returns) to whatever will Attach as a
// reader.
func Create[T any](cfg Config, alloc Allocator) (*MessageQueue[T], error) {
	if cfg.QuantumCount == 0 {
		return nil, fmt.Errorf("%w: quantum count must be nonzero", ErrMalformedDescriptor)
	}
	size := elemSize[T]()
	dataBytes := uint64(cfg.QuantumCount) * uint64(size)

	regions := []uint64{dataBytes, 8, 8}
	if cfg.EventFlag {
		regions = append(regions, 4)
	}

	handles := make([]Handle, len(regions))
	bases := make([]unsafe.Pointer, len(regions))
	for i, sz := range regions {
		h, base, err := alloc.Allocate(sz)
		if err != nil {
			return nil, fmt.Errorf("%w: region %d: %v", ErrMappingFailed, i, err)
		}
		handles[i] = h
		bases[i] = base
	}

	grantors := []Grantor{
		{FdIdx: 0, Offset: 0, Extent: dataBytes},
		{FdIdx: 1, Offset: 0, Extent: 8},
		{FdIdx: 2, Offset: 0, Extent: 8},
	}
	if cfg.EventFlag {
		grantors = append(grantors, Grantor{FdIdx: 3, Offset: 0, Extent: 4, Flags: grantorFlagEventFlag})
	}
	desc := &GrantorDescriptor{Version: DescriptorVersion, Grantors: grantors, NumHandles: uint32(len(grantors))}

	q := buildQueue[T](cfg, desc, handles, bases, regions, alloc)
	// Zero the counters; a fresh queue starts empty (spec.md §3.4).
	atomic.StoreUint64(q.ring.writeCounter, 0)
	if q.ring.readCounter != nil {
		atomic.StoreUint64(q.ring.readCounter, 0)
	} else {
		// Region still exists on the wire even when this flavor doesn't
		// track it; zero it anyway so a later Synchronized-style reader
		// attaching by mistake doesn't see garbage.
		atomic.StoreUint64((*uint64)(bases[regionReadCounter]), 0)
	}
	if cfg.EventFlag {
		atomic.StoreUint32((*uint32)(bases[regionEventFlag]), 0)
	}
	return q, nil
}

// Attach maps an existing queue's regions using a descriptor and handles
// obtained out-of-band (spec.md §4.1). cfg.Flavor and cfg.EventFlag must
// match what the creating side actually built; the descriptor alone
// carries no flavor bit, since flavor is a property of the RPC interface
// the two sides already agree on.
func Attach[T any](desc *GrantorDescriptor, handles []Handle, cfg Config, alloc Allocator) (*MessageQueue[T], error) {
	wantGrantors := 3
	if cfg.EventFlag {
		wantGrantors = 4
	}
	if len(desc.Grantors) != wantGrantors {
		return nil, fmt.Errorf("%w: descriptor has %d grantors, config wants %d", ErrMalformedDescriptor, len(desc.Grantors), wantGrantors)
	}
	if len(handles) != int(desc.NumHandles) {
		return nil, fmt.Errorf("%w: got %d handles, descriptor names %d", ErrMalformedDescriptor, len(handles), desc.NumHandles)
	}

	size := elemSize[T]()
	wantData := uint64(cfg.QuantumCount) * uint64(size)
	if desc.Grantors[regionData].Extent != wantData {
		return nil, fmt.Errorf("%w: data region is %d bytes, want %d for %d elements of size %d",
			ErrMalformedDescriptor, desc.Grantors[regionData].Extent, wantData, cfg.QuantumCount, size)
	}

	bases := make([]unsafe.Pointer, len(desc.Grantors))
	sizes := make([]uint64, len(desc.Grantors))
	for i, g := range desc.Grantors {
		mapSize := g.Offset + g.Extent
		base, err := alloc.Map(handles[g.FdIdx], mapSize)
		if err != nil {
			return nil, fmt.Errorf("%w: region %d: %v", ErrMappingFailed, i, err)
		}
		bases[i] = base
		sizes[i] = mapSize
	}

	return buildQueue[T](cfg, desc, handles, bases, sizes, alloc), nil
}

// buildQueue assembles a MessageQueue from already-mapped regions. bases
// are the mapping base addresses for each grantor in desc.Grantors order;
// each Grantor's Offset still applies on top of its base.
func buildQueue[T any](cfg Config, desc *GrantorDescriptor, handles []Handle, bases []unsafe.Pointer, sizes []uint64, alloc Allocator) *MessageQueue[T] {
	size := elemSize[T]()
	dataPtr := unsafe.Add(bases[regionData], desc.Grantors[regionData].Offset)
	dataSlice := unsafe.Slice((*byte)(dataPtr), uint64(cfg.QuantumCount)*uint64(size))

	readPtr := (*uint64)(unsafe.Add(bases[regionReadCounter], desc.Grantors[regionReadCounter].Offset))
	writePtr := (*uint64)(unsafe.Add(bases[regionWriteCounter], desc.Grantors[regionWriteCounter].Offset))

	r := ringBuffer{
		data:         dataSlice,
		elemSize:     size,
		quantumCount: cfg.QuantumCount,
		writeCounter: writePtr,
	}
	if cfg.Flavor == Synchronized {
		r.readCounter = readPtr
	}

	q := &MessageQueue[T]{
		flavor:  cfg.Flavor,
		ring:    r,
		alloc:   alloc,
		handles: handles,
		bases:   bases,
		sizes:   sizes,
		desc:    desc,
		valid:   true,
	}
	if cfg.EventFlag && len(bases) > regionEventFlag {
		word := (*uint32)(unsafe.Add(bases[regionEventFlag], desc.Grantors[regionEventFlag].Offset))
		q.evt = NewEmbeddedEventFlag(word)
	}
	return q
}

// GetDescriptor returns the wire descriptor for handing this queue's
// regions to another process. Pair with DescriptorHandles.
func (q *MessageQueue[T]) GetDescriptor() *GrantorDescriptor { return q.desc }

// DescriptorHandles returns the platform handles GetDescriptor's Grantors
// index into, in FdIdx order. The caller ships these alongside the
// serialized descriptor via its own RPC transport (spec.md §4.1).
func (q *MessageQueue[T]) DescriptorHandles() []Handle { return q.handles }

// EventFlag returns this queue's embedded wake primitive, or nil if the
// queue was created/attached without one.
func (q *MessageQueue[T]) EventFlag() *EventFlag { return q.evt }

func (q *MessageQueue[T]) QuantumCount() uint32     { return q.ring.quantumCount }
func (q *MessageQueue[T]) ElementSizeBytes() uint32 { return q.ring.elemSize }
func (q *MessageQueue[T]) IsValid() bool            { return q.valid }

func (q *MessageQueue[T]) readPos() uint64 {
	if q.flavor == Unsynchronized {
		return atomic.LoadUint64(&q.localRead)
	}
	return q.ring.loadRead()
}

// AvailableToWrite reports how many elements can be written without the
// writer needing to overwrite unread data (spec.md P1). An Unsynchronized
// writer may ignore this and write anyway. For that flavor, a reader that
// has fallen behind by more than QuantumCount elements makes "used"
// exceed QuantumCount; clamp to 0 rather than let the subtraction wrap
// around to a huge uint32.
func (q *MessageQueue[T]) AvailableToWrite() uint32 {
	used := uint32(q.ring.loadWrite() - q.readPos())
	if used >= q.ring.quantumCount {
		return 0
	}
	return q.ring.quantumCount - used
}

// AvailableToRead reports how many elements this endpoint can currently
// read (spec.md P1: AvailableToRead()+AvailableToWrite() == QuantumCount
// for a Synchronized queue with one reader).
func (q *MessageQueue[T]) AvailableToRead() uint32 {
	return uint32(q.ring.loadWrite() - q.readPos())
}

// Write appends len(items) elements in one shot, all-or-nothing. See
// writeSync and writeUnsync for the two flavors' differing failure
// conditions.
func (q *MessageQueue[T]) Write(items []T) bool {
	if q.flavor == Unsynchronized {
		return q.writeUnsync(items)
	}
	return q.writeSync(items)
}

// Read fills items with exactly len(items) elements, all-or-nothing. See
// readSync and readUnsync for the two flavors' differing failure
// conditions.
func (q *MessageQueue[T]) Read(items []T) bool {
	if q.flavor == Unsynchronized {
		return q.readUnsync(items)
	}
	return q.readSync(items)
}

// Close releases this endpoint's mappings. It does not affect the other
// endpoint's attachment to the same regions.
func (q *MessageQueue[T]) Close() error {
	if !q.valid {
		return nil
	}
	q.valid = false
	var firstErr error
	for i, base := range q.bases {
		if err := q.alloc.Release(q.handles[i], base, q.sizes[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
