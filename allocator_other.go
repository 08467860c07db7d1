//go:build !linux && !windows

package fmq

import (
	"fmt"
	"sync"
	"unsafe"
)

// platformAllocator falls back to ordinary Go heap memory on platforms
// this module has no native shared-memory backend for. It satisfies
// Allocator's contract for single-process use (tests, demos); it cannot
// actually share a region across process boundaries.
type platformAllocator struct{}

var (
	heapMu   sync.Mutex
	heapBufs = map[Handle][]byte{}
	heapNext Handle
)

func (platformAllocator) Allocate(size uint64) (Handle, unsafe.Pointer, error) {
	buf := make([]byte, size)
	heapMu.Lock()
	heapNext++
	h := heapNext
	heapBufs[h] = buf
	heapMu.Unlock()
	return h, unsafe.Pointer(&buf[0]), nil
}

func (platformAllocator) Map(h Handle, size uint64) (unsafe.Pointer, error) {
	heapMu.Lock()
	buf, ok := heapBufs[h]
	heapMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown heap handle", ErrMappingFailed)
	}
	if uint64(len(buf)) < size {
		return nil, fmt.Errorf("%w: region size %d smaller than requested %d", ErrMappingFailed, len(buf), size)
	}
	return unsafe.Pointer(&buf[0]), nil
}

func (platformAllocator) Release(h Handle, base unsafe.Pointer, size uint64) error {
	heapMu.Lock()
	delete(heapBufs, h)
	heapMu.Unlock()
	return nil
}
