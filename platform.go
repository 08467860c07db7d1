package fmq

import "unsafe"

// Handle identifies a shared-memory mapping in a way a platform can
// reopen it: a file descriptor on Linux, a file-mapping HANDLE on
// Windows. It is what a Grantor.FdIdx indexes into (spec.md §6.1).
type Handle uintptr

// Allocator is the external collaborator spec.md §1 treats as a black
// box: "an allocator that yields shareable memory regions". The ring,
// event-flag and descriptor logic in this module depend only on this
// interface, never on a concrete allocator.
type Allocator interface {
	// Allocate creates a new shared region of at least size bytes and
	// maps it into the caller's address space.
	Allocate(size uint64) (Handle, unsafe.Pointer, error)
	// Map attaches an existing region (created by Allocate, possibly in
	// another process) into the caller's address space.
	Map(h Handle, size uint64) (unsafe.Pointer, error)
	// Release unmaps base and releases the platform resources backing h.
	Release(h Handle, base unsafe.Pointer, size uint64) error
}

// DefaultAllocator returns the platform's native shared-memory allocator:
// memfd+mmap on Linux, file mappings on Windows, an in-process heap
// allocator everywhere else (see allocator_other.go).
func DefaultAllocator() Allocator {
	return platformAllocator{}
}
