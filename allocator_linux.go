//go:build linux

package fmq

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// platformAllocator backs Allocator with memfd_create+mmap on Linux,
// the same create/map/release shape as the teacher's shm_open+mmap pair
// (platform_linux.go in the retrieval pack), reimplemented against
// golang.org/x/sys/unix instead of cgo so this module needs no C
// toolchain.
type platformAllocator struct{}

func (platformAllocator) Allocate(size uint64) (Handle, unsafe.Pointer, error) {
	fd, err := unix.MemfdCreate("fmq", 0)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: memfd_create: %v", ErrMappingFailed, err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return 0, nil, fmt.Errorf("%w: ftruncate: %v", ErrMappingFailed, err)
	}
	base, err := mmapShared(fd, size)
	if err != nil {
		unix.Close(fd)
		return 0, nil, err
	}
	return Handle(fd), base, nil
}

func (platformAllocator) Map(h Handle, size uint64) (unsafe.Pointer, error) {
	fd := int(h)
	var st unix.Stat_t
	err := unix.Fstat(fd, &st)
	if err != nil {
		return nil, fmt.Errorf("%w: fstat: %v", ErrMappingFailed, err)
	}
	if uint64(st.Size) < size {
		return nil, fmt.Errorf("%w: region size %d smaller than requested %d", ErrMappingFailed, st.Size, size)
	}
	return mmapShared(fd, size)
}

func (platformAllocator) Release(h Handle, base unsafe.Pointer, size uint64) error {
	if base != nil {
		region := unsafe.Slice((*byte)(base), size)
		if err := unix.Munmap(region); err != nil {
			return fmt.Errorf("%w: munmap: %v", ErrMappingFailed, err)
		}
	}
	return unix.Close(int(h))
}

func mmapShared(fd int, size uint64) (unsafe.Pointer, error) {
	region, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap: %v", ErrMappingFailed, err)
	}
	return unsafe.Pointer(&region[0]), nil
}
