//go:build windows

package fmq

import (
	"fmt"
	"syscall"
	"unsafe"
)

var (
	kernel32               = syscall.NewLazyDLL("kernel32.dll")
	procCreateFileMappingW = kernel32.NewProc("CreateFileMappingW")
	procMapViewOfFile      = kernel32.NewProc("MapViewOfFile")
	procUnmapViewOfFile    = kernel32.NewProc("UnmapViewOfFile")
	procCloseHandle        = kernel32.NewProc("CloseHandle")
)

const fileMapAllAccess = 0xF001F

// platformAllocator backs Allocator on Windows with an anonymous,
// page-file-backed file mapping (CreateFileMappingW with no name) rather
// than the teacher's named mapping (platform_windows.go), since the
// resulting HANDLE is meant to travel to a peer process via an RPC
// transport's own handle-duplication step (spec.md §4.1: "handles carried
// out-of-band by the RPC transport"), not via a shared name.
type platformAllocator struct{}

func (platformAllocator) Allocate(size uint64) (Handle, unsafe.Pointer, error) {
	hMap, _, err := procCreateFileMappingW.Call(
		uintptr(syscall.InvalidHandle),
		0,
		uintptr(syscall.PAGE_READWRITE),
		uintptr(size>>32),
		uintptr(size&0xFFFFFFFF),
		0,
	)
	if hMap == 0 {
		return 0, nil, fmt.Errorf("%w: CreateFileMappingW: %v", ErrMappingFailed, err)
	}
	base, mapErr := mapView(hMap, size)
	if mapErr != nil {
		procCloseHandle.Call(hMap)
		return 0, nil, mapErr
	}
	return Handle(hMap), base, nil
}

func (platformAllocator) Map(h Handle, size uint64) (unsafe.Pointer, error) {
	return mapView(uintptr(h), size)
}

func (platformAllocator) Release(h Handle, base unsafe.Pointer, size uint64) error {
	if base != nil {
		procUnmapViewOfFile.Call(uintptr(base))
	}
	procCloseHandle.Call(uintptr(h))
	return nil
}

func mapView(hMap uintptr, size uint64) (unsafe.Pointer, error) {
	addr, _, err := procMapViewOfFile.Call(hMap, uintptr(fileMapAllAccess), 0, 0, uintptr(size))
	if addr == 0 {
		return nil, fmt.Errorf("%w: MapViewOfFile: %v", ErrMappingFailed, err)
	}
	return unsafe.Pointer(addr), nil
}
