//go:build windows

package os

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/windows"
)

// MapAligned reserves and commits size bytes whose base is a multiple of
// align. Windows cannot release part of a reservation, so the whole
// over-sized region is kept and released together. Large pages need a
// privilege the process rarely holds, so MapHugePages is ignored.
func MapAligned(size, align uintptr, _ MapFlags) (Mapping, error) {
	size, align, over, ok := mappingSizes(size, align)
	if !ok {
		return Mapping{}, fmt.Errorf("os: map %d bytes aligned to %d: %w", size, align, syscall.EINVAL)
	}
	raw, err := windows.VirtualAlloc(0, over, windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return Mapping{}, fmt.Errorf("os: VirtualAlloc %d bytes: %w", over, err)
	}
	base := alignUp(raw, align)
	mappedBytes.Add(int64(size))
	mappingsCount.Add(1)
	return Mapping{Base: base, Size: size, raw: raw, rawSize: over}, nil
}

// Unmap returns a mapping to the OS.
func Unmap(m Mapping) error {
	if m.raw == 0 {
		return nil
	}
	if err := windows.VirtualFree(m.raw, 0, windows.MEM_RELEASE); err != nil {
		return fmt.Errorf("os: VirtualFree: %w", err)
	}
	mappedBytes.Add(-int64(m.Size))
	mappingsCount.Add(-1)
	return nil
}

// Decommit marks [addr, addr+size) as discardable without unmapping it.
func Decommit(addr, size uintptr) error {
	page := PageSize()
	start := alignUp(addr, page)
	end := (addr + size) &^ (page - 1)
	if end <= start {
		return nil
	}
	if _, err := windows.VirtualAlloc(start, end-start, windows.MEM_RESET, windows.PAGE_READWRITE); err != nil {
		return fmt.Errorf("os: VirtualAlloc(MEM_RESET): %w", err)
	}
	return nil
}
