//go:build unix

package os

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MapAligned maps size bytes of zeroed read-write memory whose base is a
// multiple of align. The mapping is over-sized by align and trimmed.
func MapAligned(size, align uintptr, flags MapFlags) (Mapping, error) {
	size, align, over, ok := mappingSizes(size, align)
	if !ok {
		return Mapping{}, fmt.Errorf("os: map %d bytes aligned to %d: %w", size, align, syscall.EINVAL)
	}
	p, err := unix.MmapPtr(-1, 0, nil, over, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return Mapping{}, fmt.Errorf("os: mmap %d bytes: %w", over, err)
	}
	raw := uintptr(p)
	base := alignUp(raw, align)
	if head := base - raw; head > 0 {
		if err := unix.MunmapPtr(p, head); err != nil {
			_ = unix.MunmapPtr(p, over)
			return Mapping{}, fmt.Errorf("os: trim mapping head: %w", err)
		}
	}
	if tail := raw + over - (base + size); tail > 0 {
		if err := unix.MunmapPtr(unsafe.Pointer(base+size), tail); err != nil {
			_ = unix.MunmapPtr(unsafe.Pointer(base), size)
			return Mapping{}, fmt.Errorf("os: trim mapping tail: %w", err)
		}
	}
	m := Mapping{Base: base, Size: size, raw: base, rawSize: size}
	if wantHugePages(flags, size) && adviseHugePages(base, size) {
		m.HugePages = true
		hugeMappings.Add(1)
	}
	mappedBytes.Add(int64(size))
	mappingsCount.Add(1)
	return m, nil
}

// Unmap returns a mapping to the OS.
func Unmap(m Mapping) error {
	if m.raw == 0 || m.rawSize == 0 {
		return nil
	}
	if err := unix.MunmapPtr(unsafe.Pointer(m.raw), m.rawSize); err != nil {
		return fmt.Errorf("os: munmap %d bytes: %w", m.rawSize, err)
	}
	if m.HugePages {
		hugeMappings.Add(-1)
	}
	mappedBytes.Add(-int64(m.Size))
	mappingsCount.Add(-1)
	return nil
}

// Decommit tells the OS the pages in [addr, addr+size) are unused. The range
// stays mapped and reads back as zero once touched again.
func Decommit(addr, size uintptr) error {
	page := PageSize()
	start := alignUp(addr, page)
	end := (addr + size) &^ (page - 1)
	if end <= start {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(start)), end-start)
	if err := unix.Madvise(b, unix.MADV_DONTNEED); err != nil {
		return fmt.Errorf("os: madvise %d bytes: %w", end-start, err)
	}
	return nil
}
