package os

import (
	stdos "os"
	"sync/atomic"
)

// HugePageSize is the transparent huge page size. Mappings smaller than
// this are never advised.
const HugePageSize = 2 << 20

// MapFlags select optional behavior of MapAligned.
type MapFlags uint32

const (
	// MapHugePages asks the OS to back the mapping with huge pages.
	MapHugePages MapFlags = 1 << iota
)

// Mapping is a region of anonymous memory obtained from MapAligned.
// Base is aligned as requested; raw and rawSize describe what must be
// handed back to the OS.
type Mapping struct {
	Base uintptr
	Size uintptr
	// HugePages is set when the mapping was advised for huge pages.
	HugePages bool
	raw       uintptr
	rawSize   uintptr
}

var (
	mappedBytes   atomic.Int64
	mappingsCount atomic.Int64
	hugeMappings  atomic.Int64
)

// PageSize returns the OS page size.
func PageSize() uintptr {
	pageSize := uintptr(stdos.Getpagesize())
	if pageSize == 0 {
		pageSize = 4096
	}
	return pageSize
}

// MappedBytes reports the bytes currently mapped through MapAligned.
func MappedBytes() int64 {
	return mappedBytes.Load()
}

// MappingCount reports the number of live mappings.
func MappingCount() int64 {
	return mappingsCount.Load()
}

// HugePageMappings reports the live mappings advised for huge pages.
func HugePageMappings() int64 {
	return hugeMappings.Load()
}

func wantHugePages(flags MapFlags, size uintptr) bool {
	return flags&MapHugePages != 0 && size >= HugePageSize
}

func alignUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}

func mappingSizes(size, align uintptr) (uintptr, uintptr, uintptr, bool) {
	page := PageSize()
	if align < page {
		align = page
	}
	size = alignUp(size, page)
	if size == 0 {
		return 0, 0, 0, false
	}
	over := size
	if align > page {
		over += align
		if over < size {
			return 0, 0, 0, false
		}
	}
	return size, align, over, true
}
