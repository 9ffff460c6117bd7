//go:build linux

package os

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func adviseHugePages(base, size uintptr) bool {
	b := unsafe.Slice((*byte)(unsafe.Pointer(base)), size)
	return unix.Madvise(b, unix.MADV_HUGEPAGE) == nil
}
