package mem

import (
	"sync/atomic"
	"unsafe"
)

// deferredQueue collects slots freed by goroutines that do not own the
// heap. It is a lock-free stack threaded through the freed slots: the first
// word of each slot links to the next one. Producers push with a CAS
// (release); the owner takes the whole list with one swap (acquire) and
// walks it without further synchronization.
type deferredQueue struct {
	head   atomic.Uintptr
	pushed atomic.Uint64
}

func (q *deferredQueue) push(slot uintptr) {
	link := (*uintptr)(unsafe.Pointer(slot))
	for {
		old := q.head.Load()
		*link = old
		if q.head.CompareAndSwap(old, slot) {
			q.pushed.Add(1)
			return
		}
	}
}

func (q *deferredQueue) pending() bool {
	return q.head.Load() != 0
}

// take detaches the whole list.
func (q *deferredQueue) take() uintptr {
	if q.head.Load() == 0 {
		return 0
	}
	return q.head.Swap(0)
}

func deferredNext(slot uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(slot))
}
