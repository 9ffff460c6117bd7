package mem

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// HeapPool lends heaps to goroutines that have none bound. A borrowed
// heap belongs to the borrower until it is returned, so the heap fast
// path stays lock-free. Idle heaps sit in padded slots; a slot is taken
// by swapping it empty, so two borrowers never share a heap.
type HeapPool struct {
	alloc *Allocator
	slots []poolSlot
}

type poolSlot struct {
	heap atomic.Pointer[Heap]
	_    cpu.CacheLinePad
}

func newHeapPool(a *Allocator, n int) *HeapPool {
	if n < 1 {
		n = 1
	}
	return &HeapPool{alloc: a, slots: make([]poolSlot, n)}
}

// Size returns the number of slots.
func (p *HeapPool) Size() int {
	return len(p.slots)
}

// Idle returns the number of heaps parked in the pool.
func (p *HeapPool) Idle() int {
	n := 0
	for i := range p.slots {
		if p.slots[i].heap.Load() != nil {
			n++
		}
	}
	return n
}

// Borrow takes an idle heap, starting the search at the slot picked by
// hint, or creates a heap when every slot is empty.
func (p *HeapPool) Borrow(hint uint64) (*Heap, error) {
	if err := p.alloc.checkState(); err != nil {
		return nil, err
	}
	n := uint64(len(p.slots))
	for i := uint64(0); i < n; i++ {
		s := &p.slots[(hint+i)%n]
		if s.heap.Load() == nil {
			continue
		}
		if h := s.heap.Swap(nil); h != nil {
			if h.State() == HeapActive {
				return h, nil
			}
		}
	}
	return p.alloc.NewHeap()
}

// Return parks h in a free slot. When the pool is full the heap is
// finalized: retired if it holds no live blocks, orphaned otherwise.
func (p *HeapPool) Return(hint uint64, h *Heap) {
	if h == nil || h.State() != HeapActive {
		return
	}
	if p.alloc.State() == StateInitialized {
		n := uint64(len(p.slots))
		for i := uint64(0); i < n; i++ {
			s := &p.slots[(hint+i)%n]
			if s.heap.Load() == nil && s.heap.CompareAndSwap(nil, h) {
				return
			}
		}
	}
	h.Finalize()
}

// Collect drains deferred frees and flushes the span caches of every
// idle heap.
func (p *HeapPool) Collect() {
	for i := range p.slots {
		s := &p.slots[i]
		h := s.heap.Swap(nil)
		if h == nil {
			continue
		}
		h.Collect()
		if !s.heap.CompareAndSwap(nil, h) {
			p.Return(uint64(i), h)
		}
	}
}

// drain empties every slot. The heaps themselves are torn down with the
// allocator.
func (p *HeapPool) drain() {
	for i := range p.slots {
		p.slots[i].heap.Store(nil)
	}
}
