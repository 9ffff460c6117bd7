package mem

import (
	"fmt"

	"github.com/wilhasse/rpmalloc-go/os"
	"github.com/wilhasse/rpmalloc-go/ut"
)

// mapHuge maps a dedicated block of at least size bytes aligned to align
// (never less than ChunkSize, so the chunk table can find it).
func (sa *spanAllocator) mapHuge(size, align uintptr, owner *Heap) (*chunk, error) {
	if align < ChunkSize {
		align = ChunkSize
	}
	if size == 0 {
		size = 1
	}
	m, err := os.MapAligned(size, align, sa.mapFlags)
	if err != nil {
		if sa.logf != nil {
			sa.logf("mem: map huge block of %d bytes: %v\n", size, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}
	c := &chunk{mapping: m, base: m.Base, kind: chunkHuge, owner: owner}
	c.link.Data = c
	if err := sa.table.insert(c); err != nil {
		_ = os.Unmap(m)
		return nil, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}
	sa.mu.Lock()
	ut.ListAddLast(&sa.huge, &c.link)
	sa.mu.Unlock()
	sa.counters.mapped(uint64(m.Size))
	sa.counters.hugeAllocated(uint64(m.Size))
	return c, nil
}

// unmapHuge releases a huge block. It reports false if the block was
// already released.
func (sa *spanAllocator) unmapHuge(c *chunk) bool {
	sa.mu.Lock()
	if c.freed {
		sa.mu.Unlock()
		return false
	}
	c.freed = true
	sa.table.remove(c)
	ut.ListRemove(&sa.huge, &c.link)
	sa.mu.Unlock()
	if err := os.Unmap(c.mapping); err != nil && sa.logf != nil {
		sa.logf("mem: unmap huge block %#x: %v\n", c.base, err)
	}
	sa.counters.unmapped(uint64(c.mapping.Size))
	sa.counters.hugeReleased(uint64(c.mapping.Size))
	return true
}

// hugeOwnedBy returns the live huge blocks allocated through h.
func (sa *spanAllocator) hugeOwnedBy(h *Heap) []*chunk {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	var out []*chunk
	for n := sa.huge.First; n != nil; n = n.Next {
		if n.Data.owner == h {
			out = append(out, n.Data)
		}
	}
	return out
}

// allocateHuge maps a block of its own for requests past LargeSizeLimit or
// with alignment past SpanUnit. The block is recorded against h so the
// heap's FreeAll can find it.
func (a *Allocator) allocateHuge(h *Heap, size, align uintptr) (uintptr, error) {
	c, err := a.spans.mapHuge(size, align, h)
	if err != nil {
		return 0, err
	}
	return c.base, nil
}

func (a *Allocator) freeHuge(c *chunk, p uintptr) error {
	if p != c.base || !a.spans.unmapHuge(c) {
		return a.invalidPointer(p)
	}
	return nil
}
