package mem

import (
	"fmt"
	stdsync "sync"
	"sync/atomic"
)

const (
	tableAddrBits = 48
	tableL2Bits   = 14
	tableL1Bits   = tableAddrBits - ChunkShift - tableL2Bits
)

type chunkLeaf [1 << tableL2Bits]atomic.Pointer[chunk]

// chunkTable maps a chunk-aligned address to its chunk. It is a two-level
// radix table over a 48-bit address space; readers never lock.
type chunkTable struct {
	mu stdsync.Mutex
	l1 [1 << tableL1Bits]atomic.Pointer[chunkLeaf]
}

func tableIndex(addr uintptr) (uint64, uint64, bool) {
	key := uint64(addr) >> ChunkShift
	i1 := key >> tableL2Bits
	if i1 >= 1<<tableL1Bits {
		return 0, 0, false
	}
	return i1, key & (1<<tableL2Bits - 1), true
}

func (t *chunkTable) lookup(addr uintptr) *chunk {
	i1, i2, ok := tableIndex(addr)
	if !ok {
		return nil
	}
	leaf := t.l1[i1].Load()
	if leaf == nil {
		return nil
	}
	return leaf[i2].Load()
}

func (t *chunkTable) insert(c *chunk) error {
	i1, i2, ok := tableIndex(c.base)
	if !ok {
		return fmt.Errorf("mem: chunk address %#x outside the %d-bit table", c.base, tableAddrBits)
	}
	leaf := t.l1[i1].Load()
	if leaf == nil {
		t.mu.Lock()
		if leaf = t.l1[i1].Load(); leaf == nil {
			leaf = new(chunkLeaf)
			t.l1[i1].Store(leaf)
		}
		t.mu.Unlock()
	}
	if !leaf[i2].CompareAndSwap(nil, c) {
		return fmt.Errorf("mem: chunk %#x registered twice", c.base)
	}
	return nil
}

func (t *chunkTable) remove(c *chunk) {
	i1, i2, ok := tableIndex(c.base)
	if !ok {
		return
	}
	if leaf := t.l1[i1].Load(); leaf != nil {
		leaf[i2].CompareAndSwap(c, nil)
	}
}
