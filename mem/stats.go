package mem

import "sync/atomic"

// GlobalStats mirrors rpmalloc's global statistics.
type GlobalStats struct {
	// Mapped is the number of bytes currently mapped from the OS.
	Mapped uint64
	// MappedPeak is the high-water mark of Mapped.
	MappedPeak uint64
	// Cached is the number of bytes held in the global span cache.
	Cached uint64
	// HugeAlloc is the number of bytes in live huge blocks.
	HugeAlloc uint64
	// HugeAllocPeak is the high-water mark of HugeAlloc.
	HugeAllocPeak uint64
	// MappedTotal is the total number of bytes ever mapped.
	MappedTotal uint64
	// UnmappedTotal is the total number of bytes ever unmapped.
	UnmappedTotal uint64
	Chunks        int
	Spans         int64
	ActiveHeaps   int
	OrphanedHeaps int
	// PooledHeaps is the number of idle heaps waiting in the heap pool.
	PooledHeaps int
}

// ClassStats tracks one size class inside a heap.
type ClassStats struct {
	Current uint64
	Peak    uint64
	Allocs  uint64
	Frees   uint64
}

// HeapStats mirrors rpmalloc's per-thread statistics.
type HeapStats struct {
	// SpanCache is the number of bytes in the heap's local span cache.
	SpanCache       uint64
	LiveSlots       uint64
	AllocCount      uint64
	FreeCount       uint64
	HugeAllocCount  uint64
	DeferredPushed  uint64
	DeferredDrained uint64
	// ThreadToGlobal counts spans the heap gave to the global cache.
	ThreadToGlobal uint64
	// GlobalToThread counts spans the heap took from the global cache.
	GlobalToThread uint64
	// SpansMapped counts spans the heap took from the span allocator.
	SpansMapped uint64
	Classes     [NumClasses]ClassStats
}

type globalCounters struct {
	mappedBytes   atomic.Uint64
	mappedPeak    atomic.Uint64
	mappedTotal   atomic.Uint64
	unmappedTotal atomic.Uint64
	hugeBytes     atomic.Uint64
	hugePeak      atomic.Uint64
	spansLive     atomic.Int64
}

func (g *globalCounters) mapped(n uint64) {
	storeMax(&g.mappedPeak, g.mappedBytes.Add(n))
	g.mappedTotal.Add(n)
}

func (g *globalCounters) unmapped(n uint64) {
	g.mappedBytes.Add(^(n - 1))
	g.unmappedTotal.Add(n)
}

func (g *globalCounters) hugeAllocated(n uint64) {
	storeMax(&g.hugePeak, g.hugeBytes.Add(n))
}

func (g *globalCounters) hugeReleased(n uint64) {
	g.hugeBytes.Add(^(n - 1))
}

func storeMax(v *atomic.Uint64, n uint64) {
	for {
		old := v.Load()
		if n <= old || v.CompareAndSwap(old, n) {
			return
		}
	}
}

func (c *ClassStats) alloc() {
	c.Allocs++
	c.Current++
	if c.Current > c.Peak {
		c.Peak = c.Current
	}
}

func (c *ClassStats) free() {
	c.Frees++
	c.Current--
}
