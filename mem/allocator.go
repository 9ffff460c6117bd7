package mem

import (
	"fmt"
	stdsync "sync"
	"sync/atomic"

	"github.com/wilhasse/rpmalloc-go/ut"
)

// State is the lifecycle state of an Allocator.
type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Allocator is the process-wide context: the chunk table, the span
// allocator, the global span cache and the set of heaps. It is written
// only by Initialize and Finalize; everything else reads it.
type Allocator struct {
	mu    stdsync.Mutex
	state atomic.Int32
	cfg   Config

	table    *chunkTable
	spans    *spanAllocator
	cache    *globalCache
	counters globalCounters

	heaps      ut.List[*Heap]
	orphans    ut.List[*Heap]
	nextHeapID uint32
	pool       *HeapPool
}

// New creates an uninitialized allocator.
func New(cfg Config) *Allocator {
	a := &Allocator{cfg: normalizeConfig(cfg)}
	a.pool = newHeapPool(a, a.cfg.HeapPoolSize)
	return a
}

// Pool returns the heap pool used by goroutines with no heap bound.
func (a *Allocator) Pool() *HeapPool {
	return a.pool
}

// Initialize sets up the chunk table and global cache and maps the initial
// chunks. Calling it twice is an error.
func (a *Allocator) Initialize() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.State() {
	case StateInitialized:
		return ErrAlreadyInitialized
	case StateFinalized:
		return ErrFinalized
	}
	a.counters = globalCounters{}
	a.table = new(chunkTable)
	a.spans = newSpanAllocator(a.table, &a.counters, a.cfg)
	a.cache = newGlobalCache(a.cfg.GlobalCacheSpans)
	if err := a.spans.reserve(a.cfg.InitialChunks); err != nil {
		a.spans.teardown()
		a.spans, a.cache, a.table = nil, nil, nil
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	a.state.Store(int32(StateInitialized))
	return nil
}

// Finalize releases every heap, cached span, chunk and huge block. The
// allocator cannot be used afterwards.
func (a *Allocator) Finalize() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.State() != StateInitialized {
		return ErrNotInitialized
	}
	a.state.Store(int32(StateFinalized))
	a.pool.drain()
	leaked := 0
	for n := a.heaps.First; n != nil; n = n.Next {
		h := n.Data
		if h.liveSlots > 0 {
			leaked++
		}
		h.state.Store(int32(HeapFinalized))
	}
	if leaked > 0 {
		a.logf("mem: finalize with %d heaps still holding live blocks\n", leaked)
	}
	ut.ListFree(&a.heaps)
	ut.ListFree(&a.orphans)
	a.cache.drain()
	a.spans.teardown()
	return nil
}

// State returns the lifecycle state.
func (a *Allocator) State() State {
	return State(a.state.Load())
}

// Config returns the configuration the allocator was created with.
func (a *Allocator) Config() Config {
	return a.cfg
}

// NewHeap returns a heap for the calling goroutine. An orphaned heap left
// by a finalized goroutine is adopted first, with its live blocks.
func (a *Allocator) NewHeap() (*Heap, error) {
	if err := a.checkState(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	if a.State() != StateInitialized {
		a.mu.Unlock()
		return nil, ErrUseAfterFinalize
	}
	if n := ut.ListPopFirst(&a.orphans); n != nil {
		h := n.Data
		h.state.Store(int32(HeapActive))
		a.mu.Unlock()
		h.drainDeferred()
		return h, nil
	}
	a.nextHeapID++
	h := newHeap(a, a.nextHeapID)
	ut.ListAddLast(&a.heaps, &h.node)
	a.mu.Unlock()
	return h, nil
}

// retireHeap forgets a heap with no live blocks.
func (a *Allocator) retireHeap(h *Heap) {
	a.mu.Lock()
	ut.ListRemove(&a.heaps, &h.node)
	h.state.Store(int32(HeapFinalized))
	a.mu.Unlock()
}

// orphanHeap parks a heap that still owns live blocks for adoption.
func (a *Allocator) orphanHeap(h *Heap) {
	a.mu.Lock()
	if a.State() == StateInitialized {
		h.state.Store(int32(HeapOrphaned))
		ut.ListAddLast(&a.orphans, &h.orphan)
	}
	a.mu.Unlock()
}

// Free releases a block without a heap of the caller's own. Span blocks go
// to the owning heap's deferred queue; huge blocks are unmapped.
func (a *Allocator) Free(p uintptr) error {
	if p == 0 {
		return nil
	}
	if err := a.checkState(); err != nil {
		return err
	}
	c, s, err := a.locate(p)
	if err != nil {
		return err
	}
	if c.kind == chunkHuge {
		return a.freeHuge(c, p)
	}
	owner := s.heap.Load()
	_, start, ok := s.slotOf(p)
	if owner == nil || !ok {
		return a.invalidPointer(p)
	}
	owner.deferred.push(start)
	return nil
}

// UsableSize returns the bytes usable from p to the end of its slot or huge
// block, or 0 if p does not belong to this allocator. p must be live.
func (a *Allocator) UsableSize(p uintptr) uintptr {
	if p == 0 || a.State() != StateInitialized {
		return 0
	}
	c, s, err := a.locate(p)
	if err != nil {
		return 0
	}
	if c.kind == chunkHuge {
		return c.base + c.mapping.Size - p
	}
	_, start, ok := s.slotOf(p)
	if !ok || s.heap.Load() == nil {
		return 0
	}
	return start + s.slotSize - p
}

// Stats returns a snapshot of the global statistics.
func (a *Allocator) Stats() GlobalStats {
	st := GlobalStats{
		Mapped:        a.counters.mappedBytes.Load(),
		MappedPeak:    a.counters.mappedPeak.Load(),
		HugeAlloc:     a.counters.hugeBytes.Load(),
		HugeAllocPeak: a.counters.hugePeak.Load(),
		MappedTotal:   a.counters.mappedTotal.Load(),
		UnmappedTotal: a.counters.unmappedTotal.Load(),
		Spans:         a.counters.spansLive.Load(),
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cache != nil {
		st.Cached = a.cache.cachedBytes()
	}
	if a.spans != nil {
		st.Chunks = a.spans.chunkCount()
	}
	st.OrphanedHeaps = a.orphans.Len
	st.ActiveHeaps = a.heaps.Len - a.orphans.Len
	st.PooledHeaps = a.pool.Idle()
	return st
}

// locate finds the chunk and, for span chunks, the span holding p.
func (a *Allocator) locate(p uintptr) (*chunk, *span, error) {
	c := a.table.lookup(p)
	if c == nil {
		return nil, nil, a.invalidPointer(p)
	}
	if c.kind == chunkHuge {
		return c, nil, nil
	}
	s := c.spanAt(p)
	if s == nil {
		return nil, nil, a.invalidPointer(p)
	}
	return c, s, nil
}

// releaseSpan hands a free span to the global cache or, above the
// watermark, back to the span allocator.
func (a *Allocator) releaseSpan(s *span) {
	if !a.cache.cacheSpan(s) {
		a.spans.release(s)
	}
}

func (a *Allocator) checkState() error {
	switch a.State() {
	case StateInitialized:
		return nil
	case StateFinalized:
		ut.Assert(false, a.cfg.Debug, "allocator used after finalize")
		return ErrUseAfterFinalize
	default:
		ut.Assert(false, a.cfg.Debug, "allocator used before initialize")
		return ErrNotInitialized
	}
}

func (a *Allocator) invalidPointer(p uintptr) error {
	a.logf("mem: invalid free or unknown pointer %#x\n", p)
	ut.Assert(false, a.cfg.Debug, "pointer owned by allocator")
	return fmt.Errorf("%w: %#x", ErrInvalidPointer, p)
}

func (a *Allocator) logf(format string, args ...any) {
	if a.cfg.Logf != nil {
		a.cfg.Logf(format, args...)
	}
}
