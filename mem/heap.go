package mem

import (
	"fmt"
	"math"
	"math/bits"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/wilhasse/rpmalloc-go/ut"
)

// HeapState is the lifecycle state of a Heap.
type HeapState int32

const (
	HeapActive HeapState = iota
	HeapOrphaned
	HeapFinalized
)

// Flags for AlignedReallocate.
const (
	// NoPreserve skips copying the old contents when the block moves.
	NoPreserve uint32 = 1 << iota
	// GrowOrFail fails instead of moving the block.
	GrowOrFail
)

// Heap is a per-goroutine allocation cache. A heap must only be used by
// one goroutine at a time; the fast path takes no locks. Blocks owned by
// another heap may be passed to Free from any goroutine: they are queued
// for their owner.
type Heap struct {
	deferred deferredQueue
	_        cpu.CacheLinePad

	id    uint32
	alloc *Allocator
	state atomic.Int32

	active  [NumClasses]*span
	partial [NumClasses]ut.List[*span]
	cache   [NumClasses]ut.List[*span]
	full    ut.List[*span]

	cacheLimit [NumClasses]int
	liveSlots  uint64
	stats      HeapStats

	node   ut.ListNode[*Heap]
	orphan ut.ListNode[*Heap]
}

func newHeap(a *Allocator, id uint32) *Heap {
	h := &Heap{id: id, alloc: a}
	h.node.Data = h
	h.orphan.Data = h
	for i := range h.cacheLimit {
		h.cacheLimit[i] = scaledLimit(a.cfg.ThreadCacheSpans, sizeClasses[i].SpanUnits)
	}
	return h
}

// ID returns the heap's identifier, unique within its allocator.
func (h *Heap) ID() uint32 {
	return h.id
}

// State returns the heap's lifecycle state.
func (h *Heap) State() HeapState {
	return HeapState(h.state.Load())
}

// Allocator returns the allocator the heap belongs to.
func (h *Heap) Allocator() *Allocator {
	return h.alloc
}

// Allocate returns a block of at least size bytes. Size 0 returns a valid
// minimal block.
func (h *Heap) Allocate(size int) (uintptr, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	if size < 0 {
		return 0, fmt.Errorf("%w: size %d", ErrInvalidArgument, size)
	}
	if h.deferred.pending() {
		h.drainDeferred()
	}
	class, huge := SizeClassOf(size)
	if huge {
		return h.allocateHuge(uintptr(size), 0)
	}
	return h.allocateClass(class)
}

// Calloc returns a zeroed block of count*size bytes.
func (h *Heap) Calloc(count, size int) (uintptr, error) {
	if count < 0 || size < 0 {
		return 0, fmt.Errorf("%w: calloc(%d, %d)", ErrInvalidArgument, count, size)
	}
	hi, total := bits.Mul64(uint64(count), uint64(size))
	if hi != 0 || total > math.MaxInt {
		return 0, fmt.Errorf("%w: calloc(%d, %d) overflows", ErrInvalidArgument, count, size)
	}
	p, err := h.Allocate(int(total))
	if err != nil {
		return 0, err
	}
	ut.Memset(Bytes(p, int(total)), 0, int(total))
	return p, nil
}

// Free releases a block. Blocks of this heap go straight back to their
// span; blocks of other heaps are queued for their owner.
func (h *Heap) Free(p uintptr) error {
	if p == 0 {
		return nil
	}
	if err := h.check(); err != nil {
		return err
	}
	c, s, err := h.alloc.locate(p)
	if err != nil {
		return err
	}
	if c.kind == chunkHuge {
		return h.alloc.freeHuge(c, p)
	}
	owner := s.heap.Load()
	if owner == h {
		return h.freeLocal(s, p)
	}
	_, start, ok := s.slotOf(p)
	if owner == nil || !ok {
		return h.alloc.invalidPointer(p)
	}
	owner.deferred.push(start)
	return nil
}

// Reallocate resizes a block. A block whose new size stays in its class
// keeps its address; otherwise the contents move to a new block. A zero
// pointer behaves as Allocate.
func (h *Heap) Reallocate(p uintptr, size int) (uintptr, error) {
	return h.reallocate(p, size, 0, 0)
}

// AlignedAllocate returns a block of at least size bytes whose address is a
// multiple of align, which must be a power of two.
func (h *Heap) AlignedAllocate(align, size int) (uintptr, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	if align <= 0 || !ut.IsPowerOfTwo(uint64(align)) {
		return 0, fmt.Errorf("%w: alignment %d", ErrInvalidArgument, align)
	}
	if size < 0 {
		return 0, fmt.Errorf("%w: size %d", ErrInvalidArgument, size)
	}
	if align <= SmallGranularity {
		return h.Allocate(size)
	}
	if h.deferred.pending() {
		h.drainDeferred()
	}
	// Slots start on 16-byte boundaries, so align-16 extra bytes always
	// leave room to round up.
	total := size + align - SmallGranularity
	if align > SpanUnit || total < size {
		return h.allocateHuge(uintptr(size), uintptr(align))
	}
	class, huge := SizeClassOf(total)
	if huge {
		return h.allocateHuge(uintptr(size), uintptr(align))
	}
	p, err := h.allocateClass(class)
	if err != nil {
		return 0, err
	}
	return ut.AlignUp(p, uintptr(align)), nil
}

// AlignedReallocate resizes a block keeping it aligned to align. oldSize,
// when non-zero, bounds the bytes copied. flags takes NoPreserve and
// GrowOrFail.
func (h *Heap) AlignedReallocate(p uintptr, align, size, oldSize int, flags uint32) (uintptr, error) {
	if align <= SmallGranularity {
		if align > 0 && !ut.IsPowerOfTwo(uint64(align)) {
			return 0, fmt.Errorf("%w: alignment %d", ErrInvalidArgument, align)
		}
		return h.reallocate(p, size, oldSize, flags)
	}
	if err := h.check(); err != nil {
		return 0, err
	}
	if !ut.IsPowerOfTwo(uint64(align)) {
		return 0, fmt.Errorf("%w: alignment %d", ErrInvalidArgument, align)
	}
	if size < 0 {
		return 0, fmt.Errorf("%w: size %d", ErrInvalidArgument, size)
	}
	var usable uintptr
	if p != 0 {
		usable = h.alloc.UsableSize(p)
		if usable == 0 {
			return 0, h.alloc.invalidPointer(p)
		}
		if p%uintptr(align) == 0 && uintptr(size) <= usable {
			return p, nil
		}
		if flags&GrowOrFail != 0 {
			return 0, ErrWouldMove
		}
	}
	np, err := h.AlignedAllocate(align, size)
	if err != nil {
		return 0, err
	}
	if p != 0 {
		if flags&NoPreserve == 0 {
			h.copyBlock(np, p, usable, size, oldSize)
		}
		if err := h.Free(p); err != nil {
			return np, err
		}
	}
	return np, nil
}

// UsableSize returns the bytes usable from p to the end of its block.
func (h *Heap) UsableSize(p uintptr) uintptr {
	return h.alloc.UsableSize(p)
}

// Collect folds deferred frees back into their spans and hands the heap's
// cached free spans to the global cache. The heap stays usable.
func (h *Heap) Collect() {
	if h.check() != nil {
		return
	}
	h.drainDeferred()
	for class := range h.cache {
		h.flushCache(class)
	}
}

// Finalize ends the heap's use by its goroutine. Deferred frees are
// drained and free spans go to the global cache. A heap that still owns
// live blocks is orphaned so a later NewHeap can adopt it.
func (h *Heap) Finalize() {
	if h.check() != nil {
		return
	}
	h.drainDeferred()
	for class, s := range h.active {
		if s == nil {
			continue
		}
		h.active[class] = nil
		switch {
		case s.empty():
			h.releaseToGlobal(s)
		case s.full():
			s.state = spanFull
			ut.ListAddLast(&h.full, &s.link)
		default:
			s.state = spanPartial
			ut.ListAddLast(&h.partial[class], &s.link)
		}
	}
	for class := range h.cache {
		h.flushCache(class)
	}
	if h.liveSlots == 0 {
		h.alloc.retireHeap(h)
		return
	}
	h.alloc.orphanHeap(h)
}

// FreeAll releases every block allocated through the heap, including huge
// blocks, without touching its deferred queue's slots individually.
func (h *Heap) FreeAll() {
	if h.check() != nil {
		return
	}
	_ = h.deferred.take()
	for class, s := range h.active {
		if s != nil {
			h.active[class] = nil
			h.resetSpan(s)
		}
		for n := ut.ListPopFirst(&h.partial[class]); n != nil; n = ut.ListPopFirst(&h.partial[class]) {
			h.resetSpan(n.Data)
		}
	}
	for n := ut.ListPopFirst(&h.full); n != nil; n = ut.ListPopFirst(&h.full) {
		h.resetSpan(n.Data)
	}
	for _, c := range h.alloc.spans.hugeOwnedBy(h) {
		h.alloc.spans.unmapHuge(c)
	}
	for i := range h.stats.Classes {
		h.stats.Classes[i].Current = 0
	}
	h.liveSlots = 0
}

// Stats returns a snapshot of the heap's statistics. Call it from the
// heap's goroutine.
func (h *Heap) Stats() HeapStats {
	st := h.stats
	st.LiveSlots = h.liveSlots
	st.DeferredPushed = h.deferred.pushed.Load()
	var cached uint64
	for class := range h.cache {
		for n := h.cache[class].First; n != nil; n = n.Next {
			cached += uint64(n.Data.size())
		}
	}
	st.SpanCache = cached
	return st
}

func (h *Heap) check() error {
	if h == nil || h.alloc == nil {
		return ErrNotInitialized
	}
	if err := h.alloc.checkState(); err != nil {
		return err
	}
	if h.State() != HeapActive {
		ut.Assert(false, h.alloc.cfg.Debug, "heap used after thread finalize")
		return ErrUseAfterFinalize
	}
	return nil
}

func (h *Heap) allocateClass(class int) (uintptr, error) {
	s := h.active[class]
	if s == nil || s.full() {
		var err error
		if s, err = h.refill(class); err != nil {
			return 0, err
		}
	}
	idx, ok := s.popSlot()
	if !ok {
		return 0, fmt.Errorf("mem: active span of class %d has no free slot", class)
	}
	h.liveSlots++
	h.stats.AllocCount++
	h.stats.Classes[class].alloc()
	return s.slotAddr(idx), nil
}

func (h *Heap) allocateHuge(size, align uintptr) (uintptr, error) {
	p, err := h.alloc.allocateHuge(h, size, align)
	if err != nil {
		return 0, err
	}
	h.stats.HugeAllocCount++
	return p, nil
}

// refill retires the exhausted active span and installs one with free
// slots: partial spans first, then the local cache, the global cache and
// finally the span allocator.
func (h *Heap) refill(class int) (*span, error) {
	if old := h.active[class]; old != nil {
		h.active[class] = nil
		old.state = spanFull
		ut.ListAddLast(&h.full, &old.link)
	}
	if n := ut.ListPopFirst(&h.partial[class]); n != nil {
		return h.setActive(class, n.Data), nil
	}
	if n := ut.ListPopFirst(&h.cache[class]); n != nil {
		return h.setActive(class, n.Data), nil
	}
	if s := h.alloc.cache.takeSpan(class); s != nil {
		s.heap.Store(h)
		h.stats.GlobalToThread++
		return h.setActive(class, s), nil
	}
	s, err := h.alloc.spans.acquire(int(sizeClasses[class].SpanUnits))
	if err != nil {
		return nil, err
	}
	s.format(class)
	s.heap.Store(h)
	h.stats.SpansMapped++
	return h.setActive(class, s), nil
}

func (h *Heap) setActive(class int, s *span) *span {
	s.state = spanActive
	h.active[class] = s
	return s
}

func (h *Heap) freeLocal(s *span, p uintptr) error {
	idx, _, ok := s.slotOf(p)
	if !ok || !s.pushSlot(idx) {
		return h.alloc.invalidPointer(p)
	}
	h.liveSlots--
	h.stats.FreeCount++
	h.stats.Classes[s.class].free()

	switch s.state {
	case spanActive:
		return nil
	case spanFull:
		ut.ListRemove(&h.full, &s.link)
	case spanPartial:
		if !s.empty() {
			return nil
		}
		ut.ListRemove(&h.partial[s.class], &s.link)
	}
	if s.empty() {
		h.cacheSpan(s)
		return nil
	}
	s.state = spanPartial
	ut.ListAddLast(&h.partial[s.class], &s.link)
	return nil
}

// cacheSpan keeps a free span locally while the class budget allows.
func (h *Heap) cacheSpan(s *span) {
	if h.cache[s.class].Len < h.cacheLimit[s.class] {
		s.state = spanHeapCached
		ut.ListAddLast(&h.cache[s.class], &s.link)
		return
	}
	h.releaseToGlobal(s)
}

func (h *Heap) releaseToGlobal(s *span) {
	s.heap.Store(nil)
	h.stats.ThreadToGlobal++
	h.alloc.releaseSpan(s)
}

func (h *Heap) flushCache(class int) {
	if h.alloc.cfg.Debug && h.cache[class].Len > 0 {
		h.alloc.logf("mem: heap %d flushes %d cached spans of class %d\n", h.id, h.cache[class].Len, class)
	}
	for n := ut.ListPopFirst(&h.cache[class]); n != nil; n = ut.ListPopFirst(&h.cache[class]) {
		h.releaseToGlobal(n.Data)
	}
}

// resetSpan marks every slot of s free and gives the span up.
func (h *Heap) resetSpan(s *span) {
	if s.link.InList(&h.full) {
		ut.ListRemove(&h.full, &s.link)
	} else {
		ut.ListRemove(&h.partial[s.class], &s.link)
	}
	s.resetFree()
	h.cacheSpan(s)
}

// drainDeferred folds slots queued by other goroutines back into their
// spans. A slot that is already free stops the walk: the list past it may
// be a cycle created by a double free.
func (h *Heap) drainDeferred() {
	for p := h.deferred.take(); p != 0; {
		next := deferredNext(p)
		c := h.alloc.table.lookup(p)
		var s *span
		if c != nil {
			s = c.spanAt(p)
		}
		if s == nil || s.heap.Load() != h {
			h.alloc.invalidPointer(p)
			return
		}
		if err := h.freeLocal(s, p); err != nil {
			return
		}
		h.stats.DeferredDrained++
		p = next
	}
}

// copyBlock copies the preserved prefix of an old block into a new one.
func (h *Heap) copyBlock(dst, src, usable uintptr, size, oldSize int) {
	n := usable
	if oldSize > 0 && uintptr(oldSize) < n {
		n = uintptr(oldSize)
	}
	if uintptr(size) < n {
		n = uintptr(size)
	}
	if n == 0 {
		return
	}
	ut.Memcpy(Bytes(dst, int(n)), Bytes(src, int(n)), int(n))
}

func (h *Heap) reallocate(p uintptr, size, oldSize int, flags uint32) (uintptr, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	if size < 0 {
		return 0, fmt.Errorf("%w: size %d", ErrInvalidArgument, size)
	}
	if p == 0 {
		return h.Allocate(size)
	}
	c, s, err := h.alloc.locate(p)
	if err != nil {
		return 0, err
	}
	var usable uintptr
	if c.kind == chunkHuge {
		if p != c.base {
			return 0, h.alloc.invalidPointer(p)
		}
		usable = c.mapping.Size
		if size > LargeSizeLimit && uintptr(size) <= usable {
			return p, nil
		}
	} else {
		_, start, ok := s.slotOf(p)
		if !ok || s.heap.Load() == nil {
			return 0, h.alloc.invalidPointer(p)
		}
		usable = start + s.slotSize - p
		class, huge := SizeClassOf(size)
		if !huge && class == s.class && uintptr(size) <= usable {
			return p, nil
		}
	}
	if flags&GrowOrFail != 0 {
		return 0, ErrWouldMove
	}
	np, err := h.Allocate(size)
	if err != nil {
		return 0, err
	}
	if flags&NoPreserve == 0 {
		h.copyBlock(np, p, usable, size, oldSize)
	}
	if err := h.Free(p); err != nil {
		return np, err
	}
	return np, nil
}
