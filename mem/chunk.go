package mem

import (
	"fmt"
	"math/bits"
	"sync/atomic"

	"github.com/wilhasse/rpmalloc-go/os"
	"github.com/wilhasse/rpmalloc-go/sync"
	"github.com/wilhasse/rpmalloc-go/ut"
)

type chunkKind uint8

const (
	chunkSpans chunkKind = iota
	chunkHuge
)

const allUnitsFree = uint32(1<<UnitsPerChunk - 1)

// chunk is one OS mapping. Span chunks are ChunkSize bytes cut into span
// units; huge chunks hold a single block.
type chunk struct {
	mapping os.Mapping
	base    uintptr
	kind    chunkKind

	// Span chunks: freeMask has bit i set while unit i is unused, and
	// units[i] points at the span covering unit i.
	freeMask uint32
	units    [UnitsPerChunk]atomic.Pointer[span]

	// Huge chunks.
	owner *Heap
	freed bool

	link ut.ListNode[*chunk]
	all  ut.ListNode[*chunk]
}

func (c *chunk) spanAt(p uintptr) *span {
	if p < c.base {
		return nil
	}
	unit := (p - c.base) >> SpanUnitShift
	if unit >= UnitsPerChunk {
		return nil
	}
	return c.units[unit].Load()
}

// findRun returns the first unit of a run of n free units.
func (c *chunk) findRun(n int) (int, bool) {
	want := uint32(1)<<n - 1
	for m := c.freeMask; m != 0; m &= m - 1 {
		first := bits.TrailingZeros32(m)
		if first+n > UnitsPerChunk {
			break
		}
		if (c.freeMask>>first)&want == want {
			return first, true
		}
	}
	return 0, false
}

// spanAllocator hands out spans carved from 2 MiB chunks and maps huge
// blocks. Every mutation of the chunk set holds mu.
type spanAllocator struct {
	mu       sync.SpinMutex
	table    *chunkTable
	chunks   ut.List[*chunk]
	avail    ut.List[*chunk]
	huge     ut.List[*chunk]
	counters *globalCounters
	decommit bool
	mapFlags os.MapFlags
	logf     func(format string, args ...any)
}

func newSpanAllocator(table *chunkTable, counters *globalCounters, cfg Config) *spanAllocator {
	sa := &spanAllocator{
		table:    table,
		counters: counters,
		decommit: cfg.DecommitSpans,
		logf:     cfg.Logf,
	}
	if cfg.HugePages {
		sa.mapFlags |= os.MapHugePages
	}
	return sa
}

// reserve maps n empty chunks ahead of demand.
func (sa *spanAllocator) reserve(n int) error {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	for i := 0; i < n; i++ {
		if _, err := sa.mapSpanChunk(); err != nil {
			return err
		}
	}
	return nil
}

// acquire returns an unformatted span of the given number of units.
func (sa *spanAllocator) acquire(units int) (*span, error) {
	if units <= 0 || units > MaxSpanUnits {
		return nil, fmt.Errorf("mem: span of %d units: %w", units, ErrInvalidArgument)
	}
	sa.mu.Lock()
	defer sa.mu.Unlock()
	for n := sa.avail.First; n != nil; n = n.Next {
		if first, ok := n.Data.findRun(units); ok {
			return sa.carve(n.Data, first, units), nil
		}
	}
	c, err := sa.mapSpanChunk()
	if err != nil {
		return nil, err
	}
	first, _ := c.findRun(units)
	return sa.carve(c, first, units), nil
}

func (sa *spanAllocator) carve(c *chunk, first, units int) *span {
	c.freeMask &^= (uint32(1)<<units - 1) << first
	if c.freeMask == 0 {
		ut.ListRemove(&sa.avail, &c.link)
	}
	s := newSpan(c, first, units)
	for i := first; i < first+units; i++ {
		c.units[i].Store(s)
	}
	sa.counters.spansLive.Add(1)
	return s
}

// release gives a span's units back to its chunk. The chunk is unmapped
// once all of its units are free.
func (sa *spanAllocator) release(s *span) {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	c := s.chunk
	first, units := int(s.unit), int(s.units)
	for i := first; i < first+units; i++ {
		c.units[i].Store(nil)
	}
	c.freeMask |= (uint32(1)<<units - 1) << first
	s.state = spanUnused
	s.heap.Store(nil)
	sa.counters.spansLive.Add(-1)
	if c.freeMask == allUnitsFree {
		sa.unmapSpanChunk(c)
		return
	}
	if sa.decommit {
		if err := os.Decommit(s.base, s.size()); err != nil && sa.logf != nil {
			sa.logf("mem: decommit span %#x: %v\n", s.base, err)
		}
	}
	if !c.link.Linked() {
		ut.ListAddLast(&sa.avail, &c.link)
	}
}

func (sa *spanAllocator) mapSpanChunk() (*chunk, error) {
	m, err := os.MapAligned(ChunkSize, ChunkSize, sa.mapFlags)
	if err != nil {
		if sa.logf != nil {
			sa.logf("mem: map chunk: %v\n", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}
	c := &chunk{mapping: m, base: m.Base, kind: chunkSpans, freeMask: allUnitsFree}
	c.link.Data = c
	c.all.Data = c
	if err := sa.table.insert(c); err != nil {
		_ = os.Unmap(m)
		return nil, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}
	ut.ListAddLast(&sa.chunks, &c.all)
	ut.ListAddFirst(&sa.avail, &c.link)
	sa.counters.mapped(uint64(m.Size))
	return c, nil
}

func (sa *spanAllocator) unmapSpanChunk(c *chunk) {
	sa.table.remove(c)
	ut.ListRemove(&sa.avail, &c.link)
	ut.ListRemove(&sa.chunks, &c.all)
	if err := os.Unmap(c.mapping); err != nil && sa.logf != nil {
		sa.logf("mem: unmap chunk %#x: %v\n", c.base, err)
	}
	sa.counters.unmapped(uint64(c.mapping.Size))
}

// teardown unmaps every chunk and huge block regardless of what they hold.
func (sa *spanAllocator) teardown() {
	sa.mu.Lock()
	var chunks, huge []*chunk
	for n := sa.chunks.First; n != nil; n = n.Next {
		chunks = append(chunks, n.Data)
	}
	for n := sa.huge.First; n != nil; n = n.Next {
		huge = append(huge, n.Data)
	}
	for _, c := range chunks {
		for i := range c.units {
			c.units[i].Store(nil)
		}
		sa.unmapSpanChunk(c)
	}
	sa.mu.Unlock()
	for _, c := range huge {
		sa.unmapHuge(c)
	}
	sa.counters.spansLive.Store(0)
}

func (sa *spanAllocator) chunkCount() int {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	return sa.chunks.Len
}
