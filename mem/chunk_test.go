package mem

import (
	"math/bits"
	"testing"
)

func newTestSpanAllocator(t *testing.T) (*spanAllocator, *globalCounters) {
	t.Helper()
	counters := new(globalCounters)
	sa := newSpanAllocator(new(chunkTable), counters, Config{DecommitSpans: true})
	t.Cleanup(sa.teardown)
	return sa, counters
}

func TestChunkTable(t *testing.T) {
	var table chunkTable
	c := &chunk{base: 7 * ChunkSize}
	if err := table.insert(c); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := table.insert(c); err == nil {
		t.Fatalf("expected duplicate insert to fail")
	}
	if got := table.lookup(c.base + 12345); got != c {
		t.Fatalf("lookup inside chunk=%v", got)
	}
	if got := table.lookup(c.base + ChunkSize); got != nil {
		t.Fatalf("lookup past chunk=%v", got)
	}
	if err := table.insert(&chunk{base: 1 << 50}); err == nil {
		t.Fatalf("expected out of range insert to fail")
	}
	table.remove(c)
	if table.lookup(c.base) != nil {
		t.Fatalf("lookup after remove")
	}
}

func TestChunkFreeMaskCoversEveryUnit(t *testing.T) {
	if n := bits.OnesCount32(allUnitsFree); n != UnitsPerChunk {
		t.Fatalf("free mask has %d bits, want %d", n, UnitsPerChunk)
	}
	c := &chunk{freeMask: allUnitsFree}
	if first, ok := c.findRun(UnitsPerChunk); !ok || first != 0 {
		t.Fatalf("whole-chunk run=%d,%v", first, ok)
	}
}

func TestChunkFindRun(t *testing.T) {
	c := &chunk{freeMask: allUnitsFree}
	if first, ok := c.findRun(4); !ok || first != 0 {
		t.Fatalf("findRun on empty chunk=%d,%v", first, ok)
	}
	c.freeMask = 0b1110_0111
	if first, ok := c.findRun(3); !ok || first != 0 {
		t.Fatalf("findRun(3)=%d,%v", first, ok)
	}
	c.freeMask = 0b1110_0011
	if first, ok := c.findRun(3); !ok || first != 5 {
		t.Fatalf("findRun(3)=%d,%v", first, ok)
	}
	if _, ok := c.findRun(4); ok {
		t.Fatalf("findRun(4) should fail")
	}
	c.freeMask = 1 << (UnitsPerChunk - 1)
	if _, ok := c.findRun(2); ok {
		t.Fatalf("run must not wrap past the chunk")
	}
}

func TestSpanAllocatorAcquireRelease(t *testing.T) {
	sa, counters := newTestSpanAllocator(t)
	var spans []*span
	for i := 0; i < UnitsPerChunk/4; i++ {
		s, err := sa.acquire(4)
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		spans = append(spans, s)
	}
	if sa.chunkCount() != 1 {
		t.Fatalf("chunks=%d", sa.chunkCount())
	}
	first := spans[0]
	if got := sa.table.lookup(first.base).spanAt(first.base + 3*SpanUnit); got != first {
		t.Fatalf("unit lookup=%v", got)
	}
	s, err := sa.acquire(1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if sa.chunkCount() != 2 {
		t.Fatalf("expected a second chunk, got %d", sa.chunkCount())
	}
	sa.release(s)
	if sa.chunkCount() != 1 {
		t.Fatalf("empty chunk not unmapped")
	}
	for _, s := range spans {
		sa.release(s)
	}
	if sa.chunkCount() != 0 || counters.mappedBytes.Load() != 0 {
		t.Fatalf("chunks=%d mapped=%d", sa.chunkCount(), counters.mappedBytes.Load())
	}
	if counters.spansLive.Load() != 0 {
		t.Fatalf("spans=%d", counters.spansLive.Load())
	}
	if _, err := sa.acquire(MaxSpanUnits + 1); err == nil {
		t.Fatalf("expected oversized span to fail")
	}
}

func TestSpanAllocatorHuge(t *testing.T) {
	sa, counters := newTestSpanAllocator(t)
	c, err := sa.mapHuge(3<<20, 8<<20, nil)
	if err != nil {
		t.Fatalf("mapHuge: %v", err)
	}
	if c.base%(8<<20) != 0 || c.mapping.Size < 3<<20 {
		t.Fatalf("huge block %#x size %d", c.base, c.mapping.Size)
	}
	if sa.table.lookup(c.base) != c {
		t.Fatalf("huge block not registered")
	}
	if counters.hugeBytes.Load() != uint64(c.mapping.Size) {
		t.Fatalf("hugeBytes=%d", counters.hugeBytes.Load())
	}
	if !sa.unmapHuge(c) {
		t.Fatalf("unmapHuge failed")
	}
	if sa.unmapHuge(c) {
		t.Fatalf("second unmapHuge succeeded")
	}
	if counters.hugeBytes.Load() != 0 || counters.hugePeak.Load() == 0 {
		t.Fatalf("huge counters %d/%d", counters.hugeBytes.Load(), counters.hugePeak.Load())
	}
}

func TestSpanSlots(t *testing.T) {
	c := &chunk{base: ChunkSize}
	s := newSpan(c, 2, 1)
	class, _ := SizeClassOf(1000)
	s.format(class)
	info := ClassInfo(class)
	if s.slotCount != info.SlotCount || !s.empty() {
		t.Fatalf("format: count=%d free=%d", s.slotCount, s.freeCount)
	}
	var got []uint32
	for {
		idx, ok := s.popSlot()
		if !ok {
			break
		}
		got = append(got, idx)
	}
	if len(got) != int(info.SlotCount) || !s.full() {
		t.Fatalf("popped %d slots", len(got))
	}
	addr := s.slotAddr(5)
	if idx, start, ok := s.slotOf(addr + 17); !ok || idx != 5 || start != addr {
		t.Fatalf("slotOf=%d,%#x,%v", idx, start, ok)
	}
	if _, _, ok := s.slotOf(s.base + uintptr(info.SlotCount)*s.slotSize); ok {
		t.Fatalf("tail past the last slot accepted")
	}
	if !s.pushSlot(5) || s.pushSlot(5) {
		t.Fatalf("pushSlot did not detect double free")
	}
	if idx, _ := s.popSlot(); idx != 5 {
		t.Fatalf("expected freed slot back, got %d", idx)
	}
}

func TestGlobalCache(t *testing.T) {
	g := newGlobalCache(2)
	class := 3
	var spans []*span
	for i := 0; i < 3; i++ {
		s := newSpan(&chunk{}, i, 1)
		s.format(class)
		spans = append(spans, s)
	}
	if !g.cacheSpan(spans[0]) || !g.cacheSpan(spans[1]) {
		t.Fatalf("cacheSpan under watermark failed")
	}
	if g.cacheSpan(spans[2]) {
		t.Fatalf("cacheSpan over watermark succeeded")
	}
	if g.count(class) != 2 || g.cachedBytes() != 2*SpanUnit {
		t.Fatalf("count=%d bytes=%d", g.count(class), g.cachedBytes())
	}
	if s := g.takeSpan(class); s != spans[1] {
		t.Fatalf("takeSpan=%v", s)
	}
	if g.takeSpan(class+1) != nil {
		t.Fatalf("other class not empty")
	}
	if out := g.drain(); len(out) != 1 || g.cachedBytes() != 0 {
		t.Fatalf("drain=%d bytes=%d", len(out), g.cachedBytes())
	}
	if scaledLimit(8, 16) != 1 || scaledLimit(8, 2) != 4 || scaledLimit(0, 1) != 0 {
		t.Fatalf("scaledLimit")
	}
}

func TestDeferredQueue(t *testing.T) {
	slots := make([]uintptr, 4)
	var q deferredQueue
	if q.pending() || q.take() != 0 {
		t.Fatalf("empty queue")
	}
	a := newTestAllocator(t, DefaultConfig())
	h := newTestHeap(t, a)
	for i := range slots {
		slots[i] = mustAlloc(t, h, 16)
		q.push(slots[i])
	}
	if !q.pending() || q.pushed.Load() != 4 {
		t.Fatalf("pushed=%d", q.pushed.Load())
	}
	i := len(slots) - 1
	for p := q.take(); p != 0; p = deferredNext(p) {
		if p != slots[i] {
			t.Fatalf("order: got %#x want %#x", p, slots[i])
		}
		i--
	}
	if i != -1 || q.pending() {
		t.Fatalf("walked %d slots", len(slots)-1-i)
	}
}
