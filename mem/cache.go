package mem

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/wilhasse/rpmalloc-go/sync"
)

// classCache is the global pool of free spans for one size class.
type classCache struct {
	mu    sync.SpinMutex
	spans []*span
	limit int
	_     cpu.CacheLinePad
}

// globalCache holds fully free spans evicted from heaps, per class, up to a
// watermark. Spans beyond the watermark go back to the span allocator.
type globalCache struct {
	classes [NumClasses]classCache
	bytes   atomic.Uint64
}

// scaledLimit spreads a span budget over classes with longer spans.
func scaledLimit(limit int, units uint32) int {
	if limit <= 0 {
		return 0
	}
	n := limit / int(units)
	if n < 1 {
		n = 1
	}
	return n
}

func newGlobalCache(limitSpans int) *globalCache {
	g := &globalCache{}
	for i := range g.classes {
		g.classes[i].limit = scaledLimit(limitSpans, sizeClasses[i].SpanUnits)
	}
	return g
}

// cacheSpan stores a free span. It reports false when the class is at its
// watermark; the caller then releases the span.
func (g *globalCache) cacheSpan(s *span) bool {
	cc := &g.classes[s.class]
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if len(cc.spans) >= cc.limit {
		return false
	}
	s.state = spanGlobalCached
	s.heap.Store(nil)
	cc.spans = append(cc.spans, s)
	g.bytes.Add(uint64(s.size()))
	return true
}

func (g *globalCache) takeSpan(class int) *span {
	cc := &g.classes[class]
	cc.mu.Lock()
	defer cc.mu.Unlock()
	n := len(cc.spans)
	if n == 0 {
		return nil
	}
	s := cc.spans[n-1]
	cc.spans[n-1] = nil
	cc.spans = cc.spans[:n-1]
	g.bytes.Add(^(uint64(s.size()) - 1))
	return s
}

// drain empties every class and returns the spans.
func (g *globalCache) drain() []*span {
	var out []*span
	for i := range g.classes {
		cc := &g.classes[i]
		cc.mu.Lock()
		out = append(out, cc.spans...)
		clear(cc.spans)
		cc.spans = cc.spans[:0]
		cc.mu.Unlock()
	}
	g.bytes.Store(0)
	return out
}

func (g *globalCache) cachedBytes() uint64 {
	return g.bytes.Load()
}

func (g *globalCache) count(class int) int {
	cc := &g.classes[class]
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return len(cc.spans)
}
