package mem

import (
	"math/bits"
	"sync/atomic"

	"github.com/wilhasse/rpmalloc-go/ut"
)

type spanState uint8

const (
	spanUnused spanState = iota
	spanActive
	spanPartial
	spanFull
	spanHeapCached
	spanGlobalCached
)

// span is a run of span units inside one chunk, cut into equal slots.
// Slot state lives in a bitmap (set bit = free slot) kept in Go memory, so
// the slots themselves carry no headers.
type span struct {
	base      uintptr
	chunk     *chunk
	unit      uint8
	units     uint8
	class     int
	slotSize  uintptr
	slotCount uint32
	freeCount uint32
	bitmap    []uint64
	hint      int
	state     spanState

	// heap is a weak back-reference to the owning heap; nil while the span
	// sits in the global cache.
	heap atomic.Pointer[Heap]
	link ut.ListNode[*span]
}

func newSpan(c *chunk, unit, units int) *span {
	s := &span{
		base:  c.base + uintptr(unit)<<SpanUnitShift,
		chunk: c,
		unit:  uint8(unit),
		units: uint8(units),
		class: -1,
	}
	s.link.Data = s
	return s
}

func (s *span) size() uintptr {
	return uintptr(s.units) << SpanUnitShift
}

// format prepares the span to serve class with every slot free.
func (s *span) format(class int) {
	info := &sizeClasses[class]
	words := int(info.SlotCount+63) / 64
	if s.class != class || len(s.bitmap) != words {
		s.class = class
		s.slotSize = uintptr(info.SlotSize)
		s.slotCount = info.SlotCount
		s.bitmap = make([]uint64, words)
	}
	s.resetFree()
}

// resetFree marks every slot free.
func (s *span) resetFree() {
	for i := range s.bitmap {
		s.bitmap[i] = ^uint64(0)
	}
	if tail := s.slotCount % 64; tail != 0 {
		s.bitmap[len(s.bitmap)-1] = 1<<tail - 1
	}
	s.freeCount = s.slotCount
	s.hint = 0
}

func (s *span) empty() bool {
	return s.freeCount == s.slotCount
}

func (s *span) full() bool {
	return s.freeCount == 0
}

func (s *span) popSlot() (uint32, bool) {
	for w := s.hint; w < len(s.bitmap); w++ {
		if b := s.bitmap[w]; b != 0 {
			bit := bits.TrailingZeros64(b)
			s.bitmap[w] = b &^ (1 << bit)
			s.freeCount--
			s.hint = w
			return uint32(w*64 + bit), true
		}
	}
	s.hint = len(s.bitmap)
	return 0, false
}

// pushSlot marks idx free. It reports false if the slot was already free.
func (s *span) pushSlot(idx uint32) bool {
	w, bit := int(idx/64), idx%64
	if s.bitmap[w]&(1<<bit) != 0 {
		return false
	}
	s.bitmap[w] |= 1 << bit
	s.freeCount++
	if w < s.hint {
		s.hint = w
	}
	return true
}

func (s *span) slotFree(idx uint32) bool {
	return s.bitmap[idx/64]&(1<<(idx%64)) != 0
}

func (s *span) slotAddr(idx uint32) uintptr {
	return s.base + uintptr(idx)*s.slotSize
}

// slotOf maps any address inside a slot to the slot index and start. The
// tail past the last slot is not a valid block.
func (s *span) slotOf(p uintptr) (uint32, uintptr, bool) {
	if s.slotSize == 0 || p < s.base {
		return 0, 0, false
	}
	idx := (p - s.base) / s.slotSize
	if idx >= uintptr(s.slotCount) {
		return 0, 0, false
	}
	return uint32(idx), s.base + idx*s.slotSize, true
}
