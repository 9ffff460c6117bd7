package mem

const (
	// SmallGranularity is the slot size step for small classes.
	SmallGranularity = 16
	// SmallSizeLimit is the largest small slot.
	SmallSizeLimit = 1024
	// MediumSizeLimit is the largest medium slot.
	MediumSizeLimit = 32 << 10
	// SpanUnitShift is log2 of SpanUnit.
	SpanUnitShift = 16
	// SpanUnit is the granule spans are carved from.
	SpanUnit = 1 << SpanUnitShift
	// ChunkShift is log2 of ChunkSize.
	ChunkShift = 21
	// ChunkSize is the size and alignment of an OS chunk.
	ChunkSize = 1 << ChunkShift
	// UnitsPerChunk is the number of span units in a chunk.
	UnitsPerChunk = ChunkSize / SpanUnit
	// MaxSpanUnits is the span length, in units, of the largest class.
	MaxSpanUnits = 16
	// LargeSizeLimit is the largest size served from spans. Anything above
	// is a huge allocation with its own mapping.
	LargeSizeLimit = MaxSpanUnits * SpanUnit

	SmallClassCount  = SmallSizeLimit / SmallGranularity
	MediumClassCount = 20
	LargeClassCount  = MaxSpanUnits
	NumClasses       = SmallClassCount + MediumClassCount + LargeClassCount

	mediumGranularityShift = 7
	mediumStepsPerDoubling = 4
	mediumMaxSpanUnits     = 4
	firstLargeClass        = SmallClassCount + MediumClassCount
)

// SizeClass describes the slots served for one range of request sizes.
type SizeClass struct {
	Index     int
	SlotSize  uint32
	SpanUnits uint32
	SlotCount uint32
}

// SpanSize returns the size of a span of this class in bytes.
func (c *SizeClass) SpanSize() uintptr {
	return uintptr(c.SpanUnits) << SpanUnitShift
}

var (
	sizeClasses [NumClasses]SizeClass
	// mediumIndex maps ceil(size/128) to a class for medium sizes.
	mediumIndex [MediumSizeLimit>>mediumGranularityShift + 1]uint8
)

func init() {
	buildSizeClasses()
}

func buildSizeClasses() {
	idx := 0
	for i := 1; i <= SmallClassCount; i++ {
		sizeClasses[idx] = newSizeClass(idx, uint32(i*SmallGranularity), 1)
		idx++
	}
	for base := uint32(SmallSizeLimit); base < MediumSizeLimit; base *= 2 {
		step := base / mediumStepsPerDoubling
		for k := uint32(1); k <= mediumStepsPerDoubling; k++ {
			slot := base + k*step
			sizeClasses[idx] = newSizeClass(idx, slot, mediumSpanUnits(slot))
			idx++
		}
	}
	for units := uint32(1); units <= MaxSpanUnits; units++ {
		sizeClasses[idx] = newSizeClass(idx, units*SpanUnit, units)
		idx++
	}
	if idx != NumClasses {
		panic("mem: size class table mismatch")
	}

	class := SmallClassCount
	for g := SmallSizeLimit>>mediumGranularityShift + 1; g < len(mediumIndex); g++ {
		for uint32(g<<mediumGranularityShift) > sizeClasses[class].SlotSize {
			class++
		}
		mediumIndex[g] = uint8(class)
	}
}

func newSizeClass(idx int, slot, units uint32) SizeClass {
	return SizeClass{
		Index:     idx,
		SlotSize:  slot,
		SpanUnits: units,
		SlotCount: units * SpanUnit / slot,
	}
}

// mediumSpanUnits picks the span length with the smallest unusable tail.
func mediumSpanUnits(slot uint32) uint32 {
	best := uint32(1)
	bestWaste := float64(1)
	for units := uint32(1); units <= mediumMaxSpanUnits; units++ {
		span := units * SpanUnit
		waste := float64(span%slot) / float64(span)
		if waste < bestWaste {
			best, bestWaste = units, waste
		}
	}
	return best
}

// SizeClassOf returns the smallest class whose slot holds size bytes. huge
// is true when size is above LargeSizeLimit; class is then -1.
func SizeClassOf(size int) (class int, huge bool) {
	switch {
	case size < 0:
		return -1, false
	case size <= SmallGranularity:
		return 0, false
	case size <= SmallSizeLimit:
		return (size - 1) / SmallGranularity, false
	case size <= MediumSizeLimit:
		return int(mediumIndex[(size+(1<<mediumGranularityShift)-1)>>mediumGranularityShift]), false
	case size <= LargeSizeLimit:
		return firstLargeClass + (size-1)>>SpanUnitShift, false
	default:
		return -1, true
	}
}

// ClassInfo returns the class with the given index.
func ClassInfo(class int) SizeClass {
	return sizeClasses[class]
}

// Classes returns a copy of the size class table.
func Classes() []SizeClass {
	out := make([]SizeClass, NumClasses)
	copy(out, sizeClasses[:])
	return out
}
