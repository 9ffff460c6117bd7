package os

import (
	"testing"
	"unsafe"
)

func TestHugePageFlagIsPerMapping(t *testing.T) {
	if wantHugePages(0, HugePageSize) {
		t.Fatalf("no flag should never advise")
	}
	if wantHugePages(MapHugePages, HugePageSize-1) {
		t.Fatalf("small mappings should not be advised")
	}
	if !wantHugePages(MapHugePages, HugePageSize) {
		t.Fatalf("flagged chunk-sized mapping should be advised")
	}
	before := HugePageMappings()
	plain, err := MapAligned(HugePageSize, HugePageSize, 0)
	if err != nil {
		t.Fatalf("MapAligned: %v", err)
	}
	if plain.HugePages {
		t.Fatalf("unflagged mapping was advised")
	}
	advised, err := MapAligned(HugePageSize, HugePageSize, MapHugePages)
	if err != nil {
		t.Fatalf("MapAligned: %v", err)
	}
	if advised.HugePages && HugePageMappings() != before+1 {
		t.Fatalf("huge mappings=%d before=%d", HugePageMappings(), before)
	}
	if err := Unmap(advised); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if err := Unmap(plain); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if HugePageMappings() != before {
		t.Fatalf("huge mappings=%d after unmap, want %d", HugePageMappings(), before)
	}
}

func TestPageSize(t *testing.T) {
	page := PageSize()
	if page == 0 || page&(page-1) != 0 {
		t.Fatalf("page size=%d", page)
	}
}

func TestMapAlignedRoundTrip(t *testing.T) {
	before := MappedBytes()
	const align = 2 << 20
	m, err := MapAligned(1000, align, 0)
	if err != nil {
		t.Fatalf("MapAligned: %v", err)
	}
	if m.Base%align != 0 {
		t.Fatalf("base %#x not aligned to %#x", m.Base, align)
	}
	if m.Size%PageSize() != 0 || m.Size < 1000 {
		t.Fatalf("size=%d", m.Size)
	}
	buf := unsafe.Slice((*byte)(unsafe.Pointer(m.Base)), m.Size)
	for i := range buf {
		if buf[i] != 0 {
			t.Fatalf("expected zeroed mapping at %d", i)
		}
	}
	buf[0] = 0xAA
	buf[len(buf)-1] = 0xBB
	if got := MappedBytes(); got != before+int64(m.Size) {
		t.Fatalf("mapped=%d before=%d", got, before)
	}
	if err := Decommit(m.Base, m.Size); err != nil {
		t.Fatalf("Decommit: %v", err)
	}
	if err := Unmap(m); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if got := MappedBytes(); got != before {
		t.Fatalf("mapped=%d after unmap, want %d", got, before)
	}
}

func TestMapAlignedRejectsZero(t *testing.T) {
	if _, err := MapAligned(0, 4096, 0); err == nil {
		t.Fatalf("expected error for zero-size mapping")
	}
}
