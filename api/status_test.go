package api

import (
	"testing"

	"github.com/wilhasse/rpmalloc-go/mem"
)

func TestStatusGetI64Unknown(t *testing.T) {
	var dst int64
	if err := StatusGetI64("missing_status", &dst); err != ErrNotFound {
		t.Fatalf("StatusGetI64 got %v, want %v", err, ErrNotFound)
	}
}

func TestStatusGetI64NilDst(t *testing.T) {
	if err := StatusGetI64("mapped_bytes", nil); err != ErrInvalidArgument {
		t.Fatalf("StatusGetI64 got %v, want %v", err, ErrInvalidArgument)
	}
}

func TestStatusValues(t *testing.T) {
	startAllocator(t)
	if v, err := StatusGet("initialized"); err != Success || v != 1 {
		t.Fatalf("initialized got %d, %v", v, err)
	}
	if v, _ := StatusGet("thread_initialized"); v != 1 {
		t.Fatalf("thread_initialized got %d", v)
	}
	if v, _ := StatusGet("MAPPED_BYTES"); v != mem.ChunkSize {
		t.Fatalf("mapped_bytes got %d, want %d", v, mem.ChunkSize)
	}
	p := Malloc(4 << 20)
	if v, _ := StatusGet("huge_alloc_bytes"); v < 4<<20 {
		t.Fatalf("huge_alloc_bytes got %d", v)
	}
	Free(p)
	if v, _ := StatusGet("huge_alloc_bytes"); v != 0 {
		t.Fatalf("huge_alloc_bytes after free got %d", v)
	}
	if v, _ := StatusGet("active_heaps"); v != 1 {
		t.Fatalf("active_heaps got %d", v)
	}
	if v, _ := StatusGet("large_pages"); v != 0 {
		t.Fatalf("large_pages got %d without huge pages configured", v)
	}
	if v, _ := StatusGet("mutex_locks"); v == 0 {
		t.Fatal("expected span allocator lock traffic")
	}
	Finalize()
	if v, _ := StatusGet("initialized"); v != 0 {
		t.Fatalf("initialized after Finalize got %d", v)
	}
	if len(StatusNames()) != len(statusVars) {
		t.Fatal("StatusNames length mismatch")
	}
}
