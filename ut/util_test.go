package ut

import (
	"strings"
	"testing"
)

func TestPowerHelpers(t *testing.T) {
	for _, n := range []uint64{1, 2, 64, 1 << 40} {
		if !IsPowerOfTwo(n) {
			t.Fatalf("expected %d to be a power of two", n)
		}
	}
	for _, n := range []uint64{0, 3, 48, 1<<40 + 1} {
		if IsPowerOfTwo(n) {
			t.Fatalf("expected %d not to be a power of two", n)
		}
	}
}

func TestAlign(t *testing.T) {
	if got := AlignUp(100, 64); got != 128 {
		t.Fatalf("align up=%d", got)
	}
	if got := AlignUp(128, 64); got != 128 {
		t.Fatalf("align up exact=%d", got)
	}
}

func TestPrintBuf(t *testing.T) {
	out := PrintBuf([]byte{'A', 0x00, 'z'})
	if !strings.Contains(out, "len 3") || !strings.Contains(out, "hex 41007a") {
		t.Fatalf("print buf=%q", out)
	}
	if !strings.Contains(out, "asc A z;") {
		t.Fatalf("print buf asc=%q", out)
	}
}
