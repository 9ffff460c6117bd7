package ut

import (
	"fmt"
	"strings"
)

// IsPowerOfTwo reports whether n is a non-zero power of two.
func IsPowerOfTwo(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}

// AlignUp rounds n up to a multiple of align, which must be a power of two.
func AlignUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}

// PrintBuf formats a byte buffer in hex and ASCII.
func PrintBuf(buf []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "len %d; hex ", len(buf))
	for _, v := range buf {
		fmt.Fprintf(&b, "%02x", v)
	}
	b.WriteString("; asc ")
	for _, v := range buf {
		if v >= 32 && v <= 126 {
			b.WriteByte(v)
		} else {
			b.WriteByte(' ')
		}
	}
	b.WriteString(";")
	return b.String()
}
