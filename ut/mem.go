package ut

// Memcpy copies n bytes from src to dst.
func Memcpy(dst, src []byte, n int) []byte {
	if n <= 0 {
		return dst
	}
	if n > len(src) {
		n = len(src)
	}
	if n > len(dst) {
		n = len(dst)
	}
	copy(dst[:n], src[:n])
	return dst
}

// Memset fills the first n bytes of dst with c.
func Memset(dst []byte, c byte, n int) []byte {
	if n > len(dst) {
		n = len(dst)
	}
	if c == 0 {
		clear(dst[:n])
		return dst
	}
	for i := 0; i < n; i++ {
		dst[i] = c
	}
	return dst
}
