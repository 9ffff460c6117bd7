//go:build unix && !linux

package os

// Transparent huge pages are Linux-only.
func adviseHugePages(_, _ uintptr) bool { return false }
