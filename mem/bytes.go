package mem

import "unsafe"

// Bytes returns a slice over n bytes starting at p. The memory is not
// managed by the Go collector and must not be used after it is freed.
func Bytes(p uintptr, n int) []byte {
	if p == 0 || n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), n)
}

// ByteAllocator is a slice-shaped allocation contract for callers that
// work with []byte rather than raw addresses.
type ByteAllocator interface {
	Alloc(size int) []byte
	AllocZero(size int) []byte
	Free(buf []byte)
}

// HeapAllocator serves slices from a Heap. Like the heap, it belongs to one
// goroutine; Free accepts slices from any HeapAllocator of the same
// allocator. Allocation failures return nil.
type HeapAllocator struct {
	Heap *Heap
}

func (ha HeapAllocator) Alloc(size int) []byte {
	if size <= 0 {
		return nil
	}
	p, err := ha.Heap.Allocate(size)
	if err != nil {
		return nil
	}
	return Bytes(p, size)
}

func (ha HeapAllocator) AllocZero(size int) []byte {
	if size <= 0 {
		return nil
	}
	p, err := ha.Heap.Calloc(1, size)
	if err != nil {
		return nil
	}
	return Bytes(p, size)
}

func (ha HeapAllocator) Free(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	_ = ha.Heap.Free(uintptr(unsafe.Pointer(unsafe.SliceData(buf))))
}

var _ ByteAllocator = HeapAllocator{}
