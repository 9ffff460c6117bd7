// Command librpmalloc builds the allocator as a C shared library with the
// rpmalloc entry points:
//
//	go build -buildmode=c-shared -o librpmalloc.so ./cmd/librpmalloc
package main

// #include <stddef.h>
import "C"

import (
	"unsafe"

	"github.com/wilhasse/rpmalloc-go/api"
)

//export rpmalloc_initialize
func rpmalloc_initialize() C.int {
	return C.int(api.Initialize())
}

//export rpmalloc_finalize
func rpmalloc_finalize() {
	api.Finalize()
}

//export rpmalloc_thread_initialize
func rpmalloc_thread_initialize() {
	api.ThreadInitialize()
}

//export rpmalloc_thread_finalize
func rpmalloc_thread_finalize() {
	api.ThreadFinalize()
}

//export rpmalloc_thread_collect
func rpmalloc_thread_collect() {
	api.ThreadCollect()
}

//export rpmalloc_is_thread_initialized
func rpmalloc_is_thread_initialized() C.int {
	return C.int(api.IsThreadInitialized())
}

//export rpmalloc
func rpmalloc(size C.int) unsafe.Pointer {
	return api.Malloc(int(size))
}

//export rpfree
func rpfree(p unsafe.Pointer) {
	api.Free(p)
}

//export rpcalloc
func rpcalloc(count, size C.int) unsafe.Pointer {
	return api.Calloc(int(count), int(size))
}

//export rprealloc
func rprealloc(p unsafe.Pointer, size C.int) unsafe.Pointer {
	return api.Realloc(p, int(size))
}

//export rpaligned_alloc
func rpaligned_alloc(alignment, size C.int) unsafe.Pointer {
	return api.AlignedAlloc(int(alignment), int(size))
}

//export rpaligned_realloc
func rpaligned_realloc(p unsafe.Pointer, alignment, size, oldSize C.int, flags C.uint) unsafe.Pointer {
	return api.AlignedRealloc(p, int(alignment), int(size), int(oldSize), uint32(flags))
}

//export rpmemalign
func rpmemalign(alignment, size C.size_t) unsafe.Pointer {
	return api.MemAlign(int(alignment), int(size))
}

//export rpposix_memalign
func rpposix_memalign(out *unsafe.Pointer, alignment, size C.size_t) C.int {
	return C.int(api.PosixMemAlign(out, int(alignment), int(size)))
}

//export rpmalloc_usable_size
func rpmalloc_usable_size(p unsafe.Pointer) C.long {
	return C.long(api.UsableSize(p))
}

func main() {}
