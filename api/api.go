package api

import (
	stdsync "sync"
	"sync/atomic"
	"unsafe"

	"github.com/wilhasse/rpmalloc-go/mem"
	"github.com/wilhasse/rpmalloc-go/os"
	"github.com/wilhasse/rpmalloc-go/thr"
)

// Flags for AlignedRealloc.
const (
	NoPreserve = mem.NoPreserve
	GrowOrFail = mem.GrowOrFail
)

var (
	lifecycleMu stdsync.Mutex
	// current is the process allocator. A finalized allocator stays here so
	// later calls report use after finalize.
	current atomic.Pointer[mem.Allocator]
	started atomic.Bool
	// heaps holds the heaps bound by ThreadInitialize. Other goroutines
	// borrow a heap from the allocator's pool for the length of a call.
	heaps   thr.Local[*mem.Heap]
	lastErr atomic.Int32
)

func isStarted() bool {
	return started.Load()
}

// LastError returns the status recorded by the most recent failed call in
// the process, or Success.
func LastError() ErrCode {
	return ErrCode(lastErr.Load())
}

// ClearLastError resets LastError to Success.
func ClearLastError() {
	lastErr.Store(int32(Success))
}

func setLastError(err error) ErrCode {
	code := CodeOf(err)
	lastErr.Store(int32(code))
	return code
}

// Initialize sets up the process allocator from the configuration registry
// and binds a heap to the calling goroutine.
func Initialize() int {
	return InitializeConfig(configFromRegistry())
}

// InitializeConfig sets up the process allocator with cfg. A nil cfg.Logf
// routes diagnostics through Logger. Initializing twice without Finalize
// fails with ErrAlreadyInit; after Finalize a fresh allocator is created.
func InitializeConfig(cfg mem.Config) int {
	lifecycleMu.Lock()
	defer lifecycleMu.Unlock()
	if isStarted() {
		return int(setLastError(ErrAlreadyInit))
	}
	if cfg.Logf == nil {
		cfg.Logf = memLogf
	}
	a := mem.New(cfg)
	if err := a.Initialize(); err != nil {
		Log(nil, "rpmalloc: initialize: %v\n", err)
		return int(setLastError(err))
	}
	current.Store(a)
	started.Store(true)
	if _, err := threadHeap(true); err != nil {
		return int(setLastError(err))
	}
	return int(Success)
}

// Finalize tears the process allocator down. Every block it handed out is
// released; calls after Finalize fail until the next Initialize.
func Finalize() {
	lifecycleMu.Lock()
	defer lifecycleMu.Unlock()
	if !isStarted() {
		return
	}
	a := current.Load()
	heaps.Drain()
	started.Store(false)
	if err := a.Finalize(); err != nil {
		setLastError(err)
	}
}

// ThreadInitialize binds a heap to the calling goroutine. A goroutine that
// never calls it allocates from pooled heaps, so short-lived goroutines
// need no cleanup.
func ThreadInitialize() {
	if _, err := threadHeap(true); err != nil {
		setLastError(err)
	}
}

// ThreadFinalize flushes the calling goroutine's heap and unbinds it.
func ThreadFinalize() {
	h, ok := heaps.Delete()
	if !ok || h.State() != mem.HeapActive {
		return
	}
	h.Finalize()
}

// ThreadCollect returns the calling goroutine's deferred frees and cached
// spans to the shared pools. Without a bound heap it collects the idle
// pooled heaps.
func ThreadCollect() {
	if h, ok := heaps.Get(); ok && h.State() == mem.HeapActive {
		h.Collect()
		return
	}
	if a := current.Load(); a != nil && a.State() == mem.StateInitialized {
		a.Pool().Collect()
	}
}

// IsThreadInitialized reports 1 when the calling goroutine has a heap.
func IsThreadInitialized() int {
	if _, ok := boundHeap(current.Load()); !ok {
		return 0
	}
	return 1
}

// threadHeap returns the calling goroutine's bound heap, binding a new one
// if asked.
func threadHeap(create bool) (*mem.Heap, error) {
	a := current.Load()
	if a == nil {
		return nil, mem.ErrNotInitialized
	}
	if h, ok := boundHeap(a); ok {
		return h, nil
	}
	if !create {
		return nil, nil
	}
	h, err := a.NewHeap()
	if err != nil {
		return nil, err
	}
	heaps.Set(h)
	return h, nil
}

// lease is the heap serving one call: the bound heap, or one borrowed
// from the pool and handed back by release.
type lease struct {
	heap *mem.Heap
	id   os.ThreadID
	pool *mem.HeapPool
}

func acquire() (lease, error) {
	a := current.Load()
	if a == nil {
		return lease{}, mem.ErrNotInitialized
	}
	id := os.ThreadGetCurrID()
	if heaps.Len() > 0 {
		if h, ok := heaps.GetID(id); ok && h.Allocator() == a && h.State() == mem.HeapActive {
			return lease{heap: h, id: id}, nil
		}
	}
	h, err := a.Pool().Borrow(uint64(id))
	if err != nil {
		return lease{}, err
	}
	return lease{heap: h, id: id, pool: a.Pool()}, nil
}

// boundHeap returns the heap bound to the calling goroutine, if any.
func boundHeap(a *mem.Allocator) (*mem.Heap, bool) {
	h, ok := heaps.Get()
	if !ok || h.Allocator() != a || h.State() != mem.HeapActive {
		return nil, false
	}
	return h, true
}

func (l lease) release() {
	if l.pool != nil {
		l.pool.Return(uint64(l.id), l.heap)
	}
}

func pointer(p uintptr, err error) unsafe.Pointer {
	if err != nil {
		setLastError(err)
		return nil
	}
	return unsafe.Pointer(p)
}

func addr(p unsafe.Pointer) uintptr {
	return uintptr(p)
}

// Malloc allocates size bytes. Size 0 returns a valid 16-byte block.
func Malloc(size int) unsafe.Pointer {
	l, err := acquire()
	if err != nil {
		return pointer(0, err)
	}
	defer l.release()
	return pointer(l.heap.Allocate(size))
}

// Free releases p. Nil is a no-op. A goroutine with no bound heap hands
// the block straight to its owner.
func Free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	a := current.Load()
	if a == nil {
		setLastError(mem.ErrNotInitialized)
		return
	}
	var err error
	if h, ok := boundHeap(a); ok {
		err = h.Free(addr(p))
	} else {
		err = a.Free(addr(p))
	}
	if err != nil {
		setLastError(err)
	}
}

// Calloc allocates count*size zeroed bytes, failing on overflow.
func Calloc(count, size int) unsafe.Pointer {
	l, err := acquire()
	if err != nil {
		return pointer(0, err)
	}
	defer l.release()
	return pointer(l.heap.Calloc(count, size))
}

// Realloc resizes p. A nil p behaves as Malloc.
func Realloc(p unsafe.Pointer, size int) unsafe.Pointer {
	l, err := acquire()
	if err != nil {
		return pointer(0, err)
	}
	defer l.release()
	return pointer(l.heap.Reallocate(addr(p), size))
}

// AlignedAlloc allocates size bytes aligned to alignment, a power of two.
func AlignedAlloc(alignment, size int) unsafe.Pointer {
	l, err := acquire()
	if err != nil {
		return pointer(0, err)
	}
	defer l.release()
	return pointer(l.heap.AlignedAllocate(alignment, size))
}

// AlignedRealloc resizes p keeping it aligned. oldSize, when non-zero,
// bounds the bytes preserved; flags takes NoPreserve and GrowOrFail.
func AlignedRealloc(p unsafe.Pointer, alignment, size, oldSize int, flags uint32) unsafe.Pointer {
	l, err := acquire()
	if err != nil {
		return pointer(0, err)
	}
	defer l.release()
	return pointer(l.heap.AlignedReallocate(addr(p), alignment, size, oldSize, flags))
}

// MemAlign is AlignedAlloc under its memalign name.
func MemAlign(alignment, size int) unsafe.Pointer {
	return AlignedAlloc(alignment, size)
}

// PosixMemAlign stores an aligned block in out. It returns 0 on success or
// the failure status.
func PosixMemAlign(out *unsafe.Pointer, alignment, size int) int {
	if out == nil {
		return int(setLastError(ErrInvalidArgument))
	}
	p := AlignedAlloc(alignment, size)
	if p == nil {
		return int(LastError())
	}
	*out = p
	return int(Success)
}

// UsableSize returns the bytes usable from p to the end of its block.
func UsableSize(p unsafe.Pointer) int64 {
	a := current.Load()
	if p == nil || a == nil {
		return 0
	}
	return int64(a.UsableSize(addr(p)))
}

// GlobalStatistics returns the process allocator statistics.
func GlobalStatistics() mem.GlobalStats {
	a := current.Load()
	if a == nil {
		return mem.GlobalStats{}
	}
	return a.Stats()
}

// ThreadStatistics returns the calling goroutine's heap statistics.
func ThreadStatistics() mem.HeapStats {
	h, err := threadHeap(false)
	if err != nil || h == nil {
		return mem.HeapStats{}
	}
	return h.Stats()
}

// HeapAcquire returns a heap not bound to any goroutine. The caller must
// use it from one goroutine at a time.
func HeapAcquire() *mem.Heap {
	a := current.Load()
	if a == nil {
		setLastError(mem.ErrNotInitialized)
		return nil
	}
	h, err := a.NewHeap()
	if err != nil {
		setLastError(err)
		return nil
	}
	return h
}

// HeapRelease finalizes a heap obtained from HeapAcquire.
func HeapRelease(h *mem.Heap) {
	if h != nil && h.State() == mem.HeapActive {
		h.Finalize()
	}
}

// HeapAlloc allocates from h.
func HeapAlloc(h *mem.Heap, size int) unsafe.Pointer {
	if h == nil {
		return pointer(0, mem.ErrInvalidArgument)
	}
	return pointer(h.Allocate(size))
}

// HeapAlignedAlloc allocates an aligned block from h.
func HeapAlignedAlloc(h *mem.Heap, alignment, size int) unsafe.Pointer {
	if h == nil {
		return pointer(0, mem.ErrInvalidArgument)
	}
	return pointer(h.AlignedAllocate(alignment, size))
}

// HeapCalloc allocates zeroed memory from h.
func HeapCalloc(h *mem.Heap, count, size int) unsafe.Pointer {
	if h == nil {
		return pointer(0, mem.ErrInvalidArgument)
	}
	return pointer(h.Calloc(count, size))
}

// HeapRealloc resizes a block of h.
func HeapRealloc(h *mem.Heap, p unsafe.Pointer, size int) unsafe.Pointer {
	if h == nil {
		return pointer(0, mem.ErrInvalidArgument)
	}
	return pointer(h.Reallocate(addr(p), size))
}

// HeapFree releases a block through h.
func HeapFree(h *mem.Heap, p unsafe.Pointer) {
	if h == nil || p == nil {
		return
	}
	if err := h.Free(addr(p)); err != nil {
		setLastError(err)
	}
}

// HeapFreeAll releases every block allocated from h. The heap stays usable.
func HeapFreeAll(h *mem.Heap) {
	if h != nil {
		h.FreeAll()
	}
}
