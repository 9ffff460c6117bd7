package os

import (
	"runtime"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// ThreadID identifies a goroutine. Allocator heaps are bound to it the way
// native allocators bind heaps to OS threads.
type ThreadID uint64

// ThreadCount tracks active goroutines created by ThreadCreate.
var ThreadCount uint64

// threadIDCounter generates unique handle ids.
var threadIDCounter uint64

// ThreadHandle represents a running goroutine.
type ThreadHandle struct {
	ID     ThreadID
	done   chan struct{}
	result uint64
}

// ThreadFunc defines a goroutine entry point.
type ThreadFunc func(arg any) uint64

// ThreadGetCurrID returns the current goroutine id.
func ThreadGetCurrID() ThreadID {
	return ThreadID(curGoroutineID())
}

// ThreadCreate starts a goroutine and returns its handle.
func ThreadCreate(start ThreadFunc, arg any) *ThreadHandle {
	if start == nil {
		return nil
	}
	id := ThreadID(atomic.AddUint64(&threadIDCounter, 1))
	atomic.AddUint64(&ThreadCount, 1)
	handle := &ThreadHandle{ID: id, done: make(chan struct{})}
	go func() {
		defer close(handle.done)
		defer atomic.AddUint64(&ThreadCount, ^uint64(0))
		handle.result = start(arg)
	}()
	return handle
}

// ThreadWait waits for a goroutine to finish and returns its result.
func ThreadWait(handle *ThreadHandle) uint64 {
	if handle == nil || handle.done == nil {
		return 0
	}
	<-handle.done
	return handle.result
}

// ThreadYield yields the processor.
func ThreadYield() {
	runtime.Gosched()
}

func curGoroutineID() uint64 {
	return uint64(goid.Get())
}
