package os

import (
	"sync/atomic"
	"testing"
)

func TestThreadCreateAndWait(t *testing.T) {
	startCount := atomic.LoadUint64(&ThreadCount)
	handle := ThreadCreate(func(arg any) uint64 {
		return arg.(uint64) + 1
	}, uint64(41))
	if handle == nil || handle.ID == 0 {
		t.Fatalf("expected handle")
	}
	if res := ThreadWait(handle); res != 42 {
		t.Fatalf("result=%d", res)
	}
	if got := atomic.LoadUint64(&ThreadCount); got != startCount {
		t.Fatalf("thread count=%d", got)
	}
	if ThreadCreate(nil, nil) != nil {
		t.Fatalf("expected nil handle for nil start")
	}
}

func TestThreadIDsDiffer(t *testing.T) {
	id := ThreadGetCurrID()
	if id == 0 {
		t.Fatalf("expected current id")
	}
	handle := ThreadCreate(func(any) uint64 {
		return uint64(ThreadGetCurrID())
	}, nil)
	other := ThreadID(ThreadWait(handle))
	if other == 0 || other == id {
		t.Fatalf("expected distinct goroutine ids, got %d and %d", id, other)
	}
	ThreadYield()
}
