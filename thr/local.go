package thr

import (
	stdsync "sync"
	"sync/atomic"

	"github.com/wilhasse/rpmalloc-go/os"
)

// Local maps goroutines to a per-goroutine value. It stands in for native
// thread-local storage: the value for the calling goroutine is found by its
// goroutine id. Lookups take no lock.
type Local[T any] struct {
	m     stdsync.Map
	count atomic.Int64
}

// NewLocal creates an empty goroutine-local table.
func NewLocal[T any]() *Local[T] {
	return &Local[T]{}
}

// Get returns the value for the current goroutine.
func (l *Local[T]) Get() (T, bool) {
	if l.count.Load() == 0 {
		var zero T
		return zero, false
	}
	return l.GetID(os.ThreadGetCurrID())
}

// GetID returns the value for a goroutine id.
func (l *Local[T]) GetID(id os.ThreadID) (T, bool) {
	v, ok := l.m.Load(id)
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// Set stores v for the current goroutine and returns its id.
func (l *Local[T]) Set(v T) os.ThreadID {
	id := os.ThreadGetCurrID()
	l.SetID(id, v)
	return id
}

// SetID stores v for a goroutine id.
func (l *Local[T]) SetID(id os.ThreadID, v T) {
	if _, loaded := l.m.Swap(id, v); !loaded {
		l.count.Add(1)
	}
}

// Delete removes and returns the value for the current goroutine.
func (l *Local[T]) Delete() (T, bool) {
	if l.count.Load() == 0 {
		var zero T
		return zero, false
	}
	return l.DeleteID(os.ThreadGetCurrID())
}

// DeleteID removes and returns the value for a goroutine id.
func (l *Local[T]) DeleteID(id os.ThreadID) (T, bool) {
	v, ok := l.m.LoadAndDelete(id)
	if !ok {
		var zero T
		return zero, false
	}
	l.count.Add(-1)
	return v.(T), true
}

// Len reports the number of goroutines with a value.
func (l *Local[T]) Len() int {
	return int(l.count.Load())
}

// Drain removes every value and returns them.
func (l *Local[T]) Drain() []T {
	var out []T
	l.m.Range(func(key, _ any) bool {
		if v, ok := l.DeleteID(key.(os.ThreadID)); ok {
			out = append(out, v)
		}
		return true
	})
	return out
}
