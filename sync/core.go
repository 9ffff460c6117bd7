package sync

import (
	stdsync "sync"
	"sync/atomic"

	"github.com/wilhasse/rpmalloc-go/os"
)

// spinRounds bounds the TryLock attempts made before blocking.
const spinRounds = 4

// MutexLockCount tracks lock acquisitions.
var MutexLockCount int64

// MutexSpinWaitCount tracks acquisitions that found the mutex held.
var MutexSpinWaitCount int64

// MutexExitCount tracks lock releases.
var MutexExitCount int64

// ResetStats resets mutex counters.
func ResetStats() {
	atomic.StoreInt64(&MutexLockCount, 0)
	atomic.StoreInt64(&MutexSpinWaitCount, 0)
	atomic.StoreInt64(&MutexExitCount, 0)
}

// SpinMutex is a mutex that spins briefly before blocking and keeps
// contention counters.
type SpinMutex struct {
	mu stdsync.Mutex
}

// Lock acquires the mutex.
func (m *SpinMutex) Lock() {
	atomic.AddInt64(&MutexLockCount, 1)
	if m.mu.TryLock() {
		return
	}
	atomic.AddInt64(&MutexSpinWaitCount, 1)
	for i := 0; i < spinRounds; i++ {
		os.ThreadYield()
		if m.mu.TryLock() {
			return
		}
	}
	m.mu.Lock()
}

// TryLock tries to acquire the mutex without waiting.
func (m *SpinMutex) TryLock() bool {
	if !m.mu.TryLock() {
		return false
	}
	atomic.AddInt64(&MutexLockCount, 1)
	return true
}

// Unlock releases the mutex.
func (m *SpinMutex) Unlock() {
	atomic.AddInt64(&MutexExitCount, 1)
	m.mu.Unlock()
}
