package api

import (
	"strings"
	stdsync "sync"
	"sync/atomic"

	"github.com/wilhasse/rpmalloc-go/os"
	"github.com/wilhasse/rpmalloc-go/sync"
)

// ExportStatusVars is the snapshot behind the status variables.
type ExportStatusVars struct {
	MappedBytes       int64
	MappedPeak        int64
	MappedTotal       int64
	UnmappedTotal     int64
	CachedBytes       int64
	HugeBytes         int64
	HugePeak          int64
	Chunks            int64
	Spans             int64
	ActiveHeaps       int64
	OrphanedHeaps     int64
	PooledHeaps       int64
	BoundThreads      int64
	OSMappings        int64
	HugePageMappings  int64
	MutexLocks        int64
	MutexSpinWaits    int64
	MutexExits        int64
	Initialized       bool
	UseLargePages     bool
	ThreadInitialized bool
}

type statusType int

const (
	statusBool statusType = iota
	statusI64
)

type statusVar struct {
	name string
	typ  statusType
	i64  *int64
	b    *bool
}

var (
	exportMu stdsync.Mutex
	// ExportVars holds the values last published by StatusGetI64.
	ExportVars ExportStatusVars
)

var statusVars = []statusVar{
	{"mapped_bytes", statusI64, &ExportVars.MappedBytes, nil},
	{"mapped_peak", statusI64, &ExportVars.MappedPeak, nil},
	{"mapped_total", statusI64, &ExportVars.MappedTotal, nil},
	{"unmapped_total", statusI64, &ExportVars.UnmappedTotal, nil},
	{"cached_bytes", statusI64, &ExportVars.CachedBytes, nil},
	{"huge_alloc_bytes", statusI64, &ExportVars.HugeBytes, nil},
	{"huge_alloc_peak", statusI64, &ExportVars.HugePeak, nil},
	{"chunks", statusI64, &ExportVars.Chunks, nil},
	{"spans", statusI64, &ExportVars.Spans, nil},
	{"active_heaps", statusI64, &ExportVars.ActiveHeaps, nil},
	{"orphaned_heaps", statusI64, &ExportVars.OrphanedHeaps, nil},
	{"pooled_heaps", statusI64, &ExportVars.PooledHeaps, nil},
	{"bound_threads", statusI64, &ExportVars.BoundThreads, nil},
	{"os_mappings", statusI64, &ExportVars.OSMappings, nil},
	{"huge_page_mappings", statusI64, &ExportVars.HugePageMappings, nil},
	{"mutex_locks", statusI64, &ExportVars.MutexLocks, nil},
	{"mutex_spin_waits", statusI64, &ExportVars.MutexSpinWaits, nil},
	{"mutex_exits", statusI64, &ExportVars.MutexExits, nil},
	{"initialized", statusBool, nil, &ExportVars.Initialized},
	{"large_pages", statusBool, nil, &ExportVars.UseLargePages},
	{"thread_initialized", statusBool, nil, &ExportVars.ThreadInitialized},
}

// exportStatus refreshes ExportVars from the running allocator. The caller
// holds exportMu.
func exportStatus() {
	v := &ExportVars
	*v = ExportStatusVars{}
	if a := current.Load(); a != nil {
		st := a.Stats()
		v.MappedBytes = int64(st.Mapped)
		v.MappedPeak = int64(st.MappedPeak)
		v.MappedTotal = int64(st.MappedTotal)
		v.UnmappedTotal = int64(st.UnmappedTotal)
		v.CachedBytes = int64(st.Cached)
		v.HugeBytes = int64(st.HugeAlloc)
		v.HugePeak = int64(st.HugeAllocPeak)
		v.Chunks = int64(st.Chunks)
		v.Spans = st.Spans
		v.ActiveHeaps = int64(st.ActiveHeaps)
		v.OrphanedHeaps = int64(st.OrphanedHeaps)
		v.PooledHeaps = int64(st.PooledHeaps)
		v.UseLargePages = isStarted() && a.Config().HugePages
	}
	v.BoundThreads = int64(heaps.Len())
	v.OSMappings = os.MappingCount()
	v.HugePageMappings = os.HugePageMappings()
	v.MutexLocks = atomic.LoadInt64(&sync.MutexLockCount)
	v.MutexSpinWaits = atomic.LoadInt64(&sync.MutexSpinWaitCount)
	v.MutexExits = atomic.LoadInt64(&sync.MutexExitCount)
	v.Initialized = isStarted()
	v.ThreadInitialized = IsThreadInitialized() != 0
}

// StatusGet returns the current value of a status variable. Boolean
// variables read as 0 or 1.
func StatusGet(name string) (int64, ErrCode) {
	var v int64
	err := StatusGetI64(name, &v)
	return v, err
}

// StatusGetI64 returns a status variable value as int64.
func StatusGetI64(name string, dst *int64) ErrCode {
	if dst == nil {
		return ErrInvalidArgument
	}
	status := lookupStatus(name)
	if status == nil {
		return ErrNotFound
	}

	exportMu.Lock()
	defer exportMu.Unlock()
	exportStatus()

	switch status.typ {
	case statusI64:
		*dst = *status.i64
	case statusBool:
		*dst = 0
		if *status.b {
			*dst = 1
		}
	}
	return Success
}

// StatusNames lists the status variables in table order.
func StatusNames() []string {
	names := make([]string, len(statusVars))
	for i := range statusVars {
		names[i] = statusVars[i].name
	}
	return names
}

func lookupStatus(name string) *statusVar {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	for i := range statusVars {
		if strings.EqualFold(statusVars[i].name, name) {
			return &statusVars[i]
		}
	}
	return nil
}
