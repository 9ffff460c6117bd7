package mem

import "runtime"

const maxHeapPoolSize = 256

const (
	DefaultThreadCacheSpans = 8
	DefaultGlobalCacheSpans = 64
	DefaultInitialChunks    = 1
)

// Config controls an Allocator. It is read once by Initialize.
type Config struct {
	// Debug turns use-after-finalize and invalid frees into panics.
	Debug bool
	// ThreadCacheSpans bounds free spans a heap keeps per class before
	// handing them to the global cache. Classes with longer spans get a
	// proportionally smaller budget.
	ThreadCacheSpans int
	// GlobalCacheSpans is the per-class watermark of the global cache.
	GlobalCacheSpans int
	// InitialChunks is the number of chunks mapped by Initialize.
	InitialChunks int
	// HeapPoolSize is the number of idle heaps kept for goroutines with no
	// heap of their own. Zero sizes the pool from GOMAXPROCS.
	HeapPoolSize int
	// HugePages asks the OS to back chunks with transparent huge pages.
	HugePages bool
	// DecommitSpans returns the pages of released spans to the OS.
	DecommitSpans bool
	// Logf receives diagnostics. Nil disables logging.
	Logf func(format string, args ...any)
}

// DefaultConfig returns the default allocator configuration.
func DefaultConfig() Config {
	return Config{
		ThreadCacheSpans: DefaultThreadCacheSpans,
		GlobalCacheSpans: DefaultGlobalCacheSpans,
		InitialChunks:    DefaultInitialChunks,
		DecommitSpans:    true,
	}
}

func normalizeConfig(cfg Config) Config {
	if cfg.ThreadCacheSpans < 0 {
		cfg.ThreadCacheSpans = DefaultThreadCacheSpans
	}
	if cfg.GlobalCacheSpans < 0 {
		cfg.GlobalCacheSpans = DefaultGlobalCacheSpans
	}
	if cfg.InitialChunks < 0 {
		cfg.InitialChunks = 0
	}
	if cfg.HeapPoolSize <= 0 {
		cfg.HeapPoolSize = min(4*runtime.GOMAXPROCS(0), maxHeapPoolSize)
	}
	return cfg
}
