package api

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// LoggerFunc behaves like fprintf and receives every allocator diagnostic.
type LoggerFunc func(stream io.Writer, format string, args ...any) int

var (
	logMu sync.RWMutex
	// Logger is the active logging hook.
	Logger LoggerFunc = DefaultLogger
	// LogStream is passed as the first argument to Logger.
	LogStream io.Writer = os.Stderr
)

// DefaultLogger writes formatted output to the provided stream.
func DefaultLogger(stream io.Writer, format string, args ...any) int {
	if stream == nil {
		stream = os.Stderr
	}
	n, _ := fmt.Fprintf(stream, format, args...)
	return n
}

// LoggerSet updates the logging function and its default stream. Nil
// arguments restore the defaults.
func LoggerSet(logger LoggerFunc, stream io.Writer) {
	if logger == nil {
		logger = DefaultLogger
	}
	if stream == nil {
		stream = os.Stderr
	}
	logMu.Lock()
	Logger = logger
	LogStream = stream
	logMu.Unlock()
}

// Log writes via Logger using LogStream when stream is nil.
func Log(stream io.Writer, format string, args ...any) int {
	logMu.RLock()
	logger, def := Logger, LogStream
	logMu.RUnlock()
	if logger == nil {
		return 0
	}
	if stream == nil {
		stream = def
	}
	if stream == nil {
		stream = os.Stderr
	}
	return logger(stream, format, args...)
}

// memLogf adapts the hook to mem.Config.Logf.
func memLogf(format string, args ...any) {
	Log(nil, format, args...)
}
