package ut

import (
	"fmt"
	"runtime"
	"sync"
)

// DebugInfo captures assertion context.
type DebugInfo struct {
	Expr string
	File string
	Line int
}

func (d DebugInfo) String() string {
	return fmt.Sprintf("assertion %q failed at %s:%d", d.Expr, d.File, d.Line)
}

// AssertionError is the panic value raised by a fatal assertion.
type AssertionError struct {
	DebugInfo
}

func (e *AssertionError) Error() string {
	return e.DebugInfo.String()
}

var (
	dbgMu sync.Mutex
	// DbgStopThreads indicates a debug assertion has failed.
	DbgStopThreads bool
	// LastAssertion records the most recent assertion failure.
	LastAssertion DebugInfo
	// AssertionCount counts failed assertions since the last reset.
	AssertionCount int
)

// DbgAssertionFailed records a failed assertion.
func DbgAssertionFailed(expr, file string, line int) {
	dbgMu.Lock()
	LastAssertion = DebugInfo{Expr: expr, File: file, Line: line}
	DbgStopThreads = true
	AssertionCount++
	dbgMu.Unlock()
}

// DbgLastAssertion returns the most recent assertion failure.
func DbgLastAssertion() (DebugInfo, int) {
	dbgMu.Lock()
	defer dbgMu.Unlock()
	return LastAssertion, AssertionCount
}

// Assert records a failed assertion when cond is false. A fatal assertion
// panics with an *AssertionError after recording.
func Assert(cond bool, fatal bool, expr string) {
	if cond {
		return
	}
	_, file, line, _ := runtime.Caller(1)
	DbgAssertionFailed(expr, file, line)
	if fatal {
		panic(&AssertionError{DebugInfo{Expr: expr, File: file, Line: line}})
	}
}

// DbgReset clears debug state.
func DbgReset() {
	dbgMu.Lock()
	DbgStopThreads = false
	LastAssertion = DebugInfo{}
	AssertionCount = 0
	dbgMu.Unlock()
}
