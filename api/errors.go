package api

import (
	"errors"

	"github.com/wilhasse/rpmalloc-go/mem"
)

// ErrCode is the status returned by the C-style entry points. Zero is
// success.
type ErrCode int

const (
	Success             ErrCode = 0
	ErrInit             ErrCode = 1
	ErrAlreadyInit      ErrCode = 2
	ErrOutOfMemory      ErrCode = 3
	ErrInvalidArgument  ErrCode = 4
	ErrUseAfterFinalize ErrCode = 5
	ErrInvalidPointer   ErrCode = 6
	ErrNotFound         ErrCode = 7
	ErrReadOnly         ErrCode = 8
	ErrWouldMove        ErrCode = 9
	ErrNotInitialized   ErrCode = 10
)

func (code ErrCode) Error() string {
	return ErrString(code)
}

// ErrString returns a human-readable message for an error code.
func ErrString(code ErrCode) string {
	switch code {
	case Success:
		return "Success"
	case ErrInit:
		return "Initialization failed"
	case ErrAlreadyInit:
		return "Already initialized"
	case ErrOutOfMemory:
		return "Cannot allocate memory"
	case ErrInvalidArgument:
		return "Invalid argument"
	case ErrUseAfterFinalize:
		return "Use after finalize"
	case ErrInvalidPointer:
		return "Invalid pointer"
	case ErrNotFound:
		return "Not found"
	case ErrReadOnly:
		return "Readonly"
	case ErrWouldMove:
		return "Block cannot be resized in place"
	case ErrNotInitialized:
		return "Not initialized"
	default:
		return "Unknown error"
	}
}

// Err returns nil for Success and the ErrCode otherwise.
func Err(code ErrCode) error {
	if code == Success {
		return nil
	}
	return code
}

// CodeOf maps an error from the mem package to its status code.
func CodeOf(err error) ErrCode {
	var code ErrCode
	switch {
	case err == nil:
		return Success
	case errors.As(err, &code):
		return code
	case errors.Is(err, mem.ErrAlreadyInitialized):
		return ErrAlreadyInit
	case errors.Is(err, mem.ErrInitialization):
		return ErrInit
	case errors.Is(err, mem.ErrOutOfMemory):
		return ErrOutOfMemory
	case errors.Is(err, mem.ErrInvalidArgument):
		return ErrInvalidArgument
	case errors.Is(err, mem.ErrUseAfterFinalize), errors.Is(err, mem.ErrFinalized):
		return ErrUseAfterFinalize
	case errors.Is(err, mem.ErrNotInitialized):
		return ErrNotInitialized
	case errors.Is(err, mem.ErrInvalidPointer):
		return ErrInvalidPointer
	case errors.Is(err, mem.ErrWouldMove):
		return ErrWouldMove
	default:
		return ErrInit
	}
}
