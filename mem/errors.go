package mem

import "errors"

var (
	// ErrInitialization reports that process-wide setup could not reserve memory.
	ErrInitialization = errors.New("mem: initialization failed")
	// ErrAlreadyInitialized reports a second Initialize without Finalize.
	ErrAlreadyInitialized = errors.New("mem: already initialized")
	// ErrNotInitialized reports use of an allocator before Initialize.
	ErrNotInitialized = errors.New("mem: not initialized")
	// ErrFinalized reports Initialize on a finalized allocator.
	ErrFinalized = errors.New("mem: allocator finalized")
	// ErrUseAfterFinalize reports allocator or heap use after teardown.
	ErrUseAfterFinalize = errors.New("mem: use after finalize")
	// ErrOutOfMemory reports that the OS refused a mapping.
	ErrOutOfMemory = errors.New("mem: out of memory")
	// ErrInvalidArgument reports a bad size, count or alignment.
	ErrInvalidArgument = errors.New("mem: invalid argument")
	// ErrInvalidPointer reports a pointer the allocator does not own, or a
	// slot that is already free.
	ErrInvalidPointer = errors.New("mem: invalid pointer")
	// ErrWouldMove reports that GrowOrFail could not resize in place.
	ErrWouldMove = errors.New("mem: block cannot be resized in place")
)
