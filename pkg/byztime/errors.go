package byztime

import (
	"errors"

	"github.com/akamai-contrib/libbyztime/pkg/stamp"
)

// Error classification sentinels. Implementations may wrap these with
// additional context; callers must classify errors with errors.Is.
var (
	// ErrOverflow indicates a Stamp arithmetic operation exceeded int64 range.
	// It is the same sentinel as stamp.ErrOverflow, which the arithmetic
	// errors wrap. Operations in this package that fail with it return zero
	// values.
	ErrOverflow = stamp.ErrOverflow

	// ErrProtocol indicates the shared region is malformed: missing magic,
	// an out-of-range writer index, a denormalized Stamp, or a read that
	// faulted against a truncated backing file.
	ErrProtocol = errors.New("byztime: protocol error")

	// ErrEraMismatch indicates the region's magic is valid but its stored
	// era does not match the host's current clock era. No provider has
	// published for this boot.
	ErrEraMismatch = errors.New("byztime: era mismatch")

	// ErrBusy indicates a writer-side lock is already held by another
	// context.
	ErrBusy = errors.New("byztime: busy")

	// ErrOutOfRange indicates Slew was called with a maxerror constraint
	// that the fresh entry's error bound exceeds.
	ErrOutOfRange = errors.New("byztime: out of range")

	// ErrClockFailure indicates a host-supplied clock read failed.
	ErrClockFailure = errors.New("byztime: clock failure")

	// ErrIOFailure indicates a file open, map, stat, or preallocate
	// operation failed.
	ErrIOFailure = errors.New("byztime: io failure")

	// ErrClosed indicates an operation was attempted on a closed context.
	ErrClosed = errors.New("byztime: closed")
)
