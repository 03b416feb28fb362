package shm

import "errors"

var (
	// ErrAttach reports that a process could not map the segment or that the
	// mapped header failed validation. Fatal for that process only.
	ErrAttach = errors.New("attach shared segment")

	// ErrTimeout reports that a bounded semaphore or lock wait elapsed.
	ErrTimeout = errors.New("wait timed out")

	// ErrNotSupported is returned on platforms without futex support.
	ErrNotSupported = errors.New("shared futex not supported on this platform")
)
