package queue

import "errors"

var (
	// ErrDrained reports that a stop frame was consumed: the run initiator
	// has finished submitting and this consumer should exit.
	ErrDrained = errors.New("queue drained")

	// ErrFrameTooLarge reports a record whose serialized form does not fit a
	// fixed-size slot. Detected before any slot is reserved.
	ErrFrameTooLarge = errors.New("serialized record exceeds slot size")
)
