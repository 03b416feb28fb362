// Package queue implements the bounded inter-process producer-consumer queue
// on top of the shared segment.
//
// Submit reserves a free-slot permit, writes one serialized record under the
// cross-process index lock, then posts a filled-slot permit; Take mirrors the
// sequence on the consumer side. Permits are the only flow control: a full
// buffer suspends producers, an empty one suspends consumers, and FIFO order
// follows from the index lock serializing every rear/front advance.
//
// Two invariants matter to callers. First, records are validated and encoded
// before a slot is reserved, so invalid input cannot leak capacity. Second,
// a malformed slot is consumed and its permit released before the error is
// returned, so one corrupt record never deadlocks the run.
package queue
