package shm

import (
	"context"
	"sync/atomic"
	"time"
)

// waitSlice bounds each kernel wait so context cancellation is observed
// promptly even during an otherwise indefinite block.
const waitSlice = 100 * time.Millisecond

// Semaphore is a counting semaphore whose value lives in a futex word inside
// the mapped segment, making it valid across process boundaries.
type Semaphore struct {
	word *uint32
}

// Acquire decrements the semaphore, blocking while the count is zero.
// A timeout of zero blocks indefinitely (modulo context cancellation);
// otherwise an elapsed timeout surfaces ErrTimeout.
func (s *Semaphore) Acquire(ctx context.Context, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		v := atomic.LoadUint32(s.word)
		if v > 0 {
			if atomic.CompareAndSwapUint32(s.word, v, v-1) {
				return nil
			}
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		slice := waitSlice
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return ErrTimeout
			}
			if remaining < slice {
				slice = remaining
			}
		}
		if err := futexWait(s.word, 0, slice.Nanoseconds()); err != nil && err != ErrTimeout {
			return err
		}
	}
}

// Release increments the semaphore and wakes one waiter.
func (s *Semaphore) Release() {
	atomic.AddUint32(s.word, 1)
	_ = futexWake(s.word, 1)
}

// Value returns the current count. Diagnostic only; the value may be stale
// the moment it is read.
func (s *Semaphore) Value() uint32 {
	return atomic.LoadUint32(s.word)
}

// Mutex is a futex-backed mutual-exclusion lock usable across processes.
// States: 0 unlocked, 1 locked, 2 locked with waiters.
type Mutex struct {
	word *uint32
}

// Lock acquires the mutex, blocking until it is available or ctx is done.
func (m *Mutex) Lock(ctx context.Context) error {
	if atomic.CompareAndSwapUint32(m.word, 0, 1) {
		return nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		v := atomic.LoadUint32(m.word)
		if v == 2 || (v == 1 && atomic.CompareAndSwapUint32(m.word, 1, 2)) {
			if err := futexWait(m.word, 2, waitSlice.Nanoseconds()); err != nil && err != ErrTimeout {
				return err
			}
		}
		if atomic.CompareAndSwapUint32(m.word, 0, 2) {
			return nil
		}
	}
}

// Unlock releases the mutex and wakes one waiter if any were parked.
func (m *Mutex) Unlock() {
	if atomic.SwapUint32(m.word, 0) == 2 {
		_ = futexWake(m.word, 1)
	}
}
