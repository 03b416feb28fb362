package queue

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"cryptq/internal/logging"
	"cryptq/internal/shm"
	"cryptq/internal/task"
)

// Options tune the blocking behavior of Submit and Take. Zero timeouts block
// indefinitely, the baseline contract; bounded waits surface shm.ErrTimeout.
type Options struct {
	SubmitTimeout time.Duration
	TakeTimeout   time.Duration
	Logger        *slog.Logger
}

// Manager composes the shared ring buffer with its flow-control primitives
// and exposes the producer and consumer halves of the queue.
type Manager struct {
	seg           *shm.Segment
	submitTimeout time.Duration
	takeTimeout   time.Duration
	logger        *slog.Logger
}

// New wraps an attached segment. The manager itself is stateless beyond the
// segment view, so producers and consumers in different processes each build
// their own.
func New(seg *shm.Segment, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		seg:           seg,
		submitTimeout: opts.SubmitTimeout,
		takeTimeout:   opts.TakeTimeout,
		logger:        logger.With(logging.String("component", "queue")),
	}
}

// Submit serializes rec and places it in the next free slot, blocking while
// the buffer is full. The record is validated and encoded before any slot is
// reserved, so an invalid record never leaks a free-slot permit.
func (m *Manager) Submit(ctx context.Context, rec task.Record) error {
	payload, err := rec.Encode()
	if err != nil {
		return err
	}
	return m.submitFrame(ctx, payload)
}

// SubmitStop enqueues one stop frame. Pool workers treat it as a drain
// signal and exit cleanly; per-task workers never see one.
func (m *Manager) SubmitStop(ctx context.Context) error {
	return m.submitFrame(ctx, nil)
}

func (m *Manager) submitFrame(ctx context.Context, payload []byte) error {
	if len(payload)+framePrefixSize > int(m.seg.SlotSize()) {
		return fmt.Errorf("%w: %d bytes, slot holds %d", ErrFrameTooLarge, len(payload), int(m.seg.SlotSize())-framePrefixSize)
	}

	if err := m.seg.FreeSlots().Acquire(ctx, m.submitTimeout); err != nil {
		return fmt.Errorf("reserve free slot: %w", err)
	}

	lock := m.seg.IndexLock()
	if err := lock.Lock(ctx); err != nil {
		// Undo the reservation so the aborted submit does not shrink capacity.
		m.seg.FreeSlots().Release()
		return fmt.Errorf("acquire index lock: %w", err)
	}

	rear := m.seg.Rear()
	slot := m.seg.Slot(rear)
	binary.LittleEndian.PutUint32(slot[:framePrefixSize], uint32(len(payload)))
	copy(slot[framePrefixSize:], payload)
	m.seg.SetRear((rear + 1) % m.seg.Capacity())
	m.seg.SetSize(m.seg.Size() + 1)
	lock.Unlock()

	m.seg.FilledSlots().Release()
	return nil
}

// Take removes and deserializes the record at the front of the queue,
// blocking while the buffer is empty. A malformed slot is still consumed and
// its permit released before the error is reported, so one bad record never
// wedges the queue. A stop frame surfaces ErrDrained.
func (m *Manager) Take(ctx context.Context) (task.Record, error) {
	if err := m.seg.FilledSlots().Acquire(ctx, m.takeTimeout); err != nil {
		return task.Record{}, fmt.Errorf("await filled slot: %w", err)
	}

	lock := m.seg.IndexLock()
	if err := lock.Lock(ctx); err != nil {
		m.seg.FilledSlots().Release()
		return task.Record{}, fmt.Errorf("acquire index lock: %w", err)
	}

	front := m.seg.Front()
	slot := m.seg.Slot(front)
	n := binary.LittleEndian.Uint32(slot[:framePrefixSize])

	var payload []byte
	malformedLength := int(n) > len(slot)-framePrefixSize
	if !malformedLength && n > 0 {
		// Copy out under the lock: the slot may be overwritten by a producer
		// as soon as the free permit is released below.
		payload = make([]byte, n)
		copy(payload, slot[framePrefixSize:framePrefixSize+int(n)])
	}

	m.seg.SetFront((front + 1) % m.seg.Capacity())
	m.seg.SetSize(m.seg.Size() - 1)
	lock.Unlock()

	m.seg.FreeSlots().Release()

	if malformedLength {
		m.logger.Warn("skipping slot with implausible frame length",
			logging.Uint64("slot", uint64(front)),
			logging.Uint64("length", uint64(n)))
		return task.Record{}, fmt.Errorf("%w: frame length %d exceeds slot", task.ErrMalformed, n)
	}
	if payload == nil {
		return task.Record{}, ErrDrained
	}

	rec, err := task.Decode(payload)
	if err != nil {
		m.logger.Warn("skipping malformed task record", logging.Error(err))
		return task.Record{}, err
	}
	return rec, nil
}

// Size reports the occupied slot count at a point in time.
func (m *Manager) Size() uint32 {
	return m.seg.Size()
}

const framePrefixSize = 4
