package shm_test

import (
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"cryptq/internal/shm"
)

func newSegment(t *testing.T, capacity, slotSize int) *shm.Segment {
	t.Helper()

	name := uuid.NewString()
	seg, err := shm.Create(name, capacity, slotSize)
	if err != nil {
		t.Fatalf("shm.Create: %v", err)
	}
	t.Cleanup(func() {
		_ = seg.Close()
		_ = shm.Remove(name)
	})
	return seg
}

func TestCreateInitializesHeader(t *testing.T) {
	seg := newSegment(t, 8, 128)

	if seg.Capacity() != 8 {
		t.Fatalf("Capacity = %d, want 8", seg.Capacity())
	}
	if seg.SlotSize() != 128 {
		t.Fatalf("SlotSize = %d, want 128", seg.SlotSize())
	}
	if seg.Front() != 0 || seg.Rear() != 0 || seg.Size() != 0 {
		t.Fatalf("indices not zeroed: front=%d rear=%d size=%d", seg.Front(), seg.Rear(), seg.Size())
	}
	if got := seg.FreeSlots().Value(); got != 8 {
		t.Fatalf("free slots = %d, want 8", got)
	}
	if got := seg.FilledSlots().Value(); got != 0 {
		t.Fatalf("filled slots = %d, want 0", got)
	}
}

func TestOpenSharesMemoryWithCreator(t *testing.T) {
	seg := newSegment(t, 4, 128)

	copy(seg.Slot(2), []byte{0xde, 0xad, 0xbe, 0xef})
	seg.SetRear(3)
	seg.SetSize(3)

	view, err := shm.Open(seg.Name())
	if err != nil {
		t.Fatalf("shm.Open: %v", err)
	}
	defer view.Close()

	if view.Capacity() != 4 || view.SlotSize() != 128 {
		t.Fatalf("geometry mismatch: capacity=%d slot=%d", view.Capacity(), view.SlotSize())
	}
	if view.Rear() != 3 || view.Size() != 3 {
		t.Fatalf("indices not shared: rear=%d size=%d", view.Rear(), view.Size())
	}
	slot := view.Slot(2)
	if slot[0] != 0xde || slot[3] != 0xef {
		t.Fatalf("slot bytes not shared: % x", slot[:4])
	}

	// Writes through the second view land in the first.
	view.SetFront(1)
	if seg.Front() != 1 {
		t.Fatalf("front write did not propagate, got %d", seg.Front())
	}
}

func TestCreateRejectsBadGeometry(t *testing.T) {
	if _, err := shm.Create(uuid.NewString(), 0, 128); !errors.Is(err, shm.ErrAttach) {
		t.Fatalf("zero capacity: got %v, want ErrAttach", err)
	}
	if _, err := shm.Create(uuid.NewString(), 4, shm.MinSlotSize-1); !errors.Is(err, shm.ErrAttach) {
		t.Fatalf("undersized slot: got %v, want ErrAttach", err)
	}
}

func TestCreateRefusesExistingSegment(t *testing.T) {
	seg := newSegment(t, 4, 128)

	if _, err := shm.Create(seg.Name(), 4, 128); !errors.Is(err, shm.ErrAttach) {
		t.Fatalf("duplicate create: got %v, want ErrAttach", err)
	}
}

func TestOpenRejectsForeignFile(t *testing.T) {
	name := uuid.NewString()
	path := shm.SegmentPath(name)
	data := make([]byte, 256)
	copy(data, "NOTCRYPT")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write foreign file: %v", err)
	}
	t.Cleanup(func() { _ = os.Remove(path) })

	if _, err := shm.Open(name); !errors.Is(err, shm.ErrAttach) {
		t.Fatalf("foreign file: got %v, want ErrAttach", err)
	}
}

func TestOpenRejectsTruncatedSegment(t *testing.T) {
	name := uuid.NewString()
	path := shm.SegmentPath(name)
	if err := os.WriteFile(path, []byte("short"), 0o600); err != nil {
		t.Fatalf("write truncated file: %v", err)
	}
	t.Cleanup(func() { _ = os.Remove(path) })

	if _, err := shm.Open(name); !errors.Is(err, shm.ErrAttach) {
		t.Fatalf("truncated file: got %v, want ErrAttach", err)
	}
}

func TestOpenMissingSegmentFails(t *testing.T) {
	if _, err := shm.Open(uuid.NewString()); !errors.Is(err, shm.ErrAttach) {
		t.Fatalf("missing segment: got %v, want ErrAttach", err)
	}
}

func TestRemoveMissingSegmentIsNoOp(t *testing.T) {
	if err := shm.Remove(uuid.NewString()); err != nil {
		t.Fatalf("Remove of absent segment: %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	seg := newSegment(t, 4, 128)

	if err := seg.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := seg.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
