package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	// SegmentMagic identifies a cryptq ring segment.
	SegmentMagic = "CRYPTQRB"

	// SegmentVersion is bumped on any layout change.
	SegmentVersion = uint32(1)

	headerSize = 64

	// DefaultCapacity is the slot count used when the configuration does not
	// override it.
	DefaultCapacity = 1000

	// DefaultSlotSize holds a 4-byte length prefix plus a serialized record.
	DefaultSlotSize = 4096

	// MinSlotSize leaves room for the length prefix and a minimal record.
	MinSlotSize = 64
)

// header is the fixed 64-byte segment prologue. front, rear, and size are
// guarded by the lock word; the futex words are operated on directly.
type header struct {
	magic    [8]byte
	version  uint32
	capacity uint32
	slotSize uint32
	front    uint32
	rear     uint32
	size     uint32
	lock     uint32
	free     uint32
	filled   uint32
	_        [20]byte
}

// Segment is one process's view of the shared ring memory. Every process
// maps the same file; no single process owns the mapping.
type Segment struct {
	name string
	path string
	file *os.File
	mem  []byte
	hdr  *header
}

// SegmentPath returns the backing file location for a segment name.
// /dev/shm is preferred on Linux; the temp dir is the portable fallback.
func SegmentPath(name string) string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return filepath.Join("/dev/shm", "cryptq_"+name)
	}
	return filepath.Join(os.TempDir(), "cryptq_"+name)
}

// Create allocates and initializes a new segment. It fails if a segment with
// the same name already exists; names are expected to be unique per run.
func Create(name string, capacity, slotSize int) (*Segment, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity %d must be positive", ErrAttach, capacity)
	}
	if slotSize < MinSlotSize {
		return nil, fmt.Errorf("%w: slot size %d below minimum %d", ErrAttach, slotSize, MinSlotSize)
	}

	path := SegmentPath(name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrAttach, path, err)
	}
	cleanup := func() {
		_ = file.Close()
		_ = os.Remove(path)
	}

	total := int64(headerSize) + int64(capacity)*int64(slotSize)
	if err := file.Truncate(total); err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: size %s: %w", ErrAttach, path, err)
	}

	mem, err := unix.Mmap(int(file.Fd()), 0, int(total), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: mmap %s: %w", ErrAttach, path, err)
	}

	seg := &Segment{
		name: name,
		path: path,
		file: file,
		mem:  mem,
		hdr:  (*header)(unsafe.Pointer(&mem[0])),
	}

	copy(seg.hdr.magic[:], SegmentMagic)
	atomic.StoreUint32(&seg.hdr.version, SegmentVersion)
	atomic.StoreUint32(&seg.hdr.capacity, uint32(capacity))
	atomic.StoreUint32(&seg.hdr.slotSize, uint32(slotSize))
	atomic.StoreUint32(&seg.hdr.front, 0)
	atomic.StoreUint32(&seg.hdr.rear, 0)
	atomic.StoreUint32(&seg.hdr.size, 0)
	atomic.StoreUint32(&seg.hdr.lock, 0)
	atomic.StoreUint32(&seg.hdr.free, uint32(capacity))
	atomic.StoreUint32(&seg.hdr.filled, 0)

	return seg, nil
}

// Open attaches to an existing segment created by the run initiator. It
// validates the header before handing the mapping out.
func Open(name string) (*Segment, error) {
	path := SegmentPath(name)
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrAttach, path, err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%w: stat %s: %w", ErrAttach, path, err)
	}
	if info.Size() < headerSize {
		_ = file.Close()
		return nil, fmt.Errorf("%w: segment %s truncated (%d bytes)", ErrAttach, path, info.Size())
	}

	mem, err := unix.Mmap(int(file.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%w: mmap %s: %w", ErrAttach, path, err)
	}

	seg := &Segment{
		name: name,
		path: path,
		file: file,
		mem:  mem,
		hdr:  (*header)(unsafe.Pointer(&mem[0])),
	}

	if err := seg.validate(info.Size()); err != nil {
		_ = seg.Close()
		return nil, err
	}
	return seg, nil
}

func (s *Segment) validate(fileSize int64) error {
	if string(s.hdr.magic[:]) != SegmentMagic {
		return fmt.Errorf("%w: bad magic in %s", ErrAttach, s.path)
	}
	if v := atomic.LoadUint32(&s.hdr.version); v != SegmentVersion {
		return fmt.Errorf("%w: version %d, expected %d", ErrAttach, v, SegmentVersion)
	}
	capacity := atomic.LoadUint32(&s.hdr.capacity)
	slotSize := atomic.LoadUint32(&s.hdr.slotSize)
	if capacity == 0 || slotSize < MinSlotSize {
		return fmt.Errorf("%w: implausible geometry capacity=%d slot=%d", ErrAttach, capacity, slotSize)
	}
	expected := int64(headerSize) + int64(capacity)*int64(slotSize)
	if fileSize < expected {
		return fmt.Errorf("%w: segment %s holds %d bytes, layout needs %d", ErrAttach, s.path, fileSize, expected)
	}
	return nil
}

// Close detaches this process's view. The segment file itself stays in place
// until the run initiator calls Remove.
func (s *Segment) Close() error {
	var firstErr error
	if s.mem != nil {
		if err := unix.Munmap(s.mem); err != nil && firstErr == nil {
			firstErr = err
		}
		s.mem = nil
		s.hdr = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.file = nil
	}
	return firstErr
}

// Remove deletes the backing file. Only the run initiator calls this, after
// all spawned workers have been waited on.
func Remove(name string) error {
	err := os.Remove(SegmentPath(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Name returns the run-scoped segment identifier.
func (s *Segment) Name() string { return s.name }

// Path returns the backing file location.
func (s *Segment) Path() string { return s.path }

// Capacity returns the fixed slot count.
func (s *Segment) Capacity() uint32 { return atomic.LoadUint32(&s.hdr.capacity) }

// SlotSize returns the fixed per-slot byte size.
func (s *Segment) SlotSize() uint32 { return atomic.LoadUint32(&s.hdr.slotSize) }

// Slot returns the raw bytes of slot i, length prefix included.
func (s *Segment) Slot(i uint32) []byte {
	slotSize := s.SlotSize()
	off := headerSize + int(i)*int(slotSize)
	return s.mem[off : off+int(slotSize)]
}

// Front returns the index of the next slot to consume. Callers hold IndexLock.
func (s *Segment) Front() uint32 { return atomic.LoadUint32(&s.hdr.front) }

// SetFront updates the consume index. Callers hold IndexLock.
func (s *Segment) SetFront(v uint32) { atomic.StoreUint32(&s.hdr.front, v) }

// Rear returns the index of the next slot to fill. Callers hold IndexLock.
func (s *Segment) Rear() uint32 { return atomic.LoadUint32(&s.hdr.rear) }

// SetRear updates the fill index. Callers hold IndexLock.
func (s *Segment) SetRear(v uint32) { atomic.StoreUint32(&s.hdr.rear, v) }

// Size returns the occupied slot count.
func (s *Segment) Size() uint32 { return atomic.LoadUint32(&s.hdr.size) }

// SetSize updates the occupied slot count. Callers hold IndexLock.
func (s *Segment) SetSize(v uint32) { atomic.StoreUint32(&s.hdr.size, v) }

// IndexLock returns the cross-process mutex guarding front, rear, size, and
// the slot read/write itself.
func (s *Segment) IndexLock() *Mutex { return &Mutex{word: &s.hdr.lock} }

// FreeSlots returns the counting semaphore tracking unoccupied slots.
func (s *Segment) FreeSlots() *Semaphore { return &Semaphore{word: &s.hdr.free} }

// FilledSlots returns the counting semaphore tracking occupied slots.
func (s *Segment) FilledSlots() *Semaphore { return &Semaphore{word: &s.hdr.filled} }
