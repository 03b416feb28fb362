// Package fileio provides the file-handle collaborator used by workers: an
// explicit open/close wrapper that guarantees release on every exit path.
package fileio

import (
	"fmt"
	"os"
)

// Handle wraps an open read-write file. Close is idempotent so callers can
// defer it unconditionally and still close early on the happy path.
type Handle struct {
	path string
	file *os.File
}

// Open opens path for reading and writing. It refuses directories.
func Open(path string) (*Handle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("open %s: is a directory", path)
	}
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Handle{path: path, file: file}, nil
}

// File exposes the underlying descriptor for positioned reads and writes.
func (h *Handle) File() *os.File {
	return h.file
}

// Path returns the path the handle was opened with.
func (h *Handle) Path() string {
	return h.path
}

// Close releases the descriptor. Subsequent calls are no-ops.
func (h *Handle) Close() error {
	if h == nil || h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	return err
}
