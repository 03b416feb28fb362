// Package cipher is the byte-transform collaborator: a fixed-shift additive
// cipher applied in place over a file. Its cryptographic strength is not the
// point; the queue core only depends on the Apply contract.
package cipher

import (
	"errors"
	"fmt"
	"io"

	"cryptq/internal/fileio"
	"cryptq/internal/task"
)

const chunkSize = 32 * 1024

// Apply shifts every byte of the file by key (encrypt) or -key (decrypt),
// rewriting the file in place through positioned reads and writes. The
// handle stays open; the caller owns its lifecycle.
func Apply(action task.Action, key int, h *fileio.Handle) error {
	if h == nil || h.File() == nil {
		return errors.New("cipher: nil file handle")
	}

	shift := byte(((key % 256) + 256) % 256)
	if action == task.ActionDecrypt {
		shift = -shift // unsigned negation: the inverse shift mod 256
	}

	file := h.File()
	buf := make([]byte, chunkSize)
	var offset int64
	for {
		n, err := file.ReadAt(buf, offset)
		if n > 0 {
			for i := 0; i < n; i++ {
				buf[i] += shift
			}
			if _, werr := file.WriteAt(buf[:n], offset); werr != nil {
				return fmt.Errorf("cipher: write %s at %d: %w", h.Path(), offset, werr)
			}
			offset += int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("cipher: read %s at %d: %w", h.Path(), offset, err)
		}
	}
}
