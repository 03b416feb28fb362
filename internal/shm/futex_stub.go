//go:build !linux

package shm

func futexWait(addr *uint32, val uint32, timeoutNs int64) error {
	return ErrNotSupported
}

func futexWake(addr *uint32, n int) error {
	return ErrNotSupported
}
