package testsupport

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"cryptq/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It writes a valid key file, defaults common fields, and applies any
// provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Cipher.KeyFile = filepath.Join(base, "key.env")
	cfgVal.Queue.Capacity = 8
	cfgVal.Queue.SlotSize = 256
	cfgVal.Queue.SubmitTimeout = 5
	cfgVal.Queue.TakeTimeout = 5

	if err := os.MkdirAll(cfgVal.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir log dir: %v", err)
	}
	if err := os.WriteFile(cfgVal.Cipher.KeyFile, []byte("3\n"), 0o644); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithKey rewrites the generated key file with the provided shift value.
func WithKey(key int) ConfigOption {
	return func(b *configBuilder) {
		if err := os.WriteFile(b.cfg.Cipher.KeyFile, []byte(strconv.Itoa(key)+"\n"), 0o644); err != nil {
			b.t.Fatalf("write key file: %v", err)
		}
	}
}

// WithKeyFile points the config at an arbitrary key file path without
// creating it. Useful for exercising key-load failures.
func WithKeyFile(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cipher.KeyFile = path
	}
}

// WithQueueCapacity overrides the ring slot count on the test config.
func WithQueueCapacity(capacity int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.Capacity = capacity
	}
}

// WithSlotSize overrides the per-slot byte size on the test config.
func WithSlotSize(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.SlotSize = size
	}
}

// WithWorkerPool switches the test config into pool dispatch mode.
func WithWorkerPool(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.WorkerPool = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
