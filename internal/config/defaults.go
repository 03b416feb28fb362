package config

const (
	defaultLogDir        = "~/.local/share/cryptq/logs"
	defaultKeyFile       = ".env"
	defaultCapacity      = 1000
	defaultSlotSize      = 4096
	defaultWorkerPool    = 0
	defaultSubmitTimeout = 0
	defaultTakeTimeout   = 30
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		Cipher: Cipher{
			KeyFile: defaultKeyFile,
		},
		Queue: Queue{
			Capacity:      defaultCapacity,
			SlotSize:      defaultSlotSize,
			WorkerPool:    defaultWorkerPool,
			SubmitTimeout: defaultSubmitTimeout,
			TakeTimeout:   defaultTakeTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
