package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.Cipher.KeyFile == "" {
		return errors.New("cipher.key_file must be set")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue.capacity must be positive, got %d", c.Queue.Capacity)
	}
	if c.Queue.SlotSize < 64 {
		return fmt.Errorf("queue.slot_size must be at least 64 bytes, got %d", c.Queue.SlotSize)
	}
	if c.Queue.WorkerPool < 0 {
		return fmt.Errorf("queue.worker_pool must not be negative, got %d", c.Queue.WorkerPool)
	}
	if c.Queue.SubmitTimeout < 0 || c.Queue.TakeTimeout < 0 {
		return errors.New("queue timeouts must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
