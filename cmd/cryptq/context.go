package main

import (
	"fmt"
	"strings"
	"sync"

	"cryptq/internal/config"
	"cryptq/internal/journal"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolvedPath, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		if exists {
			c.configPath = resolvedPath
		}
	})
	return c.config, c.configErr
}

// resolvedConfigPath reports the config file the process actually loaded,
// or "" when defaults were used.
func (c *commandContext) resolvedConfigPath() string {
	return c.configPath
}

// withJournal opens the run journal for a single command invocation and
// closes it when the callback returns.
func (c *commandContext) withJournal(fn func(store *journal.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := journal.Open(cfg)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer store.Close()
	return fn(store)
}
