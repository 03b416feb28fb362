package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrInvalidKey marks configuration errors in the cipher key file. Key
// failures are fatal for the whole run, before the queue is constructed.
var ErrInvalidKey = errors.New("invalid cipher key")

// LoadKey reads the single textual integer from the configured key file.
// The value is treated as an opaque shared secret passed by value into the
// transform; the queue core never inspects it.
func (c *Config) LoadKey() (int, error) {
	data, err := os.ReadFile(c.Cipher.KeyFile)
	if err != nil {
		return 0, fmt.Errorf("%w: read %s: %w", ErrInvalidKey, c.Cipher.KeyFile, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, fmt.Errorf("%w: %s is empty", ErrInvalidKey, c.Cipher.KeyFile)
	}
	key, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %s does not hold an integer: %w", ErrInvalidKey, c.Cipher.KeyFile, err)
	}
	return key, nil
}
