package config

import "strings"

func (c *Config) normalize() error {
	logDir, err := expandPath(c.Paths.LogDir)
	if err != nil {
		return err
	}
	c.Paths.LogDir = logDir

	// The key file stays relative when configured that way: the original
	// contract reads it from the invoking directory.
	c.Cipher.KeyFile = strings.TrimSpace(c.Cipher.KeyFile)
	if strings.HasPrefix(c.Cipher.KeyFile, "~") {
		keyFile, err := expandPath(c.Cipher.KeyFile)
		if err != nil {
			return err
		}
		c.Cipher.KeyFile = keyFile
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}
