// Package config loads, normalizes, and validates cryptq configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob
// the CLI and workers need: queue geometry, blocking timeouts, the cipher
// key-file location, and logging output.
//
// The cipher key itself lives outside the TOML file, as a single textual
// integer in the configured key file; LoadKey reads it once at startup and
// any parse failure aborts the run before the queue is constructed.
package config
