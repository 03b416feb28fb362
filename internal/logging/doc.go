// Package logging builds the slog loggers used across cryptq: a single-line
// console handler for interactive use and a JSON handler for machine
// consumption, both selected through configuration. It also centralizes the
// structured field names so run, task, and worker identifiers stay consistent
// between the parent process and its spawned workers.
package logging
