// Package worker is the entry point that runs inside each spawned process:
// attach to the existing segment, take one task (or loop in pool mode),
// invoke the transform, and exit with a status code that reports the outcome
// to the dispatcher.
package worker

import (
	"context"
	"errors"
	"log/slog"

	"cryptq/internal/cipher"
	"cryptq/internal/config"
	"cryptq/internal/fileio"
	"cryptq/internal/logging"
	"cryptq/internal/queue"
	"cryptq/internal/shm"
	"cryptq/internal/task"
)

// Exit codes are the worker's only channel back to its supervisor.
const (
	ExitOK        = 0
	ExitTransform = 1
	ExitMalformed = 2
	ExitAttach    = 3
	ExitConfig    = 4
)

// Run executes the worker lifecycle and returns the process exit code.
// Failures here are fatal for this process only; the queue and sibling
// workers keep going.
func Run(ctx context.Context, cfg *config.Config, segmentName string, loop bool, logger *slog.Logger) int {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(
		logging.String(logging.FieldComponent, "worker"),
		logging.String(logging.FieldRunID, segmentName),
	)

	key, err := cfg.LoadKey()
	if err != nil {
		logger.Error("load cipher key", logging.Error(err))
		return ExitConfig
	}

	seg, err := shm.Open(segmentName)
	if err != nil {
		logger.Error("attach segment", logging.Error(err))
		return ExitAttach
	}
	defer seg.Close()

	qm := queue.New(seg, queue.Options{
		TakeTimeout: cfg.TakeTimeoutDuration(),
		Logger:      logger,
	})

	code := ExitOK
	for {
		rec, err := qm.Take(ctx)
		switch {
		case errors.Is(err, queue.ErrDrained):
			return code
		case errors.Is(err, task.ErrMalformed):
			// Slot already consumed and freed by Take; report and move on.
			logger.Error("malformed task record", logging.Error(err))
			if !loop {
				return ExitMalformed
			}
			code = ExitMalformed
			continue
		case err != nil:
			logger.Error("take task", logging.Error(err))
			return ExitAttach
		}

		if err := execute(rec, key); err != nil {
			logger.Error("transform failed",
				logging.String("path", rec.Path),
				logging.String("action", string(rec.Action)),
				logging.Error(err))
			if !loop {
				return ExitTransform
			}
			code = ExitTransform
			continue
		}

		logger.Info("task completed",
			logging.String("path", rec.Path),
			logging.String("action", string(rec.Action)))
		if !loop {
			return ExitOK
		}
	}
}

// execute opens the file, applies the transform, and guarantees handle
// release on every exit path.
func execute(rec task.Record, key int) error {
	handle, err := fileio.Open(rec.Path)
	if err != nil {
		return err
	}
	defer handle.Close()

	if err := cipher.Apply(rec.Action, key, handle); err != nil {
		return err
	}
	return handle.Close()
}
