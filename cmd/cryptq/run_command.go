package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"cryptq/internal/config"
	"cryptq/internal/dispatch"
	"cryptq/internal/journal"
	"cryptq/internal/logging"
	"cryptq/internal/queue"
	"cryptq/internal/shm"
	"cryptq/internal/task"
)

func newRunCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run <path> <encrypt|decrypt>",
		Short: "Transform a file, or every file in a directory, using worker processes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}

			action, ok := task.ParseAction(args[1])
			if !ok {
				return fmt.Errorf("unknown action %q (expected encrypt or decrypt)", args[1])
			}

			source, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}

			// A bad key aborts the whole run before the queue even exists.
			if _, err := cfg.LoadKey(); err != nil {
				return err
			}

			paths, err := enumerateFiles(source)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no regular files found under %s", source)
			}

			// Workers are separate processes; hand them the same config
			// file so queue geometry and key file match on both sides.
			if configPath := cmdCtx.resolvedConfigPath(); configPath != "" {
				if err := os.Setenv("CRYPTQ_CONFIG", configPath); err != nil {
					return fmt.Errorf("export config path: %w", err)
				}
			}

			return executeRun(cmd, cfg, logger, action, source, paths)
		},
	}
}

func executeRun(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, action task.Action, source string, paths []string) error {
	ctx := cmd.Context()

	runLock := flock.New(cfg.LockPath())
	locked, err := runLock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return errors.New("another cryptq run is active in this log directory")
	}
	defer func() { _ = runLock.Unlock() }()

	store, err := journal.Open(cfg)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer store.Close()

	runID := uuid.NewString()
	if _, err := store.BeginRun(ctx, runID, string(action), source); err != nil {
		return err
	}

	seg, err := shm.Create(runID, cfg.Queue.Capacity, cfg.Queue.SlotSize)
	if err != nil {
		return err
	}
	// The initiator owns final teardown: unmap, then remove the named
	// segment after every spawned worker has been waited on below.
	defer func() {
		_ = seg.Close()
		_ = shm.Remove(runID)
	}()

	logger = logger.With(logging.String(logging.FieldRunID, runID))
	logger.Info("run started",
		logging.String("action", string(action)),
		logging.String("source", source),
		logging.Int("tasks", len(paths)),
		logging.Int("pool", cfg.Queue.WorkerPool))

	qm := queue.New(seg, queue.Options{
		SubmitTimeout: cfg.SubmitTimeoutDuration(),
		Logger:        logger,
	})

	dispatcher, err := dispatch.New(runID, qm, store, logger)
	if err != nil {
		return err
	}

	var runErr error
	if pool := cfg.Queue.WorkerPool; pool > 0 {
		runErr = runWithPool(ctx, dispatcher, store, runID, action, paths, pool)
	} else {
		runErr = runPerTask(ctx, dispatcher, action, paths)
	}

	dispatcher.Wait()

	if err := store.FinishRun(ctx, runID); err != nil {
		logger.Warn("finish run", logging.Error(err))
	}
	if runErr != nil {
		return runErr
	}

	summary, err := store.Summarize(ctx, runID)
	if err != nil {
		return err
	}
	printRunSummary(cmd, store, runID, action, summary)

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", summary.Failed, summary.Total)
	}
	return nil
}

func runPerTask(ctx context.Context, dispatcher *dispatch.Dispatcher, action task.Action, paths []string) error {
	for _, path := range paths {
		rec := task.Record{Path: path, Action: action}
		if _, err := dispatcher.Dispatch(ctx, rec); err != nil {
			return fmt.Errorf("dispatch %s: %w", path, err)
		}
	}
	return nil
}

func runWithPool(ctx context.Context, dispatcher *dispatch.Dispatcher, store *journal.Store, runID string, action task.Action, paths []string, pool int) error {
	handles, err := dispatcher.StartPool(ctx, pool)
	if err != nil {
		return err
	}
	for _, path := range paths {
		rec := task.Record{Path: path, Action: action}
		if _, err := dispatcher.Submit(ctx, rec); err != nil {
			return fmt.Errorf("submit %s: %w", path, err)
		}
	}
	if err := dispatcher.Drain(ctx, len(handles)); err != nil {
		return err
	}

	allOK := true
	for _, handle := range handles {
		<-handle.Done()
		if handle.ExitCode() != 0 {
			allOK = false
		}
	}
	if _, err := store.ResolveDispatched(ctx, runID, allOK, "pool worker reported failure"); err != nil {
		return err
	}
	return nil
}

// enumerateFiles expands a source path into the list of files to submit.
// Directories contribute each regular file directly under them; symlinks
// and nested directories are skipped.
func enumerateFiles(source string) ([]string, error) {
	info, err := os.Lstat(source)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", source, err)
	}
	if info.Mode().IsRegular() {
		return []string{source}, nil
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is neither a regular file nor a directory", source)
	}

	entries, err := os.ReadDir(source)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", source, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.Type()&fs.ModeType != 0 {
			continue
		}
		paths = append(paths, filepath.Join(source, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
