package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"cryptq/internal/logging"
	"cryptq/internal/worker"
)

// newWorkerCommand is the entry point for processes spawned by the
// dispatcher. It is hidden: users never invoke it directly.
func newWorkerCommand(cmdCtx *commandContext) *cobra.Command {
	var segment string
	var loop bool

	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Consume one task from an existing run's shared queue",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if segment == "" {
				return errors.New("--segment is required")
			}
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				// Matches the exit contract even though cobra would
				// otherwise collapse this to a generic failure.
				os.Exit(worker.ExitConfig)
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				logger = logging.NewNop()
			}
			if code := worker.Run(cmd.Context(), cfg, segment, loop, logger); code != worker.ExitOK {
				os.Exit(code)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&segment, "segment", "", "Shared segment name to attach to")
	cmd.Flags().BoolVar(&loop, "loop", false, "Keep taking tasks until a stop frame is consumed")
	_ = cmd.MarkFlagRequired("segment")
	return cmd
}
