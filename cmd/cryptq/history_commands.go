package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"cryptq/internal/journal"
)

func newHistoryCommand(cmdCtx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and manage the run journal",
	}

	historyCmd.AddCommand(newHistoryListCommand(cmdCtx))
	historyCmd.AddCommand(newHistoryShowCommand(cmdCtx))
	historyCmd.AddCommand(newHistoryClearCommand(cmdCtx))

	return historyCmd
}

func newHistoryListCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withJournal(func(store *journal.Store) error {
				runs, err := store.ListRuns(cmd.Context())
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
					return nil
				}

				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					summary, err := store.Summarize(cmd.Context(), run.ID)
					if err != nil {
						return err
					}
					finished := "-"
					if run.FinishedAt != nil {
						finished = run.FinishedAt.Local().Format(time.RFC3339)
					}
					rows = append(rows, []string{
						shortRunID(run.ID),
						actionLabel(run.Action),
						run.Source,
						run.StartedAt.Local().Format(time.RFC3339),
						finished,
						strconv.Itoa(summary.Total),
						strconv.Itoa(summary.Completed),
						strconv.Itoa(summary.Failed),
					})
				}

				headers := []string{"Run", "Action", "Source", "Started", "Finished", "Tasks", "OK", "Failed"}
				aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
				return nil
			})
		},
	}
}

func newHistoryShowCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the tasks of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withJournal(func(store *journal.Store) error {
				runID, err := resolveRunID(cmd, store, args[0])
				if err != nil {
					return err
				}
				tasks, err := store.ListTasks(cmd.Context(), runID)
				if err != nil {
					return err
				}
				if len(tasks) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No tasks recorded for run %s.\n", runID)
					return nil
				}

				rows := make([][]string, 0, len(tasks))
				for _, t := range tasks {
					pid := "-"
					if t.WorkerPID != 0 {
						pid = strconv.Itoa(t.WorkerPID)
					}
					rows = append(rows, []string{
						strconv.FormatInt(t.ID, 10),
						t.Path,
						actionLabel(t.Action),
						string(t.Status),
						pid,
						strconv.Itoa(t.ExitCode),
						t.ErrorMessage,
					})
				}

				headers := []string{"ID", "Path", "Action", "Status", "PID", "Exit", "Error"}
				aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
				return nil
			})
		},
	}
}

func newHistoryClearCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all journal history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withJournal(func(store *journal.Store) error {
				removed, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d run(s) from the journal.\n", removed)
				return nil
			})
		},
	}
}

// resolveRunID accepts a full run id or an unambiguous prefix.
func resolveRunID(cmd *cobra.Command, store *journal.Store, input string) (string, error) {
	runs, err := store.ListRuns(cmd.Context())
	if err != nil {
		return "", err
	}
	var match string
	for _, run := range runs {
		if run.ID == input {
			return run.ID, nil
		}
		if len(input) >= 4 && len(run.ID) >= len(input) && run.ID[:len(input)] == input {
			if match != "" {
				return "", fmt.Errorf("run id prefix %q is ambiguous", input)
			}
			match = run.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no run matches %q", input)
	}
	return match, nil
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
