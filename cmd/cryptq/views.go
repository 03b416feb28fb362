package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"cryptq/internal/journal"
	"cryptq/internal/task"
)

// actionLabel renders a stored action value for display ("encrypt" ->
// "Encrypt"). Unknown values pass through title-cased rather than erroring;
// the journal is display-only here.
func actionLabel(value string) string {
	return cases.Title(language.Und).String(value)
}

func printRunSummary(cmd *cobra.Command, store *journal.Store, runID string, action task.Action, summary journal.Summary) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "\n%s run %s finished: %d task(s), %d completed, %d failed.\n",
		actionLabel(string(action)), shortRunID(runID), summary.Total, summary.Completed, summary.Failed)

	if summary.Failed == 0 {
		return
	}

	tasks, err := store.ListTasks(cmd.Context(), runID)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "list failed tasks: %v\n", err)
		return
	}

	rows := make([][]string, 0, summary.Failed)
	for _, t := range tasks {
		if t.Status != journal.StatusFailed {
			continue
		}
		rows = append(rows, []string{
			t.Path,
			strconv.Itoa(t.ExitCode),
			t.ErrorMessage,
		})
	}
	if len(rows) == 0 {
		return
	}

	headers := []string{"Path", "Exit", "Error"}
	aligns := []columnAlignment{alignLeft, alignRight, alignLeft}
	fmt.Fprintln(out, renderTable(headers, rows, aligns))
}
