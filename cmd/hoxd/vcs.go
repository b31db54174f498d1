package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hoxforge/hox/internal/herr"
	"github.com/hoxforge/hox/internal/vcs"
)

var vcsCmd = &cobra.Command{
	Use:     "vcs",
	GroupID: "daemon",
	Short:   "Inspect and act on the underlying DVCS operation log",
}

var vcsLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent operation log entries",
	RunE:  runVCSLog,
}

var vcsUndoCmd = &cobra.Command{
	Use:   "undo <op-id>",
	Short: "Undo an operation (git: destructively resets; jj: a true inverse)",
	Args:  cobra.ExactArgs(1),
	RunE:  runVCSUndo,
}

var vcsEvologCmd = &cobra.Command{
	Use:   "evolog <change-id>",
	Short: "Show a change's evolution log (jj only)",
	Args:  cobra.ExactArgs(1),
	RunE:  runVCSEvolog,
}

var vcsBackoutCmd = &cobra.Command{
	Use:   "backout <change-id>",
	Short: "Create a change that reverses another, without editing history (jj only)",
	Args:  cobra.ExactArgs(1),
	RunE:  runVCSBackout,
}

func init() {
	vcsLogCmd.Flags().Int("limit", 10, "number of operations to show")

	vcsCmd.AddCommand(vcsLogCmd, vcsUndoCmd, vcsEvologCmd, vcsBackoutCmd)
	rootCmd.AddCommand(vcsCmd)
}

func runVCSLog(cmd *cobra.Command, args []string) error {
	v, _, err := openRepo(rootDir)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	ops, err := v.OpLog(cmd.Context(), limit)
	if err != nil {
		return err
	}
	for _, op := range ops {
		fmt.Fprintf(os.Stdout, "%s  %s  %s\n", op.ID, op.Timestamp.Format("2006-01-02T15:04:05"), op.Description)
	}
	return nil
}

// runVCSUndo undoes opID via VCS.Undo (jj: inverse operation; git: hard
// reset to the reflog commit opID names).
// Refuses when CanUndo reports the operation is no longer live, rather than
// letting the backend fail with a less legible error.
func runVCSUndo(cmd *cobra.Command, args []string) error {
	opID := args[0]
	v, _, err := openRepo(rootDir)
	if err != nil {
		return err
	}

	if !v.CanUndo(cmd.Context(), opID) {
		return herr.NotFound("operation", opID)
	}
	if err := v.Undo(cmd.Context(), opID); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "undone: %s\n", opID)
	return nil
}

// runVCSEvolog prints changeID's full rewrite history, oldest first, as a
// speculative-exploration audit trail.
func runVCSEvolog(cmd *cobra.Command, args []string) error {
	v, _, err := openRepo(rootDir)
	if err != nil {
		return err
	}
	entries, err := vcs.EvolutionLog(cmd.Context(), v, args[0])
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(os.Stdout, "%s  %s  %s\n", e.ChangeID, e.Timestamp.Format("2006-01-02T15:04:05"), e.Description)
	}
	return nil
}

// runVCSBackout creates a backout change reversing args[0]'s effects,
// leaving the original in history (unlike undo, which discards/inverts).
func runVCSBackout(cmd *cobra.Command, args []string) error {
	v, _, err := openRepo(rootDir)
	if err != nil {
		return err
	}
	backoutID, err := vcs.Backout(cmd.Context(), v, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "backout change: %s\n", backoutID)
	return nil
}
