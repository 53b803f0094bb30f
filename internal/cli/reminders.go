package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/nudge/internal/compiler"
	"github.com/roach88/nudge/internal/engine"
	"github.com/roach88/nudge/internal/ir"
	"github.com/roach88/nudge/internal/store"
)

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <file>",
		Short: "Store reminders from a JSON or CUE file",
		Long: `Store one or more reminders.

A .json file holds a single reminder object or an array of them; a .cue
file holds definitions under "reminder". Missing ids are generated,
missing created_at is set to now and status starts as WAITING. Every
reminder is validated before it is stored.

Example:
  nudge add water.json
  nudge add reminders.cue --db ./nudge.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(rootOpts, args[0], cmd)
		},
	}
}

func runAdd(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	reminders, err := readReminders(path)
	if err != nil {
		_ = formatter.Error(ErrCodeBadInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read reminders", err)
	}

	sess, err := opts.openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	ids := engine.UUIDv7Generator{}
	now := nowMillis()
	added := make([]ir.Reminder, 0, len(reminders))
	for _, r := range reminders {
		if r.ID == "" {
			r.ID = ids.Generate()
		}
		if r.CreatedAt == 0 {
			r.CreatedAt = now
		}
		if r.Status == "" {
			r.Status = ir.StatusWaiting
		}

		if err := sess.store.CreateReminder(cmd.Context(), r); err != nil {
			var invalid *ir.InvalidReminderError
			if errors.As(err, &invalid) {
				_ = formatter.Error(compiler.ErrInvalidConfig, err.Error(), invalid.Problems)
				return WrapExitError(ExitFailure, "invalid reminder", err)
			}
			if errors.Is(err, store.ErrExists) {
				_ = formatter.Error(compiler.ErrDuplicateRemID, err.Error(), nil)
				return WrapExitError(ExitFailure, "reminder exists", err)
			}
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to store reminder", err)
		}
		sess.logger.Info("reminder added", "reminder_id", r.ID, "triggers", len(r.Triggers))
		added = append(added, r)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]any{"reminders": added})
	}
	for _, r := range added {
		fmt.Fprintf(formatter.Writer, "✓ Added %s: %s\n", r.ID, r.Title)
	}
	return nil
}

// readReminders decodes a reminder file by extension.
func readReminders(path string) ([]ir.Reminder, error) {
	if filepath.Ext(path) == ".cue" {
		reminders, errs := compiler.CompileFile(path)
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return reminders, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)

	if bytes.HasPrefix(data, []byte("[")) {
		var reminders []ir.Reminder
		if err := json.Unmarshal(data, &reminders); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return reminders, nil
	}

	var r ir.Reminder
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return []ir.Reminder{r}, nil
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Status string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List stored reminders",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "only reminders with this status (WAITING|FIRED|EXPIRED)")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	status := ir.Status(strings.ToUpper(opts.Status))
	if status != "" && !status.Valid() {
		_ = formatter.Error(compiler.ErrUnknownType, fmt.Sprintf("unknown status %q", opts.Status), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown status %q", opts.Status))
	}

	sess, err := opts.openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	reminders, err := sess.store.ListReminders(cmd.Context(), status)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list reminders", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]any{"reminders": reminders, "count": len(reminders)})
	}

	if len(reminders) == 0 {
		fmt.Fprintln(formatter.Writer, "No reminders.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTRIGGERS\tFIRED_AT\tTITLE")
	for _, r := range reminders {
		types := make([]string, len(r.Triggers))
		for i, t := range r.Triggers {
			types[i] = string(t.Type)
		}
		firedAt := "-"
		if r.FiredAt != nil {
			firedAt = fmt.Sprintf("%d", *r.FiredAt)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Status, strings.Join(types, ","), firedAt, r.Title)
	}
	return tw.Flush()
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <id>",
		Short:         "Delete a reminder and its firing history",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			sess, err := rootOpts.openSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.store.DeleteReminder(cmd.Context(), args[0]); err != nil {
				return storeFailure(formatter, err)
			}
			sess.logger.Info("reminder deleted", "reminder_id", args[0])

			if formatter.Format == "json" {
				return formatter.Success(map[string]string{"deleted": args[0]})
			}
			fmt.Fprintf(formatter.Writer, "✓ Deleted %s\n", args[0])
			return nil
		},
	}
}

// NewReactivateCommand creates the reactivate command.
func NewReactivateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reactivate <id>",
		Short: "Re-arm a fired reminder",
		Long: `Move a FIRED reminder back to WAITING so it can fire again.
Reminders in any other status are rejected.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			sess, err := rootOpts.openSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			r, err := sess.store.Reactivate(cmd.Context(), args[0])
			if err != nil {
				return storeFailure(formatter, err)
			}
			sess.logger.Info("reminder reactivated", "reminder_id", r.ID)

			if formatter.Format == "json" {
				return formatter.Success(r)
			}
			fmt.Fprintf(formatter.Writer, "✓ %s is %s\n", r.ID, r.Status)
			return nil
		},
	}
}

// PruneOptions holds flags for the prune command.
type PruneOptions struct {
	*RootOptions
	Now int64
}

// NewPruneCommand creates the prune command.
func NewPruneCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PruneOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "prune",
		Short:         "Mark waiting reminders past expires_at as EXPIRED",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(opts.RootOptions, cmd)

			sess, err := opts.openSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			now := opts.Now
			if now == 0 {
				now = nowMillis()
			}
			n, err := sess.store.PruneExpired(cmd.Context(), now)
			if err != nil {
				return storeFailure(formatter, err)
			}
			sess.logger.Info("expired reminders pruned", "count", n, "now", now)

			if formatter.Format == "json" {
				return formatter.Success(map[string]int64{"expired": n})
			}
			fmt.Fprintf(formatter.Writer, "✓ Expired %d reminder(s)\n", n)
			return nil
		},
	}

	cmd.Flags().Int64Var(&opts.Now, "now", 0, "cutoff in epoch millis (default: current time)")

	return cmd
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "history [id]",
		Short:         "Show recorded firings, for one reminder or all",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			var id string
			if len(args) == 1 {
				id = args[0]
			}

			sess, err := rootOpts.openSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			firings, err := sess.store.ListFirings(cmd.Context(), id)
			if err != nil {
				return storeFailure(formatter, err)
			}

			if formatter.Format == "json" {
				return formatter.Success(map[string]any{"firings": firings})
			}
			if len(firings) == 0 {
				fmt.Fprintln(formatter.Writer, "No firings.")
				return nil
			}
			tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FIRED_AT\tREMINDER\tNOTIFICATION\tEVENT")
			for _, f := range firings {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", f.FiredAt, f.ReminderID, f.NotificationID, f.EventID)
			}
			return tw.Flush()
		},
	}
}

// storeFailure reports a store error: missing or wrongly-stated reminders
// are failures, anything else is a command error.
func storeFailure(formatter *OutputFormatter, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitFailure, "reminder not found", err)
	case errors.Is(err, store.ErrNotFired):
		_ = formatter.Error(ErrCodeBadState, err.Error(), nil)
		return WrapExitError(ExitFailure, "reminder cannot be reactivated", err)
	default:
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "database error", err)
	}
}
