package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/nudge/internal/engine"
	"github.com/roach88/nudge/internal/ir"
)

// maxEventLine bounds a single JSONL event.
const maxEventLine = 1 << 20

// NewEmitCommand creates the emit command.
func NewEmitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "emit <event.json|->",
		Short: "Deliver one system event",
		Long: `Deliver one system event and fire the reminders it selects.

The event is read from a file, or from stdin when the argument is "-".
A zero timestamp is replaced with the current time.

Example:
  echo '{"type":"APP_BECAME_ACTIVE"}' | nudge emit -
  nudge emit arrived.json --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmit(rootOpts, args[0], cmd)
		},
	}
}

func runEmit(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	ev, err := readEvent(path, cmd.InOrStdin())
	if err != nil {
		_ = formatter.Error(ErrCodeBadInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read event", err)
	}

	sess, err := opts.openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	d := sess.dispatcher(sess.controller(nil), formatter.notifyWriter(), nil)
	report, err := d.Process(cmd.Context(), ev)
	if err != nil && len(report.Outcomes) == 0 {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to handle event", err)
	}

	if formatter.Format == "json" {
		if err := json.NewEncoder(formatter.Writer).Encode(reportResponse(report)); err != nil {
			return err
		}
	} else {
		writeReportText(formatter.Writer, report)
	}

	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("%d reminder(s) failed", failedCount(report)), err)
	}
	return nil
}

// readEvent decodes one event from path, or from stdin for "-".
func readEvent(path string, stdin io.Reader) (ir.SystemEvent, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return ir.SystemEvent{}, err
	}
	return decodeEvent(data)
}

func decodeEvent(data []byte) (ir.SystemEvent, error) {
	var ev ir.SystemEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ir.SystemEvent{}, fmt.Errorf("parse event: %w", err)
	}
	if ev.Type == "" {
		return ir.SystemEvent{}, errors.New("parse event: type is required")
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = nowMillis()
	}
	return ev, nil
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Deliver a stream of JSONL events from stdin",
		Long: `Read one JSON event per line from stdin and deliver each through the
dispatcher, in order. Blank lines and lines starting with # are skipped.
Malformed lines are reported and skipped. Stops at end of input or on
Ctrl-C.

Example:
  nudge run --db ./nudge.db < events.jsonl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(rootOpts, cmd)
		},
	}
}

// runStats summarizes a run.
type runStats struct {
	Events   int `json:"events"`
	Fired    int `json:"fired"`
	Failed   int `json:"failed"`
	Rejected int `json:"rejected"`
}

// eventLine is one JSONL output record of the run command.
type eventLine struct {
	Line   int            `json:"line"`
	Report *engine.Report `json:"report,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func runEvents(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	sess, err := opts.openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := sess.dispatcher(sess.controller(nil), formatter.notifyWriter(), nil)

	var stats runStats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := d.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer d.Stop()
		return feedEvents(gctx, cmd.InOrStdin(), d, formatter, &stats)
	})
	// Ctrl-C ends the stream like end of input.
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitCommandError, "event stream aborted", err)
	}

	sess.logger.Info("event stream finished",
		"events", stats.Events,
		"fired", stats.Fired,
		"failed", stats.Failed,
		"rejected", stats.Rejected,
	)
	if formatter.Format != "json" {
		fmt.Fprintf(formatter.Writer, "\nProcessed %d event(s): %d fired, %d failed, %d rejected\n",
			stats.Events, stats.Fired, stats.Failed, stats.Rejected)
	}

	if stats.Failed > 0 || stats.Rejected > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d reminder failure(s), %d rejected line(s)", stats.Failed, stats.Rejected))
	}
	return nil
}

// feedEvents dispatches each input line and waits for its report, so output
// follows input order.
func feedEvents(ctx context.Context, r io.Reader, d *engine.Dispatcher, formatter *OutputFormatter, stats *runStats) error {
	enc := json.NewEncoder(formatter.Writer)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)

	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 || text[0] == '#' {
			continue
		}

		ev, err := decodeEvent(text)
		if err != nil {
			stats.Rejected++
			if formatter.Format == "json" {
				if err := enc.Encode(eventLine{Line: line, Error: err.Error()}); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(formatter.GetErrWriter(), "line %d: %v\n", line, err)
			}
			continue
		}

		report, err := d.Dispatch(ctx, ev)
		if errors.Is(err, engine.ErrDispatcherStopped) || ctx.Err() != nil {
			return err
		}
		stats.Events++
		stats.Fired += report.Count(engine.OutcomeFired)
		stats.Failed += failedCount(report)

		if formatter.Format == "json" {
			out := eventLine{Line: line, Report: &report}
			if err != nil && len(report.Outcomes) == 0 {
				out.Error = err.Error()
			}
			if err := enc.Encode(out); err != nil {
				return err
			}
			continue
		}
		writeReportText(formatter.Writer, report)
	}
	return scanner.Err()
}

func failedCount(report engine.Report) int {
	return report.Count(engine.OutcomeNotifyFailed) + report.Count(engine.OutcomeNotPersisted)
}

// reportResponse wraps a report in the standard envelope; any per-reminder
// failure makes the status "error".
func reportResponse(report engine.Report) CLIResponse {
	resp := CLIResponse{Status: "ok", Data: report}
	if n := failedCount(report); n > 0 {
		resp.Status = "error"
		resp.Error = &CLIError{Code: ErrCodeGeneric, Message: fmt.Sprintf("%d reminder(s) failed", n)}
	}
	return resp
}

// writeReportText prints one event's outcomes.
func writeReportText(w io.Writer, report engine.Report) {
	fmt.Fprintf(w, "%s: %d listening, %d fired\n",
		report.EventType, report.Considered, report.Count(engine.OutcomeFired))
	for _, o := range report.Outcomes {
		switch o.Kind {
		case engine.OutcomeFired:
			fmt.Fprintf(w, "  ✓ %s fired (notification %s)\n", o.ReminderID, o.NotificationID)
		case engine.OutcomeDuplicate:
			fmt.Fprintf(w, "  - %s already firing\n", o.ReminderID)
		default:
			fmt.Fprintf(w, "  ✗ %s %s: %s\n", o.ReminderID, o.Kind, o.Error)
		}
	}
}
