package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/nudge/internal/compiler"
	"github.com/roach88/nudge/internal/engine"
	"github.com/roach88/nudge/internal/ir"
	"github.com/roach88/nudge/internal/store"
	"github.com/roach88/nudge/internal/testutil"
)

// Harness is the scenario execution engine. Each run gets its own SQLite
// database, a recording notifier and the real Controller and Dispatcher.
type Harness struct {
	store      *store.Store
	notifier   *testutil.RecordingNotifier
	dispatcher *engine.Dispatcher
	logger     *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
//  1. Create a fresh SQLite database in a temp dir
//  2. Compile definitions and store every reminder (validated)
//  3. Seed the ambient state and inject failures
//  4. Deliver each event through the dispatcher
//  5. Collect final state and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "nudge-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	loc := time.UTC
	if scenario.Timezone != "" {
		if loc, err = time.LoadLocation(scenario.Timezone); err != nil {
			return nil, fmt.Errorf("timezone: %w", err)
		}
	}

	// Suppress logs in scenario runs.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := testutil.NewRecordingNotifier()
	faulty := &faultyStore{Store: st, failures: make(map[string]error)}
	for _, f := range scenario.Failures {
		if f.Notify != "" {
			notifier.FailFor(f.Reminder, errors.New(f.Notify))
		}
		if f.NotifyTimes > 0 {
			notifier.FailTimes(f.Reminder, f.NotifyTimes)
		}
		if f.Persist != "" {
			faulty.failures[f.Reminder] = errors.New(f.Persist)
		}
	}

	ctrl := engine.NewController(engine.WithLogger(logger), engine.WithLocation(loc))
	h := &Harness{
		store:      st,
		notifier:   notifier,
		dispatcher: engine.NewDispatcher(ctrl, faulty, notifier, engine.WithDispatchLogger(logger)),
		logger:     logger,
	}

	if err := h.setup(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	if err := h.executeEvents(ctx, scenario, result); err != nil {
		return nil, fmt.Errorf("failed to execute events: %w", err)
	}
	if err := h.collectState(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to collect final state: %w", err)
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

// setup stores the scenario's reminders and ambient state.
func (h *Harness) setup(ctx context.Context, scenario *Scenario) error {
	var reminders []ir.Reminder
	for _, path := range scenario.DefinitionPaths() {
		compiled, errs := compiler.CompileFile(path)
		if len(errs) > 0 {
			return fmt.Errorf("compile %s: %w", path, errors.Join(errs...))
		}
		reminders = append(reminders, compiled...)
	}

	inline, err := scenario.ParsedReminders()
	if err != nil {
		return err
	}
	reminders = append(reminders, inline...)

	for _, r := range reminders {
		if err := h.store.CreateReminder(ctx, r); err != nil {
			return err
		}
	}

	if err := h.store.SaveAmbientState(ctx, scenario.Ambient.State()); err != nil {
		return fmt.Errorf("seed ambient state: %w", err)
	}

	h.logger.Info("scenario setup completed", "scenario", scenario.Name, "reminders", len(reminders))
	return nil
}

// executeEvents delivers every event in order and records the trace.
// Per-reminder failures are part of the trace, not run errors.
func (h *Harness) executeEvents(ctx context.Context, scenario *Scenario, result *Result) error {
	events, err := scenario.ParsedEvents()
	if err != nil {
		return err
	}

	for i, ev := range events {
		report, err := h.dispatcher.Process(ctx, ev)
		result.AddEventTrace(ev, report, err)

		h.logger.Info("event delivered",
			"step", i,
			"event_type", ev.Type,
			"considered", report.Considered,
			"fired", report.Count(engine.OutcomeFired),
		)
	}
	return nil
}

func (h *Harness) collectState(ctx context.Context, result *Result) error {
	reminders, err := h.store.ListReminders(ctx, "")
	if err != nil {
		return err
	}
	for _, r := range reminders {
		result.State[r.ID] = ReminderState{Status: r.Status, FiredAt: r.FiredAt}
		result.Notifications[r.ID] = h.notifier.Count(r.ID)
	}
	result.Ambient = h.dispatcher.Ambient()
	return nil
}

// faultyStore fails SaveReminder for configured reminders.
type faultyStore struct {
	*store.Store
	failures map[string]error
}

func (s *faultyStore) SaveReminder(ctx context.Context, r ir.Reminder) error {
	if err, ok := s.failures[r.ID]; ok {
		return err
	}
	return s.Store.SaveReminder(ctx, r)
}
