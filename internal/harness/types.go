package harness

import (
	"github.com/roach88/nudge/internal/engine"
	"github.com/roach88/nudge/internal/ir"
)

// TraceEvent records one delivered event and what it did to reminders.
type TraceEvent struct {
	Seq       int            `json:"seq"`
	EventType ir.EventType   `json:"event_type"`
	Timestamp int64          `json:"timestamp"`
	Outcomes  []TraceOutcome `json:"outcomes"`
	// Error is set when the event could not be evaluated at all.
	Error string `json:"error,omitempty"`
}

// TraceOutcome is the golden-stable subset of engine.Outcome.
type TraceOutcome struct {
	ReminderID     string             `json:"reminder_id"`
	Outcome        engine.OutcomeKind `json:"outcome"`
	NotificationID string             `json:"notification_id,omitempty"`
	FiredAt        *int64             `json:"fired_at,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// ReminderState is a reminder's final lifecycle state.
type ReminderState struct {
	Status  ir.Status `json:"status"`
	FiredAt *int64    `json:"fired_at,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace holds one entry per delivered event, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is each reminder's final state, keyed by id.
	State map[string]ReminderState `json:"state,omitempty"`

	// Notifications counts notify attempts per reminder, failures included.
	Notifications map[string]int `json:"notifications,omitempty"`

	// Ambient is the ambient state after the last event.
	Ambient ir.AmbientState `json:"ambient"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:          true,
		Trace:         []TraceEvent{},
		Errors:        []string{},
		State:         make(map[string]ReminderState),
		Notifications: make(map[string]int),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEventTrace appends the trace entry for one event's report.
func (r *Result) AddEventTrace(ev ir.SystemEvent, report engine.Report, err error) {
	te := TraceEvent{
		Seq:       len(r.Trace) + 1,
		EventType: ev.Type,
		Timestamp: ev.Timestamp,
		Outcomes:  make([]TraceOutcome, 0, len(report.Outcomes)),
	}
	for _, o := range report.Outcomes {
		te.Outcomes = append(te.Outcomes, TraceOutcome{
			ReminderID:     o.ReminderID,
			Outcome:        o.Kind,
			NotificationID: o.NotificationID,
			FiredAt:        o.FiredAt,
			Error:          o.Error,
		})
	}
	if err != nil && len(report.Outcomes) == 0 {
		te.Error = err.Error()
	}
	r.Trace = append(r.Trace, te)
}
