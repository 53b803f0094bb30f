package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roach88/nudge/internal/ir"
	"github.com/roach88/nudge/internal/rules"
)

// FireFunc delivers the notification for a reminder and returns the sink's
// notification id. Retrying transient failures is the sink's job.
type FireFunc func(ctx context.Context, r ir.Reminder) (string, error)

// PersistFunc durably stores the full reminder record, nested triggers and
// conditions included.
type PersistFunc func(ctx context.Context, r ir.Reminder) error

// OutcomeKind describes what happened to one selected reminder.
type OutcomeKind string

const (
	// OutcomeFired: notified and persisted as FIRED.
	OutcomeFired OutcomeKind = "fired"
	// OutcomeDuplicate: skipped because another call was already firing it.
	OutcomeDuplicate OutcomeKind = "duplicate"
	// OutcomeNotifyFailed: notification failed, reminder still WAITING.
	OutcomeNotifyFailed OutcomeKind = "notify_failed"
	// OutcomeNotPersisted: notified, but the FIRED state was not stored.
	OutcomeNotPersisted OutcomeKind = "not_persisted"
)

// Outcome is the result for one reminder selected by the rule engine.
type Outcome struct {
	ReminderID     string      `json:"reminder_id"`
	Kind           OutcomeKind `json:"outcome"`
	NotificationID string      `json:"notification_id,omitempty"`
	FiredAt        *int64      `json:"fired_at,omitempty"`
	Error          string      `json:"error,omitempty"`

	// Reminder is the FIRED record for fired and not-persisted outcomes.
	Reminder *ir.Reminder `json:"-"`
	Err      error        `json:"-"`
}

// Report summarizes one HandleEvent call.
type Report struct {
	EventID    string       `json:"event_id"`
	EventType  ir.EventType `json:"event_type"`
	Considered int          `json:"considered"`
	Outcomes   []Outcome    `json:"outcomes"`
}

// Fired returns the reminders that reached FIRED in memory, including those
// whose persistence failed.
func (r Report) Fired() []ir.Reminder {
	var out []ir.Reminder
	for _, o := range r.Outcomes {
		if o.Reminder != nil {
			out = append(out, *o.Reminder)
		}
	}
	return out
}

// Count returns how many outcomes have the given kind.
func (r Report) Count(kind OutcomeKind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// Err joins every per-reminder error, or returns nil.
func (r Report) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}

// Controller drives reminders from WAITING to FIRED exactly once per
// activation.
//
// For each reminder the rule engine selects, the controller claims it in
// the in-flight set, notifies, marks it FIRED and persists it, then
// releases the claim. Reminders are processed one after another so that
// notify always precedes persist and burst delivery stays bounded.
//
// Thread-safety: HandleEvent may be called from several goroutines; the
// in-flight set is the only state they share.
type Controller struct {
	inFlight *InFlight
	logger   *slog.Logger
	metrics  *Metrics
	now      func() int64
	loc      *time.Location
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithMetrics records lifecycle counters. Default: none.
func WithMetrics(m *Metrics) ControllerOption {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithClock sets the source of firedAt in epoch milliseconds.
//
// Default: the timestamp of the event that fired the reminder, which keeps
// replays deterministic.
func WithClock(now func() int64) ControllerOption {
	return func(c *Controller) {
		c.now = now
	}
}

// WithLocation sets the time zone for hour and weekday conditions.
// Default: time.Local.
func WithLocation(loc *time.Location) ControllerOption {
	return func(c *Controller) {
		c.loc = loc
	}
}

// NewController creates a Controller with its own in-flight set.
func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		inFlight: NewInFlight(),
		logger:   slog.Default(),
		loc:      time.Local,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InFlight exposes the controller's in-flight set.
func (c *Controller) InFlight() *InFlight {
	return c.inFlight
}

// HandleEvent evaluates ev against a snapshot of reminders and ambient
// state, then fires every selected reminder.
//
// Every selected reminder is attempted even if an earlier one fails. The
// returned error joins the per-reminder failures; inspect it with
// IsNotifyError and IsNotPersistedError, or walk Report.Outcomes.
// Suppressed duplicates are not errors.
func (c *Controller) HandleEvent(
	ctx context.Context,
	ev ir.SystemEvent,
	reminders []ir.Reminder,
	ambient ir.AmbientState,
	fire FireFunc,
	persist PersistFunc,
) (Report, error) {
	eventID, err := ir.EventID(ev)
	if err != nil {
		// Only non-finite coordinates fail to hash; evaluation still works.
		c.logger.Warn("event id unavailable", "event_type", ev.Type, "error", err)
	}

	res := rules.Evaluate(reminders, ev, ambient, c.loc)
	c.metrics.observeEvent(ev.Type, res.ConsideredCount)

	c.logger.Debug("event evaluated",
		"event_id", eventID,
		"event_type", ev.Type,
		"timestamp", ev.Timestamp,
		"reminders", len(reminders),
		"considered", res.ConsideredCount,
		"to_fire", len(res.ToFire),
	)

	report := Report{
		EventID:    eventID,
		EventType:  ev.Type,
		Considered: res.ConsideredCount,
		Outcomes:   make([]Outcome, 0, len(res.ToFire)),
	}
	for _, r := range res.ToFire {
		report.Outcomes = append(report.Outcomes, c.fireOne(ctx, ev, eventID, r, fire, persist))
	}

	return report, report.Err()
}

// fireOne runs claim, notify, mark, persist and release for one reminder.
func (c *Controller) fireOne(
	ctx context.Context,
	ev ir.SystemEvent,
	eventID string,
	r ir.Reminder,
	fire FireFunc,
	persist PersistFunc,
) Outcome {
	out := Outcome{ReminderID: r.ID}

	release, ok := c.inFlight.Acquire(r.ID)
	if !ok {
		c.metrics.incDuplicate()
		c.logger.Warn("duplicate fire suppressed",
			"reminder_id", r.ID,
			"event_id", eventID,
			"event_type", ev.Type,
		)
		out.Kind = OutcomeDuplicate
		return out
	}
	defer func() {
		release()
		c.metrics.setInFlight(c.inFlight.Len())
	}()
	c.metrics.setInFlight(c.inFlight.Len())

	notificationID, err := fire(ctx, r)
	if err != nil {
		c.metrics.incNotifyFailure()
		c.logger.Warn("notification failed, reminder left waiting",
			"reminder_id", r.ID,
			"event_id", eventID,
			"error", err,
		)
		out.Kind = OutcomeNotifyFailed
		out.Err = NewNotifyError(r.ID, eventID, err)
		out.Error = out.Err.Error()
		return out
	}
	out.NotificationID = notificationID

	firedAt := ev.Timestamp
	if c.now != nil {
		firedAt = c.now()
	}
	fired := r.Clone()
	fired.Status = ir.StatusFired
	fired.FiredAt = &firedAt
	out.FiredAt = ir.Int64Ptr(firedAt)
	out.Reminder = &fired

	if err := persist(ctx, fired); err != nil {
		c.metrics.incPersistFailure()
		c.logger.Error("reminder fired but not persisted",
			"reminder_id", r.ID,
			"event_id", eventID,
			"notification_id", notificationID,
			"fired_at", firedAt,
			"error", err,
		)
		out.Kind = OutcomeNotPersisted
		out.Err = NewNotPersistedError(r.ID, eventID, notificationID, err)
		out.Error = out.Err.Error()
		return out
	}

	c.metrics.incFired()
	c.logger.Info("reminder fired",
		"reminder_id", r.ID,
		"title", r.Title,
		"event_id", eventID,
		"event_type", ev.Type,
		"notification_id", notificationID,
		"fired_at", firedAt,
	)
	out.Kind = OutcomeFired
	return out
}

// Reactivate re-arms a FIRED reminder: it returns a WAITING copy with
// FiredAt cleared. Any other status is rejected.
func (c *Controller) Reactivate(r ir.Reminder) (ir.Reminder, error) {
	if r.Status != ir.StatusFired {
		return ir.Reminder{}, NewInvalidReminderError(r.ID, "only FIRED reminders can be reactivated, status is "+string(r.Status))
	}
	out := r.Clone()
	out.Status = ir.StatusWaiting
	out.FiredAt = nil

	c.logger.Info("reminder reactivated", "reminder_id", r.ID)
	return out, nil
}
