package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/nudge/internal/ir"
	"github.com/roach88/nudge/internal/rules"
)

// ErrDispatcherStopped is returned for events submitted after, or still
// queued at, shutdown.
var ErrDispatcherStopped = errors.New("dispatcher stopped")

// Store is the persistence the dispatcher needs. store.Store implements it.
type Store interface {
	ListWaiting(ctx context.Context) ([]ir.Reminder, error)
	SaveReminder(ctx context.Context, r ir.Reminder) error
	RecordFiring(ctx context.Context, f ir.Firing) error
	AmbientState(ctx context.Context) (ir.AmbientState, error)
	SaveAmbientState(ctx context.Context, s ir.AmbientState) error
	// RecordEvent appends to the event log. It reports false when an event
	// with the same ID was already recorded.
	RecordEvent(ctx context.Context, rec ir.EventRecord) (bool, error)
	LastEventSeq(ctx context.Context) (int64, error)
}

// Dispatcher feeds system events to a Controller one at a time.
//
// Event sources call Submit or Dispatch from any goroutine; Run processes
// deliveries in arrival order on a single goroutine. For each event the
// dispatcher logs it, snapshots the WAITING reminders, lets the controller
// fire what matches, records firings and then folds the event into the
// ambient state (last applied wins).
type Dispatcher struct {
	ctrl     *Controller
	store    Store
	notifier Notifier
	queue    *deliveryQueue
	logger   *slog.Logger

	// processMu serializes Process so Run and direct callers never
	// interleave.
	processMu sync.Mutex

	mu      sync.Mutex
	clock   *Clock
	ambient ir.AmbientState
	loaded  bool
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchLogger sets the dispatcher's logger. Default: slog.Default().
func WithDispatchLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// NewDispatcher creates a Dispatcher. Call Run to start consuming.
func NewDispatcher(ctrl *Controller, store Store, notifier Notifier, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		ctrl:     ctrl,
		store:    store,
		notifier: notifier,
		queue:    newDeliveryQueue(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit enqueues ev without waiting. Returns false after shutdown.
func (d *Dispatcher) Submit(ev ir.SystemEvent) bool {
	return d.queue.Enqueue(delivery{event: ev})
}

// Dispatch enqueues ev and waits until Run has handled it.
func (d *Dispatcher) Dispatch(ctx context.Context, ev ir.SystemEvent) (Report, error) {
	reply := make(chan dispatchResult, 1)
	if !d.queue.Enqueue(delivery{event: ev, reply: reply}) {
		return Report{}, ErrDispatcherStopped
	}
	select {
	case res := <-reply:
		return res.report, res.err
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
}

// Pending returns the number of queued events.
func (d *Dispatcher) Pending() int {
	return d.queue.Len()
}

// Ambient returns the current ambient state.
func (d *Dispatcher) Ambient() ir.AmbientState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ambient
}

// Run consumes deliveries until ctx is cancelled or Stop is called.
// Per-event failures are logged and the loop continues.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher starting")

	for {
		if dl, ok := d.queue.TryDequeue(); ok {
			report, err := d.Process(ctx, dl.event)
			if err != nil {
				d.logger.Warn("event handled with errors",
					"event_type", dl.event.Type,
					"timestamp", dl.event.Timestamp,
					"error", err,
				)
			}
			if dl.reply != nil {
				dl.reply <- dispatchResult{report: report, err: err}
			}
			continue
		}

		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping: context cancelled")
			d.queue.Close()
			d.drain()
			return ctx.Err()
		case <-d.queue.Wait():
			// The signal channel is closed by Stop; an empty queue then
			// means there is nothing left to do.
			if d.queue.Len() == 0 && d.queue.Closed() {
				d.logger.Info("dispatcher stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run finishes the queued events and returns.
func (d *Dispatcher) Stop() {
	d.queue.Close()
}

// drain fails every queued delivery after cancellation.
func (d *Dispatcher) drain() {
	for {
		dl, ok := d.queue.TryDequeue()
		if !ok {
			return
		}
		if dl.reply != nil {
			dl.reply <- dispatchResult{err: ErrDispatcherStopped}
		}
	}
}

// Process handles one event synchronously. Run calls it for queued events;
// one-shot callers such as the CLI may call it directly.
func (d *Dispatcher) Process(ctx context.Context, ev ir.SystemEvent) (Report, error) {
	d.processMu.Lock()
	defer d.processMu.Unlock()

	if err := d.load(ctx); err != nil {
		return Report{}, err
	}
	d.recordEvent(ctx, ev)

	reminders, err := d.store.ListWaiting(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list waiting reminders: %w", err)
	}

	ambient := d.Ambient()
	report, handleErr := d.ctrl.HandleEvent(ctx, ev, reminders, ambient, Fire(d.notifier), d.store.SaveReminder)

	for _, o := range report.Outcomes {
		if o.Kind != OutcomeFired || o.FiredAt == nil {
			continue
		}
		f := ir.Firing{
			ReminderID:     o.ReminderID,
			EventID:        report.EventID,
			NotificationID: o.NotificationID,
			FiredAt:        *o.FiredAt,
		}
		if err := d.store.RecordFiring(ctx, f); err != nil {
			d.logger.Warn("record firing failed", "reminder_id", o.ReminderID, "error", err)
		}
	}

	next := rules.ApplyEvent(ambient, ev)
	d.mu.Lock()
	d.ambient = next
	d.mu.Unlock()
	if next != ambient {
		if err := d.store.SaveAmbientState(ctx, next); err != nil {
			d.logger.Warn("save ambient state failed", "event_type", ev.Type, "error", err)
		}
	}

	return report, handleErr
}

// load reads the ambient state and event sequence once.
func (d *Dispatcher) load(ctx context.Context) error {
	if d.loaded {
		return nil
	}
	ambient, err := d.store.AmbientState(ctx)
	if err != nil {
		return fmt.Errorf("load ambient state: %w", err)
	}
	seq, err := d.store.LastEventSeq(ctx)
	if err != nil {
		return fmt.Errorf("load event sequence: %w", err)
	}

	d.mu.Lock()
	d.ambient = ambient
	d.clock = NewClockAt(seq)
	d.mu.Unlock()
	d.loaded = true
	return nil
}

// recordEvent appends ev to the event log. Failures are logged only; the
// log does not gate evaluation.
func (d *Dispatcher) recordEvent(ctx context.Context, ev ir.SystemEvent) {
	id, err := ir.EventID(ev)
	if err != nil {
		d.logger.Warn("event not recorded", "event_type", ev.Type, "error", err)
		return
	}
	rec := ir.EventRecord{ID: id, Seq: d.clock.Next(), Event: ev}
	inserted, err := d.store.RecordEvent(ctx, rec)
	if err != nil {
		d.logger.Warn("record event failed", "event_id", id, "error", err)
		return
	}
	if !inserted {
		d.logger.Debug("event redelivered", "event_id", id, "event_type", ev.Type)
	}
}
