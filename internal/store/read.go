package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/nudge/internal/ir"
)

const reminderColumns = `id, title, description, status, created_at, fired_at, expires_at`

// GetReminder returns one reminder with its triggers and conditions.
// Returns ErrNotFound if it does not exist.
func (s *Store) GetReminder(ctx context.Context, id string) (ir.Reminder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Reminder{}, fmt.Errorf("get reminder %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.Reminder{}, fmt.Errorf("get reminder %s: %w", id, err)
	}

	if err := s.loadNested(ctx, &r); err != nil {
		return ir.Reminder{}, err
	}
	return r, nil
}

// ListReminders returns reminders with the given status, or all reminders
// when status is empty. Ordered by created_at, then id.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListReminders(ctx context.Context, status ir.Status) ([]ir.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC, id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}

	reminders := []ir.Reminder{}
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		reminders = append(reminders, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate reminders: %w", err)
	}
	// Close before loading nested rows: the pool holds a single connection.
	rows.Close()

	for i := range reminders {
		if err := s.loadNested(ctx, &reminders[i]); err != nil {
			return nil, err
		}
	}
	return reminders, nil
}

// ListWaiting returns every WAITING reminder. It is the per-event snapshot
// the dispatcher hands to the controller.
func (s *Store) ListWaiting(ctx context.Context) ([]ir.Reminder, error) {
	return s.ListReminders(ctx, ir.StatusWaiting)
}

// loadNested fills r's triggers and conditions in declared order.
func (s *Store) loadNested(ctx context.Context, r *ir.Reminder) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, config, activation_at
		FROM triggers
		WHERE reminder_id = ?
		ORDER BY position ASC
	`, r.ID)
	if err != nil {
		return fmt.Errorf("query triggers for %s: %w", r.ID, err)
	}
	defer rows.Close()

	r.Triggers = []ir.Trigger{}
	for rows.Next() {
		var (
			t          ir.Trigger
			typ        string
			config     sql.NullString
			activation sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &typ, &config, &activation); err != nil {
			return fmt.Errorf("scan trigger: %w", err)
		}
		t.Type = ir.TriggerType(typ)
		t.ActivationAt = int64Ptr(activation)
		if t.Config, err = unmarshalTriggerConfig(t.Type, config); err != nil {
			return fmt.Errorf("trigger %s of %s: %w", t.ID, r.ID, err)
		}
		r.Triggers = append(r.Triggers, t)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate triggers: %w", err)
	}
	rows.Close()

	crows, err := s.db.QueryContext(ctx, `
		SELECT id, type, config
		FROM conditions
		WHERE reminder_id = ?
		ORDER BY position ASC
	`, r.ID)
	if err != nil {
		return fmt.Errorf("query conditions for %s: %w", r.ID, err)
	}
	defer crows.Close()

	r.Conditions = []ir.Condition{}
	for crows.Next() {
		var (
			c      ir.Condition
			typ    string
			config sql.NullString
		)
		if err := crows.Scan(&c.ID, &typ, &config); err != nil {
			return fmt.Errorf("scan condition: %w", err)
		}
		c.Type = ir.ConditionType(typ)
		if c.Config, err = unmarshalConditionConfig(c.Type, config); err != nil {
			return fmt.Errorf("condition %s of %s: %w", c.ID, r.ID, err)
		}
		r.Conditions = append(r.Conditions, c)
	}
	if err := crows.Err(); err != nil {
		return fmt.Errorf("iterate conditions: %w", err)
	}
	return nil
}

// ListFirings returns firings ordered by fire time. An empty reminderID
// returns firings for every reminder.
func (s *Store) ListFirings(ctx context.Context, reminderID string) ([]ir.Firing, error) {
	query := `SELECT reminder_id, event_id, notification_id, fired_at FROM firings`
	var args []any
	if reminderID != "" {
		query += ` WHERE reminder_id = ?`
		args = append(args, reminderID)
	}
	query += ` ORDER BY fired_at ASC, seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query firings: %w", err)
	}
	defer rows.Close()

	firings := []ir.Firing{}
	for rows.Next() {
		var f ir.Firing
		if err := rows.Scan(&f.ReminderID, &f.EventID, &f.NotificationID, &f.FiredAt); err != nil {
			return nil, fmt.Errorf("scan firing: %w", err)
		}
		firings = append(firings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate firings: %w", err)
	}
	return firings, nil
}

// AmbientState returns the stored ambient snapshot, or the zero state if
// none has been saved.
func (s *Store) AmbientState(ctx context.Context) (ir.AmbientState, error) {
	var (
		a        ir.AmbientState
		lat, lon sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT is_charging, latitude, longitude, last_opened_app
		FROM ambient_state WHERE id = 1
	`).Scan(&a.IsCharging, &lat, &lon, &a.LastOpenedApp)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.AmbientState{}, nil
	}
	if err != nil {
		return ir.AmbientState{}, fmt.Errorf("read ambient state: %w", err)
	}
	if lat.Valid && lon.Valid {
		a.Location = &ir.Location{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	return a, nil
}

// LastEventSeq returns the highest logged event sequence, or 0.
func (s *Store) LastEventSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read last event seq: %w", err)
	}
	return seq, nil
}

// ListEvents returns logged events with seq greater than afterSeq, in
// sequence order. limit <= 0 means no limit.
func (s *Store) ListEvents(ctx context.Context, afterSeq int64, limit int) ([]ir.EventRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, type, timestamp, data
		FROM events
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.EventRecord{}
	for rows.Next() {
		var (
			rec  ir.EventRecord
			typ  string
			data sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Seq, &typ, &rec.Event.Timestamp, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.Event.Type = ir.EventType(typ)
		if rec.Event.Data, err = unmarshalEventData(rec.Event.Type, data); err != nil {
			return nil, fmt.Errorf("event %s: %w", rec.ID, err)
		}
		events = append(events, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (ir.Reminder, error) {
	var (
		r                ir.Reminder
		status           string
		firedAt, expires sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.Title, &r.Description, &status, &r.CreatedAt, &firedAt, &expires); err != nil {
		return ir.Reminder{}, err
	}
	r.Status = ir.Status(status)
	r.FiredAt = int64Ptr(firedAt)
	r.ExpiresAt = int64Ptr(expires)
	return r, nil
}
