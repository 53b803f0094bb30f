package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/nudge/internal/ir"
)

// CreateReminder inserts a new reminder after checking its creation-time
// invariants with ir.Validate. A duplicate id returns ErrExists.
func (s *Store) CreateReminder(ctx context.Context, r ir.Reminder) error {
	if err := ir.Validate(r); err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create reminder: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	hash, err := ir.DefinitionHash(r)
	if err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reminders
		(id, title, description, status, created_at, fired_at, expires_at, definition_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.Title,
		r.Description,
		string(r.Status),
		r.CreatedAt,
		nullInt64(r.FiredAt),
		nullInt64(r.ExpiresAt),
		hash,
	)
	if err != nil {
		if isPrimaryKeyViolation(err) {
			return fmt.Errorf("create reminder %s: %w", r.ID, ErrExists)
		}
		return fmt.Errorf("create reminder: %w", err)
	}

	if err := writeNested(ctx, tx, r); err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create reminder: commit: %w", err)
	}
	return nil
}

// SaveReminder upserts the full reminder record, nested triggers and
// conditions included, in one transaction. It is the persistence sink the
// controller calls after a notification.
func (s *Store) SaveReminder(ctx context.Context, r ir.Reminder) error {
	hash, err := ir.DefinitionHash(r)
	if err != nil {
		return fmt.Errorf("save reminder: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save reminder: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reminders
		(id, title, description, status, created_at, fired_at, expires_at, definition_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			status = excluded.status,
			fired_at = excluded.fired_at,
			expires_at = excluded.expires_at,
			definition_hash = excluded.definition_hash
	`,
		r.ID,
		r.Title,
		r.Description,
		string(r.Status),
		r.CreatedAt,
		nullInt64(r.FiredAt),
		nullInt64(r.ExpiresAt),
		hash,
	)
	if err != nil {
		return fmt.Errorf("save reminder %s: %w", r.ID, err)
	}

	for _, table := range []string{"triggers", "conditions"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE reminder_id = ?", r.ID); err != nil {
			return fmt.Errorf("save reminder %s: clear %s: %w", r.ID, table, err)
		}
	}
	if err := writeNested(ctx, tx, r); err != nil {
		return fmt.Errorf("save reminder %s: %w", r.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save reminder %s: commit: %w", r.ID, err)
	}
	return nil
}

// writeNested inserts triggers and conditions in declared order.
func writeNested(ctx context.Context, tx *sql.Tx, r ir.Reminder) error {
	for i, t := range r.Triggers {
		cfg, err := marshalTriggerConfig(t.Config)
		if err != nil {
			return fmt.Errorf("trigger %s: %w", t.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO triggers (reminder_id, position, id, type, config, activation_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, r.ID, i, t.ID, string(t.Type), cfg, nullInt64(t.ActivationAt))
		if err != nil {
			return fmt.Errorf("insert trigger %s: %w", t.ID, err)
		}
	}

	for i, c := range r.Conditions {
		cfg, err := marshalConditionConfig(c.Config)
		if err != nil {
			return fmt.Errorf("condition %s: %w", c.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conditions (reminder_id, position, id, type, config)
			VALUES (?, ?, ?, ?, ?)
		`, r.ID, i, c.ID, string(c.Type), cfg)
		if err != nil {
			return fmt.Errorf("insert condition %s: %w", c.ID, err)
		}
	}
	return nil
}

// Reactivate moves a FIRED reminder back to WAITING and clears fired_at.
// Returns ErrNotFound or ErrNotFired.
func (s *Store) Reactivate(ctx context.Context, id string) (ir.Reminder, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET status = 'WAITING', fired_at = NULL
		WHERE id = ? AND status = 'FIRED'
	`, id)
	if err != nil {
		return ir.Reminder{}, fmt.Errorf("reactivate %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return ir.Reminder{}, fmt.Errorf("reactivate %s: %w", id, err)
	}

	r, err := s.GetReminder(ctx, id)
	if err != nil {
		return ir.Reminder{}, err
	}
	if n == 0 {
		return ir.Reminder{}, fmt.Errorf("reactivate %s (status %s): %w", id, r.Status, ErrNotFired)
	}
	return r, nil
}

// PruneExpired marks WAITING reminders whose expires_at is at or before now
// as EXPIRED and returns how many changed.
func (s *Store) PruneExpired(ctx context.Context, now int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET status = 'EXPIRED'
		WHERE status = 'WAITING' AND expires_at IS NOT NULL AND expires_at <= ?
	`, now)
	if err != nil {
		return 0, fmt.Errorf("prune expired: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune expired: %w", err)
	}
	return n, nil
}

// DeleteReminder removes a reminder with its triggers, conditions and
// firings. Returns ErrNotFound if it does not exist.
func (s *Store) DeleteReminder(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reminder %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete reminder %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete reminder %s: %w", id, ErrNotFound)
	}
	return nil
}

// RecordFiring appends a firing. Uses ON CONFLICT DO NOTHING for
// idempotency: recording the same (reminder, fired_at) twice is a no-op.
func (s *Store) RecordFiring(ctx context.Context, f ir.Firing) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO firings (reminder_id, fired_at, notification_id, event_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(reminder_id, fired_at) DO NOTHING
	`, f.ReminderID, f.FiredAt, f.NotificationID, f.EventID)
	if err != nil {
		return fmt.Errorf("record firing %s: %w", f.ReminderID, err)
	}
	return nil
}

// SaveAmbientState replaces the ambient snapshot.
func (s *Store) SaveAmbientState(ctx context.Context, a ir.AmbientState) error {
	var lat, lon sql.NullFloat64
	if a.Location != nil {
		lat = sql.NullFloat64{Float64: a.Location.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: a.Location.Longitude, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ambient_state (id, is_charging, latitude, longitude, last_opened_app)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			is_charging = excluded.is_charging,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			last_opened_app = excluded.last_opened_app
	`, a.IsCharging, lat, lon, a.LastOpenedApp)
	if err != nil {
		return fmt.Errorf("save ambient state: %w", err)
	}
	return nil
}

// RecordEvent appends an event to the log. Returns inserted=false when an
// event with the same content id is already logged.
func (s *Store) RecordEvent(ctx context.Context, rec ir.EventRecord) (bool, error) {
	data, err := marshalEventData(rec.Event.Data)
	if err != nil {
		return false, fmt.Errorf("record event: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, seq, type, timestamp, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, rec.ID, rec.Seq, string(rec.Event.Type), rec.Event.Timestamp, data)
	if err != nil {
		return false, fmt.Errorf("record event: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record event: rows affected: %w", err)
	}
	return n > 0, nil
}
