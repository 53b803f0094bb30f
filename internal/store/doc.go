// Package store provides SQLite-backed durable storage for reminders.
//
// Tables:
//   - reminders: one row per reminder, with lifecycle status and timestamps
//   - triggers, conditions: nested rows, ordered by position, rewritten on
//     every save
//   - firings: one row per WAITING to FIRED transition
//   - ambient_state: the single-row device snapshot
//   - events: the event log, keyed by content-addressed event id
//
// # Patterns
//
// Full-record upsert:
//   - SaveReminder replaces the reminder and its nested rows in one
//     transaction, so a crash never leaves triggers from two versions
//
// Idempotent appends:
//   - firings: UNIQUE(reminder_id, fired_at) with ON CONFLICT DO NOTHING
//   - events: PRIMARY KEY(id) with ON CONFLICT DO NOTHING, so redelivered
//     events collapse onto one row
//
// Deterministic reads:
//   - reminders ORDER BY created_at, id COLLATE BINARY
//   - events ORDER BY seq
//
// Configs and event payloads are stored as canonical JSON (see
// ir.CanonicalizeJSON), so equal values are byte-identical.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Nested rows and firings cascade with their reminder
package store
