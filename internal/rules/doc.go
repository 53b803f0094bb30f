// Package rules decides which waiting reminders an event should fire.
//
// Everything here is pure: no logging, no clocks, no I/O. Given the same
// reminders, event and ambient state the result is identical, and input
// order is preserved. Callers that want tracing wrap these calls.
//
// Semantics:
//   - Triggers are OR-ed: any matching trigger puts the reminder in the
//     listening set.
//   - Conditions are AND-ed: every condition must hold at fire time. An
//     empty condition list always holds.
//   - Unknown trigger, condition or event kinds never match.
package rules
