// Package engine implements the reminder lifecycle around the rule engine.
//
// The rules package decides which WAITING reminders an event selects. This
// package acts on that decision: it notifies, marks each reminder FIRED and
// persists it, exactly once per activation.
//
// ARCHITECTURE:
//
// Controller:
// HandleEvent evaluates one event against a caller-owned snapshot of
// reminders and ambient state, then walks the selected reminders one at a
// time. For each one it:
//  1. claims the id in the in-flight set (skipping duplicates)
//  2. calls the notification sink
//  3. builds the FIRED record and calls the persistence sink
//  4. releases the claim on every exit path
//
// A failure for one reminder never stops the rest of the batch. Notify
// failures leave the reminder WAITING. Persist failures after a successful
// notify are reported with the FIRED_NOT_PERSISTED code, because they are
// the one case where a restart can fire the reminder a second time.
//
// Dispatcher:
// The dispatcher is a single-writer loop for hosts with several event
// sources. Sources call Submit or Dispatch from any goroutine. Run handles
// events in arrival order: it logs each event, snapshots WAITING reminders
// from the store, runs the controller, records firings and folds the event
// into the ambient state.
//
// Notifiers:
// LogNotifier writes notifications to a stream. RetryingNotifier adds
// bounded exponential backoff, since retrying transient failures is the
// sink's job and not the controller's.
package engine
