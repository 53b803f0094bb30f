// Package harness runs reminder lifecycle scenarios end to end.
//
// A scenario seeds reminders and ambient state, delivers a sequence of
// system events through the real Dispatcher and SQLite store, and checks
// what fired.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: unlock_fires_once
//	description: "Unlock fires a waiting reminder once"
//	timezone: UTC
//	ambient:
//	  is_charging: false
//	definitions:
//	  - reminders.cue
//	reminders:
//	  - id: A
//	    title: "Take vitamins"
//	    triggers:
//	      - { id: t1, type: PHONE_UNLOCK }
//	failures:
//	  - { reminder: A, notify_times: 1 }
//	events:
//	  - { type: APP_BECAME_ACTIVE, timestamp: 1000 }
//	assertions:
//	  - { type: status, reminder: A, status: FIRED }
//
// Inline reminders and events use the same JSON shape as the HTTP API.
// Definitions are CUE files compiled with the compiler package.
//
// # Assertion Types
//
//   - status: a reminder's final stored status
//   - fired_at: a reminder's stored fired_at; omit the value for "never fired"
//   - notify_count: notification attempts for a reminder, failures included
//   - fired_order: the exact sequence of fired outcomes
//   - error_class: a reminder had an outcome of the given kind, optionally at
//     a 1-based event index
//
// # Deterministic Testing
//
// Each run gets a fresh database, a recording notifier with sequential ids
// and UTC unless the scenario names a timezone. Fired timestamps come from
// event timestamps. Golden snapshots are canonical JSON, so identical runs
// produce identical bytes.
package harness
