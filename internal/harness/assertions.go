package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/nudge/internal/engine"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s @%d", event.Seq, event.EventType, event.Timestamp)
			for _, o := range event.Outcomes {
				fmt.Fprintf(&buf, " %s=%s", o.ReminderID, o.Outcome)
			}
			buf.WriteString("\n")
		}
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion and returns failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertStatus:
		return assertStatus(result, a)
	case AssertFiredAt:
		return assertFiredAt(result, a)
	case AssertNotifyCount:
		return assertNotifyCount(result, a)
	case AssertFiredOrder:
		return assertFiredOrder(result, a)
	case AssertErrorClass:
		return assertErrorClass(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertStatus checks a reminder's final stored status.
func assertStatus(result *Result, a Assertion) error {
	state, ok := result.State[a.Reminder]
	if !ok {
		return &AssertionError{Type: a.Type, Expected: "reminder " + a.Reminder, Actual: "not found"}
	}
	if string(state.Status) != a.Status {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s is %s", a.Reminder, a.Status),
			Actual:   string(state.Status),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertFiredAt checks the stored fired_at; an absent expectation means
// the reminder must not have fired.
func assertFiredAt(result *Result, a Assertion) error {
	state, ok := result.State[a.Reminder]
	if !ok {
		return &AssertionError{Type: a.Type, Expected: "reminder " + a.Reminder, Actual: "not found"}
	}
	switch {
	case a.FiredAt == nil && state.FiredAt == nil:
		return nil
	case a.FiredAt != nil && state.FiredAt != nil && *a.FiredAt == *state.FiredAt:
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s fired_at %s", a.Reminder, formatMillis(a.FiredAt)),
		Actual:   formatMillis(state.FiredAt),
		Trace:    result.Trace,
	}
}

// assertNotifyCount checks how many times a reminder was notified,
// failed attempts included.
func assertNotifyCount(result *Result, a Assertion) error {
	if got := result.Notifications[a.Reminder]; got != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d notifications for %s", a.Count, a.Reminder),
			Actual:   fmt.Sprintf("%d notifications", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertFiredOrder checks the exact sequence of fired outcomes.
func assertFiredOrder(result *Result, a Assertion) error {
	var fired []string
	for _, event := range result.Trace {
		for _, o := range event.Outcomes {
			if o.Outcome == engine.OutcomeFired {
				fired = append(fired, o.ReminderID)
			}
		}
	}
	if !slices.Equal(fired, a.Reminders) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("fired in order %v", a.Reminders),
			Actual:   fmt.Sprintf("%v", fired),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertErrorClass checks that a reminder had an outcome of the given kind,
// optionally at a specific event.
func assertErrorClass(result *Result, a Assertion) error {
	for _, event := range result.Trace {
		if a.Event != 0 && event.Seq != a.Event {
			continue
		}
		for _, o := range event.Outcomes {
			if o.ReminderID == a.Reminder && string(o.Outcome) == a.Class {
				return nil
			}
		}
	}

	where := "any event"
	if a.Event != 0 {
		where = fmt.Sprintf("event %d", a.Event)
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s outcome %s at %s", a.Reminder, a.Class, where),
		Actual:   "no such outcome",
		Trace:    result.Trace,
	}
}

func formatMillis(p *int64) string {
	if p == nil {
		return "null"
	}
	return fmt.Sprintf("%d", *p)
}
