package engine

import "fmt"

// ReminderError is a per-reminder failure raised while handling an event.
//
// Failures are isolated: one reminder's error never stops the batch. The
// code tells callers what state the reminder was left in.
type ReminderError struct {
	// Code identifies the error category.
	Code ReminderErrorCode

	// Message is a human-readable description.
	Message string

	// ReminderID identifies the affected reminder.
	ReminderID string

	// EventID identifies the event being handled, when known.
	EventID string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause.
	Err error
}

// ReminderErrorCode categorizes reminder errors.
type ReminderErrorCode string

const (
	// ErrCodeNotifyFailed means the notification sink failed. The reminder
	// is still WAITING and a later matching event retries it.
	ErrCodeNotifyFailed ReminderErrorCode = "NOTIFY_FAILED"

	// ErrCodeFiredNotPersisted means the notification went out but the FIRED
	// state was not stored. After a restart the reminder may fire again.
	ErrCodeFiredNotPersisted ReminderErrorCode = "FIRED_NOT_PERSISTED"

	// ErrCodeInvalidReminder means a reminder or transition violated an
	// invariant.
	ErrCodeInvalidReminder ReminderErrorCode = "INVALID_REMINDER"
)

// Error implements the error interface.
func (e *ReminderError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ReminderID != "" {
		msg = fmt.Sprintf("%s (reminder=%s)", msg, e.ReminderID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ReminderError) Unwrap() error {
	return e.Err
}

// IsNotifyError reports whether err contains a notification failure.
// Wrapped and joined errors are matched.
func IsNotifyError(err error) bool {
	return hasCode(err, ErrCodeNotifyFailed)
}

// IsNotPersistedError reports whether err contains a fired-but-not-persisted
// failure.
func IsNotPersistedError(err error) bool {
	return hasCode(err, ErrCodeFiredNotPersisted)
}

// IsInvalidReminderError reports whether err contains an invalid reminder
// failure.
func IsInvalidReminderError(err error) bool {
	return hasCode(err, ErrCodeInvalidReminder)
}

// hasCode walks both wrap chains and joined errors. errors.As alone would
// stop at the first ReminderError it meets, whatever its code.
func hasCode(err error, code ReminderErrorCode) bool {
	if err == nil {
		return false
	}
	if re, ok := err.(*ReminderError); ok && re.Code == code {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if hasCode(e, code) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return hasCode(u.Unwrap(), code)
	}
	return false
}

// NewNotifyError creates a ReminderError for a failed notification.
func NewNotifyError(reminderID, eventID string, cause error) *ReminderError {
	return &ReminderError{
		Code:       ErrCodeNotifyFailed,
		Message:    "notification failed, reminder left waiting",
		ReminderID: reminderID,
		EventID:    eventID,
		Err:        cause,
	}
}

// NewNotPersistedError creates a ReminderError for a reminder whose
// notification was delivered but whose FIRED state was not stored.
func NewNotPersistedError(reminderID, eventID, notificationID string, cause error) *ReminderError {
	return &ReminderError{
		Code:       ErrCodeFiredNotPersisted,
		Message:    "reminder fired but state was not persisted",
		ReminderID: reminderID,
		EventID:    eventID,
		Details: map[string]string{
			"notification_id": notificationID,
		},
		Err: cause,
	}
}

// NewInvalidReminderError creates a ReminderError for an invariant violation.
func NewInvalidReminderError(reminderID, message string) *ReminderError {
	return &ReminderError{
		Code:       ErrCodeInvalidReminder,
		Message:    message,
		ReminderID: reminderID,
	}
}
