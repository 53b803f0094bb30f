package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReminderError_Message(t *testing.T) {
	err := NewNotifyError("r1", "ev1", errors.New("denied"))
	assert.Equal(t, "NOTIFY_FAILED: notification failed, reminder left waiting (reminder=r1): denied", err.Error())
	assert.ErrorIs(t, err, err.Err)
}

func TestReminderError_Classification(t *testing.T) {
	notify := NewNotifyError("a", "", errors.New("x"))
	lost := NewNotPersistedError("b", "", "n-1", errors.New("y"))
	invalid := NewInvalidReminderError("c", "bad")

	tests := []struct {
		name         string
		err          error
		notify       bool
		notPersisted bool
		invalid      bool
	}{
		{"nil", nil, false, false, false},
		{"plain", errors.New("plain"), false, false, false},
		{"notify", notify, true, false, false},
		{"not persisted", lost, false, true, false},
		{"invalid", invalid, false, false, true},
		{"wrapped", fmt.Errorf("handle: %w", lost), false, true, false},
		// errors.Join order must not hide the second class.
		{"joined", errors.Join(notify, lost), true, true, false},
		{"joined wrapped", fmt.Errorf("batch: %w", errors.Join(invalid, notify)), true, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.notify, IsNotifyError(tt.err))
			assert.Equal(t, tt.notPersisted, IsNotPersistedError(tt.err))
			assert.Equal(t, tt.invalid, IsInvalidReminderError(tt.err))
		})
	}
}

func TestNewNotPersistedError_CarriesNotificationID(t *testing.T) {
	err := NewNotPersistedError("r1", "ev1", "n-7", errors.New("io"))
	assert.Equal(t, ErrCodeFiredNotPersisted, err.Code)
	assert.Equal(t, "n-7", err.Details["notification_id"])
	assert.Equal(t, "ev1", err.EventID)
}
