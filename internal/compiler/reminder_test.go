package compiler

import (
	"errors"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nudge/internal/ir"
)

func compileAt(t *testing.T, src, path string) (*ir.Reminder, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename("test.cue"))
	require.NoError(t, v.Err())
	return CompileReminder(v.LookupPath(cue.ParsePath(path)))
}

func TestCompileReminder_Basic(t *testing.T) {
	r, err := compileAt(t, `
		reminder: water: {
			title:       "Water plants"
			description: "The ferns on the balcony"
			expires_at:  9000
			triggers: [{
				id:   "home"
				type: "LOCATION_ENTER"
				config: {latitude: 37.5, longitude: -122, radius: 100, name: "home"}
			}, {
				id:            "unlock"
				type:          "PHONE_UNLOCK"
				activation_at: 500
			}]
			conditions: [{
				id:     "evening"
				type:   "TIME_RANGE"
				config: {start_hour: 18, end_hour: 22}
			}]
		}
	`, "reminder.water")
	require.NoError(t, err)

	assert.Equal(t, "water", r.ID)
	assert.Equal(t, "Water plants", r.Title)
	assert.Equal(t, "The ferns on the balcony", r.Description)
	assert.Equal(t, ir.StatusWaiting, r.Status)
	require.NotNil(t, r.ExpiresAt)
	assert.Equal(t, int64(9000), *r.ExpiresAt)

	require.Len(t, r.Triggers, 2)
	assert.Equal(t, ir.TriggerLocationEnter, r.Triggers[0].Type)
	assert.Equal(t, ir.GeofenceConfig{Latitude: 37.5, Longitude: -122, Radius: 100, Name: "home"}, r.Triggers[0].Config)
	assert.Nil(t, r.Triggers[1].Config)
	require.NotNil(t, r.Triggers[1].ActivationAt)
	assert.Equal(t, int64(500), *r.Triggers[1].ActivationAt)

	require.Len(t, r.Conditions, 1)
	assert.Equal(t, ir.TimeRangeConfig{StartHour: 18, EndHour: 22}, r.Conditions[0].Config)

	assert.Empty(t, Validate(r))
}

func TestCompileReminder_QuotedLabel(t *testing.T) {
	r, err := compileAt(t, `
		reminder: "take-meds": {
			title: "Take meds"
			triggers: [{id: "t1", type: "CHARGING_STARTED"}]
		}
	`, `reminder."take-meds"`)
	require.NoError(t, err)
	assert.Equal(t, "take-meds", r.ID)
	assert.Empty(t, r.Conditions)
}

func TestCompileReminder_MissingTitle(t *testing.T) {
	_, err := compileAt(t, `
		reminder: bad: {
			triggers: [{id: "t1", type: "PHONE_UNLOCK"}]
		}
	`, "reminder.bad")

	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "title", ce.Field)
}

func TestCompileReminder_NoTriggers(t *testing.T) {
	_, err := compileAt(t, `
		reminder: bad: {
			title: "Nothing fires me"
			triggers: []
		}
	`, "reminder.bad")

	var ce *CompileError
	require.True(t, errors.As(err, &ce), "expected CompileError, got %v", err)
	assert.Equal(t, "triggers", ce.Field)
}

func TestCompileReminder_UnknownFieldRejected(t *testing.T) {
	_, err := compileAt(t, `
		reminder: typo: {
			title: "Typo"
			trigers: [{id: "t1", type: "PHONE_UNLOCK"}]
			triggers: [{id: "t1", type: "PHONE_UNLOCK"}]
		}
	`, "reminder.typo")

	var ce *CompileError
	require.True(t, errors.As(err, &ce), "expected CompileError, got %v", err)
	assert.True(t, ce.Pos.IsValid(), "CUE errors should carry a position")
	assert.Contains(t, ce.Error(), "trigers")
}

func TestCompileReminder_WrongConfigShape(t *testing.T) {
	_, err := compileAt(t, `
		reminder: bad: {
			title: "Bad geofence"
			triggers: [{
				id:   "t1"
				type: "LOCATION_ENTER"
				config: {latitude: 1, longitude: 2, radus: 10}
			}]
		}
	`, "reminder.bad")

	var ce *CompileError
	require.True(t, errors.As(err, &ce), "expected CompileError, got %v", err)
	assert.Equal(t, "triggers[0].config", ce.Field)
}

func TestCompileReminder_UnknownTypeKeptOpaque(t *testing.T) {
	r, err := compileAt(t, `
		reminder: future: {
			title: "Future"
			triggers: [{id: "t1", type: "NFC_TAP", config: {tag: "desk"}}]
		}
	`, "reminder.future")
	require.NoError(t, err)

	raw, ok := r.Triggers[0].Config.(ir.RawTriggerConfig)
	require.True(t, ok, "config = %T", r.Triggers[0].Config)
	assert.JSONEq(t, `{"tag":"desk"}`, string(raw.Raw))

	errs := Validate(r)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnknownType, errs[0].Code)
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "title", Message: "title is required"}
	assert.Equal(t, "title: title is required", err.Error())
}
