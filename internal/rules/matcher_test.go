package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/nudge/internal/ir"
)

func reminderWith(triggers ...ir.Trigger) ir.Reminder {
	return ir.Reminder{ID: "r", Status: ir.StatusWaiting, Triggers: triggers}
}

func TestMatchTrigger_EventPairings(t *testing.T) {
	unlock := ir.Trigger{ID: "t", Type: ir.TriggerPhoneUnlock}
	charging := ir.Trigger{ID: "t", Type: ir.TriggerChargingStarted}
	region := ir.Trigger{ID: "t", Type: ir.TriggerLocationEnter, Config: ir.GeofenceConfig{Latitude: 1, Longitude: 2, Radius: 50}}
	app := ir.Trigger{ID: "t", Type: ir.TriggerAppOpened, Config: ir.AppConfig{ActivityName: "activity-mail"}}
	scheduled := ir.Trigger{ID: "t", Type: ir.TriggerScheduledTime, Config: ir.ScheduledConfig{At: 500}}
	window := ir.Trigger{ID: "t", Type: ir.TriggerTimeWindow, Config: ir.TimeWindowConfig{StartHour: 1, EndHour: 2}}

	becameActive := ir.SystemEvent{Type: ir.EventAppBecameActive, Timestamp: 1000}
	chargingOn := ir.SystemEvent{Type: ir.EventChargingStateChanged, Timestamp: 1000, Data: ir.ChargingData{IsCharging: true}}
	chargingOff := ir.SystemEvent{Type: ir.EventChargingStateChanged, Timestamp: 1000, Data: ir.ChargingData{IsCharging: false}}
	entered := ir.SystemEvent{Type: ir.EventLocationRegionEntered, Timestamp: 1000, Data: ir.RegionData{Latitude: 50, Longitude: 50}}
	mailOpened := ir.SystemEvent{Type: ir.EventAppOpened, Timestamp: 1000, Data: ir.AppOpenedData{AppIdentifier: "activity-mail"}}
	chatOpened := ir.SystemEvent{Type: ir.EventAppOpened, Timestamp: 1000, Data: ir.AppOpenedData{AppIdentifier: "activity-chat"}}
	scheduledFired := ir.SystemEvent{Type: ir.EventScheduledTimeFired, Timestamp: 1000, Data: ir.ScheduledData{ReminderID: "r"}}
	unknown := ir.SystemEvent{Type: "SCREEN_DIMMED", Timestamp: 1000}

	tests := []struct {
		name     string
		trigger  ir.Trigger
		event    ir.SystemEvent
		expected bool
	}{
		{"unlock on became active", unlock, becameActive, true},
		{"charging trigger on became active", charging, becameActive, false},
		{"charging started", charging, chargingOn, true},
		{"charging stopped never matches", charging, chargingOff, false},
		{"unlock on charging", unlock, chargingOn, false},
		{"region entry ignores coordinates", region, entered, true},
		{"unlock on region entry", unlock, entered, false},
		{"app activity matches", app, mailOpened, true},
		{"app activity differs", app, chatOpened, false},
		{"unlock on app opened", unlock, mailOpened, false},
		{"scheduled fired is not matched", scheduled, scheduledFired, false},
		{"time window never matches", window, becameActive, false},
		{"unknown event", unlock, unknown, false},
		{"unknown trigger type", ir.Trigger{ID: "t", Type: "NFC_TAP"}, becameActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MatchTrigger(tt.trigger, tt.event))
		})
	}
}

func TestMatchTrigger_ActivationGate(t *testing.T) {
	const T = int64(50_000)
	trig := ir.Trigger{ID: "t", Type: ir.TriggerPhoneUnlock, ActivationAt: ir.Int64Ptr(T + 1000)}

	at := func(ts int64) ir.SystemEvent { return ir.SystemEvent{Type: ir.EventAppBecameActive, Timestamp: ts} }

	assert.False(t, MatchTrigger(trig, at(T)))
	assert.False(t, MatchTrigger(trig, at(T+999)))
	assert.True(t, MatchTrigger(trig, at(T+1000)))
	assert.True(t, MatchTrigger(trig, at(T+5000)))
}

func TestMatchTrigger_ActivationGateAppliesToEveryType(t *testing.T) {
	gate := ir.Int64Ptr(2000)
	early := ir.SystemEvent{Type: ir.EventChargingStateChanged, Timestamp: 1999, Data: ir.ChargingData{IsCharging: true}}
	onTime := early
	onTime.Timestamp = 2000

	trig := ir.Trigger{ID: "t", Type: ir.TriggerChargingStarted, ActivationAt: gate}
	assert.False(t, MatchTrigger(trig, early))
	assert.True(t, MatchTrigger(trig, onTime))

	app := ir.Trigger{ID: "t", Type: ir.TriggerAppOpened, Config: ir.AppConfig{BundleID: ir.LegacyAppWildcard}, ActivationAt: gate}
	opened := ir.SystemEvent{Type: ir.EventAppOpened, Timestamp: 1999, Data: ir.AppOpenedData{AppIdentifier: "x"}}
	assert.False(t, MatchTrigger(app, opened))
}

func TestMatchTrigger_LegacyWildcard(t *testing.T) {
	opened := ir.SystemEvent{Type: ir.EventAppOpened, Timestamp: 1, Data: ir.AppOpenedData{AppIdentifier: "anything"}}

	legacy := ir.Trigger{ID: "t", Type: ir.TriggerAppOpened, Config: ir.AppConfig{BundleID: ir.LegacyAppWildcard}}
	assert.True(t, MatchTrigger(legacy, opened))

	specificBundle := ir.Trigger{ID: "t", Type: ir.TriggerAppOpened, Config: ir.AppConfig{BundleID: "com.example.mail"}}
	assert.False(t, MatchTrigger(specificBundle, opened))

	emptyActivity := ir.Trigger{ID: "t", Type: ir.TriggerAppOpened, Config: ir.AppConfig{}}
	noIdentifier := ir.SystemEvent{Type: ir.EventAppOpened, Timestamp: 1, Data: ir.AppOpenedData{}}
	assert.False(t, MatchTrigger(emptyActivity, noIdentifier))
}

func TestMatches_AnyTrigger(t *testing.T) {
	r := reminderWith(
		ir.Trigger{ID: "t1", Type: ir.TriggerChargingStarted},
		ir.Trigger{ID: "t2", Type: ir.TriggerPhoneUnlock},
	)

	assert.True(t, Matches(r, ir.SystemEvent{Type: ir.EventAppBecameActive, Timestamp: 1}))
	assert.False(t, Matches(r, ir.SystemEvent{Type: ir.EventLocationRegionEntered, Timestamp: 1}))
	assert.False(t, Matches(reminderWith(), ir.SystemEvent{Type: ir.EventAppBecameActive, Timestamp: 1}))
}
