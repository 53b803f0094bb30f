package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nudge/internal/ir"
	"github.com/roach88/nudge/internal/testutil"
)

func unlockReminder(id string) ir.Reminder {
	return ir.Reminder{
		ID:       id,
		Title:    "reminder " + id,
		Status:   ir.StatusWaiting,
		Triggers: []ir.Trigger{{ID: id + "-t1", Type: ir.TriggerPhoneUnlock}},
	}
}

func appReminder(id, activity string) ir.Reminder {
	return ir.Reminder{
		ID:     id,
		Title:  "open " + activity,
		Status: ir.StatusWaiting,
		Triggers: []ir.Trigger{{
			ID:     id + "-t1",
			Type:   ir.TriggerAppOpened,
			Config: ir.AppConfig{ActivityName: activity},
		}},
	}
}

func becameActive(ts int64) ir.SystemEvent {
	return ir.SystemEvent{Type: ir.EventAppBecameActive, Timestamp: ts}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newTestController(opts ...ControllerOption) *Controller {
	return NewController(append([]ControllerOption{WithLogger(quietLogger()), WithLocation(time.UTC)}, opts...)...)
}

func TestController_FiresMatchingReminder(t *testing.T) {
	ctrl := newTestController()
	notifier := testutil.NewRecordingNotifier()
	persister := testutil.NewRecordingPersister()

	report, err := ctrl.HandleEvent(context.Background(), becameActive(1000),
		[]ir.Reminder{unlockReminder("R1")}, ir.AmbientState{}, notifier.Notify, persister.Persist)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	out := report.Outcomes[0]
	assert.Equal(t, OutcomeFired, out.Kind)
	assert.Equal(t, "n-1", out.NotificationID)
	assert.Equal(t, 1, report.Considered)

	saved := persister.Saved()
	require.Len(t, saved, 1)
	assert.Equal(t, ir.StatusFired, saved[0].Status)
	require.NotNil(t, saved[0].FiredAt)
	assert.Equal(t, int64(1000), *saved[0].FiredAt)
	assert.Equal(t, 1, notifier.Count("R1"))
	assert.Equal(t, 0, ctrl.InFlight().Len(), "in-flight set must be empty afterwards")
}

func TestController_DoesNotMutateInput(t *testing.T) {
	ctrl := newTestController()
	reminders := []ir.Reminder{unlockReminder("R1")}

	_, err := ctrl.HandleEvent(context.Background(), becameActive(1000), reminders, ir.AmbientState{},
		testutil.NewRecordingNotifier().Notify, testutil.NewRecordingPersister().Persist)
	require.NoError(t, err)

	assert.Equal(t, ir.StatusWaiting, reminders[0].Status)
	assert.Nil(t, reminders[0].FiredAt)
}

func TestController_WithClockOverridesFiredAt(t *testing.T) {
	clock := testutil.NewManualClock(5000)
	ctrl := newTestController(WithClock(clock.Now))
	persister := testutil.NewRecordingPersister()

	report, err := ctrl.HandleEvent(context.Background(), becameActive(1000),
		[]ir.Reminder{unlockReminder("R1")}, ir.AmbientState{},
		testutil.NewRecordingNotifier().Notify, persister.Persist)
	require.NoError(t, err)

	require.Len(t, persister.Saved(), 1)
	assert.Equal(t, int64(5000), *persister.Saved()[0].FiredAt)
	assert.Equal(t, int64(5000), *report.Outcomes[0].FiredAt)
}

func TestController_PersistFailureIsolated(t *testing.T) {
	ctrl := newTestController()
	notifier := testutil.NewRecordingNotifier()
	persister := testutil.NewRecordingPersister()
	persister.FailFor("A", errors.New("disk full"))

	reminders := []ir.Reminder{unlockReminder("A"), unlockReminder("B")}
	report, err := ctrl.HandleEvent(context.Background(), becameActive(1000), reminders,
		ir.AmbientState{}, notifier.Notify, persister.Persist)

	require.Error(t, err)
	assert.True(t, IsNotPersistedError(err))
	assert.False(t, IsNotifyError(err))

	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, OutcomeNotPersisted, report.Outcomes[0].Kind)
	assert.Equal(t, OutcomeFired, report.Outcomes[1].Kind)

	assert.Equal(t, []string{"A", "B"}, notifier.Calls(), "both notified in input order")
	saved := persister.Saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "B", saved[0].ID)

	// The in-memory record still reports FIRED for the unpersisted reminder.
	fired := report.Fired()
	require.Len(t, fired, 2)
	assert.Equal(t, ir.StatusFired, fired[0].Status)

	var re *ReminderError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "A", re.ReminderID)
	assert.Equal(t, "n-1", re.Details["notification_id"])
}

func TestController_NotifyFailureLeavesWaiting(t *testing.T) {
	ctrl := newTestController()
	notifier := testutil.NewRecordingNotifier()
	notifier.FailFor("A", errors.New("permission denied"))
	persister := testutil.NewRecordingPersister()

	report, err := ctrl.HandleEvent(context.Background(), becameActive(1000),
		[]ir.Reminder{unlockReminder("A"), unlockReminder("B")}, ir.AmbientState{},
		notifier.Notify, persister.Persist)

	require.Error(t, err)
	assert.True(t, IsNotifyError(err))
	assert.False(t, IsNotPersistedError(err))

	assert.Equal(t, OutcomeNotifyFailed, report.Outcomes[0].Kind)
	assert.Nil(t, report.Outcomes[0].Reminder)
	assert.Equal(t, OutcomeFired, report.Outcomes[1].Kind)

	saved := persister.Saved()
	require.Len(t, saved, 1, "failed reminder must not be persisted")
	assert.Equal(t, "B", saved[0].ID)
	assert.Equal(t, 0, ctrl.InFlight().Len())
}

func TestController_NotifyFailureRetriesOnNextEvent(t *testing.T) {
	ctrl := newTestController()
	notifier := testutil.NewRecordingNotifier()
	notifier.FailTimes("A", 1)
	persister := testutil.NewRecordingPersister()
	reminders := []ir.Reminder{unlockReminder("A")}

	_, err := ctrl.HandleEvent(context.Background(), becameActive(1000), reminders, ir.AmbientState{}, notifier.Notify, persister.Persist)
	require.Error(t, err)

	report, err := ctrl.HandleEvent(context.Background(), becameActive(2000), reminders, ir.AmbientState{}, notifier.Notify, persister.Persist)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFired, report.Outcomes[0].Kind)
	assert.Equal(t, int64(2000), *persister.Saved()[0].FiredAt)
}

func TestController_ExactlyOnceUnderDuplicateDelivery(t *testing.T) {
	ctrl := newTestController()
	notifier := testutil.NewRecordingNotifier()
	notifier.Entered = make(chan string, 2)
	notifier.Gate = make(chan struct{})
	persister := testutil.NewRecordingPersister()

	reminders := []ir.Reminder{appReminder("R1", "com.example.mail")}
	ev := ir.SystemEvent{
		Type:      ir.EventAppOpened,
		Timestamp: 1000,
		Data:      ir.AppOpenedData{AppIdentifier: "com.example.mail"},
	}

	var wg sync.WaitGroup
	var first Report
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, _ = ctrl.HandleEvent(context.Background(), ev, reminders, ir.AmbientState{}, notifier.Notify, persister.Persist)
	}()

	select {
	case id := <-notifier.Entered:
		require.Equal(t, "R1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("first delivery never reached the notifier")
	}
	assert.True(t, ctrl.InFlight().Contains("R1"))

	// Same event again while the first notification is still open.
	second, err := ctrl.HandleEvent(context.Background(), ev, reminders, ir.AmbientState{}, notifier.Notify, persister.Persist)
	require.NoError(t, err, "duplicates are not errors")
	require.Len(t, second.Outcomes, 1)
	assert.Equal(t, OutcomeDuplicate, second.Outcomes[0].Kind)

	close(notifier.Gate)
	wg.Wait()

	assert.Equal(t, OutcomeFired, first.Outcomes[0].Kind)
	assert.Equal(t, 1, notifier.Count("R1"), "fire must be called exactly once")
	assert.Len(t, persister.Saved(), 1)
	assert.False(t, ctrl.InFlight().Contains("R1"))
}

func TestController_NoMatchNoCalls(t *testing.T) {
	ctrl := newTestController()
	notifier := testutil.NewRecordingNotifier()

	report, err := ctrl.HandleEvent(context.Background(),
		ir.SystemEvent{Type: ir.EventChargingStateChanged, Timestamp: 1000, Data: ir.ChargingData{IsCharging: false}},
		[]ir.Reminder{{
			ID:       "R3",
			Title:    "charge",
			Status:   ir.StatusWaiting,
			Triggers: []ir.Trigger{{ID: "t1", Type: ir.TriggerChargingStarted}},
		}},
		ir.AmbientState{}, notifier.Notify, testutil.NewRecordingPersister().Persist)

	require.NoError(t, err)
	assert.Empty(t, report.Outcomes)
	assert.Equal(t, 0, report.Considered)
	assert.Empty(t, notifier.Calls())
}

func TestController_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	ctrl := newTestController(WithMetrics(m))

	notifier := testutil.NewRecordingNotifier()
	notifier.FailFor("C", errors.New("boom"))
	persister := testutil.NewRecordingPersister()
	persister.FailFor("B", errors.New("locked"))

	reminders := []ir.Reminder{unlockReminder("A"), unlockReminder("B"), unlockReminder("C")}
	_, err := ctrl.HandleEvent(context.Background(), becameActive(1000), reminders, ir.AmbientState{}, notifier.Notify, persister.Persist)
	require.Error(t, err)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.fired))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.persistFailures))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.notifyFailures))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.events.WithLabelValues(string(ir.EventAppBecameActive))))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.inFlight))
}

func TestController_Reactivate(t *testing.T) {
	ctrl := newTestController()

	fired := unlockReminder("R1")
	fired.Status = ir.StatusFired
	fired.FiredAt = ir.Int64Ptr(1000)

	again, err := ctrl.Reactivate(fired)
	require.NoError(t, err)
	assert.Equal(t, ir.StatusWaiting, again.Status)
	assert.Nil(t, again.FiredAt)
	assert.Equal(t, ir.StatusFired, fired.Status, "input is not modified")

	_, err = ctrl.Reactivate(unlockReminder("R2"))
	require.Error(t, err)
	assert.True(t, IsInvalidReminderError(err))
}

func TestController_ReactivatedReminderFiresAgain(t *testing.T) {
	ctrl := newTestController()
	notifier := testutil.NewRecordingNotifier()
	persister := testutil.NewRecordingPersister()

	report, err := ctrl.HandleEvent(context.Background(), becameActive(1000),
		[]ir.Reminder{unlockReminder("R1")}, ir.AmbientState{}, notifier.Notify, persister.Persist)
	require.NoError(t, err)

	fired := report.Fired()[0]
	report, err = ctrl.HandleEvent(context.Background(), becameActive(2000),
		[]ir.Reminder{fired}, ir.AmbientState{}, notifier.Notify, persister.Persist)
	require.NoError(t, err)
	assert.Empty(t, report.Outcomes, "FIRED reminders are never considered")

	waiting, err := ctrl.Reactivate(fired)
	require.NoError(t, err)
	report, err = ctrl.HandleEvent(context.Background(), becameActive(3000),
		[]ir.Reminder{waiting}, ir.AmbientState{}, notifier.Notify, persister.Persist)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, int64(3000), *report.Outcomes[0].FiredAt)
	assert.Equal(t, 2, notifier.Count("R1"))
}
