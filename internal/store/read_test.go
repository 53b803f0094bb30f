package store

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/roach88/nudge/internal/ir"
)

func TestGetReminder_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetReminder(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetReminder() = %v, want ErrNotFound", err)
	}
}

func TestListReminders_Empty(t *testing.T) {
	s := setupTestStore(t)

	reminders, err := s.ListReminders(context.Background(), "")
	if err != nil {
		t.Fatalf("ListReminders() failed: %v", err)
	}
	if reminders == nil {
		t.Error("ListReminders() returned nil, want empty slice")
	}
}

func TestListReminders_DeterministicOrdering(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// Insert out of order; same created_at falls back to id.
	for _, r := range []ir.Reminder{testReminder("b", 200), testReminder("c", 100), testReminder("a", 200)} {
		if err := s.CreateReminder(ctx, r); err != nil {
			t.Fatalf("CreateReminder(%s) failed: %v", r.ID, err)
		}
	}

	reminders, err := s.ListReminders(ctx, "")
	if err != nil {
		t.Fatalf("ListReminders() failed: %v", err)
	}

	var ids []string
	for _, r := range reminders {
		ids = append(ids, r.ID)
		if len(r.Triggers) != 3 || len(r.Conditions) != 2 {
			t.Errorf("%s: nested rows not loaded", r.ID)
		}
	}
	if want := []string{"c", "a", "b"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("order = %v, want %v", ids, want)
	}
}

func TestListReminders_StatusFilter(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	waiting := testReminder("w", 1)
	fired := testReminder("f", 2)
	fired.Status = ir.StatusFired
	fired.FiredAt = ir.Int64Ptr(5)
	for _, r := range []ir.Reminder{waiting, fired} {
		if err := s.SaveReminder(ctx, r); err != nil {
			t.Fatalf("SaveReminder(%s) failed: %v", r.ID, err)
		}
	}

	got, err := s.ListReminders(ctx, ir.StatusFired)
	if err != nil {
		t.Fatalf("ListReminders() failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "f" {
		t.Errorf("ListReminders(FIRED) = %+v", got)
	}

	got, err = s.ListWaiting(ctx)
	if err != nil {
		t.Fatalf("ListWaiting() failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "w" {
		t.Errorf("ListWaiting() = %+v", got)
	}
}

func TestGetReminder_UnknownTypesSurvive(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// Written by a newer build; this build must load it without failing.
	r := ir.Reminder{
		ID:     "future",
		Title:  "nfc",
		Status: ir.StatusWaiting,
		Triggers: []ir.Trigger{
			{ID: "t1", Type: "NFC_TAP", Config: ir.RawTriggerConfig{Raw: json.RawMessage(`{"tag":"desk"}`)}},
		},
		Conditions: []ir.Condition{
			{ID: "c1", Type: "IS_RAINING", Config: ir.RawConditionConfig{Raw: json.RawMessage(`{"min_mm":2}`)}},
		},
	}
	if err := s.SaveReminder(ctx, r); err != nil {
		t.Fatalf("SaveReminder() failed: %v", err)
	}

	got, err := s.GetReminder(ctx, "future")
	if err != nil {
		t.Fatalf("GetReminder() failed: %v", err)
	}
	if !reflect.DeepEqual(got.Triggers, r.Triggers) {
		t.Errorf("triggers = %+v, want %+v", got.Triggers, r.Triggers)
	}
	if !reflect.DeepEqual(got.Conditions, r.Conditions) {
		t.Errorf("conditions = %+v, want %+v", got.Conditions, r.Conditions)
	}
}

func TestListFirings_AllReminders(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := s.CreateReminder(ctx, testReminder(id, 0)); err != nil {
			t.Fatalf("CreateReminder(%s) failed: %v", id, err)
		}
	}
	_ = s.RecordFiring(ctx, ir.Firing{ReminderID: "b", FiredAt: 20})
	_ = s.RecordFiring(ctx, ir.Firing{ReminderID: "a", FiredAt: 10})
	_ = s.RecordFiring(ctx, ir.Firing{ReminderID: "a", FiredAt: 30})

	all, err := s.ListFirings(ctx, "")
	if err != nil {
		t.Fatalf("ListFirings() failed: %v", err)
	}
	var order []int64
	for _, f := range all {
		order = append(order, f.FiredAt)
	}
	if want := []int64{10, 20, 30}; !reflect.DeepEqual(order, want) {
		t.Errorf("firing order = %v, want %v", order, want)
	}

	onlyA, err := s.ListFirings(ctx, "a")
	if err != nil {
		t.Fatalf("ListFirings(a) failed: %v", err)
	}
	if len(onlyA) != 2 {
		t.Errorf("ListFirings(a) returned %d firings, want 2", len(onlyA))
	}
}

func TestListEvents_AfterSeqAndLimit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 4; i++ {
		ev := ir.SystemEvent{Type: ir.EventChargingStateChanged, Timestamp: i * 100, Data: ir.ChargingData{IsCharging: i%2 == 0}}
		if _, err := s.RecordEvent(ctx, ir.EventRecord{ID: ir.MustEventID(ev), Seq: i, Event: ev}); err != nil {
			t.Fatalf("RecordEvent() failed: %v", err)
		}
	}

	events, err := s.ListEvents(ctx, 1, 2)
	if err != nil {
		t.Fatalf("ListEvents() failed: %v", err)
	}
	if len(events) != 2 || events[0].Seq != 2 || events[1].Seq != 3 {
		t.Fatalf("ListEvents(1, 2) = %+v", events)
	}
	if events[0].Event.Data != (ir.ChargingData{IsCharging: true}) {
		t.Errorf("event data = %+v", events[0].Event.Data)
	}
}
