package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/nudge/internal/ir"
)

// setupTestStore opens a fresh store in a temp dir.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testReminder builds a WAITING reminder with one trigger of each
// configured kind and two conditions.
func testReminder(id string, createdAt int64) ir.Reminder {
	return ir.Reminder{
		ID:          id,
		Title:       "Reminder " + id,
		Description: "desc",
		Status:      ir.StatusWaiting,
		CreatedAt:   createdAt,
		Triggers: []ir.Trigger{
			{ID: "t1", Type: ir.TriggerPhoneUnlock, ActivationAt: ir.Int64Ptr(createdAt + 10)},
			{ID: "t2", Type: ir.TriggerLocationEnter, Config: ir.GeofenceConfig{Latitude: 37.5, Longitude: -122, Radius: 150, Name: "office"}},
			{ID: "t3", Type: ir.TriggerAppOpened, Config: ir.AppConfig{ActivityName: "com.example.mail"}},
		},
		Conditions: []ir.Condition{
			{ID: "c1", Type: ir.ConditionTimeRange, Config: ir.TimeRangeConfig{StartHour: 22, EndHour: 6}},
			{ID: "c2", Type: ir.ConditionDayOfWeek, Config: ir.DayOfWeekConfig{Days: []int{1, 3, 5}}},
		},
	}
}
