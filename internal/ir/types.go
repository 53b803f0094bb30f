package ir

import "time"

// Status is the lifecycle state of a reminder.
type Status string

const (
	StatusWaiting Status = "WAITING"
	StatusFired   Status = "FIRED"
	StatusExpired Status = "EXPIRED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusFired, StatusExpired:
		return true
	}
	return false
}

// TriggerType names the kind of system event a trigger listens for.
type TriggerType string

const (
	TriggerPhoneUnlock     TriggerType = "PHONE_UNLOCK"
	TriggerChargingStarted TriggerType = "CHARGING_STARTED"
	TriggerLocationEnter   TriggerType = "LOCATION_ENTER"
	TriggerAppOpened       TriggerType = "APP_OPENED"
	TriggerScheduledTime   TriggerType = "SCHEDULED_TIME"
	TriggerTimeWindow      TriggerType = "TIME_WINDOW"
)

// ConditionType names an AND-ed predicate kind.
type ConditionType string

const (
	ConditionTimeRange  ConditionType = "TIME_RANGE"
	ConditionDayOfWeek  ConditionType = "DAY_OF_WEEK"
	ConditionIsCharging ConditionType = "IS_CHARGING"
	ConditionAtLocation ConditionType = "AT_LOCATION"
)

// EventType names a discrete fact reported by an event source.
type EventType string

const (
	EventAppBecameActive       EventType = "APP_BECAME_ACTIVE"
	EventChargingStateChanged  EventType = "CHARGING_STATE_CHANGED"
	EventLocationRegionEntered EventType = "LOCATION_REGION_ENTERED"
	EventAppOpened             EventType = "APP_OPENED"
	EventScheduledTimeFired    EventType = "SCHEDULED_TIME_FIRED"
)

// Reminder is the unit of scheduling. Triggers are OR-ed, conditions AND-ed.
// All timestamps are epoch milliseconds.
type Reminder struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Triggers    []Trigger   `json:"triggers"`
	Conditions  []Condition `json:"conditions"`
	Status      Status      `json:"status"`
	CreatedAt   int64       `json:"created_at"`
	FiredAt     *int64      `json:"fired_at,omitempty"`
	ExpiresAt   *int64      `json:"expires_at,omitempty"`
}

// Clone returns a deep copy of r. Trigger and condition configs are values
// and are shared safely.
func (r Reminder) Clone() Reminder {
	out := r
	if r.Triggers != nil {
		out.Triggers = make([]Trigger, len(r.Triggers))
		for i, t := range r.Triggers {
			out.Triggers[i] = t
			out.Triggers[i].ActivationAt = cloneInt64(t.ActivationAt)
		}
	}
	if r.Conditions != nil {
		out.Conditions = make([]Condition, len(r.Conditions))
		copy(out.Conditions, r.Conditions)
	}
	out.FiredAt = cloneInt64(r.FiredAt)
	out.ExpiresAt = cloneInt64(r.ExpiresAt)
	return out
}

// Trigger is one activation rule. ActivationAt, when set, makes the trigger
// inert for any event with an earlier timestamp.
type Trigger struct {
	ID           string
	Type         TriggerType
	Config       TriggerConfig
	ActivationAt *int64
}

// Condition is one AND-ed predicate evaluated at fire time.
type Condition struct {
	ID     string
	Type   ConditionType
	Config ConditionConfig
}

// SystemEvent is an immutable fact about the world at a point in time.
type SystemEvent struct {
	Type      EventType
	Timestamp int64
	Data      EventData
}

// Location is a point on the globe in decimal degrees.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AmbientState is the externally maintained snapshot of device facts that
// are independent of any single event.
type AmbientState struct {
	IsCharging    bool      `json:"is_charging"`
	Location      *Location `json:"location,omitempty"`
	LastOpenedApp string    `json:"last_opened_app,omitempty"`
}

// EvaluationContext is rebuilt for every event and never persisted.
type EvaluationContext struct {
	CurrentTime     time.Time
	IsCharging      bool
	CurrentLocation *Location
	LastOpenedApp   string
}

// Millis converts an epoch-millisecond timestamp into a time in loc.
// A nil loc means time.Local.
func Millis(ms int64, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ms).In(loc)
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Firing records one successful WAITING to FIRED transition.
type Firing struct {
	ReminderID     string `json:"reminder_id"`
	EventID        string `json:"event_id,omitempty"`
	NotificationID string `json:"notification_id,omitempty"`
	FiredAt        int64  `json:"fired_at"`
}

// EventRecord is a delivered event as kept in the event log. Seq orders
// deliveries; ID is the content hash, so redeliveries share it.
type EventRecord struct {
	ID    string      `json:"id"`
	Seq   int64       `json:"seq"`
	Event SystemEvent `json:"event"`
}
