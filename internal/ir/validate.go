package ir

import (
	"fmt"
	"strings"
)

// ProblemKind classifies a reminder invariant violation.
type ProblemKind string

const (
	ProblemMissing   ProblemKind = "missing"
	ProblemDuplicate ProblemKind = "duplicate"
	ProblemConfig    ProblemKind = "config"
	ProblemRange     ProblemKind = "range"
	ProblemUnknown   ProblemKind = "unknown"
)

// Problem is one creation-time invariant violation.
type Problem struct {
	Field   string      `json:"field"`
	Kind    ProblemKind `json:"kind"`
	Message string      `json:"message"`
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s", p.Field, p.Message)
}

// InvalidReminderError is returned by Validate.
type InvalidReminderError struct {
	ReminderID string
	Problems   []Problem
}

func (e *InvalidReminderError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return fmt.Sprintf("invalid reminder %q: %s", e.ReminderID, strings.Join(parts, "; "))
}

// Validate checks the invariants a reminder must satisfy before it is stored,
// so that evaluation never meets a trigger missing its own config.
func Validate(r Reminder) error {
	problems := Check(r)
	if len(problems) == 0 {
		return nil
	}
	return &InvalidReminderError{ReminderID: r.ID, Problems: problems}
}

// Check returns every invariant violation in r. It does not fail fast.
func Check(r Reminder) []Problem {
	var ps []Problem
	add := func(field string, kind ProblemKind, format string, args ...any) {
		ps = append(ps, Problem{Field: field, Kind: kind, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(r.ID) == "" {
		add("id", ProblemMissing, "id is required")
	}
	if strings.TrimSpace(r.Title) == "" {
		add("title", ProblemMissing, "title is required")
	}
	if r.Status != "" && !r.Status.Valid() {
		add("status", ProblemUnknown, "unknown status %q", r.Status)
	}
	if len(r.Triggers) == 0 {
		add("triggers", ProblemMissing, "at least one trigger is required")
	}

	seen := make(map[string]bool, len(r.Triggers))
	for i, t := range r.Triggers {
		field := fmt.Sprintf("triggers[%d]", i)
		if t.ID == "" {
			add(field+".id", ProblemMissing, "trigger id is required")
		} else if seen[t.ID] {
			add(field+".id", ProblemDuplicate, "duplicate trigger id %q", t.ID)
		}
		seen[t.ID] = true
		checkTrigger(field, t, add)
	}

	seen = make(map[string]bool, len(r.Conditions))
	for i, c := range r.Conditions {
		field := fmt.Sprintf("conditions[%d]", i)
		if c.ID != "" && seen[c.ID] {
			add(field+".id", ProblemDuplicate, "duplicate condition id %q", c.ID)
		}
		seen[c.ID] = true
		checkCondition(field, c, add)
	}

	if r.ExpiresAt != nil && *r.ExpiresAt < r.CreatedAt {
		add("expires_at", ProblemRange, "expires_at precedes created_at")
	}
	return ps
}

type addFunc func(field string, kind ProblemKind, format string, args ...any)

func checkTrigger(field string, t Trigger, add addFunc) {
	cfgField := field + ".config"
	switch t.Type {
	case TriggerPhoneUnlock, TriggerChargingStarted:
		if t.Config != nil {
			add(cfgField, ProblemConfig, "%s takes no config", t.Type)
		}
	case TriggerLocationEnter:
		c, ok := t.Config.(GeofenceConfig)
		if !ok {
			add(cfgField, ProblemConfig, "%s requires a geofence config", t.Type)
			return
		}
		checkPoint(cfgField, c.Latitude, c.Longitude, c.Radius, add)
	case TriggerAppOpened:
		c, ok := t.Config.(AppConfig)
		if !ok {
			add(cfgField, ProblemConfig, "%s requires an app config", t.Type)
			return
		}
		if c.ActivityName == "" && c.BundleID == "" {
			add(cfgField, ProblemMissing, "activity_name or bundle_id is required")
		}
	case TriggerScheduledTime:
		if _, ok := t.Config.(ScheduledConfig); !ok {
			add(cfgField, ProblemConfig, "%s requires a scheduled config", t.Type)
		}
	case TriggerTimeWindow:
		c, ok := t.Config.(TimeWindowConfig)
		if !ok {
			add(cfgField, ProblemConfig, "%s requires a time window config", t.Type)
			return
		}
		checkHours(cfgField, c.StartHour, c.EndHour, add)
	default:
		add(field+".type", ProblemUnknown, "unknown trigger type %q", t.Type)
	}
}

func checkCondition(field string, c Condition, add addFunc) {
	cfgField := field + ".config"
	switch c.Type {
	case ConditionTimeRange:
		cfg, ok := c.Config.(TimeRangeConfig)
		if !ok {
			add(cfgField, ProblemConfig, "%s requires hour bounds", c.Type)
			return
		}
		checkHours(cfgField, cfg.StartHour, cfg.EndHour, add)
	case ConditionDayOfWeek:
		cfg, ok := c.Config.(DayOfWeekConfig)
		if !ok {
			add(cfgField, ProblemConfig, "%s requires a day set", c.Type)
			return
		}
		for _, d := range cfg.Days {
			if d < 0 || d > 6 {
				add(cfgField+".days", ProblemRange, "day %d outside 0..6", d)
			}
		}
	case ConditionIsCharging:
		if _, ok := c.Config.(ChargingConfig); !ok {
			add(cfgField, ProblemConfig, "%s requires a required flag", c.Type)
		}
	case ConditionAtLocation:
		cfg, ok := c.Config.(LocationConfig)
		if !ok {
			add(cfgField, ProblemConfig, "%s requires a point and radius", c.Type)
			return
		}
		checkPoint(cfgField, cfg.Latitude, cfg.Longitude, cfg.Radius, add)
	default:
		add(field+".type", ProblemUnknown, "unknown condition type %q", c.Type)
	}
}

func checkHours(field string, start, end int, add addFunc) {
	if start < 0 || start > 23 {
		add(field+".start_hour", ProblemRange, "hour %d outside 0..23", start)
	}
	if end < 0 || end > 23 {
		add(field+".end_hour", ProblemRange, "hour %d outside 0..23", end)
	}
}

func checkPoint(field string, lat, lon, radius float64, add addFunc) {
	if lat < -90 || lat > 90 {
		add(field+".latitude", ProblemRange, "latitude %v outside -90..90", lat)
	}
	if lon < -180 || lon > 180 {
		add(field+".longitude", ProblemRange, "longitude %v outside -180..180", lon)
	}
	if radius < 0 {
		add(field+".radius", ProblemRange, "radius %v is negative", radius)
	}
}
