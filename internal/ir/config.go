package ir

import "encoding/json"

// TriggerConfig is the type-specific payload of a Trigger.
// Only the config types in this package implement it.
type TriggerConfig interface {
	triggerConfig()
}

// ConditionConfig is the type-specific payload of a Condition.
type ConditionConfig interface {
	conditionConfig()
}

// EventData is the type-specific payload of a SystemEvent.
type EventData interface {
	eventData()
}

// GeofenceConfig configures a LOCATION_ENTER trigger.
type GeofenceConfig struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius"`
	Name      string  `json:"name,omitempty"`
}

func (GeofenceConfig) triggerConfig() {}

// LegacyAppWildcard is the bundle id stored by reminders created before
// per-activity matching existed. Such triggers match any APP_OPENED event.
const LegacyAppWildcard = "*"

// AppConfig configures an APP_OPENED trigger. ActivityName is the current
// matching key; BundleID is only consulted for LegacyAppWildcard.
type AppConfig struct {
	ActivityName string `json:"activity_name,omitempty"`
	BundleID     string `json:"bundle_id,omitempty"`
}

func (AppConfig) triggerConfig() {}

// ScheduledConfig configures a SCHEDULED_TIME trigger.
type ScheduledConfig struct {
	At int64 `json:"at"`
}

func (ScheduledConfig) triggerConfig() {}

// TimeWindowConfig configures a TIME_WINDOW trigger.
type TimeWindowConfig struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

func (TimeWindowConfig) triggerConfig() {}

// RawTriggerConfig holds the payload of a trigger type this build does not
// know. It is preserved on round trips and never matches.
type RawTriggerConfig struct {
	Raw json.RawMessage
}

func (RawTriggerConfig) triggerConfig() {}

// TimeRangeConfig configures a TIME_RANGE condition. Bounds are inclusive
// hours; StartHour > EndHour wraps past midnight.
type TimeRangeConfig struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

func (TimeRangeConfig) conditionConfig() {}

// DayOfWeekConfig configures a DAY_OF_WEEK condition. 0 is Sunday.
type DayOfWeekConfig struct {
	Days []int `json:"days"`
}

func (DayOfWeekConfig) conditionConfig() {}

// ChargingConfig configures an IS_CHARGING condition.
type ChargingConfig struct {
	Required bool `json:"required"`
}

func (ChargingConfig) conditionConfig() {}

// LocationConfig configures an AT_LOCATION condition.
type LocationConfig struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius"`
}

func (LocationConfig) conditionConfig() {}

// RawConditionConfig holds the payload of an unknown condition type.
type RawConditionConfig struct {
	Raw json.RawMessage
}

func (RawConditionConfig) conditionConfig() {}

// ChargingData accompanies CHARGING_STATE_CHANGED.
type ChargingData struct {
	IsCharging bool `json:"is_charging"`
}

func (ChargingData) eventData() {}

// RegionData accompanies LOCATION_REGION_ENTERED.
type RegionData struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Identifier string  `json:"identifier,omitempty"`
}

func (RegionData) eventData() {}

// AppOpenedData accompanies APP_OPENED.
type AppOpenedData struct {
	AppIdentifier string `json:"app_identifier"`
}

func (AppOpenedData) eventData() {}

// ScheduledData accompanies SCHEDULED_TIME_FIRED.
type ScheduledData struct {
	ReminderID string `json:"reminder_id"`
}

func (ScheduledData) eventData() {}

// RawEventData holds the payload of an unknown event type.
type RawEventData struct {
	Raw json.RawMessage
}

func (RawEventData) eventData() {}
