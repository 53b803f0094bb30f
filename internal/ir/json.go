package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Configs and event payloads are tagged by the owning record's type field,
// so they are encoded here rather than with struct tags.

type triggerWire struct {
	ID           string          `json:"id"`
	Type         TriggerType     `json:"type"`
	Config       json.RawMessage `json:"config,omitempty"`
	ActivationAt *int64          `json:"activation_at,omitempty"`
}

type conditionWire struct {
	ID     string          `json:"id"`
	Type   ConditionType   `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
}

type eventWire struct {
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (t Trigger) MarshalJSON() ([]byte, error) {
	cfg, err := EncodeTriggerConfig(t.Config)
	if err != nil {
		return nil, fmt.Errorf("trigger %s: %w", t.ID, err)
	}
	return json.Marshal(triggerWire{ID: t.ID, Type: t.Type, Config: cfg, ActivationAt: t.ActivationAt})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Trigger) UnmarshalJSON(data []byte) error {
	var w triggerWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	cfg, err := DecodeTriggerConfig(w.Type, w.Config)
	if err != nil {
		return fmt.Errorf("trigger %s: %w", w.ID, err)
	}
	*t = Trigger{ID: w.ID, Type: w.Type, Config: cfg, ActivationAt: w.ActivationAt}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c Condition) MarshalJSON() ([]byte, error) {
	cfg, err := EncodeConditionConfig(c.Config)
	if err != nil {
		return nil, fmt.Errorf("condition %s: %w", c.ID, err)
	}
	return json.Marshal(conditionWire{ID: c.ID, Type: c.Type, Config: cfg})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var w conditionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	cfg, err := DecodeConditionConfig(w.Type, w.Config)
	if err != nil {
		return fmt.Errorf("condition %s: %w", w.ID, err)
	}
	*c = Condition{ID: w.ID, Type: w.Type, Config: cfg}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e SystemEvent) MarshalJSON() ([]byte, error) {
	data, err := EncodeEventData(e.Data)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", e.Type, err)
	}
	return json.Marshal(eventWire{Type: e.Type, Timestamp: e.Timestamp, Data: data})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *SystemEvent) UnmarshalJSON(data []byte) error {
	var w eventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	payload, err := DecodeEventData(w.Type, w.Data)
	if err != nil {
		return fmt.Errorf("event %s: %w", w.Type, err)
	}
	*e = SystemEvent{Type: w.Type, Timestamp: w.Timestamp, Data: payload}
	return nil
}

// EncodeTriggerConfig returns the JSON payload for cfg, or nil when cfg is nil.
func EncodeTriggerConfig(cfg TriggerConfig) (json.RawMessage, error) {
	switch c := cfg.(type) {
	case nil:
		return nil, nil
	case RawTriggerConfig:
		return c.Raw, nil
	default:
		return json.Marshal(c)
	}
}

// DecodeTriggerConfig decodes raw according to the trigger type. Types without
// a config yield nil; unknown types keep the payload as RawTriggerConfig.
func DecodeTriggerConfig(t TriggerType, raw json.RawMessage) (TriggerConfig, error) {
	if isEmptyJSON(raw) {
		return nil, nil
	}
	switch t {
	case TriggerPhoneUnlock, TriggerChargingStarted:
		return nil, nil
	case TriggerLocationEnter:
		return decodeAs[GeofenceConfig](raw)
	case TriggerAppOpened:
		return decodeAs[AppConfig](raw)
	case TriggerScheduledTime:
		return decodeAs[ScheduledConfig](raw)
	case TriggerTimeWindow:
		return decodeAs[TimeWindowConfig](raw)
	default:
		return RawTriggerConfig{Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

// EncodeConditionConfig returns the JSON payload for cfg, or nil when cfg is nil.
func EncodeConditionConfig(cfg ConditionConfig) (json.RawMessage, error) {
	switch c := cfg.(type) {
	case nil:
		return nil, nil
	case RawConditionConfig:
		return c.Raw, nil
	default:
		return json.Marshal(c)
	}
}

// DecodeConditionConfig decodes raw according to the condition type.
func DecodeConditionConfig(t ConditionType, raw json.RawMessage) (ConditionConfig, error) {
	if isEmptyJSON(raw) {
		return nil, nil
	}
	switch t {
	case ConditionTimeRange:
		return decodeAs[TimeRangeConfig](raw)
	case ConditionDayOfWeek:
		return decodeAs[DayOfWeekConfig](raw)
	case ConditionIsCharging:
		return decodeAs[ChargingConfig](raw)
	case ConditionAtLocation:
		return decodeAs[LocationConfig](raw)
	default:
		return RawConditionConfig{Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

// EncodeEventData returns the JSON payload for d, or nil when d is nil.
func EncodeEventData(d EventData) (json.RawMessage, error) {
	switch v := d.(type) {
	case nil:
		return nil, nil
	case RawEventData:
		return v.Raw, nil
	default:
		return json.Marshal(v)
	}
}

// DecodeEventData decodes raw according to the event type.
func DecodeEventData(t EventType, raw json.RawMessage) (EventData, error) {
	if isEmptyJSON(raw) {
		return nil, nil
	}
	switch t {
	case EventAppBecameActive:
		return nil, nil
	case EventChargingStateChanged:
		return decodeAs[ChargingData](raw)
	case EventLocationRegionEntered:
		return decodeAs[RegionData](raw)
	case EventAppOpened:
		return decodeAs[AppOpenedData](raw)
	case EventScheduledTimeFired:
		return decodeAs[ScheduledData](raw)
	default:
		return RawEventData{Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

func decodeAs[T any](raw json.RawMessage) (T, error) {
	var v T
	err := decodeStrict(raw, &v)
	return v, err
}

func decodeStrict(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
