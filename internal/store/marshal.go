package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/nudge/internal/ir"
)

// Configs and event payloads are stored as canonical JSON TEXT so equal
// values are byte-identical in the database. A nil payload is stored as NULL.

func marshalTriggerConfig(cfg ir.TriggerConfig) (sql.NullString, error) {
	raw, err := ir.EncodeTriggerConfig(cfg)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal trigger config: %w", err)
	}
	return canonicalText(raw)
}

func marshalConditionConfig(cfg ir.ConditionConfig) (sql.NullString, error) {
	raw, err := ir.EncodeConditionConfig(cfg)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal condition config: %w", err)
	}
	return canonicalText(raw)
}

func marshalEventData(d ir.EventData) (sql.NullString, error) {
	raw, err := ir.EncodeEventData(d)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal event data: %w", err)
	}
	return canonicalText(raw)
}

func canonicalText(raw json.RawMessage) (sql.NullString, error) {
	if raw == nil {
		return sql.NullString{}, nil
	}
	data, err := ir.CanonicalizeJSON(raw)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalTriggerConfig(t ir.TriggerType, text sql.NullString) (ir.TriggerConfig, error) {
	if !text.Valid {
		return nil, nil
	}
	cfg, err := ir.DecodeTriggerConfig(t, json.RawMessage(text.String))
	if err != nil {
		return nil, fmt.Errorf("unmarshal trigger config: %w", err)
	}
	return cfg, nil
}

func unmarshalConditionConfig(t ir.ConditionType, text sql.NullString) (ir.ConditionConfig, error) {
	if !text.Valid {
		return nil, nil
	}
	cfg, err := ir.DecodeConditionConfig(t, json.RawMessage(text.String))
	if err != nil {
		return nil, fmt.Errorf("unmarshal condition config: %w", err)
	}
	return cfg, nil
}

func unmarshalEventData(t ir.EventType, text sql.NullString) (ir.EventData, error) {
	if !text.Valid {
		return nil, nil
	}
	d, err := ir.DecodeEventData(t, json.RawMessage(text.String))
	if err != nil {
		return nil, fmt.Errorf("unmarshal event data: %w", err)
	}
	return d, nil
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return ir.Int64Ptr(n.Int64)
}
