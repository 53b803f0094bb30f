package ir

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventID_Deterministic(t *testing.T) {
	ev := SystemEvent{
		Type:      EventLocationRegionEntered,
		Timestamp: 1000,
		Data:      RegionData{Latitude: 37.0001, Longitude: -122, Identifier: "home"},
	}

	id1, err := EventID(ev)
	require.NoError(t, err)
	id2, err := EventID(ev)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64)
}

func TestEventID_SameFactFromDifferentEncodings(t *testing.T) {
	var a, b SystemEvent
	require.NoError(t, json.Unmarshal([]byte(`{"type":"APP_OPENED","timestamp":5,"data":{"app_identifier":"mail"}}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"data":{"app_identifier":"mail"},"timestamp":5,"type":"APP_OPENED"}`), &b))

	assert.Equal(t, MustEventID(a), MustEventID(b))
}

func TestEventID_DiffersByTimestampAndPayload(t *testing.T) {
	base := SystemEvent{Type: EventChargingStateChanged, Timestamp: 1000, Data: ChargingData{IsCharging: true}}
	later := base
	later.Timestamp = 1001
	stopped := base
	stopped.Data = ChargingData{IsCharging: false}

	assert.NotEqual(t, MustEventID(base), MustEventID(later))
	assert.NotEqual(t, MustEventID(base), MustEventID(stopped))
}

func TestDefinitionHash_IgnoresLifecycleFields(t *testing.T) {
	r := Reminder{
		ID:       "r1",
		Title:    "a",
		Status:   StatusWaiting,
		Triggers: []Trigger{{ID: "t1", Type: TriggerPhoneUnlock}},
	}
	fired := r.Clone()
	fired.Status = StatusFired
	fired.FiredAt = Int64Ptr(10)
	fired.Title = "b"

	h1, err := DefinitionHash(r)
	require.NoError(t, err)
	h2, err := DefinitionHash(fired)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	changed := r.Clone()
	changed.Triggers[0].Type = TriggerChargingStarted
	h3, err := DefinitionHash(changed)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestHashWithDomain_Separation(t *testing.T) {
	data := []byte(`{}`)
	assert.NotEqual(t, hashWithDomain(DomainEvent, data), hashWithDomain(DomainDefinition, data))
	assert.False(t, strings.ContainsAny(hashWithDomain(DomainEvent, data), "ABCDEF"))
}
