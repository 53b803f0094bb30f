package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows a future algorithm change.
const (
	DomainEvent      = "nudge/event/v1"
	DomainDefinition = "nudge/definition/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes a content-addressed ID for an event. Two deliveries of
// the same fact (type, timestamp, payload) share an ID.
func EventID(ev SystemEvent) (string, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("EventID: %w", err)
	}
	canonical, err := CanonicalizeJSON(raw)
	if err != nil {
		return "", fmt.Errorf("EventID: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// DefinitionHash identifies what a reminder listens for and requires:
// its triggers and conditions. Title, status and timestamps are excluded so
// the hash survives firing and reactivation.
func DefinitionHash(r Reminder) (string, error) {
	raw, err := json.Marshal(struct {
		Triggers   []Trigger   `json:"triggers"`
		Conditions []Condition `json:"conditions"`
	}{r.Triggers, r.Conditions})
	if err != nil {
		return "", fmt.Errorf("DefinitionHash: %w", err)
	}
	canonical, err := CanonicalizeJSON(raw)
	if err != nil {
		return "", fmt.Errorf("DefinitionHash: %w", err)
	}
	return hashWithDomain(DomainDefinition, canonical), nil
}

// MustEventID is like EventID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEventID(ev SystemEvent) string {
	id, err := EventID(ev)
	if err != nil {
		panic(err)
	}
	return id
}
