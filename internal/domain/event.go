package domain

import "time"

// EventType names a committed change to an account.
type EventType string

const (
	EventNumberAllocated EventType = "number_allocated"
	EventNumberSaved     EventType = "number_saved"
	EventCountrySelected EventType = "country_selected"
	EventTierChanged     EventType = "tier_changed"
	EventAccountUpdated  EventType = "account_updated"
)

// AccountEvent is published after a transaction commits. It is never emitted for a
// rolled-back unit.
type AccountEvent struct {
	Type       EventType      `json:"type"`
	UserID     string         `json:"userId"`
	Number     string         `json:"number,omitempty"`
	Summary    AccountSummary `json:"summary"`
	OccurredAt time.Time      `json:"occurredAt"`
}
