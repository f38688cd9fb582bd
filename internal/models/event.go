package models

import "time"

// Event is a single log entry.
type Event struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // BOOST_START | BOOST_STOP | PROFILE_CHANGE | POLL_FAILED | POLL_RECOVERED | AUTH_FAILED | API_KEY_ACTIVATED
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
