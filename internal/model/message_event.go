// internal/model/message_event.go
package model

import "time"

// MessageEvent types, one per lifecycle transition.
const (
	EventQueued        = "queued"
	EventPolicyBlocked = "policy_blocked"
	EventSent          = "sent"
	EventFailed        = "failed"
)

// MessageEvent is an append-only audit record for a Message. Events are never
// mutated or deleted; a blocked send still gets one, so "why didn't this go
// out" is always answerable from the event stream alone.
type MessageEvent struct {
	ID        string         `db:"id" json:"id"`
	MessageID string         `db:"message_id" json:"message_id"`
	TenantID  string         `db:"tenant_id" json:"tenant_id"`
	EventType string         `db:"event_type" json:"event_type"`
	Metadata  map[string]any `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// StatusForEvent maps an event type to the message status it implies. The
// message row's status must always equal the mapping of its latest event.
func StatusForEvent(eventType string) string {
	switch eventType {
	case EventSent:
		return StatusSent
	case EventFailed, EventPolicyBlocked:
		return StatusFailed
	default:
		return StatusQueued
	}
}
