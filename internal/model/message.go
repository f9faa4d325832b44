// internal/model/message.go
package model

import "time"

// Message lifecycle statuses.
const (
	StatusQueued = "queued"
	StatusSent   = "sent"
	StatusFailed = "failed"
)

const DirectionOutbound = "outbound"

// Metadata keys the pipeline writes into Message.Metadata.
const (
	MetaDedupeKey         = "dedupe_key"
	MetaIdempotencyKey    = "idempotency_key"
	MetaTemplateVersionID = "template_version_id"
	MetaVariables         = "variables"
	MetaBlockReasons      = "block_reasons"
	MetaProviderError     = "provider_error"
)

// Message is the durable record of one accepted send attempt. Rows are created
// once and never deleted; only status, timestamps, and provider fields mutate.
type Message struct {
	ID                string         `db:"id" json:"id"`
	TenantID          string         `db:"tenant_id" json:"tenant_id"`
	ConversationID    string         `db:"conversation_id" json:"conversation_id"`
	ContactID         string         `db:"contact_id" json:"contact_id"`
	Direction         string         `db:"direction" json:"direction"`
	Channel           string         `db:"channel" json:"channel"`
	Provider          string         `db:"provider" json:"provider"`
	Status            string         `db:"status" json:"status"`
	Subject           string         `db:"subject" json:"subject,omitempty"`
	BodyText          string         `db:"body_text" json:"body_text"`
	BodyHTML          string         `db:"body_html" json:"body_html,omitempty"`
	ToAddress         string         `db:"to_address" json:"to_address"`
	FromAddress       string         `db:"from_address" json:"from_address,omitempty"`
	ProviderMessageID string         `db:"provider_message_id" json:"provider_message_id,omitempty"`
	Metadata          map[string]any `db:"metadata" json:"metadata,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	SentAt            *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
	FailedAt          *time.Time     `db:"failed_at" json:"failed_at,omitempty"`
}
