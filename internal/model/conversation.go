// internal/model/conversation.go
package model

import "time"

const (
	ConversationOpen   = "open"
	ConversationClosed = "closed"
)

// Conversation groups messages for a (tenant, contact, channel) triple. Created
// lazily on first send; open→closed transitions belong to the thread-management
// service, not this pipeline.
type Conversation struct {
	ID        string     `db:"id" json:"id"`
	TenantID  string     `db:"tenant_id" json:"tenant_id"`
	ContactID string     `db:"contact_id" json:"contact_id"`
	Channel   string     `db:"channel" json:"channel"`
	Subject   string     `db:"subject" json:"subject"`
	Status    string     `db:"status" json:"status"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
