// internal/model/contact.go
package model

import "time"

// Contact is an addressable party within a tenant. Address fields are owned by
// the profile-management service; the dispatch pipeline only reads them.
type Contact struct {
	ID             string            `db:"id" json:"id"`
	TenantID       string            `db:"tenant_id" json:"tenant_id"`
	DisplayName    string            `db:"display_name" json:"display_name"`
	Email          string            `db:"email" json:"email,omitempty"`
	PhoneE164      string            `db:"phone_e164" json:"phone_e164,omitempty"`
	OptedOut       bool              `db:"opted_out" json:"opted_out"`
	Bounced        bool              `db:"bounced" json:"bounced"`
	InvalidAddress bool              `db:"invalid_address" json:"invalid_address"`
	Metadata       map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
}
