// internal/model/template.go
package model

import "time"

// Channel values a template (and a send) can target.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// TemplateVersion is an immutable snapshot of a named template. Sends always
// reference a version id, never "latest", so historical messages stay
// reproducible.
type TemplateVersion struct {
	ID             string    `db:"id" json:"id"`
	TenantID       string    `db:"tenant_id" json:"tenant_id"`
	TemplateName   string    `db:"template_name" json:"template_name"`
	Version        int       `db:"version" json:"version"`
	Channel        string    `db:"channel" json:"channel"`
	SubjectPattern string    `db:"subject_pattern" json:"subject_pattern,omitempty"`
	TextPattern    string    `db:"text_pattern" json:"text_pattern"`
	HTMLPattern    string    `db:"html_pattern" json:"html_pattern,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
