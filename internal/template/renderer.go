// internal/template/renderer.go
package template

import (
	"strings"

	"github.com/lumenhq/courier-backend/internal/model"
)

// Reserved variable names. These always come from system state; caller-supplied
// values under these names are ignored so a variable literally named "tenant_id"
// cannot spoof a system field.
var reservedKeys = []string{
	"tenant_id",
	"contact_id",
	"display_name",
	"first_name",
	"email",
	"phone",
}

// Render substitutes {name} placeholders in pattern with values from vars.
// Unknown placeholders are left as-is.
func Render(pattern string, vars map[string]string) string {
	result := pattern
	for k, v := range vars {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

// MergeVariables builds the variable bag for one send: caller variables first,
// then reserved keys from tenant and contact state written over them.
func MergeVariables(tenantID string, contact *model.Contact, callerVars map[string]string) map[string]string {
	merged := make(map[string]string, len(callerVars)+len(reservedKeys))
	for k, v := range callerVars {
		merged[k] = v
	}

	system := map[string]string{
		"tenant_id":    tenantID,
		"contact_id":   contact.ID,
		"display_name": contact.DisplayName,
		"first_name":   firstName(contact.DisplayName),
		"email":        contact.Email,
		"phone":        contact.PhoneE164,
	}
	for _, k := range reservedKeys {
		merged[k] = system[k]
	}
	return merged
}

func firstName(displayName string) string {
	name := strings.TrimSpace(displayName)
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i]
	}
	return name
}
