// Package access decides which roles may perform which chat actions.
// It is a pure table: no store or network access.
package access

import (
	"buildtrack-backend/internal/models"
	"fmt"
	"strings"
)

// Intent is an action a principal wants to perform on a chat.
type Intent string

const (
	IntentPlainMessage           Intent = "plain_message"
	IntentEditSuggestion         Intent = "edit_suggestion"
	IntentCompletionConfirmation Intent = "completion_confirmation"
	IntentUpdateMessage          Intent = "update_message"
	IntentDeleteMessage          Intent = "delete_message"
	IntentReadChat               Intent = "read_chat"
)

var allRoles = []models.Role{models.RoleContractor, models.RoleInspector, models.RoleAdmin}

var rules = map[Intent][]models.Role{
	IntentPlainMessage:           allRoles,
	IntentEditSuggestion:         {models.RoleInspector},
	IntentCompletionConfirmation: {models.RoleContractor},
	IntentUpdateMessage:          allRoles,
	IntentDeleteMessage:          allRoles,
	IntentReadChat:               allRoles,
}

// DeniedError reports a role that may not perform an intent.
type DeniedError struct {
	Role     models.Role
	Intent   Intent
	Required []models.Role
}

func (e *DeniedError) Error() string {
	names := make([]string, len(e.Required))
	for i, r := range e.Required {
		names[i] = string(r)
	}
	role := string(e.Role)
	if role == "" {
		role = "unknown"
	}
	return fmt.Sprintf("role %s may not perform %s; requires %s", role, e.Intent, strings.Join(names, " or "))
}

// Authorize returns nil when role may perform intent, *DeniedError otherwise.
// Unknown roles and unknown intents are always denied.
func Authorize(role models.Role, intent Intent) error {
	allowed, ok := rules[intent]
	if !ok {
		return &DeniedError{Role: role, Intent: intent}
	}
	if role.Valid() {
		for _, r := range allowed {
			if r == role {
				return nil
			}
		}
	}
	required := make([]models.Role, len(allowed))
	copy(required, allowed)
	return &DeniedError{Role: role, Intent: intent, Required: required}
}

// Scope selects which chats a role may list.
type Scope int

const (
	ScopeNone Scope = iota
	// ScopeAssigned limits listings to chats of objects assigned to the user.
	ScopeAssigned
	ScopeAll
)

// ChatScope returns the listing scope of a role.
func ChatScope(role models.Role) Scope {
	switch role {
	case models.RoleContractor:
		return ScopeAssigned
	case models.RoleInspector, models.RoleAdmin:
		return ScopeAll
	}
	return ScopeNone
}
