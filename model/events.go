// model/events.go
package model

import "time"

// MutationEventType identifies the kind of RBAC mutation that triggered
// an invalidation.
type MutationEventType string

const (
	EventUserRoleChange     MutationEventType = "user_role_change"
	EventPermissionUpdate   MutationEventType = "permission_update"
	EventTenantStatusChange MutationEventType = "tenant_status_change"
	EventClearAll           MutationEventType = "clear_all"
)

// MutationEvent is an RBAC mutation delivered by the external mutation
// service. Exactly one of PrincipalID, TenantID or Permission is set,
// depending on Type; ClearAll events carry no payload.
type MutationEvent struct {
	ID          string            `json:"id"`
	Type        MutationEventType `json:"type"`
	PrincipalID string            `json:"principal_id,omitempty"`
	TenantID    string            `json:"tenant_id,omitempty"`
	Permission  string            `json:"permission,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}
