// model/request.go
package model

// CheckRequest is the tuple a permission check is made for. ResourceID
// is optional; an empty string means the check is not scoped to a
// specific resource.
type CheckRequest struct {
	TenantID    string `json:"tenant_id"`
	PrincipalID string `json:"principal_id"`
	Permission  string `json:"permission"`
	ResourceID  string `json:"resource_id,omitempty"`
}

// Equal reports whether two requests describe the same tuple.
func (r CheckRequest) Equal(other CheckRequest) bool {
	return r.TenantID == other.TenantID &&
		r.PrincipalID == other.PrincipalID &&
		r.Permission == other.Permission &&
		r.ResourceID == other.ResourceID
}
