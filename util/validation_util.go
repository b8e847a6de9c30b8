// util/validation_util.go

package util

import (
	"fmt"

	perm_errors "github.com/cloudgate-io/permcache/errors"
	"github.com/cloudgate-io/permcache/model"
)

type ValidationUtil struct{}

func NewValidationUtil() *ValidationUtil {
	return &ValidationUtil{}
}

func (v *ValidationUtil) ValidateCheckRequest(req model.CheckRequest) error {
	if req.TenantID == "" {
		return fmt.Errorf("%w: tenant_id cannot be empty", perm_errors.ErrInvalidKey)
	}
	if req.PrincipalID == "" {
		return fmt.Errorf("%w: principal_id cannot be empty", perm_errors.ErrInvalidKey)
	}
	if req.Permission == "" {
		return fmt.Errorf("%w: permission cannot be empty", perm_errors.ErrInvalidKey)
	}
	return nil
}

func (v *ValidationUtil) ValidateMutationEvent(ev model.MutationEvent) error {
	switch ev.Type {
	case model.EventUserRoleChange:
		if ev.PrincipalID == "" {
			return fmt.Errorf("user_role_change event must carry a principal_id")
		}
	case model.EventPermissionUpdate:
		if ev.Permission == "" {
			return fmt.Errorf("permission_update event must carry a permission")
		}
	case model.EventTenantStatusChange:
		if ev.TenantID == "" {
			return fmt.Errorf("tenant_status_change event must carry a tenant_id")
		}
	case model.EventClearAll:
		// No payload.
	default:
		return fmt.Errorf("unknown mutation event type: %s", ev.Type)
	}
	return nil
}
