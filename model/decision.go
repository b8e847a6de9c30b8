// model/decision.go
package model

import "time"

// Effect is the outcome of a permission check.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Decision is the result of evaluating a permission check request.
// Allow decisions carry the role context that granted access; deny
// decisions carry the reason.
type Decision struct {
	Effect      Effect    `json:"effect"`
	RoleContext []string  `json:"role_context,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Allowed reports whether the decision grants access.
func (d Decision) Allowed() bool {
	return d.Effect == EffectAllow
}

// Allow builds an allow decision with the granting role context.
func Allow(roleContext []string, evaluatedAt time.Time) Decision {
	return Decision{
		Effect:      EffectAllow,
		RoleContext: roleContext,
		EvaluatedAt: evaluatedAt,
	}
}

// Deny builds a deny decision with a reason.
func Deny(reason string, evaluatedAt time.Time) Decision {
	return Decision{
		Effect:      EffectDeny,
		Reason:      reason,
		EvaluatedAt: evaluatedAt,
	}
}
