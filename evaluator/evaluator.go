// evaluator/evaluator.go

// Package evaluator defines the client interface to the authoritative
// RBAC evaluator. The cache never synthesizes a decision without a
// successful call through this interface, except under the configured
// fail-open policy.
package evaluator

import (
	"context"

	"github.com/cloudgate-io/permcache/model"
)

// Client is the narrow interface to the authoritative evaluator. It is
// assumed idempotent and authoritative for a consistent snapshot of
// roles and permissions.
type Client interface {
	Evaluate(ctx context.Context, req model.CheckRequest) (model.Decision, error)
}

// BatchClient is implemented by evaluators that support answering
// several requests in one round-trip. The manager type-asserts for it
// and falls back to per-item Evaluate calls when absent; the per-item
// correctness contract is identical either way.
type BatchClient interface {
	Client
	EvaluateBatch(ctx context.Context, reqs []model.CheckRequest) ([]model.Decision, error)
}
