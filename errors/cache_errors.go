package errors

import "errors"

var (
	// ErrEvaluatorUnavailable is returned by the evaluator client when
	// the authoritative permission evaluator cannot be reached or times
	// out. The manager converts it per the configured fail policy.
	ErrEvaluatorUnavailable = errors.New("permission evaluator unavailable")

	// ErrStoreUnavailable marks a distributed store failure. It is
	// always recovered inside the cache layer and never propagated to
	// callers of CheckPermission.
	ErrStoreUnavailable = errors.New("distributed cache store unavailable")

	// ErrInvalidKey is returned for a malformed check tuple.
	ErrInvalidKey = errors.New("invalid permission cache key")

	// ErrPermissionCheckFailed is the only evaluator-failure shape a
	// caller ever sees. It deliberately carries no internal detail.
	ErrPermissionCheckFailed = errors.New("permission check failed")

	// ErrManagerClosed is returned once the manager has been shut down.
	ErrManagerClosed = errors.New("cache manager closed")
)
