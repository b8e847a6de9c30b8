// model/entry.go
package model

import "time"

// EpochStamp captures the invalidation epochs observed when an entry
// was created. A stored entry whose stamp is older than the current
// epoch for any axis of its tuple is stale and must be re-validated
// against the evaluator. Origin identifies the process whose counters
// the stamp was taken from; stamps are only comparable within one
// origin.
type EpochStamp struct {
	Origin     string `json:"origin,omitempty"`
	Global     uint64 `json:"global"`
	User       uint64 `json:"user"`
	Tenant     uint64 `json:"tenant"`
	Permission uint64 `json:"permission"`
}

// CacheEntry is a cached permission decision. Entries are immutable
// once created; updates replace the entry rather than mutating it. The
// full source tuple is stored alongside the decision so a lookup can
// verify the entry against the requested tuple before trusting it.
type CacheEntry struct {
	Request        CheckRequest `json:"request"`
	Decision       Decision     `json:"decision"`
	Stamp          EpochStamp   `json:"stamp"`
	CreatedAt      time.Time    `json:"created_at"`
	ExpiresAt      time.Time    `json:"expires_at"`
	LastAccessedAt time.Time    `json:"last_accessed_at,omitempty"`
}

// Expired reports whether the entry's TTL has elapsed at the given time.
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}
