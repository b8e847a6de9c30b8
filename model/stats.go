// model/stats.go
package model

import "time"

// LatencySummary holds percentile estimates derived from a latency
// histogram.
type LatencySummary struct {
	Count uint64        `json:"count"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
	Max   time.Duration `json:"max"`
}

// Stats is a point-in-time snapshot of cache counters. It is
// regenerated on demand and never persisted.
type Stats struct {
	HitsL1             uint64 `json:"hits_l1"`
	HitsL2             uint64 `json:"hits_l2"`
	Misses             uint64 `json:"misses"`
	Evictions          uint64 `json:"evictions"`
	Expirations        uint64 `json:"expirations"`
	Invalidations      uint64 `json:"invalidations"`
	StaleRevalidations uint64 `json:"stale_revalidations"`
	WarmLoads          uint64 `json:"warm_loads"`
	L2Errors           uint64 `json:"l2_errors"`
	EvaluatorErrors    uint64 `json:"evaluator_errors"`
	FailOpenDecisions  uint64 `json:"fail_open_decisions"`
	Writes             uint64 `json:"writes"`

	HitRate    float64 `json:"hit_rate"`
	L2Healthy  bool    `json:"l2_healthy"`
	L1Size     int     `json:"l1_size"`
	L1Capacity int     `json:"l1_capacity"`

	HitLatency   LatencySummary `json:"hit_latency"`
	CheckLatency LatencySummary `json:"check_latency"`

	CollectedAt time.Time `json:"collected_at"`
}

// Lookups is the total number of checks answered from any tier or the
// evaluator.
func (s Stats) Lookups() uint64 {
	return s.HitsL1 + s.HitsL2 + s.Misses
}

// Recommendation is a structured tuning suggestion produced by the
// optimizer. It never mutates configuration itself.
type Recommendation struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}
