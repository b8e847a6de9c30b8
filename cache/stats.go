// cache/stats.go
package cache

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cloudgate-io/permcache/model"
)

// latencyBuckets are the fixed upper bounds of the latency histogram.
var latencyBuckets = [...]time.Duration{
	50 * time.Microsecond,
	100 * time.Microsecond,
	250 * time.Microsecond,
	500 * time.Microsecond,
	time.Millisecond,
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	time.Second,
}

type latencyHistogram struct {
	counts [len(latencyBuckets) + 1]atomic.Uint64
	total  atomic.Uint64
	max    atomic.Int64
}

func (h *latencyHistogram) observe(d time.Duration) {
	h.total.Add(1)
	for {
		cur := h.max.Load()
		if int64(d) <= cur || h.max.CompareAndSwap(cur, int64(d)) {
			break
		}
	}
	for i, bound := range latencyBuckets {
		if d <= bound {
			h.counts[i].Add(1)
			return
		}
	}
	h.counts[len(latencyBuckets)].Add(1)
}

// percentile returns the upper bound of the bucket containing the
// p-quantile observation. Coarse, but stable and allocation-free.
func (h *latencyHistogram) percentile(p float64) time.Duration {
	total := h.total.Load()
	if total == 0 {
		return 0
	}
	rank := uint64(p * float64(total))
	if rank < 1 {
		rank = 1
	}
	var seen uint64
	for i := range h.counts {
		seen += h.counts[i].Load()
		if seen >= rank {
			if i < len(latencyBuckets) {
				return latencyBuckets[i]
			}
			return time.Duration(h.max.Load())
		}
	}
	return time.Duration(h.max.Load())
}

func (h *latencyHistogram) summary() model.LatencySummary {
	return model.LatencySummary{
		Count: h.total.Load(),
		P50:   h.percentile(0.50),
		P95:   h.percentile(0.95),
		P99:   h.percentile(0.99),
		Max:   time.Duration(h.max.Load()),
	}
}

// StatsCollector accumulates hit/miss/latency accounting for the
// manager. All counters are atomics; Snapshot assembles a read-only
// view on demand.
type StatsCollector struct {
	hitsL1             atomic.Uint64
	hitsL2             atomic.Uint64
	misses             atomic.Uint64
	evictions          atomic.Uint64
	expirations        atomic.Uint64
	invalidations      atomic.Uint64
	staleRevalidations atomic.Uint64
	warmLoads          atomic.Uint64
	l2Errors           atomic.Uint64
	evaluatorErrors    atomic.Uint64
	failOpenDecisions  atomic.Uint64
	writes             atomic.Uint64

	hitLatency   latencyHistogram
	checkLatency latencyHistogram

	clock func() time.Time
}

func NewStatsCollector(clock func() time.Time) *StatsCollector {
	if clock == nil {
		clock = time.Now
	}
	return &StatsCollector{clock: clock}
}

func (sc *StatsCollector) RecordHitL1(d time.Duration) {
	sc.hitsL1.Add(1)
	sc.hitLatency.observe(d)
	sc.checkLatency.observe(d)
}

func (sc *StatsCollector) RecordHitL2(d time.Duration) {
	sc.hitsL2.Add(1)
	sc.checkLatency.observe(d)
}

func (sc *StatsCollector) RecordMiss(d time.Duration) {
	sc.misses.Add(1)
	sc.checkLatency.observe(d)
}

func (sc *StatsCollector) RecordEviction()          { sc.evictions.Add(1) }
func (sc *StatsCollector) RecordExpiration()        { sc.expirations.Add(1) }
func (sc *StatsCollector) RecordStaleRevalidation() { sc.staleRevalidations.Add(1) }
func (sc *StatsCollector) RecordWarmLoad()          { sc.warmLoads.Add(1) }
func (sc *StatsCollector) RecordL2Error()           { sc.l2Errors.Add(1) }
func (sc *StatsCollector) RecordEvaluatorError()    { sc.evaluatorErrors.Add(1) }
func (sc *StatsCollector) RecordFailOpen()          { sc.failOpenDecisions.Add(1) }
func (sc *StatsCollector) RecordWrite()             { sc.writes.Add(1) }

func (sc *StatsCollector) RecordInvalidations(n int) {
	if n > 0 {
		sc.invalidations.Add(uint64(n))
	}
}

// Snapshot assembles the current counters into a Stats value.
func (sc *StatsCollector) Snapshot(l1Size, l1Capacity int, l2Healthy bool) model.Stats {
	s := model.Stats{
		HitsL1:             sc.hitsL1.Load(),
		HitsL2:             sc.hitsL2.Load(),
		Misses:             sc.misses.Load(),
		Evictions:          sc.evictions.Load(),
		Expirations:        sc.expirations.Load(),
		Invalidations:      sc.invalidations.Load(),
		StaleRevalidations: sc.staleRevalidations.Load(),
		WarmLoads:          sc.warmLoads.Load(),
		L2Errors:           sc.l2Errors.Load(),
		EvaluatorErrors:    sc.evaluatorErrors.Load(),
		FailOpenDecisions:  sc.failOpenDecisions.Load(),
		Writes:             sc.writes.Load(),
		L2Healthy:          l2Healthy,
		L1Size:             l1Size,
		L1Capacity:         l1Capacity,
		HitLatency:         sc.hitLatency.summary(),
		CheckLatency:       sc.checkLatency.summary(),
		CollectedAt:        sc.clock(),
	}
	if lookups := s.Lookups(); lookups > 0 {
		s.HitRate = float64(s.HitsL1+s.HitsL2) / float64(lookups)
	}
	return s
}

// Optimize is a pure analysis pass over a stats snapshot. It returns
// tuning recommendations and never mutates configuration.
func Optimize(s model.Stats) []model.Recommendation {
	var recs []model.Recommendation

	if s.Writes > 100 && s.Evictions*20 > s.Writes {
		recs = append(recs, model.Recommendation{
			Code:     "l1-eviction-pressure",
			Severity: "warning",
			Message: fmt.Sprintf(
				"L1 eviction rate is %.1f%% of writes; increase cache.l1Capacity (currently %d)",
				100*float64(s.Evictions)/float64(s.Writes), s.L1Capacity),
		})
	}

	if s.Lookups() > 1000 && s.HitRate < 0.90 {
		recs = append(recs, model.Recommendation{
			Code:     "low-hit-rate",
			Severity: "warning",
			Message: fmt.Sprintf(
				"hit rate is %.1f%%; warm known permission sets on login or raise cache.ttl",
				100*s.HitRate),
		})
	}

	if !s.L2Healthy {
		recs = append(recs, model.Recommendation{
			Code:     "l2-degraded",
			Severity: "critical",
			Message:  "distributed store is unhealthy; replicas are running cold after restart until it recovers",
		})
	}

	if s.Misses > 0 && s.StaleRevalidations*4 > s.Misses {
		recs = append(recs, model.Recommendation{
			Code:     "high-staleness-churn",
			Severity: "info",
			Message:  "a large share of misses are stale-entry re-validations; invalidation events may be arriving in bursts",
		})
	}

	if s.EvaluatorErrors > 0 && s.Lookups() > 0 && s.EvaluatorErrors*100 > s.Lookups() {
		recs = append(recs, model.Recommendation{
			Code:     "evaluator-error-rate",
			Severity: "critical",
			Message:  "more than 1% of checks hit evaluator failures; fail-closed denials may be impacting users",
		})
	}

	return recs
}
