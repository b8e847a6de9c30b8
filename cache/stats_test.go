// cache/stats_test.go
package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudgate-io/permcache/model"
)

func TestStatsCollector_Snapshot(t *testing.T) {
	sc := NewStatsCollector(nil)

	sc.RecordHitL1(100 * time.Microsecond)
	sc.RecordHitL1(200 * time.Microsecond)
	sc.RecordHitL2(2 * time.Millisecond)
	sc.RecordMiss(20 * time.Millisecond)
	sc.RecordEviction()
	sc.RecordInvalidations(3)
	sc.RecordWrite()

	s := sc.Snapshot(42, 100, true)

	assert.Equal(t, uint64(2), s.HitsL1)
	assert.Equal(t, uint64(1), s.HitsL2)
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, uint64(1), s.Evictions)
	assert.Equal(t, uint64(3), s.Invalidations)
	assert.Equal(t, uint64(1), s.Writes)
	assert.Equal(t, 42, s.L1Size)
	assert.Equal(t, 100, s.L1Capacity)
	assert.True(t, s.L2Healthy)
	assert.InDelta(t, 0.75, s.HitRate, 0.001)
	assert.Equal(t, uint64(4), s.CheckLatency.Count)
	assert.Equal(t, uint64(2), s.HitLatency.Count)
}

func TestLatencyHistogram_Percentiles(t *testing.T) {
	var h latencyHistogram
	for i := 0; i < 90; i++ {
		h.observe(80 * time.Microsecond)
	}
	for i := 0; i < 10; i++ {
		h.observe(40 * time.Millisecond)
	}

	sum := h.summary()
	require.Equal(t, uint64(100), sum.Count)
	assert.Equal(t, 100*time.Microsecond, sum.P50)
	assert.Equal(t, 50*time.Millisecond, sum.P95)
	assert.Equal(t, 40*time.Millisecond, sum.Max)
}

func TestLatencyHistogram_OverflowBucket(t *testing.T) {
	var h latencyHistogram
	h.observe(3 * time.Second)

	sum := h.summary()
	assert.Equal(t, uint64(1), sum.Count)
	assert.Equal(t, 3*time.Second, sum.P99)
	assert.Equal(t, 3*time.Second, sum.Max)
}

func TestOptimize_EvictionPressure(t *testing.T) {
	recs := Optimize(model.Stats{
		Writes:     1000,
		Evictions:  100,
		L1Capacity: 500,
	})
	require.NotEmpty(t, recs)
	assert.Equal(t, "l1-eviction-pressure", recs[0].Code)
}

func TestOptimize_LowHitRate(t *testing.T) {
	recs := Optimize(model.Stats{
		HitsL1:    500,
		Misses:    1000,
		HitRate:   float64(500) / float64(1500),
		L2Healthy: true,
	})
	codes := recCodes(recs)
	assert.Contains(t, codes, "low-hit-rate")
}

func TestOptimize_DegradedL2(t *testing.T) {
	recs := Optimize(model.Stats{L2Healthy: false})
	codes := recCodes(recs)
	assert.Contains(t, codes, "l2-degraded")
}

func TestOptimize_HealthySystemIsQuiet(t *testing.T) {
	recs := Optimize(model.Stats{
		HitsL1:    9900,
		Misses:    100,
		HitRate:   0.99,
		Writes:    100,
		Evictions: 0,
		L2Healthy: true,
	})
	assert.Empty(t, recs)
}

func recCodes(recs []model.Recommendation) []string {
	codes := make([]string, len(recs))
	for i, r := range recs {
		codes[i] = r.Code
	}
	return codes
}
