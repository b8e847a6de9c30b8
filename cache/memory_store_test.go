// cache/memory_store_test.go
package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudgate-io/permcache/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (fc *fakeClock) Now() time.Time {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.now
}

func (fc *fakeClock) Advance(d time.Duration) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.now = fc.now.Add(d)
}

func testEntry(req model.CheckRequest, now time.Time, ttl time.Duration) *model.CacheEntry {
	return &model.CacheEntry{
		Request:   req,
		Decision:  model.Allow([]string{"viewer"}, now),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestMemoryStore_GetSet(t *testing.T) {
	clock := newFakeClock()
	ms := NewMemoryStore(10, 1, clock.Now, nil, nil)

	req := model.CheckRequest{TenantID: "t1", PrincipalID: "u1", Permission: "read_doc"}
	ms.Set("k1", testEntry(req, clock.Now(), time.Minute))

	entry, ok := ms.Get("k1")
	require.True(t, ok)
	assert.True(t, entry.Request.Equal(req))

	_, ok = ms.Get("absent")
	assert.False(t, ok)
}

func TestMemoryStore_LRUEvictsLeastRecentlyUsed(t *testing.T) {
	clock := newFakeClock()
	var evicted []string
	ms := NewMemoryStore(3, 1, clock.Now, nil, func(key string, _ *model.CacheEntry, reason RemovalReason) {
		assert.Equal(t, RemovalEvicted, reason)
		evicted = append(evicted, key)
	})

	req := model.CheckRequest{TenantID: "t1", PrincipalID: "u1", Permission: "p"}
	for i := 1; i <= 3; i++ {
		ms.Set(fmt.Sprintf("k%d", i), testEntry(req, clock.Now(), time.Minute))
	}

	// Deliberate access sequence: touch k1 and k3 so k2 is the LRU.
	_, ok := ms.Get("k1")
	require.True(t, ok)
	_, ok = ms.Get("k3")
	require.True(t, ok)

	ms.Set("k4", testEntry(req, clock.Now(), time.Minute))

	assert.Equal(t, []string{"k2"}, evicted)
	_, ok = ms.Get("k2")
	assert.False(t, ok)
	for _, key := range []string{"k1", "k3", "k4"} {
		_, ok := ms.Get(key)
		assert.True(t, ok, key)
	}
}

func TestMemoryStore_ExpiredEntryIsLazilyRemoved(t *testing.T) {
	clock := newFakeClock()
	var expired []string
	ms := NewMemoryStore(10, 1, clock.Now, nil, func(key string, _ *model.CacheEntry, reason RemovalReason) {
		assert.Equal(t, RemovalExpired, reason)
		expired = append(expired, key)
	})

	req := model.CheckRequest{TenantID: "t1", PrincipalID: "u1", Permission: "p"}
	ms.Set("k1", testEntry(req, clock.Now(), time.Minute))

	clock.Advance(2 * time.Minute)

	_, ok := ms.Get("k1")
	assert.False(t, ok)
	// Removed, not just skipped: the callback fired and the entry is gone.
	assert.Equal(t, []string{"k1"}, expired)
	assert.Equal(t, 0, ms.Len())
}

func TestMemoryStore_SweepExpired(t *testing.T) {
	clock := newFakeClock()
	ms := NewMemoryStore(10, 2, clock.Now, nil, nil)

	req := model.CheckRequest{TenantID: "t1", PrincipalID: "u1", Permission: "p"}
	ms.Set("short", testEntry(req, clock.Now(), time.Minute))
	ms.Set("long", testEntry(req, clock.Now(), time.Hour))

	clock.Advance(5 * time.Minute)

	assert.Equal(t, 1, ms.SweepExpired())
	assert.Equal(t, 1, ms.Len())
	_, ok := ms.Get("long")
	assert.True(t, ok)
}

func TestMemoryStore_ReplaceDoesNotEvict(t *testing.T) {
	clock := newFakeClock()
	evictions, replacements := 0, 0
	ms := NewMemoryStore(1, 1, clock.Now, nil, func(_ string, _ *model.CacheEntry, reason RemovalReason) {
		switch reason {
		case RemovalEvicted:
			evictions++
		case RemovalReplaced:
			replacements++
		}
	})

	req := model.CheckRequest{TenantID: "t1", PrincipalID: "u1", Permission: "p"}
	ms.Set("k1", testEntry(req, clock.Now(), time.Minute))
	ms.Set("k1", testEntry(req, clock.Now(), time.Hour))

	assert.Zero(t, evictions)
	assert.Equal(t, 1, replacements)
	assert.Equal(t, 1, ms.Len())
}

// Insert and removal hooks must fire in mutation order within the shard
// critical section: an insert into a full shard reports the victim's
// removal before the new key's insert.
func TestMemoryStore_HookOrdering(t *testing.T) {
	clock := newFakeClock()
	var log []string
	ms := NewMemoryStore(1, 1, clock.Now,
		func(key string, _ *model.CacheEntry) {
			log = append(log, "add:"+key)
		},
		func(key string, _ *model.CacheEntry, reason RemovalReason) {
			log = append(log, "del:"+key)
			if key == "k2" {
				assert.Equal(t, RemovalDeleted, reason)
			}
		})

	req := model.CheckRequest{TenantID: "t1", PrincipalID: "u1", Permission: "p"}
	ms.Set("k1", testEntry(req, clock.Now(), time.Minute))
	ms.Set("k2", testEntry(req, clock.Now(), time.Minute))
	require.True(t, ms.Delete("k2"))

	assert.Equal(t, []string{"add:k1", "del:k1", "add:k2", "del:k2"}, log)
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	clock := newFakeClock()
	ms := NewMemoryStore(1000, 16, clock.Now, nil, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("g%d-k%d", g, i%50)
				req := model.CheckRequest{TenantID: "t1", PrincipalID: key, Permission: "p"}
				ms.Set(key, testEntry(req, clock.Now(), time.Minute))
				ms.Get(key)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, ms.Len(), ms.Capacity())
}
