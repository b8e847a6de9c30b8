// cache/memory_store.go
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/cloudgate-io/permcache/model"
)

// RemovalReason says why an entry left the store.
type RemovalReason int

const (
	RemovalEvicted RemovalReason = iota
	RemovalExpired
	RemovalReplaced
	RemovalDeleted
)

// InsertFunc is called synchronously, while the owning shard lock is
// held, whenever an entry is inserted or replaces an existing one. The
// callback must not call back into the store.
type InsertFunc func(key string, entry *model.CacheEntry)

// EvictFunc is called synchronously, while the owning shard lock is
// held, whenever an entry leaves the store for any reason. The callback
// must not call back into the store.
type EvictFunc func(key string, entry *model.CacheEntry, reason RemovalReason)

// MemoryStore is the L1 tier: a sharded, bounded LRU+TTL map. Each
// shard owns an independent lock so concurrent checks on the hot path
// contend only within their shard.
type MemoryStore struct {
	shards   []*storeShard
	mask     uint32
	capacity int
	clock    func() time.Time
	onInsert InsertFunc
	onEvict  EvictFunc
}

type storeShard struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	lru      *list.List // front = most recently used
	capacity int
}

type storeNode struct {
	key          string
	entry        *model.CacheEntry
	lastAccessed time.Time
}

// NewMemoryStore builds a store with the given total capacity spread
// over shardCount shards. shardCount is rounded up to a power of two.
func NewMemoryStore(capacity, shardCount int, clock func() time.Time, onInsert InsertFunc, onEvict EvictFunc) *MemoryStore {
	if capacity < 1 {
		capacity = 1
	}
	if shardCount < 1 {
		shardCount = 1
	}
	n := 1
	for n < shardCount {
		n <<= 1
	}
	perShard := capacity / n
	if perShard < 1 {
		perShard = 1
	}
	if clock == nil {
		clock = time.Now
	}
	if onInsert == nil {
		onInsert = func(string, *model.CacheEntry) {}
	}
	if onEvict == nil {
		onEvict = func(string, *model.CacheEntry, RemovalReason) {}
	}
	ms := &MemoryStore{
		shards:   make([]*storeShard, n),
		mask:     uint32(n - 1),
		capacity: perShard * n,
		clock:    clock,
		onInsert: onInsert,
		onEvict:  onEvict,
	}
	for i := range ms.shards {
		ms.shards[i] = &storeShard{
			entries:  make(map[string]*list.Element),
			lru:      list.New(),
			capacity: perShard,
		}
	}
	return ms
}

func (ms *MemoryStore) shard(key string) *storeShard {
	return ms.shards[fnv32a(key)&ms.mask]
}

// Get returns the live entry for key, promoting it to most recently
// used. An expired entry is removed (firing the evict callback) and
// reported as a miss so index bookkeeping stays correct.
func (ms *MemoryStore) Get(key string) (*model.CacheEntry, bool) {
	now := ms.clock()
	s := ms.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	node := elem.Value.(*storeNode)
	if node.entry.Expired(now) {
		delete(s.entries, key)
		s.lru.Remove(elem)
		ms.onEvict(key, node.entry, RemovalExpired)
		return nil, false
	}
	node.lastAccessed = now
	s.lru.MoveToFront(elem)
	return node.entry, true
}

// Set inserts or replaces the entry for key. At capacity the least
// recently used entry in the shard is evicted first. The evict and
// insert callbacks fire inside the same critical section as the map
// mutation, so a concurrent eviction can never interleave between an
// insert and its bookkeeping.
func (ms *MemoryStore) Set(key string, entry *model.CacheEntry) {
	now := ms.clock()
	s := ms.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok {
		node := elem.Value.(*storeNode)
		old := node.entry
		node.entry = entry
		node.lastAccessed = now
		s.lru.MoveToFront(elem)
		ms.onEvict(key, old, RemovalReplaced)
		ms.onInsert(key, entry)
		return
	}

	if s.lru.Len() >= s.capacity {
		back := s.lru.Back()
		if back != nil {
			victim := back.Value.(*storeNode)
			delete(s.entries, victim.key)
			s.lru.Remove(back)
			ms.onEvict(victim.key, victim.entry, RemovalEvicted)
		}
	}

	s.entries[key] = s.lru.PushFront(&storeNode{key: key, entry: entry, lastAccessed: now})
	ms.onInsert(key, entry)
}

// Delete removes key if present, firing the evict callback with
// RemovalDeleted under the shard lock.
func (ms *MemoryStore) Delete(key string) bool {
	s := ms.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[key]
	if !ok {
		return false
	}
	node := elem.Value.(*storeNode)
	delete(s.entries, key)
	s.lru.Remove(elem)
	ms.onEvict(key, node.entry, RemovalDeleted)
	return true
}

// Clear drops every entry without firing callbacks.
func (ms *MemoryStore) Clear() {
	for _, s := range ms.shards {
		s.mu.Lock()
		s.entries = make(map[string]*list.Element)
		s.lru.Init()
		s.mu.Unlock()
	}
}

// Len returns the number of live entries across all shards.
func (ms *MemoryStore) Len() int {
	total := 0
	for _, s := range ms.shards {
		s.mu.Lock()
		total += s.lru.Len()
		s.mu.Unlock()
	}
	return total
}

// Capacity returns the effective total capacity.
func (ms *MemoryStore) Capacity() int {
	return ms.capacity
}

// SweepExpired removes every expired entry, firing the evict callback
// for each, and returns how many were removed. Used by the background
// janitor so TTL expiry frees index buckets without waiting for reads.
func (ms *MemoryStore) SweepExpired() int {
	now := ms.clock()
	removed := 0
	for _, s := range ms.shards {
		s.mu.Lock()
		for elem := s.lru.Back(); elem != nil; {
			prev := elem.Prev()
			node := elem.Value.(*storeNode)
			if node.entry.Expired(now) {
				delete(s.entries, node.key)
				s.lru.Remove(elem)
				ms.onEvict(node.key, node.entry, RemovalExpired)
				removed++
			}
			elem = prev
		}
		s.mu.Unlock()
	}
	return removed
}

// Keys returns a snapshot of all live keys. Intended for integrity
// checks, not the hot path.
func (ms *MemoryStore) Keys() []string {
	var keys []string
	for _, s := range ms.shards {
		s.mu.Lock()
		for k := range s.entries {
			keys = append(keys, k)
		}
		s.mu.Unlock()
	}
	return keys
}

// fnv32a is the 32-bit FNV-1a hash, used only for shard selection.
func fnv32a(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
