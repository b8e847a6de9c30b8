// cache/redis_store.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cloudgate-io/permcache/errors"
	logger "github.com/cloudgate-io/permcache/logging"
	"github.com/cloudgate-io/permcache/model"
)

// DistributedStore is the L2 tier consumed by the manager. It is
// strictly best-effort: every failure surfaces as a miss, never as an
// error on the check path.
type DistributedStore interface {
	Get(ctx context.Context, key string) (*model.CacheEntry, bool)
	Set(ctx context.Context, key string, entry *model.CacheEntry)
	Delete(ctx context.Context, keys ...string)
	Healthy() bool
	Close() error
}

// RedisCommander is the slice of the go-redis client the store needs.
// Narrowed for test fakes; *redis.Client satisfies it.
type RedisCommander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisStoreOptions configure the L2 tier.
type RedisStoreOptions struct {
	// OpTimeout bounds every network call. Exceeding it counts as a
	// failure and the call degrades to a miss.
	OpTimeout time.Duration
	// TTL applied to every written entry.
	TTL time.Duration
	// FailureThreshold consecutive failures flip the store unhealthy.
	FailureThreshold int
	// ProbeInterval is how often an unhealthy store is re-pinged.
	ProbeInterval time.Duration
	// KeyPrefix namespaces cache keys in the shared store.
	KeyPrefix string
}

func (o *RedisStoreOptions) withDefaults() {
	if o.OpTimeout <= 0 {
		o.OpTimeout = 50 * time.Millisecond
	}
	if o.TTL <= 0 {
		o.TTL = 5 * time.Minute
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 3
	}
	if o.ProbeInterval <= 0 {
		o.ProbeInterval = 5 * time.Second
	}
	if o.KeyPrefix == "" {
		o.KeyPrefix = "permcache:decision:"
	}
}

// RedisStore is the Redis-backed DistributedStore. On sustained
// failures it flips unhealthy, stops issuing reads and writes, and a
// background probe re-pings until the backend answers again.
type RedisStore struct {
	client  RedisCommander
	opts    RedisStoreOptions
	healthy atomic.Bool
	fails   atomic.Int32
	onError func()

	probeStop chan struct{}
	probeDone chan struct{}
}

// NewRedisStore wraps an existing client. onError is invoked once per
// failed operation so the stats collector can count L2 errors; it may
// be nil.
func NewRedisStore(client RedisCommander, opts RedisStoreOptions, onError func()) *RedisStore {
	opts.withDefaults()
	if onError == nil {
		onError = func() {}
	}
	rs := &RedisStore{
		client:    client,
		opts:      opts,
		onError:   onError,
		probeStop: make(chan struct{}),
		probeDone: make(chan struct{}),
	}
	rs.healthy.Store(true)
	go rs.probeLoop()
	return rs
}

// NewRedisClient builds a go-redis client from connection settings,
// verifying reachability with a bounded ping.
func NewRedisClient(addr, password string, db, poolSize int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	logger.Info("Successfully connected to Redis", zap.String("addr", addr))
	return client, nil
}

// Get fetches and decodes an entry. Any error, timeout or decode
// failure is a miss.
func (rs *RedisStore) Get(ctx context.Context, key string) (*model.CacheEntry, bool) {
	if !rs.healthy.Load() {
		return nil, false
	}
	opCtx, cancel := context.WithTimeout(ctx, rs.opts.OpTimeout)
	defer cancel()

	payload, err := rs.client.Get(opCtx, rs.opts.KeyPrefix+key).Result()
	if err == redis.Nil {
		rs.recordSuccess()
		return nil, false
	} else if err != nil {
		rs.recordFailure(err)
		return nil, false
	}
	rs.recordSuccess()

	var entry model.CacheEntry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		logger.Warn("Discarding undecodable L2 entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &entry, true
}

// Set writes an entry with the configured TTL. Callers run it from a
// fire-and-forget goroutine so a slow backend never delays a check.
func (rs *RedisStore) Set(ctx context.Context, key string, entry *model.CacheEntry) {
	if !rs.healthy.Load() {
		return
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		logger.Error("Failed to marshal cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, rs.opts.OpTimeout)
	defer cancel()

	if err := rs.client.Set(opCtx, rs.opts.KeyPrefix+key, payload, rs.opts.TTL).Err(); err != nil {
		rs.recordFailure(err)
		return
	}
	rs.recordSuccess()
}

// Delete removes keys best-effort.
func (rs *RedisStore) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 || !rs.healthy.Load() {
		return
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = rs.opts.KeyPrefix + k
	}
	opCtx, cancel := context.WithTimeout(ctx, rs.opts.OpTimeout)
	defer cancel()

	if err := rs.client.Del(opCtx, prefixed...).Err(); err != nil {
		rs.recordFailure(err)
		return
	}
	rs.recordSuccess()
}

// Healthy reports whether the store is currently accepting traffic.
func (rs *RedisStore) Healthy() bool {
	return rs.healthy.Load()
}

// SetErrorHook replaces the per-failure callback. Called during wiring,
// before the store takes traffic.
func (rs *RedisStore) SetErrorHook(hook func()) {
	if hook != nil {
		rs.onError = hook
	}
}

// Close stops the background probe.
func (rs *RedisStore) Close() error {
	close(rs.probeStop)
	<-rs.probeDone
	return nil
}

func (rs *RedisStore) recordFailure(err error) {
	rs.onError()
	fails := rs.fails.Add(1)
	if int(fails) >= rs.opts.FailureThreshold && rs.healthy.CompareAndSwap(true, false) {
		logger.Warn("Distributed store marked unhealthy, degrading to L1 only",
			zap.Int32("consecutiveFailures", fails),
			zap.Error(err))
	}
}

func (rs *RedisStore) recordSuccess() {
	rs.fails.Store(0)
}

func (rs *RedisStore) probeLoop() {
	defer close(rs.probeDone)
	ticker := time.NewTicker(rs.opts.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rs.probeOnce()
		case <-rs.probeStop:
			return
		}
	}
}

// probeOnce re-pings an unhealthy backend and restores it on success.
func (rs *RedisStore) probeOnce() {
	if rs.healthy.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), rs.opts.OpTimeout)
	defer cancel()

	if err := rs.client.Ping(ctx).Err(); err != nil {
		logger.Debug("Distributed store probe failed", zap.Error(err))
		return
	}
	rs.fails.Store(0)
	if rs.healthy.CompareAndSwap(false, true) {
		logger.Info("Distributed store recovered, resuming L2 traffic")
	}
}
