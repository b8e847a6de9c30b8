// cache/manager.go
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	perm_errors "github.com/cloudgate-io/permcache/errors"
	"github.com/cloudgate-io/permcache/evaluator"
	logger "github.com/cloudgate-io/permcache/logging"
	"github.com/cloudgate-io/permcache/model"
)

// ICacheManager is the public surface consumed by authorization
// middleware and the REST layer.
type ICacheManager interface {
	CheckPermission(ctx context.Context, req model.CheckRequest) (model.Decision, error)
	CheckPermissionsBatch(ctx context.Context, reqs []model.CheckRequest) ([]model.Decision, error)
	Warm(ctx context.Context, principalID, tenantID string, permissions []string) error
	InvalidateUser(principalID string) error
	InvalidateTenant(tenantID string) error
	InvalidatePermission(permission string) error
	ClearAll() error
	Statistics() model.Stats
	Recommendations() []model.Recommendation
	L2Healthy() bool
}

// Options configure a Manager. Evaluator is required; everything else
// has working defaults.
type Options struct {
	Evaluator   evaluator.Client
	Distributed DistributedStore

	L1Capacity      int
	L1Shards        int
	TTL             time.Duration
	JanitorInterval time.Duration
	EventBufferSize int

	BatchConcurrency int
	WarmConcurrency  int

	// FailOpenPermissions lists permissions allowed to fail open when
	// the evaluator is unreachable. Everything else fails closed.
	FailOpenPermissions []string

	// Clock is injected for tests; defaults to time.Now.
	Clock func() time.Time
}

func (o *Options) withDefaults() error {
	if o.Evaluator == nil {
		return fmt.Errorf("cache manager requires an evaluator client")
	}
	if o.L1Capacity <= 0 {
		o.L1Capacity = 100000
	}
	if o.L1Shards <= 0 {
		o.L1Shards = 16
	}
	if o.TTL <= 0 {
		o.TTL = 5 * time.Minute
	}
	if o.JanitorInterval <= 0 {
		o.JanitorInterval = time.Minute
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = 1024
	}
	if o.BatchConcurrency <= 0 {
		o.BatchConcurrency = 8
	}
	if o.WarmConcurrency <= 0 {
		o.WarmConcurrency = 4
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return nil
}

type managerEvent struct {
	ev   model.MutationEvent
	done chan struct{}
}

// Manager orchestrates the lookup chain (L1 → L2 → evaluator), owns
// the invalidation loop and exposes the public API. All L1 and index
// mutation happens on Manager code paths only.
type Manager struct {
	codec *KeyCodec
	l1    *MemoryStore
	l2    DistributedStore
	index *InvalidationIndex
	eval  evaluator.Client
	stats *StatsCollector
	clock func() time.Time

	ttl      time.Duration
	failOpen map[string]struct{}

	// origin identifies this process in epoch stamps. Stamps taken from
	// another process's counters are not comparable to ours.
	origin string

	batchConcurrency int
	warmConcurrency  int

	events chan managerEvent
	done   chan struct{}
	closed chan struct{}
}

// NewManager wires the cache tiers around the injected evaluator and
// starts the invalidation loop and expiry janitor.
func NewManager(opts Options) (*Manager, error) {
	if err := opts.withDefaults(); err != nil {
		return nil, err
	}

	m := &Manager{
		codec:            NewKeyCodec(),
		l2:               opts.Distributed,
		index:            NewInvalidationIndex(),
		eval:             opts.Evaluator,
		stats:            NewStatsCollector(opts.Clock),
		clock:            opts.Clock,
		ttl:              opts.TTL,
		failOpen:         make(map[string]struct{}, len(opts.FailOpenPermissions)),
		origin:           uuid.NewString(),
		batchConcurrency: opts.BatchConcurrency,
		warmConcurrency:  opts.WarmConcurrency,
		events:           make(chan managerEvent, opts.EventBufferSize),
		done:             make(chan struct{}),
		closed:           make(chan struct{}),
	}
	for _, p := range opts.FailOpenPermissions {
		m.failOpen[p] = struct{}{}
	}
	if hooked, ok := opts.Distributed.(interface{ SetErrorHook(func()) }); ok {
		hooked.SetErrorHook(m.stats.RecordL2Error)
	}

	// Both callbacks run inside the shard critical section, so a store
	// mutation and its index mutation can never be observed apart: a
	// concurrent eviction cannot interleave between an insert and its
	// registration.
	m.l1 = NewMemoryStore(opts.L1Capacity, opts.L1Shards, opts.Clock,
		func(key string, entry *model.CacheEntry) {
			m.index.Register(key, entry.Request)
		},
		func(key string, entry *model.CacheEntry, reason RemovalReason) {
			m.index.Unregister(key, entry.Request)
			switch reason {
			case RemovalEvicted:
				m.stats.RecordEviction()
			case RemovalExpired:
				m.stats.RecordExpiration()
			}
		})

	go m.invalidationLoop()
	go m.janitorLoop(opts.JanitorInterval)
	return m, nil
}

// CheckPermission answers a single authorization check: L1, then L2,
// then the authoritative evaluator.
func (m *Manager) CheckPermission(ctx context.Context, req model.CheckRequest) (model.Decision, error) {
	start := time.Now()

	key, err := m.codec.Encode(req)
	if err != nil {
		return model.Decision{}, err
	}

	if decision, ok := m.lookupL1(key, req); ok {
		m.stats.RecordHitL1(time.Since(start))
		return decision, nil
	}

	if decision, ok := m.lookupL2(ctx, key, req); ok {
		m.stats.RecordHitL2(time.Since(start))
		return decision, nil
	}

	decision, err := m.evaluateAndStore(ctx, key, req)
	m.stats.RecordMiss(time.Since(start))
	return decision, err
}

// lookupL1 returns a fresh, tuple-verified decision from the in-process
// tier. A digest collision (stored tuple differs from the requested
// one) is a miss; the entry belongs to the other tuple and stays. A
// stale entry is removed and re-validated downstream.
func (m *Manager) lookupL1(key string, req model.CheckRequest) (model.Decision, bool) {
	entry, ok := m.l1.Get(key)
	if !ok {
		return model.Decision{}, false
	}
	if !entry.Request.Equal(req) {
		logger.Warn("Cache key digest collision detected, treating as miss",
			zap.String("key", key),
			zap.String("tenantID", req.TenantID))
		return model.Decision{}, false
	}
	if m.index.Stale(entry.Stamp, req) {
		m.l1.Delete(key)
		m.stats.RecordStaleRevalidation()
		return model.Decision{}, false
	}
	return entry.Decision, true
}

// lookupL2 consults the distributed tier and promotes hits into L1.
func (m *Manager) lookupL2(ctx context.Context, key string, req model.CheckRequest) (model.Decision, bool) {
	if m.l2 == nil || !m.l2.Healthy() {
		return model.Decision{}, false
	}
	entry, ok := m.l2.Get(ctx, key)
	if !ok {
		return model.Decision{}, false
	}
	if !entry.Request.Equal(req) {
		logger.Warn("Cache key digest collision in distributed store, treating as miss",
			zap.String("key", key))
		return model.Decision{}, false
	}
	if entry.Expired(m.clock()) {
		m.stats.RecordStaleRevalidation()
		go m.l2.Delete(context.Background(), key)
		return model.Decision{}, false
	}
	if entry.Stamp.Origin == m.origin {
		if m.index.Stale(entry.Stamp, req) {
			m.stats.RecordStaleRevalidation()
			go m.l2.Delete(context.Background(), key)
			return model.Decision{}, false
		}
	} else {
		// Written by another replica, whose counters are not comparable
		// to ours. Re-stamp against the local watermarks; cross-replica
		// staleness is bounded by the event-driven delete and the TTL.
		promoted := *entry
		promoted.Stamp = m.stampFor(req)
		entry = &promoted
	}
	m.l1.Set(key, entry)
	return entry.Decision, true
}

// stampFor takes the current local watermarks for a tuple, tagged with
// this process's origin.
func (m *Manager) stampFor(req model.CheckRequest) model.EpochStamp {
	stamp := m.index.Stamp(req)
	stamp.Origin = m.origin
	return stamp
}

// evaluateAndStore runs the miss path: the epoch stamp is taken before
// the evaluator call so an invalidation arriving mid-evaluation marks
// the inserted entry stale rather than letting it outlive the event.
func (m *Manager) evaluateAndStore(ctx context.Context, key string, req model.CheckRequest) (model.Decision, error) {
	stamp := m.stampFor(req)

	decision, err := m.eval.Evaluate(ctx, req)
	if err != nil {
		return m.applyFailPolicy(req, err)
	}

	now := m.clock()
	entry := &model.CacheEntry{
		Request:        req,
		Decision:       decision,
		Stamp:          stamp,
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.ttl),
		LastAccessedAt: now,
	}
	m.store(ctx, key, entry)
	return decision, nil
}

// store populates L1 synchronously (the insert hook registers the key
// in the index under the shard lock) and L2 asynchronously, so a slow
// distributed tier never adds latency to the caller.
func (m *Manager) store(ctx context.Context, key string, entry *model.CacheEntry) {
	m.l1.Set(key, entry)
	m.stats.RecordWrite()
	if m.l2 != nil {
		go m.l2.Set(context.WithoutCancel(ctx), key, entry)
	}
}

// applyFailPolicy converts an evaluator failure into the configured
// degraded decision: fail-open for allow-listed permissions, otherwise
// fail-closed with a generic error that exposes no internal detail.
func (m *Manager) applyFailPolicy(req model.CheckRequest, evalErr error) (model.Decision, error) {
	m.stats.RecordEvaluatorError()
	logger.Error("Evaluator call failed",
		zap.String("tenantID", req.TenantID),
		zap.String("principalID", req.PrincipalID),
		zap.String("permission", req.Permission),
		zap.Error(evalErr))

	if _, ok := m.failOpen[req.Permission]; ok {
		m.stats.RecordFailOpen()
		return model.Allow(nil, m.clock()), nil
	}
	return model.Deny("permission check failed", m.clock()), perm_errors.ErrPermissionCheckFailed
}

// CheckPermissionsBatch answers each request from cache where possible
// and resolves the misses with one batched evaluator call when the
// client supports it, else bounded concurrent per-item calls. Failed
// items carry the per-item fail policy decision; the returned slice is
// aligned with the input.
func (m *Manager) CheckPermissionsBatch(ctx context.Context, reqs []model.CheckRequest) ([]model.Decision, error) {
	decisions := make([]model.Decision, len(reqs))
	var missIdx []int

	for i, req := range reqs {
		start := time.Now()
		key, err := m.codec.Encode(req)
		if err != nil {
			return nil, err
		}
		if d, ok := m.lookupL1(key, req); ok {
			m.stats.RecordHitL1(time.Since(start))
			decisions[i] = d
			continue
		}
		if d, ok := m.lookupL2(ctx, key, req); ok {
			m.stats.RecordHitL2(time.Since(start))
			decisions[i] = d
			continue
		}
		missIdx = append(missIdx, i)
	}

	if len(missIdx) == 0 {
		return decisions, nil
	}

	if batch, ok := m.eval.(evaluator.BatchClient); ok {
		if err := m.resolveMissesBatched(ctx, batch, reqs, missIdx, decisions); err == nil {
			return decisions, nil
		}
		// Batched call failed as a whole; degrade to per-item calls so
		// the per-item fail policy applies.
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.batchConcurrency)
	for _, i := range missIdx {
		i := i
		g.Go(func() error {
			start := time.Now()
			key, _ := m.codec.Encode(reqs[i])
			d, err := m.evaluateAndStore(gctx, key, reqs[i])
			m.stats.RecordMiss(time.Since(start))
			if err != nil && d.Effect == "" {
				return err
			}
			decisions[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return decisions, nil
}

func (m *Manager) resolveMissesBatched(ctx context.Context, batch evaluator.BatchClient, reqs []model.CheckRequest, missIdx []int, decisions []model.Decision) error {
	missReqs := make([]model.CheckRequest, len(missIdx))
	stamps := make([]model.EpochStamp, len(missIdx))
	for n, i := range missIdx {
		missReqs[n] = reqs[i]
		stamps[n] = m.stampFor(reqs[i])
	}

	start := time.Now()
	results, err := batch.EvaluateBatch(ctx, missReqs)
	if err != nil {
		m.stats.RecordEvaluatorError()
		logger.Warn("Batched evaluator call failed, degrading to per-item calls", zap.Error(err))
		return err
	}

	now := m.clock()
	elapsed := time.Since(start)
	for n, i := range missIdx {
		key, _ := m.codec.Encode(missReqs[n])
		entry := &model.CacheEntry{
			Request:        missReqs[n],
			Decision:       results[n],
			Stamp:          stamps[n],
			CreatedAt:      now,
			ExpiresAt:      now.Add(m.ttl),
			LastAccessedAt: now,
		}
		m.store(ctx, key, entry)
		m.stats.RecordMiss(elapsed)
		decisions[i] = results[n]
	}
	return nil
}

// Warm proactively runs the miss path for a known permission set, for
// example right after login, so the first real checks are hits.
// Individual evaluator failures are logged and skipped; warming is
// best-effort.
func (m *Manager) Warm(ctx context.Context, principalID, tenantID string, permissions []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.warmConcurrency)
	for _, permission := range permissions {
		req := model.CheckRequest{
			TenantID:    tenantID,
			PrincipalID: principalID,
			Permission:  permission,
		}
		g.Go(func() error {
			key, err := m.codec.Encode(req)
			if err != nil {
				return err
			}
			if _, ok := m.lookupL1(key, req); ok {
				return nil
			}
			if _, err := m.evaluateAndStore(gctx, key, req); err != nil {
				logger.Warn("Warm load failed",
					zap.String("principalID", principalID),
					zap.String("permission", req.Permission),
					zap.Error(err))
				return nil
			}
			m.stats.RecordWarmLoad()
			return nil
		})
	}
	return g.Wait()
}

// InvalidateUser drops every cached decision for a principal. It
// returns after the invalidation has been applied.
func (m *Manager) InvalidateUser(principalID string) error {
	return m.submitAndWait(model.MutationEvent{
		Type:        model.EventUserRoleChange,
		PrincipalID: principalID,
	})
}

// InvalidateTenant drops every cached decision for a tenant.
func (m *Manager) InvalidateTenant(tenantID string) error {
	return m.submitAndWait(model.MutationEvent{
		Type:     model.EventTenantStatusChange,
		TenantID: tenantID,
	})
}

// InvalidatePermission drops every cached decision for a permission.
func (m *Manager) InvalidatePermission(permission string) error {
	return m.submitAndWait(model.MutationEvent{
		Type:       model.EventPermissionUpdate,
		Permission: permission,
	})
}

// ClearAll wipes L1 and bumps the global epoch so surviving L2 entries
// re-validate on their next read.
func (m *Manager) ClearAll() error {
	return m.submitAndWait(model.MutationEvent{Type: model.EventClearAll})
}

// SubmitEvent enqueues an externally produced RBAC mutation event
// without waiting for it to be applied. Events are applied in arrival
// order by a single processing loop.
func (m *Manager) SubmitEvent(ev model.MutationEvent) error {
	return m.enqueue(managerEvent{ev: m.fillEvent(ev)})
}

// Flush blocks until every previously submitted event has been applied.
func (m *Manager) Flush() error {
	done := make(chan struct{})
	if err := m.enqueue(managerEvent{ev: m.fillEvent(model.MutationEvent{Type: ""}), done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-m.done:
		return perm_errors.ErrManagerClosed
	}
}

func (m *Manager) submitAndWait(ev model.MutationEvent) error {
	done := make(chan struct{})
	if err := m.enqueue(managerEvent{ev: m.fillEvent(ev), done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-m.done:
		return perm_errors.ErrManagerClosed
	}
}

func (m *Manager) fillEvent(ev model.MutationEvent) model.MutationEvent {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = m.clock()
	}
	return ev
}

func (m *Manager) enqueue(item managerEvent) error {
	select {
	case <-m.done:
		return perm_errors.ErrManagerClosed
	default:
	}
	select {
	case m.events <- item:
		return nil
	case <-m.done:
		return perm_errors.ErrManagerClosed
	}
}

// invalidationLoop applies mutation events one at a time, preserving
// arrival order for a given tenant/user.
func (m *Manager) invalidationLoop() {
	for {
		select {
		case item := <-m.events:
			m.applyEvent(item.ev)
			if item.done != nil {
				close(item.done)
			}
		case <-m.done:
			close(m.closed)
			return
		}
	}
}

func (m *Manager) applyEvent(ev model.MutationEvent) {
	var affected map[string]model.CheckRequest

	switch ev.Type {
	case model.EventUserRoleChange:
		affected = m.index.CollectUser(ev.PrincipalID)
	case model.EventTenantStatusChange:
		affected = m.index.CollectTenant(ev.TenantID)
	case model.EventPermissionUpdate:
		affected = m.index.CollectPermission(ev.Permission)
	case model.EventClearAll:
		dropped := m.l1.Len()
		m.index.Reset()
		m.l1.Clear()
		m.stats.RecordInvalidations(dropped)
		logger.Info("Cache cleared", zap.String("eventID", ev.ID), zap.Int("dropped", dropped))
		return
	case "":
		// Flush sentinel.
		return
	default:
		logger.Warn("Ignoring unknown mutation event type",
			zap.String("eventID", ev.ID),
			zap.String("type", string(ev.Type)))
		return
	}

	if len(affected) == 0 {
		return
	}
	keys := make([]string, 0, len(affected))
	for key := range affected {
		m.l1.Delete(key)
		keys = append(keys, key)
	}
	if m.l2 != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		m.l2.Delete(ctx, keys...)
		cancel()
	}
	m.stats.RecordInvalidations(len(affected))
	logger.Info("Invalidation applied",
		zap.String("eventID", ev.ID),
		zap.String("type", string(ev.Type)),
		zap.Int("affected", len(affected)))
}

func (m *Manager) janitorLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if removed := m.l1.SweepExpired(); removed > 0 {
				logger.Debug("Expired entries swept", zap.Int("removed", removed))
			}
		case <-m.done:
			return
		}
	}
}

// Statistics returns a point-in-time counters snapshot.
func (m *Manager) Statistics() model.Stats {
	return m.stats.Snapshot(m.l1.Len(), m.l1.Capacity(), m.L2Healthy())
}

// Recommendations runs the optimizer over the current snapshot.
func (m *Manager) Recommendations() []model.Recommendation {
	return Optimize(m.Statistics())
}

// L2Healthy reports the distributed tier's health flag. A deployment
// without an L2 is never considered degraded.
func (m *Manager) L2Healthy() bool {
	if m.l2 == nil {
		return true
	}
	return m.l2.Healthy()
}

// Close stops the invalidation loop and janitor. In-flight checks
// finish; new invalidations fail with ErrManagerClosed.
func (m *Manager) Close() error {
	select {
	case <-m.done:
		return nil
	default:
	}
	close(m.done)
	<-m.closed
	if m.l2 != nil {
		return m.l2.Close()
	}
	return nil
}
