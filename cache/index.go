// cache/index.go
package cache

import (
	"sync"

	"github.com/cloudgate-io/permcache/model"
)

// InvalidationIndex maintains three reverse indices (by principal, by
// tenant, by permission) so a mutation event invalidates exactly the
// affected keys in O(k) instead of scanning the whole cache.
//
// It also tracks an invalidation epoch per axis key. Every bucket entry
// keeps the full tuple so a key found through one axis can be removed
// from the other two as well. An entry created with an epoch stamp
// older than the current watermark for any axis of its tuple is stale:
// this closes the race between a concurrent insert and a tenant-wide
// invalidation without blocking the insert path.
type InvalidationIndex struct {
	mu           sync.Mutex
	byUser       map[string]map[string]model.CheckRequest
	byTenant     map[string]map[string]model.CheckRequest
	byPermission map[string]map[string]model.CheckRequest

	globalEpoch uint64
	userEpoch   map[string]uint64
	tenantEpoch map[string]uint64
	permEpoch   map[string]uint64
}

func NewInvalidationIndex() *InvalidationIndex {
	return &InvalidationIndex{
		byUser:       make(map[string]map[string]model.CheckRequest),
		byTenant:     make(map[string]map[string]model.CheckRequest),
		byPermission: make(map[string]map[string]model.CheckRequest),
		userEpoch:    make(map[string]uint64),
		tenantEpoch:  make(map[string]uint64),
		permEpoch:    make(map[string]uint64),
	}
}

// Register records key under all three axes of its tuple.
func (idx *InvalidationIndex) Register(key string, req model.CheckRequest) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	addBucket(idx.byUser, req.PrincipalID, key, req)
	addBucket(idx.byTenant, req.TenantID, key, req)
	addBucket(idx.byPermission, req.Permission, key, req)
}

// Unregister removes key from all three axes.
func (idx *InvalidationIndex) Unregister(key string, req model.CheckRequest) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.unregisterLocked(key, req)
}

func (idx *InvalidationIndex) unregisterLocked(key string, req model.CheckRequest) {
	dropBucket(idx.byUser, req.PrincipalID, key)
	dropBucket(idx.byTenant, req.TenantID, key)
	dropBucket(idx.byPermission, req.Permission, key)
}

// CollectUser bumps the principal's epoch and drains every key
// registered for it, removing each from all three indices. The
// returned map is the set of keys the caller must delete from L1/L2.
func (idx *InvalidationIndex) CollectUser(principalID string) map[string]model.CheckRequest {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.userEpoch[principalID]++
	return idx.collectLocked(idx.byUser, principalID)
}

// CollectTenant bumps the tenant's epoch and drains its bucket.
func (idx *InvalidationIndex) CollectTenant(tenantID string) map[string]model.CheckRequest {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.tenantEpoch[tenantID]++
	return idx.collectLocked(idx.byTenant, tenantID)
}

// CollectPermission bumps the permission's epoch and drains its bucket.
func (idx *InvalidationIndex) CollectPermission(permission string) map[string]model.CheckRequest {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.permEpoch[permission]++
	return idx.collectLocked(idx.byPermission, permission)
}

func (idx *InvalidationIndex) collectLocked(axis map[string]map[string]model.CheckRequest, axisKey string) map[string]model.CheckRequest {
	bucket := axis[axisKey]
	if len(bucket) == 0 {
		return nil
	}
	affected := make(map[string]model.CheckRequest, len(bucket))
	for key, req := range bucket {
		affected[key] = req
	}
	for key, req := range affected {
		idx.unregisterLocked(key, req)
	}
	return affected
}

// Reset bumps the global epoch and drops every bucket. Used by
// clear_all; L2 entries survive the wipe but their stamps are now
// behind the global watermark, so reads re-validate them.
func (idx *InvalidationIndex) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.globalEpoch++
	idx.byUser = make(map[string]map[string]model.CheckRequest)
	idx.byTenant = make(map[string]map[string]model.CheckRequest)
	idx.byPermission = make(map[string]map[string]model.CheckRequest)
}

// Stamp returns the current epoch watermarks for a tuple. Taken before
// the evaluator call on the miss path so an invalidation arriving
// mid-evaluation marks the inserted entry stale.
func (idx *InvalidationIndex) Stamp(req model.CheckRequest) model.EpochStamp {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return model.EpochStamp{
		Global:     idx.globalEpoch,
		User:       idx.userEpoch[req.PrincipalID],
		Tenant:     idx.tenantEpoch[req.TenantID],
		Permission: idx.permEpoch[req.Permission],
	}
}

// Stale reports whether an entry's stamp is behind the current
// watermarks for its tuple.
func (idx *InvalidationIndex) Stale(stamp model.EpochStamp, req model.CheckRequest) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return stamp.Global < idx.globalEpoch ||
		stamp.User < idx.userEpoch[req.PrincipalID] ||
		stamp.Tenant < idx.tenantEpoch[req.TenantID] ||
		stamp.Permission < idx.permEpoch[req.Permission]
}

// Keys returns a snapshot of every registered key. Intended for
// integrity checks, not the hot path.
func (idx *InvalidationIndex) Keys() map[string]model.CheckRequest {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	all := make(map[string]model.CheckRequest)
	for _, bucket := range idx.byUser {
		for key, req := range bucket {
			all[key] = req
		}
	}
	return all
}

// consistent reports whether key appears in exactly the buckets implied
// by its tuple. Used by tests.
func (idx *InvalidationIndex) consistent(key string, req model.CheckRequest) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	_, inUser := idx.byUser[req.PrincipalID][key]
	_, inTenant := idx.byTenant[req.TenantID][key]
	_, inPerm := idx.byPermission[req.Permission][key]
	return inUser && inTenant && inPerm
}

func addBucket(axis map[string]map[string]model.CheckRequest, axisKey, key string, req model.CheckRequest) {
	bucket, ok := axis[axisKey]
	if !ok {
		bucket = make(map[string]model.CheckRequest)
		axis[axisKey] = bucket
	}
	bucket[key] = req
}

func dropBucket(axis map[string]map[string]model.CheckRequest, axisKey, key string) {
	bucket, ok := axis[axisKey]
	if !ok {
		return
	}
	delete(bucket, key)
	if len(bucket) == 0 {
		delete(axis, axisKey)
	}
}
