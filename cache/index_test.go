// cache/index_test.go
package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudgate-io/permcache/model"
)

func TestInvalidationIndex_RegisterAcrossAxes(t *testing.T) {
	idx := NewInvalidationIndex()
	req := model.CheckRequest{TenantID: "t1", PrincipalID: "u1", Permission: "read_doc"}

	idx.Register("k1", req)
	assert.True(t, idx.consistent("k1", req))

	idx.Unregister("k1", req)
	assert.False(t, idx.consistent("k1", req))
	assert.Empty(t, idx.Keys())
}

func TestInvalidationIndex_CollectUserDrainsAllAxes(t *testing.T) {
	idx := NewInvalidationIndex()
	target := model.CheckRequest{TenantID: "t1", PrincipalID: "u1", Permission: "read_doc"}
	other := model.CheckRequest{TenantID: "t1", PrincipalID: "u2", Permission: "read_doc"}

	idx.Register("k1", target)
	idx.Register("k2", other)

	affected := idx.CollectUser("u1")
	require.Len(t, affected, 1)
	_, ok := affected["k1"]
	assert.True(t, ok)

	// The key collected via the user axis must be gone from the tenant
	// and permission buckets too, or stale references accumulate.
	assert.False(t, idx.consistent("k1", target))
	assert.True(t, idx.consistent("k2", other))
}

func TestInvalidationIndex_CollectTenantAndPermission(t *testing.T) {
	idx := NewInvalidationIndex()
	a := model.CheckRequest{TenantID: "t1", PrincipalID: "u1", Permission: "read_doc"}
	b := model.CheckRequest{TenantID: "t1", PrincipalID: "u2", Permission: "write_doc"}
	c := model.CheckRequest{TenantID: "t2", PrincipalID: "u3", Permission: "write_doc"}

	idx.Register("ka", a)
	idx.Register("kb", b)
	idx.Register("kc", c)

	affected := idx.CollectTenant("t1")
	assert.Len(t, affected, 2)
	assert.True(t, idx.consistent("kc", c))

	affected = idx.CollectPermission("write_doc")
	assert.Len(t, affected, 1)
	assert.Empty(t, idx.Keys())
}

func TestInvalidationIndex_EpochStaleness(t *testing.T) {
	idx := NewInvalidationIndex()
	req := model.CheckRequest{TenantID: "t1", PrincipalID: "u1", Permission: "read_doc"}

	stamp := idx.Stamp(req)
	assert.False(t, idx.Stale(stamp, req))

	// A user-axis invalidation after the stamp was taken makes the
	// stamp stale, even though no key was registered yet. This is what
	// closes the insert/invalidate race.
	idx.CollectUser("u1")
	assert.True(t, idx.Stale(stamp, req))

	fresh := idx.Stamp(req)
	assert.False(t, idx.Stale(fresh, req))

	idx.CollectTenant("t1")
	assert.True(t, idx.Stale(fresh, req))

	fresh = idx.Stamp(req)
	idx.CollectPermission("read_doc")
	assert.True(t, idx.Stale(fresh, req))

	// Other tuples are unaffected.
	otherReq := model.CheckRequest{TenantID: "t2", PrincipalID: "u2", Permission: "p"}
	otherStamp := idx.Stamp(otherReq)
	assert.False(t, idx.Stale(otherStamp, otherReq))
}

func TestInvalidationIndex_ResetBumpsGlobalEpoch(t *testing.T) {
	idx := NewInvalidationIndex()
	req := model.CheckRequest{TenantID: "t1", PrincipalID: "u1", Permission: "read_doc"}

	idx.Register("k1", req)
	stamp := idx.Stamp(req)

	idx.Reset()

	assert.Empty(t, idx.Keys())
	assert.True(t, idx.Stale(stamp, req))
}
