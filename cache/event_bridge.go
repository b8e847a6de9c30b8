// cache/event_bridge.go
package cache

import (
	"context"
	"fmt"

	"github.com/cloudgate-io/permcache/model"
	"github.com/cloudgate-io/permcache/util"
)

// BindEventBus subscribes the manager to the RBAC mutation topics. The
// handlers only enqueue onto the manager's ordered invalidation loop,
// so bus delivery order is preserved end to end. Applied invalidations
// are republished on TopicInvalidationDone for external consumers such
// as audit pipelines.
func (m *Manager) BindEventBus(bus *util.EventBus) {
	handler := func(ctx context.Context, e util.Event) error {
		ev, ok := e.Payload.(model.MutationEvent)
		if !ok {
			return fmt.Errorf("unexpected payload type for %s: %T", e.Type, e.Payload)
		}
		if err := m.SubmitEvent(ev); err != nil {
			return err
		}
		bus.Publish(ctx, util.TopicInvalidationDone, ev)
		return nil
	}

	bus.Subscribe(util.TopicUserRoleChange, handler)
	bus.Subscribe(util.TopicPermissionUpdate, handler)
	bus.Subscribe(util.TopicTenantStatusChange, handler)
}
