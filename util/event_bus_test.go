// util/event_bus_test.go
package util_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	logger "github.com/cloudgate-io/permcache/logging"
	"github.com/cloudgate-io/permcache/util"
)

func TestMain(m *testing.M) {
	logger.InitTestLogger()
	os.Exit(m.Run())
}

func TestEventBus_DeliversInOrder(t *testing.T) {
	bus := util.NewEventBus()

	var got []int
	bus.Subscribe(util.TopicUserRoleChange, func(_ context.Context, e util.Event) error {
		got = append(got, e.Payload.(int))
		return nil
	})

	for i := 0; i < 10; i++ {
		bus.Publish(context.Background(), util.TopicUserRoleChange, i)
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	bus := util.NewEventBus()

	first, second := 0, 0
	bus.Subscribe(util.TopicPermissionUpdate, func(context.Context, util.Event) error {
		first++
		return nil
	})
	bus.Subscribe(util.TopicPermissionUpdate, func(context.Context, util.Event) error {
		second++
		return nil
	})

	bus.Publish(context.Background(), util.TopicPermissionUpdate, "perm")

	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestEventBus_UnknownTopicIsNoop(t *testing.T) {
	bus := util.NewEventBus()
	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), "nobody.listens", "payload")
	})
}

func TestEventBus_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	bus := util.NewEventBus()

	delivered := false
	bus.Subscribe(util.TopicTenantStatusChange, func(context.Context, util.Event) error {
		return errors.New("handler failure")
	})
	bus.Subscribe(util.TopicTenantStatusChange, func(context.Context, util.Event) error {
		delivered = true
		return nil
	})

	bus.Publish(context.Background(), util.TopicTenantStatusChange, "t1")
	assert.True(t, delivered)
}
