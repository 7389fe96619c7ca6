package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sangrene/flexible-data-relay/jsonschema"
)

func TestTopicDeliversInPublishOrder(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	var mu sync.Mutex
	var got []string
	bus.SchemaUpdated.Subscribe("recorder", func(ev SchemaUpdated) {
		mu.Lock()
		got = append(got, ev.Tenant)
		mu.Unlock()
	})

	for _, tenant := range []string{"t1", "t2", "t3", "t4"} {
		bus.SchemaUpdated.Publish(SchemaUpdated{Tenant: tenant})
	}
	require.True(t, bus.Drain(time.Second))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"t1", "t2", "t3", "t4"}, got)
}

func TestTopicFansOutToAllSubscribers(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	var first, second sync.WaitGroup
	first.Add(1)
	second.Add(1)
	bus.EntityMutated.Subscribe("first", func(EntityMutated) { first.Done() })
	bus.EntityMutated.Subscribe("second", func(EntityMutated) { second.Done() })

	bus.EntityMutated.Publish(EntityMutated{
		Action:     ActionCreated,
		Tenant:     "t1",
		EntityName: "sensors",
		Entity:     map[string]any{"id": "1"},
	})

	first.Wait()
	second.Wait()
}

func TestSlowSubscriberDoesNotBlockPeers(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	release := make(chan struct{})
	bus.EntityMutated.Subscribe("slow", func(EntityMutated) { <-release })

	fast := make(chan struct{}, 1)
	bus.EntityMutated.Subscribe("fast", func(EntityMutated) { fast <- struct{}{} })

	bus.EntityMutated.Publish(EntityMutated{Action: ActionUpdated, Tenant: "t1"})

	select {
	case <-fast:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber starved by slow peer")
	}
	close(release)
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	bus := NewBus(nil)
	called := false
	bus.TenantCreated.Subscribe("x", func(TenantCreated) { called = true })
	bus.Close()

	bus.TenantCreated.Publish(TenantCreated{TenantName: "t1"})
	assert.False(t, called)
}

func TestCloseWaitsForQueuedEvents(t *testing.T) {
	bus := NewBus(nil)

	var mu sync.Mutex
	count := 0
	bus.SchemaUpdated.Subscribe("counter", func(SchemaUpdated) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	schema := jsonschema.InferTitled("c", map[string]any{"a": "x"})
	for i := 0; i < 100; i++ {
		bus.SchemaUpdated.Publish(SchemaUpdated{Tenant: "t1", Schema: schema})
	}
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 100, count)
}
