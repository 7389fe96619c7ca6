// Package event provides the in-process publish/subscribe bus that links
// the entity write path to the schema cache and the subscription fan-out.
//
// The bus is an explicit dependency owned by the composition root, never a
// package-level singleton. Each topic delivers events to every subscriber
// in publish order; subscribers run on their own goroutine behind a
// buffered queue so a slow subscriber does not stall the publisher or its
// peers (up to the queue capacity).
package event

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sangrene/flexible-data-relay/jsonschema"
)

// EntityAction discriminates create from update notifications.
type EntityAction string

const (
	// ActionCreated marks the first write of an entity.
	ActionCreated EntityAction = "created"
	// ActionUpdated marks a subsequent write of an existing entity.
	ActionUpdated EntityAction = "updated"
)

// SchemaUpdated is published after a reconciled schema has been persisted.
type SchemaUpdated struct {
	Tenant string
	Schema *jsonschema.Schema
}

// EntityMutated is published after every entity write, including transient
// writes that are never stored.
type EntityMutated struct {
	Action     EntityAction
	Tenant     string
	EntityName string
	Entity     map[string]any
}

// TenantCreated is published once when a tenant is provisioned.
type TenantCreated struct {
	TenantID   string
	TenantName string
}

// Bus groups the typed topics of the relay.
type Bus struct {
	SchemaUpdated *Topic[SchemaUpdated]
	EntityMutated *Topic[EntityMutated]
	TenantCreated *Topic[TenantCreated]
}

// NewBus creates a bus with all topics ready for subscription.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		SchemaUpdated: newTopic[SchemaUpdated]("entity-schema.updated", logger),
		EntityMutated: newTopic[EntityMutated]("entity.mutated", logger),
		TenantCreated: newTopic[TenantCreated]("tenant.created", logger),
	}
}

// Close shuts down every topic, waiting for queued events to be handled.
func (b *Bus) Close() {
	b.SchemaUpdated.Close()
	b.EntityMutated.Close()
	b.TenantCreated.Close()
}

// Drain blocks until every topic's queues are empty or the timeout elapses.
// Intended for tests and for graceful shutdown ordering.
func (b *Bus) Drain(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if b.SchemaUpdated.idle() && b.EntityMutated.idle() && b.TenantCreated.idle() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

const subscriberQueueSize = 1024

// Topic delivers events of one type to its subscribers in publish order.
type Topic[T any] struct {
	name   string
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers []*subscriber[T]
	closed      bool

	pending atomic.Int64
}

type subscriber[T any] struct {
	name    string
	queue   chan T
	done    chan struct{}
	handler func(T)
}

func newTopic[T any](name string, logger *slog.Logger) *Topic[T] {
	return &Topic[T]{name: name, logger: logger}
}

// Subscribe registers a handler under a diagnostic name. The handler runs
// on its own goroutine and receives events in publish order.
func (t *Topic[T]) Subscribe(name string, handler func(T)) {
	sub := &subscriber[T]{
		name:    name,
		queue:   make(chan T, subscriberQueueSize),
		done:    make(chan struct{}),
		handler: handler,
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.logger.Warn("subscribe on closed topic ignored", "topic", t.name, "subscriber", name)
		return
	}
	t.subscribers = append(t.subscribers, sub)
	t.mu.Unlock()

	go func() {
		defer close(sub.done)
		for ev := range sub.queue {
			sub.handler(ev)
			t.pending.Add(-1)
		}
	}()
}

// Publish delivers the event to every subscriber queue. Publish returns as
// soon as the event is enqueued; it only blocks when a subscriber is more
// than the queue capacity behind.
func (t *Topic[T]) Publish(ev T) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	for _, sub := range t.subscribers {
		t.pending.Add(1)
		sub.queue <- ev
	}
}

// Close stops the topic and waits for subscribers to finish their queues.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	subs := t.subscribers
	t.mu.Unlock()

	for _, sub := range subs {
		close(sub.queue)
		<-sub.done
	}
}

func (t *Topic[T]) idle() bool {
	return t.pending.Load() == 0
}
