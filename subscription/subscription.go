// Package subscription fans entity mutation notifications out to tenant
// subscriptions through pluggable transports. Delivery is at-most-once:
// a failed or timed-out transport call is logged and counted, never
// retried.
package subscription

import (
	"context"
	"encoding/json"

	"github.com/Sangrene/flexible-data-relay/event"
	"github.com/Sangrene/flexible-data-relay/tenant"
)

// Notification is one mutation bound for one subscription.
type Notification struct {
	Action       event.EntityAction
	Owner        string
	EntityName   string
	Entity       map[string]any
	Subscriber   string
	Subscription tenant.Subscription
}

// message is the wire form shared by every transport.
type message struct {
	Action event.EntityAction `json:"action"`
	Entity map[string]any     `json:"entity"`
	Key    string             `json:"key"`
}

// Payload returns the JSON body delivered to subscribers.
func (n Notification) Payload() ([]byte, error) {
	return json.Marshal(message{
		Action: n.Action,
		Entity: n.Entity,
		Key:    n.Subscription.Key,
	})
}

// Plugin is one transport. The provisioning face is shared with the
// tenant core; PublishMessage is the delivery face invoked by the
// manager's worker pool.
type Plugin interface {
	tenant.SubscriptionProvisioner
	PublishMessage(ctx context.Context, n Notification) error
}
