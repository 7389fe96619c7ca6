package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Sangrene/flexible-data-relay/errors"
	"github.com/Sangrene/flexible-data-relay/tenant"
)

const notifySubjectPrefix = "fdr.notify"

// QueuePlugin delivers notifications through NATS JetStream. Tenant
// creation provisions a tenant-scoped stream; subscription creation
// declares a durable consumer on it, so messages published before the
// subscriber connects are retained.
type QueuePlugin struct {
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewQueuePlugin creates the queue transport over an established
// JetStream handle.
func NewQueuePlugin(js jetstream.JetStream, logger *slog.Logger) *QueuePlugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueuePlugin{
		js:     js,
		logger: logger.With("component", "queue-plugin"),
	}
}

// Name returns the transport name.
func (p *QueuePlugin) Name() string { return string(tenant.TransportQueue) }

// StreamName returns the name of the tenant-scoped notification stream.
func StreamName(tenantName string) string {
	return "FDR_" + sanitizeToken(tenantName)
}

// NotifySubject returns the subject a queue subscription's messages are
// published on.
func NotifySubject(queueName string) string {
	return notifySubjectPrefix + "." + queueName
}

// OnTenantCreated provisions the tenant's notification stream. Creating
// an already-existing stream with the same config is a no-op.
func (p *QueuePlugin) OnTenantCreated(ctx context.Context, t *tenant.Tenant) error {
	_, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName(t.Name),
		Subjects: []string{fmt.Sprintf("%s.%s.>", notifySubjectPrefix, t.Name)},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return errors.WrapTransient(err, "subscription", "OnTenantCreated", "provision notification stream")
	}
	p.logger.Info("notification stream provisioned", "tenant", t.Name, "stream", StreamName(t.Name))
	return nil
}

// OnSubscriptionCreated declares the durable consumer backing one queue
// subscription. Non-queue subscriptions are ignored.
func (p *QueuePlugin) OnSubscriptionCreated(ctx context.Context, tenantName string, sub tenant.Subscription) error {
	if sub.Type != tenant.TransportQueue {
		return nil
	}

	_, err := p.js.CreateOrUpdateConsumer(ctx, StreamName(tenantName), jetstream.ConsumerConfig{
		Durable:       sanitizeToken(sub.QueueName),
		FilterSubject: NotifySubject(sub.QueueName),
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return errors.WrapTransient(err, "subscription", "OnSubscriptionCreated", "declare durable consumer")
	}
	p.logger.Info("queue declared", "tenant", tenantName, "queue", sub.QueueName)
	return nil
}

// PublishMessage publishes the notification on the queue's subject.
func (p *QueuePlugin) PublishMessage(ctx context.Context, n Notification) error {
	if n.Subscription.QueueName == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "subscription", "PublishMessage", "queue subscription has no queue name")
	}

	body, err := n.Payload()
	if err != nil {
		return errors.WrapInvalid(err, "subscription", "PublishMessage", "encode notification")
	}

	if _, err := p.js.Publish(ctx, NotifySubject(n.Subscription.QueueName), body); err != nil {
		return errors.WrapTransient(err, "subscription", "PublishMessage", "publish to queue")
	}
	return nil
}

// sanitizeToken maps a name onto the character set JetStream allows for
// stream and durable names.
func sanitizeToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}
