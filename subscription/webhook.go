package subscription

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Sangrene/flexible-data-relay/errors"
	"github.com/Sangrene/flexible-data-relay/tenant"
)

// WebhookPlugin delivers notifications as JSON POSTs to the subscription's
// webhook URL. It needs no broker resources, so both provisioning hooks
// are no-ops.
type WebhookPlugin struct {
	client *http.Client
	logger *slog.Logger
}

// WebhookOption customizes the webhook plugin.
type WebhookOption func(*WebhookPlugin)

// WithHTTPClient overrides the HTTP client, for tests.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(p *WebhookPlugin) { p.client = c }
}

// NewWebhookPlugin creates the webhook transport.
func NewWebhookPlugin(logger *slog.Logger, opts ...WebhookOption) *WebhookPlugin {
	if logger == nil {
		logger = slog.Default()
	}
	p := &WebhookPlugin{
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With("component", "webhook-plugin"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the transport name.
func (p *WebhookPlugin) Name() string { return string(tenant.TransportWebhook) }

// OnTenantCreated is a no-op for webhooks.
func (p *WebhookPlugin) OnTenantCreated(context.Context, *tenant.Tenant) error { return nil }

// OnSubscriptionCreated is a no-op for webhooks.
func (p *WebhookPlugin) OnSubscriptionCreated(context.Context, string, tenant.Subscription) error {
	return nil
}

// PublishMessage posts the notification body to the subscription URL. Any
// non-2xx response is a transient failure.
func (p *WebhookPlugin) PublishMessage(ctx context.Context, n Notification) error {
	if n.Subscription.WebhookURL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "subscription", "PublishMessage", "webhook subscription has no URL")
	}

	body, err := n.Payload()
	if err != nil {
		return errors.WrapInvalid(err, "subscription", "PublishMessage", "encode notification")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Subscription.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return errors.WrapInvalid(err, "subscription", "PublishMessage", "build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.WrapTransient(err, "subscription", "PublishMessage", "post webhook")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.WrapTransient(
			fmt.Errorf("webhook returned status %d", resp.StatusCode),
			"subscription", "PublishMessage", "post webhook")
	}

	p.logger.Debug("webhook delivered",
		"subscriber", n.Subscriber, "entity", n.EntityName, "url", n.Subscription.WebhookURL)
	return nil
}
