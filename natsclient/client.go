// Package natsclient manages the NATS connection, the JetStream handle,
// and the key-value buckets backing storage/natsstore and the queue
// transport plugin.
package natsclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Sangrene/flexible-data-relay/errors"
	"github.com/Sangrene/flexible-data-relay/pkg/retry"
)

// Client wraps one NATS connection and its JetStream context. Buckets are
// created on first use and cached.
type Client struct {
	url    string
	name   string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *nats.Conn
	js      jetstream.JetStream
	buckets map[string]jetstream.KeyValue
}

// ClientOption customizes Client construction.
type ClientOption func(*Client)

// WithConnectionName sets the client name visible on the server.
func WithConnectionName(name string) ClientOption {
	return func(c *Client) { c.name = name }
}

// NewClient creates an unconnected client for the given URL.
func NewClient(url string, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		url:     url,
		name:    "flexible-data-relay",
		logger:  logger.With("component", "natsclient"),
		buckets: make(map[string]jetstream.KeyValue),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the server and initializes JetStream, retrying transient
// dial failures with backoff. The connection itself keeps reconnecting
// indefinitely afterwards.
func (c *Client) Connect(ctx context.Context) error {
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		conn, err := nats.Connect(c.url,
			nats.Name(c.name),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				c.logger.Warn("nats disconnected", "error", err)
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				c.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
			}),
		)
		if err != nil {
			return err
		}

		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			return retry.NonRetryable(err)
		}

		c.mu.Lock()
		c.conn = conn
		c.js = js
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		return errors.WrapFatal(err, "natsclient", "Connect", "dial nats server")
	}

	c.logger.Info("connected to nats", "url", c.url)
	return nil
}

// JetStream returns the JetStream handle, or nil before Connect.
func (c *Client) JetStream() jetstream.JetStream {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.js
}

// IsHealthy reports whether the connection is currently up.
func (c *Client) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// URL returns the configured server URL.
func (c *Client) URL() string { return c.url }

// KeyValue returns the named bucket, creating it if absent.
func (c *Client) KeyValue(ctx context.Context, bucket string) (jetstream.KeyValue, error) {
	c.mu.RLock()
	if kv, ok := c.buckets[bucket]; ok {
		c.mu.RUnlock()
		return kv, nil
	}
	js := c.js
	c.mu.RUnlock()

	if js == nil {
		return nil, errors.WrapFatal(errors.ErrNoConnection, "natsclient", "KeyValue", "client not connected")
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		History: 1,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "natsclient", "KeyValue", "ensure bucket "+bucket)
	}

	c.mu.Lock()
	c.buckets[bucket] = kv
	c.mu.Unlock()
	return kv, nil
}

// Close drains and closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("nats drain failed", "error", err)
		c.conn.Close()
	}
	c.conn = nil
	c.js = nil
}
