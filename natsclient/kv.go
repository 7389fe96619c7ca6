package natsclient

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Sangrene/flexible-data-relay/errors"
	"github.com/Sangrene/flexible-data-relay/pkg/retry"
)

// KVStore wraps one bucket with retry on transient failures and error
// mapping onto the domain error variables.
type KVStore struct {
	bucket jetstream.KeyValue
	logger *slog.Logger
	retry  retry.Config
}

// NewKVStore wraps the bucket.
func (c *Client) NewKVStore(bucket jetstream.KeyValue) *KVStore {
	return &KVStore{
		bucket: bucket,
		logger: c.logger,
		retry:  retry.Quick(),
	}
}

// Get returns the value at key, or ErrKeyNotFound.
func (kv *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	return retry.DoWithResult(ctx, kv.retry, func() ([]byte, error) {
		entry, err := kv.bucket.Get(ctx, key)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				return nil, retry.NonRetryable(errors.ErrKeyNotFound)
			}
			return nil, err
		}
		return entry.Value(), nil
	})
}

// Put writes the value, last writer wins.
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) error {
	return retry.Do(ctx, kv.retry, func() error {
		_, err := kv.bucket.Put(ctx, key, value)
		return err
	})
}

// Delete removes the key. Deleting an absent key is a no-op.
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	return retry.Do(ctx, kv.retry, func() error {
		err := kv.bucket.Delete(ctx, key)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Keys lists every key in the bucket. An empty bucket yields an empty
// slice, not an error.
func (kv *KVStore) Keys(ctx context.Context) ([]string, error) {
	lister, err := kv.bucket.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, errors.WrapTransient(err, "natsclient", "Keys", "list bucket keys")
	}

	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}
	return keys, nil
}

// Watch streams updates for keys matching the pattern until the context
// is cancelled. Existing values are not replayed.
func (kv *KVStore) Watch(ctx context.Context, pattern string) (<-chan jetstream.KeyValueEntry, error) {
	watcher, err := kv.bucket.Watch(ctx, pattern, jetstream.UpdatesOnly())
	if err != nil {
		return nil, errors.WrapTransient(err, "natsclient", "Watch", "open watcher for "+pattern)
	}

	out := make(chan jetstream.KeyValueEntry)
	go func() {
		defer close(out)
		defer watcher.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				if entry == nil || entry.Operation() != jetstream.KeyValuePut {
					continue
				}
				select {
				case out <- entry:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
