// Package cache keeps rendered map layers in Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"corridor-platform/internal/logging"
)

const defaultDialTimeout = 5 * time.Second

// Builder renders a layer when it is not cached
type Builder func(ctx context.Context) ([]byte, error)

// MetricsHooks are called on cache outcomes; nil hooks are skipped
type MetricsHooks struct {
	OnHit   func()
	OnMiss  func()
	OnError func()
}

// LayerCache stores rendered layer JSON per document and variant. Each
// document has a version counter in its keys; bumping it hides every cached
// variant at once and lets the old entries expire.
type LayerCache struct {
	client  goredis.UniversalClient
	ttl     time.Duration
	sf      singleflight.Group
	metrics MetricsHooks
	logger  logging.Logger
}

// NewClient connects to a single Redis node
func NewClient(ctx context.Context, addr string) (*goredis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultDialTimeout,
		WriteTimeout: defaultDialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// New creates a layer cache. A nil client gives a pass-through cache that
// still collapses concurrent builds.
func New(client goredis.UniversalClient, ttl time.Duration, hooks MetricsHooks, logger logging.Logger) *LayerCache {
	return &LayerCache{
		client:  client,
		ttl:     ttl,
		metrics: hooks,
		logger:  logger,
	}
}

func versionKey(docID int64) string {
	return fmt.Sprintf("layer:%d:version", docID)
}

func dataKey(docID, version int64, variant string) string {
	return fmt.Sprintf("layer:%d:v%d:%s", docID, version, variant)
}

func (c *LayerCache) version(ctx context.Context, docID int64) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(docID)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return v, err
}

// Get returns the cached layer or builds, stores and returns it
func (c *LayerCache) Get(ctx context.Context, docID int64, variant string, build Builder) ([]byte, error) {
	flightKey := fmt.Sprintf("%d:%s", docID, variant)
	if c.client == nil {
		v, err, _ := c.sf.Do(flightKey, func() (interface{}, error) {
			return build(ctx)
		})
		if err != nil {
			return nil, err
		}
		return v.([]byte), nil
	}

	version, err := c.version(ctx, docID)
	if err != nil {
		c.fail(err, docID)
		return build(ctx)
	}
	key := dataKey(docID, version, variant)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		c.hit()
		return data, nil
	case !errors.Is(err, goredis.Nil):
		c.fail(err, docID)
	}
	c.miss()

	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		data, err := build(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.fail(err, docID)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Invalidate hides every cached variant of a document
func (c *LayerCache) Invalidate(ctx context.Context, docID int64) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, versionKey(docID)).Err(); err != nil {
		return fmt.Errorf("error invalidating layer %d: %w", docID, err)
	}
	return nil
}

func (c *LayerCache) hit() {
	if c.metrics.OnHit != nil {
		c.metrics.OnHit()
	}
}

func (c *LayerCache) miss() {
	if c.metrics.OnMiss != nil {
		c.metrics.OnMiss()
	}
}

func (c *LayerCache) fail(err error, docID int64) {
	if c.metrics.OnError != nil {
		c.metrics.OnError()
	}
	if c.logger != nil {
		c.logger.WithError(err).WithField("document_id", docID).Warn("Layer cache unavailable")
	}
}
