package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corridor-platform/internal/logging"
)

func newTestCache(t *testing.T, hooks MetricsHooks) (*LayerCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
	})
	return New(client, time.Minute, hooks, logging.NewDiscardLogger()), mr
}

func TestGetBuildsOnceThenHits(t *testing.T) {
	var hits, misses int32
	c, mr := newTestCache(t, MetricsHooks{
		OnHit:  func() { atomic.AddInt32(&hits, 1) },
		OnMiss: func() { atomic.AddInt32(&misses, 1) },
	})
	ctx := context.Background()

	builds := 0
	build := func(context.Context) ([]byte, error) {
		builds++
		return []byte(`{"type":"FeatureCollection"}`), nil
	}

	first, err := c.Get(ctx, 5, "full", build)
	require.NoError(t, err)
	second, err := c.Get(ctx, 5, "full", build)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, builds)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, int32(1), atomic.LoadInt32(&misses))
	assert.True(t, mr.Exists("layer:5:v0:full"))
	assert.Equal(t, time.Minute, mr.TTL("layer:5:v0:full"))
}

func TestInvalidateHidesOldVariants(t *testing.T) {
	c, mr := newTestCache(t, MetricsHooks{})
	ctx := context.Background()

	n := 0
	build := func(context.Context) ([]byte, error) {
		n++
		return []byte{byte('0' + n)}, nil
	}

	v1, err := c.Get(ctx, 9, "default", build)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, 9))
	v2, err := c.Get(ctx, 9, "default", build)
	require.NoError(t, err)

	assert.Equal(t, []byte("1"), v1)
	assert.Equal(t, []byte("2"), v2)
	assert.True(t, mr.Exists("layer:9:v1:default"))
}

func TestBuildErrorsAreNotCached(t *testing.T) {
	c, mr := newTestCache(t, MetricsHooks{})
	boom := errors.New("boom")

	_, err := c.Get(context.Background(), 3, "full", func(context.Context) ([]byte, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, mr.Keys())
}

func TestRedisDownFallsBackToBuild(t *testing.T) {
	var failures int32
	c, mr := newTestCache(t, MetricsHooks{OnError: func() { atomic.AddInt32(&failures, 1) }})
	mr.Close()

	data, err := c.Get(context.Background(), 1, "full", func(context.Context) ([]byte, error) {
		return []byte("fresh"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), data)
	assert.Positive(t, atomic.LoadInt32(&failures))
}

func TestPassThroughCollapsesConcurrentBuilds(t *testing.T) {
	c := New(nil, time.Minute, MetricsHooks{}, logging.NewDiscardLogger())
	release := make(chan struct{})
	var builds int32

	var wg sync.WaitGroup
	results := make(chan []byte, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := c.Get(context.Background(), 2, "full", func(context.Context) ([]byte, error) {
				atomic.AddInt32(&builds, 1)
				<-release
				return []byte("layer"), nil
			})
			if err == nil {
				results <- data
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	count := 0
	for r := range results {
		assert.Equal(t, []byte("layer"), r)
		count++
	}
	assert.Equal(t, 5, count)
	assert.LessOrEqual(t, atomic.LoadInt32(&builds), int32(5))
	assert.NoError(t, c.Invalidate(context.Background(), 2))
}
