package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/tripplanner/internal/cache"
	"github.com/neexbeast/tripplanner/internal/directions"
)

const testKey = "35.11510,129.04150:35.15870,129.16040"

func newTestCache(t *testing.T, ttl time.Duration) (*cache.RouteCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return cache.NewRouteCache(client, ttl), mr
}

func sampleRoute() directions.Route {
	return directions.Route{DurationSeconds: 1820, DistanceMeters: 14230}
}

func TestRouteCache_SetAndGet(t *testing.T) {
	c, mr := newTestCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, testKey, sampleRoute()))

	got, err := c.Get(ctx, testKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sampleRoute(), *got)
	assert.True(t, mr.Exists("route:"+testKey))
}

func TestRouteCache_Get_Miss(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)

	got, err := c.Get(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got, "cache miss should return nil, nil")
}

func TestRouteCache_Get_CorruptValue(t *testing.T) {
	c, mr := newTestCache(t, time.Hour)
	require.NoError(t, mr.Set("route:"+testKey, "not json"))

	_, err := c.Get(context.Background(), testKey)
	require.Error(t, err)
	assert.False(t, mr.Exists("route:"+testKey), "corrupt entry should be evicted")
}

func TestRouteCache_Delete(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, testKey, sampleRoute()))
	require.NoError(t, c.Delete(ctx, testKey))

	got, err := c.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Nil(t, got, "entry should be gone after delete")
}

func TestRouteCache_TTL(t *testing.T) {
	c, mr := newTestCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, testKey, sampleRoute()))

	mr.FastForward(2 * time.Hour)

	got, err := c.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Nil(t, got, "entry should be expired after TTL")
}

func TestRouteCache_DefaultTTL(t *testing.T) {
	c, mr := newTestCache(t, 0)
	require.NoError(t, c.Set(context.Background(), testKey, sampleRoute()))

	assert.Equal(t, cache.DefaultTTL, mr.TTL("route:"+testKey))
}

func TestRouteCache_ServerDown(t *testing.T) {
	c, mr := newTestCache(t, time.Hour)
	mr.Close()

	_, err := c.Get(context.Background(), testKey)
	require.Error(t, err)
	assert.False(t, mr.Exists("route:"+testKey), "corrupt entry should be evicted")
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestMemoryCache_SetGetExpire(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	c := cache.NewMemoryCacheWithClock(time.Hour, clock.Now)
	ctx := context.Background()

	got, err := c.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, testKey, sampleRoute()))
	got, err = c.Get(ctx, testKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sampleRoute(), *got)

	clock.Advance(time.Hour)
	got, err = c.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Nil(t, got, "entry should be expired at TTL")
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_Sweep(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	c := cache.NewMemoryCacheWithClock(time.Minute, clock.Now)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", sampleRoute()))
	clock.Advance(30 * time.Second)
	require.NoError(t, c.Set(ctx, "b", sampleRoute()))
	clock.Advance(45 * time.Second)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_Delete(t *testing.T) {
	c := cache.NewMemoryCache(time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, testKey, sampleRoute()))
	require.NoError(t, c.Delete(ctx, testKey))
	require.NoError(t, c.Delete(ctx, "ghost"))

	got, err := c.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	c := cache.NewMemoryCache(time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Set(ctx, testKey, sampleRoute())
			_, _ = c.Get(ctx, testKey)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, c.Len())
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := cache.Connect(context.Background(), "not-a-url")
	require.Error(t, err)
}

func TestConnect_UnreachableServer(t *testing.T) {
	_, err := cache.Connect(context.Background(), "redis://localhost:19999")
	require.Error(t, err)
}

func TestConnect_OK(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err := cache.Connect(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, client.Options().ReadTimeout)
	assert.Equal(t, 500*time.Millisecond, client.Options().WriteTimeout)
	assert.NoError(t, client.Close())
}

func TestConnect_KeepsURLTimeouts(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err := cache.Connect(context.Background(), "redis://"+mr.Addr()+"?read_timeout=2s")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, client.Options().ReadTimeout)
	assert.NoError(t, client.Close())
}
