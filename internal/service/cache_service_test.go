package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-bulletin/pkg/errors"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	getErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if key == pattern || (prefix != pattern && strings.HasPrefix(key, prefix)) {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *memoryCache) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func TestRememberLoadsOnceAndCaches(t *testing.T) {
	repo := newMemoryCache()
	cache := NewCacheService(repo, NewMetricsService(), time.Minute, nil, true)
	var loads int32
	load := func(ctx context.Context) ([]int, error) {
		atomic.AddInt32(&loads, 1)
		return []int{1, 2, 3}, nil
	}

	first, err := Remember(context.Background(), cache, "k", 0, load)
	require.NoError(t, err)
	second, err := Remember(context.Background(), cache, "k", 0, load)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))

	require.NoError(t, cache.Invalidate(context.Background(), "k"))
	_, err = Remember(context.Background(), cache, "k", 0, load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&loads))
}

func TestRememberSharesConcurrentLoads(t *testing.T) {
	cache := NewCacheService(newMemoryCache(), nil, time.Minute, nil, true)
	release := make(chan struct{})
	var loads, started int32
	load := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return "stats", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			atomic.AddInt32(&started, 1)
			results[i], _ = Remember(context.Background(), cache, "c1:p1", 0, load)
		}(i)
	}
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&loads) == 1 && atomic.LoadInt32(&started) == int32(len(results))
	}, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
	for _, r := range results {
		assert.Equal(t, "stats", r)
	}
}

func TestRememberDegradesOnCacheErrors(t *testing.T) {
	repo := newMemoryCache()
	repo.getErr = errors.New("connection reset")
	cache := NewCacheService(repo, nil, time.Minute, nil, true)

	value, err := Remember(context.Background(), cache, "k", 0, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, value)

	_, err = Remember(context.Background(), cache, "other", 0, func(context.Context) (int, error) {
		return 0, appErrors.ErrNotFound
	})
	require.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Equal(t, 1, repo.len())
}

func TestNilCacheService(t *testing.T) {
	var cache *CacheService
	assert.False(t, cache.Enabled())
	hit, err := cache.Get(context.Background(), "k", new(int))
	require.NoError(t, err)
	assert.False(t, hit)
	require.NoError(t, cache.Set(context.Background(), "k", 1, 0))
	require.NoError(t, cache.Invalidate(context.Background(), "k"))

	value, err := Remember(context.Background(), cache, "k", 0, func(context.Context) (int, error) { return 3, nil })
	require.NoError(t, err)
	assert.Equal(t, 3, value)
}
