package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-bulletin/internal/models"
	appErrors "github.com/noah-isme/sma-bulletin/pkg/errors"
)

type failingClassReader struct{}

func (failingClassReader) ClassGrades(ctx context.Context, classID, periodID string) ([]models.StudentGrades, error) {
	return nil, errors.New("connection refused")
}

func TestClassStatsServiceCachesAndInvalidates(t *testing.T) {
	store := fixtureStore()
	repo := newMemoryCache()
	cache := NewCacheService(repo, nil, time.Minute, nil, true)
	svc := NewClassStatsService(store, nil, cache, time.Minute, nil)

	stats, err := svc.Get(context.Background(), "c1", "p2")
	require.NoError(t, err)
	assert.Equal(t, "c1", stats.ClassID)
	assert.Len(t, stats.Standings, 2)
	assert.Equal(t, "s1", stats.Standings[0].StudentID)

	again, err := svc.Get(context.Background(), "c1", "p2")
	require.NoError(t, err)
	assert.Equal(t, stats.Standings, again.Standings)
	assert.Equal(t, 1, store.classCalls)
	assert.Equal(t, 1, repo.len())

	require.NoError(t, svc.Invalidate(context.Background(), "c1", "p2"))
	assert.Equal(t, 0, repo.len())
	_, err = svc.Get(context.Background(), "c1", "p2")
	require.NoError(t, err)
	assert.Equal(t, 2, store.classCalls)

	_, err = svc.Refresh(context.Background(), "c1", "p2")
	require.NoError(t, err)
	assert.Equal(t, 3, store.classCalls)
}

func TestClassStatsServiceWithoutCache(t *testing.T) {
	store := fixtureStore()
	svc := NewClassStatsService(store, nil, nil, 0, nil)

	_, err := svc.Get(context.Background(), "c1", "p2")
	require.NoError(t, err)
	_, err = svc.Get(context.Background(), "c1", "p2")
	require.NoError(t, err)
	assert.Equal(t, 2, store.classCalls)
	require.NoError(t, svc.Invalidate(context.Background(), "c1", "p2"))
}

func TestClassStatsServiceStoreError(t *testing.T) {
	svc := NewClassStatsService(failingClassReader{}, nil, nil, 0, nil)
	_, err := svc.Get(context.Background(), "c1", "p1")
	require.ErrorIs(t, err, appErrors.ErrInternal)
}
