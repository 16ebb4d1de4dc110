package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-bulletin/internal/models"
	appErrors "github.com/noah-isme/sma-bulletin/pkg/errors"
)

// ClassGradeReader loads every roster member's grades for a class and period.
type ClassGradeReader interface {
	ClassGrades(ctx context.Context, classID, periodID string) ([]models.StudentGrades, error)
}

// ClassStatsService computes class-wide statistics, read-through cached.
type ClassStatsService struct {
	store  ClassGradeReader
	agg    *Aggregator
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewClassStatsService constructs the service. cache may be nil.
func NewClassStatsService(store ClassGradeReader, agg *Aggregator, cache *CacheService, ttl time.Duration, logger *zap.Logger) *ClassStatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if agg == nil {
		agg = NewAggregator(logger)
	}
	return &ClassStatsService{store: store, agg: agg, cache: cache, ttl: ttl, logger: logger}
}

func statsKey(classID, periodID string) string {
	return fmt.Sprintf("stats:%s:%s", classID, periodID)
}

// Get returns the statistics for a class and period, serving from cache when
// possible. Concurrent misses for the same class share one computation.
func (s *ClassStatsService) Get(ctx context.Context, classID, periodID string) (*models.ClassStatistics, error) {
	stats, err := Remember(ctx, s.cache, statsKey(classID, periodID), s.ttl, func(ctx context.Context) (models.ClassStatistics, error) {
		return s.compute(ctx, classID, periodID)
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Refresh recomputes the statistics from the grade store and overwrites the cache.
func (s *ClassStatsService) Refresh(ctx context.Context, classID, periodID string) (*models.ClassStatistics, error) {
	stats, err := s.compute(ctx, classID, periodID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, statsKey(classID, periodID), stats, s.ttl); err != nil {
		s.logger.Debug("class statistics not cached", zap.String("class_id", classID), zap.Error(err))
	}
	return &stats, nil
}

func (s *ClassStatsService) compute(ctx context.Context, classID, periodID string) (models.ClassStatistics, error) {
	roster, err := s.store.ClassGrades(ctx, classID, periodID)
	if err != nil {
		return models.ClassStatistics{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class grades")
	}
	return s.agg.Class(classID, periodID, roster), nil
}

// Invalidate drops cached statistics for a class and period.
func (s *ClassStatsService) Invalidate(ctx context.Context, classID, periodID string) error {
	return s.cache.Invalidate(ctx, statsKey(classID, periodID))
}
