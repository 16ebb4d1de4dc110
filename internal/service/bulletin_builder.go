package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-bulletin/internal/models"
	appErrors "github.com/noah-isme/sma-bulletin/pkg/errors"
)

// GradeStore is the read surface the builder needs from the grade book.
type GradeStore interface {
	FindStudent(ctx context.Context, id string) (*models.Student, error)
	FindPeriod(ctx context.Context, id string) (*models.Period, error)
	FindClass(ctx context.Context, id string) (*models.ClassInfo, error)
	ListPriorPeriods(ctx context.Context, period models.Period) ([]models.Period, error)
	StudentGrades(ctx context.Context, studentID, periodID string) ([]models.SubjectGrades, error)
	Attendance(ctx context.Context, studentID, periodID string) (models.AttendanceSummary, error)
}

// ClassStatsProvider serves class-wide statistics.
type ClassStatsProvider interface {
	Get(ctx context.Context, classID, periodID string) (*models.ClassStatistics, error)
	Refresh(ctx context.Context, classID, periodID string) (*models.ClassStatistics, error)
}

// BuilderConfig carries the school-level values printed on every bulletin.
type BuilderConfig struct {
	SchoolName     string
	HeadmasterName string
	Clock          func() time.Time
}

// BulletinBuilder assembles report cards. It never mutates shared state and is
// safe to call concurrently for different students.
type BulletinBuilder struct {
	store  GradeStore
	stats  ClassStatsProvider
	agg    *Aggregator
	cfg    BuilderConfig
	logger *zap.Logger
}

// NewBulletinBuilder constructs a builder.
func NewBulletinBuilder(store GradeStore, stats ClassStatsProvider, agg *Aggregator, cfg BuilderConfig, logger *zap.Logger) *BulletinBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if agg == nil {
		agg = NewAggregator(logger)
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &BulletinBuilder{store: store, stats: stats, agg: agg, cfg: cfg, logger: logger}
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, what+" not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+what)
}

// Build returns a fresh report card for the student and period. It fails with
// ErrNotFound when the student or period is unknown or nothing was graded.
func (b *BulletinBuilder) Build(ctx context.Context, studentID, periodID string) (*models.ReportCard, error) {
	student, err := b.store.FindStudent(ctx, studentID)
	if err != nil {
		return nil, notFoundOr(err, "student")
	}
	period, err := b.store.FindPeriod(ctx, periodID)
	if err != nil {
		return nil, notFoundOr(err, "period")
	}
	grades, err := b.store.StudentGrades(ctx, student.ID, period.ID)
	if err != nil {
		return nil, notFoundOr(err, "grades")
	}
	subjects := b.agg.Subjects(student.ID, grades)
	if len(subjects) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no grades recorded for student in period")
	}

	class, err := b.store.FindClass(ctx, student.ClassID)
	if err != nil {
		return nil, notFoundOr(err, "class")
	}
	stats, err := b.classStats(ctx, student.ClassID, period.ID, student.ID)
	if err != nil {
		return nil, err
	}
	attendance, err := b.store.Attendance(ctx, student.ID, period.ID)
	if err != nil {
		return nil, notFoundOr(err, "attendance")
	}
	history, err := b.history(ctx, student.ID, *period)
	if err != nil {
		return nil, err
	}

	for i := range subjects {
		subjectStats, ok := stats.Subjects[subjects[i].SubjectID]
		if !ok {
			continue
		}
		subjects[i].ClassMin = subjectStats.Min
		subjects[i].ClassMax = subjectStats.Max
		subjects[i].Rank = subjectStats.Ranks[student.ID]
	}

	overall := OverallFor(subjects)
	standing, _ := stats.Standing(student.ID)

	card := &models.ReportCard{
		SchoolName:   b.cfg.SchoolName,
		StudentID:    student.ID,
		Matricule:    student.Matricule,
		StudentName:  student.FullName,
		Gender:       student.Gender,
		BirthDate:    student.BirthDate,
		BirthPlace:   student.BirthPlace,
		ClassID:      class.ID,
		ClassName:    class.Name,
		PeriodID:     period.ID,
		PeriodName:   period.Name,
		AcademicYear: period.AcademicYear,

		Subjects:            subjects,
		TotalCoefficient:    overall.TotalCoefficient,
		TotalPoints:         overall.TotalPoints,
		GeneralAverage:      overall.GeneralAverage,
		GeneralAppreciation: Appreciation(overall.GeneralAverage),

		ClassAverage: stats.Average,
		ClassMin:     stats.Min,
		ClassMax:     stats.Max,
		Rank:         standing.Rank,
		ClassSize:    stats.Size,

		Decision: DecisionFor(overall.GeneralAverage),
		Honor:    HonorFor(overall.GeneralAverage),

		History:     history,
		Attendance:  attendance,
		Signatories: b.signatories(class),
		GeneratedAt: b.cfg.Clock(),
	}
	return card, nil
}

// classStats returns statistics that include the student. A cached copy that
// predates the student's first grade is refreshed once.
func (b *BulletinBuilder) classStats(ctx context.Context, classID, periodID, studentID string) (*models.ClassStatistics, error) {
	stats, err := b.stats.Get(ctx, classID, periodID)
	if err != nil {
		return nil, err
	}
	if _, ok := stats.Standing(studentID); ok {
		return stats, nil
	}
	b.logger.Debug("class statistics stale, refreshing", zap.String("class_id", classID), zap.String("period_id", periodID))
	return b.stats.Refresh(ctx, classID, periodID)
}

func (b *BulletinBuilder) history(ctx context.Context, studentID string, period models.Period) ([]models.HistoricalAverage, error) {
	prior, err := b.store.ListPriorPeriods(ctx, period)
	if err != nil {
		return nil, notFoundOr(err, "prior periods")
	}
	history := make([]models.HistoricalAverage, 0, len(prior))
	for _, p := range prior {
		grades, err := b.store.StudentGrades(ctx, studentID, p.ID)
		if err != nil {
			return nil, notFoundOr(err, "grades")
		}
		subjects := b.agg.Subjects(studentID, grades)
		if len(subjects) == 0 {
			continue
		}
		history = append(history, models.HistoricalAverage{
			PeriodID:   p.ID,
			PeriodName: p.Name,
			Average:    OverallFor(subjects).GeneralAverage,
		})
	}
	return history, nil
}

func (b *BulletinBuilder) signatories(class *models.ClassInfo) []models.Signatory {
	signatories := make([]models.Signatory, 0, 2)
	if class.HomeroomTeacher != "" {
		signatories = append(signatories, models.Signatory{Role: "Professeur principal", Name: class.HomeroomTeacher})
	}
	if b.cfg.HeadmasterName != "" {
		signatories = append(signatories, models.Signatory{Role: "Chef d'établissement", Name: b.cfg.HeadmasterName})
	}
	return signatories
}
