package service

import (
	"context"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-bulletin/internal/dto"
	"github.com/noah-isme/sma-bulletin/internal/models"
	appErrors "github.com/noah-isme/sma-bulletin/pkg/errors"
)

type sessionRepository interface {
	FindTemplate(ctx context.Context, id string) (*models.EvaluationTemplate, error)
	Create(ctx context.Context, session *models.EvaluationSession, grades []models.Grade) error
}

type statsInvalidator interface {
	Invalidate(ctx context.Context, classID, periodID string) error
}

// SessionService records evaluation sessions and their marks.
type SessionService struct {
	repo      sessionRepository
	stats     statsInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSessionService constructs the service.
func NewSessionService(repo sessionRepository, stats statsInvalidator, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{repo: repo, stats: stats, validator: validate, logger: logger}
}

// Submit validates the marks against the template scale and stores the
// session with its computed average and success rate.
func (s *SessionService) Submit(ctx context.Context, req dto.SubmitSessionRequest) (*models.EvaluationSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	template, err := s.repo.FindTemplate(ctx, req.TemplateID)
	if err != nil {
		return nil, notFoundOr(err, "evaluation template")
	}
	tpl := template.WithDefaults()
	if _, err := models.ParseEvaluationKind(string(tpl.Kind)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "evaluation template is misconfigured")
	}

	seen := make(map[string]struct{}, len(req.Marks))
	values := make([]float64, 0, len(req.Marks))
	grades := make([]models.Grade, 0, len(req.Marks))
	for _, input := range req.Marks {
		mark := *input.Mark
		if math.IsNaN(mark) || math.IsInf(mark, 0) || mark < 0 || mark > tpl.MaxValue {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("mark for student %s must be between 0 and %g", input.StudentID, tpl.MaxValue))
		}
		if _, dup := seen[input.StudentID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate mark for student %s", input.StudentID))
		}
		seen[input.StudentID] = struct{}{}
		values = append(values, mark)
		grades = append(grades, models.Grade{StudentID: input.StudentID, Mark: mark})
	}

	average, rate := SessionStats(values, tpl.MaxValue)
	session := &models.EvaluationSession{
		TemplateID:  tpl.ID,
		ClassID:     tpl.ClassID,
		SubjectID:   tpl.SubjectID,
		PeriodID:    req.PeriodID,
		HeldOn:      req.HeldOn,
		Average:     average,
		SuccessRate: rate,
		MarkCount:   len(grades),
	}
	if err := s.repo.Create(ctx, session, grades); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store session")
	}
	if s.stats != nil {
		if err := s.stats.Invalidate(ctx, tpl.ClassID, req.PeriodID); err != nil {
			s.logger.Warn("class statistics not invalidated", zap.String("class_id", tpl.ClassID), zap.Error(err))
		}
	}
	s.logger.Info("evaluation session recorded",
		zap.String("session_id", session.ID),
		zap.String("template_id", tpl.ID),
		zap.Int("marks", session.MarkCount),
		zap.Float64("average", session.Average))
	return session, nil
}
