package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-bulletin/internal/models"
)

// SessionRepository persists evaluation sessions and their marks. Sessions are
// append-only: there is no update path.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// FindTemplate returns an evaluation template. Missing rows surface as sql.ErrNoRows.
func (r *SessionRepository) FindTemplate(ctx context.Context, id string) (*models.EvaluationTemplate, error) {
	const query = `SELECT id, class_id, subject_id, kind, label, max_value, coefficient, created_at
FROM evaluation_templates WHERE id = $1`
	var tpl models.EvaluationTemplate
	if err := r.db.GetContext(ctx, &tpl, query, id); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Create inserts the session and every grade in one transaction.
func (r *SessionRepository) Create(ctx context.Context, session *models.EvaluationSession, grades []models.Grade) error {
	now := time.Now().UTC()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session tx: %w", err)
	}
	const sessionQuery = `INSERT INTO evaluation_sessions (id, template_id, class_id, subject_id, period_id, held_on, average, success_rate, mark_count, created_at)
VALUES (:id, :template_id, :class_id, :subject_id, :period_id, :held_on, :average, :success_rate, :mark_count, :created_at)`
	if _, err := tx.NamedExecContext(ctx, sessionQuery, session); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("insert evaluation session: %w", err)
	}

	const gradeQuery = `INSERT INTO grades (id, session_id, student_id, mark, created_at)
VALUES (:id, :session_id, :student_id, :mark, :created_at)`
	for i := range grades {
		if grades[i].ID == "" {
			grades[i].ID = uuid.NewString()
		}
		grades[i].SessionID = session.ID
		if grades[i].CreatedAt.IsZero() {
			grades[i].CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, gradeQuery, grades[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert grade: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

// ListByClassPeriod returns the sessions held for a class in a period, newest first.
func (r *SessionRepository) ListByClassPeriod(ctx context.Context, classID, periodID string) ([]models.EvaluationSession, error) {
	const query = `SELECT id, template_id, class_id, subject_id, period_id, held_on, average, success_rate, mark_count, created_at
FROM evaluation_sessions WHERE class_id = $1 AND period_id = $2 ORDER BY held_on DESC, created_at DESC`
	var sessions []models.EvaluationSession
	if err := r.db.SelectContext(ctx, &sessions, query, classID, periodID); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}
