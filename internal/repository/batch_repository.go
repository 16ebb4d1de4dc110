package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-bulletin/internal/models"
)

// BatchRepository persists bulletin batch runs.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs the repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

const batchColumns = `id, period_id, class_id, format, destination, status, total, completed, failed, created_by, created_at, finished_at`

// Create inserts a new batch row with generated defaults.
func (r *BatchRepository) Create(ctx context.Context, batch *models.BulletinBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.Status == "" {
		batch.Status = models.BatchStateRunning
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO bulletin_batches (` + batchColumns + `)
VALUES (:id, :period_id, :class_id, :format, :destination, :status, :total, :completed, :failed, :created_by, :created_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("create bulletin batch: %w", err)
	}
	return nil
}

// GetByID returns a batch row. Missing rows surface as sql.ErrNoRows.
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*models.BulletinBatch, error) {
	const query = `SELECT ` + batchColumns + ` FROM bulletin_batches WHERE id = $1`
	var batch models.BulletinBatch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// UpdateBatchParams defines the mutable fields.
type UpdateBatchParams struct {
	Status     *models.BatchState
	Completed  *int
	Failed     *int
	FinishedAt *time.Time
}

// Update persists the provided changes for a batch row.
func (r *BatchRepository) Update(ctx context.Context, id string, params UpdateBatchParams) error {
	set := make([]string, 0, 4)
	args := make([]interface{}, 0, 5)
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.Completed != nil {
		add("completed", *params.Completed)
	}
	if params.Failed != nil {
		add("failed", *params.Failed)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}
	if len(set) == 0 {
		return nil
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE bulletin_batches SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update bulletin batch: %w", err)
	}
	return nil
}

// MarkInterrupted closes batches left running by a previous process as cancelled.
func (r *BatchRepository) MarkInterrupted(ctx context.Context, at time.Time) (int64, error) {
	const query = `UPDATE bulletin_batches SET status = $1, finished_at = $2 WHERE status IN ($3, $4)`
	res, err := r.db.ExecContext(ctx, query, models.BatchStateCancelled, at, models.BatchStateRunning, models.BatchStateCancelling)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted batches: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark interrupted batches: %w", err)
	}
	return n, nil
}
