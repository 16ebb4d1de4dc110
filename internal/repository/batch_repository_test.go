package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-bulletin/internal/models"
)

func TestBatchRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bulletin_batches")).
		WithArgs(sqlmock.AnyArg(), "p1", nil, "pdf", "exports", "RUNNING", 3, 0, 0, "user-1", sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	batch := &models.BulletinBatch{PeriodID: "p1", Format: models.BulletinFormatPDF, Destination: "exports", Total: 3, CreatedBy: "user-1"}
	require.NoError(t, repo.Create(context.Background(), batch))
	require.NotEmpty(t, batch.ID)

	rows := sqlmock.NewRows([]string{"id", "period_id", "class_id", "format", "destination", "status", "total", "completed", "failed", "created_by", "created_at", "finished_at"}).
		AddRow(batch.ID, "p1", nil, "pdf", "exports", "RUNNING", 3, 0, 0, "user-1", time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM bulletin_batches WHERE id = $1")).
		WithArgs(batch.ID).
		WillReturnRows(rows)

	fetched, err := repo.GetByID(context.Background(), batch.ID)
	require.NoError(t, err)
	require.Equal(t, batch.ID, fetched.ID)
	require.Equal(t, models.BatchStateRunning, fetched.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)

	now := time.Now()
	status := models.BatchStateCompleted
	completed, failed := 2, 1
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bulletin_batches SET status = $1, completed = $2, failed = $3, finished_at = $4 WHERE id = $5")).
		WithArgs(status, completed, failed, now, "batch-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(context.Background(), "batch-1", UpdateBatchParams{
		Status: &status, Completed: &completed, Failed: &failed, FinishedAt: &now,
	}))
	require.NoError(t, repo.Update(context.Background(), "batch-1", UpdateBatchParams{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRepositoryMarkInterrupted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bulletin_batches SET status = $1, finished_at = $2 WHERE status IN ($3, $4)")).
		WithArgs(models.BatchStateCancelled, now, models.BatchStateRunning, models.BatchStateCancelling).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.MarkInterrupted(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
