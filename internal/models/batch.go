package models

import "time"

// BulletinFormat enumerates supported bulletin renderings.
type BulletinFormat string

const (
	BulletinFormatPDF BulletinFormat = "pdf"
	BulletinFormatCSV BulletinFormat = "csv"
)

// Valid reports whether f is a supported format.
func (f BulletinFormat) Valid() bool {
	return f == BulletinFormatPDF || f == BulletinFormatCSV
}

// Extension returns the file extension, without dot.
func (f BulletinFormat) Extension() string {
	return string(f)
}

// BulletinBatch is the persisted record of one batch run.
type BulletinBatch struct {
	ID          string         `db:"id" json:"id"`
	PeriodID    string         `db:"period_id" json:"period_id"`
	ClassID     *string        `db:"class_id" json:"class_id,omitempty"`
	Format      BulletinFormat `db:"format" json:"format"`
	Destination string         `db:"destination" json:"destination"`
	Status      BatchState     `db:"status" json:"status"`
	Total       int            `db:"total" json:"total"`
	Completed   int            `db:"completed" json:"completed"`
	Failed      int            `db:"failed" json:"failed"`
	CreatedBy   string         `db:"created_by" json:"created_by"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	FinishedAt  *time.Time     `db:"finished_at" json:"finished_at,omitempty"`
}
