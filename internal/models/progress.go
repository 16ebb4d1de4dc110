package models

import "time"

// BatchState is the generation queue lifecycle state.
type BatchState string

const (
	BatchStateIdle       BatchState = "IDLE"
	BatchStateRunning    BatchState = "RUNNING"
	BatchStateCancelling BatchState = "CANCELLING"
	BatchStateCancelled  BatchState = "CANCELLED"
	BatchStateCompleted  BatchState = "COMPLETED"
)

// Accepting reports whether a new batch may start from this state.
func (s BatchState) Accepting() bool {
	switch s {
	case BatchStateRunning, BatchStateCancelling:
		return false
	default:
		return true
	}
}

// GenerationProgress is an immutable snapshot of queue progress. The queue
// replaces it wholesale on every change.
type GenerationProgress struct {
	BatchID            string     `json:"batch_id,omitempty"`
	State              BatchState `json:"state"`
	Total              int        `json:"total"`
	Completed          int        `json:"completed"`
	Failed             int        `json:"failed"`
	CurrentStudentName *string    `json:"current_student_name"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// IsComplete reports whether every queued item was processed.
func (p GenerationProgress) IsComplete() bool {
	return p.Completed+p.Failed == p.Total
}

// Processed returns the number of items that reached a final outcome.
func (p GenerationProgress) Processed() int {
	return p.Completed + p.Failed
}
