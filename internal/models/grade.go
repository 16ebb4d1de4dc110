package models

import (
	"fmt"
	"time"
)

// EvaluationKind is the closed set of assessment kinds.
type EvaluationKind string

const (
	EvaluationKindAssignment EvaluationKind = "ASSIGNMENT"
	EvaluationKindExam       EvaluationKind = "EXAM"
)

// Valid reports whether k is one of the known kinds.
func (k EvaluationKind) Valid() bool {
	switch k {
	case EvaluationKindAssignment, EvaluationKindExam:
		return true
	default:
		return false
	}
}

// Label returns the printable name of the kind.
func (k EvaluationKind) Label() string {
	switch k {
	case EvaluationKindAssignment:
		return "Devoir"
	case EvaluationKindExam:
		return "Composition"
	default:
		return string(k)
	}
}

// ParseEvaluationKind validates a raw kind value.
func ParseEvaluationKind(raw string) (EvaluationKind, error) {
	kind := EvaluationKind(raw)
	if !kind.Valid() {
		return "", fmt.Errorf("unknown evaluation kind %q", raw)
	}
	return kind, nil
}

const (
	// DefaultMaxValue is the mark scale used when a template does not set one.
	DefaultMaxValue = 20.0
	// DefaultCoefficient is the template weight used when none is set.
	DefaultCoefficient = 1.0
)

// EvaluationTemplate is a recurring assessment definition for a class and subject.
type EvaluationTemplate struct {
	ID          string         `db:"id" json:"id"`
	ClassID     string         `db:"class_id" json:"class_id"`
	SubjectID   string         `db:"subject_id" json:"subject_id"`
	Kind        EvaluationKind `db:"kind" json:"kind"`
	Label       string         `db:"label" json:"label"`
	MaxValue    float64        `db:"max_value" json:"max_value"`
	Coefficient float64        `db:"coefficient" json:"coefficient"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// WithDefaults fills unset scale and weight.
func (t EvaluationTemplate) WithDefaults() EvaluationTemplate {
	if t.MaxValue <= 0 {
		t.MaxValue = DefaultMaxValue
	}
	if t.Coefficient <= 0 {
		t.Coefficient = DefaultCoefficient
	}
	return t
}

// EvaluationSession is one administration of a template. Sessions are append-only.
type EvaluationSession struct {
	ID          string    `db:"id" json:"id"`
	TemplateID  string    `db:"template_id" json:"template_id"`
	ClassID     string    `db:"class_id" json:"class_id"`
	SubjectID   string    `db:"subject_id" json:"subject_id"`
	PeriodID    string    `db:"period_id" json:"period_id"`
	HeldOn      time.Time `db:"held_on" json:"held_on"`
	Average     float64   `db:"average" json:"average"`
	SuccessRate int       `db:"success_rate" json:"success_rate"`
	MarkCount   int       `db:"mark_count" json:"mark_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Grade is one student's mark for a session.
type Grade struct {
	ID        string    `db:"id" json:"id"`
	SessionID string    `db:"session_id" json:"session_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Mark      float64   `db:"mark" json:"mark"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// EvaluationMark is a student's mark joined with its template metadata.
type EvaluationMark struct {
	SessionID string         `db:"session_id" json:"session_id"`
	SubjectID string         `db:"subject_id" json:"subject_id"`
	Label     string         `db:"label" json:"label"`
	Kind      EvaluationKind `db:"kind" json:"kind"`
	Mark      float64        `db:"mark" json:"mark"`
	MaxValue  float64        `db:"max_value" json:"max_value"`
	Weight    float64        `db:"weight" json:"weight"`
	HeldOn    time.Time      `db:"held_on" json:"held_on"`
}

// SubjectGrades groups one student's marks for one subject in a period.
type SubjectGrades struct {
	SubjectID   string           `db:"subject_id" json:"subject_id"`
	SubjectName string           `db:"subject_name" json:"subject_name"`
	Category    string           `db:"category" json:"category"`
	TeacherName string           `db:"teacher_name" json:"teacher_name"`
	Coefficient float64          `db:"coefficient" json:"coefficient"`
	Marks       []EvaluationMark `json:"marks"`
}

// StudentGrades is one roster entry with its grades, used for class-wide statistics.
type StudentGrades struct {
	Student  Student         `json:"student"`
	Subjects []SubjectGrades `json:"subjects"`
}
