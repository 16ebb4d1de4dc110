package models

import "time"

// HonorTier is the single honor-roll level earned for a period. The three
// bulletin flags are derived from it, so at most one of them is ever true.
type HonorTier string

const (
	HonorNone          HonorTier = ""
	HonorHonneur       HonorTier = "HONNEUR"
	HonorEncouragement HonorTier = "ENCOURAGEMENT"
	HonorFelicitations HonorTier = "FELICITATIONS"
)

// Label returns the printable mention for the tier.
func (h HonorTier) Label() string {
	switch h {
	case HonorHonneur:
		return "Tableau d'honneur"
	case HonorEncouragement:
		return "Tableau d'honneur avec encouragements"
	case HonorFelicitations:
		return "Tableau d'honneur avec félicitations"
	default:
		return ""
	}
}

// Decision is the end-of-period council decision.
type Decision string

const (
	DecisionPromotion  Decision = "PROMOTION"
	DecisionRepetition Decision = "REPETITION"
)

// Text returns the printable decision.
func (d Decision) Text() string {
	switch d {
	case DecisionPromotion:
		return "Admis(e) en classe supérieure"
	case DecisionRepetition:
		return "Redouble la classe"
	default:
		return ""
	}
}

// EvaluationSummary is one evaluation line of a subject block.
type EvaluationSummary struct {
	Label  string         `json:"label"`
	Kind   EvaluationKind `json:"kind"`
	Mark   float64        `json:"mark"`
	Weight float64        `json:"weight"`
}

// ReportCardSubject is the per-subject aggregate of a bulletin.
type ReportCardSubject struct {
	SubjectID    string              `json:"subject_id"`
	SubjectName  string              `json:"subject_name"`
	Category     string              `json:"category"`
	TeacherName  string              `json:"teacher_name"`
	Evaluations  []EvaluationSummary `json:"evaluations"`
	Average      float64             `json:"average"`
	Coefficient  float64             `json:"coefficient"`
	Total        float64             `json:"total"`
	ClassMin     float64             `json:"class_min"`
	ClassMax     float64             `json:"class_max"`
	Rank         int                 `json:"rank"`
	Appreciation string              `json:"appreciation"`
}

// HistoricalAverage is the general average of an earlier period.
type HistoricalAverage struct {
	PeriodID   string  `json:"period_id"`
	PeriodName string  `json:"period_name"`
	Average    float64 `json:"average"`
}

// Signatory is a person signing the bulletin.
type Signatory struct {
	Role string `json:"role"`
	Name string `json:"name"`
}

// ReportCard is one student's bulletin for one period. It is built fresh on
// every generation and never edited afterwards.
type ReportCard struct {
	SchoolName   string     `json:"school_name"`
	StudentID    string     `json:"student_id"`
	Matricule    string     `json:"matricule"`
	StudentName  string     `json:"student_name"`
	Gender       string     `json:"gender"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
	BirthPlace   string     `json:"birth_place"`
	ClassID      string     `json:"class_id"`
	ClassName    string     `json:"class_name"`
	PeriodID     string     `json:"period_id"`
	PeriodName   string     `json:"period_name"`
	AcademicYear string     `json:"academic_year"`

	Subjects            []ReportCardSubject `json:"subjects"`
	TotalCoefficient    float64             `json:"total_coefficient"`
	TotalPoints         float64             `json:"total_points"`
	GeneralAverage      float64             `json:"general_average"`
	GeneralAppreciation string              `json:"general_appreciation"`

	ClassAverage float64 `json:"class_average"`
	ClassMin     float64 `json:"class_min"`
	ClassMax     float64 `json:"class_max"`
	Rank         int     `json:"rank"`
	ClassSize    int     `json:"class_size"`

	Decision Decision  `json:"decision"`
	Honor    HonorTier `json:"honor"`

	History     []HistoricalAverage `json:"history"`
	Attendance  AttendanceSummary   `json:"attendance"`
	Signatories []Signatory         `json:"signatories"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// TableauHonneur reports the honor-roll flag.
func (r *ReportCard) TableauHonneur() bool { return r.Honor == HonorHonneur }

// TableauEncouragement reports the encouragement flag.
func (r *ReportCard) TableauEncouragement() bool { return r.Honor == HonorEncouragement }

// TableauFelicitations reports the congratulations flag.
func (r *ReportCard) TableauFelicitations() bool { return r.Honor == HonorFelicitations }

// ClassSubjectStats holds class-wide figures for one subject.
type ClassSubjectStats struct {
	SubjectID string         `json:"subject_id"`
	Average   float64        `json:"average"`
	Min       float64        `json:"min"`
	Max       float64        `json:"max"`
	Ranks     map[string]int `json:"ranks"`
}

// ClassStudentStanding is one student's overall position in the class.
type ClassStudentStanding struct {
	StudentID      string  `json:"student_id"`
	StudentName    string  `json:"student_name"`
	GeneralAverage float64 `json:"general_average"`
	Rank           int     `json:"rank"`
}

// ClassStatistics holds class-wide figures for a class and period.
type ClassStatistics struct {
	ClassID   string                       `json:"class_id"`
	PeriodID  string                       `json:"period_id"`
	Size      int                          `json:"size"`
	Average   float64                      `json:"average"`
	Min       float64                      `json:"min"`
	Max       float64                      `json:"max"`
	Standings []ClassStudentStanding       `json:"standings"`
	Subjects  map[string]ClassSubjectStats `json:"subjects"`
}

// Standing returns the overall standing of a student, if ranked.
func (s *ClassStatistics) Standing(studentID string) (ClassStudentStanding, bool) {
	if s == nil {
		return ClassStudentStanding{}, false
	}
	for _, standing := range s.Standings {
		if standing.StudentID == studentID {
			return standing, true
		}
	}
	return ClassStudentStanding{}, false
}
