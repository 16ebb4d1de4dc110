package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-bulletin/internal/models"
)

// GradeStoreRepository is the read side of the grade book consumed by the bulletin builder.
type GradeStoreRepository struct {
	db *sqlx.DB
}

// NewGradeStoreRepository constructs the repository.
func NewGradeStoreRepository(db *sqlx.DB) *GradeStoreRepository {
	return &GradeStoreRepository{db: db}
}

const studentColumns = `s.id, s.matricule, s.full_name, s.gender, s.birth_date, COALESCE(s.birth_place, '') AS birth_place, s.class_id`

// FindStudent returns a student by id. Missing rows surface as sql.ErrNoRows.
func (r *GradeStoreRepository) FindStudent(ctx context.Context, id string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students s WHERE s.id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindPeriod returns a period by id.
func (r *GradeStoreRepository) FindPeriod(ctx context.Context, id string) (*models.Period, error) {
	const query = `SELECT id, name, academic_year, sequence, start_date, end_date FROM periods WHERE id = $1`
	var period models.Period
	if err := r.db.GetContext(ctx, &period, query, id); err != nil {
		return nil, err
	}
	return &period, nil
}

// FindClass returns class metadata with the homeroom teacher's name.
func (r *GradeStoreRepository) FindClass(ctx context.Context, id string) (*models.ClassInfo, error) {
	const query = `SELECT c.id, c.name, COALESCE(c.level, '') AS level, COALESCE(t.full_name, '') AS homeroom_teacher
FROM classes c LEFT JOIN teachers t ON t.id = c.homeroom_teacher_id WHERE c.id = $1`
	var class models.ClassInfo
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// ListPriorPeriods returns the earlier periods of the same academic year, oldest first.
func (r *GradeStoreRepository) ListPriorPeriods(ctx context.Context, period models.Period) ([]models.Period, error) {
	const query = `SELECT id, name, academic_year, sequence, start_date, end_date FROM periods
WHERE academic_year = $1 AND sequence < $2 ORDER BY sequence ASC`
	var periods []models.Period
	if err := r.db.SelectContext(ctx, &periods, query, period.AcademicYear, period.Sequence); err != nil {
		return nil, fmt.Errorf("list prior periods: %w", err)
	}
	return periods, nil
}

// ClassRoster lists the students of a class ordered by name.
func (r *GradeStoreRepository) ClassRoster(ctx context.Context, classID string) ([]models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students s WHERE s.class_id = $1 ORDER BY s.full_name ASC, s.id ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, classID); err != nil {
		return nil, fmt.Errorf("list class roster: %w", err)
	}
	return students, nil
}

// StudentsByIDs loads the given students, in no particular order.
func (r *GradeStoreRepository) StudentsByIDs(ctx context.Context, ids []string) ([]models.Student, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+studentColumns+` FROM students s WHERE s.id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build students query: %w", err)
	}
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// Attendance sums a student's attendance records over the period.
func (r *GradeStoreRepository) Attendance(ctx context.Context, studentID, periodID string) (models.AttendanceSummary, error) {
	const query = `SELECT
	COUNT(*) FILTER (WHERE status = 'ABSENT') AS absences,
	COUNT(*) FILTER (WHERE status = 'ABSENT' AND justified) AS justified_absences,
	COUNT(*) FILTER (WHERE status = 'LATE') AS lates
FROM attendance_records WHERE student_id = $1 AND period_id = $2`
	var summary models.AttendanceSummary
	if err := r.db.GetContext(ctx, &summary, query, studentID, periodID); err != nil {
		return models.AttendanceSummary{}, fmt.Errorf("load attendance: %w", err)
	}
	return summary, nil
}

type gradeRow struct {
	StudentID   string                `db:"student_id"`
	SubjectID   string                `db:"subject_id"`
	SubjectName string                `db:"subject_name"`
	Category    string                `db:"category"`
	TeacherName string                `db:"teacher_name"`
	Coefficient float64               `db:"subject_coefficient"`
	SessionID   string                `db:"session_id"`
	Label       string                `db:"label"`
	Kind        models.EvaluationKind `db:"kind"`
	Mark        float64               `db:"mark"`
	MaxValue    float64               `db:"max_value"`
	Weight      float64               `db:"weight"`
	HeldOn      time.Time             `db:"held_on"`
}

const gradeSelect = `SELECT g.student_id, sub.id AS subject_id, sub.name AS subject_name, COALESCE(sub.category, '') AS category,
	COALESCE(t.full_name, '') AS teacher_name, COALESCE(cs.coefficient, 1) AS subject_coefficient,
	es.id AS session_id, et.label, et.kind, g.mark, et.max_value, et.coefficient AS weight, es.held_on
FROM grades g
JOIN evaluation_sessions es ON es.id = g.session_id
JOIN evaluation_templates et ON et.id = es.template_id
JOIN subjects sub ON sub.id = es.subject_id
LEFT JOIN class_subjects cs ON cs.class_id = es.class_id AND cs.subject_id = es.subject_id
LEFT JOIN teachers t ON t.id = cs.teacher_id`

const gradeOrder = ` ORDER BY COALESCE(cs.position, 0) ASC, sub.name ASC, es.held_on ASC, es.id ASC`

// StudentGrades returns one student's marks for the period grouped by subject.
func (r *GradeStoreRepository) StudentGrades(ctx context.Context, studentID, periodID string) ([]models.SubjectGrades, error) {
	query := gradeSelect + ` WHERE g.student_id = $1 AND es.period_id = $2` + gradeOrder
	var rows []gradeRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID, periodID); err != nil {
		return nil, fmt.Errorf("list student grades: %w", err)
	}
	return groupBySubject(rows), nil
}

// ClassGrades returns the marks of every roster member for the period.
// Students without marks are included with no subjects.
func (r *GradeStoreRepository) ClassGrades(ctx context.Context, classID, periodID string) ([]models.StudentGrades, error) {
	roster, err := r.ClassRoster(ctx, classID)
	if err != nil {
		return nil, err
	}
	query := gradeSelect + ` WHERE es.class_id = $1 AND es.period_id = $2` + gradeOrder
	var rows []gradeRow
	if err := r.db.SelectContext(ctx, &rows, query, classID, periodID); err != nil {
		return nil, fmt.Errorf("list class grades: %w", err)
	}
	byStudent := make(map[string][]gradeRow, len(roster))
	for _, row := range rows {
		byStudent[row.StudentID] = append(byStudent[row.StudentID], row)
	}
	result := make([]models.StudentGrades, 0, len(roster))
	for _, student := range roster {
		result = append(result, models.StudentGrades{
			Student:  student,
			Subjects: groupBySubject(byStudent[student.ID]),
		})
	}
	return result, nil
}

func groupBySubject(rows []gradeRow) []models.SubjectGrades {
	subjects := make([]models.SubjectGrades, 0)
	index := make(map[string]int)
	for _, row := range rows {
		pos, ok := index[row.SubjectID]
		if !ok {
			pos = len(subjects)
			index[row.SubjectID] = pos
			subjects = append(subjects, models.SubjectGrades{
				SubjectID:   row.SubjectID,
				SubjectName: row.SubjectName,
				Category:    row.Category,
				TeacherName: row.TeacherName,
				Coefficient: row.Coefficient,
			})
		}
		subjects[pos].Marks = append(subjects[pos].Marks, models.EvaluationMark{
			SessionID: row.SessionID,
			SubjectID: row.SubjectID,
			Label:     row.Label,
			Kind:      row.Kind,
			Mark:      row.Mark,
			MaxValue:  row.MaxValue,
			Weight:    row.Weight,
			HeldOn:    row.HeldOn,
		})
	}
	return subjects
}
