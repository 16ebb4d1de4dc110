package models

import "time"

// Student represents a learner enrolled in a class.
type Student struct {
	ID         string     `db:"id" json:"id"`
	Matricule  string     `db:"matricule" json:"matricule"`
	FullName   string     `db:"full_name" json:"full_name"`
	Gender     string     `db:"gender" json:"gender"`
	BirthDate  *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	BirthPlace string     `db:"birth_place" json:"birth_place"`
	ClassID    string     `db:"class_id" json:"class_id"`
}

// ClassInfo is the class metadata printed on a bulletin.
type ClassInfo struct {
	ID              string `db:"id" json:"id"`
	Name            string `db:"name" json:"name"`
	Level           string `db:"level" json:"level"`
	HomeroomTeacher string `db:"homeroom_teacher" json:"homeroom_teacher"`
}

// Period is an academic term (trimester, semester) inside an academic year.
type Period struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	AcademicYear string    `db:"academic_year" json:"academic_year"`
	Sequence     int       `db:"sequence" json:"sequence"`
	StartDate    time.Time `db:"start_date" json:"start_date"`
	EndDate      time.Time `db:"end_date" json:"end_date"`
}

// AttendanceSummary holds a student's attendance counters for a period.
type AttendanceSummary struct {
	Absences          int `db:"absences" json:"absences"`
	JustifiedAbsences int `db:"justified_absences" json:"justified_absences"`
	Lates             int `db:"lates" json:"lates"`
}
