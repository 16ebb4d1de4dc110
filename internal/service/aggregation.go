package service

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-bulletin/internal/models"
)

// PassMark is the general average needed for promotion.
const PassMark = 10.0

type appreciationStep struct {
	min   float64
	label string
}

// Ordered from highest threshold down; first match wins.
var appreciationLadder = []appreciationStep{
	{18, "Excellent"},
	{16, "Très Bien"},
	{14, "Bien"},
	{12, "Assez Bien"},
	{10, "Passable"},
}

// Round2 rounds half-up to two decimals. Every average and total goes through it.
// The value is scaled through its shortest decimal form, so 9.995 rounds to 10
// even though its binary value sits just below.
func Round2(v float64) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	mantissa, exp, _ := strings.Cut(strconv.FormatFloat(v, 'e', -1, 64), "e")
	e, err := strconv.Atoi(exp)
	if err != nil {
		return math.Floor(v*100+0.5) / 100
	}
	scaled, err := strconv.ParseFloat(mantissa+"e"+strconv.Itoa(e+2), 64)
	if err != nil {
		return math.Floor(v*100+0.5) / 100
	}
	return math.Floor(scaled+0.5) / 100
}

// Appreciation maps an average out of 20 to its label.
func Appreciation(average float64) string {
	for _, step := range appreciationLadder {
		if average >= step.min {
			return step.label
		}
	}
	return "Insuffisant"
}

// DecisionFor returns the council decision for a general average.
func DecisionFor(generalAverage float64) models.Decision {
	if generalAverage >= PassMark {
		return models.DecisionPromotion
	}
	return models.DecisionRepetition
}

// HonorFor returns the honor tier for a general average.
func HonorFor(generalAverage float64) models.HonorTier {
	switch {
	case generalAverage >= 16:
		return models.HonorFelicitations
	case generalAverage >= 14:
		return models.HonorEncouragement
	case generalAverage >= 12:
		return models.HonorHonneur
	default:
		return models.HonorNone
	}
}

// SessionStats returns the session average and the whole-number percentage of
// marks at or above half the maximum. An empty session yields 0 and 0.
func SessionStats(marks []float64, maxValue float64) (float64, int) {
	if len(marks) == 0 {
		return 0, 0
	}
	if maxValue <= 0 {
		maxValue = models.DefaultMaxValue
	}
	var sum float64
	passed := 0
	for _, mark := range marks {
		sum += mark
		if mark >= maxValue/2 {
			passed++
		}
	}
	rate := int(math.Floor(float64(passed)*100/float64(len(marks)) + 0.5))
	return Round2(sum / float64(len(marks))), rate
}

// Aggregator turns raw grades into subject and overall figures. It holds no
// state besides its logger and is safe for concurrent use.
type Aggregator struct {
	logger *zap.Logger
}

// NewAggregator constructs an aggregator.
func NewAggregator(logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{logger: logger}
}

func (a *Aggregator) clamp(studentID string, mark models.EvaluationMark) float64 {
	maxValue := mark.MaxValue
	if maxValue <= 0 {
		maxValue = models.DefaultMaxValue
	}
	value := mark.Mark
	switch {
	case math.IsNaN(value) || value < 0:
		value = 0
	case value > maxValue:
		value = maxValue
	default:
		return value
	}
	a.logger.Warn("mark out of range clamped",
		zap.String("student_id", studentID),
		zap.String("session_id", mark.SessionID),
		zap.Float64("mark", mark.Mark),
		zap.Float64("max_value", maxValue))
	return value
}

// Subject aggregates one subject's marks. It reports false when the subject has no marks.
// Class figures (min, max, rank) are left for the caller to fill in.
func (a *Aggregator) Subject(studentID string, grades models.SubjectGrades) (models.ReportCardSubject, bool) {
	if len(grades.Marks) == 0 {
		return models.ReportCardSubject{}, false
	}
	coefficient := grades.Coefficient
	if coefficient <= 0 {
		coefficient = models.DefaultCoefficient
	}
	evaluations := make([]models.EvaluationSummary, 0, len(grades.Marks))
	var sum float64
	for _, mark := range grades.Marks {
		value := a.clamp(studentID, mark)
		sum += value
		weight := mark.Weight
		if weight <= 0 {
			weight = models.DefaultCoefficient
		}
		label := strings.TrimSpace(mark.Label)
		if label == "" {
			label = mark.Kind.Label()
		}
		evaluations = append(evaluations, models.EvaluationSummary{
			Label:  label,
			Kind:   mark.Kind,
			Mark:   value,
			Weight: weight,
		})
	}
	average := Round2(sum / float64(len(grades.Marks)))
	return models.ReportCardSubject{
		SubjectID:    grades.SubjectID,
		SubjectName:  grades.SubjectName,
		Category:     grades.Category,
		TeacherName:  grades.TeacherName,
		Evaluations:  evaluations,
		Average:      average,
		Coefficient:  coefficient,
		Total:        Round2(average * coefficient),
		Appreciation: Appreciation(average),
	}, true
}

// Subjects aggregates every graded subject, in input order.
func (a *Aggregator) Subjects(studentID string, grades []models.SubjectGrades) []models.ReportCardSubject {
	subjects := make([]models.ReportCardSubject, 0, len(grades))
	for _, sg := range grades {
		if subject, ok := a.Subject(studentID, sg); ok {
			subjects = append(subjects, subject)
		}
	}
	return subjects
}

// Overall holds a student's general figures.
type Overall struct {
	TotalCoefficient float64
	TotalPoints      float64
	GeneralAverage   float64
}

// OverallFor computes the coefficient-weighted general average.
func OverallFor(subjects []models.ReportCardSubject) Overall {
	var overall Overall
	for _, subject := range subjects {
		overall.TotalCoefficient += subject.Coefficient
		overall.TotalPoints += subject.Total
	}
	overall.TotalPoints = Round2(overall.TotalPoints)
	if overall.TotalCoefficient > 0 {
		overall.GeneralAverage = Round2(overall.TotalPoints / overall.TotalCoefficient)
	}
	return overall
}

// RankEntry is one member of a cohort being ranked.
type RankEntry struct {
	ID      string
	Name    string
	Average float64
}

// Rank assigns 1-based positions by average descending. Equal averages are
// ordered by name then id, so every entry gets a distinct, stable rank.
func Rank(entries []RankEntry) map[string]int {
	sorted := make([]RankEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Average != sorted[j].Average {
			return sorted[i].Average > sorted[j].Average
		}
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].ID < sorted[j].ID
	})
	ranks := make(map[string]int, len(sorted))
	for i, entry := range sorted {
		ranks[entry.ID] = i + 1
	}
	return ranks
}

// Class computes class-wide statistics from every roster member's grades.
// Students without any graded subject are left out of the standings.
func (a *Aggregator) Class(classID, periodID string, roster []models.StudentGrades) models.ClassStatistics {
	stats := models.ClassStatistics{
		ClassID:  classID,
		PeriodID: periodID,
		Subjects: make(map[string]models.ClassSubjectStats),
	}
	perSubject := make(map[string][]RankEntry)
	subjectOrder := make([]string, 0)
	overall := make([]RankEntry, 0, len(roster))

	for _, member := range roster {
		subjects := a.Subjects(member.Student.ID, member.Subjects)
		if len(subjects) == 0 {
			continue
		}
		for _, subject := range subjects {
			if _, seen := perSubject[subject.SubjectID]; !seen {
				subjectOrder = append(subjectOrder, subject.SubjectID)
			}
			perSubject[subject.SubjectID] = append(perSubject[subject.SubjectID], RankEntry{
				ID: member.Student.ID, Name: member.Student.FullName, Average: subject.Average,
			})
		}
		overall = append(overall, RankEntry{
			ID: member.Student.ID, Name: member.Student.FullName, Average: OverallFor(subjects).GeneralAverage,
		})
	}

	for _, subjectID := range subjectOrder {
		entries := perSubject[subjectID]
		average, min, max := spread(entries)
		stats.Subjects[subjectID] = models.ClassSubjectStats{
			SubjectID: subjectID,
			Average:   average,
			Min:       min,
			Max:       max,
			Ranks:     Rank(entries),
		}
	}

	if len(overall) == 0 {
		return stats
	}
	stats.Size = len(overall)
	stats.Average, stats.Min, stats.Max = spread(overall)
	ranks := Rank(overall)
	stats.Standings = make([]models.ClassStudentStanding, 0, len(overall))
	for _, entry := range overall {
		stats.Standings = append(stats.Standings, models.ClassStudentStanding{
			StudentID:      entry.ID,
			StudentName:    entry.Name,
			GeneralAverage: entry.Average,
			Rank:           ranks[entry.ID],
		})
	}
	sort.Slice(stats.Standings, func(i, j int) bool {
		return stats.Standings[i].Rank < stats.Standings[j].Rank
	})
	return stats
}

func spread(entries []RankEntry) (average, min, max float64) {
	if len(entries) == 0 {
		return 0, 0, 0
	}
	min, max = entries[0].Average, entries[0].Average
	var sum float64
	for _, entry := range entries {
		sum += entry.Average
		if entry.Average < min {
			min = entry.Average
		}
		if entry.Average > max {
			max = entry.Average
		}
	}
	return Round2(sum / float64(len(entries))), min, max
}
