package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/sma-bulletin/internal/models"
	appErrors "github.com/noah-isme/sma-bulletin/pkg/errors"
	"github.com/noah-isme/sma-bulletin/pkg/export"
)

// DocumentRenderer turns a report card into bytes of one format.
type DocumentRenderer interface {
	Render(card *models.ReportCard) ([]byte, error)
	Format() models.BulletinFormat
}

// RendererFactory returns the renderer for a format.
type RendererFactory func(format models.BulletinFormat) (DocumentRenderer, error)

func defaultRenderer(format models.BulletinFormat) (DocumentRenderer, error) {
	renderer, err := NewBulletinRenderer(format)
	if err != nil {
		return nil, err
	}
	return renderer, nil
}

type documentExporter interface {
	RenderDocument(doc export.Document) ([]byte, error)
}

// BulletinRenderer lays report cards out as export documents. Output depends
// only on the card, so identical cards render to identical bytes.
type BulletinRenderer struct {
	format   models.BulletinFormat
	exporter documentExporter
}

// NewBulletinRenderer returns the renderer for format.
func NewBulletinRenderer(format models.BulletinFormat) (*BulletinRenderer, error) {
	switch format {
	case models.BulletinFormatPDF:
		return &BulletinRenderer{format: format, exporter: export.NewPDFExporter()}, nil
	case models.BulletinFormatCSV:
		return &BulletinRenderer{format: format, exporter: export.NewCSVExporter()}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format))
	}
}

// Format reports the output format.
func (r *BulletinRenderer) Format() models.BulletinFormat {
	return r.format
}

// Render produces the document bytes. Failures are reported as ErrRender.
func (r *BulletinRenderer) Render(card *models.ReportCard) ([]byte, error) {
	if card == nil {
		return nil, appErrors.Clone(appErrors.ErrRender, "no report card to render")
	}
	data, err := r.exporter.RenderDocument(bulletinDocument(card))
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrRender, err, "")
	}
	return data, nil
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func coef(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func rankLabel(rank, size int) string {
	if rank <= 0 {
		return "-"
	}
	suffix := "e"
	if rank == 1 {
		suffix = "er"
	}
	if size <= 0 {
		return fmt.Sprintf("%d%s", rank, suffix)
	}
	return fmt.Sprintf("%d%s / %d", rank, suffix, size)
}

func bulletinDocument(card *models.ReportCard) export.Document {
	birth := ""
	if card.BirthDate != nil {
		birth = card.BirthDate.Format("02/01/2006")
	}
	doc := export.Document{
		Title:    "Bulletin de notes",
		Subtitle: strings.TrimSpace(fmt.Sprintf("%s %s", card.PeriodName, card.AcademicYear)),
		Header: []export.Field{
			{Label: "Établissement", Value: card.SchoolName},
			{Label: "Classe", Value: card.ClassName},
			{Label: "Élève", Value: card.StudentName},
			{Label: "Matricule", Value: card.Matricule},
			{Label: "Né(e) le", Value: birth},
			{Label: "À", Value: card.BirthPlace},
		},
		CreatedAt: card.GeneratedAt,
	}

	headers := []string{"Matière", "Notes", "Moy.", "Coef", "Total", "Min", "Max", "Rang", "Appréciation", "Professeur"}
	widths := []float64{3, 3, 1.2, 1, 1.3, 1.1, 1.1, 1.2, 2.2, 2.6}
	categories := make([]string, 0)
	rows := make(map[string][][]string)
	for _, subject := range card.Subjects {
		if _, ok := rows[subject.Category]; !ok {
			categories = append(categories, subject.Category)
		}
		marks := make([]string, 0, len(subject.Evaluations))
		for _, evaluation := range subject.Evaluations {
			marks = append(marks, num(evaluation.Mark))
		}
		rows[subject.Category] = append(rows[subject.Category], []string{
			subject.SubjectName,
			strings.Join(marks, " "),
			num(subject.Average),
			coef(subject.Coefficient),
			num(subject.Total),
			num(subject.ClassMin),
			num(subject.ClassMax),
			rankLabel(subject.Rank, 0),
			subject.Appreciation,
			subject.TeacherName,
		})
	}
	for _, category := range categories {
		doc.Tables = append(doc.Tables, export.Table{Title: category, Headers: headers, Widths: widths, Rows: rows[category]})
	}

	doc.Tables = append(doc.Tables, export.Table{
		Title:   "Résultats",
		Headers: []string{"Total coef.", "Total points", "Moyenne générale", "Rang", "Moy. classe", "Min", "Max"},
		Rows: [][]string{{
			coef(card.TotalCoefficient),
			num(card.TotalPoints),
			num(card.GeneralAverage),
			rankLabel(card.Rank, card.ClassSize),
			num(card.ClassAverage),
			num(card.ClassMin),
			num(card.ClassMax),
		}},
	})

	if len(card.History) > 0 {
		history := export.Table{Title: "Moyennes antérieures", Headers: []string{"Période", "Moyenne"}}
		for _, h := range card.History {
			history.Rows = append(history.Rows, []string{h.PeriodName, num(h.Average)})
		}
		doc.Tables = append(doc.Tables, history)
	}

	doc.Footer = []export.Field{
		{Label: "Appréciation", Value: card.GeneralAppreciation},
		{Label: "Décision", Value: card.Decision.Text()},
		{Label: "Distinction", Value: card.Honor.Label()},
		{Label: "Absences", Value: fmt.Sprintf("%d (%d justifiées)", card.Attendance.Absences, card.Attendance.JustifiedAbsences)},
		{Label: "Retards", Value: strconv.Itoa(card.Attendance.Lates)},
	}
	for _, s := range card.Signatories {
		doc.Notes = append(doc.Notes, fmt.Sprintf("%s : %s", s.Role, s.Name))
	}
	if !card.GeneratedAt.IsZero() {
		doc.Notes = append(doc.Notes, "Édité le "+card.GeneratedAt.In(time.UTC).Format("02/01/2006 15:04"))
	}
	return doc
}
