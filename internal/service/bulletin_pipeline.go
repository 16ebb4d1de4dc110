package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/noah-isme/sma-bulletin/internal/models"
	appErrors "github.com/noah-isme/sma-bulletin/pkg/errors"
	"github.com/noah-isme/sma-bulletin/pkg/jobs"
)

// ReportCardBuilder builds one report card.
type ReportCardBuilder interface {
	Build(ctx context.Context, studentID, periodID string) (*models.ReportCard, error)
}

// BulletinSink persists rendered bulletins and returns their stored path.
type BulletinSink interface {
	Write(data []byte, fileName, folder string) (string, error)
}

// DestinationPicker chooses the folder an export writes into. A false result
// means the caller abandoned the export.
type DestinationPicker interface {
	Pick(ctx context.Context) (string, bool)
}

// DestinationFunc adapts a function to DestinationPicker.
type DestinationFunc func(ctx context.Context) (string, bool)

// Pick implements DestinationPicker.
func (f DestinationFunc) Pick(ctx context.Context) (string, bool) {
	return f(ctx)
}

// FolderPicker picks the requested folder, falling back to a default. With
// neither set the export is abandoned.
type FolderPicker struct {
	Requested string
	Fallback  string
}

// Pick implements DestinationPicker.
func (p FolderPicker) Pick(ctx context.Context) (string, bool) {
	if folder := strings.TrimSpace(p.Requested); folder != "" {
		return folder, true
	}
	if folder := strings.TrimSpace(p.Fallback); folder != "" {
		return folder, true
	}
	return "", false
}

// BulletinFileName returns Bulletin_<Student_Name>_<Period>.<ext>. Whitespace
// becomes underscores and path separators are replaced.
func BulletinFileName(studentName, periodName string, format models.BulletinFormat) string {
	return "Bulletin_" + fileNamePart(studentName) + "_" + fileNamePart(periodName) + "." + format.Extension()
}

func fileNamePart(raw string) string {
	normalized := norm.NFC.String(strings.TrimSpace(raw))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range normalized {
		switch {
		case unicode.IsSpace(r):
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
			continue
		case r == '/' || r == '\\' || r == ':' || unicode.IsControl(r):
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
		lastUnderscore = false
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

// GeneratedBulletin describes one persisted bulletin.
type GeneratedBulletin struct {
	StudentID   string
	StudentName string
	FileName    string
	Path        string
	Card        *models.ReportCard
}

// bulletinPipeline is the build, render, write sequence shared by the
// single-document path and the batch queue.
type bulletinPipeline struct {
	builder ReportCardBuilder
	sink    BulletinSink
	metrics *MetricsService
	logger  *zap.Logger
}

// produce generates one bulletin. Build failures keep their type, render
// failures are ErrRender and write failures are retryable ErrIO.
func (p *bulletinPipeline) produce(ctx context.Context, studentID, periodID string, renderer DocumentRenderer, folder string) (*GeneratedBulletin, error) {
	card, err := p.builder.Build(ctx, studentID, periodID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := renderer.Render(card)
	p.metrics.ObserveRender(string(renderer.Format()), time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrRender) {
			err = appErrors.WrapAs(appErrors.ErrRender, err, "")
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fileName := BulletinFileName(card.StudentName, card.PeriodName, renderer.Format())
	path, err := p.sink.Write(data, fileName, folder)
	if err != nil {
		return nil, jobs.Retryable(appErrors.WrapAs(appErrors.ErrIO, err, ""))
	}
	p.logger.Debug("bulletin written", zap.String("student_id", studentID), zap.String("path", path))
	return &GeneratedBulletin{
		StudentID:   card.StudentID,
		StudentName: card.StudentName,
		FileName:    fileName,
		Path:        path,
		Card:        card,
	}, nil
}
