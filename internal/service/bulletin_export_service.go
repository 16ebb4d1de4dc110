package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-bulletin/internal/models"
	appErrors "github.com/noah-isme/sma-bulletin/pkg/errors"
	"github.com/noah-isme/sma-bulletin/pkg/export"
	"github.com/noah-isme/sma-bulletin/pkg/storage"
)

type fileStorage interface {
	BulletinSink
	Open(relPath string) (*os.File, error)
	Delete(relPath string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type summaryLookup interface {
	FindPeriod(ctx context.Context, id string) (*models.Period, error)
	FindClass(ctx context.Context, id string) (*models.ClassInfo, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix       string
	DefaultFormat   models.BulletinFormat
	ResultTTL       time.Duration
	CleanupSchedule string
	Renderers       RendererFactory
}

// ExportResult describes the outcome of a single-document export. Cancelled
// is set when the destination picker abandoned the export.
type ExportResult struct {
	Cancelled    bool
	StudentID    string
	FileName     string
	RelativePath string
	Token        string
	URL          string
	Format       models.BulletinFormat
	ExpiresAt    time.Time
}

// SummaryResult is a rendered class ranking sheet.
type SummaryResult struct {
	FileName    string
	ContentType string
	Data        []byte
}

// BulletinExportService runs the single-document path, class summaries and
// the housekeeping of exported files.
type BulletinExportService struct {
	pipeline *bulletinPipeline
	builder  ReportCardBuilder
	stats    ClassStatsProvider
	lookup   summaryLookup
	storage  fileStorage
	signer   *storage.SignedURLSigner
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewBulletinExportService constructs the service.
func NewBulletinExportService(builder ReportCardBuilder, stats ClassStatsProvider, lookup summaryLookup, files fileStorage, signer *storage.SignedURLSigner, metrics *MetricsService, cfg ExportConfig, logger *zap.Logger) *BulletinExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if !cfg.DefaultFormat.Valid() {
		cfg.DefaultFormat = models.BulletinFormatPDF
	}
	if cfg.Renderers == nil {
		cfg.Renderers = defaultRenderer
	}
	return &BulletinExportService{
		pipeline: &bulletinPipeline{builder: builder, sink: files, metrics: metrics, logger: logger},
		builder:  builder,
		stats:    stats,
		lookup:   lookup,
		storage:  files,
		signer:   signer,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// Preview builds the report card without rendering or persisting it.
func (s *BulletinExportService) Preview(ctx context.Context, studentID, periodID string) (*models.ReportCard, error) {
	return s.builder.Build(ctx, studentID, periodID)
}

// ExportOne generates one bulletin synchronously. A picker that yields no
// destination ends the call cleanly before any rendering happens.
func (s *BulletinExportService) ExportOne(ctx context.Context, studentID, periodID string, format models.BulletinFormat, picker DestinationPicker) (*ExportResult, error) {
	if format == "" {
		format = s.cfg.DefaultFormat
	}
	renderer, err := s.cfg.Renderers(format)
	if err != nil {
		return nil, err
	}
	folder, ok := picker.Pick(ctx)
	if !ok {
		return &ExportResult{Cancelled: true, StudentID: studentID, Format: format}, nil
	}

	generated, err := s.pipeline.produce(ctx, studentID, periodID, renderer, folder)
	if err != nil {
		s.metrics.RecordBulletin(PathSingle, OutcomeFailed)
		s.logger.Warn("bulletin export failed", zap.String("student_id", studentID), zap.String("period_id", periodID), zap.Error(err))
		return nil, err
	}
	s.metrics.RecordBulletin(PathSingle, OutcomeCompleted)

	result := &ExportResult{
		StudentID:    generated.StudentID,
		FileName:     generated.FileName,
		RelativePath: generated.Path,
		Format:       format,
	}
	if s.signer != nil {
		token, claims, err := s.signer.Sign(generated.StudentID, generated.Path)
		if err != nil {
			if removeErr := s.storage.Delete(generated.Path); removeErr != nil {
				s.logger.Warn("unsigned bulletin left on disk", zap.String("path", generated.Path), zap.Error(removeErr))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
		}
		prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
		if prefix == "" {
			prefix = "/api/v1"
		}
		result.Token = token
		result.URL = fmt.Sprintf("%s/bulletins/download/%s", prefix, token)
		result.ExpiresAt = claims.ExpiresAt
	}
	return result, nil
}

// ClassSummary renders the class ranking sheet for a period.
func (s *BulletinExportService) ClassSummary(ctx context.Context, classID, periodID string, format models.BulletinFormat) (*SummaryResult, error) {
	if format == "" {
		format = s.cfg.DefaultFormat
	}
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format))
	}
	class, err := s.lookup.FindClass(ctx, classID)
	if err != nil {
		return nil, notFoundOr(err, "class")
	}
	period, err := s.lookup.FindPeriod(ctx, periodID)
	if err != nil {
		return nil, notFoundOr(err, "period")
	}
	stats, err := s.stats.Get(ctx, classID, periodID)
	if err != nil {
		return nil, err
	}
	if len(stats.Standings) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no grades recorded for class in period")
	}

	headers := []string{"Rang", "Élève", "Moyenne", "Appréciation", "Décision", "Distinction"}
	rows := make([]map[string]string, 0, len(stats.Standings))
	for _, standing := range stats.Standings {
		rows = append(rows, map[string]string{
			"Rang":         fmt.Sprintf("%d", standing.Rank),
			"Élève":        standing.StudentName,
			"Moyenne":      num(standing.GeneralAverage),
			"Appréciation": Appreciation(standing.GeneralAverage),
			"Décision":     DecisionFor(standing.GeneralAverage).Text(),
			"Distinction":  HonorFor(standing.GeneralAverage).Label(),
		})
	}
	dataset := export.Dataset{Headers: headers, Rows: rows}
	title := fmt.Sprintf("Classement %s %s", class.Name, period.Name)

	var data []byte
	contentType := "text/csv"
	switch format {
	case models.BulletinFormatCSV:
		data, err = export.NewCSVExporter().Render(dataset)
	case models.BulletinFormatPDF:
		contentType = "application/pdf"
		data, err = export.NewPDFExporter().Render(dataset, title)
	}
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrRender, err, "failed to render class summary")
	}
	return &SummaryResult{
		FileName:    "Classement_" + fileNamePart(class.Name) + "_" + fileNamePart(period.Name) + "." + format.Extension(),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// ParseToken validates a download token.
func (s *BulletinExportService) ParseToken(token string) (studentID, relPath string, err error) {
	if s.signer == nil {
		return "", "", appErrors.Clone(appErrors.ErrNotFound, "downloads disabled")
	}
	claims, err := s.signer.Verify(token)
	switch {
	case errors.Is(err, storage.ErrTokenExpired):
		return "", "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "download link expired")
	case err != nil:
		return "", "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download link")
	}
	return claims.StudentID, claims.Path, nil
}

// Open returns a handle to a stored bulletin.
func (s *BulletinExportService) Open(relPath string) (*os.File, error) {
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "bulletin file not found")
	}
	return file, nil
}

// Cleanup removes exported files older than the result TTL.
func (s *BulletinExportService) Cleanup() ([]string, error) {
	deleted, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
	if err != nil {
		return nil, err
	}
	if len(deleted) > 0 {
		s.logger.Info("expired bulletins removed", zap.Int("count", len(deleted)))
	}
	return deleted, nil
}

// StartCleanup schedules Cleanup on the configured cron expression. The returned
// scheduler is running; callers stop it on shutdown.
func (s *BulletinExportService) StartCleanup() (*cron.Cron, error) {
	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := scheduler.AddFunc(s.cfg.CleanupSchedule, func() {
		if _, err := s.Cleanup(); err != nil {
			s.logger.Warn("bulletin cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule bulletin cleanup %q: %w", s.cfg.CleanupSchedule, err)
	}
	scheduler.Start()
	s.logger.Info("bulletin cleanup scheduled", zap.String("schedule", s.cfg.CleanupSchedule), zap.Duration("ttl", s.cfg.ResultTTL))
	return scheduler, nil
}
