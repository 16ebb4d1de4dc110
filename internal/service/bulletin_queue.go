package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-bulletin/internal/dto"
	"github.com/noah-isme/sma-bulletin/internal/models"
	"github.com/noah-isme/sma-bulletin/internal/repository"
	appErrors "github.com/noah-isme/sma-bulletin/pkg/errors"
	"github.com/noah-isme/sma-bulletin/pkg/jobs"
)

const bulletinJobType = "bulletin"

// StudentDirectory resolves the students of a batch.
type StudentDirectory interface {
	ClassRoster(ctx context.Context, classID string) ([]models.Student, error)
	StudentsByIDs(ctx context.Context, ids []string) ([]models.Student, error)
}

// BatchRecorder persists batch runs.
type BatchRecorder interface {
	Create(ctx context.Context, batch *models.BulletinBatch) error
	GetByID(ctx context.Context, id string) (*models.BulletinBatch, error)
	Update(ctx context.Context, id string, params repository.UpdateBatchParams) error
}

// QueueConfig tunes the generation queue.
type QueueConfig struct {
	Workers       int
	Retries       int
	RetryDelay    time.Duration
	DefaultFormat models.BulletinFormat
	Renderers     RendererFactory
	Clock         func() time.Time
}

type batchItem struct {
	StudentID   string
	StudentName string
	PeriodID    string
	Folder      string
	Renderer    DocumentRenderer
}

// GenerationQueue runs at most one bulletin batch at a time and publishes its
// progress through a ProgressHub.
type GenerationQueue struct {
	pipeline *bulletinPipeline
	students StudentDirectory
	batches  BatchRecorder
	runner   *jobs.Queue
	hub      *ProgressHub
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      QueueConfig

	mu         sync.Mutex
	progress   models.GenerationProgress
	reserved   bool
	items      []batchItem
	dispatched int
	inFlight   []inFlightItem // start order
}

type inFlightItem struct {
	jobID string
	name  string
}

// NewGenerationQueue wires the queue. batches may be nil.
func NewGenerationQueue(builder ReportCardBuilder, sink BulletinSink, students StudentDirectory, batches BatchRecorder, metrics *MetricsService, cfg QueueConfig, logger *zap.Logger) *GenerationQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	if !cfg.DefaultFormat.Valid() {
		cfg.DefaultFormat = models.BulletinFormatPDF
	}
	if cfg.Renderers == nil {
		cfg.Renderers = defaultRenderer
	}
	q := &GenerationQueue{
		pipeline: &bulletinPipeline{builder: builder, sink: sink, metrics: metrics, logger: logger},
		students: students,
		batches:  batches,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
	q.progress = models.GenerationProgress{State: models.BatchStateIdle, UpdatedAt: cfg.Clock()}
	q.hub = NewProgressHub(q.progress)
	q.runner = jobs.NewQueue("bulletins", q.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return q
}

// Start binds in-flight work to the process lifetime.
func (q *GenerationQueue) Start(ctx context.Context) {
	q.runner.Start(ctx)
}

// BatchTicket is the outcome of QueueBulletins.
type BatchTicket struct {
	Cancelled bool
	BatchID   string
	Progress  models.GenerationProgress
}

// QueueBulletins accepts a batch. It fails with ErrBatchRunning while another
// batch is running or cancelling. When the picker yields no destination the
// call is abandoned without publishing anything.
func (q *GenerationQueue) QueueBulletins(ctx context.Context, req dto.QueueBatchRequest, requestedBy string, picker DestinationPicker) (*BatchTicket, error) {
	if req.PeriodID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "periodId is required")
	}
	if len(req.StudentIDs) == 0 && req.ClassID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentIds or classId is required")
	}
	format := req.Format
	if format == "" {
		format = q.cfg.DefaultFormat
	}
	renderer, err := q.cfg.Renderers(format)
	if err != nil {
		return nil, err
	}

	if err := q.reserve(); err != nil {
		return nil, err
	}
	started := false
	defer func() {
		if !started {
			q.release()
		}
	}()

	folder, ok := picker.Pick(ctx)
	if !ok {
		q.logger.Info("bulletin batch abandoned at destination selection", zap.String("period_id", req.PeriodID))
		return &BatchTicket{Cancelled: true, Progress: q.Progress()}, nil
	}

	students, err := q.resolveStudents(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(students) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no students to generate")
	}

	batchID := uuid.NewString()
	items := make([]batchItem, len(students))
	batch := make([]jobs.Job, len(students))
	for i, student := range students {
		items[i] = batchItem{StudentID: student.ID, StudentName: student.FullName, PeriodID: req.PeriodID, Folder: folder, Renderer: renderer}
		batch[i] = jobs.Job{ID: fmt.Sprintf("%s-%d", batchID, i), Type: bulletinJobType, Payload: items[i]}
	}

	// The runner may still be in its epilogue after the previous batch published its final state.
	if err := q.runner.Wait(ctx); err != nil {
		return nil, err
	}

	q.record(ctx, &models.BulletinBatch{
		ID:          batchID,
		PeriodID:    req.PeriodID,
		ClassID:     optional(req.ClassID),
		Format:      format,
		Destination: folder,
		Status:      models.BatchStateRunning,
		Total:       len(items),
		CreatedBy:   requestedBy,
		CreatedAt:   q.cfg.Clock(),
	})

	// Hooks take q.mu, so nothing is published for this batch before the lock is released.
	q.mu.Lock()
	q.items = items
	q.dispatched = 0
	q.inFlight = q.inFlight[:0]
	err = q.runner.Submit(batch, jobs.Hooks{OnStart: q.onStart, OnDone: q.onDone, OnFinish: q.onFinish})
	if err != nil {
		q.items = nil
		q.mu.Unlock()
		q.closeRecord(batchID, models.BatchStateCancelled, 0, 0, q.cfg.Clock())
		if errors.Is(err, jobs.ErrBusy) {
			return nil, appErrors.ErrBatchRunning
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start batch")
	}
	first := items[0].StudentName
	q.progress = models.GenerationProgress{
		BatchID:            batchID,
		State:              models.BatchStateRunning,
		Total:              len(items),
		CurrentStudentName: &first,
		UpdatedAt:          q.cfg.Clock(),
	}
	snapshot := q.progress
	q.hub.Reset(snapshot)
	q.reserved = false
	started = true
	q.mu.Unlock()

	q.metrics.SetBatchInFlight(true)
	q.logger.Info("bulletin batch started",
		zap.String("batch_id", batchID),
		zap.String("period_id", req.PeriodID),
		zap.Int("total", len(items)),
		zap.String("folder", folder))
	return &BatchTicket{BatchID: batchID, Progress: snapshot}, nil
}

func (q *GenerationQueue) reserve() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reserved || !q.progress.State.Accepting() {
		return appErrors.ErrBatchRunning
	}
	q.reserved = true
	return nil
}

func (q *GenerationQueue) release() {
	q.mu.Lock()
	q.reserved = false
	q.mu.Unlock()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// resolveStudents keeps the requested order for explicit ids. Unknown ids stay
// in the batch under their id and fail at build time.
func (q *GenerationQueue) resolveStudents(ctx context.Context, req dto.QueueBatchRequest) ([]models.Student, error) {
	if len(req.StudentIDs) == 0 {
		roster, err := q.students.ClassRoster(ctx, req.ClassID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
		}
		return roster, nil
	}
	found, err := q.students.StudentsByIDs(ctx, req.StudentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	byID := make(map[string]models.Student, len(found))
	for _, student := range found {
		byID[student.ID] = student
	}
	students := make([]models.Student, 0, len(req.StudentIDs))
	for _, id := range req.StudentIDs {
		student, ok := byID[id]
		if !ok {
			student = models.Student{ID: id, FullName: id}
		}
		students = append(students, student)
	}
	return students, nil
}

func (q *GenerationQueue) handle(ctx context.Context, job jobs.Job) error {
	item, ok := job.Payload.(batchItem)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	_, err := q.pipeline.produce(ctx, item.StudentID, item.PeriodID, item.Renderer, item.Folder)
	return err
}

func (q *GenerationQueue) itemFor(job jobs.Job) batchItem {
	item, _ := job.Payload.(batchItem)
	return item
}

func (q *GenerationQueue) onStart(job jobs.Job) {
	item := q.itemFor(job)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dispatched++
	q.inFlight = append(q.inFlight, inFlightItem{jobID: job.ID, name: item.StudentName})
	if q.progress.CurrentStudentName != nil && *q.progress.CurrentStudentName == item.StudentName {
		return
	}
	name := item.StudentName
	q.publishLocked(func(p *models.GenerationProgress) { p.CurrentStudentName = &name })
}

func (q *GenerationQueue) onDone(job jobs.Job, err error) {
	item := q.itemFor(job)
	if err != nil {
		q.metrics.RecordBulletin(PathBatch, OutcomeFailed)
		q.logger.Warn("bulletin generation failed",
			zap.String("student_id", item.StudentID),
			zap.String("period_id", item.PeriodID),
			zap.Error(err))
	} else {
		q.metrics.RecordBulletin(PathBatch, OutcomeCompleted)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for i, running := range q.inFlight {
		if running.jobID == job.ID {
			q.inFlight = append(q.inFlight[:i], q.inFlight[i+1:]...)
			break
		}
	}
	next := q.nextNameLocked()
	q.publishLocked(func(p *models.GenerationProgress) {
		if err != nil {
			p.Failed++
		} else {
			p.Completed++
		}
		p.CurrentStudentName = next
	})
}

// nextNameLocked picks the name shown after an item finishes. Sequential
// batches name the item about to start; concurrent ones prefer the latest item
// still in flight.
func (q *GenerationQueue) nextNameLocked() *string {
	pending := q.progress.State == models.BatchStateRunning && q.dispatched < len(q.items)
	if pending && q.cfg.Workers <= 1 {
		name := q.items[q.dispatched].StudentName
		return &name
	}
	if n := len(q.inFlight); n > 0 {
		name := q.inFlight[n-1].name
		return &name
	}
	if pending {
		name := q.items[q.dispatched].StudentName
		return &name
	}
	return nil
}

func (q *GenerationQueue) onFinish(cancelled bool) {
	q.mu.Lock()
	state := models.BatchStateCompleted
	if cancelled || q.progress.State == models.BatchStateCancelling {
		state = models.BatchStateCancelled
	}
	q.publishLocked(func(p *models.GenerationProgress) {
		p.State = state
		p.CurrentStudentName = nil
	})
	final := q.progress
	q.items = nil
	q.inFlight = q.inFlight[:0]
	q.mu.Unlock()

	q.metrics.SetBatchInFlight(false)
	q.logger.Info("bulletin batch finished",
		zap.String("batch_id", final.BatchID),
		zap.String("state", string(final.State)),
		zap.Int("total", final.Total),
		zap.Int("completed", final.Completed),
		zap.Int("failed", final.Failed))

	q.closeRecord(final.BatchID, final.State, final.Completed, final.Failed, final.UpdatedAt)
}

func (q *GenerationQueue) closeRecord(batchID string, state models.BatchState, completed, failed int, finishedAt time.Time) {
	if q.batches == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.batches.Update(ctx, batchID, repository.UpdateBatchParams{
		Status:     &state,
		Completed:  &completed,
		Failed:     &failed,
		FinishedAt: &finishedAt,
	}); err != nil {
		q.logger.Warn("failed to record batch outcome", zap.String("batch_id", batchID), zap.Error(err))
	}
}

// publishLocked replaces the snapshot wholesale and broadcasts it.
func (q *GenerationQueue) publishLocked(mutate func(p *models.GenerationProgress)) {
	next := q.progress
	if next.CurrentStudentName != nil {
		name := *next.CurrentStudentName
		next.CurrentStudentName = &name
	}
	mutate(&next)
	next.UpdatedAt = q.cfg.Clock()
	q.progress = next
	q.hub.Publish(next)
}

func (q *GenerationQueue) record(ctx context.Context, batch *models.BulletinBatch) {
	if q.batches == nil {
		return
	}
	if err := q.batches.Create(ctx, batch); err != nil {
		q.logger.Warn("failed to record batch", zap.String("batch_id", batch.ID), zap.Error(err))
	}
}

// Progress returns a copy of the latest snapshot.
func (q *GenerationQueue) Progress() models.GenerationProgress {
	return q.hub.Current()
}

// ObserveProgress streams snapshots, starting with the current one, until ctx is done.
func (q *GenerationQueue) ObserveProgress(ctx context.Context) <-chan models.GenerationProgress {
	return q.hub.Subscribe(ctx)
}

// CancelAll stops dispatching further items. The in-flight item finishes
// normally. It is a no-op when no batch is running.
func (q *GenerationQueue) CancelAll() {
	q.mu.Lock()
	if q.progress.State != models.BatchStateRunning {
		q.mu.Unlock()
		return
	}
	q.publishLocked(func(p *models.GenerationProgress) {
		p.State = models.BatchStateCancelling
	})
	q.mu.Unlock()
	q.logger.Info("bulletin batch cancellation requested")
	q.runner.Cancel()
}

// Batch returns the persisted record of a batch.
func (q *GenerationQueue) Batch(ctx context.Context, id string) (*models.BulletinBatch, error) {
	if q.batches == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "batch history disabled")
	}
	batch, err := q.batches.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "batch")
	}
	return batch, nil
}

// Wait blocks until the running batch loop exits or ctx is done.
func (q *GenerationQueue) Wait(ctx context.Context) error {
	return q.runner.Wait(ctx)
}

// Stop cancels the running batch, waits for the in-flight item and refuses new batches.
func (q *GenerationQueue) Stop() {
	if q.runner.Running() {
		q.logger.Info("waiting for in-flight bulletins before stopping")
	}
	q.CancelAll()
	q.runner.Stop()
}
