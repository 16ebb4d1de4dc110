package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-bulletin/internal/dto"
	"github.com/noah-isme/sma-bulletin/internal/models"
	"github.com/noah-isme/sma-bulletin/internal/repository"
	appErrors "github.com/noah-isme/sma-bulletin/pkg/errors"
	"github.com/noah-isme/sma-bulletin/pkg/storage"
)

type batchRecorderStub struct {
	mu      sync.Mutex
	batches map[string]*models.BulletinBatch
}

func newBatchRecorderStub() *batchRecorderStub {
	return &batchRecorderStub{batches: map[string]*models.BulletinBatch{}}
}

func (r *batchRecorderStub) Create(ctx context.Context, batch *models.BulletinBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy := *batch
	r.batches[batch.ID] = &copy
	return nil
}

func (r *batchRecorderStub) GetByID(ctx context.Context, id string) (*models.BulletinBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch, ok := r.batches[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copy := *batch
	return &copy, nil
}

func (r *batchRecorderStub) Update(ctx context.Context, id string, params repository.UpdateBatchParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch, ok := r.batches[id]
	if !ok {
		return errors.New("not found")
	}
	if params.Status != nil {
		batch.Status = *params.Status
	}
	if params.Completed != nil {
		batch.Completed = *params.Completed
	}
	if params.Failed != nil {
		batch.Failed = *params.Failed
	}
	batch.FinishedAt = params.FinishedAt
	return nil
}

// gatedBuilder blocks every Build until released, reporting each start.
type gatedBuilder struct {
	inner   ReportCardBuilder
	started chan string
	release chan struct{}
}

func (b *gatedBuilder) Build(ctx context.Context, studentID, periodID string) (*models.ReportCard, error) {
	b.started <- studentID
	<-b.release
	return b.inner.Build(ctx, studentID, periodID)
}

// selectiveRenderer fails for the listed students and delegates otherwise.
type selectiveRenderer struct {
	DocumentRenderer
	failFor map[string]bool
}

func (r selectiveRenderer) Render(card *models.ReportCard) ([]byte, error) {
	if r.failFor[card.StudentID] {
		return nil, errors.New("font table corrupted")
	}
	return r.DocumentRenderer.Render(card)
}

func failingRenderers(studentIDs ...string) RendererFactory {
	failFor := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		failFor[id] = true
	}
	return func(format models.BulletinFormat) (DocumentRenderer, error) {
		inner, err := defaultRenderer(format)
		if err != nil {
			return nil, err
		}
		return selectiveRenderer{DocumentRenderer: inner, failFor: failFor}, nil
	}
}

type flakySink struct {
	inner    BulletinSink
	failures int32
}

func (s *flakySink) Write(data []byte, fileName, folder string) (string, error) {
	if atomic.AddInt32(&s.failures, -1) >= 0 {
		return "", errors.New("disk full")
	}
	return s.inner.Write(data, fileName, folder)
}

func newTestQueue(t *testing.T, builder ReportCardBuilder, sink BulletinSink, store *gradeStoreStub, cfg QueueConfig) (*GenerationQueue, *batchRecorderStub) {
	t.Helper()
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = models.BulletinFormatCSV
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	recorder := newBatchRecorderStub()
	q := NewGenerationQueue(builder, sink, store, recorder, nil, cfg, nil)
	t.Cleanup(q.Stop)
	return q, recorder
}

func newTempStorage(t *testing.T) *storage.LocalStorage {
	t.Helper()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return st
}

func waitBatch(t *testing.T, q *GenerationQueue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Wait(ctx))
}

var exportsFolder = FolderPicker{Fallback: "exports"}

func TestGenerationQueueCountsMissingStudentAsFailed(t *testing.T) {
	store := fixtureStore()
	st := newTempStorage(t)
	q, recorder := newTestQueue(t, newTestBuilder(store), st, store, QueueConfig{})

	ticket, err := q.QueueBulletins(context.Background(), dto.QueueBatchRequest{
		PeriodID:   "p2",
		StudentIDs: []string{"s1", "s2", "s3"},
	}, "admin-1", exportsFolder)
	require.NoError(t, err)
	require.False(t, ticket.Cancelled)
	assert.Equal(t, 3, ticket.Progress.Total)
	waitBatch(t, q)

	progress := q.Progress()
	assert.Equal(t, 3, progress.Total)
	assert.Equal(t, 2, progress.Completed)
	assert.Equal(t, 1, progress.Failed)
	assert.True(t, progress.IsComplete())
	assert.Equal(t, models.BatchStateCompleted, progress.State)
	assert.Nil(t, progress.CurrentStudentName)

	_, err = os.Stat(filepath.Join(st.BaseDir(), "exports", "Bulletin_Awa_Diallo_Trimestre_2.csv"))
	require.NoError(t, err)

	record, err := recorder.GetByID(context.Background(), ticket.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStateCompleted, record.Status)
	assert.Equal(t, 2, record.Completed)
	assert.Equal(t, 1, record.Failed)
}

func TestGenerationQueueRejectsConcurrentBatch(t *testing.T) {
	store := fixtureStore()
	gate := &gatedBuilder{inner: newTestBuilder(store), started: make(chan string, 10), release: make(chan struct{})}
	q, _ := newTestQueue(t, gate, newTempStorage(t), store, QueueConfig{})

	req := dto.QueueBatchRequest{PeriodID: "p2", StudentIDs: []string{"s1", "s3"}}
	_, err := q.QueueBulletins(context.Background(), req, "admin-1", exportsFolder)
	require.NoError(t, err)
	<-gate.started

	_, err = q.QueueBulletins(context.Background(), req, "admin-1", exportsFolder)
	require.ErrorIs(t, err, appErrors.ErrBatchRunning)

	close(gate.release)
	waitBatch(t, q)
	assert.Equal(t, 2, q.Progress().Completed)

	_, err = q.QueueBulletins(context.Background(), req, "admin-1", exportsFolder)
	require.NoError(t, err)
	waitBatch(t, q)
}

func TestGenerationQueueCancelAll(t *testing.T) {
	store := fixtureStore()
	gate := &gatedBuilder{inner: newTestBuilder(store), started: make(chan string, 10), release: make(chan struct{})}
	q, _ := newTestQueue(t, gate, newTempStorage(t), store, QueueConfig{})

	q.CancelAll() // idle no-op
	assert.Equal(t, models.BatchStateIdle, q.Progress().State)

	_, err := q.QueueBulletins(context.Background(), dto.QueueBatchRequest{
		PeriodID:   "p2",
		StudentIDs: []string{"s1", "s3", "s1", "s3", "s1"},
	}, "admin-1", exportsFolder)
	require.NoError(t, err)

	<-gate.started // k = 1 item started
	q.CancelAll()
	q.CancelAll()
	assert.Equal(t, models.BatchStateCancelling, q.Progress().State)

	_, err = q.QueueBulletins(context.Background(), dto.QueueBatchRequest{PeriodID: "p2", StudentIDs: []string{"s1"}}, "admin-1", exportsFolder)
	require.ErrorIs(t, err, appErrors.ErrBatchRunning)

	close(gate.release)
	waitBatch(t, q)

	progress := q.Progress()
	assert.Equal(t, models.BatchStateCancelled, progress.State)
	assert.Equal(t, 5, progress.Total)
	assert.LessOrEqual(t, progress.Completed+progress.Failed, 2)
	assert.Equal(t, 1, progress.Completed)
	assert.False(t, progress.IsComplete())
}

func TestGenerationQueueCancelAllWithConcurrentWorkers(t *testing.T) {
	store := fixtureStore()
	gate := &gatedBuilder{inner: newTestBuilder(store), started: make(chan string, 10), release: make(chan struct{})}
	q, _ := newTestQueue(t, gate, newTempStorage(t), store, QueueConfig{Workers: 3})

	_, err := q.QueueBulletins(context.Background(), dto.QueueBatchRequest{
		PeriodID:   "p2",
		StudentIDs: []string{"s1", "s3", "s1", "s3", "s1", "s3"},
	}, "admin-1", exportsFolder)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		<-gate.started
	}
	q.CancelAll()
	close(gate.release)
	waitBatch(t, q)

	assert.Empty(t, gate.started, "no item may start after cancellation")
	progress := q.Progress()
	assert.Equal(t, models.BatchStateCancelled, progress.State)
	assert.Equal(t, 6, progress.Total)
	assert.Equal(t, 3, progress.Completed)
	assert.Equal(t, 0, progress.Failed)
	assert.False(t, progress.IsComplete())
	assert.Nil(t, progress.CurrentStudentName)
}

func TestGenerationQueueCountsRenderFailureAndContinues(t *testing.T) {
	store := fixtureStore()
	store.addStudent("s4", "Djeneba Sy", "c1")
	store.addGrades("p2", "s4", subjectGrades("math", 2, 15))
	st := newTempStorage(t)
	q, recorder := newTestQueue(t, newTestBuilder(store), st, store, QueueConfig{Renderers: failingRenderers("s3")})

	ticket, err := q.QueueBulletins(context.Background(), dto.QueueBatchRequest{
		PeriodID:   "p2",
		StudentIDs: []string{"s1", "s3", "s4"},
	}, "admin-1", exportsFolder)
	require.NoError(t, err)
	waitBatch(t, q)

	progress := q.Progress()
	assert.Equal(t, models.BatchStateCompleted, progress.State)
	assert.Equal(t, 2, progress.Completed)
	assert.Equal(t, 1, progress.Failed)
	assert.True(t, progress.IsComplete())

	_, err = os.Stat(filepath.Join(st.BaseDir(), "exports", "Bulletin_Djeneba_Sy_Trimestre_2.csv"))
	require.NoError(t, err)

	record, err := recorder.GetByID(context.Background(), ticket.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 1, record.Failed)
}

func TestGenerationQueueClosesRecordWhenDispatchFails(t *testing.T) {
	store := fixtureStore()
	q, recorder := newTestQueue(t, newTestBuilder(store), newTempStorage(t), store, QueueConfig{})
	q.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := q.ObserveProgress(ctx)
	initial := <-updates

	_, err := q.QueueBulletins(context.Background(), dto.QueueBatchRequest{PeriodID: "p2", StudentIDs: []string{"s1"}}, "admin-1", exportsFolder)
	require.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Equal(t, initial, q.Progress())

	select {
	case p := <-updates:
		t.Fatalf("unexpected progress published: %+v", p)
	case <-time.After(50 * time.Millisecond):
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	require.Len(t, recorder.batches, 1)
	for _, batch := range recorder.batches {
		assert.Equal(t, models.BatchStateCancelled, batch.Status)
		assert.NotNil(t, batch.FinishedAt)
		assert.Equal(t, 0, batch.Completed)
	}
}

func TestGenerationQueuePickerAbort(t *testing.T) {
	store := fixtureStore()
	q, recorder := newTestQueue(t, newTestBuilder(store), newTempStorage(t), store, QueueConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := q.ObserveProgress(ctx)
	initial := <-updates

	ticket, err := q.QueueBulletins(context.Background(), dto.QueueBatchRequest{PeriodID: "p2", ClassID: "c1"}, "admin-1", FolderPicker{})
	require.NoError(t, err)
	assert.True(t, ticket.Cancelled)
	assert.Equal(t, initial, q.Progress())
	assert.Empty(t, recorder.batches)

	select {
	case p := <-updates:
		t.Fatalf("unexpected progress published: %+v", p)
	case <-time.After(50 * time.Millisecond):
	}

	// The queue is still free after an abandoned request.
	_, err = q.QueueBulletins(context.Background(), dto.QueueBatchRequest{PeriodID: "p2", ClassID: "c1"}, "admin-1", exportsFolder)
	require.NoError(t, err)
	waitBatch(t, q)
}

func TestGenerationQueueObserversSeeSameOrderedSequence(t *testing.T) {
	store := fixtureStore()
	q, _ := newTestQueue(t, newTestBuilder(store), newTempStorage(t), store, QueueConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collect := func(ch <-chan models.GenerationProgress, out *[]models.GenerationProgress, done chan<- struct{}) {
		for p := range ch {
			*out = append(*out, p)
			if p.State == models.BatchStateCompleted {
				close(done)
				return
			}
		}
	}
	var first, second []models.GenerationProgress
	doneA, doneB := make(chan struct{}), make(chan struct{})
	chA, chB := q.ObserveProgress(ctx), q.ObserveProgress(ctx)
	go collect(chA, &first, doneA)
	go collect(chB, &second, doneB)

	_, err := q.QueueBulletins(context.Background(), dto.QueueBatchRequest{PeriodID: "p2", StudentIDs: []string{"s1", "s2", "s3"}}, "admin-1", exportsFolder)
	require.NoError(t, err)
	waitBatch(t, q)
	<-doneA
	<-doneB

	assert.Equal(t, first, second)
	processed := -1
	for _, p := range first {
		assert.GreaterOrEqual(t, p.Processed(), processed)
		assert.LessOrEqual(t, p.Processed(), p.Total)
		processed = p.Processed()
	}
	last := first[len(first)-1]
	assert.Equal(t, 2, last.Completed)
	assert.Equal(t, 1, last.Failed)
}

func TestGenerationQueueBoundedConcurrency(t *testing.T) {
	store := fixtureStore()
	store.addStudent("s4", "Djeneba Sy", "c1")
	store.addStudent("s5", "Émile Ouattara", "c1")
	store.addGrades("p2", "s4", subjectGrades("math", 2, 15))
	store.addGrades("p2", "s5", subjectGrades("math", 2, 7))
	q, _ := newTestQueue(t, newTestBuilder(store), newTempStorage(t), store, QueueConfig{Workers: 3})

	ids := []string{"s1", "s3", "s2", "s4", "s5"}
	_, err := q.QueueBulletins(context.Background(), dto.QueueBatchRequest{PeriodID: "p2", StudentIDs: ids}, "admin-1", exportsFolder)
	require.NoError(t, err)
	waitBatch(t, q)

	progress := q.Progress()
	assert.Equal(t, 5, progress.Total)
	assert.Equal(t, 4, progress.Completed)
	assert.Equal(t, 1, progress.Failed)
	assert.True(t, progress.IsComplete())
}

func TestGenerationQueueRetriesWriteFailures(t *testing.T) {
	store := fixtureStore()
	sink := &flakySink{inner: newTempStorage(t), failures: 1}
	q, _ := newTestQueue(t, newTestBuilder(store), sink, store, QueueConfig{Retries: 1})

	_, err := q.QueueBulletins(context.Background(), dto.QueueBatchRequest{PeriodID: "p2", StudentIDs: []string{"s1"}}, "admin-1", exportsFolder)
	require.NoError(t, err)
	waitBatch(t, q)
	assert.Equal(t, 1, q.Progress().Completed)

	atomic.StoreInt32(&sink.failures, 5)
	_, err = q.QueueBulletins(context.Background(), dto.QueueBatchRequest{PeriodID: "p2", StudentIDs: []string{"s1", "s3"}}, "admin-1", exportsFolder)
	require.NoError(t, err)
	waitBatch(t, q)
	assert.Equal(t, 2, q.Progress().Failed)
}

func TestGenerationQueueValidation(t *testing.T) {
	store := fixtureStore()
	q, _ := newTestQueue(t, newTestBuilder(store), newTempStorage(t), store, QueueConfig{})

	_, err := q.QueueBulletins(context.Background(), dto.QueueBatchRequest{StudentIDs: []string{"s1"}}, "admin-1", exportsFolder)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = q.QueueBulletins(context.Background(), dto.QueueBatchRequest{PeriodID: "p2"}, "admin-1", exportsFolder)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = q.QueueBulletins(context.Background(), dto.QueueBatchRequest{PeriodID: "p2", ClassID: "c1", Format: "docx"}, "admin-1", exportsFolder)
	require.ErrorIs(t, err, appErrors.ErrValidation)
}
