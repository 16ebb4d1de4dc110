package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-bulletin/internal/dto"
	"github.com/noah-isme/sma-bulletin/internal/models"
	"github.com/noah-isme/sma-bulletin/internal/service"
	appErrors "github.com/noah-isme/sma-bulletin/pkg/errors"
)

type queueMock struct {
	ticket    *service.BatchTicket
	err       error
	progress  models.GenerationProgress
	stream    []models.GenerationProgress
	cancelled bool
	req       dto.QueueBatchRequest
	actor     string
	folder    string
}

func (m *queueMock) QueueBulletins(ctx context.Context, req dto.QueueBatchRequest, requestedBy string, picker service.DestinationPicker) (*service.BatchTicket, error) {
	m.req = req
	m.actor = requestedBy
	m.folder, _ = picker.Pick(ctx)
	return m.ticket, m.err
}

func (m *queueMock) Progress() models.GenerationProgress { return m.progress }

func (m *queueMock) ObserveProgress(ctx context.Context) <-chan models.GenerationProgress {
	out := make(chan models.GenerationProgress, len(m.stream))
	for _, p := range m.stream {
		out <- p
	}
	close(out)
	return out
}

func (m *queueMock) CancelAll() { m.cancelled = true }

func (m *queueMock) Batch(ctx context.Context, id string) (*models.BulletinBatch, error) {
	if id != "b1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
	}
	return &models.BulletinBatch{ID: "b1", Status: models.BatchStateCompleted, Total: 3, Completed: 3}, nil
}

func TestBatchHandlerQueue(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &queueMock{ticket: &service.BatchTicket{BatchID: "b1", Progress: models.GenerationProgress{BatchID: "b1", State: models.BatchStateRunning, Total: 3}}}
	handler := NewBatchHandler(mock, nil, "bulletins")

	payload, _ := json.Marshal(dto.QueueBatchRequest{PeriodID: "p1", ClassID: "c1", Folder: "exports/6eA"})
	c, w := newGinContext(http.MethodPost, "/bulletins/batches", payload)
	handler.Queue(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "admin", mock.actor)
	assert.Equal(t, "exports/6eA", mock.folder)
	assert.Equal(t, "c1", mock.req.ClassID)
}

func TestBatchHandlerQueueConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewBatchHandler(&queueMock{err: appErrors.ErrBatchRunning}, nil, "bulletins")

	payload, _ := json.Marshal(dto.QueueBatchRequest{PeriodID: "p1", StudentIDs: []string{"s1"}})
	c, w := newGinContext(http.MethodPost, "/bulletins/batches", payload)
	handler.Queue(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestBatchHandlerQueueAbandoned(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewBatchHandler(&queueMock{ticket: &service.BatchTicket{Cancelled: true}}, nil, "")

	payload, _ := json.Marshal(dto.QueueBatchRequest{PeriodID: "p1", ClassID: "c1"})
	c, w := newGinContext(http.MethodPost, "/bulletins/batches", payload)
	handler.Queue(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cancelled":true`)
}

func TestBatchHandlerQueueValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewBatchHandler(&queueMock{}, nil, "bulletins")

	c, w := newGinContext(http.MethodPost, "/bulletins/batches", []byte(`{"classId":"c1"}`))
	handler.Queue(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatchHandlerProgressAndCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &queueMock{progress: models.GenerationProgress{BatchID: "b1", State: models.BatchStateRunning, Total: 3, Completed: 1}}
	handler := NewBatchHandler(mock, nil, "bulletins")

	c, w := newGinContext(http.MethodGet, "/bulletins/batches/progress", nil)
	handler.Progress(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"isComplete":false`)

	c, w = newGinContext(http.MethodPost, "/bulletins/batches/cancel", nil)
	handler.Cancel(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, mock.cancelled)
}

func TestBatchHandlerStreamStopsAtTerminalState(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &queueMock{stream: []models.GenerationProgress{
		{BatchID: "b1", State: models.BatchStateRunning, Total: 2},
		{BatchID: "b1", State: models.BatchStateRunning, Total: 2, Completed: 1},
		{BatchID: "b1", State: models.BatchStateCompleted, Total: 2, Completed: 2},
		{BatchID: "b2", State: models.BatchStateRunning, Total: 1},
	}}
	handler := NewBatchHandler(mock, nil, "bulletins")

	c, w := newGinContext(http.MethodGet, "/bulletins/batches/progress/stream", nil)
	handler.Stream(c)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, 3, strings.Count(body, "event:progress"))
	assert.NotContains(t, body, "b2")
}

func TestBatchHandlerGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewBatchHandler(&queueMock{}, nil, "bulletins")

	c, w := newGinContext(http.MethodGet, "/bulletins/batches/b1", nil)
	c.Params = gin.Params{{Key: "id", Value: "b1"}}
	handler.Get(c)
	require.Equal(t, http.StatusOK, w.Code)

	c, w = newGinContext(http.MethodGet, "/bulletins/batches/zz", nil)
	c.Params = gin.Params{{Key: "id", Value: "zz"}}
	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}
