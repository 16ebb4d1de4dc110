package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-bulletin/internal/dto"
	"github.com/noah-isme/sma-bulletin/internal/models"
	"github.com/noah-isme/sma-bulletin/internal/service"
	appErrors "github.com/noah-isme/sma-bulletin/pkg/errors"
	"github.com/noah-isme/sma-bulletin/pkg/response"
)

type generationQueue interface {
	QueueBulletins(ctx context.Context, req dto.QueueBatchRequest, requestedBy string, picker service.DestinationPicker) (*service.BatchTicket, error)
	Progress() models.GenerationProgress
	ObserveProgress(ctx context.Context) <-chan models.GenerationProgress
	CancelAll()
	Batch(ctx context.Context, id string) (*models.BulletinBatch, error)
}

// BatchHandler exposes the bulletin generation queue.
type BatchHandler struct {
	queue         generationQueue
	validator     *validator.Validate
	defaultFolder string
}

// NewBatchHandler constructs the handler.
func NewBatchHandler(queue generationQueue, validate *validator.Validate, defaultFolder string) *BatchHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &BatchHandler{queue: queue, validator: validate, defaultFolder: defaultFolder}
}

// Queue godoc
// @Summary Queue bulletin generation for a class or a list of students
// @Tags Bulletin Batches
// @Accept json
// @Produce json
// @Param payload body dto.QueueBatchRequest true "Batch request"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bulletins/batches [post]
func (h *BatchHandler) Queue(c *gin.Context) {
	var req dto.QueueBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid batch payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload"))
		return
	}
	picker := service.FolderPicker{Requested: req.Folder, Fallback: h.defaultFolder}
	ticket, err := h.queue.QueueBulletins(c.Request.Context(), req, actorID(c), picker)
	if err != nil {
		response.Error(c, err)
		return
	}
	resp := dto.QueueBatchResponse{Cancelled: ticket.Cancelled, BatchID: ticket.BatchID, Progress: ticket.Progress}
	if ticket.Cancelled {
		response.JSON(c, http.StatusOK, resp)
		return
	}
	response.Accepted(c, resp)
}

// Progress godoc
// @Summary Current generation progress
// @Tags Bulletin Batches
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /bulletins/batches/progress [get]
func (h *BatchHandler) Progress(c *gin.Context) {
	response.JSON(c, http.StatusOK, dto.NewProgressResponse(h.queue.Progress()))
}

// Stream godoc
// @Summary Stream generation progress as server-sent events
// @Tags Bulletin Batches
// @Produce text/event-stream
// @Success 200 {string} string "progress events"
// @Router /bulletins/batches/progress/stream [get]
func (h *BatchHandler) Stream(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	for snapshot := range h.queue.ObserveProgress(ctx) {
		c.SSEvent("progress", dto.NewProgressResponse(snapshot))
		c.Writer.Flush()
		if finished(snapshot.State) {
			return
		}
	}
}

func finished(state models.BatchState) bool {
	switch state {
	case models.BatchStateCompleted, models.BatchStateCancelled, models.BatchStateIdle:
		return true
	default:
		return false
	}
}

// Cancel godoc
// @Summary Cancel the running batch
// @Tags Bulletin Batches
// @Produce json
// @Success 202 {object} response.Envelope
// @Router /bulletins/batches/cancel [post]
func (h *BatchHandler) Cancel(c *gin.Context) {
	h.queue.CancelAll()
	response.Accepted(c, dto.NewProgressResponse(h.queue.Progress()))
}

// Get godoc
// @Summary Batch history record
// @Tags Bulletin Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /bulletins/batches/{id} [get]
func (h *BatchHandler) Get(c *gin.Context) {
	batch, err := h.queue.Batch(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch)
}
