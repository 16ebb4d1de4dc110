package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-bulletin/internal/dto"
	"github.com/noah-isme/sma-bulletin/internal/models"
	appErrors "github.com/noah-isme/sma-bulletin/pkg/errors"
	"github.com/noah-isme/sma-bulletin/pkg/response"
)

type sessionService interface {
	Submit(ctx context.Context, req dto.SubmitSessionRequest) (*models.EvaluationSession, error)
}

// SessionHandler records evaluation sessions.
type SessionHandler struct {
	service sessionService
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(service sessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

// Submit godoc
// @Summary Record an evaluation session with its marks
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.SubmitSessionRequest true "Session"
// @Success 201 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Submit(c *gin.Context) {
	var req dto.SubmitSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid session payload"))
		return
	}
	session, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, session)
}
