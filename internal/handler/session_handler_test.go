package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-bulletin/internal/dto"
	"github.com/noah-isme/sma-bulletin/internal/models"
	appErrors "github.com/noah-isme/sma-bulletin/pkg/errors"
)

type sessionServiceMock struct {
	err error
}

func (m sessionServiceMock) Submit(ctx context.Context, req dto.SubmitSessionRequest) (*models.EvaluationSession, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.EvaluationSession{ID: "session-1", TemplateID: req.TemplateID, MarkCount: len(req.Marks)}, nil
}

func TestSessionHandlerSubmit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	body := []byte(`{"templateId":"tpl-1","periodId":"p1","heldOn":"2024-11-04T00:00:00Z","marks":[{"studentId":"s1","mark":12}]}`)

	c, w := newGinContext(http.MethodPost, "/sessions", body)
	NewSessionHandler(sessionServiceMock{}).Submit(c)
	require.Equal(t, http.StatusCreated, w.Code)

	c, w = newGinContext(http.MethodPost, "/sessions", []byte(`{"marks":"nope"}`))
	NewSessionHandler(sessionServiceMock{}).Submit(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodPost, "/sessions", body)
	NewSessionHandler(sessionServiceMock{err: appErrors.Clone(appErrors.ErrValidation, "mark out of range")}).Submit(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
