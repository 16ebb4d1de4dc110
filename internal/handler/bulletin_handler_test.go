package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-bulletin/internal/dto"
	"github.com/noah-isme/sma-bulletin/internal/middleware"
	"github.com/noah-isme/sma-bulletin/internal/models"
	"github.com/noah-isme/sma-bulletin/internal/service"
	appErrors "github.com/noah-isme/sma-bulletin/pkg/errors"
)

type bulletinServiceMock struct {
	card       *models.ReportCard
	err        error
	export     *service.ExportResult
	lastFolder string
	summary    *service.SummaryResult
	dir        string
}

func (m *bulletinServiceMock) Preview(ctx context.Context, studentID, periodID string) (*models.ReportCard, error) {
	return m.card, m.err
}

func (m *bulletinServiceMock) ExportOne(ctx context.Context, studentID, periodID string, format models.BulletinFormat, picker service.DestinationPicker) (*service.ExportResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	folder, ok := picker.Pick(ctx)
	if !ok {
		return &service.ExportResult{Cancelled: true, StudentID: studentID}, nil
	}
	m.lastFolder = folder
	return m.export, nil
}

func (m *bulletinServiceMock) ClassSummary(ctx context.Context, classID, periodID string, format models.BulletinFormat) (*service.SummaryResult, error) {
	return m.summary, m.err
}

func (m *bulletinServiceMock) ParseToken(token string) (string, string, error) {
	if token != "good" {
		return "", "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download link")
	}
	return "s1", "bulletins/Bulletin_Awa_T1.csv", nil
}

func (m *bulletinServiceMock) Open(relPath string) (*os.File, error) {
	return os.Open(filepath.Join(m.dir, relPath))
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})
	return c, w
}

func TestBulletinHandlerPreview(t *testing.T) {
	gin.SetMode(gin.TestMode)
	card := &models.ReportCard{StudentID: "s1", GeneralAverage: 16.5, Honor: models.HonorEncouragement, Decision: models.DecisionPromotion}
	handler := NewBulletinHandler(&bulletinServiceMock{card: card}, nil, "bulletins")

	c, w := newGinContext(http.MethodGet, "/bulletins/students/s1", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	handler.Preview(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodGet, "/bulletins/students/s1?periodId=p1", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	handler.Preview(c)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body.Data["tableauEncouragement"])
	assert.Equal(t, false, body.Data["tableauFelicitations"])
}

func TestBulletinHandlerPreviewNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewBulletinHandler(&bulletinServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "student not found")}, nil, "bulletins")

	c, w := newGinContext(http.MethodGet, "/bulletins/students/x?periodId=p1", nil)
	c.Params = gin.Params{{Key: "id", Value: "x"}}
	handler.Preview(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestBulletinHandlerGenerate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &bulletinServiceMock{export: &service.ExportResult{
		StudentID:    "s1",
		FileName:     "Bulletin_Awa_Diallo_T1.pdf",
		RelativePath: "bulletins/Bulletin_Awa_Diallo_T1.pdf",
		URL:          "/api/v1/bulletins/download/tok",
		ExpiresAt:    time.Now().Add(time.Hour),
	}}
	handler := NewBulletinHandler(mock, nil, "bulletins")

	payload, _ := json.Marshal(dto.GenerateBulletinRequest{PeriodID: "p1"})
	c, w := newGinContext(http.MethodPost, "/bulletins/students/s1/generate", payload)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	handler.Generate(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "bulletins", mock.lastFolder)
	assert.Contains(t, w.Body.String(), "Bulletin_Awa_Diallo_T1.pdf")

	payload, _ = json.Marshal(dto.GenerateBulletinRequest{PeriodID: "p1", Format: "docx"})
	c, w = newGinContext(http.MethodPost, "/bulletins/students/s1/generate", payload)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	handler.Generate(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBulletinHandlerGenerateWithoutDestination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewBulletinHandler(&bulletinServiceMock{}, nil, "")

	payload, _ := json.Marshal(dto.GenerateBulletinRequest{PeriodID: "p1"})
	c, w := newGinContext(http.MethodPost, "/bulletins/students/s1/generate", payload)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	handler.Generate(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cancelled":true`)
}

func TestBulletinHandlerClassSummary(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewBulletinHandler(&bulletinServiceMock{summary: &service.SummaryResult{
		FileName:    "Classement_6e_A_T1.csv",
		ContentType: "text/csv",
		Data:        []byte("Rang,Élève\n1,Awa\n"),
	}}, nil, "bulletins")

	c, w := newGinContext(http.MethodGet, "/bulletins/classes/c1/summary?periodId=p1&format=csv", nil)
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	handler.ClassSummary(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Classement_6e_A_T1.csv")
	assert.Equal(t, "Rang,Élève\n1,Awa\n", w.Body.String())
}

func TestBulletinHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bulletins"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bulletins", "Bulletin_Awa_T1.csv"), []byte("data"), 0o644))
	handler := NewBulletinHandler(&bulletinServiceMock{dir: dir}, nil, "bulletins")

	c, w := newGinContext(http.MethodGet, "/bulletins/download/good", nil)
	c.Params = gin.Params{{Key: "token", Value: "good"}}
	handler.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, "data", w.Body.String())

	c, w = newGinContext(http.MethodGet, "/bulletins/download/bad", nil)
	c.Params = gin.Params{{Key: "token", Value: "bad"}}
	handler.Download(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
