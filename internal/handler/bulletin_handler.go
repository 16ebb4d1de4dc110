package handler

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-bulletin/internal/dto"
	"github.com/noah-isme/sma-bulletin/internal/models"
	"github.com/noah-isme/sma-bulletin/internal/service"
	appErrors "github.com/noah-isme/sma-bulletin/pkg/errors"
	"github.com/noah-isme/sma-bulletin/pkg/response"
)

type bulletinService interface {
	Preview(ctx context.Context, studentID, periodID string) (*models.ReportCard, error)
	ExportOne(ctx context.Context, studentID, periodID string, format models.BulletinFormat, picker service.DestinationPicker) (*service.ExportResult, error)
	ClassSummary(ctx context.Context, classID, periodID string, format models.BulletinFormat) (*service.SummaryResult, error)
	ParseToken(token string) (studentID, relPath string, err error)
	Open(relPath string) (*os.File, error)
}

// BulletinHandler exposes the single-document bulletin endpoints.
type BulletinHandler struct {
	service       bulletinService
	validator     *validator.Validate
	defaultFolder string
}

// NewBulletinHandler constructs the handler. defaultFolder is used when a
// request does not name one.
func NewBulletinHandler(service bulletinService, validate *validator.Validate, defaultFolder string) *BulletinHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &BulletinHandler{service: service, validator: validate, defaultFolder: defaultFolder}
}

// Preview godoc
// @Summary Build a student's report card
// @Tags Bulletins
// @Produce json
// @Param id path string true "Student ID"
// @Param periodId query string true "Period ID"
// @Success 200 {object} response.Envelope
// @Router /bulletins/students/{id} [get]
func (h *BulletinHandler) Preview(c *gin.Context) {
	periodID := c.Query("periodId")
	if periodID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "periodId required"))
		return
	}
	card, err := h.service.Preview(c.Request.Context(), c.Param("id"), periodID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewReportCardResponse(card))
}

// Generate godoc
// @Summary Generate one bulletin file
// @Tags Bulletins
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.GenerateBulletinRequest true "Generation request"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope "abandoned, no destination"
// @Router /bulletins/students/{id}/generate [post]
func (h *BulletinHandler) Generate(c *gin.Context) {
	var req dto.GenerateBulletinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid bulletin payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulletin payload"))
		return
	}
	picker := service.FolderPicker{Requested: req.Folder, Fallback: h.defaultFolder}
	result, err := h.service.ExportOne(c.Request.Context(), c.Param("id"), req.PeriodID, req.Format, picker)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Cancelled {
		response.JSON(c, http.StatusOK, dto.GenerateBulletinResponse{Cancelled: true, StudentID: result.StudentID})
		return
	}
	resp := dto.GenerateBulletinResponse{
		StudentID:   result.StudentID,
		FileName:    result.FileName,
		Path:        result.RelativePath,
		DownloadURL: result.URL,
	}
	if !result.ExpiresAt.IsZero() {
		expires := result.ExpiresAt
		resp.ExpiresAt = &expires
	}
	response.JSON(c, http.StatusCreated, resp)
}

// ClassSummary godoc
// @Summary Download the class ranking sheet
// @Tags Bulletins
// @Produce octet-stream
// @Param id path string true "Class ID"
// @Param periodId query string true "Period ID"
// @Param format query string false "pdf or csv"
// @Success 200 {file} binary
// @Router /bulletins/classes/{id}/summary [get]
func (h *BulletinHandler) ClassSummary(c *gin.Context) {
	periodID := c.Query("periodId")
	if periodID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "periodId required"))
		return
	}
	result, err := h.service.ClassSummary(c.Request.Context(), c.Param("id"), periodID, formatParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.FileName, result.ContentType, int64(len(result.Data)), bytes.NewReader(result.Data))
}

// Download godoc
// @Summary Download a generated bulletin via signed token
// @Tags Bulletins
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /bulletins/download/{token} [get]
func (h *BulletinHandler) Download(c *gin.Context) {
	token := c.Param("token")
	if strings.TrimSpace(token) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	_, relPath, err := h.service.ParseToken(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.service.Open(relPath)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck
	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read bulletin"))
		return
	}
	name := filepath.Base(relPath)
	response.Attachment(c, name, contentTypeFor(name), info.Size(), file)
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
