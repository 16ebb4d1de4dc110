package dto

import (
	"time"

	"github.com/noah-isme/sma-bulletin/internal/models"
)

// GenerateBulletinRequest captures POST /bulletins/students/:id/generate.
type GenerateBulletinRequest struct {
	PeriodID string                `json:"periodId" validate:"required"`
	Format   models.BulletinFormat `json:"format,omitempty" validate:"omitempty,oneof=pdf csv"`
	Folder   string                `json:"folder,omitempty" validate:"omitempty,max=120"`
}

// GenerateBulletinResponse is returned by the single-document path.
type GenerateBulletinResponse struct {
	Cancelled   bool       `json:"cancelled"`
	StudentID   string     `json:"studentId,omitempty"`
	FileName    string     `json:"fileName,omitempty"`
	Path        string     `json:"path,omitempty"`
	DownloadURL string     `json:"downloadUrl,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// QueueBatchRequest captures POST /bulletins/batches. Either StudentIDs or
// ClassID selects who is generated; explicit ids win.
type QueueBatchRequest struct {
	PeriodID   string                `json:"periodId" validate:"required"`
	ClassID    string                `json:"classId,omitempty"`
	StudentIDs []string              `json:"studentIds,omitempty" validate:"omitempty,dive,required"`
	Format     models.BulletinFormat `json:"format,omitempty" validate:"omitempty,oneof=pdf csv"`
	Folder     string                `json:"folder,omitempty" validate:"omitempty,max=120"`
}

// QueueBatchResponse is returned after a batch was accepted or abandoned.
type QueueBatchResponse struct {
	Cancelled bool                      `json:"cancelled"`
	BatchID   string                    `json:"batchId,omitempty"`
	Progress  models.GenerationProgress `json:"progress"`
}

// ProgressResponse exposes one progress snapshot with its derived fields.
type ProgressResponse struct {
	models.GenerationProgress
	IsComplete bool `json:"isComplete"`
}

// NewProgressResponse wraps a snapshot.
func NewProgressResponse(p models.GenerationProgress) ProgressResponse {
	return ProgressResponse{GenerationProgress: p, IsComplete: p.IsComplete()}
}

// ReportCardResponse is the JSON form of a report card, with the honor flags spelled out.
type ReportCardResponse struct {
	*models.ReportCard
	DecisionText         string `json:"decisionText"`
	TableauHonneur       bool   `json:"tableauHonneur"`
	TableauEncouragement bool   `json:"tableauEncouragement"`
	TableauFelicitations bool   `json:"tableauFelicitations"`
}

// NewReportCardResponse wraps a report card.
func NewReportCardResponse(card *models.ReportCard) ReportCardResponse {
	return ReportCardResponse{
		ReportCard:           card,
		DecisionText:         card.Decision.Text(),
		TableauHonneur:       card.TableauHonneur(),
		TableauEncouragement: card.TableauEncouragement(),
		TableauFelicitations: card.TableauFelicitations(),
	}
}

// MarkInput is one student's mark in a session submission. A nil mark is rejected.
type MarkInput struct {
	StudentID string   `json:"studentId" validate:"required"`
	Mark      *float64 `json:"mark" validate:"required"`
}

// SubmitSessionRequest captures POST /sessions.
type SubmitSessionRequest struct {
	TemplateID string      `json:"templateId" validate:"required"`
	PeriodID   string      `json:"periodId" validate:"required"`
	HeldOn     time.Time   `json:"heldOn" validate:"required"`
	Marks      []MarkInput `json:"marks" validate:"dive"`
}
