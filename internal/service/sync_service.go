package service

import (
	"context"
	"time"

	"github.com/parisxmas/kobodash/internal/models"
	"github.com/parisxmas/kobodash/internal/repository"
	"github.com/parisxmas/kobodash/internal/syncer"
)

const DefaultLogLimit = 50

type SyncService struct {
	orch  *syncer.Orchestrator
	logs  *repository.SyncLogRepo
	forms *FormService
}

func NewSyncService(orch *syncer.Orchestrator, logs *repository.SyncLogRepo, forms *FormService) *SyncService {
	return &SyncService{orch: orch, logs: logs, forms: forms}
}

type SyncRequest struct {
	FormUID string `json:"formId"`
	Kind    string `json:"kind"`
	All     bool   `json:"all"`
}

// Trigger runs a sync synchronously and returns the finished logs.
func (s *SyncService) Trigger(ctx context.Context, req SyncRequest) ([]*models.SyncLog, error) {
	kind, err := models.ParseSyncKind(req.Kind)
	if err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}
	if req.All {
		return s.orch.RunAll(ctx, kind)
	}
	if req.FormUID == "" {
		return nil, invalid("formId or all is required")
	}
	form, err := s.forms.Get(ctx, req.FormUID)
	if err != nil {
		return nil, err
	}
	l, err := s.orch.Run(ctx, form.UID, kind)
	if l == nil {
		return nil, err
	}
	return []*models.SyncLog{l}, err
}

// Notify handles an upstream webhook payload.
func (s *SyncService) Notify(ctx context.Context, body []byte) (*models.SyncLog, error) {
	n, err := syncer.ParseWebhook(body)
	if err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}
	return s.orch.HandleNotification(ctx, n)
}

func (s *SyncService) Logs(ctx context.Context, formUID string, limit int) ([]models.SyncLog, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultLogLimit
	}
	return s.logs.List(ctx, formUID, limit)
}

type SyncStatus struct {
	FormUID      string          `json:"formId"`
	Running      bool            `json:"running"`
	Cursor       string          `json:"cursor,omitempty"`
	LastSyncedAt *time.Time      `json:"lastSyncedAt,omitempty"`
	Latest       *models.SyncLog `json:"latest,omitempty"`
}

func (s *SyncService) Status(ctx context.Context, formRef string) (*SyncStatus, error) {
	form, err := s.forms.Get(ctx, formRef)
	if err != nil {
		return nil, err
	}
	latest, err := s.logs.Latest(ctx, form.UID)
	if err != nil {
		return nil, err
	}
	return &SyncStatus{
		FormUID:      form.UID,
		Running:      s.orch.IsRunning(form.UID),
		Cursor:       form.Cursor,
		LastSyncedAt: form.LastSyncedAt,
		Latest:       latest,
	}, nil
}
