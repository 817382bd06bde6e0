package service

import (
	"context"
	"fmt"

	"github.com/parisxmas/kobodash/internal/models"
	"github.com/parisxmas/kobodash/internal/repository"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

type SubmissionService struct {
	subs  *repository.SubmissionRepo
	forms *FormService
}

func NewSubmissionService(subs *repository.SubmissionRepo, forms *FormService) *SubmissionService {
	return &SubmissionService{subs: subs, forms: forms}
}

type Page struct {
	Items []*models.Submission `json:"items"`
	Total int                  `json:"total"`
	Skip  int                  `json:"skip"`
	Limit int                  `json:"limit"`
}

func (s *SubmissionService) List(ctx context.Context, formRef string, skip, limit int) (*Page, error) {
	form, err := s.forms.Get(ctx, formRef)
	if err != nil {
		return nil, err
	}
	skip, limit = clampPage(skip, limit)
	items, total, err := s.subs.ListByForm(ctx, form.UID, skip, limit)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Total: total, Skip: skip, Limit: limit}, nil
}

// Get returns nil, nil when the submission does not exist.
func (s *SubmissionService) Get(ctx context.Context, formRef string, id int64) (*models.Submission, error) {
	form, err := s.forms.Get(ctx, formRef)
	if err != nil {
		return nil, err
	}
	return s.subs.FindByID(ctx, form.UID, id)
}

func clampPage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	return skip, limit
}

// ParseID parses a submission id path parameter.
func ParseID(s string) (int64, error) {
	var id int64
	if _, err := fmt.Sscan(s, &id); err != nil || id <= 0 {
		return 0, invalid("invalid submission id %q", s)
	}
	return id, nil
}
