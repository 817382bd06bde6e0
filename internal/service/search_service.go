package service

import (
	"context"
	"strings"

	"github.com/parisxmas/kobodash/internal/fields"
	"github.com/parisxmas/kobodash/internal/filter"
	"github.com/parisxmas/kobodash/internal/models"
	"github.com/parisxmas/kobodash/internal/repository"
)

type SearchService struct {
	forms *FormService
	subs  *repository.SubmissionRepo
}

func NewSearchService(forms *FormService, subs *repository.SubmissionRepo) *SearchService {
	return &SearchService{forms: forms, subs: subs}
}

type SearchRequest struct {
	Filters   filter.Spec `json:"filters,omitempty"`
	TextQuery string      `json:"textQuery,omitempty"`
	Skip      int         `json:"skip"`
	Limit     int         `json:"limit"`
}

type SearchResult struct {
	Items []*models.Submission `json:"items"`
	Total int                  `json:"total"`
	Mode  string               `json:"mode"`
}

// Search narrows a form's submissions by dashboard filters and an optional
// case-insensitive text query over answer values.
func (s *SearchService) Search(ctx context.Context, formRef string, req SearchRequest) (*SearchResult, error) {
	form, err := s.forms.Get(ctx, formRef)
	if err != nil {
		return nil, err
	}
	idx, err := s.forms.Index(ctx, form)
	if err != nil {
		return nil, err
	}
	all, err := s.subs.AllByForm(ctx, form.UID)
	if err != nil {
		return nil, err
	}

	hasFilters := len(req.Filters.Active()) > 0
	text := strings.ToLower(strings.TrimSpace(req.TextQuery))

	matched := filter.Apply(all, req.Filters, idx)
	if text != "" {
		kept := matched[:0:0]
		for _, sub := range matched {
			if containsText(sub, text) {
				kept = append(kept, sub)
			}
		}
		matched = kept
	}

	mode := "all"
	switch {
	case hasFilters && text != "":
		mode = "hybrid"
	case hasFilters:
		mode = "structured"
	case text != "":
		mode = "text"
	}

	skip, limit := clampPage(req.Skip, req.Limit)
	res := &SearchResult{Items: []*models.Submission{}, Total: len(matched), Mode: mode}
	if skip < len(matched) {
		res.Items = matched[skip:min(skip+limit, len(matched))]
	}
	return res, nil
}

func containsText(sub *models.Submission, text string) bool {
	view := sub.Views()[0]
	for k, v := range view {
		if strings.HasPrefix(k, "_") {
			continue
		}
		if strings.Contains(strings.ToLower(fields.String(v)), text) {
			return true
		}
	}
	return false
}
