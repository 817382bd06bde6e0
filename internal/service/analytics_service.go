package service

import (
	"context"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/parisxmas/kobodash/internal/aggregate"
	"github.com/parisxmas/kobodash/internal/fields"
	"github.com/parisxmas/kobodash/internal/filter"
	"github.com/parisxmas/kobodash/internal/models"
	"github.com/parisxmas/kobodash/internal/repository"
	"github.com/parisxmas/kobodash/internal/schemaindex"
)

type Kind string

const (
	KindGroup     Kind = "group"
	KindBox       Kind = "box"
	KindMetrics   Kind = "metrics"
	KindHistogram Kind = "histogram"
)

const maxSuggestions = 5

// Request is one analytics query against a single form.
type Request struct {
	FormUID string             `json:"formId"`
	Kind    Kind               `json:"kind"`
	Field   string             `json:"field,omitempty"`
	GroupBy []string           `json:"groupBy,omitempty"`
	Metrics []aggregate.Metric `json:"metrics,omitempty"`
	Filters filter.Spec        `json:"filters,omitempty"`
	Bins    int                `json:"bins,omitempty"`
}

type Result struct {
	FormUID    string                 `json:"formId"`
	Kind       Kind                   `json:"kind"`
	Considered int                    `json:"considered"`
	Group      *aggregate.GroupResult `json:"group,omitempty"`
	Box        *aggregate.Box         `json:"box,omitempty"`
	Rows       []aggregate.Row        `json:"rows,omitempty"`
	Histogram  []aggregate.Bin        `json:"histogram,omitempty"`
}

type AnalyticsService struct {
	forms *FormService
	subs  *repository.SubmissionRepo
}

func NewAnalyticsService(forms *FormService, subs *repository.SubmissionRepo) *AnalyticsService {
	return &AnalyticsService{forms: forms, subs: subs}
}

// Run resolves the form, filters its submissions and aggregates the result.
func (s *AnalyticsService) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Kind == "" {
		req.Kind = KindGroup
	}
	if err := validate(req); err != nil {
		return nil, err
	}
	form, err := s.forms.Get(ctx, req.FormUID)
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

	for _, f := range requestedFields(req) {
		if err := checkResolvable(f, all, idx); err != nil {
			return nil, err
		}
	}

	subs := filter.Apply(all, req.Filters, idx)
	res := &Result{FormUID: form.UID, Kind: req.Kind, Considered: len(subs)}
	switch req.Kind {
	case KindGroup:
		res.Group = aggregate.GroupBy(req.Field, subs, idx)
	case KindBox:
		if res.Box, err = aggregate.BoxStats(req.Field, subs, idx); err != nil {
			return nil, err
		}
	case KindMetrics:
		if res.Rows, err = aggregate.Metrics(req.GroupBy, req.Metrics, subs, idx); err != nil {
			return nil, &ValidationError{Msg: err.Error()}
		}
	case KindHistogram:
		if res.Histogram, err = aggregate.Histogram(req.Field, req.Bins, subs, idx); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func validate(req Request) error {
	if strings.TrimSpace(req.FormUID) == "" {
		return invalid("formId is required")
	}
	switch req.Kind {
	case KindGroup, KindBox, KindHistogram:
		if strings.TrimSpace(req.Field) == "" {
			return invalid("field is required for %s", req.Kind)
		}
	case KindMetrics:
		if len(req.Metrics) == 0 {
			return invalid("metrics are required")
		}
	default:
		return invalid("unknown analytics kind %q", req.Kind)
	}
	if req.Bins < 0 || req.Bins > aggregate.MaxBins {
		return invalid("bins must be between 0 and %d", aggregate.MaxBins)
	}
	return nil
}

func requestedFields(req Request) []string {
	var out []string
	if req.Field != "" {
		out = append(out, req.Field)
	}
	out = append(out, req.GroupBy...)
	for _, m := range req.Metrics {
		if m.Field != "" && m.Field != "*" {
			out = append(out, m.Field)
		}
	}
	return append(out, req.Filters.Active()...)
}

// checkResolvable accepts a field the schema declares or any stored
// submission carries. Against an empty form with no schema every field is
// accepted, so empty dashboards render instead of failing.
func checkResolvable(field string, subs []*models.Submission, idx *schemaindex.Index) error {
	if idx == nil && len(subs) == 0 {
		return nil
	}
	if _, ok := idx.Lookup(field); ok {
		return nil
	}
	for _, sub := range subs {
		if _, ok := fields.Resolve(field, sub, idx); ok {
			return nil
		}
	}
	return &FieldNotResolvableError{Field: field, Suggestions: suggest(field, subs, idx)}
}

func suggest(field string, subs []*models.Submission, idx *schemaindex.Index) []string {
	seen := make(map[string]bool)
	var candidates []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			candidates = append(candidates, s)
		}
	}
	for _, f := range idx.Fields() {
		add(f.FullPath())
	}
	if len(subs) > 0 {
		for _, k := range fields.Keys(subs[0]) {
			add(k)
		}
	}

	matches := fuzzy.Find(field, candidates)
	if len(matches) == 0 {
		matches = fuzzy.Find(lastSegment(field), candidates)
	}
	out := make([]string, 0, maxSuggestions)
	for _, m := range matches {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, m.Str)
	}
	return out
}
