package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parisxmas/kobodash/internal/aggregate"
	"github.com/parisxmas/kobodash/internal/fields"
	"github.com/parisxmas/kobodash/internal/models"
	"github.com/parisxmas/kobodash/internal/repository"
	"github.com/parisxmas/kobodash/internal/schemaindex"
)

const (
	maxCountFields   = 3
	maxPercentFields = 5
	maxAverageFields = 5

	trendDays = 30
)

type TrendPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// IndicatorDashboard is every stored indicator, grouped by form, plus how
// many were computed on each of the last 30 days.
type IndicatorDashboard struct {
	Indicators []models.Indicator            `json:"indicators"`
	ByForm     map[string][]models.Indicator `json:"byForm"`
	Trends     []TrendPoint                  `json:"trends"`
}

// IndicatorService keeps per-form headline figures current. It is a sync
// observer: every stored sync batch triggers a recomputation.
type IndicatorService struct {
	forms *FormService
	subs  *repository.SubmissionRepo
	repo  *repository.IndicatorRepo
	log   *zap.Logger
	now   func() time.Time
}

func NewIndicatorService(forms *FormService, subs *repository.SubmissionRepo, repo *repository.IndicatorRepo, log *zap.Logger) *IndicatorService {
	if log == nil {
		log = zap.NewNop()
	}
	return &IndicatorService{
		forms: forms,
		subs:  subs,
		repo:  repo,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SyncFinished recomputes the synced form's indicators. Failures are logged;
// the sync itself already succeeded.
func (s *IndicatorService) SyncFinished(ctx context.Context, l *models.SyncLog) {
	inds, err := s.Recompute(ctx, l.FormUID)
	if err != nil {
		s.log.Error("compute indicators", zap.String("form", l.FormUID), zap.String("sync_id", l.ID), zap.Error(err))
		return
	}
	s.log.Debug("indicators computed", zap.String("form", l.FormUID), zap.Int("count", len(inds)))
}

// Recompute derives the indicators of a form from its stored submissions and
// replaces the stored set.
func (s *IndicatorService) Recompute(ctx context.Context, ref string) ([]models.Indicator, error) {
	form, err := s.forms.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	idx, err := s.forms.Index(ctx, form)
	if err != nil {
		return nil, err
	}
	subs, err := s.subs.AllByForm(ctx, form.UID)
	if err != nil {
		return nil, err
	}
	inds, err := computeIndicators(form.UID, subs, idx, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Replace(ctx, form.UID, inds); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, form.UID)
}

// List returns the indicators of one form, or of every form when ref is empty.
func (s *IndicatorService) List(ctx context.Context, ref string) ([]models.Indicator, error) {
	if ref == "" {
		return s.repo.List(ctx, "")
	}
	form, err := s.forms.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, form.UID)
}

func (s *IndicatorService) Dashboard(ctx context.Context) (*IndicatorDashboard, error) {
	all, err := s.repo.List(ctx, "")
	if err != nil {
		return nil, err
	}
	out := &IndicatorDashboard{Indicators: all, ByForm: make(map[string][]models.Indicator)}
	for _, ind := range all {
		out.ByForm[ind.FormUID] = append(out.ByForm[ind.FormUID], ind)
	}

	today := s.now().Truncate(24 * time.Hour)
	perDay := make(map[string]int)
	for _, ind := range all {
		perDay[ind.ComputedAt.UTC().Format(time.DateOnly)]++
	}
	out.Trends = make([]TrendPoint, trendDays)
	for i := range out.Trends {
		day := today.AddDate(0, 0, i-trendDays+1).Format(time.DateOnly)
		out.Trends[i] = TrendPoint{Date: day, Count: perDay[day]}
	}
	return out, nil
}

// computeIndicators picks indicators from the schema: the submission total,
// answer counts of the first select_one fields, the share of "yes" answers
// of yes/no questions and the mean of the first numeric fields. Without a
// schema only the total is produced.
func computeIndicators(formUID string, subs []*models.Submission, idx *schemaindex.Index, at time.Time) ([]models.Indicator, error) {
	if len(subs) == 0 {
		return nil, nil
	}
	newInd := func(typ models.IndicatorType, name, field, answer string, v float64) models.Indicator {
		return models.Indicator{FormUID: formUID, Name: name, Type: typ, Field: field, Answer: answer, Value: v, ComputedAt: at}
	}

	rows, err := single(aggregate.Metric{Type: aggregate.MetricCount, Field: "*"}, nil, subs, idx)
	if err != nil {
		return nil, err
	}
	out := []models.Indicator{newInd(models.IndicatorCount, "Total Submissions", "*", "", float64(rows[0][valueKey].(int)))}

	var counted, percents, averages int
	for _, f := range idx.Fields() {
		path := f.FullPath()
		switch {
		case f.Type == schemaindex.TypeSelectOne:
			if counted < maxCountFields {
				rows, err := single(aggregate.Metric{Type: aggregate.MetricCount, Field: "*"}, []string{path}, subs, idx)
				if err != nil {
					return nil, err
				}
				added := false
				for _, row := range rows {
					answer, ok := row[path].(string)
					if !ok {
						continue
					}
					out = append(out, newInd(models.IndicatorCount, fmt.Sprintf("Count: %s = %s", path, answer), path, answer, float64(row[valueKey].(int))))
					added = true
				}
				if added {
					counted++
				}
			}
			yes, ok := yesOption(f, idx)
			if !ok || percents == maxPercentFields {
				continue
			}
			answered := withValue(path, subs, idx)
			if len(answered) == 0 {
				continue
			}
			rows, err := single(aggregate.Metric{Type: aggregate.MetricPercentage, Field: path, Value: yes.Code}, nil, answered, idx)
			if err != nil {
				return nil, err
			}
			out = append(out, newInd(models.IndicatorPercentage, fmt.Sprintf("Percentage: %s = %s", path, yes.Label), path, yes.Label, rows[0][valueKey].(float64)))
			percents++
		case f.Type == schemaindex.TypeInteger || f.Type == schemaindex.TypeDecimal:
			if averages == maxAverageFields {
				continue
			}
			rows, err := single(aggregate.Metric{Type: aggregate.MetricAvg, Field: path}, nil, subs, idx)
			if err != nil {
				return nil, err
			}
			avg, ok := rows[0][valueKey].(float64)
			if !ok {
				continue
			}
			out = append(out, newInd(models.IndicatorAverage, "Average: "+path, path, "", avg))
			averages++
		}
	}
	return out, nil
}

const valueKey = "value"

// single runs one metric under a fixed alias.
func single(m aggregate.Metric, groupBy []string, subs []*models.Submission, idx *schemaindex.Index) ([]aggregate.Row, error) {
	m.Alias = valueKey
	return aggregate.Metrics(groupBy, []aggregate.Metric{m}, subs, idx)
}

func yesOption(f *schemaindex.Field, idx *schemaindex.Index) (schemaindex.Option, bool) {
	list, ok := idx.OptionList(f.ListName)
	if !ok {
		return schemaindex.Option{}, false
	}
	for _, o := range list.Options {
		if strings.EqualFold(o.Code, "yes") {
			return o, true
		}
	}
	return schemaindex.Option{}, false
}

func withValue(field string, subs []*models.Submission, idx *schemaindex.Index) []*models.Submission {
	var out []*models.Submission
	for _, sub := range subs {
		if _, ok := fields.Value(field, sub, idx); ok {
			out = append(out, sub)
		}
	}
	return out
}
