package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parisxmas/kobodash/internal/models"
	"github.com/parisxmas/kobodash/internal/schemaindex"
)

const surveyJSON = `{"content":{"survey":[
	{"type":"select_one yesno","name":"consent"},
	{"type":"select_one sex","name":"gender"},
	{"type":"integer","name":"age"},
	{"type":"decimal","name":"income"}],
	"choices":[
	{"list_name":"yesno","name":"yes","label":["Yes"]},
	{"list_name":"yesno","name":"no","label":["No"]},
	{"list_name":"sex","name":"m","label":["Male"]},
	{"list_name":"sex","name":"f","label":["Female"]}]}}`

func TestComputeIndicators(t *testing.T) {
	idx, err := schemaindex.Build("f1", []byte(surveyJSON))
	require.NoError(t, err)
	subs := []*models.Submission{
		{Raw: map[string]any{"consent": "yes", "gender": "m", "age": "30"}},
		{Raw: map[string]any{"consent": "no", "gender": "f", "age": "40"}},
		{Raw: map[string]any{"consent": "yes", "gender": "f"}},
		{Raw: map[string]any{"gender": "m", "age": "unknown"}},
	}
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	inds, err := computeIndicators("f1", subs, idx, at)
	require.NoError(t, err)

	type got struct {
		Name  string
		Type  models.IndicatorType
		Value float64
	}
	var out []got
	for _, ind := range inds {
		assert.Equal(t, "f1", ind.FormUID)
		assert.Equal(t, at, ind.ComputedAt)
		out = append(out, got{ind.Name, ind.Type, ind.Value})
	}
	require.Len(t, out, 7)
	assert.Equal(t, []got{
		{"Total Submissions", models.IndicatorCount, 4},
		{"Count: consent = Yes", models.IndicatorCount, 2},
		{"Count: consent = No", models.IndicatorCount, 1},
		{"Percentage: consent = Yes", models.IndicatorPercentage, out[3].Value},
		{"Count: gender = Male", models.IndicatorCount, 2},
		{"Count: gender = Female", models.IndicatorCount, 2},
		{"Average: age", models.IndicatorAverage, 35},
	}, out)
	assert.InDelta(t, 200.0/3, out[3].Value, 1e-9)
	assert.Equal(t, "Yes", inds[3].Answer)
}

func TestComputeIndicators_WithoutSchemaOrData(t *testing.T) {
	subs := []*models.Submission{{Raw: map[string]any{"age": "3"}}, {Raw: map[string]any{}}}
	inds, err := computeIndicators("f1", subs, nil, time.Now())
	require.NoError(t, err)
	require.Len(t, inds, 1)
	assert.Equal(t, 2.0, inds[0].Value)

	inds, err = computeIndicators("f1", nil, nil, time.Now())
	require.NoError(t, err)
	assert.Empty(t, inds)
}

func TestIndicators_ComputedAfterSyncAndCleared(t *testing.T) {
	e := newEnv(t)
	e.registerAndSync(t)
	ctx := context.Background()

	inds, err := e.indicators.List(ctx, "household-survey")
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, ind := range inds {
		values[ind.Name] = ind.Value
	}
	assert.Equal(t, map[string]float64{
		"Total Submissions":            4,
		"Count: info/province = Kabul": 3,
		"Count: info/province = Balkh": 1,
		"Average: hh_size":             12,
	}, values)

	dash, err := e.indicators.Dashboard(ctx)
	require.NoError(t, err)
	assert.Len(t, dash.ByForm["aF1"], 4)
	require.Len(t, dash.Trends, trendDays)
	assert.Equal(t, time.Now().UTC().Format(time.DateOnly), dash.Trends[trendDays-1].Date)
	assert.Equal(t, 4, dash.Trends[trendDays-1].Count)

	_, err = e.forms.ClearData(ctx, "aF1")
	require.NoError(t, err)
	inds, err = e.indicators.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, inds)

	_, err = e.indicators.List(ctx, "ghost")
	assert.Error(t, err)
}
