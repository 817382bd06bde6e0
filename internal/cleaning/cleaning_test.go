package cleaning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean_FlattensGroups(t *testing.T) {
	raw := map[string]any{
		"beneficiary": map[string]any{"hh_size": float64(6), "name": "  Amina "},
		"info":        map[string]any{"info/province": "p1"},
		"_id":         float64(42),
	}
	got, err := Clean(raw)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"beneficiary/hh_size": float64(6),
		"beneficiary/name":    "Amina",
		"info/province":       "p1",
		"_id":                 float64(42),
	}, got)
}

func TestClean_NullEquivalents(t *testing.T) {
	got, err := Clean(map[string]any{"a": "", "b": "null", "c": " N/A ", "d": "0", "e": float64(0)})
	require.NoError(t, err)

	assert.Nil(t, got["a"])
	assert.Nil(t, got["b"])
	assert.Nil(t, got["c"])
	assert.Equal(t, "0", got["d"])
	assert.Equal(t, float64(0), got["e"])
	assert.Contains(t, got, "a", "null keys are kept with a nil value")
}

func TestClean_RepeatGroups(t *testing.T) {
	raw := map[string]any{
		"members": []any{
			map[string]any{"members/age": float64(4)},
			map[string]any{"members/age": float64(31), "members/note": " "},
		},
		"tags": []any{"a", " b "},
	}
	got, err := Clean(raw)
	require.NoError(t, err)

	assert.Equal(t, float64(2), got["members_count"])
	assert.Equal(t, []any{"a", "b"}, got["tags"])
	members := got["members"].([]any)
	assert.Nil(t, members[1].(map[string]any)["members/note"])
}

func TestClean_ConflictFails(t *testing.T) {
	raw := map[string]any{
		"g":   map[string]any{"q": "x"},
		"g/q": "y",
	}
	got, err := Clean(raw)
	require.Error(t, err)
	assert.Nil(t, got)

	_, err = Clean(nil)
	assert.Error(t, err)
}

func TestContentHash_StableAcrossKeyOrder(t *testing.T) {
	a, err := ContentHash(map[string]any{"x": 1, "y": "z"})
	require.NoError(t, err)
	b, err := ContentHash(map[string]any{"y": "z", "x": 1})
	require.NoError(t, err)
	c, err := ContentHash(map[string]any{"y": "z", "x": 2})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestRecordID(t *testing.T) {
	assert.Equal(t, "42", RecordID(map[string]any{"_id": float64(42)}))
	assert.Equal(t, "abc", RecordID(map[string]any{"id": "abc"}))
	assert.Equal(t, "", RecordID(map[string]any{"name": "x"}))
}

func TestSubmittedAt(t *testing.T) {
	ts := SubmittedAt(map[string]any{"_submission_time": "2024-03-01T10:20:30"})
	require.NotNil(t, ts)
	assert.Equal(t, 2024, ts.Year())
	assert.Nil(t, SubmittedAt(map[string]any{"_submission_time": "yesterday"}))
	assert.Nil(t, SubmittedAt(map[string]any{}))
}

func TestExtractLocation(t *testing.T) {
	tests := []struct {
		name     string
		raw      map[string]any
		lat, lng float64
		found    bool
	}{
		{"geolocation list", map[string]any{"_geolocation": []any{34.5, 69.2}}, 34.5, 69.2, true},
		{"object", map[string]any{"location": map[string]any{"lat": "36.7", "lon": 67.1}}, 36.7, 67.1, true},
		{"geopoint string", map[string]any{"coordinates": "34.1 70.3 0 5"}, 34.1, 70.3, true},
		{"null geolocation", map[string]any{"_geolocation": []any{nil, nil}}, 0, 0, false},
		{"missing", map[string]any{}, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lng := ExtractLocation(tt.raw)
			if !tt.found {
				assert.Nil(t, lat)
				assert.Nil(t, lng)
				return
			}
			require.NotNil(t, lat)
			assert.InDelta(t, tt.lat, *lat, 1e-9)
			assert.InDelta(t, tt.lng, *lng, 1e-9)
		})
	}
}

func TestFlattenKeys(t *testing.T) {
	flat := map[string]any{"a": 1}
	assert.Equal(t, flat, FlattenKeys(flat))

	got := FlattenKeys(map[string]any{"beneficiary": map[string]any{"hh_size": float64(6), "x": ""}})
	assert.Equal(t, map[string]any{"beneficiary/hh_size": float64(6), "beneficiary/x": ""}, got)
}
