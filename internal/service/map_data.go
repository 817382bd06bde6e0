package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/parisxmas/kobodash/internal/filter"
)

// coordPrecision is the number of decimals locations are grouped at,
// roughly 11 m at the equator.
const coordPrecision = 4

type MapSubmission struct {
	ID          int64      `json:"id"`
	KoboID      string     `json:"koboId"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
}

// MapLocation is every matching submission within one rounded coordinate.
type MapLocation struct {
	Lat         float64         `json:"lat"`
	Lng         float64         `json:"lng"`
	Count       int             `json:"count"`
	Submissions []MapSubmission `json:"submissions"`
}

type MapData struct {
	FormUID          string        `json:"formId"`
	Locations        []MapLocation `json:"locations"`
	Count            int           `json:"count"`
	TotalSubmissions int           `json:"totalSubmissions"`
}

// MapData returns the stored coordinates of the form's submissions that
// match spec, grouped by rounded position in first-seen order. Submissions
// without both coordinates are left out.
func (s *AnalyticsService) MapData(ctx context.Context, ref string, spec filter.Spec) (*MapData, error) {
	form, err := s.forms.Get(ctx, ref)
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
	for _, f := range spec.Active() {
		if err := checkResolvable(f, all, idx); err != nil {
			return nil, err
		}
	}

	out := &MapData{FormUID: form.UID, Locations: make([]MapLocation, 0)}
	at := make(map[string]int)
	for _, sub := range filter.Apply(all, spec, idx) {
		if sub.Latitude == nil || sub.Longitude == nil {
			continue
		}
		lat, lng := round(*sub.Latitude), round(*sub.Longitude)
		key := fmt.Sprintf("%.*f,%.*f", coordPrecision, lat, coordPrecision, lng)
		i, ok := at[key]
		if !ok {
			i = len(out.Locations)
			at[key] = i
			out.Locations = append(out.Locations, MapLocation{Lat: lat, Lng: lng})
		}
		loc := &out.Locations[i]
		loc.Count++
		loc.Submissions = append(loc.Submissions, MapSubmission{ID: sub.ID, KoboID: sub.KoboID, SubmittedAt: sub.SubmittedAt})
		out.TotalSubmissions++
	}
	out.Count = len(out.Locations)
	return out, nil
}

func round(v float64) float64 {
	p := math.Pow10(coordPrecision)
	return math.Round(v*p) / p
}
