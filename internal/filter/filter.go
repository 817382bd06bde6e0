// Package filter evaluates field constraints against submissions.
package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/parisxmas/kobodash/internal/fields"
	"github.com/parisxmas/kobodash/internal/models"
	"github.com/parisxmas/kobodash/internal/schemaindex"
)

// Kind is the shape of a per-field constraint.
type Kind int

const (
	Ignore Kind = iota
	Single
	AnyOf
)

// Constraint restricts one field. Values holds one entry for Single and one
// or more for AnyOf.
type Constraint struct {
	Kind   Kind
	Values []string
}

// Spec maps field names to constraints. The zero value matches everything.
type Spec map[string]Constraint

// Equals builds a single-value constraint.
func Equals(v string) Constraint {
	return Constraint{Kind: Single, Values: []string{v}}
}

// OneOf builds an any-of constraint. No values means Ignore.
func OneOf(vs ...string) Constraint {
	if len(vs) == 0 {
		return Constraint{Kind: Ignore}
	}
	return Constraint{Kind: AnyOf, Values: vs}
}

// ConstraintOf normalizes a decoded JSON value: nil, "", empty lists and
// lists holding only blanks become Ignore; lists become AnyOf; scalars Single.
func ConstraintOf(v any) (Constraint, error) {
	switch t := v.(type) {
	case nil:
		return Constraint{Kind: Ignore}, nil
	case string:
		if t == "" {
			return Constraint{Kind: Ignore}, nil
		}
		return Equals(t), nil
	case float64, bool, json.Number:
		return Equals(fields.String(t)), nil
	case []any:
		vals := make([]string, 0, len(t))
		for _, item := range t {
			switch item.(type) {
			case map[string]any, []any:
				return Constraint{}, fmt.Errorf("filter values must be scalars, got %T", item)
			}
			if s := fields.String(item); s != "" {
				vals = append(vals, s)
			}
		}
		return OneOf(vals...), nil
	}
	return Constraint{}, fmt.Errorf("unsupported filter value of type %T", v)
}

// UnmarshalJSON decodes {"field": value | [values] | null}.
func (s *Spec) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode filters: %w", err)
	}
	out := make(Spec, len(raw))
	for field, v := range raw {
		c, err := ConstraintOf(v)
		if err != nil {
			return fmt.Errorf("filter %q: %w", field, err)
		}
		out[field] = c
	}
	*s = out
	return nil
}

// Active returns the fields carrying a real constraint, sorted.
func (s Spec) Active() []string {
	var out []string
	for field, c := range s {
		if c.Kind != Ignore {
			out = append(out, field)
		}
	}
	sort.Strings(out)
	return out
}

// Matches reports whether sub satisfies every non-ignored constraint in spec.
// A field that cannot be resolved fails its constraint.
func Matches(sub *models.Submission, spec Spec, idx *schemaindex.Index) bool {
	for _, field := range spec.Active() {
		if !matchField(sub, field, spec[field], idx) {
			return false
		}
	}
	return true
}

// Apply returns the submissions matching spec in their original order.
func Apply(subs []*models.Submission, spec Spec, idx *schemaindex.Index) []*models.Submission {
	if len(spec.Active()) == 0 {
		return subs
	}
	out := make([]*models.Submission, 0, len(subs))
	for _, sub := range subs {
		if Matches(sub, spec, idx) {
			out = append(out, sub)
		}
	}
	return out
}

func matchField(sub *models.Submission, field string, c Constraint, idx *schemaindex.Index) bool {
	p, ok := fields.Resolve(field, sub, idx)
	if !ok {
		return false
	}
	candidates := candidateStrings(p, sub, idx)
	for _, want := range c.Values {
		for _, have := range candidates {
			if have == want {
				return true
			}
		}
	}
	return false
}

// candidateStrings lists the forms a stored value may be matched by: its
// normalized label(s) and the stored code(s).
func candidateStrings(p fields.Path, sub *models.Submission, idx *schemaindex.Index) []string {
	var out []string
	if v, ok := fields.Extract(p, sub, idx); ok {
		if labels, multi := v.([]string); multi {
			out = append(out, labels...)
		} else {
			out = append(out, fields.String(v))
		}
	}
	stored, ok := fields.Stored(p, sub)
	if !ok {
		return out
	}
	if p.Field != nil && p.Field.Type == schemaindex.TypeSelectMultiple {
		return append(out, fields.Codes(stored)...)
	}
	return append(out, fields.String(stored))
}
