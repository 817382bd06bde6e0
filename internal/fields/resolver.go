// Package fields resolves requested field names against submission payloads
// and normalizes the values found there.
package fields

import (
	"sort"
	"strings"

	"github.com/parisxmas/kobodash/internal/cleaning"
	"github.com/parisxmas/kobodash/internal/models"
	"github.com/parisxmas/kobodash/internal/schemaindex"
)

// Strategy names the rule that matched a requested field.
type Strategy int

const (
	StrategyExact Strategy = iota + 1
	StrategyCaseInsensitive
	StrategyNestedPath
	StrategyFlattened
)

func (s Strategy) String() string {
	switch s {
	case StrategyExact:
		return "exact"
	case StrategyCaseInsensitive:
		return "case-insensitive"
	case StrategyNestedPath:
		return "nested-path"
	case StrategyFlattened:
		return "flattened"
	}
	return "none"
}

// Path is where a requested field lives inside a submission.
type Path struct {
	Requested string
	Key       string
	Strategy  Strategy
	// Field is the schema definition for Key, nil when the schema does not
	// declare it.
	Field *schemaindex.Field
}

type view struct {
	data map[string]any
	keys []string
}

func newView(m map[string]any) view {
	flat := cleaning.FlattenKeys(m)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return view{data: flat, keys: keys}
}

func views(sub *models.Submission) []view {
	payloads := sub.Views()
	out := make([]view, 0, len(payloads))
	for _, p := range payloads {
		if p != nil {
			out = append(out, newView(p))
		}
	}
	return out
}

type matcher func(name string, v view, idx *schemaindex.Index) (string, bool)

var precedence = []struct {
	strategy Strategy
	match    matcher
}{
	{StrategyExact, matchExact},
	{StrategyCaseInsensitive, matchCaseInsensitive},
	{StrategyNestedPath, matchNestedPath},
	{StrategyFlattened, matchFlattened},
}

// Resolve finds the payload key for requested. Strategies are tried in fixed
// order (exact, case-insensitive, nested path, flattened notation); for each
// one the cleaned payload is checked before the raw payload. A false result
// means the field is absent from this submission.
func Resolve(requested string, sub *models.Submission, idx *schemaindex.Index) (Path, bool) {
	name := strings.Trim(strings.TrimSpace(requested), "/")
	if name == "" || sub == nil {
		return Path{}, false
	}
	vs := views(sub)
	for _, p := range precedence {
		for _, v := range vs {
			if key, ok := p.match(name, v, idx); ok {
				return Path{
					Requested: requested,
					Key:       key,
					Strategy:  p.strategy,
					Field:     schemaField(idx, key, name),
				}, true
			}
		}
	}
	return Path{}, false
}

func matchExact(name string, v view, _ *schemaindex.Index) (string, bool) {
	_, ok := v.data[name]
	return name, ok
}

func matchCaseInsensitive(name string, v view, _ *schemaindex.Index) (string, bool) {
	for _, k := range v.keys {
		if strings.EqualFold(k, name) {
			return k, true
		}
	}
	return "", false
}

// matchNestedPath treats name as the last segment of a nested path. Paths
// declared in the schema are preferred over whatever the payload happens to
// contain.
func matchNestedPath(name string, v view, idx *schemaindex.Index) (string, bool) {
	for _, f := range idx.FieldsNamed(name) {
		if len(f.Path) == 0 {
			continue
		}
		if _, ok := v.data[f.FullPath()]; ok {
			return f.FullPath(), true
		}
	}
	suffix := cleaning.Separator + name
	for _, k := range v.keys {
		if strings.HasSuffix(k, suffix) {
			return k, true
		}
	}
	return "", false
}

func matchFlattened(name string, v view, _ *schemaindex.Index) (string, bool) {
	flat := schemaindex.Flatten(name)
	for _, k := range v.keys {
		if strings.EqualFold(schemaindex.Flatten(k), flat) {
			return k, true
		}
	}
	return "", false
}

func schemaField(idx *schemaindex.Index, key, name string) *schemaindex.Field {
	if f, ok := idx.Lookup(key); ok {
		return f
	}
	if f, ok := idx.Lookup(name); ok {
		return f
	}
	return nil
}

// Keys lists the payload keys of a submission, cleaned view first, without
// duplicates. It feeds "did you mean" suggestions.
func Keys(sub *models.Submission) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range views(sub) {
		for _, k := range v.keys {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}
