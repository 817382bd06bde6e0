// Package schemaindex turns an upstream form schema into lookup tables that map
// field names to declared types and answer codes to human labels.
package schemaindex

import (
	"strings"
)

// DeclaredType is the question type declared in the form schema.
type DeclaredType string

const (
	TypeText           DeclaredType = "text"
	TypeInteger        DeclaredType = "integer"
	TypeDecimal        DeclaredType = "decimal"
	TypeSelectOne      DeclaredType = "select_one"
	TypeSelectMultiple DeclaredType = "select_multiple"
	TypeDate           DeclaredType = "date"
	TypeGeopoint       DeclaredType = "geopoint"
	TypeOther          DeclaredType = "other"
	TypeUnknown        DeclaredType = "unknown"
)

// IsChoice reports whether values of this type are option-list codes.
func (t DeclaredType) IsChoice() bool {
	return t == TypeSelectOne || t == TypeSelectMultiple
}

// Field is one question of the form.
type Field struct {
	Name     string       `json:"name"`
	Path     []string     `json:"path,omitempty"`
	Type     DeclaredType `json:"type"`
	Label    string       `json:"label,omitempty"`
	ListName string       `json:"listName,omitempty"`
}

// FullPath joins the nesting path and the name with "/", the separator used by
// the upstream platform in submission keys.
func (f *Field) FullPath() string {
	if len(f.Path) == 0 {
		return f.Name
	}
	return strings.Join(f.Path, "/") + "/" + f.Name
}

// Option is a code/label pair of an option list.
type Option struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// OptionList is a named, ordered set of options.
type OptionList struct {
	Name    string   `json:"name"`
	Options []Option `json:"options"`
	labels  map[string]string
}

// Label returns the label for code and whether the code is in the list.
func (l *OptionList) Label(code string) (string, bool) {
	label, ok := l.labels[code]
	return label, ok
}

func (l *OptionList) add(code, label string) {
	if _, dup := l.labels[code]; dup {
		return
	}
	l.labels[code] = label
	l.Options = append(l.Options, Option{Code: code, Label: label})
}

// Index is the parsed, immutable view of one form schema version. It is safe
// for concurrent readers; rebuilds produce a new Index.
type Index struct {
	FormUID  string
	Version  string
	Warnings []string

	fields []*Field
	byPath map[string]*Field
	byName map[string][]*Field
	lists  map[string]*OptionList
}

// Fields returns the fields in declaration order.
func (x *Index) Fields() []*Field {
	if x == nil {
		return nil
	}
	out := make([]*Field, len(x.fields))
	copy(out, x.fields)
	return out
}

// OptionList returns the named option list.
func (x *Index) OptionList(name string) (*OptionList, bool) {
	if x == nil {
		return nil, false
	}
	l, ok := x.lists[name]
	return l, ok
}

// Lookup finds a field by full path, then by name, then case-insensitively,
// then by flattened notation ("group/q" == "group_q"). A nil Index finds nothing.
func (x *Index) Lookup(name string) (*Field, bool) {
	if x == nil || name == "" {
		return nil, false
	}
	name = strings.Trim(strings.TrimSpace(name), "/")
	if f, ok := x.byPath[name]; ok {
		return f, true
	}
	if fs := x.byName[name]; len(fs) > 0 {
		return fs[0], true
	}
	for _, f := range x.fields {
		if strings.EqualFold(f.FullPath(), name) || strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	flat := Flatten(name)
	for _, f := range x.fields {
		if strings.EqualFold(Flatten(f.FullPath()), flat) {
			return f, true
		}
	}
	return nil, false
}

// FieldsNamed returns every field whose terminal name equals name, in
// declaration order.
func (x *Index) FieldsNamed(name string) []*Field {
	if x == nil {
		return nil
	}
	return x.byName[name]
}

// FieldType returns the declared type of field, or TypeUnknown.
func (x *Index) FieldType(field string) DeclaredType {
	f, ok := x.Lookup(field)
	if !ok {
		return TypeUnknown
	}
	return f.Type
}

// ResolveLabel maps code to its label through the field's option list. Unknown
// fields, fields without a list and codes missing from the list all return
// code unchanged.
func (x *Index) ResolveLabel(field, code string) string {
	f, ok := x.Lookup(field)
	if !ok || f.ListName == "" {
		return code
	}
	list, ok := x.lists[f.ListName]
	if !ok {
		return code
	}
	if label, ok := list.Label(code); ok {
		return label
	}
	return code
}

// Flatten replaces nesting separators with underscores.
func Flatten(name string) string {
	return strings.ReplaceAll(name, "/", "_")
}
