package schemaindex

import (
	"encoding/json"
	"fmt"
	"strings"
)

// document covers both shapes the upstream API returns: the full asset with a
// "content" object, and a bare content object.
type document struct {
	UID       string   `json:"uid"`
	VersionID string   `json:"version_id"`
	Content   *content `json:"content"`
	content
}

type content struct {
	Survey  []map[string]any `json:"survey"`
	Choices []map[string]any `json:"choices"`
}

// Build parses a schema document into an Index. It fails only when the
// document is unreadable or has no field list; fields pointing at unknown
// option lists are kept code-only and reported in Warnings.
func Build(formUID string, doc []byte) (*Index, error) {
	var d document
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, &ParseError{FormUID: formUID, Reason: "invalid JSON", Err: err}
	}
	c := d.content
	if d.Content != nil {
		c = *d.Content
	}
	if c.Survey == nil {
		return nil, &ParseError{FormUID: formUID, Reason: "document has no survey field list"}
	}

	x := &Index{
		FormUID: formUID,
		Version: d.VersionID,
		byPath:  make(map[string]*Field),
		byName:  make(map[string][]*Field),
		lists:   make(map[string]*OptionList),
	}
	x.indexChoices(c.Choices)
	x.indexSurvey(c.Survey)
	return x, nil
}

func (x *Index) indexChoices(rows []map[string]any) {
	for _, row := range rows {
		// Nested form: {"name": "provinces", "choices": [{name, label}, ...]}
		if nested, ok := row["choices"].([]any); ok {
			listName := str(row["name"])
			if listName == "" {
				listName = str(row["list_name"])
			}
			for _, item := range nested {
				if m, ok := item.(map[string]any); ok {
					x.addChoice(listName, m)
				}
			}
			continue
		}
		x.addChoice(str(row["list_name"]), row)
	}
}

func (x *Index) addChoice(listName string, row map[string]any) {
	code := str(row["name"])
	if code == "" {
		code = str(row["value"])
	}
	if listName == "" || code == "" {
		return
	}
	list, ok := x.lists[listName]
	if !ok {
		list = &OptionList{Name: listName, labels: make(map[string]string)}
		x.lists[listName] = list
	}
	label := labelOf(row["label"])
	if label == "" {
		label = code
	}
	list.add(code, label)
}

func (x *Index) indexSurvey(rows []map[string]any) {
	var groups []string
	for _, row := range rows {
		typ := strings.TrimSpace(str(row["type"]))
		name := str(row["name"])
		if name == "" {
			name = str(row["$autoname"])
		}

		switch typ {
		case "begin_group", "begin_repeat", "begin group", "begin repeat":
			groups = append(groups, name)
			continue
		case "end_group", "end_repeat", "end group", "end repeat":
			if len(groups) > 0 {
				groups = groups[:len(groups)-1]
			}
			continue
		}
		if name == "" {
			continue
		}

		declared, inlineList := parseType(typ)
		f := &Field{
			Name:  name,
			Path:  append([]string(nil), groups...),
			Type:  declared,
			Label: labelOf(row["label"]),
		}
		if xpath := str(row["$xpath"]); xpath != "" {
			segs := strings.Split(strings.Trim(xpath, "/"), "/")
			f.Path = segs[:len(segs)-1]
		}
		f.ListName = str(row["select_from_list_name"])
		if f.ListName == "" {
			f.ListName = inlineList
		}
		if f.ListName == "" {
			f.ListName = str(row["choice"])
		}
		if f.ListName != "" {
			if _, ok := x.lists[f.ListName]; !ok {
				x.Warnings = append(x.Warnings, fmt.Sprintf("field %s references unknown option list %q", f.FullPath(), f.ListName))
				f.ListName = ""
			}
		}

		full := f.FullPath()
		if _, dup := x.byPath[full]; dup {
			x.Warnings = append(x.Warnings, fmt.Sprintf("duplicate field path %s ignored", full))
			continue
		}
		x.fields = append(x.fields, f)
		x.byPath[full] = f
		x.byName[f.Name] = append(x.byName[f.Name], f)
	}
}

// parseType splits XLSForm-style "select_one provinces" into the type and the
// inline list name.
func parseType(typ string) (DeclaredType, string) {
	parts := strings.Fields(typ)
	if len(parts) == 0 {
		return TypeOther, ""
	}
	list := ""
	if len(parts) > 1 {
		list = parts[1]
	}
	switch parts[0] {
	case "text":
		return TypeText, ""
	case "integer", "int":
		return TypeInteger, ""
	case "decimal":
		return TypeDecimal, ""
	case "select_one", "select1":
		return TypeSelectOne, list
	case "select_multiple", "select_all_that_apply":
		return TypeSelectMultiple, list
	case "date":
		return TypeDate, ""
	case "geopoint":
		return TypeGeopoint, ""
	}
	return TypeOther, ""
}

// labelOf reads a label given as a string, a list of translations, or a list
// of {"label": ...} objects. The first translation wins.
func labelOf(v any) string {
	switch l := v.(type) {
	case string:
		return l
	case []any:
		for _, item := range l {
			switch t := item.(type) {
			case string:
				if t != "" {
					return t
				}
			case map[string]any:
				if s := str(t["label"]); s != "" {
					return s
				}
			}
		}
	case map[string]any:
		return str(l["label"])
	}
	return ""
}

func str(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64, int, int64, json.Number:
		return fmt.Sprint(s)
	}
	return ""
}
