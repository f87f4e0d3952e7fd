package walkthrough

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// UntitledSection is the title given to sections that have none.
const UntitledSection = "Untitled"

// Normalize coerces loosely shaped input into a canonical Script. It never fails:
//  - anything that is not a non-empty list becomes a single untitled section with one empty step,
//  - missing or mistyped fields get their zero value,
//  - a section without steps gets one empty placeholder step,
//  - a pass/fail step is always required.
// Normalize is idempotent: Normalize(Normalize(x).Raw()) equals Normalize(x).
func Normalize(raw RawScript) Script {
	items, ok := asList(raw.value)
	if !ok || len(items) == 0 {
		return Script{placeholderSection()}
	}
	script := make(Script, 0, len(items))
	for _, item := range items {
		script = append(script, normalizeSection(item))
	}
	return script
}

// NormalizeScript runs an already canonical script through Normalize again,
// e.g. one built by hand or read from storage.
func NormalizeScript(s Script) Script {
	return Normalize(s.Raw())
}

func placeholderSection() Section {
	return Section{Title: UntitledSection, Steps: []Step{{}}}
}

func normalizeSection(v interface{}) Section {
	if title, ok := v.(string); ok {
		v = map[string]interface{}{"section": title}
	}
	fields := asFields(v)

	sec := Section{
		Title:    strings.TrimSpace(coerceString(fields.get("section", "title", "name"))),
		Critical: coerceBool(fields.get("critical")),
		PassFail: coerceBool(fields.get("passfail", "pf")),
		Steps:    normalizeSteps(fields.get("steps", "items")),
	}
	if sec.Title == "" {
		sec.Title = UntitledSection
	}
	if len(sec.Steps) == 0 {
		sec.Steps = []Step{{}}
	}
	return sec
}

func normalizeSteps(v interface{}) []Step {
	if v == nil {
		return nil
	}
	items, ok := asList(v)
	if !ok {
		// a lone step object or line of text
		items = []interface{}{v}
	}
	steps := make([]Step, 0, len(items))
	for _, item := range items {
		steps = append(steps, normalizeStep(item))
	}
	return steps
}

func normalizeStep(v interface{}) Step {
	if _, ok := asMap(v); !ok {
		return Step{Script: coerceString(v)}
	}
	fields := asFields(v)

	step := Step{
		Label:    strings.TrimSpace(coerceString(fields.get("label"))),
		Script:   coerceString(fields.get("script", "text", "line")),
		MustSay:  coerceBool(fields.get("mustsay", "must")),
		Required: coerceBool(fields.get("required", "req")),
		PassFail: coerceBool(fields.get("passfail", "pf")),
		Skip:     coerceBool(fields.get("skip", "omit")),
		Tags:     coerceTags(fields.get("tags", "tag")),
	}
	if step.PassFail {
		step.Required = true
	}
	return step
}

// fields gives case, space, hyphen and underscore insensitive access to an object's keys.
type fields map[string]interface{}

func asFields(v interface{}) fields {
	m, _ := asMap(v)
	f := make(fields, len(m))
	for k, val := range m {
		key := NormalizeHeader(k)
		if _, exists := f[key]; !exists {
			f[key] = val
		}
	}
	return f
}

// get returns the value of the first known name.
func (f fields) get(names ...string) interface{} {
	for _, n := range names {
		if v, ok := f[n]; ok && v != nil {
			return v
		}
	}
	return nil
}

// NormalizeHeader lowers a key and strips spaces, hyphens, underscores and slashes: "Pass/Fail" -> "passfail".
func NormalizeHeader(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch r {
		case ' ', '\t', '-', '_', '/':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func asList(v interface{}) ([]interface{}, bool) {
	switch l := v.(type) {
	case []interface{}:
		return l, true
	case []map[string]interface{}:
		out := make([]interface{}, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out, true
	case []string:
		out := make([]interface{}, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case Script:
		return asList(l.Raw().value)
	case []Section:
		return asList(Script(l).Raw().value)
	case RawScript:
		return asList(l.value)
	}
	return nil, false
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}: // yaml mappings with non-string keys
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

func coerceString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case uint64:
		return strconv.FormatUint(s, 10)
	case bool:
		return strconv.FormatBool(s)
	}
	return ""
}

// ParseFlag reports whether a cell or value spells "true": true, yes, y or 1 (case-insensitive).
func ParseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1":
		return true
	}
	return false
}

func coerceBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return ParseFlag(b)
	case json.Number:
		f, err := b.Float64()
		return err == nil && f != 0
	case float64:
		return b != 0
	case int:
		return b != 0
	case int64:
		return b != 0
	}
	return false
}

func coerceTags(v interface{}) []string {
	var candidates []string
	switch t := v.(type) {
	case string:
		candidates = SplitTags(t)
	case []string:
		candidates = t
	case []interface{}:
		for _, item := range t {
			candidates = append(candidates, coerceString(item))
		}
	default:
		return nil
	}

	var tags []string
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		tags = append(tags, c)
	}
	return tags
}

// SplitTags splits a tag cell such as "brakes; air" on semicolons, commas or pipes.
func SplitTags(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == ',' || r == '|'
	})
}
