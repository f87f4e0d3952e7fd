package walkthrough

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// StructuredParser reads JSON (comments and trailing commas allowed) or YAML holding either
// a bare list of sections or an object {id, label, classCode, version, sections}.
type StructuredParser struct{}

func (StructuredParser) Format() Format  { return FormatStructured }
func (StructuredParser) Available() bool { return true }
func (StructuredParser) sealed()         {}

func (StructuredParser) Parse(data []byte) (RawDocument, error) {
	data = bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	if len(data) == 0 {
		return RawDocument{}, newParseError(FormatStructured, "input is empty")
	}

	var v interface{}
	if data[0] == '[' || data[0] == '{' || data[0] == '/' {
		if err := json.Unmarshal(jsonc.ToJSON(data), &v); err != nil {
			return RawDocument{}, newParseError(FormatStructured, "invalid JSON: %v", err)
		}
	} else if err := yaml.Unmarshal(data, &v); err != nil {
		return RawDocument{}, newParseError(FormatStructured, "invalid YAML: %v", err)
	}

	if list, ok := asList(v); ok {
		return RawDocument{Sections: NewRawScript(list)}, nil
	}
	if _, ok := asMap(v); ok {
		f := asFields(v)
		sections := f.get("sections")
		if sections == nil {
			return RawDocument{}, newParseError(FormatStructured, `object has no "sections" list`)
		}
		doc := RawDocument{
			Metadata: Metadata{
				ID:        coerceString(f.get("id")),
				Label:     coerceString(f.get("label")),
				ClassCode: coerceString(f.get("classcode", "class")),
			},
			Sections: NewRawScript(sections),
		}
		if n, ok := asInt(f.get("version")); ok {
			doc.Version = n
		}
		return doc, nil
	}
	return RawDocument{}, newParseError(FormatStructured, "expected a list of sections or an object with sections")
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}
