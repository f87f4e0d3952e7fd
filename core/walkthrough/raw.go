package walkthrough

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// RawScript holds section data of unknown shape: decoded JSON or YAML, parser output or
// visual editor state. Normalize turns it into a Script.
type RawScript struct {
	value interface{}
}

// NewRawScript wraps any value for normalization.
func NewRawScript(v interface{}) RawScript {
	return RawScript{value: v}
}

func (r RawScript) Value() interface{} { return r.value }

// IsZero reports whether no section data was provided at all.
func (r RawScript) IsZero() bool { return r.value == nil }

func (r RawScript) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.value)
}

func (r *RawScript) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return errors.Wrap(err, "decoding raw script")
	}
	r.value = v
	return nil
}

// Metadata is the document-level information an import may carry.
type Metadata struct {
	ID        string `json:"id,omitempty"`
	Label     string `json:"label,omitempty"`
	ClassCode string `json:"classCode,omitempty"`
	Version   int    `json:"version,omitempty"`
}

// RawDocument is what every parser produces.
type RawDocument struct {
	Metadata
	Sections RawScript `json:"sections"`
}

// Raw converts the script back to its loose form, e.g. to re-normalize it.
func (s Script) Raw() RawScript {
	sections := make([]interface{}, 0, len(s))
	for _, sec := range s {
		steps := make([]interface{}, 0, len(sec.Steps))
		for _, st := range sec.Steps {
			step := map[string]interface{}{
				"label":    st.Label,
				"script":   st.Script,
				"mustSay":  st.MustSay,
				"required": st.Required,
				"passFail": st.PassFail,
				"skip":     st.Skip,
			}
			if len(st.Tags) > 0 {
				tags := make([]interface{}, len(st.Tags))
				for i, t := range st.Tags {
					tags[i] = t
				}
				step["tags"] = tags
			}
			steps = append(steps, step)
		}
		sections = append(sections, map[string]interface{}{
			"section":  sec.Title,
			"critical": sec.Critical,
			"passFail": sec.PassFail,
			"steps":    steps,
		})
	}
	return NewRawScript(sections)
}
