package walkthrough

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	placeholder := Script{{Title: UntitledSection, Steps: []Step{{}}}}

	tests := []struct {
		name string
		raw  interface{}
		want Script
	}{
		{name: "nil", raw: nil, want: placeholder},
		{name: "empty list", raw: []interface{}{}, want: placeholder},
		{name: "not a list", raw: map[string]interface{}{"section": "Brakes"}, want: placeholder},
		{name: "scalar", raw: "Brakes", want: placeholder},
		{
			name: "section titles only",
			raw:  []interface{}{"Brakes", map[string]interface{}{"title": "  Lights  "}, map[string]interface{}{}},
			want: Script{
				{Title: "Brakes", Steps: []Step{{}}},
				{Title: "Lights", Steps: []Step{{}}},
				{Title: UntitledSection, Steps: []Step{{}}},
			},
		},
		{
			name: "loose keys and values",
			raw: []interface{}{
				map[string]interface{}{
					"Section":  "Lights",
					"CRITICAL": "yes",
					"steps": []interface{}{
						"Check the headlights",
						map[string]interface{}{"Text": "Check the signals", "pass_fail": "y", "tags": "lights; signals, lights"},
						map[string]interface{}{"label": " Horn ", "script": 42, "Must Say": true, "skip": 1.0},
					},
				},
			},
			want: Script{{
				Title:    "Lights",
				Critical: true,
				Steps: []Step{
					{Script: "Check the headlights"},
					{Script: "Check the signals", PassFail: true, Required: true, Tags: []string{"lights", "signals"}},
					{Label: "Horn", Script: "42", MustSay: true, Skip: true},
				},
			}},
		},
		{
			name: "lone step",
			raw:  []interface{}{map[string]interface{}{"section": 12, "pf": true, "steps": "Walk around the truck"}},
			want: Script{{Title: "12", PassFail: true, Steps: []Step{{Script: "Walk around the truck"}}}},
		},
		{
			name: "empty steps get a placeholder",
			raw:  []interface{}{map[string]interface{}{"section": "Tires", "steps": []interface{}{}}},
			want: Script{{Title: "Tires", Steps: []Step{{}}}},
		},
		{
			name: "yaml mapping keys",
			raw: []interface{}{map[interface{}]interface{}{
				"section": "Coupling",
				"steps":   []interface{}{map[interface{}]interface{}{"script": "Check the fifth wheel", "required": "true"}},
			}},
			want: Script{{Title: "Coupling", Steps: []Step{{Script: "Check the fifth wheel", Required: true}}}},
		},
		{
			name: "canonical script",
			raw:  Script{{Title: "Brakes", Steps: []Step{{Script: "Pump the brakes", PassFail: true}}}},
			want: Script{{Title: "Brakes", Steps: []Step{{Script: "Pump the brakes", PassFail: true, Required: true}}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(NewRawScript(tt.raw))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize() = %+v; want %+v", got, tt.want)
			}

			// idempotent
			if again := Normalize(got.Raw()); !reflect.DeepEqual(again, got) {
				t.Errorf("Normalize(Normalize().Raw()) = %+v; want %+v", again, got)
			}
		})
	}
}

func TestNormalize_PassFailImpliesRequired(t *testing.T) {
	got := NormalizeScript(Script{{Title: "S", Steps: []Step{{Script: "a", PassFail: true}, {Script: "b"}}}})
	for _, st := range got[0].Steps {
		if st.PassFail && !st.Required {
			t.Errorf("step %q: passFail without required", st.Script)
		}
	}
	if got[0].Steps[1].Required {
		t.Errorf("step %q: required should be left untouched", got[0].Steps[1].Script)
	}
}

func TestParseFlag(t *testing.T) {
	for _, s := range []string{"true", "TRUE", "yes", "Y", " 1 "} {
		if !ParseFlag(s) {
			t.Errorf("ParseFlag(%q) = false; want true", s)
		}
	}
	for _, s := range []string{"", "false", "no", "0", "x", "2"} {
		if ParseFlag(s) {
			t.Errorf("ParseFlag(%q) = true; want false", s)
		}
	}
}

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"Must Say":    "mustsay",
		"must_say":    "mustsay",
		"pass-fail":   "passfail",
		" Step Label": "steplabel",
		"SCRIPT":      "script",
	}
	for in, want := range tests {
		if got := NormalizeHeader(in); got != want {
			t.Errorf("NormalizeHeader(%q) = %q; want %q", in, got, want)
		}
	}
}
