package walkthrough

import (
	"reflect"
	"strings"
	"testing"

	"github.com/volatiletech/null/v8"
)

func TestComputeStats(t *testing.T) {
	got := ComputeStats(sampleScript())
	want := Stats{
		Sections:         2,
		CriticalSections: 1,
		PassFailSections: 1,
		Steps:            4,
		MustSaySteps:     1,
		RequiredSteps:    2,
		PassFailSteps:    1,
		SkippedSteps:     1,
		Tags:             []string{"air", "brakes"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ComputeStats() = %+v; want %+v", got, want)
	}

	if empty := ComputeStats(nil); empty.Tags == nil || empty.Steps != 0 {
		t.Errorf("ComputeStats(nil) = %+v", empty)
	}
}

func TestProject(t *testing.T) {
	published := sampleDocument()

	candidate := sampleDocument()
	candidate.ID = "8f0c3c55-3d1c-4f6b-8f4e-0c1d1b6c7a21"
	candidate.Status = StatusInReview
	candidate.Version = null.Int{}
	candidate.Script = candidate.Script.Clone()
	candidate.Script[1].Steps[0].Script = "Pump the brakes three times"

	t.Run("without a published document", func(t *testing.T) {
		p, err := Project(candidate, nil)
		if err != nil {
			t.Fatalf("Project() error = %v", err)
		}
		if p.Diff != "" || p.PublishedVersion.Valid {
			t.Errorf("Project() diff = %q, version = %v; want none", p.Diff, p.PublishedVersion)
		}
		if !p.Validation.OK || p.Stats.Steps != 4 {
			t.Errorf("Project() validation = %+v, stats = %+v", p.Validation, p.Stats)
		}
		if !strings.Contains(p.Markdown, "- Pump the brakes three times") {
			t.Errorf("Project() markdown = %q", p.Markdown)
		}
	})

	t.Run("against the published document", func(t *testing.T) {
		p, err := Project(candidate, &published)
		if err != nil {
			t.Fatalf("Project() error = %v", err)
		}
		if p.PublishedVersion != null.IntFrom(2) {
			t.Errorf("Project() published version = %v; want 2", p.PublishedVersion)
		}
		for _, want := range []string{"--- published v2", "+++ candidate", "-- Pump the brakes\n", "+- Pump the brakes three times\n"} {
			if !strings.Contains(p.Diff, want) {
				t.Errorf("Project() diff does not contain %q:\n%s", want, p.Diff)
			}
		}
	})

	t.Run("the published document itself", func(t *testing.T) {
		p, err := Project(published, &published)
		if err != nil {
			t.Fatalf("Project() error = %v", err)
		}
		if p.Diff != "" {
			t.Errorf("Project() diff = %q; want none", p.Diff)
		}
	})
}
