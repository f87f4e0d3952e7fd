package walkthrough

import (
	"fmt"
	"sort"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/volatiletech/null/v8"
)

// Stats summarizes a script.
type Stats struct {
	Sections         int      `json:"sections"`
	CriticalSections int      `json:"criticalSections"`
	PassFailSections int      `json:"passFailSections"`
	Steps            int      `json:"steps"`
	MustSaySteps     int      `json:"mustSaySteps"`
	RequiredSteps    int      `json:"requiredSteps"`
	PassFailSteps    int      `json:"passFailSteps"`
	SkippedSteps     int      `json:"skippedSteps"`
	Tags             []string `json:"tags"`
}

func ComputeStats(script Script) Stats {
	st := Stats{Sections: len(script), Tags: []string{}}
	tags := make(map[string]bool)
	for _, sec := range script {
		if sec.Critical {
			st.CriticalSections++
		}
		if sec.PassFail {
			st.PassFailSections++
		}
		for _, step := range sec.Steps {
			st.Steps++
			if step.MustSay {
				st.MustSaySteps++
			}
			if step.Required {
				st.RequiredSteps++
			}
			if step.PassFail {
				st.PassFailSteps++
			}
			if step.Skip {
				st.SkippedSteps++
			}
			for _, t := range step.Tags {
				if !tags[t] {
					tags[t] = true
					st.Tags = append(st.Tags, t)
				}
			}
		}
	}
	sort.Strings(st.Tags)
	return st
}

// Projection is the read-only view of a script shown before submitting or approving it.
type Projection struct {
	Document   Document `json:"document"`
	Validation Result   `json:"validation"`
	Stats      Stats    `json:"stats"`
	Markdown   string   `json:"markdown"`
	// Diff is a unified diff against the currently published document for the same key, if any.
	Diff             string   `json:"diff,omitempty"`
	PublishedVersion null.Int `json:"publishedVersion"`
}

// Project builds the projection of doc. published is the document currently holding doc's key, or nil.
func Project(doc Document, published *Document) (Projection, error) {
	md, err := RenderMarkdown(Metadata{}, doc.Script)
	if err != nil {
		return Projection{}, err
	}
	p := Projection{
		Document:   doc,
		Validation: Validate(doc.Script),
		Stats:      ComputeStats(doc.Script),
		Markdown:   string(md),
	}
	if published == nil || published.ID == doc.ID {
		return p, nil
	}

	pubMd, err := RenderMarkdown(Metadata{}, published.Script)
	if err != nil {
		return Projection{}, err
	}
	p.PublishedVersion = published.Version
	p.Diff, err = difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(pubMd)),
		B:        difflib.SplitLines(p.Markdown),
		FromFile: fmt.Sprintf("published v%d", published.Version.Int),
		ToFile:   "candidate",
		Context:  2,
	})
	return p, err
}
