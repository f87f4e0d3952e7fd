package walkthrough

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ExportFormat is a format a Document can be exported to.
type ExportFormat string

const (
	ExportJSON     ExportFormat = "json"
	ExportMarkdown ExportFormat = "markdown"
	ExportCSV      ExportFormat = "csv"
)

// ContentType returns the MIME type of the exported bytes.
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportMarkdown:
		return "text/markdown; charset=utf-8"
	case ExportCSV:
		return "text/csv; charset=utf-8"
	default:
		return "application/json; charset=utf-8"
	}
}

// Extension returns the file extension of the exported bytes.
func (f ExportFormat) Extension() string {
	switch f {
	case ExportMarkdown:
		return ".md"
	case ExportCSV:
		return ".csv"
	default:
		return ".json"
	}
}

func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json", "structured":
		return ExportJSON, nil
	case "markdown", "md":
		return ExportMarkdown, nil
	case "csv":
		return ExportCSV, nil
	}
	return "", ErrUnknownFormat
}

// Exchange is the canonical structured representation of a Document,
// readable back by StructuredParser.
type Exchange struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	ClassCode string `json:"classCode"`
	Version   int    `json:"version,omitempty"` // omitted while pending
	Sections  Script `json:"sections"`
}

func NewExchange(doc Document) Exchange {
	sections := doc.Script
	if sections == nil {
		sections = Script{}
	}
	return Exchange{
		ID:        doc.ID,
		Label:     doc.Label,
		ClassCode: doc.ClassCode,
		Version:   doc.Version.Int,
		Sections:  sections,
	}
}

// Export renders a Document in the given format.
func Export(doc Document, f ExportFormat) ([]byte, error) {
	switch f {
	case ExportMarkdown:
		return RenderMarkdown(Metadata{Label: doc.Label, ClassCode: doc.ClassCode}, doc.Script)
	case ExportCSV:
		return RenderCSV(doc.Script)
	case ExportJSON:
		data, err := json.MarshalIndent(NewExchange(doc), "", "  ")
		return data, errors.Wrap(err, "encoding exchange")
	}
	return nil, ErrUnknownFormat
}

// RenderMarkdown renders a script in the dialect MarkdownParser reads. Tags are not rendered.
func RenderMarkdown(meta Metadata, script Script) ([]byte, error) {
	var buf bytes.Buffer
	if meta.Label != "" || meta.ClassCode != "" {
		fm, err := yaml.Marshal(struct {
			Label     string `yaml:"label,omitempty"`
			ClassCode string `yaml:"classCode,omitempty"`
		}{meta.Label, meta.ClassCode})
		if err != nil {
			return nil, errors.Wrap(err, "encoding front matter")
		}
		buf.WriteString("---\n")
		buf.Write(fm)
		buf.WriteString("---\n\n")
	}

	for i, sec := range script {
		if i > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString("# " + oneLine(sec.Title))
		if sec.Critical {
			buf.WriteString(" [critical]")
		}
		if sec.PassFail {
			buf.WriteString(" [pf]")
		}
		buf.WriteString("\n\n")

		for _, st := range sec.Steps {
			buf.WriteString("- ")
			if st.Label != "" {
				buf.WriteString("**" + oneLine(st.Label) + ":** ")
			}
			buf.WriteString(oneLine(st.Script))
			if st.MustSay {
				buf.WriteString(" [must]")
			}
			if st.Required && !st.PassFail {
				buf.WriteString(" [required]")
			}
			if st.PassFail {
				buf.WriteString(" [pf]")
			}
			if st.Skip {
				buf.WriteString(" [skip]")
			}
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}

var csvHeader = []string{"section", "critical", "sectionPassFail", "label", "script", "mustSay", "required", "passFail", "skip", "tags"}

// RenderCSV renders a script as delimited text, one step per row.
func RenderCSV(script Script) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, errors.Wrap(err, "writing header")
	}
	for _, sec := range script {
		for _, st := range sec.Steps {
			rec := []string{
				sec.Title,
				strconv.FormatBool(sec.Critical),
				strconv.FormatBool(sec.PassFail),
				st.Label,
				oneLine(st.Script),
				strconv.FormatBool(st.MustSay),
				strconv.FormatBool(st.Required),
				strconv.FormatBool(st.PassFail),
				strconv.FormatBool(st.Skip),
				strings.Join(st.Tags, "; "),
			}
			if err := w.Write(rec); err != nil {
				return nil, errors.Wrap(err, "writing row")
			}
		}
	}
	w.Flush()
	return buf.Bytes(), errors.Wrap(w.Error(), "flushing csv")
}

func oneLine(s string) string {
	return collapseSpaces(strings.ReplaceAll(s, "\n", " "))
}
