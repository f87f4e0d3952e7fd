package walkthrough

import (
	"bytes"
	"regexp"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once

	stepFlagRe    = regexp.MustCompile(`(?i)\[\s*(must|must[ -]?say|required|req|pf|pass[ /-]?fail|skip|omit)\s*\]`)
	sectionFlagRe = regexp.MustCompile(`(?i)\[\s*(critical|pf|pass[ /-]?fail)\s*\]`)
	taskBoxRe     = regexp.MustCompile(`^\[[ xX]\]\s+`)
	leadInRe      = regexp.MustCompile(`^(?:\*\*|__|\*|_)([^*_]+?)(?:\*\*|__|\*|_)\s*(:?)\s*(.*)$`)
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdownInstance
}

// MarkdownParser reads walkthroughs written as Markdown:
//
//	---
//	label: Class A pre-trip
//	classCode: A
//	---
//	# Engine compartment [critical]
//	- **Oil level:** Check the dipstick, oil is within the safe range [must] [pf]
//	- Look for leaks under the engine [skip]
//
// Headings of the top-most level used in the document are sections, list items are steps.
// Bracket flags may appear anywhere in a line; a bold or emphasized lead-in before a colon is the step label.
// GFM tables are read like delimited text.
type MarkdownParser struct{}

func (MarkdownParser) Format() Format  { return FormatMarkdown }
func (MarkdownParser) Available() bool { return true }
func (MarkdownParser) sealed()         {}

func (MarkdownParser) Parse(data []byte) (RawDocument, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return RawDocument{}, newParseError(FormatMarkdown, "input is empty")
	}

	meta, body, err := splitFrontMatter(data)
	if err != nil {
		return RawDocument{}, err
	}

	doc := getMarkdown().Parser().Parse(text.NewReader(body))
	b := &markdownBuilder{source: body, level: sectionLevel(doc)}
	if err = ast.Walk(doc, b.walk); err != nil {
		return RawDocument{}, newParseError(FormatMarkdown, "%v", err)
	}
	return RawDocument{Metadata: meta, Sections: NewRawScript(b.build())}, nil
}

// splitFrontMatter extracts an optional leading YAML block delimited by "---" lines.
func splitFrontMatter(data []byte) (Metadata, []byte, error) {
	var meta Metadata
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte("---")) {
		return meta, data, nil
	}
	rest := trimmed[3:]
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 || len(bytes.TrimSpace(rest[:nl])) > 0 {
		return meta, data, nil // a thematic break, not front matter
	}
	rest = rest[nl+1:]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return meta, data, nil
	}

	var v map[string]interface{}
	if err := yaml.Unmarshal(rest[:end], &v); err != nil {
		return meta, nil, newParseError(FormatMarkdown, "invalid front matter: %v", err)
	}
	f := asFields(v)
	meta.ID = coerceString(f.get("id"))
	meta.Label = coerceString(f.get("label", "title"))
	meta.ClassCode = coerceString(f.get("classcode", "class"))
	if n, ok := asInt(f.get("version")); ok {
		meta.Version = n
	}

	body := rest[end+len("\n---"):]
	if nl = bytes.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = nil
	}
	return meta, body, nil
}

// sectionLevel returns the smallest heading level used in the document.
func sectionLevel(doc ast.Node) int {
	level := 0
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if h, ok := n.(*ast.Heading); ok && entering {
			if level == 0 || h.Level < level {
				level = h.Level
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if level == 0 {
		level = 1
	}
	return level
}

type markdownSection struct {
	fields map[string]interface{}
	steps  []interface{}
}

type markdownBuilder struct {
	source   []byte
	level    int
	sections []*markdownSection
	current  *markdownSection
}

func (b *markdownBuilder) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	switch n.Kind() {
	case ast.KindHeading:
		if n.(*ast.Heading).Level == b.level {
			b.startSection(parseHeadingLine(blockText(n, b.source)))
		}
		return ast.WalkSkipChildren, nil

	case ast.KindListItem:
		if first := n.FirstChild(); first != nil &&
			(first.Kind() == ast.KindTextBlock || first.Kind() == ast.KindParagraph) {
			if line := blockText(first, b.source); line != "" {
				if step := parseStepLine(line); step != nil {
					b.addStep(step)
				}
			}
		}

	case extast.KindTable:
		b.addTable(n)
		return ast.WalkSkipChildren, nil

	case ast.KindFencedCodeBlock, ast.KindCodeBlock, ast.KindHTMLBlock:
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (b *markdownBuilder) startSection(fields map[string]interface{}) {
	b.current = &markdownSection{fields: fields}
	b.sections = append(b.sections, b.current)
}

func (b *markdownBuilder) addStep(step interface{}) {
	if b.current == nil {
		b.startSection(map[string]interface{}{"section": ""})
	}
	b.current.steps = append(b.current.steps, step)
}

// addTable appends the rows of a steps table. Rows without a section go to the current section.
// Tables without a script column are not walkthrough content and are ignored.
func (b *markdownBuilder) addTable(table ast.Node) {
	var rows [][]string
	for r := table.FirstChild(); r != nil; r = r.NextSibling() {
		var row []string
		for c := r.FirstChild(); c != nil; c = c.NextSibling() {
			row = append(row, inlineText(c, b.source))
		}
		rows = append(rows, row)
	}

	doc, err := rowsToDocument(FormatMarkdown, rows)
	if err != nil {
		return
	}
	items, _ := asList(doc.Sections.Value())
	for _, item := range items {
		sec, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		steps, _ := sec["steps"].([]interface{})
		if name, _ := sec["section"].(string); name == "" {
			for _, st := range steps {
				b.addStep(st)
			}
			continue
		}
		delete(sec, "steps")
		b.startSection(sec)
		b.current.steps = steps
	}
}

func (b *markdownBuilder) build() []interface{} {
	out := make([]interface{}, 0, len(b.sections))
	for _, sec := range b.sections {
		sec.fields["steps"] = sec.steps
		out = append(out, sec.fields)
	}
	return out
}

// blockText joins the raw source lines of a block.
func blockText(n ast.Node, source []byte) string {
	lines := n.Lines()
	parts := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		if s := strings.TrimSpace(string(seg.Value(source))); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// inlineText concatenates the text of an inline subtree, dropping markup.
func inlineText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(buf.String())
}

func parseHeadingLine(line string) map[string]interface{} {
	fields := map[string]interface{}{}
	for _, m := range sectionFlagRe.FindAllStringSubmatch(line, -1) {
		if strings.EqualFold(m[1], "critical") {
			fields["critical"] = true
		} else {
			fields["passFail"] = true
		}
	}
	fields["section"] = collapseSpaces(sectionFlagRe.ReplaceAllString(line, " "))
	return fields
}

// parseStepLine returns nil when no script text is left on the line, even if it carries a label or flags.
func parseStepLine(line string) map[string]interface{} {
	step := map[string]interface{}{}
	for _, m := range stepFlagRe.FindAllStringSubmatch(line, -1) {
		switch flag := NormalizeHeader(m[1]); flag {
		case "must", "mustsay":
			step["mustSay"] = true
		case "required", "req":
			step["required"] = true
		case "pf", "passfail":
			step["passFail"] = true
		case "skip", "omit":
			step["skip"] = true
		}
	}
	line = collapseSpaces(stepFlagRe.ReplaceAllString(line, " "))
	line = taskBoxRe.ReplaceAllString(line, "")

	label, script := splitLeadIn(line)
	if script == "" {
		return nil
	}
	if label != "" {
		step["label"] = label
	}
	step["script"] = script
	return step
}

// splitLeadIn splits "**Label:** text" (or "**Label**: text", "*Label*: text", "__Label__: text").
func splitLeadIn(line string) (label, rest string) {
	m := leadInRe.FindStringSubmatch(line)
	if m == nil {
		return "", line
	}
	label = strings.TrimSpace(m[1])
	switch {
	case strings.HasSuffix(label, ":"):
		label = strings.TrimSpace(strings.TrimSuffix(label, ":"))
	case m[2] == "":
		return "", line // emphasis without a colon is part of the script
	}
	return label, strings.TrimSpace(m[3])
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
