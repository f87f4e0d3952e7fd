package walkthrough

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"github.com/pkg/errors"
)

type column int

const (
	colSection column = iota
	colLabel
	colScript
	colMustSay
	colRequired
	colPassFail
	colSkip
	colTags
	colCritical
	colSectionPassFail
)

// headerAliases maps normalized header names (see NormalizeHeader) to columns.
// "title" is resolved separately: it names the section unless a section column exists.
var headerAliases = map[string]column{
	"section": colSection,
	"part":    colSection,
	"area":    colSection,

	"steplabel": colLabel,
	"label":     colLabel,
	"item":      colLabel,

	"script":  colScript,
	"text":    colScript,
	"line":    colScript,
	"content": colScript,

	"mustsay": colMustSay,
	"must":    colMustSay,
	"say":     colMustSay,

	"required": colRequired,
	"req":      colRequired,

	"passfail": colPassFail,
	"pass":     colPassFail,
	"pf":       colPassFail,

	"skip": colSkip,
	"omit": colSkip,

	"tags": colTags,
	"tag":  colTags,

	"critical":        colCritical,
	"sectionpassfail": colSectionPassFail,
}

const titleHeader = "title"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DelimitedParser reads one step per row of comma, tab or semicolon separated text with a header row.
type DelimitedParser struct{}

func (DelimitedParser) Format() Format  { return FormatDelimited }
func (DelimitedParser) Available() bool { return true }
func (DelimitedParser) sealed()         {}

func (DelimitedParser) Parse(data []byte) (RawDocument, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return RawDocument{}, newParseError(FormatDelimited, "input is empty")
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return RawDocument{}, newParseError(FormatDelimited, "%v", errors.Cause(err))
		}
		rows = append(rows, rec)
	}
	return rowsToDocument(FormatDelimited, rows)
}

// sniffDelimiter picks the separator from the header line: tab for pasted spreadsheet cells,
// semicolon for some locales, comma otherwise.
func sniffDelimiter(data []byte) rune {
	header := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		header = data[:i]
	}
	tabs := bytes.Count(header, []byte{'\t'})
	commas := bytes.Count(header, []byte{','})
	semis := bytes.Count(header, []byte{';'})
	switch {
	case tabs > 0 && tabs >= commas:
		return '\t'
	case semis > commas:
		return ';'
	default:
		return ','
	}
}

// resolveColumns maps each known column to its index in the header row.
func resolveColumns(f Format, header []string) (map[column]int, error) {
	cols := make(map[column]int)
	titleIdx := -1
	for i, h := range header {
		name := NormalizeHeader(h)
		if name == titleHeader {
			if titleIdx < 0 {
				titleIdx = i
			}
			continue
		}
		if col, ok := headerAliases[name]; ok {
			if _, taken := cols[col]; !taken {
				cols[col] = i
			}
		}
	}
	if titleIdx >= 0 {
		if _, ok := cols[colSection]; !ok {
			cols[colSection] = titleIdx
		} else if _, ok = cols[colLabel]; !ok {
			cols[colLabel] = titleIdx
		}
	}
	if _, ok := cols[colScript]; !ok {
		return nil, newParseError(f, "no script column found (expected one of script, text, line, content)")
	}
	return cols, nil
}

// rowsToDocument groups data rows into sections by section name, in first-seen order.
// A blank section cell continues the previous section. Rows without script text are dropped.
func rowsToDocument(f Format, rows [][]string) (RawDocument, error) {
	if len(rows) == 0 {
		return RawDocument{}, newParseError(f, "no header row")
	}
	cols, err := resolveColumns(f, rows[0])
	if err != nil {
		return RawDocument{}, err
	}

	type group struct {
		section map[string]interface{}
		steps   []interface{}
	}
	var (
		order   []*group
		byName  = make(map[string]*group)
		current string
	)

	for _, row := range rows[1:] {
		cell := func(c column) string {
			i, ok := cols[c]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		if name := cell(colSection); name != "" {
			current = name
		}
		script := cell(colScript)
		if script == "" {
			continue
		}

		g, ok := byName[current]
		if !ok {
			g = &group{section: map[string]interface{}{"section": current}}
			byName[current] = g
			order = append(order, g)
		}
		if ParseFlag(cell(colCritical)) {
			g.section["critical"] = true
		}
		if ParseFlag(cell(colSectionPassFail)) {
			g.section["passFail"] = true
		}

		step := map[string]interface{}{
			"label":    cell(colLabel),
			"script":   script,
			"mustSay":  ParseFlag(cell(colMustSay)),
			"required": ParseFlag(cell(colRequired)),
			"passFail": ParseFlag(cell(colPassFail)),
			"skip":     ParseFlag(cell(colSkip)),
		}
		if tags := SplitTags(cell(colTags)); len(tags) > 0 {
			step["tags"] = tags
		}
		g.steps = append(g.steps, step)
	}

	sections := make([]interface{}, 0, len(order))
	for _, g := range order {
		g.section["steps"] = g.steps
		sections = append(sections, g.section)
	}
	return RawDocument{Sections: NewRawScript(sections)}, nil
}
