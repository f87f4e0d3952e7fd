package walkthrough

import "strings"

// Format identifies an import format.
type Format string

const (
	FormatMarkdown    Format = "markdown"
	FormatDelimited   Format = "csv"
	FormatSpreadsheet Format = "spreadsheet"
	FormatStructured  Format = "structured"
)

var AllFormats = []Format{FormatMarkdown, FormatDelimited, FormatSpreadsheet, FormatStructured}

// ParseFormat resolves a format name, accepting a few common spellings ("md", "xlsx", "json", ...).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv", "tsv", "delimited", "text":
		return FormatDelimited, nil
	case "spreadsheet", "xlsx", "xlsm", "excel":
		return FormatSpreadsheet, nil
	case "structured", "json", "jsonc", "yaml", "yml":
		return FormatStructured, nil
	}
	return "", ErrUnknownFormat
}

// Source returns the provenance tag of documents imported in this format.
func (f Format) Source() Source {
	switch f {
	case FormatMarkdown:
		return SourceMarkdown
	case FormatDelimited:
		return SourceCSV
	case FormatSpreadsheet:
		return SourceSpreadsheet
	default:
		return SourceStructured
	}
}

// Parser reads one import format. The set of parsers is closed.
type Parser interface {
	Format() Format
	// Available reports whether the parser can run in this environment.
	Available() bool
	Parse(data []byte) (RawDocument, error)

	sealed()
}

var (
	_ Parser = MarkdownParser{}
	_ Parser = DelimitedParser{}
	_ Parser = SpreadsheetParser{}
	_ Parser = StructuredParser{}
)

// Parsers dispatches over the supported formats.
type Parsers struct {
	Markdown    MarkdownParser
	Delimited   DelimitedParser
	Spreadsheet SpreadsheetParser
	Structured  StructuredParser
}

// NewParsers returns the parser set. decoder may be nil when spreadsheets cannot be decoded.
func NewParsers(decoder SpreadsheetDecoder) Parsers {
	return Parsers{Spreadsheet: SpreadsheetParser{Decoder: decoder}}
}

// For returns the parser of the format.
func (ps Parsers) For(f Format) (Parser, error) {
	switch f {
	case FormatMarkdown:
		return ps.Markdown, nil
	case FormatDelimited:
		return ps.Delimited, nil
	case FormatSpreadsheet:
		if !ps.Spreadsheet.Available() {
			return nil, ErrFormatUnavailable
		}
		return ps.Spreadsheet, nil
	case FormatStructured:
		return ps.Structured, nil
	}
	return nil, ErrUnknownFormat
}

// FormatInfo describes an import format to clients.
type FormatInfo struct {
	Format    Format `json:"format"`
	Available bool   `json:"available"`
}

// Formats lists every format with its availability.
func (ps Parsers) Formats() []FormatInfo {
	return []FormatInfo{
		{Format: FormatMarkdown, Available: ps.Markdown.Available()},
		{Format: FormatDelimited, Available: ps.Delimited.Available()},
		{Format: FormatSpreadsheet, Available: ps.Spreadsheet.Available()},
		{Format: FormatStructured, Available: ps.Structured.Available()},
	}
}

// Parse reads data in the given format.
func (ps Parsers) Parse(f Format, data []byte) (RawDocument, error) {
	p, err := ps.For(f)
	if err != nil {
		return RawDocument{}, err
	}
	return p.Parse(data)
}
