package walkthrough

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"
)

// SpreadsheetDecoder reads the rows of the first sheet of a workbook.
type SpreadsheetDecoder interface {
	FirstSheetRows(data []byte) ([][]string, error)
}

// SpreadsheetParser reads uploaded workbooks: first sheet, first row as headers,
// then the same rules as DelimitedParser.
type SpreadsheetParser struct {
	Decoder SpreadsheetDecoder // nil when the environment cannot decode workbooks
}

func (SpreadsheetParser) Format() Format { return FormatSpreadsheet }
func (SpreadsheetParser) sealed()        {}

func (p SpreadsheetParser) Available() bool { return p.Decoder != nil }

func (p SpreadsheetParser) Parse(data []byte) (RawDocument, error) {
	if !p.Available() {
		return RawDocument{}, ErrFormatUnavailable
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return RawDocument{}, newParseError(FormatSpreadsheet, "file is empty")
	}

	rows, err := p.Decoder.FirstSheetRows(data)
	if err != nil {
		return RawDocument{}, newParseError(FormatSpreadsheet, "%v", errors.Cause(err))
	}
	// skip leading blank rows so the header is the first row with content
	for len(rows) > 0 && isBlankRow(rows[0]) {
		rows = rows[1:]
	}
	return rowsToDocument(FormatSpreadsheet, rows)
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
