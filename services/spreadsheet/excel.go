package spreadsheet

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/cdlbuddy/cdltrainer/core/walkthrough"
)

// Decoder reads xlsx workbooks.
type Decoder struct{}

var _ walkthrough.SpreadsheetDecoder = Decoder{}

func NewDecoder() Decoder { return Decoder{} }

// FirstSheetRows returns the rows of the first sheet, as displayed.
func (Decoder) FirstSheetRows(data []byte) (rows [][]string, err error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "opening workbook")
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = errors.Wrap(cErr, "closing workbook")
		}
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err = f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(err, "reading sheet %q", sheets[0])
	}
	return rows, nil
}
