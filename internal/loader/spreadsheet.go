package loader

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	pipeerrors "tsprep/internal/errors"
)

// readSpreadsheet reads an xlsx workbook. The configured sheet is used when
// set; otherwise the first sheet containing more than a header row wins.
func (l *Loader) readSpreadsheet(path, sheet string) ([]string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, pipeerrors.NewSourceFormat(stageName, "open spreadsheet", err)
	}
	defer f.Close()

	var rows [][]string
	if sheet != "" {
		rows, err = f.GetRows(sheet)
		if err != nil {
			return nil, nil, pipeerrors.NewSourceFormat(stageName, fmt.Sprintf("sheet %q not found", sheet), err)
		}
	} else {
		for _, name := range f.GetSheetList() {
			candidate, err := f.GetRows(name)
			if err == nil && len(candidate) > 1 {
				rows = candidate
				sheet = name
				break
			}
		}
		if rows == nil {
			return nil, nil, pipeerrors.NewSourceFormat(stageName, "no sheet with tabular data found", nil)
		}
	}

	header := rows[0]
	var cells [][]string
	for _, row := range rows[1:] {
		if isEmptyRow(row) {
			continue
		}
		cells = append(cells, row)
	}
	if len(cells) == 0 {
		return nil, nil, pipeerrors.NewSourceFormat(stageName, fmt.Sprintf("sheet %q contains only a header", sheet), nil)
	}
	return header, cells, nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
