package loader

import (
	"encoding/csv"
	"errors"
	"io"
	"os"

	pipeerrors "tsprep/internal/errors"
)

// readDelimited reads a delimited text file with a mandatory header row.
func (l *Loader) readDelimited(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, pipeerrors.NewIO(stageName, "open delimited source", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = rune(l.cfg.Source.Delimiter[0])
	reader.FieldsPerRecord = -1 // ragged rows surface as schema issues later
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, pipeerrors.NewSourceFormat(stageName, "delimited source is empty", nil)
		}
		return nil, nil, pipeerrors.NewSourceFormat(stageName, "read header row", err)
	}

	// Strip a UTF-8 BOM written for spreadsheet compatibility.
	if len(header) > 0 && len(header[0]) >= 3 && header[0][:3] == "\xEF\xBB\xBF" {
		header[0] = header[0][3:]
	}

	var cells [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, pipeerrors.NewSourceFormat(stageName, "read data row", err)
		}
		cells = append(cells, record)
	}

	if len(cells) == 0 {
		return nil, nil, pipeerrors.NewSourceFormat(stageName, "delimited source contains only a header", nil)
	}
	return header, cells, nil
}
