package persist

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strconv"

	"tsprep/internal/dataset"
	pipeerrors "tsprep/internal/errors"
)

// utf8BOM keeps spreadsheet tools from misreading delimited output as ANSI.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// writeDelimited renders the dataset as delimited text with a header row.
// Null cells render as empty strings and round-trip back to nulls through
// the loader.
func (p *Persister) writeDelimited(ds *dataset.Dataset, f *os.File) error {
	if _, err := f.Write(utf8BOM); err != nil {
		return pipeerrors.NewIO(stageName, "write byte order mark", err)
	}

	w := csv.NewWriter(f)
	if p.cfg.Source.Delimiter != "" {
		w.Comma = rune(p.cfg.Source.Delimiter[0])
	}

	if err := w.Write(ds.ColumnNames()); err != nil {
		return pipeerrors.NewIO(stageName, "write header", err)
	}

	cols := ds.Columns()
	row := make([]string, len(cols))
	for i := 0; i < ds.Rows(); i++ {
		for j, col := range cols {
			row[j] = p.cellString(col, i)
		}
		if err := w.Write(row); err != nil {
			return pipeerrors.NewIO(stageName, "write row", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return pipeerrors.NewIO(stageName, "flush delimited output", err)
	}
	return nil
}

// writeRecords renders the dataset as a JSON array of row objects, one key
// per column. Null cells render as JSON null.
func (p *Persister) writeRecords(ds *dataset.Dataset, f *os.File) error {
	cols := ds.Columns()
	records := make([]map[string]interface{}, ds.Rows())
	for i := range records {
		rec := make(map[string]interface{}, len(cols))
		for _, col := range cols {
			rec[col.Name] = p.cellValue(col, i)
		}
		records[i] = rec
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return pipeerrors.NewIO(stageName, "encode records output", err)
	}
	return nil
}

func (p *Persister) cellString(col *dataset.Column, i int) string {
	if col.IsNull(i) {
		return ""
	}
	switch col.Kind {
	case dataset.KindTime:
		return col.Times[i].Format(p.cfg.TimestampLayout)
	case dataset.KindNumeric:
		return strconv.FormatFloat(col.Floats[i], 'g', -1, 64)
	default:
		return col.Strings[i]
	}
}

func (p *Persister) cellValue(col *dataset.Column, i int) interface{} {
	if col.IsNull(i) {
		return nil
	}
	switch col.Kind {
	case dataset.KindTime:
		return col.Times[i].Format(p.cfg.TimestampLayout)
	case dataset.KindNumeric:
		return col.Floats[i]
	default:
		return col.Strings[i]
	}
}
