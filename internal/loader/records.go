package loader

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	pipeerrors "tsprep/internal/errors"
)

// readRecords reads structured records: either a JSON array of flat objects
// or one JSON object per line. Objects carry no column order, so the header
// follows the declared config column order with undeclared keys appended in
// lexical order for determinism.
func (l *Loader) readRecords(path string) ([]string, [][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, pipeerrors.NewIO(stageName, "read records source", err)
	}

	records, err := decodeRecords(data)
	if err != nil {
		return nil, nil, pipeerrors.NewSourceFormat(stageName, "decode records", err)
	}
	if len(records) == 0 {
		return nil, nil, pipeerrors.NewSourceFormat(stageName, "records source is empty", nil)
	}

	header := l.recordHeader(records)
	cells := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(header))
		for j, name := range header {
			row[j] = cellString(rec[name])
		}
		cells[i] = row
	}
	return header, cells, nil
}

func decodeRecords(data []byte) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var records []map[string]interface{}
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parse JSON array: %w", err)
		}
		return records, nil
	}

	var records []map[string]interface{}
	scanner := bufio.NewScanner(strings.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec map[string]interface{}
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("parse JSON line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

func (l *Loader) recordHeader(records []map[string]interface{}) []string {
	present := make(map[string]bool)
	for _, rec := range records {
		for key := range rec {
			present[key] = true
		}
	}

	var header []string
	claimed := make(map[string]bool)
	claim := func(name string) {
		if name != "" && present[name] && !claimed[name] {
			claimed[name] = true
			header = append(header, name)
		}
	}

	claim(l.cfg.TimestampColumn)
	for _, spec := range l.cfg.Columns {
		claim(spec.Name)
	}
	claim(l.cfg.TargetColumn)
	for _, name := range l.cfg.FeatureColumns {
		claim(name)
	}

	rest := make(map[string]bool)
	for name := range present {
		if !claimed[name] {
			rest[name] = true
		}
	}
	return append(header, sortedKeys(rest)...)
}

func cellString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
