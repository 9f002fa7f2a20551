// Package loader reads raw tabular sources into the canonical Dataset
// representation. Four source kinds are supported: delimited text,
// spreadsheets, structured records and the pipeline's own columnar binary
// format. Reads are retried with bounded backoff on IO failures.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"tsprep/internal/config"
	"tsprep/internal/dataset"
	pipeerrors "tsprep/internal/errors"
)

const stageName = "load"

// fallbackLayouts are tried when the configured timestamp layout does not
// match a cell.
var fallbackLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
	"01-02-2006",
}

// Loader reads the configured source into a Dataset.
type Loader struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a loader for the given pipeline configuration.
func New(cfg *config.Config, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{cfg: cfg, logger: logger}
}

// Read loads the configured source. IO failures are retried up to the
// configured attempt count; format and schema failures are not.
func (l *Loader) Read(ctx context.Context) (*dataset.Dataset, error) {
	var lastErr error
	for attempt := 1; attempt <= l.cfg.Retry.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("load cancelled: %w", err)
		}

		ds, err := l.readOnce()
		if err == nil {
			l.logger.InfoContext(ctx, "source loaded",
				"kind", string(l.cfg.Source.Kind),
				"locator", l.cfg.Source.Locator,
				"dataset", ds.Summary(),
			)
			return ds, nil
		}
		lastErr = err

		if !pipeerrors.IsRetryable(err) {
			return nil, err
		}
		l.logger.WarnContext(ctx, "source read failed, retrying",
			"attempt", attempt,
			"max_attempts", l.cfg.Retry.Attempts,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("load cancelled: %w", ctx.Err())
		case <-time.After(l.cfg.Retry.Backoff * time.Duration(attempt)):
		}
	}
	return nil, lastErr
}

func (l *Loader) readOnce() (*dataset.Dataset, error) {
	switch l.cfg.Source.Kind {
	case config.SourceDelimitedText:
		header, cells, err := l.readDelimited(l.cfg.Source.Locator)
		if err != nil {
			return nil, err
		}
		return l.buildDataset(header, cells)
	case config.SourceSpreadsheet:
		header, cells, err := l.readSpreadsheet(l.cfg.Source.Locator, l.cfg.Source.Sheet)
		if err != nil {
			return nil, err
		}
		return l.buildDataset(header, cells)
	case config.SourceStructuredRecords:
		header, cells, err := l.readRecords(l.cfg.Source.Locator)
		if err != nil {
			return nil, err
		}
		return l.buildDataset(header, cells)
	case config.SourceColumnarBinary:
		return l.readColumnar(l.cfg.Source.Locator)
	default:
		return nil, pipeerrors.NewSourceFormat(stageName, fmt.Sprintf("unsupported source kind %q", l.cfg.Source.Kind), nil)
	}
}

func (l *Loader) readColumnar(path string) (*dataset.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pipeerrors.NewIO(stageName, "open columnar source", err)
	}
	defer f.Close()

	ds, err := dataset.DecodeBinary(f)
	if err != nil {
		return nil, pipeerrors.NewSourceFormat(stageName, "decode columnar source", err)
	}
	if _, ok := ds.Column(l.cfg.TimestampColumn); !ok {
		return nil, pipeerrors.NewSchemaMismatch(stageName, l.cfg.TimestampColumn, "timestamp column not present in source")
	}
	return ds, nil
}

// buildDataset converts a header row plus string cells into typed columns.
// The timestamp column must parse on every row; numeric cells that do not
// parse become nulls and are counted later by the validator.
func (l *Loader) buildDataset(header []string, cells [][]string) (*dataset.Dataset, error) {
	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.TrimSpace(name)] = i
	}

	tsIdx, ok := colIdx[l.cfg.TimestampColumn]
	if !ok {
		return nil, pipeerrors.NewSchemaMismatch(stageName, l.cfg.TimestampColumn, "timestamp column not present in source")
	}

	times := make([]time.Time, len(cells))
	for i, row := range cells {
		if tsIdx >= len(row) {
			return nil, pipeerrors.NewSourceFormat(stageName, fmt.Sprintf("row %d has no timestamp cell", i+1), nil)
		}
		ts, err := l.parseTime(strings.TrimSpace(row[tsIdx]))
		if err != nil {
			return nil, pipeerrors.NewSourceFormat(stageName, fmt.Sprintf("row %d: %v", i+1, err), nil)
		}
		times[i] = ts
	}

	cols := []*dataset.Column{dataset.NewTimeColumn(l.cfg.TimestampColumn, times)}
	for _, name := range orderedColumns(header, l.cfg.TimestampColumn) {
		idx := colIdx[name]
		raw := make([]string, len(cells))
		for i, row := range cells {
			if idx < len(row) {
				raw[i] = strings.TrimSpace(row[idx])
			}
		}

		role := dataset.RoleFeature
		if name == l.cfg.TargetColumn {
			role = dataset.RoleTarget
		}

		if l.columnKind(name, raw) == config.TypeCategorical {
			valid := make([]bool, len(raw))
			for i, v := range raw {
				valid[i] = !isMissingCell(v)
			}
			cols = append(cols, dataset.NewCategoricalColumn(name, role, raw, valid))
			continue
		}

		floats := make([]float64, len(raw))
		valid := make([]bool, len(raw))
		for i, v := range raw {
			if isMissingCell(v) {
				continue
			}
			f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
			if err != nil {
				continue // counted as missing by the validator
			}
			floats[i] = f
			valid[i] = true
		}
		cols = append(cols, dataset.NewNumericColumn(name, role, floats, valid))
	}

	ds, err := dataset.New(cols...)
	if err != nil {
		return nil, pipeerrors.NewSourceFormat(stageName, "assemble dataset", err)
	}
	return ds, nil
}

// columnKind resolves the declared type of a column, inferring from the data
// when the config is silent: a column where every non-missing cell parses as
// a number is numeric.
func (l *Loader) columnKind(name string, raw []string) config.ColumnType {
	if spec, ok := l.cfg.ColumnSpecFor(name); ok && spec.Type != "" {
		return spec.Type
	}
	for _, v := range raw {
		if isMissingCell(v) {
			continue
		}
		if _, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64); err != nil {
			return config.TypeCategorical
		}
	}
	return config.TypeNumeric
}

func (l *Loader) parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if ts, err := time.Parse(l.cfg.TimestampLayout, value); err == nil {
		return ts, nil
	}
	for _, layout := range fallbackLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp %q", value)
}

// orderedColumns returns the non-timestamp header names in source order,
// deduplicated. Sorting is only applied to names missing from the header
// order (possible with record sources), keeping output deterministic.
func orderedColumns(header []string, timestampColumn string) []string {
	seen := make(map[string]bool, len(header))
	out := make([]string, 0, len(header))
	for _, name := range header {
		name = strings.TrimSpace(name)
		if name == "" || name == timestampColumn || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// isMissingCell reports whether a raw cell should be treated as null.
func isMissingCell(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "na", "nan", "null", "n/a":
		return true
	}
	return false
}

// sortedKeys returns map keys in lexical order.
func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
