// Package validator checks the structural and statistical integrity of a
// loaded dataset and produces a machine-readable report. The validator never
// mutates the dataset; quality findings are accumulated for the caller to
// judge, and only structural failures force an abort.
package validator

import (
	"fmt"
	"time"

	"tsprep/internal/config"
	"tsprep/internal/dataset"
)

// Status is the overall verdict of a validation pass.
type Status string

const (
	StatusOK      Status = "OK"
	StatusWarning Status = "WARNING"
	StatusError   Status = "ERROR"
)

// rank orders statuses so elevate never downgrades.
func (s Status) rank() int {
	switch s {
	case StatusError:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// Report is the validation outcome for one dataset. Its schema is stable
// across runs for the same configuration shape so drift monitors can compare
// reports over time.
type Report struct {
	GeneratedAt         time.Time      `json:"generated_at"`
	ConfigFingerprint   string         `json:"config_fingerprint"`
	TotalRows           int            `json:"total_rows"`
	ValidRows           int            `json:"valid_rows"`
	InvalidRows         int            `json:"invalid_rows"`
	MissingCounts       map[string]int `json:"missing_counts"`
	OutOfRangeCounts    map[string]int `json:"out_of_range_counts"`
	DuplicateTimestamps int            `json:"duplicate_timestamps"`
	Status              Status         `json:"status"`
	Recommendations     []string       `json:"recommendations"`
}

func (r *Report) elevate(s Status) {
	if s.rank() > r.Status.rank() {
		r.Status = s
	}
}

func (r *Report) recommend(format string, args ...interface{}) {
	r.Recommendations = append(r.Recommendations, fmt.Sprintf(format, args...))
}

// Validate runs the schema, timestamp, range and completeness checks in
// order and returns the aggregated report.
func Validate(ds *dataset.Dataset, cfg *config.Config) *Report {
	report := &Report{
		GeneratedAt:       time.Now().UTC(),
		ConfigFingerprint: cfg.Fingerprint(),
		TotalRows:         ds.Rows(),
		MissingCounts:     make(map[string]int),
		OutOfRangeCounts:  make(map[string]int),
		Status:            StatusOK,
	}

	rowInvalid := make([]bool, ds.Rows())

	checkSchema(ds, cfg, report)
	checkTimestamps(ds, cfg, report)
	checkRanges(ds, cfg, report, rowInvalid)
	checkCompleteness(ds, cfg, report, rowInvalid)

	for _, invalid := range rowInvalid {
		if invalid {
			report.InvalidRows++
		}
	}
	report.ValidRows = report.TotalRows - report.InvalidRows

	return report
}

// checkSchema verifies every declared column exists with its declared type.
// Schema failures are structural and force ERROR.
func checkSchema(ds *dataset.Dataset, cfg *config.Config, report *Report) {
	for _, spec := range cfg.Columns {
		col, ok := ds.Column(spec.Name)
		if !ok {
			report.elevate(StatusError)
			report.recommend("declared column %q is absent from the dataset", spec.Name)
			continue
		}
		if spec.Name == cfg.TimestampColumn {
			if col.Kind != dataset.KindTime {
				report.elevate(StatusError)
				report.recommend("timestamp column %q did not parse as time", spec.Name)
			}
			continue
		}
		switch spec.Type {
		case config.TypeNumeric:
			if col.Kind != dataset.KindNumeric {
				report.elevate(StatusError)
				report.recommend("column %q declared numeric but loaded as %s", spec.Name, col.Kind)
			}
		case config.TypeCategorical:
			if col.Kind != dataset.KindCategorical {
				report.elevate(StatusError)
				report.recommend("column %q declared categorical but loaded as %s", spec.Name, col.Kind)
			}
		}
	}

	if _, ok := ds.Column(cfg.TimestampColumn); !ok {
		report.elevate(StatusError)
		report.recommend("timestamp column %q is absent from the dataset", cfg.TimestampColumn)
	}
	if cfg.TargetColumn != "" {
		if _, ok := ds.Column(cfg.TargetColumn); !ok {
			report.elevate(StatusError)
			report.recommend("target column %q is absent from the dataset", cfg.TargetColumn)
		}
	}
}

// checkTimestamps rejects out-of-order timestamps and counts duplicates.
// Duplicates only force ERROR past the configured tolerance.
func checkTimestamps(ds *dataset.Dataset, cfg *config.Config, report *Report) {
	ts, ok := ds.Timestamp()
	if !ok {
		return // already reported by the schema check
	}

	outOfOrder := false
	for i := 1; i < len(ts.Times); i++ {
		switch {
		case ts.Times[i].Before(ts.Times[i-1]):
			outOfOrder = true
		case ts.Times[i].Equal(ts.Times[i-1]):
			report.DuplicateTimestamps++
		}
	}

	if outOfOrder {
		report.elevate(StatusError)
		report.recommend("timestamp column %q is not sorted ascending", ts.Name)
	}
	if report.DuplicateTimestamps > 0 {
		if cfg.DuplicateTolerance > 0 && report.DuplicateTimestamps > cfg.DuplicateTolerance {
			report.elevate(StatusError)
		} else {
			report.elevate(StatusWarning)
		}
		report.recommend("timestamp column %q has %d duplicate values; duplicates are dropped during cleaning",
			ts.Name, report.DuplicateTimestamps)
	}
}

// checkRanges counts values outside declared [min, max] bounds or outside
// the allowed value set.
func checkRanges(ds *dataset.Dataset, cfg *config.Config, report *Report, rowInvalid []bool) {
	for _, spec := range cfg.Columns {
		col, ok := ds.Column(spec.Name)
		if !ok {
			continue
		}

		count := 0
		switch col.Kind {
		case dataset.KindNumeric:
			if spec.Min == nil && spec.Max == nil {
				continue
			}
			for i, v := range col.Floats {
				if col.IsNull(i) {
					continue
				}
				if (spec.Min != nil && v < *spec.Min) || (spec.Max != nil && v > *spec.Max) {
					count++
					rowInvalid[i] = true
				}
			}
		case dataset.KindCategorical:
			if len(spec.AllowedValues) == 0 {
				continue
			}
			allowed := make(map[string]bool, len(spec.AllowedValues))
			for _, v := range spec.AllowedValues {
				allowed[v] = true
			}
			for i, v := range col.Strings {
				if col.IsNull(i) {
					continue
				}
				if !allowed[v] {
					count++
					rowInvalid[i] = true
				}
			}
		}

		if count > 0 {
			report.OutOfRangeCounts[spec.Name] = count
			report.elevate(StatusWarning)
			report.recommend("column %q has %d out-of-range values; consider tightening the source or widening the bounds",
				spec.Name, count)
		}
	}
}

// checkCompleteness counts nulls per column and elevates to WARNING when a
// non-nullable column has any.
func checkCompleteness(ds *dataset.Dataset, cfg *config.Config, report *Report, rowInvalid []bool) {
	for _, col := range ds.Columns() {
		if col.Role == dataset.RoleTimestamp {
			continue
		}
		nulls := col.NullCount()
		if nulls == 0 {
			continue
		}
		report.MissingCounts[col.Name] = nulls

		spec, declared := cfg.ColumnSpecFor(col.Name)
		if declared && spec.Nullable {
			continue
		}
		for i := range rowInvalid {
			if col.IsNull(i) {
				rowInvalid[i] = true
			}
		}
		report.elevate(StatusWarning)
		report.recommend("column %q has %d missing values; consider imputation", col.Name, nulls)
	}
}
