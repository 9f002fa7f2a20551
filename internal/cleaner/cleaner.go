// Package cleaner resolves missing values and outliers per the configured
// per-column strategies. Order-dependent repairs (fills, interpolation) run
// along timestamp order, statistics are computed over the column prior to
// any repair, and row drops happen exactly once per run.
package cleaner

import (
	"context"
	"log/slog"
	"sort"

	"tsprep/internal/config"
	"tsprep/internal/dataset"
	pipeerrors "tsprep/internal/errors"
)

const stageName = "clean"

// Bounds are the pre-treatment IQR bounds used for a column.
type Bounds struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Summary records every corrective substitution the cleaner made so the
// manifest can expose them.
type Summary struct {
	DuplicatesDropped int               `json:"duplicates_dropped"`
	RowsDropped       int               `json:"rows_dropped"`
	ImputedCounts     map[string]int    `json:"imputed_counts"`
	OutlierBounds     map[string]Bounds `json:"outlier_bounds"`
	OutliersHandled   map[string]int    `json:"outliers_handled"`
}

// Cleaner applies the configured cleaning strategies to a dataset.
type Cleaner struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a cleaner for the given pipeline configuration.
func New(cfg *config.Config, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{cfg: cfg, logger: logger}
}

// Clean returns a new dataset with timestamps sorted and deduplicated,
// missing values repaired, and outliers handled. The input dataset is not
// modified.
func (c *Cleaner) Clean(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, *Summary, error) {
	summary := &Summary{
		ImputedCounts:   make(map[string]int),
		OutlierBounds:   make(map[string]Bounds),
		OutliersHandled: make(map[string]int),
	}

	out, err := ds.SortByTimestamp()
	if err != nil {
		return nil, nil, pipeerrors.WithStage(err, stageName)
	}
	out, summary.DuplicatesDropped = dropDuplicateTimestamps(out)

	// Per-column repairs first; drop-row afterwards so rows fixable by other
	// strategies are not discarded.
	for _, name := range sortedStrategyColumns(c.cfg.MissingValueStrategy) {
		spec := c.cfg.MissingValueStrategy[name]
		if spec.Strategy == config.StrategyDropRow {
			continue
		}
		col, ok := out.Column(name)
		if !ok {
			return nil, nil, pipeerrors.NewSchemaMismatch(stageName, name, "strategy configured for absent column")
		}
		if col.NullCount() == 0 {
			continue
		}

		imp, err := newImputer(spec)
		if err != nil {
			return nil, nil, pipeerrors.WithStage(err, stageName)
		}
		repaired, filled, err := imp.impute(col)
		if err != nil {
			return nil, nil, pipeerrors.WithStage(err, stageName)
		}
		if out, err = out.ReplaceColumn(repaired); err != nil {
			return nil, nil, pipeerrors.WithStage(err, stageName)
		}
		summary.ImputedCounts[name] += filled
	}

	out, dropped, err := c.applyDropRow(out)
	if err != nil {
		return nil, nil, err
	}
	summary.RowsDropped += dropped

	out, err = c.handleOutliers(out, summary)
	if err != nil {
		return nil, nil, err
	}

	c.logger.InfoContext(ctx, "dataset cleaned",
		"duplicates_dropped", summary.DuplicatesDropped,
		"rows_dropped", summary.RowsDropped,
		"columns_imputed", len(summary.ImputedCounts),
		"dataset", out.Summary(),
	)
	return out, summary, nil
}

// applyDropRow removes rows that are still null in any column configured
// with the drop-row strategy. Applied once, after all other repairs.
func (c *Cleaner) applyDropRow(ds *dataset.Dataset) (*dataset.Dataset, int, error) {
	keep := make([]bool, ds.Rows())
	for i := range keep {
		keep[i] = true
	}
	any := false
	for _, name := range sortedStrategyColumns(c.cfg.MissingValueStrategy) {
		if c.cfg.MissingValueStrategy[name].Strategy != config.StrategyDropRow {
			continue
		}
		col, ok := ds.Column(name)
		if !ok {
			return nil, 0, pipeerrors.NewSchemaMismatch(stageName, name, "strategy configured for absent column")
		}
		any = true
		for i := range keep {
			if col.IsNull(i) {
				keep[i] = false
			}
		}
	}
	if !any {
		return ds, 0, nil
	}

	dropped := 0
	for _, k := range keep {
		if !k {
			dropped++
		}
	}
	if dropped == 0 {
		return ds, 0, nil
	}
	return ds.DropRows(keep), dropped, nil
}

// dropDuplicateTimestamps keeps the first row of each duplicate timestamp
// group. The dataset is already sorted.
func dropDuplicateTimestamps(ds *dataset.Dataset) (*dataset.Dataset, int) {
	ts, ok := ds.Timestamp()
	if !ok || ds.Rows() == 0 {
		return ds, 0
	}
	keep := make([]bool, ds.Rows())
	keep[0] = true
	dropped := 0
	for i := 1; i < ds.Rows(); i++ {
		if ts.Times[i].Equal(ts.Times[i-1]) {
			dropped++
			continue
		}
		keep[i] = true
	}
	if dropped == 0 {
		return ds, 0
	}
	return ds.DropRows(keep), dropped
}

// sortedStrategyColumns returns strategy map keys in lexical order so the
// cleaning pass is deterministic.
func sortedStrategyColumns(m map[string]config.StrategySpec) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
