package cleaner

import (
	"fmt"

	"tsprep/internal/config"
	"tsprep/internal/dataset"
	pipeerrors "tsprep/internal/errors"
)

// minQuartileSamples is the smallest number of observed values for which
// quartiles are considered meaningful.
const minQuartileSamples = 4

// handleOutliers applies the configured IQR policy to each configured
// column. Bounds are computed on the pre-treatment values and recorded in
// the summary for the manifest.
func (c *Cleaner) handleOutliers(ds *dataset.Dataset, summary *Summary) (*dataset.Dataset, error) {
	if len(c.cfg.Outliers.ApplyToColumns) == 0 {
		return ds, nil
	}

	// With the remove policy, a row outlying in any configured column goes;
	// the keep mask accumulates across columns on pre-treatment data.
	keep := make([]bool, ds.Rows())
	for i := range keep {
		keep[i] = true
	}
	removing := false

	for _, name := range c.cfg.Outliers.ApplyToColumns {
		col, ok := ds.Column(name)
		if !ok {
			return nil, pipeerrors.NewSchemaMismatch(stageName, name, "outlier handling configured for absent column")
		}
		if col.Kind != dataset.KindNumeric {
			return nil, pipeerrors.WithStage(fmt.Errorf("outlier handling requires a numeric column, %q is %s", name, col.Kind), stageName)
		}

		observed := col.NonNullFloats()
		if len(observed) < minQuartileSamples {
			return nil, pipeerrors.NewInsufficientData(stageName, name,
				fmt.Sprintf("%d observed values, need at least %d for quartiles", len(observed), minQuartileSamples))
		}

		q1 := percentile(observed, 25)
		q3 := percentile(observed, 75)
		iqr := q3 - q1
		bounds := Bounds{
			Lower: q1 - c.cfg.Outliers.Threshold*iqr,
			Upper: q3 + c.cfg.Outliers.Threshold*iqr,
		}
		summary.OutlierBounds[name] = bounds

		isOutlier := func(i int) bool {
			return col.Valid[i] && (col.Floats[i] < bounds.Lower || col.Floats[i] > bounds.Upper)
		}

		handled := 0
		switch c.cfg.Outliers.HandlingStrategy {
		case config.OutlierRemove:
			removing = true
			for i := 0; i < col.Len(); i++ {
				if isOutlier(i) {
					keep[i] = false
					handled++
				}
			}

		case config.OutlierCap:
			capped := col.Clone()
			for i := 0; i < col.Len(); i++ {
				if !isOutlier(i) {
					continue
				}
				if capped.Floats[i] < bounds.Lower {
					capped.Floats[i] = bounds.Lower
				} else {
					capped.Floats[i] = bounds.Upper
				}
				handled++
			}
			var err error
			if ds, err = ds.ReplaceColumn(capped); err != nil {
				return nil, pipeerrors.WithStage(err, stageName)
			}

		case config.OutlierInterpolate:
			// Outliers become missing, then the column's own strategy
			// repairs them. Config validation guarantees a strategy exists.
			masked := col.Clone()
			for i := 0; i < col.Len(); i++ {
				if isOutlier(i) {
					masked.Valid[i] = false
					handled++
				}
			}
			imp, err := newImputer(c.cfg.MissingValueStrategy[name])
			if err != nil {
				return nil, pipeerrors.WithStage(err, stageName)
			}
			repaired, _, err := imp.impute(masked)
			if err != nil {
				return nil, err
			}
			if ds, err = ds.ReplaceColumn(repaired); err != nil {
				return nil, pipeerrors.WithStage(err, stageName)
			}

		case config.OutlierFlag:
			flags := make([]float64, col.Len())
			for i := 0; i < col.Len(); i++ {
				if isOutlier(i) {
					flags[i] = 1
					handled++
				}
			}
			var err error
			if ds, err = ds.WithColumn(dataset.NewNumericColumn(name+"_is_outlier", dataset.RoleFeature, flags, nil)); err != nil {
				return nil, pipeerrors.WithStage(err, stageName)
			}
		}

		if handled > 0 {
			summary.OutliersHandled[name] = handled
		}
	}

	if removing {
		dropped := 0
		for _, k := range keep {
			if !k {
				dropped++
			}
		}
		if dropped > 0 {
			summary.RowsDropped += dropped
			ds = ds.DropRows(keep)
		}
	}
	return ds, nil
}
