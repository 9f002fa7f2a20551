package cleaner

import (
	"fmt"

	"tsprep/internal/config"
	"tsprep/internal/dataset"
	pipeerrors "tsprep/internal/errors"
)

// imputer repairs missing values in one column. Implementations return the
// repaired column and the number of values filled; the input column is never
// modified.
type imputer interface {
	impute(col *dataset.Column) (*dataset.Column, int, error)
}

// newImputer resolves a strategy spec into its implementation. Unknown
// strategies are a construction-time error; drop-row is handled by the
// cleaner itself and has no imputer.
func newImputer(spec config.StrategySpec) (imputer, error) {
	switch spec.Strategy {
	case config.StrategyForwardFill:
		return fillImputer{backward: false}, nil
	case config.StrategyBackwardFill:
		return fillImputer{backward: true}, nil
	case config.StrategyLinearInterpolate:
		return interpolateImputer{}, nil
	case config.StrategyMean:
		return statImputer{stat: mean, name: "mean"}, nil
	case config.StrategyMedian:
		return statImputer{stat: median, name: "median"}, nil
	case config.StrategyMode:
		return modeImputer{}, nil
	case config.StrategyConstant:
		return constantImputer{value: spec.FillValue, text: spec.FillText}, nil
	default:
		return nil, fmt.Errorf("no imputer for strategy %q", spec.Strategy)
	}
}

// fillImputer carries the nearest earlier (or later) observed value along
// timestamp order. Nulls before the first (or after the last) observation
// remain null.
type fillImputer struct {
	backward bool
}

func (f fillImputer) impute(col *dataset.Column) (*dataset.Column, int, error) {
	if col.NullCount() == col.Len() {
		return nil, 0, pipeerrors.NewInsufficientData(stageName, col.Name, "column has no observed values to fill from")
	}
	out := col.Clone()
	filled := 0

	if f.backward {
		for i := col.Len() - 2; i >= 0; i-- {
			if out.IsNull(i) && out.Valid[i+1] {
				copyValue(out, i, i+1)
				filled++
			}
		}
	} else {
		for i := 1; i < col.Len(); i++ {
			if out.IsNull(i) && out.Valid[i-1] {
				copyValue(out, i, i-1)
				filled++
			}
		}
	}
	return out, filled, nil
}

func copyValue(col *dataset.Column, dst, src int) {
	switch col.Kind {
	case dataset.KindNumeric:
		col.Floats[dst] = col.Floats[src]
	case dataset.KindCategorical:
		col.Strings[dst] = col.Strings[src]
	}
	col.Valid[dst] = true
}

// interpolateImputer fills gaps with the linear midpoint path between the
// nearest observed neighbors in timestamp order. Leading and trailing nulls
// have only one neighbor and remain null.
type interpolateImputer struct{}

func (interpolateImputer) impute(col *dataset.Column) (*dataset.Column, int, error) {
	if col.Kind != dataset.KindNumeric {
		return nil, 0, fmt.Errorf("linear-interpolate requires a numeric column, %q is %s", col.Name, col.Kind)
	}
	if len(col.NonNullFloats()) < 2 {
		return nil, 0, pipeerrors.NewInsufficientData(stageName, col.Name, "linear interpolation needs at least two observed values")
	}

	out := col.Clone()
	filled := 0
	prev := -1
	for i := 0; i < col.Len(); i++ {
		if !col.Valid[i] {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			step := (col.Floats[i] - col.Floats[prev]) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				out.Floats[j] = col.Floats[prev] + step*float64(j-prev)
				out.Valid[j] = true
				filled++
			}
		}
		prev = i
	}
	return out, filled, nil
}

// statImputer fills nulls with a statistic computed over the observed values
// prior to any repair.
type statImputer struct {
	stat func([]float64) float64
	name string
}

func (s statImputer) impute(col *dataset.Column) (*dataset.Column, int, error) {
	if col.Kind != dataset.KindNumeric {
		return nil, 0, fmt.Errorf("%s imputation requires a numeric column, %q is %s", s.name, col.Name, col.Kind)
	}
	observed := col.NonNullFloats()
	if len(observed) == 0 {
		return nil, 0, pipeerrors.NewInsufficientData(stageName, col.Name, "column has no observed values")
	}
	value := s.stat(observed)

	out := col.Clone()
	filled := 0
	for i := range out.Valid {
		if !out.Valid[i] {
			out.Floats[i] = value
			out.Valid[i] = true
			filled++
		}
	}
	return out, filled, nil
}

// modeImputer fills nulls with the most frequent observed value. Works for
// both numeric and categorical columns.
type modeImputer struct{}

func (modeImputer) impute(col *dataset.Column) (*dataset.Column, int, error) {
	out := col.Clone()
	filled := 0

	switch col.Kind {
	case dataset.KindNumeric:
		observed := col.NonNullFloats()
		if len(observed) == 0 {
			return nil, 0, pipeerrors.NewInsufficientData(stageName, col.Name, "column has no observed values")
		}
		value := mode(observed)
		for i := range out.Valid {
			if !out.Valid[i] {
				out.Floats[i] = value
				out.Valid[i] = true
				filled++
			}
		}
	case dataset.KindCategorical:
		var observed []string
		for i, v := range col.Strings {
			if col.Valid[i] {
				observed = append(observed, v)
			}
		}
		if len(observed) == 0 {
			return nil, 0, pipeerrors.NewInsufficientData(stageName, col.Name, "column has no observed values")
		}
		value := modeString(observed)
		for i := range out.Valid {
			if !out.Valid[i] {
				out.Strings[i] = value
				out.Valid[i] = true
				filled++
			}
		}
	default:
		return nil, 0, fmt.Errorf("mode imputation not supported for column kind %s", col.Kind)
	}
	return out, filled, nil
}

// constantImputer fills nulls with a configured constant.
type constantImputer struct {
	value *float64
	text  *string
}

func (c constantImputer) impute(col *dataset.Column) (*dataset.Column, int, error) {
	out := col.Clone()
	filled := 0

	switch col.Kind {
	case dataset.KindNumeric:
		if c.value == nil {
			return nil, 0, fmt.Errorf("constant strategy for numeric column %q has no value", col.Name)
		}
		for i := range out.Valid {
			if !out.Valid[i] {
				out.Floats[i] = *c.value
				out.Valid[i] = true
				filled++
			}
		}
	case dataset.KindCategorical:
		if c.text == nil {
			return nil, 0, fmt.Errorf("constant strategy for categorical column %q has no text", col.Name)
		}
		for i := range out.Valid {
			if !out.Valid[i] {
				out.Strings[i] = *c.text
				out.Valid[i] = true
				filled++
			}
		}
	default:
		return nil, 0, fmt.Errorf("constant imputation not supported for column kind %s", col.Kind)
	}
	return out, filled, nil
}
