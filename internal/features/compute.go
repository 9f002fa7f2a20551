package features

import (
	"fmt"
	"math"
	"sort"

	"tsprep/internal/config"
	"tsprep/internal/dataset"
	pipeerrors "tsprep/internal/errors"
)

// lagColumn shifts the source column forward by the offset. The first
// offset rows are null; no row ever sees a later value.
func lagColumn(ds *dataset.Dataset, def Definition) (*dataset.Column, error) {
	src, ok := ds.Column(def.Source)
	if !ok {
		return nil, pipeerrors.NewSchemaMismatch(stageName, def.Source, fmt.Sprintf("lag feature %q references absent column", def.Name))
	}

	n := src.Len()
	valid := make([]bool, n)
	out := &dataset.Column{Name: def.Name, Role: dataset.RoleFeature, Kind: src.Kind, Valid: valid}

	switch src.Kind {
	case dataset.KindNumeric:
		out.Floats = make([]float64, n)
		for i := def.Offset; i < n; i++ {
			if src.Valid[i-def.Offset] {
				out.Floats[i] = src.Floats[i-def.Offset]
				valid[i] = true
			}
		}
	case dataset.KindCategorical:
		out.Strings = make([]string, n)
		for i := def.Offset; i < n; i++ {
			if src.Valid[i-def.Offset] {
				out.Strings[i] = src.Strings[i-def.Offset]
				valid[i] = true
			}
		}
	default:
		return nil, fmt.Errorf("lag feature %q: source column kind %s not supported", def.Name, src.Kind)
	}
	return out, nil
}

// rollingColumn aggregates a trailing window of size def.Window ending at
// the current row inclusive. Rows before the window is full are null, as is
// any window containing a null.
func rollingColumn(ds *dataset.Dataset, def Definition) (*dataset.Column, error) {
	src, ok := ds.Column(def.Source)
	if !ok {
		return nil, pipeerrors.NewSchemaMismatch(stageName, def.Source, fmt.Sprintf("rolling feature %q references absent column", def.Name))
	}
	if src.Kind != dataset.KindNumeric {
		return nil, fmt.Errorf("rolling feature %q requires a numeric source, %q is %s", def.Name, def.Source, src.Kind)
	}

	n := src.Len()
	floats := make([]float64, n)
	valid := make([]bool, n)
	window := make([]float64, 0, def.Window)

	for i := def.Window - 1; i < n; i++ {
		window = window[:0]
		complete := true
		for j := i - def.Window + 1; j <= i; j++ {
			if !src.Valid[j] {
				complete = false
				break
			}
			window = append(window, src.Floats[j])
		}
		if !complete {
			continue
		}
		floats[i] = aggregate(window, def.Aggregation)
		valid[i] = true
	}

	return dataset.NewNumericColumn(def.Name, dataset.RoleFeature, floats, valid), nil
}

func aggregate(window []float64, agg config.Aggregation) float64 {
	switch agg {
	case config.AggMean:
		return windowMean(window)
	case config.AggStd:
		m := windowMean(window)
		sum := 0.0
		for _, v := range window {
			d := v - m
			sum += d * d
		}
		return math.Sqrt(sum / float64(len(window)))
	case config.AggMin:
		min := window[0]
		for _, v := range window[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case config.AggMax:
		max := window[0]
		for _, v := range window[1:] {
			if v > max {
				max = v
			}
		}
		return max
	case config.AggMedian:
		sorted := append([]float64(nil), window...)
		sort.Float64s(sorted)
		n := len(sorted)
		if n%2 == 1 {
			return sorted[n/2]
		}
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return math.NaN()
}

func windowMean(window []float64) float64 {
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	return sum / float64(len(window))
}
