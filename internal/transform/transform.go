// Package transform scales numeric columns and encodes categorical columns
// using parameters learned once during Fit. Apply never re-derives statistics,
// so the same fitted transformer maps any dataset the same way.
package transform

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"tsprep/internal/config"
	"tsprep/internal/dataset"
	pipeerrors "tsprep/internal/errors"
)

const stageName = "transform"

// unknownSuffix names the overflow indicator column appended by one-hot
// encoding for categories never seen during Fit.
const unknownSuffix = "_unknown"

// ScalerParams holds the statistics learned for one scaled column.
type ScalerParams struct {
	Method config.ScalingMethod `json:"method"`
	Min    float64              `json:"min,omitempty"`
	Max    float64              `json:"max,omitempty"`
	Mean   float64              `json:"mean,omitempty"`
	Std    float64              `json:"std,omitempty"`
}

// EncoderParams holds the vocabulary learned for one encoded column.
// Categories keeps first-seen order so label codes and one-hot column order
// are reproducible.
type EncoderParams struct {
	Method     config.EncodingMethod `json:"method"`
	Categories []string              `json:"categories"`
}

// Params is the full fitted state of a transformer, serialized into the run
// manifest so a persisted dataset can be traced back to its parameters.
type Params struct {
	Scalers  map[string]ScalerParams  `json:"scalers,omitempty"`
	Encoders map[string]EncoderParams `json:"encoders,omitempty"`
}

// Transformer applies fitted scaling and encoding parameters to datasets.
type Transformer struct {
	cfg    *config.Config
	logger *slog.Logger

	fitted bool
	params Params
}

// New creates an unfitted transformer for the configured scaling and
// encoding assignments.
func New(cfg *config.Config, logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{cfg: cfg, logger: logger}
}

// Params returns the fitted parameters. Only meaningful after Fit.
func (t *Transformer) Params() Params {
	return t.params
}

// Fit learns scaling statistics and encoding vocabularies from ds. Fitting
// fails on an absent or mistyped column and on degenerate statistics (zero
// range for min-max, zero standard deviation for standard scaling).
func (t *Transformer) Fit(ctx context.Context, ds *dataset.Dataset) error {
	params := Params{}

	if len(t.cfg.Scaling) > 0 {
		params.Scalers = make(map[string]ScalerParams, len(t.cfg.Scaling))
		for _, name := range sortedKeys(t.cfg.Scaling) {
			sp, err := fitScaler(ds, name, t.cfg.Scaling[name])
			if err != nil {
				return pipeerrors.WithStage(err, stageName)
			}
			params.Scalers[name] = sp
		}
	}

	if len(t.cfg.Encoding) > 0 {
		params.Encoders = make(map[string]EncoderParams, len(t.cfg.Encoding))
		for _, name := range sortedKeys(t.cfg.Encoding) {
			ep, err := fitEncoder(ds, name, t.cfg.Encoding[name])
			if err != nil {
				return pipeerrors.WithStage(err, stageName)
			}
			params.Encoders[name] = ep
		}
	}

	t.params = params
	t.fitted = true

	t.logger.InfoContext(ctx, "transformer fitted",
		"scaled_columns", len(params.Scalers),
		"encoded_columns", len(params.Encoders),
	)
	return nil
}

func fitScaler(ds *dataset.Dataset, name string, method config.ScalingMethod) (ScalerParams, error) {
	col, ok := ds.Column(name)
	if !ok {
		return ScalerParams{}, pipeerrors.NewSchemaMismatch(stageName, name, "scaling references absent column")
	}
	if col.Kind != dataset.KindNumeric {
		return ScalerParams{}, pipeerrors.NewSchemaMismatch(stageName, name, fmt.Sprintf("scaling requires a numeric column, got %s", col.Kind))
	}

	values := col.NonNullFloats()
	if len(values) == 0 {
		return ScalerParams{}, pipeerrors.NewInsufficientData(stageName, name, "no values to fit scaler on")
	}

	sp := ScalerParams{Method: method}
	switch method {
	case config.ScaleMinMax:
		sp.Min, sp.Max = values[0], values[0]
		for _, v := range values[1:] {
			if v < sp.Min {
				sp.Min = v
			}
			if v > sp.Max {
				sp.Max = v
			}
		}
		if sp.Max == sp.Min {
			return ScalerParams{}, pipeerrors.NewDegenerateColumn(stageName, name, "min-max scaling on a constant column")
		}
	case config.ScaleStandard:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		sp.Mean = sum / float64(len(values))
		sq := 0.0
		for _, v := range values {
			d := v - sp.Mean
			sq += d * d
		}
		sp.Std = math.Sqrt(sq / float64(len(values)))
		if sp.Std == 0 {
			return ScalerParams{}, pipeerrors.NewDegenerateColumn(stageName, name, "standard scaling on a zero-variance column")
		}
	default:
		return ScalerParams{}, fmt.Errorf("column %q: unknown scaling method %q", name, method)
	}
	return sp, nil
}

func fitEncoder(ds *dataset.Dataset, name string, method config.EncodingMethod) (EncoderParams, error) {
	col, ok := ds.Column(name)
	if !ok {
		return EncoderParams{}, pipeerrors.NewSchemaMismatch(stageName, name, "encoding references absent column")
	}
	if col.Kind != dataset.KindCategorical {
		return EncoderParams{}, pipeerrors.NewSchemaMismatch(stageName, name, fmt.Sprintf("encoding requires a categorical column, got %s", col.Kind))
	}

	seen := make(map[string]bool)
	var categories []string
	for i, v := range col.Strings {
		if !col.Valid[i] || seen[v] {
			continue
		}
		seen[v] = true
		categories = append(categories, v)
	}
	if len(categories) == 0 {
		return EncoderParams{}, pipeerrors.NewInsufficientData(stageName, name, "no values to fit encoder on")
	}
	return EncoderParams{Method: method, Categories: categories}, nil
}

// Apply maps ds through the fitted parameters and returns a new dataset.
// Scaled columns keep their position; encoded columns are replaced in place,
// one-hot expanding into one indicator column per fitted category plus an
// unknown bucket. Null cells stay null.
func (t *Transformer) Apply(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
	if !t.fitted {
		return nil, fmt.Errorf("transformer has not been fitted")
	}

	var cols []*dataset.Column
	for _, col := range ds.Columns() {
		if sp, ok := t.params.Scalers[col.Name]; ok {
			scaled, err := scaleColumn(col, sp)
			if err != nil {
				return nil, pipeerrors.WithStage(err, stageName)
			}
			cols = append(cols, scaled)
			continue
		}
		if ep, ok := t.params.Encoders[col.Name]; ok {
			encoded, err := encodeColumn(col, ep)
			if err != nil {
				return nil, pipeerrors.WithStage(err, stageName)
			}
			cols = append(cols, encoded...)
			continue
		}
		cols = append(cols, col)
	}

	out, err := dataset.New(cols...)
	if err != nil {
		return nil, pipeerrors.WithStage(err, stageName)
	}

	t.logger.InfoContext(ctx, "transform applied", "dataset", out.Summary())
	return out, nil
}

func scaleColumn(col *dataset.Column, sp ScalerParams) (*dataset.Column, error) {
	if col.Kind != dataset.KindNumeric {
		return nil, pipeerrors.NewSchemaMismatch(stageName, col.Name, fmt.Sprintf("scaling requires a numeric column, got %s", col.Kind))
	}

	out := col.Clone()
	for i, v := range out.Floats {
		if !out.Valid[i] {
			continue
		}
		switch sp.Method {
		case config.ScaleMinMax:
			out.Floats[i] = (v - sp.Min) / (sp.Max - sp.Min)
		case config.ScaleStandard:
			out.Floats[i] = (v - sp.Mean) / sp.Std
		}
	}
	return out, nil
}

func encodeColumn(col *dataset.Column, ep EncoderParams) ([]*dataset.Column, error) {
	if col.Kind != dataset.KindCategorical {
		return nil, pipeerrors.NewSchemaMismatch(stageName, col.Name, fmt.Sprintf("encoding requires a categorical column, got %s", col.Kind))
	}

	switch ep.Method {
	case config.EncodeLabel:
		return []*dataset.Column{labelEncode(col, ep)}, nil
	case config.EncodeOneHot:
		return oneHotEncode(col, ep), nil
	}
	return nil, fmt.Errorf("column %q: unknown encoding method %q", col.Name, ep.Method)
}

// labelEncode maps each category to its index in the fitted vocabulary.
// Categories never seen during Fit map to -1.
func labelEncode(col *dataset.Column, ep EncoderParams) *dataset.Column {
	codes := make(map[string]int, len(ep.Categories))
	for i, c := range ep.Categories {
		codes[c] = i
	}

	n := col.Len()
	floats := make([]float64, n)
	valid := make([]bool, n)
	for i, v := range col.Strings {
		if !col.Valid[i] {
			continue
		}
		valid[i] = true
		if code, ok := codes[v]; ok {
			floats[i] = float64(code)
		} else {
			floats[i] = -1
		}
	}
	return dataset.NewNumericColumn(col.Name, col.Role, floats, valid)
}

// oneHotEncode expands the column into one 0/1 indicator per fitted category
// plus an unknown bucket. A null source cell is null across every indicator.
func oneHotEncode(col *dataset.Column, ep EncoderParams) []*dataset.Column {
	n := col.Len()
	index := make(map[string]int, len(ep.Categories))
	for i, c := range ep.Categories {
		index[c] = i
	}

	indicators := make([][]float64, len(ep.Categories)+1)
	for i := range indicators {
		indicators[i] = make([]float64, n)
	}
	valid := make([]bool, n)
	for i, v := range col.Strings {
		if !col.Valid[i] {
			continue
		}
		valid[i] = true
		if j, ok := index[v]; ok {
			indicators[j][i] = 1
		} else {
			indicators[len(ep.Categories)][i] = 1
		}
	}

	out := make([]*dataset.Column, 0, len(indicators))
	for i, c := range ep.Categories {
		name := fmt.Sprintf("%s_%s", col.Name, c)
		out = append(out, dataset.NewNumericColumn(name, col.Role, indicators[i], append([]bool(nil), valid...)))
	}
	out = append(out, dataset.NewNumericColumn(col.Name+unknownSuffix, col.Role, indicators[len(ep.Categories)], append([]bool(nil), valid...)))
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
