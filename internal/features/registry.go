// Package features holds the per-run feature registry and the derived
// feature computations. All lag and rolling features are leakage-safe: the
// value at row i is a function of rows at or before i only. Generation order
// equals registration order so output is reproducible.
package features

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tsprep/internal/config"
	"tsprep/internal/dataset"
	pipeerrors "tsprep/internal/errors"
)

const stageName = "features"

// KindCustom marks a programmatically registered feature backed by a
// caller-supplied function. Custom features cannot come from a config file.
const KindCustom config.FeatureKind = "custom"

// CustomFunc derives one column from a dataset. Implementations must
// preserve row count and must not read rows after the current timestamp;
// the row-count half is enforced, the look-ahead half is contractual.
type CustomFunc func(*dataset.Dataset) (*dataset.Column, error)

// Definition describes one registered feature.
type Definition struct {
	Name        string             `json:"name"`
	Kind        config.FeatureKind `json:"kind"`
	Source      string             `json:"source,omitempty"`
	Offset      int                `json:"offset,omitempty"`
	Window      int                `json:"window,omitempty"`
	Aggregation config.Aggregation `json:"aggregation,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	Fn          CustomFunc         `json:"-"`
}

// Registry maps feature names to definitions for one run. Registration is
// additive only; a shared registry is safe for concurrent Register calls,
// and Generate is read-only.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]Definition
	order []string
}

// NewRegistry creates an empty per-run registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// FromConfig builds a registry from the configured feature list, appending
// a calendar definition when temporal features are switched on.
func FromConfig(cfg *config.Config) (*Registry, error) {
	r := NewRegistry()
	for _, spec := range cfg.Features {
		def := Definition{
			Name:        spec.Name,
			Kind:        spec.Kind,
			Source:      spec.Source,
			Offset:      spec.Offset,
			Window:      spec.Window,
			Aggregation: spec.Aggregation,
		}
		if err := r.Register(def); err != nil {
			return nil, err
		}
	}
	if cfg.GenerateTemporalFeatures {
		if err := r.Register(Definition{Name: "calendar", Kind: config.FeatureCalendar}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a definition under a unique name. A duplicate name fails
// with a DuplicateFeature error and leaves the registry unchanged.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("feature name cannot be empty")
	}
	if err := validateDefinition(def); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.Name]; exists {
		return pipeerrors.NewDuplicateFeature(def.Name)
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}
	r.defs[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

func validateDefinition(def Definition) error {
	switch def.Kind {
	case config.FeatureLag:
		if def.Source == "" || def.Offset <= 0 {
			return fmt.Errorf("lag feature %q requires a source column and a positive offset", def.Name)
		}
	case config.FeatureRolling:
		if def.Source == "" || def.Window <= 0 {
			return fmt.Errorf("rolling feature %q requires a source column and a positive window", def.Name)
		}
		switch def.Aggregation {
		case config.AggMean, config.AggStd, config.AggMin, config.AggMax, config.AggMedian:
		default:
			return fmt.Errorf("rolling feature %q: unknown aggregation %q", def.Name, def.Aggregation)
		}
	case config.FeatureCalendar:
	case KindCustom:
		if def.Fn == nil {
			return fmt.Errorf("custom feature %q requires a function", def.Name)
		}
	default:
		return fmt.Errorf("feature %q: unknown kind %q", def.Name, def.Kind)
	}
	return nil
}

// Definitions returns the registered definitions in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

// Count returns the number of registered definitions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// Generate computes every registered feature against the dataset, in
// registration order, and returns a new dataset with the derived columns
// appended plus the ordered list of generated column names.
func (r *Registry) Generate(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, []string, error) {
	logger := slog.Default()

	out := ds
	var generated []string
	for _, def := range r.Definitions() {
		cols, err := r.compute(def, out)
		if err != nil {
			return nil, nil, pipeerrors.WithStage(err, stageName)
		}
		for _, col := range cols {
			var werr error
			if out, werr = out.WithColumn(col); werr != nil {
				return nil, nil, pipeerrors.WithStage(werr, stageName)
			}
			generated = append(generated, col.Name)
		}
	}

	logger.InfoContext(ctx, "features generated",
		"count", len(generated),
		"dataset", out.Summary(),
	)
	return out, generated, nil
}

func (r *Registry) compute(def Definition, ds *dataset.Dataset) ([]*dataset.Column, error) {
	switch def.Kind {
	case config.FeatureLag:
		col, err := lagColumn(ds, def)
		if err != nil {
			return nil, err
		}
		return []*dataset.Column{col}, nil
	case config.FeatureRolling:
		col, err := rollingColumn(ds, def)
		if err != nil {
			return nil, err
		}
		return []*dataset.Column{col}, nil
	case config.FeatureCalendar:
		ts, ok := ds.Timestamp()
		if !ok {
			return nil, pipeerrors.NewSchemaMismatch(stageName, "", "dataset has no timestamp column")
		}
		return CalendarColumns(ts), nil
	case KindCustom:
		col, err := def.Fn(ds)
		if err != nil {
			return nil, fmt.Errorf("custom feature %q: %w", def.Name, err)
		}
		if col.Len() != ds.Rows() {
			return nil, fmt.Errorf("custom feature %q changed row count: got %d, want %d", def.Name, col.Len(), ds.Rows())
		}
		return []*dataset.Column{col}, nil
	default:
		return nil, fmt.Errorf("feature %q: unknown kind %q", def.Name, def.Kind)
	}
}
