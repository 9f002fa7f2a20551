// Package pipeline orchestrates one processing run through its fixed stage
// order: load, validate, clean, generate features, transform, persist. The
// run state only ever moves forward; any stage failure, or a validation
// report at ERROR, moves it to the terminal Aborted state with everything
// produced so far preserved on the result.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tsprep/internal/cleaner"
	"tsprep/internal/config"
	"tsprep/internal/dataset"
	pipeerrors "tsprep/internal/errors"
	"tsprep/internal/features"
	"tsprep/internal/loader"
	"tsprep/internal/persist"
	"tsprep/internal/transform"
	"tsprep/internal/validator"
)

// State is the lifecycle position of a pipeline run.
type State string

const (
	StatePending          State = "pending"
	StateLoaded           State = "loaded"
	StateValidated        State = "validated"
	StateCleaned          State = "cleaned"
	StateFeatureGenerated State = "feature_generated"
	StateTransformed      State = "transformed"
	StatePersisted        State = "persisted"
	StateAborted          State = "aborted"
)

// Result is the outcome of one run. On abort it carries everything produced
// before the failing stage, including the validation report when validation
// itself triggered the abort.
type Result struct {
	RunID        string            `json:"run_id"`
	State        State             `json:"state"`
	FailedStage  string            `json:"failed_stage,omitempty"`
	OutputPath   string            `json:"output_path,omitempty"`
	ManifestPath string            `json:"manifest_path,omitempty"`
	Rows         int               `json:"rows"`
	Dataset      *dataset.Dataset  `json:"-"`
	Features     []string          `json:"features,omitempty"`
	Report       *validator.Report `json:"report,omitempty"`
	Cleaning     *cleaner.Summary  `json:"cleaning,omitempty"`
	Params       transform.Params  `json:"params"`
	Duration     time.Duration     `json:"duration"`
	Err          error             `json:"-"`
}

// Pipeline wires the stage implementations for one configuration.
type Pipeline struct {
	cfg      *config.Config
	logger   *slog.Logger
	tracer   *Tracer
	loader   *loader.Loader
	cleaner  *cleaner.Cleaner
	registry *features.Registry
	persist  *persist.Persister
}

// New builds a pipeline from a validated configuration. The feature registry
// is seeded from the config; callers can add custom features through
// Registry before running.
func New(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tracer, err := NewTracer()
	if err != nil {
		return nil, fmt.Errorf("init pipeline tracer: %w", err)
	}
	registry, err := features.FromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build feature registry: %w", err)
	}
	return &Pipeline{
		cfg:      cfg,
		logger:   logger,
		tracer:   tracer,
		loader:   loader.New(cfg, logger),
		cleaner:  cleaner.New(cfg, logger),
		registry: registry,
		persist:  persist.New(cfg, logger),
	}, nil
}

// Registry exposes the run's feature registry for custom registrations.
func (p *Pipeline) Registry() *features.Registry {
	return p.registry
}

// Run executes the full stage sequence and persists the result to
// outputPath. The returned Result always describes the terminal state; the
// error is non-nil exactly when the run aborted.
func (p *Pipeline) Run(ctx context.Context, outputPath string) (*Result, error) {
	started := time.Now()
	res := &Result{
		RunID: uuid.New().String(),
		State: StatePending,
	}

	ctx, runSpan := p.tracer.StartRun(ctx, res.RunID, string(p.cfg.Source.Kind))
	defer func() {
		res.Duration = time.Since(started)
		p.tracer.EndRun(ctx, runSpan, res.State, res.Duration, res.Err)
	}()

	p.logger.InfoContext(ctx, "run started",
		"run_id", res.RunID,
		"source", p.cfg.Source.Locator,
		"output", outputPath,
	)

	ds, err := p.runStage(ctx, res, "load", StateLoaded, func(ctx context.Context) (*dataset.Dataset, error) {
		return p.loader.Read(ctx)
	})
	if err != nil {
		return p.abort(ctx, res, "load", err)
	}

	_, err = p.runStage(ctx, res, "validate", StateValidated, func(ctx context.Context) (*dataset.Dataset, error) {
		res.Report = validator.Validate(ds, p.cfg)
		p.logger.InfoContext(ctx, "dataset validated",
			"run_id", res.RunID,
			"status", string(res.Report.Status),
			"invalid_rows", res.Report.InvalidRows,
		)
		if res.Report.Status == validator.StatusError {
			return nil, pipeerrors.WithStage(
				fmt.Errorf("validation failed: %s", firstRecommendation(res.Report)), "validate")
		}
		return ds, nil
	})
	if err != nil {
		return p.abort(ctx, res, "validate", err)
	}

	ds, err = p.runStage(ctx, res, "clean", StateCleaned, func(ctx context.Context) (*dataset.Dataset, error) {
		out, summary, err := p.cleaner.Clean(ctx, ds)
		res.Cleaning = summary
		return out, err
	})
	if err != nil {
		return p.abort(ctx, res, "clean", err)
	}

	ds, err = p.runStage(ctx, res, "features", StateFeatureGenerated, func(ctx context.Context) (*dataset.Dataset, error) {
		out, generated, err := p.registry.Generate(ctx, ds)
		res.Features = generated
		return out, err
	})
	if err != nil {
		return p.abort(ctx, res, "features", err)
	}

	ds, err = p.runStage(ctx, res, "transform", StateTransformed, func(ctx context.Context) (*dataset.Dataset, error) {
		tr := transform.New(p.cfg, p.logger)
		if err := tr.Fit(ctx, ds); err != nil {
			return nil, err
		}
		out, err := tr.Apply(ctx, ds)
		if err != nil {
			return nil, err
		}
		res.Params = tr.Params()
		return out, nil
	})
	if err != nil {
		return p.abort(ctx, res, "transform", err)
	}

	_, err = p.runStage(ctx, res, "persist", StatePersisted, func(ctx context.Context) (*dataset.Dataset, error) {
		man := persist.NewManifest(res.RunID, p.cfg, ds, res.Features, res.Cleaning, res.Params, res.Report)
		if err := p.persist.Write(ctx, ds, outputPath, man); err != nil {
			return nil, err
		}
		res.OutputPath = outputPath
		res.ManifestPath = persist.ManifestPath(outputPath)
		return ds, nil
	})
	if err != nil {
		return p.abort(ctx, res, "persist", err)
	}

	res.Rows = ds.Rows()
	res.Dataset = ds
	p.logger.InfoContext(ctx, "run completed",
		"run_id", res.RunID,
		"state", string(res.State),
		"rows", res.Rows,
		"features", len(res.Features),
		"duration", time.Since(started),
	)
	return res, nil
}

// runStage executes one stage with a context check at the boundary, a span
// around the work and a state advance on success.
func (p *Pipeline) runStage(ctx context.Context, res *Result, stage string, next State,
	fn func(context.Context) (*dataset.Dataset, error)) (*dataset.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run cancelled before %s: %w", stage, err)
	}

	started := time.Now()
	ctx, span := p.tracer.StartStage(ctx, res.RunID, stage)

	ds, err := fn(ctx)
	p.tracer.EndStage(ctx, span, stage, time.Since(started), err)
	if err != nil {
		return nil, err
	}

	res.State = next
	return ds, nil
}

// abort moves the run to the terminal Aborted state, keeping everything the
// completed stages produced on the result.
func (p *Pipeline) abort(ctx context.Context, res *Result, stage string, err error) (*Result, error) {
	res.State = StateAborted
	res.FailedStage = stage
	res.Err = pipeerrors.WithStage(err, stage)

	p.logger.ErrorContext(ctx, "run aborted",
		"run_id", res.RunID,
		"stage", stage,
		"error", res.Err,
	)
	return res, res.Err
}

func firstRecommendation(report *validator.Report) string {
	if len(report.Recommendations) == 0 {
		return "dataset failed structural validation"
	}
	return report.Recommendations[0]
}
