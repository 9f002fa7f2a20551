package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"tsprep/internal/config"
)

// Job pairs one input source with its output path for a batch run.
type Job struct {
	Source config.SourceConfig
	Output string
}

// RunBatch processes several sources under one configuration shape,
// bounded to concurrency parallel runs. Jobs are independent: one aborted
// run does not stop the others. The results slice is indexed like jobs, and
// the returned error joins every per-job failure.
func RunBatch(ctx context.Context, cfg *config.Config, jobs []Job, concurrency int, logger *slog.Logger) ([]*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]*Result, len(jobs))
	errs := make([]error, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			jobCfg := *cfg
			jobCfg.Source = job.Source

			p, err := New(&jobCfg, logger)
			if err != nil {
				errs[i] = fmt.Errorf("job %d: %w", i, err)
				return nil
			}

			res, err := p.Run(gctx, job.Output)
			results[i] = res
			if err != nil {
				errs[i] = fmt.Errorf("job %d (%s): %w", i, job.Source.Locator, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, errors.Join(errs...)
}
