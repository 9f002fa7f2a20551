// Package persist writes the processed dataset and its run manifest to disk.
// Every write goes to a temp file first and is renamed into place, so a
// failed run never leaves a half-written output behind. IO failures are
// retried with bounded backoff, mirroring the loader.
package persist

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tsprep/internal/config"
	"tsprep/internal/dataset"
	pipeerrors "tsprep/internal/errors"
)

const stageName = "persist"

// manifestSuffix is appended to the output path to name the sidecar manifest.
const manifestSuffix = ".manifest.json"

// Persister writes datasets in the configured output format.
type Persister struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a persister for the given pipeline configuration.
func New(cfg *config.Config, logger *slog.Logger) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persister{cfg: cfg, logger: logger}
}

// ManifestPath returns the sidecar manifest path for an output path.
func ManifestPath(outputPath string) string {
	return outputPath + manifestSuffix
}

// Write persists the dataset to path in the configured format and writes the
// manifest alongside it. IO failures are retried up to the configured attempt
// count.
func (p *Persister) Write(ctx context.Context, ds *dataset.Dataset, path string, man *Manifest) error {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.Retry.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("persist cancelled: %w", err)
		}

		err := p.writeOnce(ds, path, man)
		if err == nil {
			p.logger.InfoContext(ctx, "dataset persisted",
				"format", string(p.cfg.OutputFormat),
				"path", path,
				"manifest", ManifestPath(path),
				"dataset", ds.Summary(),
			)
			return nil
		}
		lastErr = err

		if !pipeerrors.IsRetryable(err) {
			return err
		}
		p.logger.WarnContext(ctx, "persist failed, retrying",
			"attempt", attempt,
			"max_attempts", p.cfg.Retry.Attempts,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("persist cancelled: %w", ctx.Err())
		case <-time.After(p.cfg.Retry.Backoff * time.Duration(attempt)):
		}
	}
	return lastErr
}

func (p *Persister) writeOnce(ds *dataset.Dataset, path string, man *Manifest) error {
	var write func(*dataset.Dataset, *os.File) error
	switch p.cfg.OutputFormat {
	case config.OutputDelimitedText:
		write = p.writeDelimited
	case config.OutputStructuredRecords:
		write = p.writeRecords
	case config.OutputColumnarBinary:
		write = writeColumnar
	default:
		return pipeerrors.NewSourceFormat(stageName, fmt.Sprintf("unsupported output format %q", p.cfg.OutputFormat), nil)
	}

	if err := atomicWrite(path, func(f *os.File) error { return write(ds, f) }); err != nil {
		return err
	}
	return writeManifest(ManifestPath(path), man)
}

func writeColumnar(ds *dataset.Dataset, f *os.File) error {
	if err := ds.EncodeBinary(f); err != nil {
		return pipeerrors.NewIO(stageName, "encode columnar output", err)
	}
	return nil
}

// atomicWrite writes through a temp file in the target directory and renames
// it over path on success.
func atomicWrite(path string, fill func(*os.File) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return pipeerrors.NewIO(stageName, "create temp output", err)
	}
	defer os.Remove(tmp.Name())

	if err := fill(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return pipeerrors.NewIO(stageName, "close temp output", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return pipeerrors.NewIO(stageName, "move output into place", err)
	}
	return nil
}
