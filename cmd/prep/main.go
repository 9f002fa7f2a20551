// Command prep runs the full processing pipeline for one source: load,
// validate, clean, generate features, transform and persist, leaving the
// processed dataset and its manifest at the output path.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tsprep/internal/config"
	"tsprep/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "", "path to the pipeline configuration file (required)")
	source := flag.String("source", "", "override the configured source locator")
	kind := flag.String("kind", "", "override the configured source kind")
	output := flag.String("out", "", "output path for the processed dataset (required)")
	format := flag.String("format", "", "override the configured output format")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *configPath == "" || *output == "" {
		logger.Error("both -config and -out are required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	if *source != "" {
		cfg.Source.Locator = *source
	}
	if *kind != "" {
		cfg.Source.Kind = config.SourceKind(*kind)
	}
	if *format != "" {
		cfg.OutputFormat = config.OutputFormat(*format)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration rejected", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.New(cfg, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	res, err := p.Run(ctx, *output)
	if err != nil {
		logger.Error("run aborted",
			"run_id", res.RunID,
			"stage", res.FailedStage,
			"error", err,
		)
		os.Exit(1)
	}

	logger.Info("run finished",
		"run_id", res.RunID,
		"state", string(res.State),
		"rows", res.Rows,
		"output", res.OutputPath,
		"manifest", res.ManifestPath,
		"duration", res.Duration,
	)
}
