package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tsprep/internal/config"
	"tsprep/internal/dataset"
	pipeerrors "tsprep/internal/errors"
	"tsprep/internal/features"
	"tsprep/internal/persist"
	"tsprep/internal/validator"
)

const sampleCSV = `date,demand,region
2024-01-01,10,north
2024-01-02,,north
2024-01-03,14,south
2024-01-04,16,south
2024-01-05,18,north
`

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig(t *testing.T, sourcePath string, extra string) *config.Config {
	t.Helper()
	doc := fmt.Sprintf(`
source:
  kind: delimited-text
  locator: %s
timestamp_column: date
target_column: demand
missing_value_strategy:
  demand: linear-interpolate
features:
  - name: demand_lag_1
    kind: lag
    source: demand
    offset: 1
scaling:
  demand: min-max
output_format: delimited-text
retry:
  attempts: 1
%s`, sourcePath, extra)

	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)
	return cfg
}

func TestRun_FullPipeline(t *testing.T) {
	source := writeSource(t, sampleCSV)
	cfg := testConfig(t, source, "")
	output := filepath.Join(t.TempDir(), "out.csv")

	p, err := New(cfg, nil)
	require.NoError(t, err)

	res, err := p.Run(context.Background(), output)
	require.NoError(t, err)

	assert.Equal(t, StatePersisted, res.State)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 5, res.Rows)
	assert.Equal(t, []string{"demand_lag_1"}, res.Features)
	assert.Equal(t, output, res.OutputPath)
	require.NotNil(t, res.Report)
	assert.NotEqual(t, validator.StatusError, res.Report.Status)
	require.NotNil(t, res.Cleaning)
	assert.Equal(t, 1, res.Cleaning.ImputedCounts["demand"])

	man, err := persist.ReadManifest(res.ManifestPath)
	require.NoError(t, err)
	assert.Equal(t, res.RunID, man.RunID)
	assert.Equal(t, cfg.Fingerprint(), man.ConfigFingerprint)
	assert.Equal(t, []string{"demand_lag_1"}, man.GeneratedFeatures)
	assert.Equal(t, 10.0, man.TransformerParams.Scalers["demand"].Min)
	assert.Equal(t, 18.0, man.TransformerParams.Scalers["demand"].Max)

	_, err = os.Stat(output)
	assert.NoError(t, err)
}

func TestRun_Deterministic(t *testing.T) {
	source := writeSource(t, sampleCSV)
	cfg := testConfig(t, source, "")
	outDir := t.TempDir()

	first := filepath.Join(outDir, "first.csv")
	second := filepath.Join(outDir, "second.csv")

	for _, output := range []string{first, second} {
		p, err := New(cfg, nil)
		require.NoError(t, err)
		res, err := p.Run(context.Background(), output)
		require.NoError(t, err)
		require.NotNil(t, res.Dataset)
		assert.Equal(t, res.Rows, res.Dataset.Rows())
	}

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRun_AbortsOnValidationError(t *testing.T) {
	source := writeSource(t, sampleCSV)
	cfg := testConfig(t, source, `columns:
  - name: pressure
    type: numeric
`)
	output := filepath.Join(t.TempDir(), "out.csv")

	p, err := New(cfg, nil)
	require.NoError(t, err)

	res, err := p.Run(context.Background(), output)
	require.Error(t, err)

	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, "validate", res.FailedStage)

	// The report produced before the abort is preserved.
	require.NotNil(t, res.Report)
	assert.Equal(t, validator.StatusError, res.Report.Status)

	// Nothing was persisted.
	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_AbortsOnMissingSource(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "absent.csv"), "")

	p, err := New(cfg, nil)
	require.NoError(t, err)

	res, err := p.Run(context.Background(), filepath.Join(t.TempDir(), "out.csv"))
	require.Error(t, err)

	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, "load", res.FailedStage)
	assert.Equal(t, pipeerrors.KindIO, pipeerrors.KindOf(err))
}

func TestRun_AbortsOnDegenerateScaling(t *testing.T) {
	source := writeSource(t, `date,demand
2024-01-01,5
2024-01-02,5
2024-01-03,5
`)
	cfg := testConfig(t, source, "")
	cfg.MissingValueStrategy = nil
	cfg.Features = nil

	p, err := New(cfg, nil)
	require.NoError(t, err)

	res, err := p.Run(context.Background(), filepath.Join(t.TempDir(), "out.csv"))
	require.Error(t, err)

	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, "transform", res.FailedStage)
	assert.Equal(t, pipeerrors.KindDegenerateColumn, pipeerrors.KindOf(err))
}

func TestRun_CancelledContext(t *testing.T) {
	source := writeSource(t, sampleCSV)
	cfg := testConfig(t, source, "")

	p, err := New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Run(ctx, filepath.Join(t.TempDir(), "out.csv"))
	require.Error(t, err)
	assert.Equal(t, StateAborted, res.State)
}

func TestRun_CustomFeature(t *testing.T) {
	source := writeSource(t, sampleCSV)
	cfg := testConfig(t, source, "")
	output := filepath.Join(t.TempDir(), "out.csv")

	p, err := New(cfg, nil)
	require.NoError(t, err)

	require.NoError(t, p.Registry().Register(features.Definition{
		Name: "demand_half",
		Kind: features.KindCustom,
		Fn: func(d *dataset.Dataset) (*dataset.Column, error) {
			src, _ := d.Column("demand")
			halved := make([]float64, src.Len())
			for i, v := range src.Floats {
				halved[i] = v / 2
			}
			return dataset.NewNumericColumn("demand_half", dataset.RoleFeature, halved, append([]bool(nil), src.Valid...)), nil
		},
	}))

	res, err := p.Run(context.Background(), output)
	require.NoError(t, err)
	assert.Equal(t, []string{"demand_lag_1", "demand_half"}, res.Features)
}

func TestRunBatch(t *testing.T) {
	good := writeSource(t, sampleCSV)
	cfg := testConfig(t, good, "")
	outDir := t.TempDir()

	jobs := []Job{
		{
			Source: config.SourceConfig{Kind: config.SourceDelimitedText, Locator: good, Delimiter: ","},
			Output: filepath.Join(outDir, "good.csv"),
		},
		{
			Source: config.SourceConfig{Kind: config.SourceDelimitedText, Locator: filepath.Join(outDir, "absent.csv"), Delimiter: ","},
			Output: filepath.Join(outDir, "bad.csv"),
		},
	}

	results, err := RunBatch(context.Background(), cfg, jobs, 2, nil)
	require.Error(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, StatePersisted, results[0].State)
	assert.Equal(t, StateAborted, results[1].State)
	assert.Contains(t, err.Error(), "job 1")

	_, statErr := os.Stat(jobs[0].Output)
	assert.NoError(t, statErr)
}
