package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
source:
  kind: delimited-text
  locator: data/sales.csv
timestamp_column: date
target_column: demand
feature_columns: [price, promo]
columns:
  - name: date
  - name: demand
    type: numeric
  - name: price
    type: numeric
    min: 0
  - name: promo
    type: categorical
    nullable: true
    allowed_values: [none, flyer, online]
missing_value_strategy:
  price: linear-interpolate
  demand:
    strategy: constant
    value: 0
generate_temporal_features: true
features:
  - name: demand_lag_7
    kind: lag
    source: demand
    offset: 7
  - name: demand_roll_28_mean
    kind: rolling
    source: demand
    window: 28
    aggregation: mean
scaling:
  price: min-max
encoding:
  promo: one-hot
output_format: columnar-binary
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, SourceDelimitedText, cfg.Source.Kind)
	assert.Equal(t, "date", cfg.TimestampColumn)
	assert.Equal(t, "demand", cfg.TargetColumn)
	assert.Equal(t, []string{"price", "promo"}, cfg.FeatureColumns)
	assert.Equal(t, OutputColumnarBinary, cfg.OutputFormat)
	assert.True(t, cfg.GenerateTemporalFeatures)

	// Bare string and mapping forms of the strategy both decode.
	assert.Equal(t, StrategyLinearInterpolate, cfg.MissingValueStrategy["price"].Strategy)
	require.Equal(t, StrategyConstant, cfg.MissingValueStrategy["demand"].Strategy)
	require.NotNil(t, cfg.MissingValueStrategy["demand"].FillValue)
	assert.Equal(t, 0.0, *cfg.MissingValueStrategy["demand"].FillValue)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, ",", cfg.Source.Delimiter)
	assert.Equal(t, "2006-01-02", cfg.TimestampLayout)
	assert.Equal(t, "iqr", cfg.Outliers.DetectionMethod)
	assert.Equal(t, 1.5, cfg.Outliers.Threshold)
	assert.Equal(t, OutlierCap, cfg.Outliers.HandlingStrategy)
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.Backoff)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TSPREP_OUTPUT_FORMAT", "structured-records")
	t.Setenv("TSPREP_SOURCE_LOCATOR", "override.csv")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, OutputStructuredRecords, cfg.OutputFormat)
	assert.Equal(t, "override.csv", cfg.Source.Locator)
}

func TestParse_Invalid(t *testing.T) {
	t.Run("missing timestamp column", func(t *testing.T) {
		_, err := Parse([]byte("source:\n  kind: delimited-text\n  locator: a.csv\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validation failed")
	})

	t.Run("unknown source kind", func(t *testing.T) {
		_, err := Parse([]byte("source:\n  kind: carrier-pigeon\n  locator: a.csv\ntimestamp_column: date\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown source kind")
	})

	t.Run("unknown missing-value strategy", func(t *testing.T) {
		doc := "source:\n  kind: delimited-text\n  locator: a.csv\ntimestamp_column: date\nmissing_value_strategy:\n  price: hope-for-the-best\n"
		_, err := Parse([]byte(doc))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown missing-value strategy")
	})

	t.Run("constant without value", func(t *testing.T) {
		doc := "source:\n  kind: delimited-text\n  locator: a.csv\ntimestamp_column: date\nmissing_value_strategy:\n  price:\n    strategy: constant\n"
		_, err := Parse([]byte(doc))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "requires a value")
	})

	t.Run("lag without offset", func(t *testing.T) {
		doc := "source:\n  kind: delimited-text\n  locator: a.csv\ntimestamp_column: date\nfeatures:\n  - name: l1\n    kind: lag\n    source: demand\n"
		_, err := Parse([]byte(doc))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "positive offset")
	})

	t.Run("duplicate feature names", func(t *testing.T) {
		doc := "source:\n  kind: delimited-text\n  locator: a.csv\ntimestamp_column: date\nfeatures:\n  - name: l1\n    kind: lag\n    source: demand\n    offset: 1\n  - name: l1\n    kind: lag\n    source: demand\n    offset: 2\n"
		_, err := Parse([]byte(doc))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "declared twice")
	})

	t.Run("unknown scaling method", func(t *testing.T) {
		doc := "source:\n  kind: delimited-text\n  locator: a.csv\ntimestamp_column: date\nscaling:\n  price: log\n"
		_, err := Parse([]byte(doc))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown scaling method")
	})
}

func TestColumnSpecFor(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	spec, ok := cfg.ColumnSpecFor("promo")
	require.True(t, ok)
	assert.Equal(t, TypeCategorical, spec.Type)
	assert.True(t, spec.Nullable)

	_, ok = cfg.ColumnSpecFor("nonexistent")
	assert.False(t, ok)
}

func TestFingerprint_StableAndSensitive(t *testing.T) {
	a, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	b, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEmpty(t, a.Fingerprint())

	b.TargetColumn = "other"
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}
