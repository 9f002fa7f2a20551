package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// SourceKind identifies the physical format of an input source.
type SourceKind string

const (
	SourceDelimitedText     SourceKind = "delimited-text"
	SourceSpreadsheet       SourceKind = "spreadsheet"
	SourceStructuredRecords SourceKind = "structured-records"
	SourceColumnarBinary    SourceKind = "columnar-binary"
)

// OutputFormat identifies the persisted dataset format.
type OutputFormat string

const (
	OutputDelimitedText     OutputFormat = "delimited-text"
	OutputStructuredRecords OutputFormat = "structured-records"
	OutputColumnarBinary    OutputFormat = "columnar-binary"
)

// ColumnType is the declared type of a column.
type ColumnType string

const (
	TypeNumeric     ColumnType = "numeric"
	TypeCategorical ColumnType = "categorical"
)

// MissingStrategy enumerates the missing-value repair strategies.
type MissingStrategy string

const (
	StrategyDropRow           MissingStrategy = "drop-row"
	StrategyForwardFill       MissingStrategy = "forward-fill"
	StrategyBackwardFill      MissingStrategy = "backward-fill"
	StrategyLinearInterpolate MissingStrategy = "linear-interpolate"
	StrategyMean              MissingStrategy = "mean"
	StrategyMedian            MissingStrategy = "median"
	StrategyMode              MissingStrategy = "mode"
	StrategyConstant          MissingStrategy = "constant"
)

var missingStrategies = map[MissingStrategy]bool{
	StrategyDropRow:           true,
	StrategyForwardFill:       true,
	StrategyBackwardFill:      true,
	StrategyLinearInterpolate: true,
	StrategyMean:              true,
	StrategyMedian:            true,
	StrategyMode:              true,
	StrategyConstant:          true,
}

// OutlierHandling enumerates the outlier handling policies.
type OutlierHandling string

const (
	OutlierRemove      OutlierHandling = "remove"
	OutlierCap         OutlierHandling = "cap"
	OutlierInterpolate OutlierHandling = "interpolate"
	OutlierFlag        OutlierHandling = "flag"
)

// FeatureKind enumerates the derived feature kinds.
type FeatureKind string

const (
	FeatureLag      FeatureKind = "lag"
	FeatureRolling  FeatureKind = "rolling"
	FeatureCalendar FeatureKind = "calendar"
)

// Aggregation enumerates rolling-window aggregation functions.
type Aggregation string

const (
	AggMean   Aggregation = "mean"
	AggStd    Aggregation = "std"
	AggMin    Aggregation = "min"
	AggMax    Aggregation = "max"
	AggMedian Aggregation = "median"
)

// ScalingMethod enumerates numeric scaling methods.
type ScalingMethod string

const (
	ScaleMinMax   ScalingMethod = "min-max"
	ScaleStandard ScalingMethod = "standard"
)

// EncodingMethod enumerates categorical encoding methods.
type EncodingMethod string

const (
	EncodeOneHot EncodingMethod = "one-hot"
	EncodeLabel  EncodingMethod = "label"
)

// SourceConfig describes where and how to read the raw dataset.
type SourceConfig struct {
	Kind      SourceKind `yaml:"kind" envconfig:"SOURCE_KIND" validate:"required"`
	Locator   string     `yaml:"locator" envconfig:"SOURCE_LOCATOR" validate:"required"`
	Delimiter string     `yaml:"delimiter" envconfig:"SOURCE_DELIMITER"`
	Sheet     string     `yaml:"sheet" envconfig:"SOURCE_SHEET"`
}

// ColumnSpec declares a column's type, nullability and validation rules.
type ColumnSpec struct {
	Name          string     `yaml:"name" validate:"required"`
	Type          ColumnType `yaml:"type"`
	Nullable      bool       `yaml:"nullable"`
	Min           *float64   `yaml:"min,omitempty"`
	Max           *float64   `yaml:"max,omitempty"`
	AllowedValues []string   `yaml:"allowed_values,omitempty"`
}

// StrategySpec binds a missing-value strategy to one column. FillValue and
// FillText supply the constant for StrategyConstant on numeric and
// categorical columns respectively.
type StrategySpec struct {
	Strategy  MissingStrategy `yaml:"strategy"`
	FillValue *float64        `yaml:"value,omitempty"`
	FillText  *string         `yaml:"text,omitempty"`
}

// UnmarshalYAML accepts either a bare strategy string or the full mapping
// form with a constant value.
func (s *StrategySpec) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var name string
	if err := unmarshal(&name); err == nil {
		s.Strategy = MissingStrategy(name)
		return nil
	}
	type plain StrategySpec
	var p plain
	if err := unmarshal(&p); err != nil {
		return err
	}
	*s = StrategySpec(p)
	return nil
}

// OutlierConfig configures outlier detection and handling.
type OutlierConfig struct {
	DetectionMethod  string          `yaml:"detection_method"`
	Threshold        float64         `yaml:"threshold"`
	HandlingStrategy OutlierHandling `yaml:"handling_strategy"`
	ApplyToColumns   []string        `yaml:"apply_to_columns"`
}

// FeatureSpec declares one derived feature.
type FeatureSpec struct {
	Name        string      `yaml:"name" validate:"required"`
	Kind        FeatureKind `yaml:"kind" validate:"required"`
	Source      string      `yaml:"source"`
	Offset      int         `yaml:"offset,omitempty"`
	Window      int         `yaml:"window,omitempty"`
	Aggregation Aggregation `yaml:"aggregation,omitempty"`
}

// RetryConfig bounds IO retries in the loader and persister.
type RetryConfig struct {
	Attempts int           `yaml:"attempts" envconfig:"RETRY_ATTEMPTS"`
	Backoff  time.Duration `yaml:"backoff" envconfig:"RETRY_BACKOFF"`
}

// Config is the immutable pipeline configuration for one run.
type Config struct {
	Source                   SourceConfig               `yaml:"source"`
	TimestampColumn          string                     `yaml:"timestamp_column" envconfig:"TIMESTAMP_COLUMN" validate:"required"`
	TimestampLayout          string                     `yaml:"timestamp_layout" envconfig:"TIMESTAMP_LAYOUT"`
	TargetColumn             string                     `yaml:"target_column" envconfig:"TARGET_COLUMN"`
	FeatureColumns           []string                   `yaml:"feature_columns"`
	Columns                  []ColumnSpec               `yaml:"columns" validate:"dive"`
	MissingValueStrategy     map[string]StrategySpec    `yaml:"missing_value_strategy"`
	Outliers                 OutlierConfig              `yaml:"outlier_config"`
	GenerateTemporalFeatures bool                       `yaml:"generate_temporal_features" envconfig:"GENERATE_TEMPORAL_FEATURES"`
	Features                 []FeatureSpec              `yaml:"features" validate:"dive"`
	Scaling                  map[string]ScalingMethod   `yaml:"scaling"`
	Encoding                 map[string]EncodingMethod  `yaml:"encoding"`
	OutputFormat             OutputFormat               `yaml:"output_format" envconfig:"OUTPUT_FORMAT"`
	DuplicateTolerance       int                        `yaml:"duplicate_timestamp_tolerance"`
	Retry                    RetryConfig                `yaml:"retry"`
}

// Load reads a configuration document, applies TSPREP_* environment
// overrides, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a validated Config from a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := envconfig.Process("TSPREP", &cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Source.Delimiter == "" {
		c.Source.Delimiter = ","
	}
	if c.TimestampLayout == "" {
		c.TimestampLayout = "2006-01-02"
	}
	if c.Outliers.DetectionMethod == "" {
		c.Outliers.DetectionMethod = "iqr"
	}
	if c.Outliers.Threshold == 0 {
		c.Outliers.Threshold = 1.5
	}
	if c.Outliers.HandlingStrategy == "" {
		c.Outliers.HandlingStrategy = OutlierCap
	}
	if c.OutputFormat == "" {
		c.OutputFormat = OutputDelimitedText
	}
	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = 3
	}
	if c.Retry.Backoff == 0 {
		c.Retry.Backoff = 500 * time.Millisecond
	}
}

// Validate checks struct tags plus the cross-field rules the tags cannot
// express. All enum membership is checked here so later stages can switch
// exhaustively.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	switch c.Source.Kind {
	case SourceDelimitedText, SourceSpreadsheet, SourceStructuredRecords, SourceColumnarBinary:
	default:
		return fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}

	switch c.OutputFormat {
	case OutputDelimitedText, OutputStructuredRecords, OutputColumnarBinary:
	default:
		return fmt.Errorf("unknown output format %q", c.OutputFormat)
	}

	if c.Outliers.DetectionMethod != "iqr" {
		return fmt.Errorf("unknown outlier detection method %q", c.Outliers.DetectionMethod)
	}
	if c.Outliers.Threshold <= 0 {
		return fmt.Errorf("outlier threshold must be positive, got %v", c.Outliers.Threshold)
	}
	switch c.Outliers.HandlingStrategy {
	case OutlierRemove, OutlierCap, OutlierInterpolate, OutlierFlag:
	default:
		return fmt.Errorf("unknown outlier handling strategy %q", c.Outliers.HandlingStrategy)
	}

	if c.Outliers.HandlingStrategy == OutlierInterpolate {
		for _, column := range c.Outliers.ApplyToColumns {
			if _, ok := c.MissingValueStrategy[column]; !ok {
				return fmt.Errorf("column %q: interpolate outlier handling requires a missing-value strategy", column)
			}
		}
	}

	for column, spec := range c.MissingValueStrategy {
		if !missingStrategies[spec.Strategy] {
			return fmt.Errorf("column %q: unknown missing-value strategy %q", column, spec.Strategy)
		}
		if spec.Strategy == StrategyConstant && spec.FillValue == nil && spec.FillText == nil {
			return fmt.Errorf("column %q: constant strategy requires a value or text", column)
		}
	}

	seen := make(map[string]bool, len(c.Features))
	for _, f := range c.Features {
		if seen[f.Name] {
			return fmt.Errorf("feature %q declared twice", f.Name)
		}
		seen[f.Name] = true

		switch f.Kind {
		case FeatureLag:
			if f.Source == "" || f.Offset <= 0 {
				return fmt.Errorf("lag feature %q requires a source column and a positive offset", f.Name)
			}
		case FeatureRolling:
			if f.Source == "" || f.Window <= 0 {
				return fmt.Errorf("rolling feature %q requires a source column and a positive window", f.Name)
			}
			switch f.Aggregation {
			case AggMean, AggStd, AggMin, AggMax, AggMedian:
			default:
				return fmt.Errorf("rolling feature %q: unknown aggregation %q", f.Name, f.Aggregation)
			}
		case FeatureCalendar:
		default:
			return fmt.Errorf("feature %q: unknown kind %q", f.Name, f.Kind)
		}
	}

	for column, method := range c.Scaling {
		if method != ScaleMinMax && method != ScaleStandard {
			return fmt.Errorf("column %q: unknown scaling method %q", column, method)
		}
	}
	for column, method := range c.Encoding {
		if method != EncodeOneHot && method != EncodeLabel {
			return fmt.Errorf("column %q: unknown encoding method %q", column, method)
		}
	}

	return nil
}

// ColumnSpecFor returns the declared spec for a column name.
func (c *Config) ColumnSpecFor(name string) (ColumnSpec, bool) {
	for _, spec := range c.Columns {
		if spec.Name == name {
			return spec, true
		}
	}
	return ColumnSpec{}, false
}

// Fingerprint returns a stable hash of the configuration, used to correlate
// validation reports and manifests produced under the same config shape.
func (c *Config) Fingerprint() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
