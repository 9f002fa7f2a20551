package persist

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"

	"tsprep/internal/cleaner"
	"tsprep/internal/config"
	"tsprep/internal/dataset"
	pipeerrors "tsprep/internal/errors"
	"tsprep/internal/transform"
	"tsprep/internal/validator"
)

// Manifest is the sidecar record written next to every persisted dataset.
// It carries enough provenance to reproduce the run: the configuration
// fingerprint, every corrective action the cleaner took, the generated
// feature list and the fitted transformer parameters.
type Manifest struct {
	RunID             string              `json:"run_id"`
	CreatedAt         time.Time           `json:"created_at"`
	ConfigFingerprint string              `json:"config_fingerprint"`
	SourceKind        config.SourceKind   `json:"source_kind"`
	SourceLocator     string              `json:"source_locator"`
	OutputFormat      config.OutputFormat `json:"output_format"`
	Rows              int                 `json:"rows"`
	Columns           []string            `json:"columns"`
	GeneratedFeatures []string            `json:"generated_features,omitempty"`
	Cleaning          *cleaner.Summary    `json:"cleaning,omitempty"`
	TransformerParams transform.Params    `json:"transformer_params"`
	Validation        *validator.Report   `json:"validation,omitempty"`
}

// NewManifest assembles the manifest for one completed run. An empty runID
// gets a fresh UUID.
func NewManifest(runID string, cfg *config.Config, ds *dataset.Dataset, features []string,
	cleaning *cleaner.Summary, params transform.Params, report *validator.Report) *Manifest {
	if runID == "" {
		runID = uuid.New().String()
	}
	return &Manifest{
		RunID:             runID,
		CreatedAt:         time.Now().UTC(),
		ConfigFingerprint: cfg.Fingerprint(),
		SourceKind:        cfg.Source.Kind,
		SourceLocator:     cfg.Source.Locator,
		OutputFormat:      cfg.OutputFormat,
		Rows:              ds.Rows(),
		Columns:           ds.ColumnNames(),
		GeneratedFeatures: features,
		Cleaning:          cleaning,
		TransformerParams: params,
		Validation:        report,
	}
}

func writeManifest(path string, man *Manifest) error {
	return atomicWrite(path, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(man); err != nil {
			return pipeerrors.NewIO(stageName, "encode manifest", err)
		}
		return nil
	})
}

// ReadManifest loads a previously written manifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pipeerrors.NewIO(stageName, "read manifest", err)
	}
	var man Manifest
	if err := json.Unmarshal(data, &man); err != nil {
		return nil, pipeerrors.NewSourceFormat(stageName, "parse manifest", err)
	}
	return &man, nil
}
