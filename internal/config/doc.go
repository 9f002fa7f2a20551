// Package config defines the immutable pipeline configuration. A config is
// loaded once per run from a YAML document (JSON is accepted as a YAML
// subset), overridden from the environment, and validated at construction.
// Strategy strings are decoded into closed enum types here so an unknown
// strategy is a load-time error, never a mid-run surprise.
package config
