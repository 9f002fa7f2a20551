// Package dataset defines the canonical in-memory tabular value that flows
// through the preprocessing pipeline. A Dataset is an ordered collection of
// typed columns with explicit null masks; stages never mutate a Dataset in
// place, they derive a new one.
package dataset
