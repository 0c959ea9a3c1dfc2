package ports

import (
	"io"

	"immunetrial/domain/trial"
)

// DatasetReader parses one tabular input into a validated trial snapshot.
// Implementations normalize field values and enforce subject-level
// consistency before the snapshot is built; a parse returns row-scoped
// errors alongside the dataset only when every surviving row is coherent.
type DatasetReader interface {
	// Read consumes the entire input and returns the validated snapshot.
	// Row-level problems that exclude individual rows are returned in the
	// warning list; structural problems fail the whole read.
	Read(r io.Reader) (*trial.Dataset, []error, error)
}
