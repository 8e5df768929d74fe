// Package importer defines the radar composite decoder contract and a
// registry of named importer implementations. Binary archive formats
// (PGM, ODIM HDF5, NetCDF) are decoded by external tooling; the bundled
// "json" importer reads the plain frame files used for synthetic
// archives, development, and tests.
package importer

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/meteoworks/radarbias/internal/domain"
)

// Metadata carries the georeferencing read from a composite file. The
// Extent is zero-valued when the file has no georeferencing.
type Metadata struct {
	Projection string
	Extent     domain.GridExtent
	Unit       string
}

// Func decodes one composite file into a 2-D rain-rate field (mm/h)
// plus metadata. It fails when the file is unreadable or the expected
// quantity is absent.
type Func func(path string) (*mat.Dense, Metadata, error)

var registry = map[string]Func{
	"json": ImportJSONFrame,
}

// Get returns the importer registered under the given name. Unknown
// names are a configuration error so that a bad profile fails before
// any archive I/O.
func Get(name string) (Func, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: importer %q not implemented", domain.ErrConfiguration, name)
	}
	return f, nil
}

// Register adds an importer under a name, replacing any previous
// registration. External decoder bindings hook in through this.
func Register(name string, f Func) {
	registry[name] = f
}
