// Package ingest reads external CSV data: per-minute multiplier tables and
// Home Assistant sensor exports used to derive PV shapes.
package ingest

import (
	"errors"
	"io"

	"islanding_simulator/internal/model"
)

var (
	// ErrHeader is wrapped when a CSV header does not match the expected columns.
	ErrHeader = errors.New("unexpected csv header")
	// ErrFormat is wrapped when a data row cannot be used.
	ErrFormat = errors.New("malformed csv row")
)

// Parser reads sensor data from a source and returns readings.
type Parser interface {
	Parse(r io.Reader) ([]model.Reading, error)
}
