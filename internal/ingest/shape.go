package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"islanding_simulator/internal/model"
)

// ParseShape reads a per-minute multiplier table.
//
// Expected format, one row per minute of the day in any order:
//
//	minute,multiplier
//	0,0.42
//	1,0.41
func ParseShape(r io.Reader) (model.Shape, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.Comment = '#'

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if err := validateHeader(header, "minute", "multiplier"); err != nil {
		return nil, err
	}

	shape := make(model.Shape, model.StepsPerDay)
	seen := make([]bool, model.StepsPerDay)
	lineNum := 1

	for {
		lineNum++
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrFormat, lineNum, err)
		}

		minute, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil || minute < 0 || minute >= model.StepsPerDay {
			return nil, fmt.Errorf("%w: line %d: minute %q out of range [0, %d)",
				ErrFormat, lineNum, record[0], model.StepsPerDay)
		}
		if seen[minute] {
			return nil, fmt.Errorf("%w: line %d: duplicate minute %d", ErrFormat, lineNum, minute)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: parsing multiplier %q: %v", ErrFormat, lineNum, record[1], err)
		}
		shape[minute] = v
		seen[minute] = true
	}

	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("%w: minute %d missing", ErrFormat, i)
		}
	}
	if err := shape.Validate(model.StepsPerDay); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return shape, nil
}

// LoadShapeFile parses the shape table at path.
func LoadShapeFile(path string) (model.Shape, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	shape, err := ParseShape(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return shape, nil
}

// WriteShape writes s in the format ParseShape reads.
func WriteShape(w io.Writer, s model.Shape) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"minute", "multiplier"}); err != nil {
		return err
	}
	for i, v := range s {
		if err := cw.Write([]string{strconv.Itoa(i), strconv.FormatFloat(v, 'g', -1, 64)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// LoadReadingsFile parses a Home Assistant export at path.
func LoadReadingsFile(path string, p Parser) ([]model.Reading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	readings, err := p.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return readings, nil
}
