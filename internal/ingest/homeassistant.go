package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"islanding_simulator/internal/model"
)

// HomeAssistantParser parses Home Assistant history CSV exports.
//
// Expected format:
//
//	entity_id,state,last_changed
//	sensor.pv_power,759.59,2024-06-21T13:00:00.000Z
type HomeAssistantParser struct {
	// SensorType to assign to parsed readings.
	SensorType model.SensorType
	// Unit for the sensor values (e.g. "W" for power).
	Unit string
	// Entity keeps only rows of this entity when set.
	Entity string

	// Skipped counts rows dropped by the last Parse ("unavailable" states,
	// bad timestamps, other entities).
	Skipped int
}

func NewHomeAssistantParser(sensorType model.SensorType, unit string) *HomeAssistantParser {
	return &HomeAssistantParser{
		SensorType: sensorType,
		Unit:       unit,
	}
}

func (p *HomeAssistantParser) Parse(r io.Reader) ([]model.Reading, error) {
	cr := csv.NewReader(r)
	p.Skipped = 0

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if err := validateHeader(header, "entity_id", "state", "last_changed"); err != nil {
		return nil, err
	}

	var readings []model.Reading
	lineNum := 1 // header was line 1

	for {
		lineNum++
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", lineNum, err)
		}

		reading, err := p.parseRecord(record, lineNum)
		if err != nil {
			p.Skipped++
			continue
		}
		if p.Entity != "" && reading.SensorID != p.Entity {
			p.Skipped++
			continue
		}
		readings = append(readings, reading)
	}

	return readings, nil
}

func validateHeader(header []string, expected ...string) error {
	if len(header) < len(expected) {
		return fmt.Errorf("%w: expected at least %d columns, got %d", ErrHeader, len(expected), len(header))
	}
	for i, col := range expected {
		if strings.TrimSpace(header[i]) != col {
			return fmt.Errorf("%w: expected column %d to be %q, got %q", ErrHeader, i, col, header[i])
		}
	}
	return nil
}

func (p *HomeAssistantParser) parseRecord(record []string, lineNum int) (model.Reading, error) {
	if len(record) < 3 {
		return model.Reading{}, fmt.Errorf("%w: line %d: expected 3 fields, got %d", ErrFormat, lineNum, len(record))
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
	if err != nil {
		return model.Reading{}, fmt.Errorf("%w: line %d: parsing value %q: %v", ErrFormat, lineNum, record[1], err)
	}

	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(record[2]))
	if err != nil {
		return model.Reading{}, fmt.Errorf("%w: line %d: parsing timestamp %q: %v", ErrFormat, lineNum, record[2], err)
	}

	return model.Reading{
		Timestamp: ts,
		SensorID:  strings.TrimSpace(record[0]),
		Type:      p.SensorType,
		Value:     value,
		Unit:      p.Unit,
	}, nil
}
