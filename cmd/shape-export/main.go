// shape-export writes a 1440-point multiplier shape as minute,multiplier CSV,
// the format accepted by load_shape_file and pv_shape_files in scenario YAML.
//
// Usage:
//
//	shape-export -shape residential
//	shape-export -shape clear -out shapes/clear.csv
//	shape-export -ha input/pv_power.csv -entity sensor.pv_power -out shapes/measured.csv
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"islanding_simulator/internal/demand"
	"islanding_simulator/internal/ingest"
	"islanding_simulator/internal/model"
	"islanding_simulator/internal/solar"
)

func main() {
	shapeName := flag.String("shape", "residential", "built-in shape: residential, clear or cloudy")
	haFile := flag.String("ha", "", "Home Assistant PV export to derive the shape from (overrides -shape)")
	entity := flag.String("entity", "", "entity_id to keep from the Home Assistant export (empty keeps all)")
	out := flag.String("out", "", "output CSV path (stdout when empty)")
	flag.Parse()

	var (
		shape model.Shape
		err   error
	)
	if *haFile != "" {
		shape, err = measuredShape(*haFile, *entity)
	} else {
		shape, err = builtinShape(*shapeName)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", *out, err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}

	if err := ingest.WriteShape(w, shape); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing shape: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "%d points, peak %.3f\n", len(shape), shape.Peak())
}

func builtinShapes() map[string]model.Shape {
	shapes := solar.Builtin()
	shapes["residential"] = demand.Residential()
	return shapes
}

func builtinShape(name string) (model.Shape, error) {
	shapes := builtinShapes()
	s, ok := shapes[name]
	if !ok {
		names := make([]string, 0, len(shapes))
		for n := range shapes {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown shape %q (have %v)", name, names)
	}
	return s, nil
}

func measuredShape(path, entity string) (model.Shape, error) {
	parser := ingest.NewHomeAssistantParser(model.SensorPVPower, model.SensorCatalog[model.SensorPVPower].Unit)
	parser.Entity = entity
	readings, err := ingest.LoadReadingsFile(path, parser)
	if err != nil {
		return nil, err
	}
	profile, ok := solar.BuildProfileFromReadings(readings)
	if !ok {
		return nil, fmt.Errorf("%s: no PV generation in %d readings", path, len(readings))
	}
	return profile.Shape(), nil
}
