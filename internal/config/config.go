// Package config holds the simulator configuration: feeder topology,
// battery ratings, dispatch policy, shapes and the scenarios to run. YAML
// files are decoded over the built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"islanding_simulator/internal/demand"
	"islanding_simulator/internal/ingest"
	"islanding_simulator/internal/model"
	"islanding_simulator/internal/powerflow"
	"islanding_simulator/internal/simulator"
	"islanding_simulator/internal/solar"
)

// ErrUnknownScenario is returned when a selector names no configured scenario.
var ErrUnknownScenario = errors.New("unknown scenario")

// MeasuredPV derives a named PV shape from a Home Assistant export.
type MeasuredPV struct {
	Name   string `yaml:"name"`
	File   string `yaml:"file"`
	Entity string `yaml:"entity"`
}

// SolverConfig tunes the built-in nodal solver.
type SolverConfig struct {
	MaxIterations int     `yaml:"max_iterations"`
	ToleranceV    float64 `yaml:"tolerance_v"`
}

type Config struct {
	Network        model.Network            `yaml:"network"`
	Battery        simulator.BatteryConfig  `yaml:"battery"`
	Dispatch       simulator.DispatchConfig `yaml:"dispatch"`
	Solver         SolverConfig             `yaml:"solver"`
	BaselineLoadKW float64                  `yaml:"baseline_load_kw"`
	BaselinePVKW   float64                  `yaml:"baseline_pv_kw"`

	// LoadShapeFile replaces the built-in residential shape when set.
	LoadShapeFile string `yaml:"load_shape_file"`
	// PVShapeFiles adds or replaces named PV shapes.
	PVShapeFiles map[string]string `yaml:"pv_shape_files"`
	MeasuredPV   *MeasuredPV       `yaml:"measured_pv"`

	Scenarios []simulator.ScenarioConfig `yaml:"scenarios"`

	// Relative file paths resolve against the config file directory.
	baseDir string
}

// Load reads a YAML file over Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.baseDir = filepath.Dir(path)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks everything that can be checked without reading shape files.
func (c *Config) Validate() error {
	if err := c.Network.Validate(); err != nil {
		return fmt.Errorf("%w: network: %v", simulator.ErrInvalidConfig, err)
	}
	if err := c.Battery.Validate(); err != nil {
		return err
	}
	if err := c.Dispatch.Validate(); err != nil {
		return err
	}
	if c.BaselineLoadKW < 0 || c.BaselinePVKW < 0 {
		return fmt.Errorf("%w: baseline ratings must be non-negative", simulator.ErrInvalidConfig)
	}
	if len(c.Scenarios) == 0 {
		return fmt.Errorf("%w: no scenarios configured", simulator.ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Scenarios))
	for _, sc := range c.Scenarios {
		if sc.Name == "" {
			return fmt.Errorf("%w: scenario with empty name", simulator.ErrInvalidConfig)
		}
		if seen[sc.Name] {
			return fmt.Errorf("%w: duplicate scenario %q", simulator.ErrInvalidConfig, sc.Name)
		}
		seen[sc.Name] = true
	}
	if c.MeasuredPV != nil && (c.MeasuredPV.Name == "" || c.MeasuredPV.File == "") {
		return fmt.Errorf("%w: measured_pv needs name and file", simulator.ErrInvalidConfig)
	}
	return nil
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) || c.baseDir == "" {
		return path
	}
	return filepath.Join(c.baseDir, path)
}

// Environment builds the shared simulation input, reading any shape files.
func (c *Config) Environment() (simulator.Environment, error) {
	env := simulator.Environment{
		Network:        c.Network,
		Battery:        c.Battery,
		Dispatch:       c.Dispatch,
		BaselineLoadKW: c.BaselineLoadKW,
		BaselinePVKW:   c.BaselinePVKW,
		LoadShape:      demand.Residential(),
		PVShapes:       solar.Builtin(),
		Solver: &powerflow.NodalSolver{
			MaxIterations: c.Solver.MaxIterations,
			ToleranceV:    c.Solver.ToleranceV,
		},
	}

	if c.LoadShapeFile != "" {
		s, err := ingest.LoadShapeFile(c.resolve(c.LoadShapeFile))
		if err != nil {
			return env, fmt.Errorf("load shape: %w", err)
		}
		env.LoadShape = s
	}
	for name, file := range c.PVShapeFiles {
		s, err := ingest.LoadShapeFile(c.resolve(file))
		if err != nil {
			return env, fmt.Errorf("pv shape %s: %w", name, err)
		}
		env.PVShapes[name] = s
	}
	if m := c.MeasuredPV; m != nil {
		parser := ingest.NewHomeAssistantParser(model.SensorPVPower, model.SensorCatalog[model.SensorPVPower].Unit)
		parser.Entity = m.Entity
		readings, err := ingest.LoadReadingsFile(c.resolve(m.File), parser)
		if err != nil {
			return env, fmt.Errorf("measured pv: %w", err)
		}
		profile, ok := solar.BuildProfileFromReadings(readings)
		if !ok {
			return env, fmt.Errorf("%w: measured pv %s has no generation", simulator.ErrInvalidConfig, m.File)
		}
		env.PVShapes[m.Name] = profile.Shape()
	}
	return env, nil
}

// Select resolves scenario selectors. A selector is a scenario name, its
// 1-based position, or "all". No selectors selects every scenario.
func (c *Config) Select(selectors []string) ([]simulator.ScenarioConfig, error) {
	var picked []simulator.ScenarioConfig
	seen := make(map[string]bool)
	add := func(sc simulator.ScenarioConfig) {
		if !seen[sc.Name] {
			seen[sc.Name] = true
			picked = append(picked, sc)
		}
	}

	if len(selectors) == 0 {
		selectors = []string{"all"}
	}
	for _, raw := range selectors {
		sel := strings.TrimSpace(raw)
		if sel == "" {
			continue
		}
		if sel == "all" {
			for _, sc := range c.Scenarios {
				add(sc)
			}
			continue
		}
		if n, err := strconv.Atoi(sel); err == nil {
			if n < 1 || n > len(c.Scenarios) {
				return nil, fmt.Errorf("%w: %d (have %d)", ErrUnknownScenario, n, len(c.Scenarios))
			}
			add(c.Scenarios[n-1])
			continue
		}
		sc, ok := c.Scenario(sel)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, sel)
		}
		add(sc)
	}
	return picked, nil
}

// Scenario looks a scenario up by name.
func (c *Config) Scenario(name string) (simulator.ScenarioConfig, bool) {
	for _, sc := range c.Scenarios {
		if sc.Name == name {
			return sc, true
		}
	}
	return simulator.ScenarioConfig{}, false
}

// Names returns the configured scenario names in order.
func (c *Config) Names() []string {
	names := make([]string, len(c.Scenarios))
	for i, sc := range c.Scenarios {
		names[i] = sc.Name
	}
	return names
}
