package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"golang.org/x/exp/slog"

	"islanding_simulator/internal/config"
	"islanding_simulator/internal/report"
	"islanding_simulator/internal/simulator"
)

// overrides holds battery and dispatch flags. Nil fields and an empty
// policy keep the config.
type overrides struct {
	capacityKWh    *float64
	reservePercent *float64
	maxChargeKW    *float64
	maxDischargeKW *float64
	policy         string
}

func main() {
	configPath := flag.String("config", "", "YAML scenario file (built-in scenarios when empty)")
	scenariosFlag := flag.String("scenarios", "all", "comma-separated scenario names or 1-based indexes")
	outDir := flag.String("out", "output", "directory for charts, series CSV and summary.json (empty to skip)")
	workers := flag.Int("workers", 0, "scenarios run in parallel (0 = one per CPU)")
	capacity := flag.Float64("capacity", 0, "battery capacity in kWh")
	reserve := flag.Float64("reserve", 0, "battery reserve SoC percent")
	maxCharge := flag.Float64("max-charge", 0, "battery max charge power in kW")
	maxDischarge := flag.Float64("max-discharge", 0, "battery max discharge power in kW")
	policy := flag.String("policy", "", "grid-connected dispatch policy: idle, pv_charge or target_soc")
	logLevel := flag.String("log-level", "warn", "log level: debug, info, warn, error")
	flag.Parse()

	// Only flags given on the command line override the config.
	ov := overrides{policy: *policy}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "capacity":
			ov.capacityKWh = capacity
		case "reserve":
			ov.reservePercent = reserve
		case "max-charge":
			ov.maxChargeKW = maxCharge
		case "max-discharge":
			ov.maxDischargeKW = maxDischarge
		}
	})

	if err := setupLogging(os.Stderr, *logLevel); err != nil {
		log.Fatalf("Invalid log level %q: %v", *logLevel, err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Loading config: %v", err)
	}
	if err := applyOverrides(cfg, ov); err != nil {
		log.Fatalf("Invalid flags: %v", err)
	}

	scenarios, err := cfg.Select(splitList(*scenariosFlag))
	if err != nil {
		log.Fatalf("Selecting scenarios: %v", err)
	}
	env, err := cfg.Environment()
	if err != nil {
		log.Fatalf("Building environment: %v", err)
	}

	outcomes := simulator.RunAll(scenarios, env, *workers, nil)

	var summaries []simulator.Summary
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "  %s failed: %v\n", o.Scenario, o.Err)
			continue
		}
		summaries = append(summaries, o.Run.Summary)
		if *outDir == "" {
			continue
		}
		files, err := report.WriteScenario(*outDir, o.Run, nominalFor(cfg, o.Run.Scenario))
		if err != nil {
			log.Fatalf("Writing report for %s: %v", o.Scenario, err)
		}
		fmt.Fprintf(os.Stderr, "  %s -> %s, %s, %s\n", o.Scenario, files.PowerFlowHTML, files.VoltageHTML, files.SeriesCSV)
	}

	if *outDir != "" && len(summaries) > 0 {
		path, err := report.WriteSummary(*outDir, summaries)
		if err != nil {
			log.Fatalf("Writing summary: %v", err)
		}
		fmt.Fprintf(os.Stderr, "  summary -> %s\n", path)
	}

	printTable(os.Stdout, cfg, summaries)
	if failed > 0 {
		os.Exit(1)
	}
}

func setupLogging(w io.Writer, level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func applyOverrides(cfg *config.Config, ov overrides) error {
	if ov.capacityKWh != nil {
		cfg.Battery.CapacityKWh = *ov.capacityKWh
	}
	if ov.reservePercent != nil {
		cfg.Battery.ReservePercent = *ov.reservePercent
	}
	if ov.maxChargeKW != nil {
		cfg.Battery.MaxChargeKW = *ov.maxChargeKW
	}
	if ov.maxDischargeKW != nil {
		cfg.Battery.MaxDischargeKW = *ov.maxDischargeKW
	}
	if ov.policy != "" {
		cfg.Dispatch.Policy = simulator.Policy(ov.policy)
	}
	return cfg.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func nominalFor(cfg *config.Config, sc simulator.ScenarioConfig) float64 {
	if sc.NominalVoltage > 0 {
		return sc.NominalVoltage
	}
	return cfg.Network.NominalVoltage
}

func printTable(w io.Writer, cfg *config.Config, summaries []simulator.Summary) {
	if len(summaries) == 0 {
		return
	}

	b := cfg.Battery
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Islanding Scenario Comparison")
	fmt.Fprintf(w, "  Battery: %.0f kWh, charge %.0f kW, discharge %.0f kW, reserve %.0f%%, policy %s\n",
		b.CapacityKWh, b.MaxChargeKW, b.MaxDischargeKW, b.ReservePercent, cfg.Dispatch.Policy)
	fmt.Fprintf(w, "  Load: %.1f kW baseline, PV: %.1f kW baseline, nominal %.0f V\n",
		cfg.BaselineLoadKW, cfg.BaselinePVKW, cfg.Network.NominalVoltage)
	fmt.Fprintln(w)

	fmt.Fprintf(w, " %-30s │ %8s │ %9s │ %12s │ %9s │ %7s │ %9s │ %7s │ %8s\n",
		"Scenario", "Islanded", "Stability", "Unserved", "Curtailed", "Min SoC", "Final SoC", "Min V", "Degraded")
	fmt.Fprintf(w, "────────────────────────────────┼──────────┼───────────┼──────────────┼───────────┼─────────┼───────────┼─────────┼──────────\n")

	for _, s := range summaries {
		fmt.Fprintf(w, " %-30s │ %5d min │ %5d min │ %8.2f kWh │ %5.2f kWh│ %7s │ %9s │ %7.1f │ %8d\n",
			s.Scenario,
			s.IslandedMinutes,
			s.StabilityMinutes,
			s.UnservedKWh,
			s.CurtailedKWh,
			percent(s.MinSoCPercent),
			percent(s.FinalSoCPercent),
			s.MinVoltage,
			s.DegradedSteps,
		)
	}
	fmt.Fprintln(w)
}

func percent(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", *v)
}
