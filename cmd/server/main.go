package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/exp/slog"

	"islanding_simulator/internal/config"
	"islanding_simulator/internal/metrics"
	"islanding_simulator/internal/report"
	"islanding_simulator/internal/simulator"
	"islanding_simulator/internal/store"
	"islanding_simulator/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "YAML scenario file (built-in scenarios when empty)")
	frontendDir := flag.String("frontend-dir", "frontend/build", "directory containing frontend build")
	addr := flag.String("addr", ":8080", "listen address")
	workers := flag.Int("workers", 0, "scenarios run in parallel (0 = one per CPU)")
	stepEvery := flag.Int("step-every", 5, "stream every n-th step over the WebSocket")
	runOnStart := flag.Bool("run-on-start", true, "run every scenario once before serving")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	if err := setupLogging(os.Stderr, *logLevel); err != nil {
		log.Fatalf("Invalid log level %q: %v", *logLevel, err)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("Loading config: %v", err)
		}
	}
	env, err := cfg.Environment()
	if err != nil {
		log.Fatalf("Building environment: %v", err)
	}
	log.Printf("Loaded %d scenarios", len(cfg.Scenarios))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(reg)

	dataStore := store.New()
	if *runOnStart {
		outcomes := simulator.RunAll(cfg.Scenarios, env, *workers, recorder)
		dataStore.AddOutcomes(outcomes)
		log.Printf("Initial run: %d of %d scenarios stored", len(dataStore.Scenarios()), len(outcomes))
	}

	srv := newServer(cfg, env, dataStore, reg, recorder)
	srv.ws.Workers = *workers
	srv.ws.Bridge().StepEvery = *stepEvery

	mux := srv.routes()

	// Serve frontend static files
	if _, err := os.Stat(*frontendDir); err == nil {
		log.Printf("Serving frontend from %s", *frontendDir)
		mux.Handle("/", http.FileServer(http.Dir(*frontendDir)))
	}

	log.Printf("Starting server on %s", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatal(err)
	}
}

type server struct {
	cfg   *config.Config
	store *store.Store
	reg   *prometheus.Registry
	ws    *ws.Handler
}

func newServer(cfg *config.Config, env simulator.Environment, st *store.Store, reg *prometheus.Registry, extra simulator.Callback) *server {
	hub := ws.NewHub()
	metrics.RegisterHub(reg, hub)
	return &server{
		cfg:   cfg,
		store: st,
		reg:   reg,
		ws:    ws.NewHandler(hub, cfg, env, st, extra),
	}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.Handle("/ws", s.ws)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /summary", s.handleSummary)
	mux.HandleFunc("GET /report/{scenario}", s.handleReport)
	return mux
}

func (s *server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summaries := make(map[string]simulator.Summary)
	for _, sum := range s.store.Summaries() {
		summaries[sum.Scenario] = sum
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summaries); err != nil {
		slog.Default().Error("encode summary", "error", err)
	}
}

func (s *server) handleReport(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("scenario")
	run, ok := s.store.Run(name)
	if !ok {
		http.Error(w, fmt.Sprintf("no results for scenario %q", name), http.StatusNotFound)
		return
	}
	report.Handler(run, nominalFor(s.cfg, run.Scenario)).ServeHTTP(w, r)
}

func nominalFor(cfg *config.Config, sc simulator.ScenarioConfig) float64 {
	if sc.NominalVoltage > 0 {
		return sc.NominalVoltage
	}
	return cfg.Network.NominalVoltage
}

func setupLogging(w io.Writer, level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
	return nil
}
