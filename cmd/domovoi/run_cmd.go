package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/macawi-ai/domovoi/pkg/archive"
	"github.com/macawi-ai/domovoi/pkg/config"
	"github.com/macawi-ai/domovoi/pkg/events"
	"github.com/macawi-ai/domovoi/pkg/observability"
	"github.com/macawi-ai/domovoi/pkg/sim"
	"github.com/macawi-ai/domovoi/pkg/store"
)

// runReport is what `domovoi run` prints.
type runReport struct {
	RunID         string               `json:"run_id"`
	Steps         uint64               `json:"steps"`
	Actors        int                  `json:"actors"`
	Protected     bool                 `json:"protected"`
	State         string               `json:"state"`
	MeanCoherence float64              `json:"mean_coherence"`
	Events        events.Tally         `json:"events"`
	Highest       events.Severity      `json:"highest_severity,omitempty"`
	Scenarios     []sim.ScenarioResult `json:"scenarios,omitempty"`
	Head          string               `json:"head_hash,omitempty"`
	Manifest      *archive.Manifest    `json:"manifest,omitempty"`
	ManifestKey   string               `json:"manifest_key,omitempty"`
	Bundle        string               `json:"bundle,omitempty"`
	Error         string               `json:"error,omitempty"`
}

// runRunCmd implements `domovoi run`.
func runRunCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		configPath string
		steps      int
		jsonOutput bool
		logLevel   string
		logJSON    bool
		runID      string
		bundleOut  string
	)

	cmd.StringVar(&configPath, "config", "", "Path to the run configuration (REQUIRED)")
	cmd.IntVar(&steps, "steps", -1, "Override the configured step count")
	cmd.BoolVar(&jsonOutput, "json", false, "Print the run report as JSON")
	cmd.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")
	cmd.StringVar(&runID, "run-id", "", "Run identifier used by sinks and the archive (default: random)")
	cmd.StringVar(&bundleOut, "bundle-out", "", "Also write the event log as a zstd JSONL bundle to this path")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if configPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --config is required")
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if steps >= 0 {
		cfg.Steps = steps
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	logger := newLogger(stderr, level, logJSON)
	if runID == "" {
		runID = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry, err := observability.New(ctx, telemetryConfig(cfg))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: telemetry: %v\n", err)
		return 2
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	s, ids, err := buildSimulator(cfg, logger, telemetry)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	out, err := openSinks(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() {
		if err := out.Close(); err != nil {
			logger.Warn("closing sinks failed", "error", err)
		}
	}()

	report := runReport{RunID: runID, Actors: len(ids), Protected: s.Protected()}
	logger.Info("run configured", "run_id", runID, "actors", len(ids), "steps", cfg.Steps, "scenarios", len(cfg.Scenarios))

	runErr := execute(ctx, s, cfg, ids, &report)

	evs := s.Events()
	report.Steps = s.CurrentStep()
	report.State = s.State().String()
	report.Events = events.Count(evs)
	report.Highest = report.Events.Highest()
	if len(evs) > 0 {
		report.Head = evs[len(evs)-1].Hash
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}

	// The log is persisted even when the run failed; it is the audit trail
	// of the failure.
	if err := persist(ctx, out, runID, evs, bundleOut, &report); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	writeRunReport(stdout, report, jsonOutput)

	switch {
	case runErr == nil:
		return 0
	case errors.Is(runErr, sim.ErrInstability):
		logger.Error("simulation became unstable", "run_id", runID, "error", runErr)
		return 1
	default:
		logger.Error("run failed", "run_id", runID, "error", runErr)
		return 2
	}
}

// execute runs the configured scenarios, then the configured steps. The
// report carries the population mean however the run ends.
func execute(ctx context.Context, s *sim.Simulator, cfg *config.Config, ids []uuid.UUID, report *runReport) error {
	defer func() { report.MeanCoherence = s.MeanCoherence() }()

	for i, spec := range cfg.Scenarios {
		cond, err := buildCondition(spec, ids)
		if err != nil {
			return fmt.Errorf("scenarios[%d]: %w", i, err)
		}
		res, err := s.RunScenario(ctx, cond)
		if err != nil {
			return fmt.Errorf("scenarios[%d]: %w", i, err)
		}
		report.Scenarios = append(report.Scenarios, res)
	}

	_, err := s.Run(ctx, cfg.Steps)
	return err
}

func persist(ctx context.Context, out *sinks, runID string, evs []events.Event, bundleOut string, report *runReport) error {
	if err := store.WriteAll(ctx, runID, evs, out.list...); err != nil {
		return err
	}
	if out.archive != nil {
		m, err := archive.Archive(ctx, out.archive, runID, evs)
		if err != nil {
			return err
		}
		report.Manifest = &m
		report.ManifestKey = m.Hash
	}
	if bundleOut != "" {
		if err := writeBundleFile(bundleOut, evs); err != nil {
			return err
		}
		report.Bundle = bundleOut
	}
	return nil
}

func writeBundleFile(path string, evs []events.Event) (err error) {
	f, err := os.Create(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return fmt.Errorf("create bundle: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return archive.WriteBundle(f, evs)
}

func writeRunReport(w io.Writer, r runReport, asJSON bool) {
	if asJSON {
		data, _ := json.MarshalIndent(r, "", "  ")
		_, _ = fmt.Fprintln(w, string(data))
		return
	}

	_, _ = fmt.Fprintf(w, "Run %s: %s after %d steps\n", r.RunID, r.State, r.Steps)
	_, _ = fmt.Fprintf(w, "Actors: %d (protected: %t)\n", r.Actors, r.Protected)
	_, _ = fmt.Fprintf(w, "Mean coherence: %.3f\n", r.MeanCoherence)
	_, _ = fmt.Fprintf(w, "Events: %d (highest: %s)\n", r.Events.Total, r.Highest)
	for _, sc := range r.Scenarios {
		_, _ = fmt.Fprintf(w, "  scenario %-16s success=%t events=%d classification=%s\n",
			sc.Condition, sc.Success, sc.EventsGenerated, sc.Classification)
	}
	if r.Head != "" {
		_, _ = fmt.Fprintf(w, "Head: %s\n", r.Head)
	}
	if r.ManifestKey != "" {
		_, _ = fmt.Fprintf(w, "Archived: %s\n", r.ManifestKey)
	}
	if r.Bundle != "" {
		_, _ = fmt.Fprintf(w, "Bundle: %s\n", r.Bundle)
	}
	if r.Error != "" {
		_, _ = fmt.Fprintf(w, "Error: %s\n", r.Error)
	}
}
