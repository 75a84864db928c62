package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/macawi-ai/domovoi/pkg/actor"
	"github.com/macawi-ai/domovoi/pkg/config"
	"github.com/macawi-ai/domovoi/pkg/policy"
	"github.com/macawi-ai/domovoi/pkg/sim"
)

// runScenarioCmd implements `domovoi scenario`. It runs one canned condition
// on a fresh simulator holding a single protective test agent, which is the
// target of a coherence attack.
func runScenarioCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("scenario", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		typ        string
		protect    bool
		intensity  float64
		duration   int
		category   string
		dims       int
		jsonOutput bool
		logLevel   string
	)

	cmd.StringVar(&typ, "type", "", "Scenario: ddos, protocol_abuse, variety_bomb, coherence_attack (REQUIRED)")
	cmd.BoolVar(&protect, "protect", false, "Enable protection with the default policy")
	cmd.Float64Var(&intensity, "intensity", 0.8, "DDoS intensity in [0,1]")
	cmd.IntVar(&duration, "duration", 10, "DDoS duration in steps")
	cmd.StringVar(&category, "category", "Modbus", "Protocol abuse category")
	cmd.IntVar(&dims, "dimensions", 8, "State space dimensionality")
	cmd.BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	cmd.StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if typ == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --type is required")
		return 2
	}
	level, err := config.ParseLevel(logLevel)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	logger := newLogger(stderr, level, false)

	s, err := sim.New(dims, sim.WithLogger(logger.With("component", "sim")))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if protect {
		if err := s.EnableProtection(policy.DefaultConfig()); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
	}
	target, err := s.AddActor(actor.NewTestAgent(dims, actor.Protective{}))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	var cond sim.Condition = sim.CoherenceAttack{Target: target}
	if typ != "coherence_attack" {
		cond, err = buildCondition(config.ScenarioSpec{
			Type:      typ,
			Intensity: intensity,
			Duration:  duration,
			Category:  category,
		}, nil)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
	}

	res, err := s.RunScenario(context.Background(), cond)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(res, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}
	_, _ = fmt.Fprintf(stdout, "Scenario %s: success=%t events=%d classification=%s (%s)\n",
		res.Condition, res.Success, res.EventsGenerated, res.Classification, res.Classification.Color())
	return 0
}
