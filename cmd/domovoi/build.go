package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/macawi-ai/domovoi/pkg/action"
	"github.com/macawi-ai/domovoi/pkg/actor"
	"github.com/macawi-ai/domovoi/pkg/archive"
	"github.com/macawi-ai/domovoi/pkg/config"
	"github.com/macawi-ai/domovoi/pkg/observability"
	"github.com/macawi-ai/domovoi/pkg/policy"
	"github.com/macawi-ai/domovoi/pkg/sim"
	"github.com/macawi-ai/domovoi/pkg/store"
)

// buildSimulator creates the simulator described by cfg, installs
// protection and registers every configured actor. The returned ids are in
// configuration order, which is what target_index refers to.
func buildSimulator(cfg *config.Config, logger *slog.Logger, telemetry *observability.Provider) (*sim.Simulator, []uuid.UUID, error) {
	opts := []sim.Option{sim.WithLogger(logger.With("component", "sim"))}
	if telemetry != nil {
		opts = append(opts, sim.WithTelemetry(telemetry))
	}
	if cfg.StepRate > 0 {
		opts = append(opts, sim.WithStepRate(cfg.StepRate))
	}

	s, err := sim.New(cfg.Dimensions, opts...)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Protection.Enabled {
		if err := s.EnableProtection(cfg.Protection.Policy(),
			policy.WithRules(cfg.Protection.Rules...),
			policy.WithLogger(logger.With("component", "policy")),
		); err != nil {
			return nil, nil, err
		}
	}

	actors, ids, err := buildActors(cfg)
	if err != nil {
		return nil, nil, err
	}
	for _, a := range actors {
		if _, err := s.AddActor(a); err != nil {
			return nil, nil, err
		}
	}
	return s, ids, nil
}

// buildActors expands every ActorSpec into Count actors. Ids are allocated
// up front so scripted navigation can target actors declared later.
func buildActors(cfg *config.Config) ([]actor.Actor, []uuid.UUID, error) {
	total := 0
	for _, spec := range cfg.Actors {
		total += spec.Instances()
	}
	ids := make([]uuid.UUID, total)
	for i := range ids {
		ids[i] = uuid.New()
	}

	out := make([]actor.Actor, 0, total)
	for i, spec := range cfg.Actors {
		for n := 0; n < spec.Instances(); n++ {
			id := ids[len(out)]
			a, err := buildActor(cfg.Dimensions, spec, id, ids)
			if err != nil {
				return nil, nil, fmt.Errorf("actors[%d]: %w", i, err)
			}
			out = append(out, a)
		}
	}
	return out, ids, nil
}

func buildActor(dims int, spec config.ActorSpec, id uuid.UUID, ids []uuid.UUID) (actor.Actor, error) {
	opts := []actor.StateOption{actor.WithID(id)}
	if spec.Coherence != nil {
		opts = append(opts, actor.WithCoherence(*spec.Coherence))
	}
	if spec.IntensivePotential != nil {
		opts = append(opts, actor.WithIntensivePotential(*spec.IntensivePotential))
	}
	if spec.Sheet != nil {
		opts = append(opts, actor.WithSheet(*spec.Sheet))
	}
	if spec.Name != "" {
		opts = append(opts, actor.WithMetadata("name", spec.Name))
	}

	switch spec.Kind {
	case "test":
		archetype, err := parseArchetype(spec.Archetype)
		if err != nil {
			return nil, err
		}
		return actor.NewTestAgent(dims, archetype, opts...), nil

	case "kikimora":
		k := actor.NewKikimora(dims, opts...)
		for _, ps := range spec.PhantomSensors {
			k.CreatePhantomSensor(ps.Lat, ps.Lon, ps.Type)
		}
		if spec.BlockedAttempts > 0 {
			k.AdaptAttack(spec.BlockedAttempts)
		}
		return k, nil

	case "blackmatter":
		return actor.NewBlackMatter(dims, opts...), nil

	case "scripted":
		actions := make([]action.Action, 0, len(spec.Actions))
		for j, as := range spec.Actions {
			a, err := buildAction(as, id, ids)
			if err != nil {
				return nil, fmt.Errorf("actions[%d]: %w", j, err)
			}
			actions = append(actions, a)
		}
		s := actor.NewScripted(dims, actions, opts...)
		if spec.Name != "" {
			s.Named(spec.Name)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown actor kind %q", spec.Kind)
	}
}

func buildAction(spec config.ActionSpec, self uuid.UUID, ids []uuid.UUID) (action.Action, error) {
	var a action.Action
	switch spec.Kind {
	case "extensive":
		a = action.Extensive{Multiplier: spec.Multiplier, PreservesQuality: spec.PreservesQuality}
	case "intensive":
		a = action.Intensive{QualityShift: spec.QualityShift, CreatesDimension: spec.CreatesDimension}
	case "navigation":
		target := self
		if spec.TargetIndex != nil {
			if *spec.TargetIndex < 0 || *spec.TargetIndex >= len(ids) {
				return nil, fmt.Errorf("target_index %d out of range", *spec.TargetIndex)
			}
			target = ids[*spec.TargetIndex]
		}
		a = action.Navigation{Path: []uuid.UUID{target}, MaintainsIdentity: spec.MaintainsIdentity}
	case "entropic":
		a = action.Entropic{CoherenceLoss: spec.CoherenceLoss, InstabilityRisk: spec.InstabilityRisk}
	default:
		return nil, fmt.Errorf("unknown action kind %q", spec.Kind)
	}
	if err := action.Validate(a); err != nil {
		return nil, err
	}
	return a, nil
}

func parseArchetype(name string) (actor.Archetype, error) {
	switch name {
	case "", "neutral":
		return actor.Neutral{}, nil
	case "protective":
		return actor.Protective{}, nil
	case "malevolent":
		return actor.Malevolent{}, nil
	case "ancestral":
		return actor.Ancestral{}, nil
	default:
		return nil, fmt.Errorf("unknown archetype %q", name)
	}
}

func buildCondition(spec config.ScenarioSpec, ids []uuid.UUID) (sim.Condition, error) {
	var c sim.Condition
	switch spec.Type {
	case "ddos":
		c = sim.DDoS{Intensity: spec.Intensity, Duration: spec.Duration}
	case "protocol_abuse":
		c = sim.ProtocolAbuse{Category: spec.Category}
	case "variety_bomb":
		c = sim.IntensiveVarietyBomb{}
	case "coherence_attack":
		if spec.TargetIndex < 0 || spec.TargetIndex >= len(ids) {
			return nil, fmt.Errorf("%w: target_index %d out of range", sim.ErrInvalidScenario, spec.TargetIndex)
		}
		c = sim.CoherenceAttack{Target: ids[spec.TargetIndex]}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", sim.ErrInvalidScenario, spec.Type)
	}
	return c, sim.ValidateCondition(c)
}

// sinks holds the configured event outputs for one run.
type sinks struct {
	list    []store.Sink
	closers []func() error
	archive archive.Store
}

func openSinks(ctx context.Context, cfg *config.Config) (*sinks, error) {
	out := &sinks{}

	switch cfg.Store.Driver {
	case "", "none":
	case "sqlite", "postgres":
		var (
			es  *store.SQLStore
			err error
		)
		if cfg.Store.Driver == "sqlite" {
			es, err = store.OpenSQLite(ctx, cfg.Store.DSN)
		} else {
			es, err = store.OpenPostgres(ctx, cfg.Store.DSN)
		}
		if err != nil {
			return nil, err
		}
		out.list = append(out.list, es)
		out.closers = append(out.closers, es.Close)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if cfg.Redis.Addr != "" {
		client := store.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		out.list = append(out.list, store.NewRedisSink(client, cfg.Redis.Stream))
		out.closers = append(out.closers, client.Close)
	}

	as, err := archive.NewStoreFromConfig(ctx, cfg.Archive)
	if err != nil {
		_ = out.Close()
		return nil, err
	}
	out.archive = as
	if c, ok := as.(io.Closer); ok {
		out.closers = append(out.closers, c.Close)
	}
	return out, nil
}

func (s *sinks) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func telemetryConfig(cfg *config.Config) *observability.Config {
	oc := observability.DefaultConfig()
	oc.Enabled = cfg.Telemetry.Enabled
	oc.OTLPEndpoint = cfg.Telemetry.Endpoint
	oc.Insecure = cfg.Telemetry.Insecure
	oc.SampleRate = cfg.Telemetry.SampleRate
	oc.ServiceVersion = version
	return oc
}
