//go:build property
// +build property

package sim_test

import (
	"context"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/macawi-ai/domovoi/pkg/action"
	"github.com/macawi-ai/domovoi/pkg/actor"
	"github.com/macawi-ai/domovoi/pkg/events"
	"github.com/macawi-ai/domovoi/pkg/policy"
	"github.com/macawi-ai/domovoi/pkg/sim"
)

func TestEmptyPopulationProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("empty population keeps mean coherence at 1.0", prop.ForAll(
		func(dims, steps int) bool {
			s, err := sim.New(dims)
			if err != nil {
				return false
			}
			out, err := s.Run(context.Background(), steps)
			if err != nil || len(out.Steps) != steps {
				return false
			}
			for _, st := range out.Steps {
				if st.MeanCoherence != 1.0 || st.Actors != 0 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 16),
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}

func TestBlockedEntropicProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("entropic loss over threshold never changes the trajectory", prop.ForAll(
		func(threshold, excess, risk float64) bool {
			s, err := sim.New(4)
			if err != nil {
				return false
			}
			cfg := policy.DefaultConfig()
			cfg.MaxCoherenceLoss = threshold
			if err := s.EnableProtection(cfg); err != nil {
				return false
			}
			a := actor.NewScripted(4, []action.Action{
				action.Entropic{CoherenceLoss: threshold + excess, InstabilityRisk: risk},
			}, actor.WithCoherence(0.7))
			id, err := s.AddActor(a)
			if err != nil {
				return false
			}
			out, err := s.Run(context.Background(), 3)
			if err != nil {
				return false
			}
			traj := s.Trajectory(id)
			return len(traj) == 1 && traj[0] == 0.7 && s.BlockedAttempts(id) == 3 &&
				len(out.Events) == 4
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0.0001, 1),
		gen.Float64Range(0, 0.8),
	))

	properties.TestingRun(t)
}

func TestInstabilityProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("risk above 0.8 aborts the run", prop.ForAll(
		func(risk, loss float64, protect bool) bool {
			s, err := sim.New(4)
			if err != nil {
				return false
			}
			if protect {
				if err := s.EnableProtection(policy.DefaultConfig()); err != nil {
					return false
				}
			}
			a := actor.NewScripted(4, []action.Action{action.Entropic{CoherenceLoss: loss, InstabilityRisk: risk}})
			if _, err := s.AddActor(a); err != nil {
				return false
			}
			_, err = s.Run(context.Background(), 5)
			return errors.Is(err, sim.ErrInstability) && s.State() == sim.StateFailed
		},
		gen.Float64Range(0.8001, 1),
		gen.Float64Range(0, 1),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestDDoSProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("ddos logs one violation per tick", prop.ForAll(
		func(duration int, intensity float64, protect bool) bool {
			s, err := sim.New(4)
			if err != nil {
				return false
			}
			if protect {
				if err := s.EnableProtection(policy.DefaultConfig()); err != nil {
					return false
				}
			}
			res, err := s.RunScenario(context.Background(), sim.DDoS{Intensity: intensity, Duration: duration})
			if err != nil {
				return false
			}
			tally := events.Count(s.Events())
			return res.EventsGenerated == duration &&
				tally.ByType[events.TypePolicyViolation] == duration &&
				res.Success == protect
		},
		gen.IntRange(0, 50),
		gen.Float64Range(0, 1),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
