package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/macawi-ai/domovoi/pkg/events"
)

// Condition is a canned threat scenario. The set of variants is closed.
type Condition interface {
	// Name is the stable identifier of the scenario type.
	Name() string
	isCondition()
}

// DDoS floods the log with Duration variety-exhaustion violations.
type DDoS struct {
	Intensity float64
	Duration  int
}

// ProtocolAbuse is a single misuse of the named protocol category.
type ProtocolAbuse struct {
	Category string
}

// IntensiveVarietyBomb is a qualitative blow-up of a single field.
type IntensiveVarietyBomb struct{}

// CoherenceAttack collapses the logged coherence of Target.
type CoherenceAttack struct {
	Target uuid.UUID
}

func (DDoS) Name() string                 { return "ddos" }
func (ProtocolAbuse) Name() string        { return "protocol_abuse" }
func (IntensiveVarietyBomb) Name() string { return "variety_bomb" }
func (CoherenceAttack) Name() string      { return "coherence_attack" }

func (DDoS) isCondition()                 {}
func (ProtocolAbuse) isCondition()        {}
func (IntensiveVarietyBomb) isCondition() {}
func (CoherenceAttack) isCondition()      {}

// ScenarioResult reports the outcome of RunScenario. Success means the
// scenario met an installed policy engine.
type ScenarioResult struct {
	Condition       string          `json:"condition"`
	Success         bool            `json:"success"`
	EventsGenerated int             `json:"events_generated"`
	Classification  events.Severity `json:"classification"`
}

// ValidateCondition rejects out-of-range scenario parameters.
func ValidateCondition(c Condition) error {
	switch v := c.(type) {
	case nil:
		return fmt.Errorf("%w: nil condition", ErrInvalidScenario)
	case DDoS:
		if v.Duration < 0 {
			return fmt.Errorf("%w: ddos duration %d is negative", ErrInvalidScenario, v.Duration)
		}
		if math.IsNaN(v.Intensity) || v.Intensity < 0 || v.Intensity > 1 {
			return fmt.Errorf("%w: ddos intensity %v outside [0,1]", ErrInvalidScenario, v.Intensity)
		}
	case ProtocolAbuse, IntensiveVarietyBomb, CoherenceAttack:
	default:
		panic(fmt.Sprintf("sim: unhandled condition %T", c))
	}
	return nil
}

// RunScenario synthesizes the events of c into the log. It never raises an
// instability.
func (s *Simulator) RunScenario(ctx context.Context, c Condition) (ScenarioResult, error) {
	if s.state == StateFailed {
		return ScenarioResult{}, ErrSimulationFailed
	}
	if err := ValidateCondition(c); err != nil {
		return ScenarioResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return ScenarioResult{}, err
	}

	ctx, done := s.track(ctx, "sim.scenario", attribute.String("condition", c.Name()))
	result, err := s.runScenario(ctx, c)
	done(err)
	if err != nil {
		return ScenarioResult{}, err
	}

	s.logger.InfoContext(ctx, "scenario finished",
		"condition", result.Condition,
		"success", result.Success,
		"events", result.EventsGenerated,
		"classification", result.Classification,
	)
	return result, nil
}

func (s *Simulator) runScenario(ctx context.Context, c Condition) (ScenarioResult, error) {
	result := ScenarioResult{
		Condition: c.Name(),
		Success:   s.Protected(),
	}

	switch v := c.(type) {
	case DDoS:
		for i := 0; i < v.Duration; i++ {
			if _, err := s.emit(ctx, events.PolicyViolation{Kind: "Variety Exhaustion DDoS", Severity: v.Intensity}, nil); err != nil {
				return ScenarioResult{}, err
			}
		}
		result.EventsGenerated = v.Duration
		result.Classification = events.SeverityCritical

	case ProtocolAbuse:
		if _, err := s.emit(ctx, events.PolicyViolation{Kind: "Protocol Abuse: " + v.Category, Severity: 0.7}, nil); err != nil {
			return ScenarioResult{}, err
		}
		result.EventsGenerated = 1
		result.Classification = events.SeverityWarning

	case IntensiveVarietyBomb:
		if _, err := s.emit(ctx, events.IntensiveTransform{Description: "Variety Bomb: Penny→Gorilla×1000", CreatesDimension: true},
			&events.VarietyDelta{DimensionsCreated: 1}); err != nil {
			return ScenarioResult{}, err
		}
		result.EventsGenerated = 1
		result.Classification = events.SeverityCritical

	case CoherenceAttack:
		if _, err := s.emit(ctx, events.CoherenceShift{Actor: v.Target, Before: 1.0, After: 0.1},
			&events.VarietyDelta{CoherenceImpact: -0.9}, v.Target); err != nil {
			return ScenarioResult{}, err
		}
		if _, known := s.ids[v.Target]; known {
			s.trajectories[v.Target] = append(s.trajectories[v.Target], 0.1)
		}
		result.EventsGenerated = 1
		result.Classification = events.SeverityCritical

	default:
		panic(fmt.Sprintf("sim: unhandled condition %T", c))
	}
	return result, nil
}
