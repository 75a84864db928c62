package sim

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/macawi-ai/domovoi/pkg/action"
	"github.com/macawi-ai/domovoi/pkg/events"
	"github.com/macawi-ai/domovoi/pkg/space"
)

// apply records the effect of an accepted action. Only the proposer's own
// trajectory ever changes. Unstable entropic actions never reach it; see
// checkInstability.
func (s *Simulator) apply(ctx context.Context, proposer space.ActorState, a action.Action) error {
	id := proposer.ID
	switch act := a.(type) {
	case action.Extensive:
		kind := events.Parasitism
		if act.PreservesQuality {
			kind = events.VarietyExchange
		}
		_, err := s.emit(ctx, events.Interaction{Kind: kind, Amount: act.Multiplier},
			&events.VarietyDelta{VarietyChange: act.Multiplier}, id)
		return err

	case action.Intensive:
		delta := &events.VarietyDelta{}
		if act.CreatesDimension {
			delta.DimensionsCreated = 1
		}
		_, err := s.emit(ctx, events.IntensiveTransform{Description: act.QualityShift, CreatesDimension: act.CreatesDimension}, delta, id)
		return err

	case action.Navigation:
		return s.navigate(ctx, proposer, act)

	case action.Entropic:
		// The shift is always reported from a fixed prior of 1.0.
		after := space.Clamp01(1.0 - act.CoherenceLoss)
		if _, err := s.emit(ctx, events.CoherenceShift{Actor: id, Before: 1.0, After: after},
			&events.VarietyDelta{CoherenceImpact: after - 1.0}, id); err != nil {
			return err
		}
		s.trajectories[id] = append(s.trajectories[id], after)
		return nil

	default:
		panic(fmt.Sprintf("sim: unhandled action %T", a))
	}
}

// checkInstability fails the simulation when a is an entropic action above
// the fatal risk. It runs before the policy decision, so a block does not
// contain it.
func (s *Simulator) checkInstability(ctx context.Context, proposer uuid.UUID, a action.Action) error {
	ent, ok := a.(action.Entropic)
	if !ok || ent.InstabilityRisk <= InstabilityThreshold {
		return nil
	}
	s.state = StateFailed
	if s.metrics != nil {
		s.metrics.RecordInstability(ctx)
	}
	s.logger.ErrorContext(ctx, "entropic instability",
		"step", s.step,
		"actor", proposer,
		"risk", ent.InstabilityRisk,
	)
	return &InstabilityError{Actor: proposer, Risk: ent.InstabilityRisk, Step: s.step}
}

func (s *Simulator) navigate(ctx context.Context, proposer space.ActorState, nav action.Navigation) error {
	target := proposer.ID
	if len(nav.Path) > 0 {
		target = nav.Path[len(nav.Path)-1]
	}
	dest, registered := s.space.Get(target)

	involved := []uuid.UUID{proposer.ID}
	if target != proposer.ID {
		involved = append(involved, target)
	}
	if _, err := s.emit(ctx, events.Navigation{From: proposer.ID, To: target, Success: registered}, nil, involved...); err != nil {
		return err
	}
	if !registered {
		return nil
	}

	switch route := s.space.CrossSheet(proposer, dest).(type) {
	case space.SheetJump:
		_, err := s.emit(ctx, events.SheetJump{From: proposer.Sheet, To: dest.Sheet, Cost: route.Energy}, nil, involved...)
		return err
	case space.DirectPath, space.Blocked:
		return nil
	default:
		panic(fmt.Sprintf("sim: unhandled route %T", route))
	}
}
