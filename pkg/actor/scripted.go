package actor

import (
	"github.com/google/uuid"

	"github.com/macawi-ai/domovoi/pkg/action"
	"github.com/macawi-ai/domovoi/pkg/space"
)

// Scripted replays a fixed list of actions, wrapping around at the end. With
// no actions it navigates to itself.
type Scripted struct {
	state   space.ActorState
	actions []action.Action
	next    int
	kind    string
}

// NewScripted creates a Scripted actor with a fresh signature.
func NewScripted(dims int, actions []action.Action, opts ...StateOption) *Scripted {
	return &Scripted{
		state:   buildState(dims, opts),
		actions: append([]action.Action(nil), actions...),
		kind:    "Scripted Spirit",
	}
}

// Named overrides the kind name reported in logs.
func (s *Scripted) Named(kind string) *Scripted {
	s.kind = kind
	return s
}

func (s *Scripted) ID() uuid.UUID { return s.state.ID }

func (s *Scripted) Propose(ProposalContext) action.Action {
	if len(s.actions) == 0 {
		return action.Navigation{Path: []uuid.UUID{s.state.ID}, MaintainsIdentity: true}
	}
	a := s.actions[s.next%len(s.actions)]
	s.next++
	return a
}

func (s *Scripted) Signature() space.ActorState { return s.state.Copy() }

func (s *Scripted) CanTransformIntensively() bool { return s.state.CanTransformIntensively() }

func (s *Scripted) KindName() string { return s.kind }

func (s *Scripted) Coherence() float64 { return s.state.Coherence }
