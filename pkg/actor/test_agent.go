package actor

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/macawi-ai/domovoi/pkg/action"
	"github.com/macawi-ai/domovoi/pkg/space"
)

// Archetype is the role a TestAgent plays. The set of variants is closed.
type Archetype interface {
	isArchetype()
}

// Protective spirits guard resources and warn of dangers.
type Protective struct {
	Guards  []string
	WarnsOf []string
}

// Malevolent spirits attack.
type Malevolent struct {
	AttackPatterns []string
	Persistence    float64
}

// Neutral spirits bridge two domains.
type Neutral struct {
	BridgesBetween     [2]string
	TransformationType string
}

// Ancestral spirits are legacy systems seeking protection.
type Ancestral struct {
	ProtocolAge string
	Seeking     string
}

func (Protective) isArchetype() {}
func (Malevolent) isArchetype() {}
func (Neutral) isArchetype()    {}
func (Ancestral) isArchetype()  {}

// StateOption adjusts the initial signature of a stock actor.
type StateOption func(*space.ActorState)

func WithCoherence(c float64) StateOption {
	return func(s *space.ActorState) { s.Coherence = c }
}

func WithIntensivePotential(p float64) StateOption {
	return func(s *space.ActorState) { s.IntensivePotential = p }
}

func WithSheet(sheet int) StateOption {
	return func(s *space.ActorState) { s.Sheet = sheet }
}

// WithID fixes the actor id, so configuration can refer to an actor before
// it exists.
func WithID(id uuid.UUID) StateOption {
	return func(s *space.ActorState) { s.ID = id }
}

func WithMetadata(key, value string) StateOption {
	return func(s *space.ActorState) { s.Metadata[key] = value }
}

// WithVector sets the positional vector. Its length must still match the
// simulation's dimensionality.
func WithVector(v []float64) StateOption {
	return func(s *space.ActorState) { s.Vector = append([]float64(nil), v...) }
}

func buildState(dims int, opts []StateOption) space.ActorState {
	st := space.NewState(dims)
	for _, opt := range opts {
		opt(&st)
	}
	st.Clamp()
	return st
}

// TestAgent is a benign participant that keeps navigating to itself.
type TestAgent struct {
	state     space.ActorState
	archetype Archetype
}

// NewTestAgent creates a TestAgent with a fresh signature. A nil archetype
// means Neutral.
func NewTestAgent(dims int, archetype Archetype, opts ...StateOption) *TestAgent {
	if archetype == nil {
		archetype = Neutral{}
	}
	return &TestAgent{
		state:     buildState(dims, opts),
		archetype: archetype,
	}
}

func (a *TestAgent) ID() uuid.UUID { return a.state.ID }

func (a *TestAgent) Archetype() Archetype { return a.archetype }

// Propose always stays in place with identity intact.
func (a *TestAgent) Propose(ProposalContext) action.Action {
	return action.Navigation{
		Path:              []uuid.UUID{a.state.ID},
		MaintainsIdentity: true,
	}
}

func (a *TestAgent) Signature() space.ActorState { return a.state.Copy() }

func (a *TestAgent) CanTransformIntensively() bool {
	_, ok := a.archetype.(Malevolent)
	return ok
}

func (a *TestAgent) KindName() string {
	switch a.archetype.(type) {
	case Protective:
		return "Protective Spirit"
	case Malevolent:
		return "Chaos Spirit"
	case Neutral:
		return "Bridge Spirit"
	case Ancestral:
		return "Legacy Spirit"
	default:
		panic(fmt.Sprintf("actor: unhandled archetype %T", a.archetype))
	}
}

func (a *TestAgent) Coherence() float64 { return a.state.Coherence }
