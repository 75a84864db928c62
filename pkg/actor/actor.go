// Package actor defines the contract every simulated participant satisfies
// and the stock participants used by scenarios and tests.
package actor

import (
	"github.com/macawi-ai/domovoi/pkg/action"
	"github.com/macawi-ai/domovoi/pkg/space"
)

// ProposalContext is what the orchestrator hands an actor each step.
type ProposalContext struct {
	// Space is read-only; actors must not type-assert it back to *space.Space.
	Space space.View
	// Step is the index of the step being proposed for, starting at 1.
	Step uint64
	// BlockedAttempts counts Block decisions previously rendered against
	// this actor.
	BlockedAttempts int
}

// Actor proposes one action per step. Propose may mutate only the actor's own
// state and must be deterministic given that state and the context; actors
// never read the wall clock.
type Actor interface {
	Propose(ctx ProposalContext) action.Action
	Signature() space.ActorState
	CanTransformIntensively() bool
	KindName() string
	Coherence() float64
}
