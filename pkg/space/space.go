// Package space holds the shared registry of actor states and the geometry
// queries (distance, sheet crossing) actors and the orchestrator ask of it.
package space

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

var (
	// ErrDimensionMismatch is returned when a state vector does not match the
	// dimensionality of the space it is registered into.
	ErrDimensionMismatch = errors.New("space: dimension mismatch")
	// ErrInvalidDimensions is returned for a non-positive dimensionality.
	ErrInvalidDimensions = errors.New("space: dimensions must be positive")
)

// ActorState is the identity and health of one actor.
type ActorState struct {
	ID                 uuid.UUID         `json:"id"`
	Vector             []float64         `json:"vector"`
	IntensivePotential float64           `json:"intensive_potential"`
	Coherence          float64           `json:"coherence"`
	Sheet              int               `json:"sheet"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// NewState returns a fresh state: new id, zero vector, full coherence,
// no intensive potential, sheet 0.
func NewState(dims int) ActorState {
	return ActorState{
		ID:        uuid.New(),
		Vector:    make([]float64, dims),
		Coherence: 1.0,
		Metadata:  make(map[string]string),
	}
}

// Clamp forces Coherence and IntensivePotential into [0,1]. NaN becomes 0.
func (s *ActorState) Clamp() {
	s.Coherence = Clamp01(s.Coherence)
	s.IntensivePotential = Clamp01(s.IntensivePotential)
}

// CanTransformIntensively reports whether the state carries enough potential
// and stability to attempt an intensive transformation.
func (s ActorState) CanTransformIntensively() bool {
	return s.IntensivePotential > 0.5 && s.Coherence > 0.7
}

// Copy returns a deep copy so callers never alias the registry's slices or maps.
func (s ActorState) Copy() ActorState {
	out := s
	out.Vector = append([]float64(nil), s.Vector...)
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// BranchPoint is a fixed connection between sheets. Read-only after setup.
type BranchPoint struct {
	Location  []float64 `json:"location"`
	Sheets    []int     `json:"sheets"`
	Stability float64   `json:"stability"`
}

// View is the read-only surface handed to actors while they propose.
type View interface {
	Get(id uuid.UUID) (ActorState, bool)
	Len() int
	Dimensions() int
	VoidPotential() float64
	Distance(a, b ActorState) float64
	CrossSheet(a, b ActorState) Route
}

// Space owns every registered actor state. It is not safe for concurrent
// mutation; the orchestrator is its only writer.
type Space struct {
	dims          int
	states        map[uuid.UUID]ActorState
	branchPoints  []BranchPoint
	voidPotential float64
}

var _ View = (*Space)(nil)

// New creates an empty space of the given dimensionality.
func New(dims int) (*Space, error) {
	if dims < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDimensions, dims)
	}
	return &Space{
		dims:          dims,
		states:        make(map[uuid.UUID]ActorState),
		voidPotential: 1.0,
	}, nil
}

// Register inserts or overwrites the state keyed by its id.
func (s *Space) Register(state ActorState) error {
	if len(state.Vector) != s.dims {
		return fmt.Errorf("%w: state %s has %d dimensions, space has %d",
			ErrDimensionMismatch, state.ID, len(state.Vector), s.dims)
	}
	s.states[state.ID] = state.Copy()
	return nil
}

// AddBranchPoint records a sheet connection. Intended for setup only.
func (s *Space) AddBranchPoint(bp BranchPoint) error {
	if len(bp.Location) != s.dims {
		return fmt.Errorf("%w: branch point has %d dimensions, space has %d",
			ErrDimensionMismatch, len(bp.Location), s.dims)
	}
	bp.Location = append([]float64(nil), bp.Location...)
	bp.Sheets = append([]int(nil), bp.Sheets...)
	s.branchPoints = append(s.branchPoints, bp)
	return nil
}

// Get returns a copy of the registered state.
func (s *Space) Get(id uuid.UUID) (ActorState, bool) {
	st, ok := s.states[id]
	if !ok {
		return ActorState{}, false
	}
	return st.Copy(), true
}

func (s *Space) Len() int { return len(s.states) }

func (s *Space) Dimensions() int { return s.dims }

func (s *Space) VoidPotential() float64 { return s.voidPotential }

// BranchPoints returns a copy of the configured branch points.
func (s *Space) BranchPoints() []BranchPoint {
	out := make([]BranchPoint, len(s.branchPoints))
	copy(out, s.branchPoints)
	return out
}

// Distance is the Euclidean norm of the difference between the two vectors.
// Missing trailing components are treated as zero.
func (s *Space) Distance(a, b ActorState) float64 {
	n := len(a.Vector)
	if len(b.Vector) > n {
		n = len(b.Vector)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := component(a.Vector, i) - component(b.Vector, i)
		sum += d * d
	}
	return math.Sqrt(sum)
}

func component(v []float64, i int) float64 {
	if i < len(v) {
		return v[i]
	}
	return 0
}

// CrossSheet describes the route from a to b: a sheet jump when they live on
// different sheets, a direct path otherwise.
func (s *Space) CrossSheet(a, b ActorState) Route {
	if a.Sheet != b.Sheet {
		energy := math.Abs(float64(b.Sheet - a.Sheet))
		return SheetJump{Energy: energy, Risk: 0.1 * energy}
	}
	return DirectPath{Distance: s.Distance(a, b)}
}
