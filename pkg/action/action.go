// Package action defines the closed set of transformations an actor may
// propose in a single step.
package action

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// ErrInvalidAction is returned by Validate for out-of-range parameters.
var ErrInvalidAction = errors.New("action: invalid parameters")

// Kind names each variant for logs, metrics and rule inputs.
type Kind string

const (
	KindExtensive  Kind = "extensive"
	KindIntensive  Kind = "intensive"
	KindNavigation Kind = "navigation"
	KindEntropic   Kind = "entropic"
)

// Action is a one-turn proposed state change. Only the four variants in this
// package implement it.
type Action interface {
	Kind() Kind
	isAction()
}

// Extensive is a predictable, scale-preserving change.
type Extensive struct {
	Multiplier       float64
	PreservesQuality bool
}

// Intensive is a qualitative change that may expand the space.
type Intensive struct {
	QualityShift     string
	CreatesDimension bool
}

// Navigation is movement along a path of actor ids.
type Navigation struct {
	Path              []uuid.UUID
	MaintainsIdentity bool
}

// Entropic is a destructive change. CoherenceLoss >= 0 and
// InstabilityRisk in [0,1].
type Entropic struct {
	CoherenceLoss   float64
	InstabilityRisk float64
}

func (Extensive) Kind() Kind  { return KindExtensive }
func (Intensive) Kind() Kind  { return KindIntensive }
func (Navigation) Kind() Kind { return KindNavigation }
func (Entropic) Kind() Kind   { return KindEntropic }

func (Extensive) isAction()  {}
func (Intensive) isAction()  {}
func (Navigation) isAction() {}
func (Entropic) isAction()   {}

// Validate checks the parameter ranges of a.
func Validate(a Action) error {
	switch v := a.(type) {
	case nil:
		return fmt.Errorf("%w: nil action", ErrInvalidAction)
	case Extensive:
		if math.IsNaN(v.Multiplier) || math.IsInf(v.Multiplier, 0) {
			return fmt.Errorf("%w: extensive multiplier %v", ErrInvalidAction, v.Multiplier)
		}
	case Intensive, Navigation:
	case Entropic:
		if math.IsNaN(v.CoherenceLoss) || v.CoherenceLoss < 0 {
			return fmt.Errorf("%w: coherence loss %v must be >= 0", ErrInvalidAction, v.CoherenceLoss)
		}
		if math.IsNaN(v.InstabilityRisk) || v.InstabilityRisk < 0 || v.InstabilityRisk > 1 {
			return fmt.Errorf("%w: instability risk %v must be in [0,1]", ErrInvalidAction, v.InstabilityRisk)
		}
	default:
		panic(fmt.Sprintf("action: unhandled variant %T", a))
	}
	return nil
}

// Attributes flattens a into the map exposed to policy rules. Fields that do
// not apply to the variant are present with zero values so expressions can
// reference them unconditionally.
func Attributes(a Action) map[string]any {
	attrs := map[string]any{
		"kind":               "",
		"multiplier":         0.0,
		"preserves_quality":  false,
		"quality_shift":      "",
		"creates_dimension":  false,
		"path_len":           int64(0),
		"maintains_identity": false,
		"coherence_loss":     0.0,
		"instability_risk":   0.0,
	}
	switch v := a.(type) {
	case Extensive:
		attrs["multiplier"] = v.Multiplier
		attrs["preserves_quality"] = v.PreservesQuality
	case Intensive:
		attrs["quality_shift"] = v.QualityShift
		attrs["creates_dimension"] = v.CreatesDimension
	case Navigation:
		attrs["path_len"] = int64(len(v.Path))
		attrs["maintains_identity"] = v.MaintainsIdentity
	case Entropic:
		attrs["coherence_loss"] = v.CoherenceLoss
		attrs["instability_risk"] = v.InstabilityRisk
	default:
		panic(fmt.Sprintf("action: unhandled variant %T", a))
	}
	attrs["kind"] = string(a.Kind())
	return attrs
}
