package sim

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateActor is returned when an actor id is already registered.
	ErrDuplicateActor = errors.New("sim: duplicate actor")
	// ErrInvalidScenario is returned for out-of-range scenario parameters.
	ErrInvalidScenario = errors.New("sim: invalid scenario")
	// ErrInvalidSteps is returned for a negative run length.
	ErrInvalidSteps = errors.New("sim: step count must not be negative")
	// ErrInstability is the root of every InstabilityError.
	ErrInstability = errors.New("sim: entropic instability")
	// ErrSimulationFailed is returned by every operation after an instability.
	ErrSimulationFailed = errors.New("sim: simulation failed")
)

// InstabilityError reports an entropic action whose risk exceeded the fatal
// limit.
type InstabilityError struct {
	Actor uuid.UUID
	Risk  float64
	Step  uint64
}

func (e *InstabilityError) Error() string {
	return fmt.Sprintf("sim: instability risk %.2f from actor %s at step %d", e.Risk, e.Actor, e.Step)
}

func (e *InstabilityError) Unwrap() error { return ErrInstability }
