package actor

import (
	"github.com/google/uuid"

	"github.com/macawi-ai/domovoi/pkg/action"
	"github.com/macawi-ai/domovoi/pkg/space"
)

// KikimoraMode is the attack Kikimora currently runs.
type KikimoraMode int

const (
	SensorHaunting KikimoraMode = iota
	TemporalManipulation
	SwarmDisruption
	MarketSiren
)

func (m KikimoraMode) String() string {
	switch m {
	case SensorHaunting:
		return "sensor_haunting"
	case TemporalManipulation:
		return "temporal_manipulation"
	case SwarmDisruption:
		return "swarm_disruption"
	case MarketSiren:
		return "market_siren"
	default:
		return "unknown"
	}
}

// ModeFor maps a blocked-attempt count onto an attack mode.
func ModeFor(blocked int) KikimoraMode {
	switch {
	case blocked <= 2:
		return SensorHaunting
	case blocked <= 5:
		return TemporalManipulation
	case blocked <= 8:
		return SwarmDisruption
	default:
		return MarketSiren
	}
}

// PhantomSensor is a fabricated field sensor emitting plausible readings.
type PhantomSensor struct {
	ID            uuid.UUID
	Lat, Lon      float64
	SensorType    string
	FalseReadings []float64
}

// Kikimora fabricates sensor variety and escalates her attack as her
// attempts are blocked.
type Kikimora struct {
	state       space.ActorState
	sensors     []PhantomSensor
	level       int
	persistence float64
}

// NewKikimora creates a Kikimora living on sheet 2 with high intensive
// potential and low coherence.
func NewKikimora(dims int, opts ...StateOption) *Kikimora {
	base := []StateOption{
		WithIntensivePotential(0.9),
		WithCoherence(0.4),
		WithSheet(2),
		WithMetadata("spirit_type", "malevolent"),
		WithMetadata("origin", "swamp"),
	}
	return &Kikimora{
		state:       buildState(dims, append(base, opts...)),
		persistence: 0.9,
	}
}

func (k *Kikimora) ID() uuid.UUID { return k.state.ID }

// Mode is the attack mode for the current escalation level.
func (k *Kikimora) Mode() KikimoraMode { return ModeFor(k.level) }

func (k *Kikimora) Persistence() float64 { return k.persistence }

// PhantomSensors returns a copy of the fabricated sensors.
func (k *Kikimora) PhantomSensors() []PhantomSensor {
	out := make([]PhantomSensor, len(k.sensors))
	for i, s := range k.sensors {
		s.FalseReadings = append([]float64(nil), s.FalseReadings...)
		out[i] = s
	}
	return out
}

// CreatePhantomSensor plants a sensor reporting believable temperature,
// humidity and pH.
func (k *Kikimora) CreatePhantomSensor(lat, lon float64, sensorType string) {
	k.sensors = append(k.sensors, PhantomSensor{
		ID:            uuid.New(),
		Lat:           lat,
		Lon:           lon,
		SensorType:    sensorType,
		FalseReadings: []float64{23.5, 65.0, 7.2},
	})
}

// AdaptAttack sets the escalation level directly.
func (k *Kikimora) AdaptAttack(blocked int) {
	if blocked < 0 {
		blocked = 0
	}
	k.level = blocked
}

// Propose escalates to the orchestrator's blocked count when it exceeds the
// current level, then emits the mode's false variety. Escalation never
// reverses on its own.
func (k *Kikimora) Propose(ctx ProposalContext) action.Action {
	if ctx.BlockedAttempts > k.level {
		k.level = ctx.BlockedAttempts
	}
	return k.FalseVariety()
}

// FalseVariety is the action of the current mode.
func (k *Kikimora) FalseVariety() action.Action {
	switch k.Mode() {
	case SensorHaunting:
		return action.Extensive{Multiplier: float64(len(k.sensors)), PreservesQuality: false}
	case TemporalManipulation:
		return action.Intensive{QualityShift: "temporal_desync", CreatesDimension: true}
	case SwarmDisruption:
		return action.Entropic{CoherenceLoss: 0.7, InstabilityRisk: 0.3}
	default:
		return action.Intensive{QualityShift: "false_scarcity", CreatesDimension: true}
	}
}

// SleepParalysis freezes sensor updates without losing coherence.
func (k *Kikimora) SleepParalysis() action.Action {
	return action.Entropic{CoherenceLoss: 0, InstabilityRisk: 0}
}

// DishBreaking corrupts data formats: negative variety.
func (k *Kikimora) DishBreaking() action.Action {
	return action.Extensive{Multiplier: -1, PreservesQuality: false}
}

// NightWhistling opens a covert channel while shape-shifting.
func (k *Kikimora) NightWhistling() action.Action {
	return action.Navigation{Path: []uuid.UUID{k.state.ID}, MaintainsIdentity: false}
}

func (k *Kikimora) Signature() space.ActorState { return k.state.Copy() }

func (k *Kikimora) CanTransformIntensively() bool { return true }

func (k *Kikimora) KindName() string { return "Kikimora - Phantom Sensor Spirit" }

func (k *Kikimora) Coherence() float64 { return k.state.Coherence }
