package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Kind is the payload of an event. The set of variants is closed.
type Kind interface {
	// Type is the stable wire discriminator of the variant.
	Type() string
	isKind()
}

// InteractionKind classifies an exchange between actors.
type InteractionKind string

const (
	VarietyExchange InteractionKind = "variety_exchange"
	Synchronization InteractionKind = "synchronization"
	Competition     InteractionKind = "competition"
	Parasitism      InteractionKind = "parasitism"
	Mutualism       InteractionKind = "mutualism"
)

// Navigation records movement between two actors (From == To on registration).
type Navigation struct {
	From    uuid.UUID `json:"from"`
	To      uuid.UUID `json:"to"`
	Success bool      `json:"success"`
}

// IntensiveTransform records a qualitative transformation.
type IntensiveTransform struct {
	Description      string `json:"description"`
	CreatesDimension bool   `json:"creates_dimension"`
}

// Interaction records an exchange of variety.
type Interaction struct {
	Kind   InteractionKind `json:"kind"`
	Amount float64         `json:"amount"`
}

// CoherenceShift records a change in one actor's logged coherence.
type CoherenceShift struct {
	Actor  uuid.UUID `json:"actor"`
	Before float64   `json:"before"`
	After  float64   `json:"after"`
}

// SheetJump records a crossing between sheets.
type SheetJump struct {
	From int     `json:"from"`
	To   int     `json:"to"`
	Cost float64 `json:"cost"`
}

// PolicyViolation records a suppressed or synthesized hostile action.
type PolicyViolation struct {
	Kind     string  `json:"kind"`
	Severity float64 `json:"severity"`
}

const (
	TypeNavigation         = "navigation"
	TypeIntensiveTransform = "intensive_transform"
	TypeInteraction        = "interaction"
	TypeCoherenceShift     = "coherence_shift"
	TypeSheetJump          = "sheet_jump"
	TypePolicyViolation    = "policy_violation"
)

func (Navigation) Type() string         { return TypeNavigation }
func (IntensiveTransform) Type() string { return TypeIntensiveTransform }
func (Interaction) Type() string        { return TypeInteraction }
func (CoherenceShift) Type() string     { return TypeCoherenceShift }
func (SheetJump) Type() string          { return TypeSheetJump }
func (PolicyViolation) Type() string    { return TypePolicyViolation }

func (Navigation) isKind()         {}
func (IntensiveTransform) isKind() {}
func (Interaction) isKind()        {}
func (CoherenceShift) isKind()     {}
func (SheetJump) isKind()          {}
func (PolicyViolation) isKind()    {}

// MarshalKind encodes k as a flat JSON object with a "type" discriminator.
func MarshalKind(k Kind) ([]byte, error) {
	fields, err := kindFields(k)
	if err != nil {
		return nil, err
	}
	fields["type"] = k.Type()
	return json.Marshal(fields)
}

// UnmarshalKind decodes the output of MarshalKind.
func UnmarshalKind(data []byte) (Kind, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("events: decode kind: %w", err)
	}

	var k Kind
	var err error
	switch head.Type {
	case TypeNavigation:
		var v Navigation
		err = json.Unmarshal(data, &v)
		k = v
	case TypeIntensiveTransform:
		var v IntensiveTransform
		err = json.Unmarshal(data, &v)
		k = v
	case TypeInteraction:
		var v Interaction
		err = json.Unmarshal(data, &v)
		k = v
	case TypeCoherenceShift:
		var v CoherenceShift
		err = json.Unmarshal(data, &v)
		k = v
	case TypeSheetJump:
		var v SheetJump
		err = json.Unmarshal(data, &v)
		k = v
	case TypePolicyViolation:
		var v PolicyViolation
		err = json.Unmarshal(data, &v)
		k = v
	default:
		return nil, fmt.Errorf("events: unknown kind type %q", head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("events: decode %s: %w", head.Type, err)
	}
	return k, nil
}

// kindFields renders the variant's payload as a generic map. Used for the
// wire form and as the hash input.
func kindFields(k Kind) (map[string]any, error) {
	var payload any
	switch v := k.(type) {
	case Navigation, IntensiveTransform, Interaction, CoherenceShift, SheetJump, PolicyViolation:
		payload = v
	case nil:
		return nil, fmt.Errorf("events: nil kind")
	default:
		panic(fmt.Sprintf("events: unhandled kind %T", k))
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("events: encode %s: %w", k.Type(), err)
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("events: encode %s: %w", k.Type(), err)
	}
	return fields, nil
}
