// Package events implements the classified, append-only audit trail of a
// simulation run.
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

// VarietyDelta summarises the variety change attached to an event.
type VarietyDelta struct {
	VarietyChange     float64 `json:"variety_change"`
	DimensionsCreated int     `json:"dimensions_created"`
	CoherenceImpact   float64 `json:"coherence_impact"`
}

// Event is an immutable log record. Sequence starts at 1. PrevHash links it
// to the preceding event; Hash covers every other field.
type Event struct {
	ID        uuid.UUID
	Sequence  uint64
	Timestamp time.Time
	Kind      Kind
	Actors    []uuid.UUID
	Severity  Severity
	Delta     *VarietyDelta
	PrevHash  string
	Hash      string
}

type eventJSON struct {
	ID        uuid.UUID       `json:"id"`
	Sequence  uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Kind      json.RawMessage `json:"kind"`
	Actors    []uuid.UUID     `json:"actors"`
	Severity  Severity        `json:"severity"`
	Delta     *VarietyDelta   `json:"delta,omitempty"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

// MarshalJSON encodes the event with its kind as a discriminated object.
func (e Event) MarshalJSON() ([]byte, error) {
	kind, err := MarshalKind(e.Kind)
	if err != nil {
		return nil, err
	}
	actors := e.Actors
	if actors == nil {
		actors = []uuid.UUID{}
	}
	return json.Marshal(eventJSON{
		ID:        e.ID,
		Sequence:  e.Sequence,
		Timestamp: e.Timestamp,
		Kind:      kind,
		Actors:    actors,
		Severity:  e.Severity,
		Delta:     e.Delta,
		PrevHash:  e.PrevHash,
		Hash:      e.Hash,
	})
}

// UnmarshalJSON decodes the output of MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, err := UnmarshalKind(raw.Kind)
	if err != nil {
		return err
	}
	*e = Event{
		ID:        raw.ID,
		Sequence:  raw.Sequence,
		Timestamp: raw.Timestamp,
		Kind:      kind,
		Actors:    raw.Actors,
		Severity:  raw.Severity,
		Delta:     raw.Delta,
		PrevHash:  raw.PrevHash,
		Hash:      raw.Hash,
	}
	return nil
}

// Copy returns a copy that shares no slices with e.
func (e Event) Copy() Event {
	out := e
	out.Actors = append([]uuid.UUID(nil), e.Actors...)
	if e.Delta != nil {
		d := *e.Delta
		out.Delta = &d
	}
	return out
}

// ComputeHash returns the "sha256:<hex>" digest of the RFC 8785 canonical
// form of every field except Hash.
func ComputeHash(e *Event) (string, error) {
	kind, err := kindFields(e.Kind)
	if err != nil {
		return "", err
	}
	kind["type"] = e.Kind.Type()

	actors := make([]string, len(e.Actors))
	for i, a := range e.Actors {
		actors[i] = a.String()
	}

	data := map[string]any{
		"id":        e.ID.String(),
		"seq":       e.Sequence,
		"timestamp": e.Timestamp.UTC().Format(time.RFC3339Nano),
		"kind":      kind,
		"actors":    actors,
		"severity":  string(e.Severity),
		"prev_hash": e.PrevHash,
	}
	if e.Delta != nil {
		data["delta"] = e.Delta
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("events: hash input: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("events: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
