package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// Clock supplies event timestamps. Inject a fixed clock for reproducible logs.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// IDSource mints event ids.
type IDSource func() uuid.UUID

// Log is an append-only, hash-chained sequence of events. Readers only ever
// receive copies. A Log has a single owner and is not safe for concurrent
// use.
type Log struct {
	events []Event
	clock  Clock
	newID  IDSource
}

// LogOption configures a Log.
type LogOption func(*Log)

// WithClock sets the timestamp source. A nil clock keeps the wall clock.
func WithClock(c Clock) LogOption {
	return func(l *Log) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithIDSource sets the event id generator.
func WithIDSource(src IDSource) LogOption {
	return func(l *Log) {
		if src != nil {
			l.newID = src
		}
	}
}

// NewLog creates an empty log.
func NewLog(opts ...LogOption) *Log {
	l := &Log{
		events: make([]Event, 0),
		clock:  wallClock{},
		newID:  uuid.New,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append classifies k, links it to the current head and stores it.
func (l *Log) Append(k Kind, actors ...uuid.UUID) (Event, error) {
	return l.AppendWithDelta(k, nil, actors...)
}

// AppendWithDelta is Append with an attached variety delta.
func (l *Log) AppendWithDelta(k Kind, delta *VarietyDelta, actors ...uuid.UUID) (Event, error) {
	if k == nil {
		return Event{}, fmt.Errorf("events: nil kind")
	}
	k = normalize(k)

	prevHash := ""
	if n := len(l.events); n > 0 {
		prevHash = l.events[n-1].Hash
	}

	e := Event{
		ID:        l.newID(),
		Sequence:  uint64(len(l.events)) + 1,
		Timestamp: l.clock.Now().UTC(),
		Kind:      k,
		Actors:    append([]uuid.UUID{}, actors...),
		Severity:  Classify(k),
		PrevHash:  prevHash,
	}
	if delta != nil {
		d := *delta
		e.Delta = &d
	}

	hash, err := ComputeHash(&e)
	if err != nil {
		return Event{}, err
	}
	e.Hash = hash

	l.events = append(l.events, e)
	return e.Copy(), nil
}

// Snapshot returns a copy of every event in append order.
func (l *Log) Snapshot() []Event {
	out := make([]Event, len(l.events))
	for i, e := range l.events {
		out[i] = e.Copy()
	}
	return out
}

// Since returns a copy of the events with Sequence > seq.
func (l *Log) Since(seq uint64) []Event {
	if seq >= uint64(len(l.events)) {
		return []Event{}
	}
	out := make([]Event, 0, uint64(len(l.events))-seq)
	for _, e := range l.events[seq:] {
		out = append(out, e.Copy())
	}
	return out
}

// Len returns the number of events.
func (l *Log) Len() int {
	return len(l.events)
}

// Head returns the hash of the last event, or "" when empty.
func (l *Log) Head() string {
	if len(l.events) == 0 {
		return ""
	}
	return l.events[len(l.events)-1].Hash
}

// Verify checks the integrity of the whole log.
func (l *Log) Verify() error {
	return VerifyChain(l.Snapshot())
}

// VerifyChain checks that every event links to its predecessor, carries the
// expected sequence number and hashes to its stored Hash.
func VerifyChain(evs []Event) error {
	for i := range evs {
		e := &evs[i]
		if i == 0 {
			if e.PrevHash != "" {
				return fmt.Errorf("genesis event (index 0) has non-empty previous hash")
			}
		} else if e.PrevHash != evs[i-1].Hash {
			return fmt.Errorf("chain broken at index %d: previous hash mismatch", i)
		}
		if e.Sequence != uint64(i)+1 {
			return fmt.Errorf("chain broken at index %d: sequence %d", i, e.Sequence)
		}
		if want := Classify(e.Kind); e.Severity != want {
			return fmt.Errorf("integrity failure at index %d: severity %s, classified %s", i, e.Severity, want)
		}

		computed, err := ComputeHash(e)
		if err != nil {
			return fmt.Errorf("failed to recompute hash at index %d: %w", i, err)
		}
		if computed != e.Hash {
			return fmt.Errorf("integrity failure at index %d: computed %s, stored %s", i, computed, e.Hash)
		}
	}
	return nil
}

// normalize puts free-text fields in NFC so equal text always hashes equally.
func normalize(k Kind) Kind {
	switch v := k.(type) {
	case IntensiveTransform:
		v.Description = norm.NFC.String(v.Description)
		return v
	case PolicyViolation:
		v.Kind = norm.NFC.String(v.Kind)
		return v
	case Navigation, Interaction, CoherenceShift, SheetJump:
		return v
	default:
		panic(fmt.Sprintf("events: unhandled kind %T", k))
	}
}
