// Package store persists simulation event logs to SQL databases and Redis
// streams.
package store

import (
	"context"
	"errors"

	"github.com/macawi-ai/domovoi/pkg/events"
)

// ErrEmptyRunID is returned when events are written without a run id.
var ErrEmptyRunID = errors.New("store: run id is required")

// Sink receives the event log of a run.
type Sink interface {
	Write(ctx context.Context, runID string, evs []events.Event) error
}

// EventStore is a queryable Sink.
type EventStore interface {
	Sink
	Append(ctx context.Context, runID string, evs []events.Event) error
	List(ctx context.Context, runID string) ([]events.Event, error)
	Close() error
}

// WriteAll writes evs to every sink and joins the failures.
func WriteAll(ctx context.Context, runID string, evs []events.Event, sinks ...Sink) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Write(ctx, runID, evs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
