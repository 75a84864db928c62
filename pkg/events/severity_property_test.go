//go:build property
// +build property

package events_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/macawi-ai/domovoi/pkg/events"
)

func TestCoherenceShiftSeverityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("critical iff after < 0.3", prop.ForAll(
		func(before, after float64) bool {
			sev := events.Classify(events.CoherenceShift{Actor: uuid.Nil, Before: before, After: after})
			return (sev == events.SeverityCritical) == (after < 0.3)
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.Property("classification is stable across calls", prop.ForAll(
		func(after float64) bool {
			k := events.CoherenceShift{After: after}
			return events.Classify(k) == events.Classify(k)
		},
		gen.Float64Range(-1, 2),
	))

	properties.TestingRun(t)
}

func TestPolicyViolationSeverityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("critical iff severity > 0.7, otherwise warning", prop.ForAll(
		func(kind string, severity float64) bool {
			sev := events.Classify(events.PolicyViolation{Kind: kind, Severity: severity})
			if severity > 0.7 {
				return sev == events.SeverityCritical
			}
			return sev == events.SeverityWarning
		},
		gen.AlphaString(),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}
