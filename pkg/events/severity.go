package events

import "fmt"

// Severity is the audit classification of an event.
type Severity string

const (
	SeverityCritical      Severity = "CRITICAL"
	SeverityWarning       Severity = "WARNING"
	SeverityNormal        Severity = "NORMAL"
	SeverityMandatory     Severity = "MANDATORY"
	SeverityInformational Severity = "INFORMATIONAL"
)

// Thresholds used by Classify.
const (
	CriticalCoherence         = 0.3
	CriticalViolationSeverity = 0.7
)

// Classify derives the severity of an event from its kind alone.
func Classify(k Kind) Severity {
	switch v := k.(type) {
	case Navigation:
		if v.Success {
			return SeverityNormal
		}
		return SeverityWarning
	case IntensiveTransform:
		return SeverityMandatory
	case Interaction:
		return SeverityInformational
	case CoherenceShift:
		if v.After < CriticalCoherence {
			return SeverityCritical
		}
		return SeverityWarning
	case SheetJump:
		return SeverityMandatory
	case PolicyViolation:
		if v.Severity > CriticalViolationSeverity {
			return SeverityCritical
		}
		return SeverityWarning
	default:
		panic(fmt.Sprintf("events: unhandled kind %T", k))
	}
}

// Color maps the severity onto the IEC 60073 indicator colours used by
// operator dashboards.
func (s Severity) Color() string {
	switch s {
	case SeverityCritical:
		return "red"
	case SeverityWarning:
		return "yellow"
	case SeverityNormal:
		return "green"
	case SeverityMandatory:
		return "blue"
	case SeverityInformational:
		return "white"
	default:
		return ""
	}
}

// Rank orders severities for summaries; higher is more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityWarning:
		return 3
	case SeverityMandatory:
		return 2
	case SeverityNormal:
		return 1
	default:
		return 0
	}
}
