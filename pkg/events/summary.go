package events

// Tally counts events by kind type and by severity.
type Tally struct {
	Total      int              `json:"total"`
	ByType     map[string]int   `json:"by_type"`
	BySeverity map[Severity]int `json:"by_severity"`
}

// Count builds a Tally over evs.
func Count(evs []Event) Tally {
	t := Tally{
		Total:      len(evs),
		ByType:     make(map[string]int),
		BySeverity: make(map[Severity]int),
	}
	for _, e := range evs {
		t.ByType[e.Kind.Type()]++
		t.BySeverity[e.Severity]++
	}
	return t
}

// Highest returns the most urgent severity present, or "" for no events.
func (t Tally) Highest() Severity {
	var best Severity
	for s, n := range t.BySeverity {
		if n > 0 && s.Rank() > best.Rank() {
			best = s
		}
	}
	if best == "" && t.BySeverity[SeverityInformational] > 0 {
		return SeverityInformational
	}
	return best
}
