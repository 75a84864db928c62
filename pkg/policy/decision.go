// Package policy is the decision point placed in front of every proposed
// action. It is an anomaly monitor layered on normal operation: anything not
// explicitly flagged is allowed.
package policy

import (
	"errors"
	"fmt"
	"math"

	"github.com/macawi-ai/domovoi/pkg/action"
	"github.com/macawi-ai/domovoi/pkg/space"
)

// ErrInvalidThreshold is returned for a MaxCoherenceLoss outside [0,1].
var ErrInvalidThreshold = errors.New("policy: max coherence loss must be in [0,1]")

// Verdict is the outcome class of a decision.
type Verdict string

const (
	VerdictAllow   Verdict = "ALLOW"
	VerdictMonitor Verdict = "MONITOR"
	VerdictBlock   Verdict = "BLOCK"
)

// strictness orders verdicts; rules may only move a decision upward.
func (v Verdict) strictness() int {
	switch v {
	case VerdictBlock:
		return 2
	case VerdictMonitor:
		return 1
	default:
		return 0
	}
}

// ReasonCoherenceLoss is the block reason for an entropic action over threshold.
const ReasonCoherenceLoss = "Coherence loss exceeds threshold"

// Decision is the verdict on one proposed action. Reason is set for blocks
// and for rule escalations.
type Decision struct {
	Verdict Verdict `json:"verdict"`
	Reason  string  `json:"reason,omitempty"`
	Rule    string  `json:"rule,omitempty"`
}

func Allow() Decision { return Decision{Verdict: VerdictAllow} }

func Monitor() Decision { return Decision{Verdict: VerdictMonitor} }

func Block(reason string) Decision { return Decision{Verdict: VerdictBlock, Reason: reason} }

// Blocked reports whether the action must be suppressed.
func (d Decision) Blocked() bool { return d.Verdict == VerdictBlock }

func (d Decision) String() string {
	if d.Reason == "" {
		return string(d.Verdict)
	}
	return fmt.Sprintf("%s(%s)", d.Verdict, d.Reason)
}

// Config holds the protection switches. It is immutable once installed.
type Config struct {
	AllowExtensive   bool    `json:"allow_extensive" yaml:"allow_extensive"`
	MonitorIntensive bool    `json:"monitor_intensive" yaml:"monitor_intensive"`
	BlockEntropic    bool    `json:"block_entropic" yaml:"block_entropic"`
	MaxCoherenceLoss float64 `json:"max_coherence_loss" yaml:"max_coherence_loss"`
}

// DefaultConfig allows extensive change, monitors intensive change and blocks
// entropic change that costs more than 0.3 coherence.
func DefaultConfig() Config {
	return Config{
		AllowExtensive:   true,
		MonitorIntensive: true,
		BlockEntropic:    true,
		MaxCoherenceLoss: 0.3,
	}
}

// Validate rejects thresholds outside [0,1].
func (c Config) Validate() error {
	if math.IsNaN(c.MaxCoherenceLoss) || c.MaxCoherenceLoss < 0 || c.MaxCoherenceLoss > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, c.MaxCoherenceLoss)
	}
	return nil
}

// Decide applies the fixed rule precedence to a proposed action. The first
// matching rule wins:
//
//  1. Extensive with AllowExtensive: Allow.
//  2. Intensive with MonitorIntensive: Monitor.
//  3. Entropic: Block when CoherenceLoss > MaxCoherenceLoss, else Monitor.
//  4. Everything else: Allow.
//
// BlockEntropic does not gate rule 3; an entropic action is always weighed
// against the threshold.
func Decide(a action.Action, proposer space.ActorState, cfg Config) Decision {
	switch v := a.(type) {
	case action.Extensive:
		if cfg.AllowExtensive {
			return Allow()
		}
	case action.Intensive:
		if cfg.MonitorIntensive {
			return Monitor()
		}
	case action.Entropic:
		if v.CoherenceLoss > cfg.MaxCoherenceLoss {
			return Block(ReasonCoherenceLoss)
		}
		return Monitor()
	case action.Navigation:
	default:
		panic(fmt.Sprintf("policy: unhandled action %T", a))
	}
	return Allow()
}
