package actor

import (
	"github.com/google/uuid"

	"github.com/macawi-ai/domovoi/pkg/action"
	"github.com/macawi-ai/domovoi/pkg/space"
)

// CollapsePoint is an exploited loss of variety in the target organisation.
// Factor 1.0 is total collapse.
type CollapsePoint struct {
	Description string
	Factor      float64
}

// BlackMatter models a ransomware crew exploiting variety collapse.
type BlackMatter struct {
	state    space.ActorState
	collapse []CollapsePoint
	ransom   float64
	stolenTB float64
}

// NewBlackMatter creates the crew on its shadow sheet with the three
// collapse points observed in the field.
func NewBlackMatter(dims int, opts ...StateOption) *BlackMatter {
	base := []StateOption{
		WithIntensivePotential(0.95),
		WithCoherence(0.8),
		WithSheet(666),
		WithMetadata("attack_type", "ransomware"),
		WithMetadata("origin", "russian_cell"),
	}
	return &BlackMatter{
		state: buildState(dims, append(base, opts...)),
		collapse: []CollapsePoint{
			{Description: "password_reuse_chicken1", Factor: 0.9},
			{Description: "single_point_failure", Factor: 0.8},
			{Description: "no_variety_regulation", Factor: 1.0},
		},
		ransom:   5_900_000,
		stolenTB: 1.0,
	}
}

func (b *BlackMatter) ID() uuid.UUID { return b.state.ID }

// CollapsePoints returns a copy of the exploited weaknesses.
func (b *BlackMatter) CollapsePoints() []CollapsePoint {
	return append([]CollapsePoint(nil), b.collapse...)
}

// SetCollapsePoints replaces the exploited weaknesses.
func (b *BlackMatter) SetCollapsePoints(points ...CollapsePoint) {
	b.collapse = append([]CollapsePoint(nil), points...)
}

// MeanCollapse is the average collapse factor, 0 with no points.
func (b *BlackMatter) MeanCollapse() float64 {
	if len(b.collapse) == 0 {
		return 0
	}
	var sum float64
	for _, p := range b.collapse {
		sum += p.Factor
	}
	return sum / float64(len(b.collapse))
}

// ExploitCollapse paralyses operations when collapse is severe and
// otherwise settles for disruption.
func (b *BlackMatter) ExploitCollapse() action.Action {
	total := b.MeanCollapse()
	if total > 0.7 {
		return action.Intensive{QualityShift: "operational_paralysis", CreatesDimension: true}
	}
	return action.Entropic{CoherenceLoss: total, InstabilityRisk: 0.4}
}

// ThreatenSectorCollapse is the sector-wide extortion threat.
func (b *BlackMatter) ThreatenSectorCollapse() action.Action {
	return action.Intensive{QualityShift: "sector_wide_paralysis", CreatesDimension: true}
}

// Ransom is the demand in variety units.
func (b *BlackMatter) Ransom() float64 { return b.ransom }

// StolenTB is the exfiltrated volume in terabytes.
func (b *BlackMatter) StolenTB() float64 { return b.stolenTB }

// PasswordVarietyCollapse is the variety left when 120 people share one
// password.
func (b *BlackMatter) PasswordVarietyCollapse() float64 { return 1.0 / 120.0 }

// SupplyChainLeverage is the share of sector production held hostage.
func (b *BlackMatter) SupplyChainLeverage() float64 { return 0.4 }

// HarvestTimingAttack is the pressure multiplier for attacking at harvest.
func (b *BlackMatter) HarvestTimingAttack() float64 { return 0.9 }

// Propose exploits existing collapse; BlackMatter does not navigate.
func (b *BlackMatter) Propose(ProposalContext) action.Action {
	return b.ExploitCollapse()
}

func (b *BlackMatter) Signature() space.ActorState { return b.state.Copy() }

func (b *BlackMatter) CanTransformIntensively() bool { return true }

func (b *BlackMatter) KindName() string { return "BlackMatter - Ransomware Consciousness" }

func (b *BlackMatter) Coherence() float64 { return b.state.Coherence }
