// Package scoring turns a student's goal and actual score into a PP delta.
// Everything here is pure: no clocks, no I/O, no randomness.
package scoring

import (
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// OUTCOMES & REWARDS
// ══════════════════════════════════════════════════════════════════════════════

// Outcome labels how the actual score compares to the goal.
type Outcome string

const (
	// OutcomeHit - the actual score landed within tolerance of the goal.
	OutcomeHit Outcome = "hit"
	// OutcomeExceed - the actual score beat the goal by more than the tolerance.
	OutcomeExceed Outcome = "exceed"
	// OutcomeMiss - the actual score fell short of the goal by more than the tolerance.
	OutcomeMiss Outcome = "miss"
)

// IsValid reports whether o is a known outcome.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeHit, OutcomeExceed, OutcomeMiss:
		return true
	default:
		return false
	}
}

// IsPositive reports whether the outcome earns PP rather than costing it.
func (o Outcome) IsPositive() bool {
	return o == OutcomeHit || o == OutcomeExceed
}

// RewardKind classifies an itemized reward.
type RewardKind string

const (
	RewardPP       RewardKind = "pp"
	RewardXP       RewardKind = "xp"
	RewardArtifact RewardKind = "artifact"
	RewardBadge    RewardKind = "badge"
)

// IsValid reports whether k is a known reward kind.
func (k RewardKind) IsValid() bool {
	switch k {
	case RewardPP, RewardXP, RewardArtifact, RewardBadge:
		return true
	default:
		return false
	}
}

// Reward is one line of an itemized reward list.
type Reward struct {
	Kind   RewardKind `json:"kind"`
	Name   string     `json:"name,omitempty"`
	Amount int        `json:"amount"`
}

// ══════════════════════════════════════════════════════════════════════════════
// TIERS
// ══════════════════════════════════════════════════════════════════════════════

// Tier maps a threshold, in percent of the assessment max score, to PP and
// extra rewards. A tier applies when the measured value is at least Threshold.
type Tier struct {
	Threshold float64  `json:"threshold"`
	PP        int      `json:"pp"`
	Rewards   []Reward `json:"rewards,omitempty"`
}

// TierTable is an ordered set of tiers sharing one cap.
// Cap limits the PP of any tier; 0 means uncapped.
type TierTable struct {
	Tiers []Tier `json:"tiers"`
	Cap   int    `json:"cap,omitempty"`
}

// IsEmpty reports whether the table has no tiers.
func (t TierTable) IsEmpty() bool {
	return len(t.Tiers) == 0
}

// Sorted returns a deep copy of the table with tiers ordered by threshold.
func (t TierTable) Sorted() TierTable {
	if t.Tiers == nil {
		return TierTable{Cap: t.Cap}
	}
	out := TierTable{Cap: t.Cap, Tiers: make([]Tier, len(t.Tiers))}
	for i, tier := range t.Tiers {
		out.Tiers[i] = tier.clone()
	}
	sort.SliceStable(out.Tiers, func(i, j int) bool {
		return out.Tiers[i].Threshold < out.Tiers[j].Threshold
	})
	return out
}

// Lookup returns the tier with the greatest threshold that is <= value,
// or nil when value sits below every threshold. Tiers need not be sorted.
func (t TierTable) Lookup(value float64) *Tier {
	var best *Tier
	for i := range t.Tiers {
		tier := &t.Tiers[i]
		if tier.Threshold > value {
			continue
		}
		if best == nil || tier.Threshold > best.Threshold {
			best = tier
		}
	}
	if best == nil {
		return nil
	}
	c := best.clone()
	return &c
}

// CapPP clamps pp to the table cap.
func (t TierTable) CapPP(pp int) int {
	if t.Cap > 0 && pp > t.Cap {
		return t.Cap
	}
	return pp
}

func (t Tier) clone() Tier {
	c := t
	if t.Rewards != nil {
		c.Rewards = append([]Reward(nil), t.Rewards...)
	}
	return c
}
