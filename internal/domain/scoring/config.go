package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/Blackbeard96/summer-games/internal/domain/shared"
)

// Config is the full scoring policy of an assessment.
type Config struct {
	// Tolerance is the number of score points either side of the goal that
	// still counts as a hit.
	Tolerance float64 `json:"tolerance"`

	// Reward is consulted for hits (at 0) and exceeds (at the diff percent).
	Reward TierTable `json:"reward"`

	// Penalty is consulted for misses at the absolute diff percent.
	Penalty TierTable `json:"penalty"`
}

// IsZero reports whether the config carries no policy at all.
func (c Config) IsZero() bool {
	return c.Tolerance == 0 && c.Reward.IsEmpty() && c.Penalty.IsEmpty() &&
		c.Reward.Cap == 0 && c.Penalty.Cap == 0
}

// Normalize returns a copy with both tables sorted by threshold.
func (c Config) Normalize() Config {
	return Config{
		Tolerance: c.Tolerance,
		Reward:    c.Reward.Sorted(),
		Penalty:   c.Penalty.Sorted(),
	}
}

// Validate checks the config and returns every problem found, joined.
func (c Config) Validate() error {
	var errs []error

	if math.IsNaN(c.Tolerance) || math.IsInf(c.Tolerance, 0) || c.Tolerance < 0 {
		errs = append(errs, fmt.Errorf("tolerance must be a finite number >= 0, got %v", c.Tolerance))
	}
	errs = append(errs, validateTable("reward", c.Reward)...)
	errs = append(errs, validateTable("penalty", c.Penalty)...)

	if len(errs) == 0 {
		return nil
	}
	return shared.WrapError("scoring", "Validate", shared.ErrValidation, "invalid scoring config", errors.Join(errs...))
}

func validateTable(name string, t TierTable) []error {
	var errs []error
	if t.Cap < 0 {
		errs = append(errs, fmt.Errorf("%s cap must be >= 0, got %d", name, t.Cap))
	}

	sorted := t.Sorted()
	for i, tier := range sorted.Tiers {
		if math.IsNaN(tier.Threshold) || tier.Threshold < 0 || tier.Threshold > 100 {
			errs = append(errs, fmt.Errorf("%s tier threshold must be within [0,100], got %v", name, tier.Threshold))
		}
		if i > 0 && tier.Threshold == sorted.Tiers[i-1].Threshold {
			errs = append(errs, fmt.Errorf("%s tier threshold %v is duplicated", name, tier.Threshold))
		}
		if tier.PP < 0 {
			errs = append(errs, fmt.Errorf("%s tier at %v has negative pp %d", name, tier.Threshold, tier.PP))
		}
		for _, r := range tier.Rewards {
			if !r.Kind.IsValid() {
				errs = append(errs, fmt.Errorf("%s tier at %v has unknown reward kind %q", name, tier.Threshold, r.Kind))
			}
			if r.Amount < 0 {
				errs = append(errs, fmt.Errorf("%s tier at %v has negative %s reward", name, tier.Threshold, r.Kind))
			}
		}
	}
	return errs
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFAULTS
// ══════════════════════════════════════════════════════════════════════════════

// Assessment kinds understood by DefaultConfig.
const (
	KindTest      = "test"
	KindExam      = "exam"
	KindQuiz      = "quiz"
	KindHabit     = "habit"
	KindStoryGoal = "story-goal"
)

// DefaultConfig returns the house scoring policy for an assessment kind.
// Unknown kinds fall back to the test policy.
func DefaultConfig(kind string) Config {
	switch kind {
	case KindExam:
		return Config{
			Tolerance: 2,
			Reward: TierTable{Cap: 300, Tiers: []Tier{
				{Threshold: 0, PP: 100, Rewards: []Reward{{Kind: RewardXP, Name: "Experience", Amount: 50}}},
				{Threshold: 5, PP: 150, Rewards: []Reward{{Kind: RewardXP, Name: "Experience", Amount: 75}}},
				{Threshold: 10, PP: 200, Rewards: []Reward{
					{Kind: RewardXP, Name: "Experience", Amount: 100},
					{Kind: RewardArtifact, Name: "Exam Ace Shard", Amount: 1},
				}},
			}},
			Penalty: TierTable{Cap: 100, Tiers: []Tier{
				{Threshold: 0, PP: 20},
				{Threshold: 10, PP: 50},
				{Threshold: 20, PP: 100},
			}},
		}
	case KindQuiz:
		return Config{
			Tolerance: 1,
			Reward: TierTable{Cap: 60, Tiers: []Tier{
				{Threshold: 0, PP: 20, Rewards: []Reward{{Kind: RewardXP, Name: "Experience", Amount: 10}}},
				{Threshold: 10, PP: 40, Rewards: []Reward{{Kind: RewardXP, Name: "Experience", Amount: 20}}},
			}},
			Penalty: TierTable{Cap: 20, Tiers: []Tier{
				{Threshold: 0, PP: 5},
				{Threshold: 20, PP: 20},
			}},
		}
	case KindHabit:
		return Config{
			Tolerance: 0,
			Reward: TierTable{Cap: 50, Tiers: []Tier{
				{Threshold: 0, PP: 30, Rewards: []Reward{{Kind: RewardXP, Name: "Consistency", Amount: 15}}},
				{Threshold: 25, PP: 50, Rewards: []Reward{{Kind: RewardXP, Name: "Consistency", Amount: 25}}},
			}},
			Penalty: TierTable{Cap: 20, Tiers: []Tier{
				{Threshold: 0, PP: 10},
				{Threshold: 50, PP: 20},
			}},
		}
	case KindStoryGoal:
		return Config{
			Tolerance: 0,
			Reward: TierTable{Tiers: []Tier{
				{Threshold: 0, PP: 100, Rewards: []Reward{
					{Kind: RewardXP, Name: "Story Progress", Amount: 50},
					{Kind: RewardArtifact, Name: "Chapter Key", Amount: 1},
				}},
			}},
			Penalty: TierTable{},
		}
	default:
		return Config{
			Tolerance: 2,
			Reward: TierTable{Cap: 150, Tiers: []Tier{
				{Threshold: 0, PP: 50, Rewards: []Reward{{Kind: RewardXP, Name: "Experience", Amount: 25}}},
				{Threshold: 5, PP: 75, Rewards: []Reward{{Kind: RewardXP, Name: "Experience", Amount: 40}}},
				{Threshold: 10, PP: 100, Rewards: []Reward{
					{Kind: RewardXP, Name: "Experience", Amount: 60},
					{Kind: RewardArtifact, Name: "Overachiever Token", Amount: 1},
				}},
			}},
			Penalty: TierTable{Cap: 50, Tiers: []Tier{
				{Threshold: 0, PP: 10},
				{Threshold: 10, PP: 25},
				{Threshold: 20, PP: 50},
			}},
		}
	}
}
