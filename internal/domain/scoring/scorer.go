package scoring

import (
	"math"

	"github.com/Blackbeard96/summer-games/internal/domain/shared"
)

// PPRewardName labels the PP line item in Result.Rewards.
const PPRewardName = "Power Points"

// Input is one goal/actual pair on an assessment.
type Input struct {
	Goal     float64 `json:"goal"`
	Actual   float64 `json:"actual"`
	MaxScore float64 `json:"max_score"`
}

// Validate checks that max score is positive and both scores fall in [0, MaxScore].
func (in Input) Validate() error {
	if !finite(in.MaxScore) || in.MaxScore <= 0 {
		return shared.Validationf("scoring", "Score", "max score must be a finite number > 0, got %v", in.MaxScore)
	}
	if !finite(in.Goal) || in.Goal < 0 || in.Goal > in.MaxScore {
		return shared.Validationf("scoring", "Score", "goal must be within [0,%v], got %v", in.MaxScore, in.Goal)
	}
	if !finite(in.Actual) || in.Actual < 0 || in.Actual > in.MaxScore {
		return shared.Validationf("scoring", "Score", "actual must be within [0,%v], got %v", in.MaxScore, in.Actual)
	}
	return nil
}

// Result is the outcome of scoring one goal.
type Result struct {
	Outcome     Outcome  `json:"outcome"`
	Delta       int      `json:"delta"`
	DiffPercent float64  `json:"diff_percent"`
	Tier        *Tier    `json:"tier,omitempty"`
	Rewards     []Reward `json:"rewards"`
}

// Score evaluates in against cfg.
//
// A hit pays the reward tier at 0, an exceed pays the reward tier at the diff
// percent, a miss costs the penalty tier at the absolute diff percent. PP is
// clamped to the table cap, and a miss never produces a positive delta.
func Score(in Input, cfg Config) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	diff := in.Actual - in.Goal
	res := Result{
		DiffPercent: diff * 100 / in.MaxScore,
		Rewards:     []Reward{},
	}

	var table TierTable
	var at float64
	switch {
	case math.Abs(diff) <= cfg.Tolerance:
		res.Outcome = OutcomeHit
		table, at = cfg.Reward, 0
	case diff > 0:
		res.Outcome = OutcomeExceed
		table, at = cfg.Reward, res.DiffPercent
	default:
		res.Outcome = OutcomeMiss
		table, at = cfg.Penalty, -res.DiffPercent
	}

	res.Tier = table.Lookup(at)
	if res.Tier == nil {
		return res, nil
	}

	pp := table.CapPP(res.Tier.PP)
	if res.Outcome == OutcomeMiss {
		res.Delta = -pp
	} else {
		res.Delta = pp
	}

	if res.Delta != 0 {
		res.Rewards = append(res.Rewards, Reward{Kind: RewardPP, Name: PPRewardName, Amount: res.Delta})
	}
	if res.Outcome != OutcomeMiss {
		res.Rewards = append(res.Rewards, res.Tier.Rewards...)
	}
	return res, nil
}

// Preview scores with the default policy for kind when cfg is empty.
func Preview(kind string, in Input, cfg Config) (Result, error) {
	if cfg.IsZero() {
		cfg = DefaultConfig(kind)
	}
	return Score(in, cfg)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
