package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackbeard96/summer-games/internal/domain/shared"
)

func TestScore_DefaultTestPolicy(t *testing.T) {
	cfg := DefaultConfig(KindTest)

	tests := []struct {
		name        string
		goal        float64
		actual      float64
		wantOutcome Outcome
		wantDelta   int
		wantTier    *float64
		wantRewards []Reward
	}{
		{
			name: "exact hit", goal: 80, actual: 80,
			wantOutcome: OutcomeHit, wantDelta: 50, wantTier: ptr(0),
			wantRewards: []Reward{
				{Kind: RewardPP, Name: PPRewardName, Amount: 50},
				{Kind: RewardXP, Name: "Experience", Amount: 25},
			},
		},
		{
			name: "hit at lower tolerance edge", goal: 80, actual: 78,
			wantOutcome: OutcomeHit, wantDelta: 50, wantTier: ptr(0),
		},
		{
			name: "hit at upper tolerance edge", goal: 80, actual: 82,
			wantOutcome: OutcomeHit, wantDelta: 50, wantTier: ptr(0),
		},
		{
			name: "small exceed stays in base tier", goal: 80, actual: 83,
			wantOutcome: OutcomeExceed, wantDelta: 50, wantTier: ptr(0),
		},
		{
			name: "exceed exactly on threshold", goal: 80, actual: 85,
			wantOutcome: OutcomeExceed, wantDelta: 75, wantTier: ptr(5),
		},
		{
			name: "large exceed", goal: 60, actual: 95,
			wantOutcome: OutcomeExceed, wantDelta: 100, wantTier: ptr(10),
			wantRewards: []Reward{
				{Kind: RewardPP, Name: PPRewardName, Amount: 100},
				{Kind: RewardXP, Name: "Experience", Amount: 60},
				{Kind: RewardArtifact, Name: "Overachiever Token", Amount: 1},
			},
		},
		{
			name: "small miss", goal: 80, actual: 77,
			wantOutcome: OutcomeMiss, wantDelta: -10, wantTier: ptr(0),
			wantRewards: []Reward{{Kind: RewardPP, Name: PPRewardName, Amount: -10}},
		},
		{
			name: "miss on threshold", goal: 80, actual: 70,
			wantOutcome: OutcomeMiss, wantDelta: -25, wantTier: ptr(10),
		},
		{
			name: "big miss", goal: 90, actual: 10,
			wantOutcome: OutcomeMiss, wantDelta: -50, wantTier: ptr(20),
			wantRewards: []Reward{{Kind: RewardPP, Name: PPRewardName, Amount: -50}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Score(Input{Goal: tt.goal, Actual: tt.actual, MaxScore: 100}, cfg)
			require.NoError(t, err)

			assert.Equal(t, tt.wantOutcome, res.Outcome)
			assert.Equal(t, tt.wantDelta, res.Delta)
			assert.InDelta(t, tt.actual-tt.goal, res.DiffPercent, 1e-9)
			if tt.wantTier == nil {
				assert.Nil(t, res.Tier)
			} else {
				require.NotNil(t, res.Tier)
				assert.Equal(t, *tt.wantTier, res.Tier.Threshold)
			}
			if tt.wantRewards != nil {
				assert.Equal(t, tt.wantRewards, res.Rewards)
			}
		})
	}
}

func TestScore_DiffPercentUsesMaxScore(t *testing.T) {
	res, err := Score(Input{Goal: 10, Actual: 15, MaxScore: 20}, DefaultConfig(KindTest))
	require.NoError(t, err)

	assert.Equal(t, OutcomeExceed, res.Outcome)
	assert.InDelta(t, 25.0, res.DiffPercent, 1e-9)
	assert.Equal(t, 100, res.Delta)
}

func TestScore_CapLimitsPP(t *testing.T) {
	cfg := Config{
		Tolerance: 0,
		Reward:    TierTable{Cap: 120, Tiers: []Tier{{Threshold: 0, PP: 500}}},
		Penalty:   TierTable{Cap: 30, Tiers: []Tier{{Threshold: 0, PP: 90}}},
	}

	hit, err := Score(Input{Goal: 5, Actual: 5, MaxScore: 10}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 120, hit.Delta)

	miss, err := Score(Input{Goal: 5, Actual: 1, MaxScore: 10}, cfg)
	require.NoError(t, err)
	assert.Equal(t, -30, miss.Delta)
}

func TestScore_NoMatchingTier(t *testing.T) {
	cfg := Config{
		Tolerance: 1,
		Reward:    TierTable{Tiers: []Tier{{Threshold: 10, PP: 40}}},
	}

	t.Run("hit below first reward threshold", func(t *testing.T) {
		res, err := Score(Input{Goal: 50, Actual: 50, MaxScore: 100}, cfg)
		require.NoError(t, err)
		assert.Equal(t, OutcomeHit, res.Outcome)
		assert.Zero(t, res.Delta)
		assert.Nil(t, res.Tier)
		assert.Empty(t, res.Rewards)
	})

	t.Run("miss with empty penalty table", func(t *testing.T) {
		res, err := Score(Input{Goal: 50, Actual: 20, MaxScore: 100}, cfg)
		require.NoError(t, err)
		assert.Equal(t, OutcomeMiss, res.Outcome)
		assert.Zero(t, res.Delta)
		assert.Empty(t, res.Rewards)
	})
}

func TestScore_ZeroPPTierOmitsPPLine(t *testing.T) {
	cfg := Config{
		Reward: TierTable{Tiers: []Tier{{
			Threshold: 0,
			Rewards:   []Reward{{Kind: RewardBadge, Name: "Bullseye", Amount: 1}},
		}}},
	}

	res, err := Score(Input{Goal: 3, Actual: 3, MaxScore: 5}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []Reward{{Kind: RewardBadge, Name: "Bullseye", Amount: 1}}, res.Rewards)
}

func TestScore_MissDropsTierRewards(t *testing.T) {
	cfg := Config{
		Penalty: TierTable{Tiers: []Tier{{
			Threshold: 0, PP: 5,
			Rewards: []Reward{{Kind: RewardXP, Amount: 99}},
		}}},
	}

	res, err := Score(Input{Goal: 4, Actual: 1, MaxScore: 5}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []Reward{{Kind: RewardPP, Name: PPRewardName, Amount: -5}}, res.Rewards)
}

func TestScore_ResultTierIsACopy(t *testing.T) {
	cfg := DefaultConfig(KindTest)
	res, err := Score(Input{Goal: 50, Actual: 50, MaxScore: 100}, cfg)
	require.NoError(t, err)

	res.Tier.Rewards[0].Amount = 1_000
	assert.Equal(t, 25, cfg.Reward.Tiers[0].Rewards[0].Amount)
}

func TestScore_InvalidInput(t *testing.T) {
	cfg := DefaultConfig(KindQuiz)
	cases := map[string]Input{
		"zero max":         {Goal: 1, Actual: 1, MaxScore: 0},
		"negative max":     {Goal: 1, Actual: 1, MaxScore: -5},
		"goal above max":   {Goal: 11, Actual: 1, MaxScore: 10},
		"negative goal":    {Goal: -1, Actual: 1, MaxScore: 10},
		"actual above max": {Goal: 1, Actual: 12, MaxScore: 10},
		"NaN actual":       {Goal: 1, Actual: math.NaN(), MaxScore: 10},
		"infinite max":     {Goal: 1, Actual: 1, MaxScore: math.Inf(1)},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Score(in, cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestScore_InvalidConfig(t *testing.T) {
	cfg := Config{Tolerance: -1}
	_, err := Score(Input{Goal: 1, Actual: 1, MaxScore: 10}, cfg)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

// Sweeps the default policies and checks the sign and cap invariants.
func TestScore_Invariants(t *testing.T) {
	for _, kind := range []string{KindTest, KindExam, KindQuiz, KindHabit, KindStoryGoal} {
		cfg := DefaultConfig(kind)
		for goal := 0.0; goal <= 100; goal += 7 {
			for actual := 0.0; actual <= 100; actual += 3 {
				in := Input{Goal: goal, Actual: actual, MaxScore: 100}
				first, err := Score(in, cfg)
				require.NoError(t, err)
				second, err := Score(in, cfg)
				require.NoError(t, err)
				assert.Equal(t, first, second, "scoring must be deterministic")

				if first.Outcome == OutcomeMiss {
					assert.LessOrEqual(t, first.Delta, 0, "%s goal=%v actual=%v", kind, goal, actual)
					if cfg.Penalty.Cap > 0 {
						assert.LessOrEqual(t, -first.Delta, cfg.Penalty.Cap)
					}
				} else {
					assert.GreaterOrEqual(t, first.Delta, 0, "%s goal=%v actual=%v", kind, goal, actual)
					if cfg.Reward.Cap > 0 {
						assert.LessOrEqual(t, first.Delta, cfg.Reward.Cap)
					}
				}
			}
		}
	}
}

func TestPreview_FallsBackToKindDefaults(t *testing.T) {
	res, err := Preview(KindHabit, Input{Goal: 5, Actual: 5, MaxScore: 7}, Config{})
	require.NoError(t, err)
	assert.Equal(t, 30, res.Delta)

	custom := Config{Reward: TierTable{Tiers: []Tier{{Threshold: 0, PP: 1}}}}
	res, err = Preview(KindHabit, Input{Goal: 5, Actual: 5, MaxScore: 7}, custom)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delta)
}

func ptr(f float64) *float64 { return &f }
