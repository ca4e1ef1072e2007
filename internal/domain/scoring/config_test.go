package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackbeard96/summer-games/internal/domain/shared"
)

func TestDefaultConfig_AllKindsValid(t *testing.T) {
	for _, kind := range []string{KindTest, KindExam, KindQuiz, KindHabit, KindStoryGoal, "unknown"} {
		assert.NoError(t, DefaultConfig(kind).Validate(), kind)
	}
	assert.Equal(t, DefaultConfig(KindTest), DefaultConfig("unknown"))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "empty config is valid", cfg: Config{}},
		{
			name:    "negative tolerance",
			cfg:     Config{Tolerance: -0.5},
			wantErr: "tolerance",
		},
		{
			name:    "threshold over 100",
			cfg:     Config{Reward: TierTable{Tiers: []Tier{{Threshold: 101}}}},
			wantErr: "within [0,100]",
		},
		{
			name:    "duplicate thresholds",
			cfg:     Config{Penalty: TierTable{Tiers: []Tier{{Threshold: 5, PP: 1}, {Threshold: 5, PP: 2}}}},
			wantErr: "duplicated",
		},
		{
			name:    "negative pp",
			cfg:     Config{Reward: TierTable{Tiers: []Tier{{Threshold: 0, PP: -1}}}},
			wantErr: "negative pp",
		},
		{
			name:    "negative cap",
			cfg:     Config{Reward: TierTable{Cap: -10}},
			wantErr: "cap",
		},
		{
			name:    "unknown reward kind",
			cfg:     Config{Reward: TierTable{Tiers: []Tier{{Rewards: []Reward{{Kind: "gems", Amount: 1}}}}}},
			wantErr: "unknown reward kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrValidation)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_NormalizeSortsWithoutMutating(t *testing.T) {
	cfg := Config{Reward: TierTable{Cap: 9, Tiers: []Tier{{Threshold: 20, PP: 3}, {Threshold: 0, PP: 1}, {Threshold: 10, PP: 2}}}}

	norm := cfg.Normalize()

	require.Len(t, norm.Reward.Tiers, 3)
	assert.Equal(t, []float64{0, 10, 20}, []float64{
		norm.Reward.Tiers[0].Threshold, norm.Reward.Tiers[1].Threshold, norm.Reward.Tiers[2].Threshold,
	})
	assert.Equal(t, 9, norm.Reward.Cap)
	assert.Equal(t, 20.0, cfg.Reward.Tiers[0].Threshold)
}

func TestTierTable_Lookup(t *testing.T) {
	table := TierTable{Tiers: []Tier{{Threshold: 10, PP: 2}, {Threshold: 0, PP: 1}, {Threshold: 25, PP: 3}}}

	assert.Nil(t, table.Lookup(-1))
	assert.Equal(t, 1, table.Lookup(0).PP)
	assert.Equal(t, 1, table.Lookup(9.99).PP)
	assert.Equal(t, 2, table.Lookup(10).PP)
	assert.Equal(t, 3, table.Lookup(100).PP)
	assert.Nil(t, TierTable{}.Lookup(50))
}

func TestConfig_IsZero(t *testing.T) {
	assert.True(t, Config{}.IsZero())
	assert.False(t, Config{Tolerance: 1}.IsZero())
	assert.False(t, DefaultConfig(KindQuiz).IsZero())
}
