package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackbeard96/summer-games/internal/domain/scoring"
)

func TestScoreFrom(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		outcome scoring.Outcome
		wantErr string
	}{
		{name: "hit", body: `{"kind":"test","goal":80,"actual":80,"max_score":100}`, outcome: scoring.OutcomeHit},
		{name: "miss", body: `{"kind":"exam","goal":90,"actual":40,"max_score":100}`, outcome: scoring.OutcomeMiss},
		{name: "kind defaults to test", body: `{"goal":50,"actual":95,"max_score":100}`, outcome: scoring.OutcomeExceed},
		{name: "unknown kind", body: `{"kind":"essay","goal":1,"actual":1,"max_score":10}`, wantErr: "unknown assessment kind"},
		{name: "unknown field", body: `{"goal":1,"actual":1,"max_score":10,"bonus":3}`, wantErr: "decode score request"},
		{name: "actual above max", body: `{"goal":1,"actual":11,"max_score":10}`, wantErr: "actual must be within"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := scoreFrom(strings.NewReader(tt.body))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, res.Outcome)
			if tt.outcome == scoring.OutcomeMiss {
				assert.LessOrEqual(t, res.Delta, 0)
			} else {
				assert.GreaterOrEqual(t, res.Delta, 0)
			}
		})
	}
}

func TestScoreFrom_CustomTable(t *testing.T) {
	body := `{
		"goal": 70, "actual": 90, "max_score": 100,
		"scoring": {
			"tolerance": 2,
			"reward": {"tiers": [{"threshold": 0, "pp": 10}, {"threshold": 15, "pp": 40}], "cap": 30},
			"penalty": {"tiers": [{"threshold": 0, "pp": 5}]}
		}
	}`
	res, err := scoreFrom(strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, scoring.OutcomeExceed, res.Outcome)
	assert.Equal(t, 30, res.Delta)
	assert.InDelta(t, 20.0, res.DiffPercent, 1e-9)
}

func TestScoreCommand_ReadsStdin(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetIn(strings.NewReader(`{"kind":"quiz","goal":8,"actual":8,"max_score":10}`))
	root.SetArgs([]string{"score", "--compact"})

	require.NoError(t, root.Execute())

	var res scoring.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, scoring.OutcomeHit, res.Outcome)
}

func TestTokenCommand_HashPassphrase(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--hash-passphrase", "long enough secret"})

	require.NoError(t, root.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "$2"))
}

func TestTokenCommand_RejectsShortPassphrase(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"token", "--hash-passphrase", "short"})

	assert.Error(t, root.Execute())
}
