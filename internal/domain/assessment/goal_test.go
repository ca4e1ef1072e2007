package assessment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackbeard96/summer-games/internal/domain/scoring"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
)

func TestNewGoal(t *testing.T) {
	a := newTestAssessment(t)

	g, err := NewGoal(a, "stu-1", 85, t0)
	require.NoError(t, err)
	assert.Equal(t, "a-1", g.AssessmentID)
	assert.Equal(t, 85.0, g.Goal)
	assert.False(t, g.IsEvaluated())

	_, err = NewGoal(a, "stu-1", 120, t0)
	assert.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, a.Lock(t0))
	_, err = NewGoal(a, "stu-2", 50, t0)
	assert.ErrorIs(t, err, shared.ErrAssessmentLocked)
}

func TestGoal_EvaluateRequiresLock(t *testing.T) {
	a := newTestAssessment(t)
	g, err := NewGoal(a, "stu-1", 80, t0)
	require.NoError(t, err)

	_, err = g.Evaluate(a, 80, t0)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestGoal_EvaluateAndRegrade(t *testing.T) {
	a := newTestAssessment(t)
	g, err := NewGoal(a, "stu-1", 80, t0)
	require.NoError(t, err)
	require.NoError(t, a.Lock(t0))

	first, err := g.Evaluate(a, 95, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, scoring.OutcomeExceed, first.Result.Outcome)
	assert.Equal(t, 100, first.Adjustment)
	assert.False(t, first.Regrade)
	assert.Equal(t, 1, g.Revision)
	assert.Equal(t, "goal:a-1:stu-1:r1", g.SourceKey())
	assert.Equal(t, 60, g.XPReward())
	g.Settle(first.Adjustment)

	// Regrade down to a miss only moves the difference.
	second, err := g.Evaluate(a, 70, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, scoring.OutcomeMiss, second.Result.Outcome)
	assert.Equal(t, -25, g.PPDelta)
	assert.Equal(t, -125, second.Adjustment)
	assert.Equal(t, 100, second.Previous)
	assert.True(t, second.Regrade)
	assert.Equal(t, "goal:a-1:stu-1:r2", g.SourceKey())
	assert.Zero(t, g.XPReward())
	g.Settle(second.Adjustment)

	// Same score again is a zero adjustment.
	third, err := g.Evaluate(a, 70, t0.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, third.Adjustment)
	require.NotNil(t, g.Actual)
	assert.Equal(t, 70.0, *g.Actual)
}

func TestGoal_RegradeAfterFlooredPenalty(t *testing.T) {
	a := newTestAssessment(t)
	g, err := NewGoal(a, "stu-1", 90, t0)
	require.NoError(t, err)
	require.NoError(t, a.Lock(t0))

	first, err := g.Evaluate(a, 60, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, -50, first.Adjustment)

	// Balance was 10, so only 10 left it.
	g.Settle(-10)

	second, err := g.Evaluate(a, 90, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, -10, second.Previous)
	assert.Equal(t, 60, second.Adjustment)
}

func TestGoal_EvaluateRejectsOutOfRangeActual(t *testing.T) {
	a := newTestAssessment(t)
	g, err := NewGoal(a, "stu-1", 80, t0)
	require.NoError(t, err)
	require.NoError(t, a.Lock(t0))

	_, err = g.Evaluate(a, -1, t0)
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.False(t, g.IsEvaluated())
}
