package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackbeard96/summer-games/internal/domain/assessment"
	"github.com/Blackbeard96/summer-games/internal/domain/scoring"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/internal/domain/student"
)

func TestRecordScore_ExceedThenRegradeToMiss(t *testing.T) {
	f := newFixture(t)
	f.student("ana", "c1", 200)
	a := f.testAssessment("c1")

	_, err := f.goals.Handle(f.ctx, SetGoalCommand{AssessmentID: a.ID, StudentID: "ana", Goal: 80})
	require.NoError(t, err)
	f.lock(a.ID)
	f.pub.reset()

	res, err := f.scores.Handle(f.ctx, RecordScoreCommand{AssessmentID: a.ID, StudentID: "ana", Actual: 95})
	require.NoError(t, err)
	assert.Equal(t, scoring.OutcomeExceed, res.Evaluation.Result.Outcome)
	assert.Equal(t, 100, res.Evaluation.Adjustment)
	assert.False(t, res.Evaluation.Regrade)
	require.NotNil(t, res.Entry)
	assert.Equal(t, student.ReasonGoal, res.Entry.Reason)
	assert.Equal(t, "goal:"+a.ID+":ana:r1", res.Entry.SourceKey)
	assert.Equal(t, []shared.EventType{shared.EventGoalEvaluated, shared.EventPPChanged}, f.pub.types())

	pp, xp := f.balance("ana")
	assert.Equal(t, 300, pp)
	assert.Equal(t, 60, xp)

	stored, err := f.store.Assessments().GetByID(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusGraded, stored.Status)

	// Regrade: only the difference to the first evaluation is booked.
	res, err = f.scores.Handle(f.ctx, RecordScoreCommand{AssessmentID: a.ID, StudentID: "ana", Actual: 70})
	require.NoError(t, err)
	assert.Equal(t, scoring.OutcomeMiss, res.Evaluation.Result.Outcome)
	assert.True(t, res.Evaluation.Regrade)
	assert.Equal(t, -125, res.Evaluation.Adjustment)
	assert.Equal(t, student.ReasonRegrade, res.Entry.Reason)
	assert.Equal(t, "goal:"+a.ID+":ana:r2", res.Entry.SourceKey)

	pp, xp = f.balance("ana")
	assert.Equal(t, 175, pp)
	assert.Equal(t, 0, xp)
}

func TestRecordScore_SameRegradeBooksNothing(t *testing.T) {
	f := newFixture(t)
	f.student("ana", "c1", 0)
	a := f.testAssessment("c1")
	_, err := f.goals.Handle(f.ctx, SetGoalCommand{AssessmentID: a.ID, StudentID: "ana", Goal: 80})
	require.NoError(t, err)
	f.lock(a.ID)

	_, err = f.scores.Handle(f.ctx, RecordScoreCommand{AssessmentID: a.ID, StudentID: "ana", Actual: 81})
	require.NoError(t, err)
	f.pub.reset()

	res, err := f.scores.Handle(f.ctx, RecordScoreCommand{AssessmentID: a.ID, StudentID: "ana", Actual: 79})
	require.NoError(t, err)
	assert.Equal(t, scoring.OutcomeHit, res.Evaluation.Result.Outcome)
	assert.Equal(t, 0, res.Evaluation.Adjustment)
	assert.Nil(t, res.Entry)
	assert.Equal(t, []shared.EventType{shared.EventGoalEvaluated}, f.pub.types())

	pp, _ := f.balance("ana")
	assert.Equal(t, 50, pp)
}

func TestRecordScore_PenaltyFloorsAtZero(t *testing.T) {
	f := newFixture(t)
	f.student("ben", "c1", 10)
	a := f.testAssessment("c1")
	_, err := f.goals.Handle(f.ctx, SetGoalCommand{AssessmentID: a.ID, StudentID: "ben", Goal: 90})
	require.NoError(t, err)
	f.lock(a.ID)

	res, err := f.scores.Handle(f.ctx, RecordScoreCommand{AssessmentID: a.ID, StudentID: "ben", Actual: 60})
	require.NoError(t, err)
	assert.Equal(t, -50, res.Evaluation.Adjustment)
	assert.Equal(t, -50, res.Entry.Delta)
	assert.Equal(t, -10, res.Entry.Applied)
	assert.Equal(t, 0, res.Entry.BalanceAfter)
}

func TestRecordScore_RegradeAfterFlooredPenalty(t *testing.T) {
	f := newFixture(t)
	f.student("ben", "c1", 10)
	f.student("cal", "c1", 10)
	a := f.testAssessment("c1")
	for _, id := range []string{"ben", "cal"} {
		_, err := f.goals.Handle(f.ctx, SetGoalCommand{AssessmentID: a.ID, StudentID: id, Goal: 90})
		require.NoError(t, err)
	}
	f.lock(a.ID)

	_, err := f.scores.Handle(f.ctx, RecordScoreCommand{AssessmentID: a.ID, StudentID: "ben", Actual: 60})
	require.NoError(t, err)
	res, err := f.scores.Handle(f.ctx, RecordScoreCommand{AssessmentID: a.ID, StudentID: "ben", Actual: 90})
	require.NoError(t, err)
	assert.Equal(t, -10, res.Evaluation.Previous)
	assert.Equal(t, 60, res.Evaluation.Adjustment)
	assert.Equal(t, 50, res.Goal.PPApplied)

	_, err = f.scores.Handle(f.ctx, RecordScoreCommand{AssessmentID: a.ID, StudentID: "cal", Actual: 90})
	require.NoError(t, err)

	ben, _ := f.balance("ben")
	cal, _ := f.balance("cal")
	assert.Equal(t, 60, cal)
	assert.Equal(t, cal, ben)
}

func TestRecordScore_Rejections(t *testing.T) {
	f := newFixture(t)
	f.student("ana", "c1", 0)
	f.student("cal", "c1", 0)
	a := f.testAssessment("c1")
	_, err := f.goals.Handle(f.ctx, SetGoalCommand{AssessmentID: a.ID, StudentID: "ana", Goal: 80})
	require.NoError(t, err)

	_, err = f.scores.Handle(f.ctx, RecordScoreCommand{AssessmentID: a.ID, StudentID: "ana", Actual: 80})
	assert.ErrorIs(t, err, shared.ErrAssessmentNotReady)

	f.lock(a.ID)

	_, err = f.scores.Handle(f.ctx, RecordScoreCommand{AssessmentID: a.ID, StudentID: "cal", Actual: 80})
	assert.ErrorIs(t, err, shared.ErrGoalNotFound)

	_, err = f.scores.Handle(f.ctx, RecordScoreCommand{AssessmentID: a.ID, StudentID: "ana", Actual: 101})
	assert.True(t, shared.IsValidation(err))

	_, err = f.scores.Handle(f.ctx, RecordScoreCommand{AssessmentID: "missing", StudentID: "ana", Actual: 1})
	assert.ErrorIs(t, err, shared.ErrAssessmentNotFound)

	_, err = f.scores.Handle(f.ctx, RecordScoreCommand{StudentID: "ana", Actual: 1})
	assert.True(t, shared.IsValidation(err))
}

func TestRecordScore_RetriesConflicts(t *testing.T) {
	f := newFixture(t)
	f.student("ana", "c1", 0)
	a := f.testAssessment("c1")
	_, err := f.goals.Handle(f.ctx, SetGoalCommand{AssessmentID: a.ID, StudentID: "ana", Goal: 80})
	require.NoError(t, err)
	f.lock(a.ID)

	f.store.FailNextApply = shared.ErrConcurrentModification
	res, err := f.scores.Handle(f.ctx, RecordScoreCommand{AssessmentID: a.ID, StudentID: "ana", Actual: 80})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 1, res.Goal.Revision)

	pp, _ := f.balance("ana")
	assert.Equal(t, 50, pp)
}

func TestRecordScore_StoryGoalHasNoPenalty(t *testing.T) {
	f := newFixture(t)
	f.student("ana", "c1", 40)
	a, err := f.assessments.Handle(f.ctx, CreateAssessmentCommand{
		ClassID: "c1", Title: "Chapter 3", Kind: assessment.KindStoryGoal, MaxScore: 1,
	})
	require.NoError(t, err)
	_, err = f.goals.Handle(f.ctx, SetGoalCommand{AssessmentID: a.ID, StudentID: "ana", Goal: 1})
	require.NoError(t, err)
	f.lock(a.ID)

	res, err := f.scores.Handle(f.ctx, RecordScoreCommand{AssessmentID: a.ID, StudentID: "ana", Actual: 0})
	require.NoError(t, err)
	assert.Equal(t, scoring.OutcomeMiss, res.Evaluation.Result.Outcome)
	assert.Equal(t, 0, res.Evaluation.Adjustment)
	assert.Nil(t, res.Entry)
}
