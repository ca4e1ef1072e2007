package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackbeard96/summer-games/internal/domain/assessment"
	"github.com/Blackbeard96/summer-games/internal/domain/session"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/internal/domain/student"
)

var t0 = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

func addStudent(t *testing.T, s *Store, id string, pp int) {
	t.Helper()
	st, err := student.NewStudent(student.NewStudentParams{ID: id, ClassID: "c1", DisplayName: id, InitialPP: pp, Now: t0})
	require.NoError(t, err)
	require.NoError(t, s.Students().Create(context.Background(), st))
}

func balance(t *testing.T, s *Store, id string) int {
	t.Helper()
	st, err := s.Students().GetByID(context.Background(), id)
	require.NoError(t, err)
	return st.PowerPoints.Int()
}

// evaluate loads the stored goal and grades it, the way RecordScore does.
func evaluate(t *testing.T, s *Store, assessmentID, studentID string, actual float64) (*assessment.Assessment, *assessment.Goal, student.PPChange) {
	t.Helper()
	ctx := context.Background()
	a, err := s.Assessments().GetByID(ctx, assessmentID)
	require.NoError(t, err)
	g, err := s.Goals().Get(ctx, assessmentID, studentID)
	require.NoError(t, err)

	ev, err := g.Evaluate(a, actual, t0.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, a.MarkGraded(t0.Add(time.Hour)))
	return a, g, student.PPChange{
		StudentID: studentID,
		Delta:     ev.Adjustment,
		Reason:    student.ReasonGoal,
		SourceKey: g.SourceKey(),
		At:        t0.Add(time.Hour),
	}
}

func lockedAssessment(t *testing.T, s *Store, studentIDs ...string) *assessment.Assessment {
	t.Helper()
	ctx := context.Background()
	a, err := assessment.NewAssessment(assessment.NewAssessmentParams{
		ID: "a1", ClassID: "c1", Title: "Fractions", Kind: assessment.KindTest, MaxScore: 100, Now: t0,
	})
	require.NoError(t, err)
	require.NoError(t, s.Assessments().Create(ctx, a))
	for _, id := range studentIDs {
		g, err := assessment.NewGoal(a, id, 90, t0)
		require.NoError(t, err)
		require.NoError(t, s.Goals().Save(ctx, g))
	}
	require.NoError(t, a.Lock(t0))
	require.NoError(t, s.Assessments().Update(ctx, a))
	return a
}

func TestSaveEvaluation_StaleCopyConflicts(t *testing.T) {
	s := NewStore()
	addStudent(t, s, "ana", 0)
	lockedAssessment(t, s, "ana")
	ctx := context.Background()

	a1, g1, c1 := evaluate(t, s, "a1", "ana", 90)
	a2, g2, c2 := evaluate(t, s, "a1", "ana", 95)

	_, err := s.Goals().SaveEvaluation(ctx, a1, g1, c1)
	require.NoError(t, err)

	_, err = s.Goals().SaveEvaluation(ctx, a2, g2, c2)
	assert.ErrorIs(t, err, shared.ErrConcurrentModification)
	assert.True(t, shared.IsRetryable(err))
	assert.Equal(t, 50, balance(t, s, "ana"))

	// A stale no-op must not overwrite the winner either.
	_, err = s.Goals().SaveEvaluation(ctx, a2, g2, student.PPChange{})
	assert.ErrorIs(t, err, shared.ErrConcurrentModification)

	stored, err := s.Goals().Get(ctx, "a1", "ana")
	require.NoError(t, err)
	require.NotNil(t, stored.Actual)
	assert.Equal(t, 90.0, *stored.Actual)
	assert.Equal(t, 1, stored.Revision)
}

func TestSaveEvaluation_TracksAppliedPP(t *testing.T) {
	s := NewStore()
	addStudent(t, s, "ben", 10)
	lockedAssessment(t, s, "ben")
	ctx := context.Background()

	a, g, c := evaluate(t, s, "a1", "ben", 60)
	entry, err := s.Goals().SaveEvaluation(ctx, a, g, c)
	require.NoError(t, err)
	assert.Equal(t, -50, entry.Delta)
	assert.Equal(t, -10, entry.Applied)

	stored, err := s.Goals().Get(ctx, "a1", "ben")
	require.NoError(t, err)
	assert.Equal(t, -50, stored.PPDelta)
	assert.Equal(t, -10, stored.PPApplied)
}

func TestSaveAward_StaleRoundConflicts(t *testing.T) {
	s := NewStore()
	addStudent(t, s, "ana", 0)
	ctx := context.Background()

	room, err := session.NewRoom(session.NewRoomParams{ID: "r1", ClassID: "c1", TeacherID: "t1", Now: t0})
	require.NoError(t, err)
	require.NoError(t, s.Sessions().Create(ctx, room))
	require.NoError(t, s.Sessions().AddParticipant(ctx, "r1", session.Participant{StudentID: "ana", JoinedAt: t0}))

	first, err := s.Sessions().GetByID(ctx, "r1")
	require.NoError(t, err)
	second, err := s.Sessions().GetByID(ctx, "r1")
	require.NoError(t, err)

	c1, err := first.PlanAward(session.Award{Amount: 10, Reason: "warm-up"}, t0)
	require.NoError(t, err)
	c2, err := second.PlanAward(session.Award{Amount: 10, Reason: "warm-up"}, t0)
	require.NoError(t, err)

	_, err = s.Sessions().SaveAward(ctx, first, c1)
	require.NoError(t, err)

	_, err = s.Sessions().SaveAward(ctx, second, c2)
	assert.ErrorIs(t, err, shared.ErrConcurrentModification)
	assert.Equal(t, 10, balance(t, s, "ana"))
}
