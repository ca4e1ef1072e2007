package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackbeard96/summer-games/internal/domain/assessment"
	"github.com/Blackbeard96/summer-games/internal/domain/leaderboard"
	"github.com/Blackbeard96/summer-games/internal/domain/scoring"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/internal/domain/student"
	"github.com/Blackbeard96/summer-games/internal/infrastructure/persistence/memory"
	"github.com/Blackbeard96/summer-games/pkg/circuitbreaker"
)

var t0 = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type mapCache struct {
	boards  map[string][]leaderboard.Entry
	readErr error
}

func newMapCache() *mapCache { return &mapCache{boards: map[string][]leaderboard.Entry{}} }

func (c *mapCache) Top(_ context.Context, classID string, limit int) ([]leaderboard.Entry, error) {
	if c.readErr != nil {
		return nil, c.readErr
	}
	b, ok := c.boards[classID]
	if !ok {
		return nil, leaderboard.ErrCacheMiss
	}
	return leaderboard.Build(b).Top(limit), nil
}

func (c *mapCache) Replace(_ context.Context, classID string, entries []leaderboard.Entry) error {
	c.boards[classID] = append([]leaderboard.Entry(nil), entries...)
	return nil
}

func (c *mapCache) UpdateScore(_ context.Context, classID string, e leaderboard.Entry) error {
	c.boards[classID] = append(c.boards[classID], e)
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, classID string) error {
	delete(c.boards, classID)
	return nil
}

type failingSource struct{ calls int }

func (s *failingSource) ClassStandings(context.Context, string) ([]leaderboard.Entry, error) {
	s.calls++
	return nil, errors.New("connection refused")
}

func seed(t *testing.T, store *memory.Store, class string, pp map[string]int) {
	t.Helper()
	ctx := context.Background()
	for id, balance := range pp {
		s, err := student.NewStudent(student.NewStudentParams{ID: id, ClassID: class, InitialPP: balance, Now: t0})
		require.NoError(t, err)
		require.NoError(t, store.Students().Create(ctx, s))
	}
}

func TestGetLeaderboard_MissFillsCache(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "c1", map[string]int{"ana": 300, "ben": 120, "cal": 300, "dee": 50})
	seed(t, store, "c2", map[string]int{"zed": 999})
	cache := newMapCache()
	h := NewGetLeaderboardHandler(store.Students(), cache, nil, nil)

	res, err := h.Handle(context.Background(), GetLeaderboardQuery{ClassID: "c1", Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, SourceDatabase, res.Source)
	assert.Equal(t, []LeaderboardEntryDTO{
		{Rank: 1, StudentID: "ana", DisplayName: "ana", PP: 300},
		{Rank: 1, StudentID: "cal", DisplayName: "cal", PP: 300},
		{Rank: 3, StudentID: "ben", DisplayName: "ben", PP: 120},
	}, res.Entries)
	assert.Len(t, cache.boards["c1"], 4)

	res, err = h.Handle(context.Background(), GetLeaderboardQuery{ClassID: "c1", Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	assert.Len(t, res.Entries, 3)
}

func TestGetLeaderboard_CacheErrorFallsBack(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "c1", map[string]int{"ana": 10})
	cache := newMapCache()
	cache.readErr = errors.New("redis: connection pool timeout")
	h := NewGetLeaderboardHandler(store.Students(), cache, nil, nil)

	res, err := h.Handle(context.Background(), GetLeaderboardQuery{ClassID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, SourceDatabase, res.Source)
	assert.Len(t, res.Entries, 1)
}

func TestGetLeaderboard_OpenBreakerIsUnavailable(t *testing.T) {
	src := &failingSource{}
	breaker := circuitbreaker.New("db", circuitbreaker.WithFailureThreshold(2), circuitbreaker.WithTimeout(time.Hour))
	h := NewGetLeaderboardHandler(src, nil, breaker, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := h.Handle(ctx, GetLeaderboardQuery{ClassID: "c1"})
		require.Error(t, err)
	}
	_, err := h.Handle(ctx, GetLeaderboardQuery{ClassID: "c1"})
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.Equal(t, 2, src.calls)

	_, err = h.Handle(ctx, GetLeaderboardQuery{})
	assert.True(t, shared.IsValidation(err))
}

func TestStudentQueries(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "c1", map[string]int{"ana": 0})
	ctx := context.Background()

	_, err := store.Ledger().Apply(ctx, student.PPChange{StudentID: "ana", Delta: 40, Reason: student.ReasonSession, SourceKey: "s1", At: t0})
	require.NoError(t, err)
	_, err = store.Ledger().Apply(ctx, student.PPChange{StudentID: "ana", Delta: -15, Reason: student.ReasonAdjustment, SourceKey: "s2", At: t0})
	require.NoError(t, err)
	_, err = store.Badges().Award(ctx, student.EarnedBadge{Badge: student.Catalog[0], StudentID: "ana", EarnedAt: t0})
	require.NoError(t, err)

	q := NewStudentQueries(store.Students(), store.Ledger(), store.Badges(), store.Goals())

	profile, err := q.GetStudent(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, 25, profile.PP)
	require.Len(t, profile.Badges, 1)
	assert.Equal(t, student.BadgeFirstHit, profile.Badges[0].Code)

	ledger, err := q.GetLedger(ctx, PageQuery{StudentID: "ana"})
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	assert.Equal(t, "s2", ledger[0].SourceKey)
	assert.Equal(t, 25, ledger[0].BalanceAfter)

	page, err := q.GetLedger(ctx, PageQuery{StudentID: "ana", Page: 2, PageSize: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "s1", page[0].SourceKey)

	goals, err := q.GetStudentGoals(ctx, PageQuery{StudentID: "ana"})
	require.NoError(t, err)
	assert.Empty(t, goals)

	_, err = q.GetStudent(ctx, "ghost")
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
	_, err = q.GetLedger(ctx, PageQuery{StudentID: "ghost"})
	assert.True(t, shared.IsNotFound(err))
}

func TestAssessmentQueries(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "c1", map[string]int{"ana": 0})
	ctx := context.Background()

	a, err := assessment.NewAssessment(assessment.NewAssessmentParams{
		ID: "a1", ClassID: "c1", Title: "Unit test", Kind: assessment.KindTest, MaxScore: 100, Now: t0,
	})
	require.NoError(t, err)
	require.NoError(t, store.Assessments().Create(ctx, a))
	g, err := assessment.NewGoal(a, "ana", 75, t0)
	require.NoError(t, err)
	require.NoError(t, store.Goals().Save(ctx, g))

	q := NewAssessmentQueries(store.Assessments(), store.Goals())

	dto, err := q.GetAssessment(ctx, GetAssessmentQuery{AssessmentID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, 1, dto.GoalCount)
	assert.Nil(t, dto.Goals)
	assert.Nil(t, dto.LockAt)

	dto, err = q.GetAssessment(ctx, GetAssessmentQuery{AssessmentID: "a1", WithGoals: true})
	require.NoError(t, err)
	require.Len(t, dto.Goals, 1)
	assert.Equal(t, 75.0, dto.Goals[0].Goal)

	list, err := q.ListClassAssessments(ctx, "c1", 1, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = q.GetAssessment(ctx, GetAssessmentQuery{AssessmentID: "nope"})
	assert.ErrorIs(t, err, shared.ErrAssessmentNotFound)
}

func TestPreviewScore(t *testing.T) {
	store := memory.NewStore()
	q := NewAssessmentQueries(store.Assessments(), store.Goals())
	ctx := context.Background()

	res, err := q.PreviewScore(ctx, PreviewScoreQuery{Goal: 80, Actual: 81, MaxScore: 100})
	require.NoError(t, err)
	assert.Equal(t, scoring.OutcomeHit, res.Outcome)
	assert.Equal(t, 50, res.Delta)

	res, err = q.PreviewScore(ctx, PreviewScoreQuery{Kind: scoring.KindQuiz, Goal: 10, Actual: 14, MaxScore: 20})
	require.NoError(t, err)
	assert.Equal(t, scoring.OutcomeExceed, res.Outcome)
	assert.Equal(t, 40, res.Delta)

	_, err = q.PreviewScore(ctx, PreviewScoreQuery{Kind: "essay", Goal: 1, Actual: 1, MaxScore: 2})
	assert.True(t, shared.IsValidation(err))

	_, err = q.PreviewScore(ctx, PreviewScoreQuery{Goal: 1, Actual: 3, MaxScore: 2})
	assert.True(t, shared.IsValidation(err))

	_, err = q.PreviewScore(ctx, PreviewScoreQuery{AssessmentID: "nope", Goal: 1, Actual: 1})
	assert.ErrorIs(t, err, shared.ErrAssessmentNotFound)
}
