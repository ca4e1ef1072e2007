package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Blackbeard96/summer-games/internal/domain/assessment"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/internal/infrastructure/persistence/memory"
	"github.com/Blackbeard96/summer-games/pkg/retry"
)

var t0 = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *recorder) Publish(e shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []shared.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// fixture wires every handler to one in-memory store and a movable clock.
type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
	pub   *recorder
	now   time.Time

	students    *CreateStudentHandler
	assessments *CreateAssessmentHandler
	goals       *SetGoalHandler
	locks       *LockAssessmentHandler
	scores      *RecordScoreHandler
	sessions    *SessionHandler
	adjust      *AdjustPPHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, ctx: context.Background(), store: memory.NewStore(), pub: &recorder{}, now: t0}
	clock := func() time.Time { return f.now }
	s := f.store
	fastRetry := retry.New(
		retry.WithMaxAttempts(3),
		retry.WithInitialDelay(time.Millisecond),
		retry.WithMaxDelay(time.Millisecond),
		retry.WithRetryIf(shared.IsRetryable),
	)

	f.students = NewCreateStudentHandler(s.Students(), s.Ledger(), nil, clock)
	f.assessments = NewCreateAssessmentHandler(s.Assessments(), f.pub, nil, clock)
	f.goals = NewSetGoalHandler(s.Assessments(), s.Goals(), s.Students(), f.pub, nil, clock)
	f.locks = NewLockAssessmentHandler(s.Assessments(), s.Goals(), f.pub, nil, clock, LockAssessmentHandlerConfig{})
	f.scores = NewRecordScoreHandler(s.Assessments(), s.Goals(), s.Goals(), fastRetry, f.pub, nil, clock)
	f.sessions = NewSessionHandler(s.Sessions(), s.Sessions(), s.Students(), f.pub, nil, clock, SessionHandlerConfig{MaxDuration: 2 * time.Hour})
	f.adjust = NewAdjustPPHandler(s.Ledger(), f.pub, nil, clock)
	return f
}

func (f *fixture) student(id, class string, pp int) {
	f.t.Helper()
	_, err := f.students.Handle(f.ctx, CreateStudentCommand{StudentID: id, ClassID: class, InitialPP: pp})
	require.NoError(f.t, err)
}

func (f *fixture) balance(id string) (pp, xp int) {
	f.t.Helper()
	s, err := f.store.Students().GetByID(f.ctx, id)
	require.NoError(f.t, err)
	return s.PowerPoints.Int(), s.XP
}

func (f *fixture) testAssessment(class string) *assessment.Assessment {
	f.t.Helper()
	a, err := f.assessments.Handle(f.ctx, CreateAssessmentCommand{
		ClassID:  class,
		Title:    "Fractions test",
		Kind:     assessment.KindTest,
		MaxScore: 100,
		LockAt:   t0.Add(24 * time.Hour),
	})
	require.NoError(f.t, err)
	return a
}

func (f *fixture) lock(id string) {
	f.t.Helper()
	_, err := f.locks.Handle(f.ctx, LockAssessmentCommand{AssessmentID: id})
	require.NoError(f.t, err)
}
