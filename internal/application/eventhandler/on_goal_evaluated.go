// Package eventhandler contains reactions to domain events: badge awards
// and leaderboard cache maintenance. Handlers run after the write that
// raised the event has committed, so a failure here never loses PP.
package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/Blackbeard96/summer-games/internal/domain/assessment"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/internal/domain/student"
	"github.com/Blackbeard96/summer-games/pkg/logger"
)

const handlerTimeout = 5 * time.Second

// ═══════════════════════════════════════════════════════════════════════════
// BADGE AWARDER
// Recomputes badge stats from the outcome history and the balance, then
// stores every badge the student qualifies for and does not own yet.
// ═══════════════════════════════════════════════════════════════════════════

// BadgeAwarder awards badges.
type BadgeAwarder struct {
	students  student.Repository
	goals     assessment.GoalRepository
	badges    student.BadgeRepository
	publisher shared.EventPublisher
	log       *logger.Logger
	now       func() time.Time
}

// NewBadgeAwarder creates a new BadgeAwarder. publisher receives badge.earned.
func NewBadgeAwarder(
	students student.Repository,
	goals assessment.GoalRepository,
	badges student.BadgeRepository,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *BadgeAwarder {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &BadgeAwarder{
		students:  students,
		goals:     goals,
		badges:    badges,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Award evaluates every badge rule for a student and returns the new badges.
func (a *BadgeAwarder) Award(ctx context.Context, studentID string) ([]student.Badge, error) {
	s, err := a.students.GetByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	history, err := a.goals.OutcomeHistory(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("outcome history: %w", err)
	}
	earned, err := a.badges.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}

	owned := make(map[string]bool, len(earned))
	for _, b := range earned {
		owned[b.Code] = true
	}

	stats := student.StatsFromOutcomes(history, s.PowerPoints.Int())
	candidates := student.EvaluateBadges(stats, owned)

	now := a.now()
	awarded := make([]student.Badge, 0, len(candidates))
	for _, b := range candidates {
		isNew, err := a.badges.Award(ctx, student.EarnedBadge{Badge: b, StudentID: studentID, EarnedAt: now})
		if err != nil {
			return awarded, fmt.Errorf("award %s: %w", b.Code, err)
		}
		if !isNew {
			continue
		}
		awarded = append(awarded, b)
		if err := a.publisher.Publish(shared.NewBadgeEarnedEvent(studentID, b.Code, b.Name)); err != nil {
			a.log.Warn("publish badge event failed", logger.StudentID(studentID), logger.Err(err))
		}
		a.log.Info("badge earned", logger.StudentID(studentID), logger.String("badge", b.Code))
	}
	return awarded, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// ON GOAL EVALUATED HANDLER
// ═══════════════════════════════════════════════════════════════════════════

// OnGoalEvaluatedHandler checks outcome-based badges after every evaluation.
type OnGoalEvaluatedHandler struct {
	awarder *BadgeAwarder
	log     *logger.Logger
}

// NewOnGoalEvaluatedHandler creates a new OnGoalEvaluatedHandler.
func NewOnGoalEvaluatedHandler(awarder *BadgeAwarder, log *logger.Logger) *OnGoalEvaluatedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnGoalEvaluatedHandler{
		awarder: awarder,
		log:     log.With(logger.String("handler", "on_goal_evaluated")),
	}
}

// Handle implements shared.EventHandler.
func (h *OnGoalEvaluatedHandler) Handle(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	studentID, ok := goalEvaluatedStudent(event)
	if !ok {
		h.log.Warn("received non-GoalEvaluatedEvent", logger.String("event_type", string(event.EventType())))
		return nil
	}

	if _, err := h.awarder.Award(ctx, studentID); err != nil {
		h.log.Error("badge evaluation failed", logger.StudentID(studentID), logger.Err(err))
		return err
	}
	return nil
}

// goalEvaluatedStudent reads the student id from a typed event, or from the
// payload of an event that crossed the Redis bus.
func goalEvaluatedStudent(event shared.Event) (string, bool) {
	if e, ok := event.(shared.GoalEvaluatedEvent); ok {
		return e.StudentID, true
	}
	if event.EventType() != shared.EventGoalEvaluated {
		return "", false
	}
	id, ok := event.Payload()["student_id"].(string)
	return id, ok && id != ""
}
