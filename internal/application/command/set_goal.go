package command

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Blackbeard96/summer-games/internal/domain/assessment"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/internal/domain/student"
	"github.com/Blackbeard96/summer-games/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SET GOAL COMMAND
// A student commits to a target score before the assessment locks. Setting
// again before the lock replaces the previous value.
// ══════════════════════════════════════════════════════════════════════════════

// SetGoalCommand contains the data to set a goal.
type SetGoalCommand struct {
	AssessmentID string
	StudentID    string
	Goal         float64
}

// Validate validates the command.
func (c SetGoalCommand) Validate() error {
	if c.AssessmentID == "" {
		return invalid("set_goal", "assessment_id is required")
	}
	if c.StudentID == "" {
		return invalid("set_goal", "student_id is required")
	}
	if math.IsNaN(c.Goal) || math.IsInf(c.Goal, 0) {
		return invalid("set_goal", "goal must be a finite number")
	}
	return nil
}

// SetGoalResult contains the stored goal.
type SetGoalResult struct {
	Goal    *assessment.Goal
	Changed bool
}

// SetGoalHandler handles SetGoalCommand.
type SetGoalHandler struct {
	assessments assessment.Repository
	goals       assessment.GoalRepository
	students    student.Repository
	publisher   shared.EventPublisher
	log         *logger.Logger
	now         Clock
}

// NewSetGoalHandler creates a new SetGoalHandler.
func NewSetGoalHandler(
	assessments assessment.Repository,
	goals assessment.GoalRepository,
	students student.Repository,
	publisher shared.EventPublisher,
	log *logger.Logger,
	clock Clock,
) *SetGoalHandler {
	return &SetGoalHandler{
		assessments: assessments,
		goals:       goals,
		students:    students,
		publisher:   orPublisher(publisher),
		log:         orLogger(log),
		now:         orClock(clock),
	}
}

// Handle executes the command.
func (h *SetGoalHandler) Handle(ctx context.Context, cmd SetGoalCommand) (*SetGoalResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("set_goal: validation failed: %w", err)
	}

	a, err := h.assessments.GetByID(ctx, cmd.AssessmentID)
	if err != nil {
		return nil, fmt.Errorf("set_goal: failed to get assessment: %w", err)
	}
	s, err := h.students.GetByID(ctx, cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("set_goal: failed to get student: %w", err)
	}
	if !s.BelongsTo(a.ClassID) {
		return nil, fmt.Errorf("set_goal: %w", shared.ErrWrongClass)
	}

	now := h.now()
	result := &SetGoalResult{}

	g, err := h.goals.Get(ctx, a.ID, s.ID)
	switch {
	case errors.Is(err, shared.ErrGoalNotFound):
		g, err = assessment.NewGoal(a, s.ID, cmd.Goal, now)
		if err != nil {
			return nil, fmt.Errorf("set_goal: %w", err)
		}
		result.Changed = true
	case err != nil:
		return nil, fmt.Errorf("set_goal: failed to get goal: %w", err)
	default:
		prev := g.Goal
		if err := g.Change(a, cmd.Goal, now); err != nil {
			return nil, fmt.Errorf("set_goal: %w", err)
		}
		result.Changed = prev != g.Goal
	}

	if err := h.goals.Save(ctx, g); err != nil {
		return nil, fmt.Errorf("set_goal: failed to save goal: %w", err)
	}
	result.Goal = g

	if result.Changed {
		publish(h.publisher, h.log, shared.NewGoalSetEvent(a.ID, s.ID, g.Goal))
	}

	h.log.Debug("goal set",
		logger.AssessmentID(a.ID),
		logger.StudentID(s.ID),
		logger.Float64("goal", g.Goal),
	)
	return result, nil
}
