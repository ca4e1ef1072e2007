package command

import (
	"context"
	"fmt"

	"github.com/Blackbeard96/summer-games/internal/domain/assessment"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOCK ASSESSMENT COMMAND
// Closes goal setting. Teachers lock by hand; the scheduler locks
// assessments whose LockAt has passed.
// ══════════════════════════════════════════════════════════════════════════════

// LockAssessmentCommand locks one assessment.
type LockAssessmentCommand struct {
	AssessmentID string
}

// Validate validates the command.
func (c LockAssessmentCommand) Validate() error {
	if c.AssessmentID == "" {
		return invalid("lock_assessment", "assessment_id is required")
	}
	return nil
}

// LockDueAssessmentsCommand locks every assessment whose lock time passed.
type LockDueAssessmentsCommand struct {
	// Limit caps how many assessments one run locks. Zero uses the default.
	Limit int
}

// LockDueAssessmentsResult reports a scheduler run.
type LockDueAssessmentsResult struct {
	Locked []string
	Failed int
}

// LockAssessmentHandlerConfig contains configuration for the handler.
type LockAssessmentHandlerConfig struct {
	BatchSize int
}

// DefaultLockAssessmentHandlerConfig returns default configuration.
func DefaultLockAssessmentHandlerConfig() LockAssessmentHandlerConfig {
	return LockAssessmentHandlerConfig{BatchSize: 100}
}

// LockAssessmentHandler handles both lock commands.
type LockAssessmentHandler struct {
	assessments assessment.Repository
	goals       assessment.GoalRepository
	publisher   shared.EventPublisher
	log         *logger.Logger
	now         Clock
	batchSize   int
}

// NewLockAssessmentHandler creates a new LockAssessmentHandler.
func NewLockAssessmentHandler(
	assessments assessment.Repository,
	goals assessment.GoalRepository,
	publisher shared.EventPublisher,
	log *logger.Logger,
	clock Clock,
	config LockAssessmentHandlerConfig,
) *LockAssessmentHandler {
	if config.BatchSize <= 0 {
		config = DefaultLockAssessmentHandlerConfig()
	}
	return &LockAssessmentHandler{
		assessments: assessments,
		goals:       goals,
		publisher:   orPublisher(publisher),
		log:         orLogger(log),
		now:         orClock(clock),
		batchSize:   config.BatchSize,
	}
}

// Handle locks one assessment.
func (h *LockAssessmentHandler) Handle(ctx context.Context, cmd LockAssessmentCommand) (*assessment.Assessment, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("lock_assessment: validation failed: %w", err)
	}

	a, err := h.assessments.GetByID(ctx, cmd.AssessmentID)
	if err != nil {
		return nil, fmt.Errorf("lock_assessment: failed to get assessment: %w", err)
	}
	if err := h.lock(ctx, a); err != nil {
		return nil, fmt.Errorf("lock_assessment: %w", err)
	}
	return a, nil
}

// HandleDue locks every assessment whose lock time has passed. One failure
// does not stop the batch.
func (h *LockAssessmentHandler) HandleDue(ctx context.Context, cmd LockDueAssessmentsCommand) (*LockDueAssessmentsResult, error) {
	limit := cmd.Limit
	if limit <= 0 {
		limit = h.batchSize
	}

	due, err := h.assessments.FindLockDue(ctx, h.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("lock_due_assessments: failed to find due assessments: %w", err)
	}

	result := &LockDueAssessmentsResult{Locked: make([]string, 0, len(due))}
	for _, a := range due {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := h.lock(ctx, a); err != nil {
			result.Failed++
			h.log.Warn("auto-lock failed", logger.AssessmentID(a.ID), logger.Err(err))
			continue
		}
		result.Locked = append(result.Locked, a.ID)
	}
	return result, nil
}

func (h *LockAssessmentHandler) lock(ctx context.Context, a *assessment.Assessment) error {
	if err := a.Lock(h.now()); err != nil {
		return err
	}
	if err := h.assessments.Update(ctx, a); err != nil {
		return fmt.Errorf("failed to save assessment: %w", err)
	}

	count, err := h.goals.CountByAssessment(ctx, a.ID)
	if err != nil {
		h.log.Warn("count goals failed", logger.AssessmentID(a.ID), logger.Err(err))
	}

	publish(h.publisher, h.log, shared.NewAssessmentLockedEvent(a.ID, a.ClassID, count))
	h.log.Info("assessment locked", logger.AssessmentID(a.ID), logger.Int("goals", count))
	return nil
}
