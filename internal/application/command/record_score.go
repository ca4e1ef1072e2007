package command

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Blackbeard96/summer-games/internal/domain/assessment"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/internal/domain/student"
	"github.com/Blackbeard96/summer-games/pkg/logger"
	"github.com/Blackbeard96/summer-games/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD SCORE COMMAND
// The teacher enters the actual score of a student. The goal is evaluated,
// the PP adjustment is booked in the ledger and the assessment moves to
// graded, all in one transaction. Serialization conflicts are retried.
// ══════════════════════════════════════════════════════════════════════════════

// RecordScoreCommand contains an actual score.
type RecordScoreCommand struct {
	AssessmentID string
	StudentID    string
	Actual       float64

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RecordScoreCommand) Validate() error {
	if c.AssessmentID == "" {
		return invalid("record_score", "assessment_id is required")
	}
	if c.StudentID == "" {
		return invalid("record_score", "student_id is required")
	}
	if math.IsNaN(c.Actual) || math.IsInf(c.Actual, 0) {
		return invalid("record_score", "actual must be a finite number")
	}
	return nil
}

// RecordScoreResult contains the outcome of the evaluation.
type RecordScoreResult struct {
	Goal       *assessment.Goal
	Evaluation assessment.Evaluation

	// Entry is the ledger row, nil when the regrade changed nothing.
	Entry *student.LedgerEntry

	Attempts int
}

// RecordScoreHandler handles RecordScoreCommand.
type RecordScoreHandler struct {
	assessments assessment.Repository
	goals       assessment.GoalRepository
	grading     assessment.GradingStore
	retrier     *retry.Retrier
	publisher   shared.EventPublisher
	log         *logger.Logger
	now         Clock
}

// NewRecordScoreHandler creates a new RecordScoreHandler. A nil retrier
// uses retry.DatabaseRetrier on shared.IsRetryable errors.
func NewRecordScoreHandler(
	assessments assessment.Repository,
	goals assessment.GoalRepository,
	grading assessment.GradingStore,
	retrier *retry.Retrier,
	publisher shared.EventPublisher,
	log *logger.Logger,
	clock Clock,
) *RecordScoreHandler {
	log = orLogger(log)
	if retrier == nil {
		retrier = retry.DatabaseRetrier(shared.IsRetryable, func(attempt int, err error, delay time.Duration) {
			log.Warn("grading conflict, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		})
	}
	return &RecordScoreHandler{
		assessments: assessments,
		goals:       goals,
		grading:     grading,
		retrier:     retrier,
		publisher:   orPublisher(publisher),
		log:         log,
		now:         orClock(clock),
	}
}

// Handle executes the command.
func (h *RecordScoreHandler) Handle(ctx context.Context, cmd RecordScoreCommand) (*RecordScoreResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("record_score: validation failed: %w", err)
	}

	var (
		result *RecordScoreResult
		a      *assessment.Assessment
	)
	attempts := 0

	// Each attempt reloads state so a retried transaction sees the winner's write.
	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		attempts++
		var err error
		a, result, err = h.evaluate(ctx, cmd)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("record_score: %w", err)
	}
	result.Attempts = attempts

	h.emit(a, result, cmd.CorrelationID)

	h.log.Info("score recorded",
		logger.AssessmentID(a.ID),
		logger.StudentID(cmd.StudentID),
		logger.Outcome(string(result.Evaluation.Result.Outcome)),
		logger.PPDelta(result.Evaluation.Adjustment),
		logger.Bool("regrade", result.Evaluation.Regrade),
	)
	return result, nil
}

func (h *RecordScoreHandler) evaluate(ctx context.Context, cmd RecordScoreCommand) (*assessment.Assessment, *RecordScoreResult, error) {
	a, err := h.assessments.GetByID(ctx, cmd.AssessmentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get assessment: %w", err)
	}
	if !a.CanRecordScore() {
		return nil, nil, shared.ErrAssessmentNotReady
	}

	g, err := h.goals.Get(ctx, a.ID, cmd.StudentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get goal: %w", err)
	}

	now := h.now()
	prevXP := g.XPReward()
	ev, err := g.Evaluate(a, cmd.Actual, now)
	if err != nil {
		return nil, nil, err
	}
	if err := a.MarkGraded(now); err != nil {
		return nil, nil, err
	}

	reason := student.ReasonGoal
	if ev.Regrade {
		reason = student.ReasonRegrade
	}
	change := student.PPChange{
		StudentID: g.StudentID,
		Delta:     ev.Adjustment,
		XPDelta:   g.XPReward() - prevXP,
		Reason:    reason,
		Note:      a.Title,
		SourceKey: g.SourceKey(),
		At:        now,
	}

	entry, err := h.grading.SaveEvaluation(ctx, a, g, change)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to save evaluation: %w", err)
	}

	return a, &RecordScoreResult{Goal: g, Evaluation: ev, Entry: entry}, nil
}

func (h *RecordScoreHandler) emit(a *assessment.Assessment, r *RecordScoreResult, correlationID string) {
	g := r.Goal
	evaluated := shared.NewGoalEvaluatedEvent(
		a.ID, g.StudentID, a.ClassID,
		g.Goal, *g.Actual,
		string(g.Outcome), g.PPDelta, g.Revision,
	)
	if correlationID != "" {
		evaluated.BaseEvent = evaluated.BaseEvent.WithCorrelationID(correlationID)
	}

	events := []shared.Event{evaluated}
	if r.Entry != nil {
		changed := r.Entry.ToEvent()
		if correlationID != "" {
			changed.BaseEvent = changed.BaseEvent.WithCorrelationID(correlationID)
		}
		events = append(events, changed)
	}
	publish(h.publisher, h.log, events...)
}
