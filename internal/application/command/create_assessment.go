package command

import (
	"context"
	"fmt"
	"time"

	"github.com/Blackbeard96/summer-games/internal/domain/assessment"
	"github.com/Blackbeard96/summer-games/internal/domain/scoring"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE ASSESSMENT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// CreateAssessmentCommand contains the data to create an assessment.
type CreateAssessmentCommand struct {
	ClassID  string
	Title    string
	Kind     assessment.Kind
	MaxScore float64

	// LockAt is optional; zero means the teacher locks by hand.
	LockAt time.Time

	// Scoring overrides the kind's default policy when set.
	Scoring *scoring.Config

	CreatedBy string
}

// Validate validates the command.
func (c CreateAssessmentCommand) Validate() error {
	if c.ClassID == "" {
		return invalid("create_assessment", "class_id is required")
	}
	if c.Kind == "" {
		return invalid("create_assessment", "kind is required")
	}
	return nil
}

// CreateAssessmentHandler handles CreateAssessmentCommand.
type CreateAssessmentHandler struct {
	assessments assessment.Repository
	publisher   shared.EventPublisher
	log         *logger.Logger
	now         Clock
}

// NewCreateAssessmentHandler creates a new CreateAssessmentHandler.
func NewCreateAssessmentHandler(assessments assessment.Repository, publisher shared.EventPublisher, log *logger.Logger, clock Clock) *CreateAssessmentHandler {
	return &CreateAssessmentHandler{
		assessments: assessments,
		publisher:   orPublisher(publisher),
		log:         orLogger(log),
		now:         orClock(clock),
	}
}

// Handle executes the command.
func (h *CreateAssessmentHandler) Handle(ctx context.Context, cmd CreateAssessmentCommand) (*assessment.Assessment, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("create_assessment: validation failed: %w", err)
	}

	var cfg scoring.Config
	if cmd.Scoring != nil {
		cfg = *cmd.Scoring
	}

	a, err := assessment.NewAssessment(assessment.NewAssessmentParams{
		ID:        newID(),
		ClassID:   cmd.ClassID,
		Title:     cmd.Title,
		Kind:      cmd.Kind,
		MaxScore:  cmd.MaxScore,
		LockAt:    cmd.LockAt,
		Scoring:   cfg,
		CreatedBy: cmd.CreatedBy,
		Now:       h.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("create_assessment: %w", err)
	}

	if err := h.assessments.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create_assessment: failed to save assessment: %w", err)
	}

	publish(h.publisher, h.log, shared.NewAssessmentCreatedEvent(a.ID, a.ClassID, string(a.Kind), a.Title))

	h.log.Info("assessment created",
		logger.AssessmentID(a.ID),
		logger.ClassID(a.ClassID),
		logger.String("kind", string(a.Kind)),
	)
	return a, nil
}
