package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/internal/domain/student"
	"github.com/Blackbeard96/summer-games/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADJUST PP COMMAND
// Manual correction by a teacher. A client-supplied SourceKey makes the
// request safe to retry; without one every call books a new entry.
// ══════════════════════════════════════════════════════════════════════════════

const maxAdjustment = 10_000

// AdjustPPCommand moves one student's balance by hand.
type AdjustPPCommand struct {
	StudentID string
	Delta     int
	Note      string
	SourceKey string
	ActorID   string
}

// Validate validates the command.
func (c AdjustPPCommand) Validate() error {
	if c.StudentID == "" {
		return invalid("adjust_pp", "student_id is required")
	}
	if c.Delta == 0 {
		return invalid("adjust_pp", "delta cannot be zero")
	}
	if c.Delta > maxAdjustment || c.Delta < -maxAdjustment {
		return invalid("adjust_pp", fmt.Sprintf("delta must be within ±%d", maxAdjustment))
	}
	if strings.TrimSpace(c.Note) == "" {
		return invalid("adjust_pp", "note is required")
	}
	return nil
}

// AdjustPPHandler handles AdjustPPCommand.
type AdjustPPHandler struct {
	ledger    student.LedgerRepository
	publisher shared.EventPublisher
	log       *logger.Logger
	now       Clock
}

// NewAdjustPPHandler creates a new AdjustPPHandler.
func NewAdjustPPHandler(ledger student.LedgerRepository, publisher shared.EventPublisher, log *logger.Logger, clock Clock) *AdjustPPHandler {
	return &AdjustPPHandler{
		ledger:    ledger,
		publisher: orPublisher(publisher),
		log:       orLogger(log),
		now:       orClock(clock),
	}
}

// Handle executes the command.
func (h *AdjustPPHandler) Handle(ctx context.Context, cmd AdjustPPCommand) (*student.LedgerEntry, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("adjust_pp: validation failed: %w", err)
	}

	key := cmd.SourceKey
	if key == "" {
		key = "adjust:" + newID()
	} else {
		key = "adjust:" + key
	}

	note := strings.TrimSpace(cmd.Note)
	if cmd.ActorID != "" {
		note = note + " (by " + cmd.ActorID + ")"
	}

	entry, err := h.ledger.Apply(ctx, student.PPChange{
		StudentID: cmd.StudentID,
		Delta:     cmd.Delta,
		Reason:    student.ReasonAdjustment,
		Note:      note,
		SourceKey: key,
		At:        h.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("adjust_pp: %w", err)
	}

	publish(h.publisher, h.log, entry.ToEvent())
	h.log.Info("pp adjusted",
		logger.StudentID(entry.StudentID),
		logger.PPDelta(entry.Applied),
		logger.String("actor", cmd.ActorID),
	)
	return entry, nil
}
