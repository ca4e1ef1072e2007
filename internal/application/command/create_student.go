package command

import (
	"context"
	"fmt"

	"github.com/Blackbeard96/summer-games/internal/domain/student"
	"github.com/Blackbeard96/summer-games/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE STUDENT COMMAND
// Enrolls a student in a class. A starting balance is booked through the
// ledger so that every PP on a balance has a ledger row behind it.
// ══════════════════════════════════════════════════════════════════════════════

// CreateStudentCommand contains the data to enroll a student.
type CreateStudentCommand struct {
	StudentID   string
	ClassID     string
	DisplayName string

	// InitialPP is an optional opening balance.
	InitialPP int
}

// Validate validates the command.
func (c CreateStudentCommand) Validate() error {
	if c.StudentID == "" {
		return invalid("create_student", "student_id is required")
	}
	if c.ClassID == "" {
		return invalid("create_student", "class_id is required")
	}
	if c.InitialPP < 0 {
		return invalid("create_student", "initial_pp cannot be negative")
	}
	return nil
}

// CreateStudentHandler handles CreateStudentCommand.
type CreateStudentHandler struct {
	students student.Repository
	ledger   student.LedgerRepository
	log      *logger.Logger
	now      Clock
}

// NewCreateStudentHandler creates a new CreateStudentHandler.
func NewCreateStudentHandler(students student.Repository, ledger student.LedgerRepository, log *logger.Logger, clock Clock) *CreateStudentHandler {
	return &CreateStudentHandler{
		students: students,
		ledger:   ledger,
		log:      orLogger(log),
		now:      orClock(clock),
	}
}

// Handle executes the command and returns the stored student.
func (h *CreateStudentHandler) Handle(ctx context.Context, cmd CreateStudentCommand) (*student.Student, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("create_student: validation failed: %w", err)
	}

	now := h.now()
	s, err := student.NewStudent(student.NewStudentParams{
		ID:          cmd.StudentID,
		ClassID:     cmd.ClassID,
		DisplayName: cmd.DisplayName,
		Now:         now,
	})
	if err != nil {
		return nil, fmt.Errorf("create_student: %w", err)
	}

	if err := h.students.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create_student: failed to save student: %w", err)
	}

	if cmd.InitialPP > 0 {
		entry, err := h.ledger.Apply(ctx, student.PPChange{
			StudentID: s.ID,
			Delta:     cmd.InitialPP,
			Reason:    student.ReasonAdjustment,
			Note:      "opening balance",
			SourceKey: "opening:" + s.ID,
			At:        now,
		})
		if err != nil {
			return nil, fmt.Errorf("create_student: failed to book opening balance: %w", err)
		}
		s.ApplyPP(entry.Applied, now)
	}

	h.log.Info("student created", logger.StudentID(s.ID), logger.ClassID(s.ClassID))
	return s, nil
}
