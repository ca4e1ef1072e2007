package assessment

import (
	"context"
	"time"

	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/internal/domain/student"
)

// Repository stores assessments.
type Repository interface {
	// Create inserts a new assessment.
	Create(ctx context.Context, a *Assessment) error

	// GetByID returns shared.ErrAssessmentNotFound when missing.
	GetByID(ctx context.Context, id string) (*Assessment, error)

	// Update persists status and timestamps.
	Update(ctx context.Context, a *Assessment) error

	// ListByClass returns assessments newest first.
	ListByClass(ctx context.Context, classID string, page shared.Pagination) ([]*Assessment, error)

	// FindLockDue returns open assessments whose LockAt is at or before now.
	FindLockDue(ctx context.Context, now time.Time, limit int) ([]*Assessment, error)
}

// GoalRepository stores goals and their evaluations.
type GoalRepository interface {
	// Save inserts or replaces the goal value of a student on an assessment.
	Save(ctx context.Context, g *Goal) error

	// Get returns shared.ErrGoalNotFound when the student has no goal.
	Get(ctx context.Context, assessmentID, studentID string) (*Goal, error)

	// ListByAssessment returns every goal on the assessment.
	ListByAssessment(ctx context.Context, assessmentID string) ([]*Goal, error)

	// ListByStudent returns a student's goals, newest first.
	ListByStudent(ctx context.Context, studentID string, page shared.Pagination) ([]*Goal, error)

	// CountByAssessment returns how many students set a goal.
	CountByAssessment(ctx context.Context, assessmentID string) (int, error)

	// OutcomeHistory returns outcome labels of evaluated goals, oldest first.
	OutcomeHistory(ctx context.Context, studentID string) ([]string, error)
}

// GradingStore commits one evaluation atomically: the goal row, the
// assessment status and, when change is not a no-op, the ledger entry and
// the student balance. It returns the ledger entry or nil.
type GradingStore interface {
	SaveEvaluation(ctx context.Context, a *Assessment, g *Goal, change student.PPChange) (*student.LedgerEntry, error)
}
