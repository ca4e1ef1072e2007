package student

import (
	"context"

	"github.com/Blackbeard96/summer-games/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository stores students.
type Repository interface {
	// Create inserts a student.
	// Returns shared.ErrStudentAlreadyExists when the id is taken.
	Create(ctx context.Context, s *Student) error

	// GetByID returns shared.ErrStudentNotFound when missing.
	GetByID(ctx context.Context, id string) (*Student, error)

	// ListByClass returns the class ordered by PP descending, then id.
	ListByClass(ctx context.Context, classID string, page shared.Pagination) ([]*Student, error)
}

// LedgerRepository applies PP changes and reads the ledger back.
type LedgerRepository interface {
	// Apply locks the student, applies the change and appends the ledger
	// entry in one transaction. A reused source key returns
	// shared.ErrDuplicateLedgerEntry and changes nothing.
	Apply(ctx context.Context, change PPChange) (*LedgerEntry, error)

	// ListByStudent returns entries newest first.
	ListByStudent(ctx context.Context, studentID string, page shared.Pagination) ([]*LedgerEntry, error)
}

// BadgeRepository stores earned badges.
type BadgeRepository interface {
	// ListByStudent returns the student's badges, oldest first.
	ListByStudent(ctx context.Context, studentID string) ([]EarnedBadge, error)

	// Award stores the badge and reports whether it was new.
	Award(ctx context.Context, b EarnedBadge) (bool, error)
}
