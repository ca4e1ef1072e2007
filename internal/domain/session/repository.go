package session

import (
	"context"
	"time"

	"github.com/Blackbeard96/summer-games/internal/domain/student"
)

// Repository stores session rooms.
type Repository interface {
	// Create inserts an active room. Returns shared.ErrSessionAlreadyActive
	// when the class already has one.
	Create(ctx context.Context, r *Room) error

	// GetByID loads the room with its participants.
	// Returns shared.ErrSessionNotFound when missing.
	GetByID(ctx context.Context, id string) (*Room, error)

	// GetActiveByClass returns shared.ErrSessionNotFound when the class has no active room.
	GetActiveByClass(ctx context.Context, classID string) (*Room, error)

	// AddParticipant records a join. Re-adding is a no-op.
	AddParticipant(ctx context.Context, roomID string, p Participant) error

	// End persists the ended status.
	End(ctx context.Context, r *Room) error

	// FindActiveStartedBefore returns active rooms started before t.
	FindActiveStartedBefore(ctx context.Context, t time.Time) ([]*Room, error)
}

// AwardStore applies every change of an award round in one transaction
// and bumps the room award counter. Either all entries land or none do.
type AwardStore interface {
	SaveAward(ctx context.Context, r *Room, changes []student.PPChange) ([]*student.LedgerEntry, error)
}
