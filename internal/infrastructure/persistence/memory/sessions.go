package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/Blackbeard96/summer-games/internal/domain/session"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/internal/domain/student"
)

// SessionStore implements session.Repository and session.AwardStore.
type SessionStore struct{ s *Store }

func cloneRoom(r *session.Room) *session.Room {
	c := *r
	c.Participants = append([]session.Participant(nil), r.Participants...)
	return &c
}

// Create implements session.Repository.
func (v *SessionStore) Create(_ context.Context, r *session.Room) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, existing := range v.s.rooms {
		if existing.ClassID == r.ClassID && existing.IsActive() {
			return shared.ErrSessionAlreadyActive
		}
	}
	v.s.rooms[r.ID] = cloneRoom(r)
	return nil
}

// GetByID implements session.Repository.
func (v *SessionStore) GetByID(_ context.Context, id string) (*session.Room, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	r, ok := v.s.rooms[id]
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	return cloneRoom(r), nil
}

// GetActiveByClass implements session.Repository.
func (v *SessionStore) GetActiveByClass(_ context.Context, classID string) (*session.Room, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	for _, r := range v.s.rooms {
		if r.ClassID == classID && r.IsActive() {
			return cloneRoom(r), nil
		}
	}
	return nil, shared.ErrSessionNotFound
}

// AddParticipant implements session.Repository.
func (v *SessionStore) AddParticipant(_ context.Context, roomID string, p session.Participant) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	r, ok := v.s.rooms[roomID]
	if !ok {
		return shared.ErrSessionNotFound
	}
	if !r.IsActive() {
		return shared.ErrSessionEnded
	}
	if r.HasParticipant(p.StudentID) {
		return nil
	}
	r.Participants = append(r.Participants, p)
	return nil
}

// End implements session.Repository.
func (v *SessionStore) End(_ context.Context, r *session.Room) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	stored, ok := v.s.rooms[r.ID]
	if !ok {
		return shared.ErrSessionNotFound
	}
	if !stored.IsActive() {
		return shared.NewDomainError("session", "End", shared.ErrStateTransition, "session already ended")
	}
	stored.Status = r.Status
	stored.EndedAt = r.EndedAt
	return nil
}

// FindActiveStartedBefore implements session.Repository.
func (v *SessionStore) FindActiveStartedBefore(_ context.Context, t time.Time) ([]*session.Room, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	out := make([]*session.Room, 0)
	for _, r := range v.s.rooms {
		if r.IsActive() && r.StartedAt.Before(t) {
			out = append(out, cloneRoom(r))
		}
	}
	return out, nil
}

// SaveAward implements session.AwardStore. A failure on any participant
// rolls every earlier write of the round back. A room whose award round
// moved since it was loaded reports shared.ErrConcurrentModification.
func (v *SessionStore) SaveAward(_ context.Context, r *session.Room, changes []student.PPChange) ([]*student.LedgerEntry, error) {
	for _, c := range changes {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}

	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	stored, ok := v.s.rooms[r.ID]
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	if !stored.IsActive() {
		return nil, shared.NewDomainError("session", "Award", shared.ErrInvalidState, "session already ended")
	}
	if stored.Awards != r.Awards-1 {
		return nil, fmt.Errorf("session %s award round %d, expected %d: %w",
			r.ID, stored.Awards, r.Awards-1, shared.ErrConcurrentModification)
	}

	snap := v.s.snapshotLocked()
	entries := make([]*student.LedgerEntry, 0, len(changes))
	for _, c := range changes {
		e, err := v.s.applyLocked(c)
		if err != nil {
			v.s.restoreLocked(snap)
			return nil, err
		}
		entries = append(entries, e)
	}
	stored.Awards = r.Awards
	return entries, nil
}
