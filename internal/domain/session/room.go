// Package session models live in-class session rooms. Students join while a
// room is active; the teacher awards participation PP to everyone present.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/internal/domain/student"
)

// Status of a room.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Participant is a student who joined a room.
type Participant struct {
	StudentID string
	JoinedAt  time.Time
}

// Room is one live session of a class. A class has at most one active room.
type Room struct {
	ID           string
	ClassID      string
	TeacherID    string
	Title        string
	Status       Status
	Participants []Participant
	StartedAt    time.Time
	EndedAt      time.Time

	// Awards counts award rounds; it feeds the ledger source keys.
	Awards int
}

// NewRoomParams holds the data needed to start a room.
type NewRoomParams struct {
	ID        string
	ClassID   string
	TeacherID string
	Title     string
	Now       time.Time
}

// NewRoom builds an active room with no participants.
func NewRoom(p NewRoomParams) (*Room, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, shared.NewDomainError("session", "Start", shared.ErrInvalidID, "session id is required")
	}
	classID, err := shared.NormalizeID("session", "Start", "class id", p.ClassID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.TeacherID) == "" {
		return nil, shared.NewDomainError("session", "Start", shared.ErrEmptyValue, "teacher id is required")
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = "Class session"
	}

	return &Room{
		ID:        p.ID,
		ClassID:   classID,
		TeacherID: p.TeacherID,
		Title:     title,
		Status:    StatusActive,
		StartedAt: now,
	}, nil
}

// IsActive reports whether the room accepts joins and awards.
func (r *Room) IsActive() bool {
	return r.Status == StatusActive
}

// HasParticipant reports whether studentID already joined.
func (r *Room) HasParticipant(studentID string) bool {
	for _, p := range r.Participants {
		if p.StudentID == studentID {
			return true
		}
	}
	return false
}

// Join adds s to the room. Joining twice is a no-op; joined is false then.
func (r *Room) Join(s *student.Student, now time.Time) (joined bool, err error) {
	if !r.IsActive() {
		return false, shared.ErrSessionEnded
	}
	if !s.BelongsTo(r.ClassID) {
		return false, shared.NewDomainError("session", "Join", shared.ErrForbidden, "student does not belong to the session class")
	}
	if r.HasParticipant(s.ID) {
		return false, nil
	}
	r.Participants = append(r.Participants, Participant{StudentID: s.ID, JoinedAt: now})
	return true, nil
}

// End closes the room.
func (r *Room) End(now time.Time) error {
	if !r.IsActive() {
		return shared.NewDomainError("session", "End", shared.ErrStateTransition, "session already ended")
	}
	r.Status = StatusEnded
	r.EndedAt = now
	return nil
}

// IsStale reports whether an active room has outlived maxAge.
func (r *Room) IsStale(now time.Time, maxAge time.Duration) bool {
	return r.IsActive() && maxAge > 0 && now.Sub(r.StartedAt) >= maxAge
}

// Award is a request to give PP to every participant.
type Award struct {
	Amount int
	Reason string
}

const maxAwardAmount = 1000

// PlanAward validates an award round and returns one PP change per
// participant. It bumps the award counter, so call it once per round.
func (r *Room) PlanAward(a Award, now time.Time) ([]student.PPChange, error) {
	if !r.IsActive() {
		return nil, shared.NewDomainError("session", "Award", shared.ErrInvalidState, "session already ended")
	}
	if a.Amount <= 0 || a.Amount > maxAwardAmount {
		return nil, shared.Validationf("session", "Award", "amount must be within [1,%d], got %d", maxAwardAmount, a.Amount)
	}
	reason := strings.TrimSpace(a.Reason)
	if reason == "" {
		return nil, shared.NewDomainError("session", "Award", shared.ErrEmptyValue, "reason is required")
	}
	if len(r.Participants) == 0 {
		return nil, shared.ErrNoParticipants
	}

	r.Awards++
	changes := make([]student.PPChange, 0, len(r.Participants))
	for _, p := range r.Participants {
		changes = append(changes, student.PPChange{
			StudentID: p.StudentID,
			Delta:     a.Amount,
			Reason:    student.ReasonSession,
			Note:      reason,
			SourceKey: fmt.Sprintf("session:%s:a%d:%s", r.ID, r.Awards, p.StudentID),
			At:        now,
		})
	}
	return changes, nil
}
