// Package student holds the student aggregate: PP balance, XP, the PP
// ledger and badges. It depends only on the standard library and shared.
package student

import (
	"strings"
	"time"

	"github.com/Blackbeard96/summer-games/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student is a class member who sets goals and earns PP.
type Student struct {
	// ID is the student's login or a UUID.
	ID string

	// ClassID is the class the student belongs to.
	ClassID string

	// DisplayName is shown on leaderboards.
	DisplayName string

	// PowerPoints is the current PP balance, never negative.
	PowerPoints shared.PP

	// XP is lifetime experience, never negative.
	XP int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewStudentParams holds the data needed to create a student.
type NewStudentParams struct {
	ID          string
	ClassID     string
	DisplayName string
	InitialPP   int
	Now         time.Time
}

const maxDisplayName = 100

// NewStudent validates params and builds a student.
func NewStudent(p NewStudentParams) (*Student, error) {
	const op = "NewStudent"

	id, err := shared.NormalizeID("student", op, "student id", p.ID)
	if err != nil {
		return nil, err
	}
	classID, err := shared.NormalizeID("student", op, "class id", p.ClassID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		name = id
	}
	if len(name) > maxDisplayName {
		return nil, shared.Validationf("student", op, "display name must be at most %d characters", maxDisplayName)
	}
	if p.InitialPP < 0 {
		return nil, shared.NewDomainError("student", op, shared.ErrNegativeValue, "initial pp cannot be negative")
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	return &Student{
		ID:          id,
		ClassID:     classID,
		DisplayName: name,
		PowerPoints: shared.PP(p.InitialPP),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ApplyPP moves the balance by delta and returns the delta actually applied.
// Penalties larger than the balance stop at zero.
func (s *Student) ApplyPP(delta int, now time.Time) int {
	next, applied := s.PowerPoints.Apply(delta)
	s.PowerPoints = next
	if applied != 0 {
		s.UpdatedAt = now
	}
	return applied
}

// AddXP moves XP by delta, flooring at zero. It returns the delta applied.
func (s *Student) AddXP(delta int, now time.Time) int {
	next := s.XP + delta
	if next < 0 {
		next = 0
	}
	applied := next - s.XP
	s.XP = next
	if applied != 0 {
		s.UpdatedAt = now
	}
	return applied
}

// BelongsTo reports whether the student is in classID.
func (s *Student) BelongsTo(classID string) bool {
	return s.ClassID == classID
}

// ApplyDelta is the balance rule on its own: add delta to balance, floor at zero.
func ApplyDelta(balance, delta int) (newBalance, applied int) {
	next, applied := shared.PP(balance).Apply(delta)
	newBalance = next.Int()
	return newBalance, applied
}
