package student

import (
	"strings"
	"time"

	"github.com/Blackbeard96/summer-games/internal/domain/shared"
)

// Reason says why PP moved.
type Reason string

const (
	ReasonGoal       Reason = "goal"
	ReasonRegrade    Reason = "regrade"
	ReasonSession    Reason = "session"
	ReasonAdjustment Reason = "adjustment"
)

// PPChange is a request to move one student's balance.
// SourceKey makes the change idempotent: the ledger accepts each key once.
type PPChange struct {
	StudentID string
	Delta     int
	XPDelta   int
	Reason    Reason
	Note      string
	SourceKey string
	At        time.Time
}

// Validate checks the change before it reaches storage.
func (c PPChange) Validate() error {
	if strings.TrimSpace(c.StudentID) == "" {
		return shared.NewDomainError("student", "ApplyPP", shared.ErrEmptyValue, "student id is required")
	}
	if strings.TrimSpace(c.SourceKey) == "" {
		return shared.NewDomainError("student", "ApplyPP", shared.ErrEmptyValue, "source key is required")
	}
	switch c.Reason {
	case ReasonGoal, ReasonRegrade, ReasonSession, ReasonAdjustment:
	default:
		return shared.Validationf("student", "ApplyPP", "unknown reason %q", c.Reason)
	}
	return nil
}

// IsNoop reports whether the change would not touch the ledger.
func (c PPChange) IsNoop() bool {
	return c.Delta == 0 && c.XPDelta == 0
}

// LedgerEntry is one immutable row of the PP ledger.
type LedgerEntry struct {
	ID        string
	StudentID string
	ClassID   string

	// Delta is what was requested; Applied is what hit the balance.
	Delta        int
	Applied      int
	XPDelta      int
	BalanceAfter int

	Reason    Reason
	Note      string
	SourceKey string
	CreatedAt time.Time
}

// Apply runs change against s and returns the resulting ledger entry.
// The caller persists both inside one transaction.
func Apply(s *Student, entryID string, change PPChange) *LedgerEntry {
	at := change.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	applied := s.ApplyPP(change.Delta, at)
	xp := s.AddXP(change.XPDelta, at)

	return &LedgerEntry{
		ID:           entryID,
		StudentID:    s.ID,
		ClassID:      s.ClassID,
		Delta:        change.Delta,
		Applied:      applied,
		XPDelta:      xp,
		BalanceAfter: s.PowerPoints.Int(),
		Reason:       change.Reason,
		Note:         change.Note,
		SourceKey:    change.SourceKey,
		CreatedAt:    at,
	}
}

// ToEvent builds the pp.changed event for this entry.
func (e *LedgerEntry) ToEvent() shared.PPChangedEvent {
	return shared.NewPPChangedEvent(e.StudentID, e.ClassID, e.Delta, e.Applied, e.BalanceAfter, string(e.Reason), e.SourceKey)
}
