// Package assessment models gradable events (tests, exams, quizzes, habits,
// story goals) and the goals students set against them.
package assessment

import (
	"strings"
	"time"

	"github.com/Blackbeard96/summer-games/internal/domain/scoring"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Kind is the type of gradable event.
type Kind string

const (
	KindTest      Kind = scoring.KindTest
	KindExam      Kind = scoring.KindExam
	KindQuiz      Kind = scoring.KindQuiz
	KindHabit     Kind = scoring.KindHabit
	KindStoryGoal Kind = scoring.KindStoryGoal
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindTest, KindExam, KindQuiz, KindHabit, KindStoryGoal:
		return true
	default:
		return false
	}
}

// Status is the lifecycle state of an assessment.
// Transitions are open -> locked -> graded and nothing else.
type Status string

const (
	// StatusOpen - students may set or change goals.
	StatusOpen Status = "open"
	// StatusLocked - goals are frozen, scores may be recorded.
	StatusLocked Status = "locked"
	// StatusGraded - at least one score has been recorded.
	StatusGraded Status = "graded"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusLocked, StatusGraded:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: ASSESSMENT
// ══════════════════════════════════════════════════════════════════════════════

// Assessment is a gradable event inside a class.
type Assessment struct {
	ID       string
	ClassID  string
	Title    string
	Kind     Kind
	MaxScore float64

	// LockAt closes goal setting automatically. Zero means manual locking only.
	LockAt time.Time

	Status  Status
	Scoring scoring.Config

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
	LockedAt  time.Time
	GradedAt  time.Time
}

// NewAssessmentParams holds the data needed to create an assessment.
type NewAssessmentParams struct {
	ID        string
	ClassID   string
	Title     string
	Kind      Kind
	MaxScore  float64
	LockAt    time.Time
	Scoring   scoring.Config
	CreatedBy string
	Now       time.Time
}

const maxTitleLength = 200

// NewAssessment validates params and builds an open assessment.
// An empty scoring config is replaced by the default policy for the kind.
func NewAssessment(p NewAssessmentParams) (*Assessment, error) {
	const op = "NewAssessment"

	if strings.TrimSpace(p.ID) == "" {
		return nil, shared.NewDomainError("assessment", op, shared.ErrInvalidID, "assessment id is required")
	}
	classID, err := shared.NormalizeID("assessment", op, "class id", p.ClassID)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(p.Title)
	if title == "" || len(title) > maxTitleLength {
		return nil, shared.Validationf("assessment", op, "title must be 1-%d characters", maxTitleLength)
	}
	if !p.Kind.IsValid() {
		return nil, shared.Validationf("assessment", op, "unknown assessment kind %q", p.Kind)
	}
	if !(p.MaxScore > 0) || p.MaxScore > 1_000_000 {
		return nil, shared.Validationf("assessment", op, "max score must be within (0, 1000000], got %v", p.MaxScore)
	}

	cfg := p.Scoring
	if cfg.IsZero() {
		cfg = scoring.DefaultConfig(string(p.Kind))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if !p.LockAt.IsZero() && !p.LockAt.After(now) {
		return nil, shared.Validationf("assessment", op, "lock time must be in the future")
	}

	return &Assessment{
		ID:        p.ID,
		ClassID:   classID,
		Title:     title,
		Kind:      p.Kind,
		MaxScore:  p.MaxScore,
		LockAt:    p.LockAt.UTC(),
		Status:    StatusOpen,
		Scoring:   cfg.Normalize(),
		CreatedBy: p.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// CanSetGoal reports whether goals may be set or changed at now.
func (a *Assessment) CanSetGoal(now time.Time) bool {
	if a.Status != StatusOpen {
		return false
	}
	return a.LockAt.IsZero() || now.Before(a.LockAt)
}

// IsLockDue reports whether the scheduled lock time has passed on an open assessment.
func (a *Assessment) IsLockDue(now time.Time) bool {
	return a.Status == StatusOpen && !a.LockAt.IsZero() && !now.Before(a.LockAt)
}

// CanRecordScore reports whether actual scores may be recorded.
func (a *Assessment) CanRecordScore() bool {
	return a.Status == StatusLocked || a.Status == StatusGraded
}

// Lock closes goal setting.
func (a *Assessment) Lock(now time.Time) error {
	if a.Status != StatusOpen {
		return shared.NewDomainError("assessment", "Lock", shared.ErrStateTransition,
			"only open assessments can be locked, status is "+string(a.Status))
	}
	a.Status = StatusLocked
	a.LockedAt = now
	a.UpdatedAt = now
	return nil
}

// MarkGraded moves a locked assessment to graded. Already graded is a no-op.
func (a *Assessment) MarkGraded(now time.Time) error {
	switch a.Status {
	case StatusGraded:
		return nil
	case StatusLocked:
		a.Status = StatusGraded
		a.GradedAt = now
		a.UpdatedAt = now
		return nil
	default:
		return shared.ErrAssessmentNotReady
	}
}

// ValidateScore checks that v is a usable goal or actual score.
func (a *Assessment) ValidateScore(field string, v float64) error {
	if v != v || v < 0 || v > a.MaxScore {
		return shared.Validationf("assessment", "ValidateScore", "%s must be within [0,%v], got %v", field, a.MaxScore, v)
	}
	return nil
}

// ScoreInput builds the scoring input for a goal/actual pair.
func (a *Assessment) ScoreInput(goal, actual float64) scoring.Input {
	return scoring.Input{Goal: goal, Actual: actual, MaxScore: a.MaxScore}
}
