package query

import (
	"context"
	"fmt"
	"time"

	"github.com/Blackbeard96/summer-games/internal/domain/assessment"
	"github.com/Blackbeard96/summer-games/internal/domain/scoring"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT QUERIES
// Profile, goal history and PP ledger of one student.
// ══════════════════════════════════════════════════════════════════════════════

// BadgeDTO is an earned badge.
type BadgeDTO struct {
	Code     string    `json:"code"`
	Name     string    `json:"name"`
	EarnedAt time.Time `json:"earned_at"`
}

// StudentDTO is the student profile.
type StudentDTO struct {
	ID          string     `json:"id"`
	ClassID     string     `json:"class_id"`
	DisplayName string     `json:"display_name"`
	PP          int        `json:"pp"`
	XP          int        `json:"xp"`
	Badges      []BadgeDTO `json:"badges"`
	CreatedAt   time.Time  `json:"created_at"`
}

// GoalDTO is a goal with its evaluation, if any.
type GoalDTO struct {
	AssessmentID string           `json:"assessment_id"`
	StudentID    string           `json:"student_id"`
	Goal         float64          `json:"goal"`
	SetAt        time.Time        `json:"set_at"`
	Actual       *float64         `json:"actual,omitempty"`
	Outcome      string           `json:"outcome,omitempty"`
	PPDelta      int              `json:"pp_delta"`
	PPApplied    int              `json:"pp_applied"`
	Rewards      []scoring.Reward `json:"rewards,omitempty"`
	EvaluatedAt  *time.Time       `json:"evaluated_at,omitempty"`
	Revision     int              `json:"revision"`
}

// LedgerEntryDTO is one ledger row.
type LedgerEntryDTO struct {
	ID           string    `json:"id"`
	Delta        int       `json:"delta"`
	Applied      int       `json:"applied"`
	XPDelta      int       `json:"xp_delta"`
	BalanceAfter int       `json:"balance_after"`
	Reason       string    `json:"reason"`
	Note         string    `json:"note,omitempty"`
	SourceKey    string    `json:"source_key"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewGoalDTO converts a goal.
func NewGoalDTO(g *assessment.Goal) GoalDTO {
	dto := GoalDTO{
		AssessmentID: g.AssessmentID,
		StudentID:    g.StudentID,
		Goal:         g.Goal,
		SetAt:        g.SetAt,
		Actual:       g.Actual,
		Outcome:      string(g.Outcome),
		PPDelta:      g.PPDelta,
		PPApplied:    g.PPApplied,
		Rewards:      g.Rewards,
		Revision:     g.Revision,
	}
	if g.IsEvaluated() {
		at := g.EvaluatedAt
		dto.EvaluatedAt = &at
	}
	return dto
}

// NewLedgerEntryDTO converts a ledger entry.
func NewLedgerEntryDTO(e *student.LedgerEntry) LedgerEntryDTO {
	return LedgerEntryDTO{
		ID:           e.ID,
		Delta:        e.Delta,
		Applied:      e.Applied,
		XPDelta:      e.XPDelta,
		BalanceAfter: e.BalanceAfter,
		Reason:       string(e.Reason),
		Note:         e.Note,
		SourceKey:    e.SourceKey,
		CreatedAt:    e.CreatedAt,
	}
}

// PageQuery selects one page of a student's history.
type PageQuery struct {
	StudentID string
	Page      int
	PageSize  int
}

// Validate checks the student id.
func (q PageQuery) Validate() error {
	if q.StudentID == "" {
		return shared.NewDomainError("query", "StudentHistory", shared.ErrValidation, "student_id is required")
	}
	return nil
}

// StudentQueries serves the student read endpoints.
type StudentQueries struct {
	students student.Repository
	ledger   student.LedgerRepository
	badges   student.BadgeRepository
	goals    assessment.GoalRepository
}

// NewStudentQueries creates a new StudentQueries.
func NewStudentQueries(
	students student.Repository,
	ledger student.LedgerRepository,
	badges student.BadgeRepository,
	goals assessment.GoalRepository,
) *StudentQueries {
	return &StudentQueries{students: students, ledger: ledger, badges: badges, goals: goals}
}

// GetStudent returns the profile with badges.
func (q *StudentQueries) GetStudent(ctx context.Context, id string) (*StudentDTO, error) {
	s, err := q.students.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get_student: %w", err)
	}
	earned, err := q.badges.ListByStudent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get_student: failed to list badges: %w", err)
	}

	dto := &StudentDTO{
		ID:          s.ID,
		ClassID:     s.ClassID,
		DisplayName: s.DisplayName,
		PP:          s.PowerPoints.Int(),
		XP:          s.XP,
		Badges:      make([]BadgeDTO, 0, len(earned)),
		CreatedAt:   s.CreatedAt,
	}
	for _, b := range earned {
		dto.Badges = append(dto.Badges, BadgeDTO{Code: b.Code, Name: b.Name, EarnedAt: b.EarnedAt})
	}
	return dto, nil
}

// GetStudentGoals returns goals newest first.
func (q *StudentQueries) GetStudentGoals(ctx context.Context, pq PageQuery) ([]GoalDTO, error) {
	if err := pq.Validate(); err != nil {
		return nil, err
	}
	if _, err := q.students.GetByID(ctx, pq.StudentID); err != nil {
		return nil, fmt.Errorf("get_student_goals: %w", err)
	}
	goals, err := q.goals.ListByStudent(ctx, pq.StudentID, shared.NewPagination(pq.Page, pq.PageSize))
	if err != nil {
		return nil, fmt.Errorf("get_student_goals: %w", err)
	}
	out := make([]GoalDTO, 0, len(goals))
	for _, g := range goals {
		out = append(out, NewGoalDTO(g))
	}
	return out, nil
}

// GetLedger returns ledger entries newest first.
func (q *StudentQueries) GetLedger(ctx context.Context, pq PageQuery) ([]LedgerEntryDTO, error) {
	if err := pq.Validate(); err != nil {
		return nil, err
	}
	if _, err := q.students.GetByID(ctx, pq.StudentID); err != nil {
		return nil, fmt.Errorf("get_ledger: %w", err)
	}
	entries, err := q.ledger.ListByStudent(ctx, pq.StudentID, shared.NewPagination(pq.Page, pq.PageSize))
	if err != nil {
		return nil, fmt.Errorf("get_ledger: %w", err)
	}
	out := make([]LedgerEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, NewLedgerEntryDTO(e))
	}
	return out, nil
}
