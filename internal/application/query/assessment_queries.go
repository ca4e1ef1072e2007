package query

import (
	"context"
	"fmt"
	"time"

	"github.com/Blackbeard96/summer-games/internal/domain/assessment"
	"github.com/Blackbeard96/summer-games/internal/domain/scoring"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASSESSMENT QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// AssessmentDTO is an assessment with its scoring policy.
type AssessmentDTO struct {
	ID        string         `json:"id"`
	ClassID   string         `json:"class_id"`
	Title     string         `json:"title"`
	Kind      string         `json:"kind"`
	MaxScore  float64        `json:"max_score"`
	Status    string         `json:"status"`
	LockAt    *time.Time     `json:"lock_at,omitempty"`
	Scoring   scoring.Config `json:"scoring"`
	CreatedBy string         `json:"created_by,omitempty"`
	CreatedAt time.Time      `json:"created_at"`

	// Goals is filled only when the caller may see every goal.
	Goals     []GoalDTO `json:"goals,omitempty"`
	GoalCount int       `json:"goal_count"`
}

// NewAssessmentDTO converts an assessment without goals.
func NewAssessmentDTO(a *assessment.Assessment) AssessmentDTO {
	dto := AssessmentDTO{
		ID:        a.ID,
		ClassID:   a.ClassID,
		Title:     a.Title,
		Kind:      string(a.Kind),
		MaxScore:  a.MaxScore,
		Status:    string(a.Status),
		Scoring:   a.Scoring,
		CreatedBy: a.CreatedBy,
		CreatedAt: a.CreatedAt,
	}
	if !a.LockAt.IsZero() {
		at := a.LockAt
		dto.LockAt = &at
	}
	return dto
}

// GetAssessmentQuery loads one assessment.
type GetAssessmentQuery struct {
	AssessmentID string
	WithGoals    bool
}

// AssessmentQueries serves the assessment read endpoints.
type AssessmentQueries struct {
	assessments assessment.Repository
	goals       assessment.GoalRepository
}

// NewAssessmentQueries creates a new AssessmentQueries.
func NewAssessmentQueries(assessments assessment.Repository, goals assessment.GoalRepository) *AssessmentQueries {
	return &AssessmentQueries{assessments: assessments, goals: goals}
}

// GetAssessment returns the assessment and, on request, its goals.
func (q *AssessmentQueries) GetAssessment(ctx context.Context, gq GetAssessmentQuery) (*AssessmentDTO, error) {
	if gq.AssessmentID == "" {
		return nil, shared.NewDomainError("query", "GetAssessment", shared.ErrValidation, "assessment_id is required")
	}
	a, err := q.assessments.GetByID(ctx, gq.AssessmentID)
	if err != nil {
		return nil, fmt.Errorf("get_assessment: %w", err)
	}
	dto := NewAssessmentDTO(a)

	if gq.WithGoals {
		goals, err := q.goals.ListByAssessment(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("get_assessment: failed to list goals: %w", err)
		}
		dto.Goals = make([]GoalDTO, 0, len(goals))
		for _, g := range goals {
			dto.Goals = append(dto.Goals, NewGoalDTO(g))
		}
		dto.GoalCount = len(goals)
		return &dto, nil
	}

	dto.GoalCount, err = q.goals.CountByAssessment(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("get_assessment: failed to count goals: %w", err)
	}
	return &dto, nil
}

// ListClassAssessments returns a class's assessments, newest first.
func (q *AssessmentQueries) ListClassAssessments(ctx context.Context, classID string, page, pageSize int) ([]AssessmentDTO, error) {
	if classID == "" {
		return nil, shared.NewDomainError("query", "ListClassAssessments", shared.ErrValidation, "class_id is required")
	}
	list, err := q.assessments.ListByClass(ctx, classID, shared.NewPagination(page, pageSize))
	if err != nil {
		return nil, fmt.Errorf("list_class_assessments: %w", err)
	}
	out := make([]AssessmentDTO, 0, len(list))
	for _, a := range list {
		out = append(out, NewAssessmentDTO(a))
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PREVIEW SCORE QUERY
// Runs the scorer without touching storage, so students can see what a
// goal is worth before committing to it.
// ══════════════════════════════════════════════════════════════════════════════

// PreviewScoreQuery contains a hypothetical goal/actual pair.
type PreviewScoreQuery struct {
	Kind     string
	Goal     float64
	Actual   float64
	MaxScore float64

	// Scoring overrides the kind default when set.
	Scoring *scoring.Config

	// AssessmentID, when set, scores against that assessment's policy
	// and max score instead of Kind, MaxScore and Scoring.
	AssessmentID string
}

// PreviewScore evaluates the query.
func (q *AssessmentQueries) PreviewScore(ctx context.Context, pq PreviewScoreQuery) (*scoring.Result, error) {
	in := scoring.Input{Goal: pq.Goal, Actual: pq.Actual, MaxScore: pq.MaxScore}

	if pq.AssessmentID != "" {
		a, err := q.assessments.GetByID(ctx, pq.AssessmentID)
		if err != nil {
			return nil, fmt.Errorf("preview_score: %w", err)
		}
		res, err := scoring.Score(a.ScoreInput(pq.Goal, pq.Actual), a.Scoring)
		if err != nil {
			return nil, fmt.Errorf("preview_score: %w", err)
		}
		return &res, nil
	}

	kind := pq.Kind
	if kind == "" {
		kind = scoring.KindTest
	}
	if !assessment.Kind(kind).IsValid() {
		return nil, shared.Validationf("query", "PreviewScore", "unknown assessment kind %q", kind)
	}

	var cfg scoring.Config
	if pq.Scoring != nil {
		cfg = *pq.Scoring
	}
	res, err := scoring.Preview(kind, in, cfg)
	if err != nil {
		return nil, fmt.Errorf("preview_score: %w", err)
	}
	return &res, nil
}
