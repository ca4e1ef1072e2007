package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Blackbeard96/summer-games/internal/domain/assessment"
	"github.com/Blackbeard96/summer-games/internal/domain/scoring"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASSESSMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AssessmentRepository implements assessment.Repository.
type AssessmentRepository struct {
	conn *Connection
}

// NewAssessmentRepository creates a new AssessmentRepository.
func NewAssessmentRepository(conn *Connection) *AssessmentRepository {
	return &AssessmentRepository{conn: conn}
}

var _ assessment.Repository = (*AssessmentRepository)(nil)

const assessmentColumns = `
	id, class_id, title, kind, max_score, lock_at, status, scoring,
	created_by, created_at, updated_at, locked_at, graded_at`

// Create inserts a new assessment.
func (r *AssessmentRepository) Create(ctx context.Context, a *assessment.Assessment) error {
	cfg, err := json.Marshal(a.Scoring)
	if err != nil {
		return fmt.Errorf("failed to marshal scoring config: %w", err)
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO assessments (`+assessmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		a.ID,
		a.ClassID,
		a.Title,
		string(a.Kind),
		a.MaxScore,
		nullTime(a.LockAt),
		string(a.Status),
		cfg,
		a.CreatedBy,
		a.CreatedAt,
		a.UpdatedAt,
		nullTime(a.LockedAt),
		nullTime(a.GradedAt),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("assessment", "Create", shared.ErrAlreadyExists, "assessment already exists")
		}
		return fmt.Errorf("failed to create assessment: %w", err)
	}
	return nil
}

// GetByID returns an assessment by ID.
func (r *AssessmentRepository) GetByID(ctx context.Context, id string) (*assessment.Assessment, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+assessmentColumns+` FROM assessments WHERE id = $1`, id)
	return scanAssessment(row)
}

// Update persists status and timestamps.
func (r *AssessmentRepository) Update(ctx context.Context, a *assessment.Assessment) error {
	return updateAssessment(ctx, r.conn, a)
}

// ListByClass returns assessments newest first.
func (r *AssessmentRepository) ListByClass(ctx context.Context, classID string, page shared.Pagination) ([]*assessment.Assessment, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+assessmentColumns+`
		FROM assessments
		WHERE class_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, classID, page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	defer rows.Close()
	return collectAssessments(rows)
}

// FindLockDue returns open assessments whose lock time has passed.
func (r *AssessmentRepository) FindLockDue(ctx context.Context, now time.Time, limit int) ([]*assessment.Assessment, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+assessmentColumns+`
		FROM assessments
		WHERE status = 'open' AND lock_at IS NOT NULL AND lock_at <= $1
		ORDER BY lock_at, id
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find lock-due assessments: %w", err)
	}
	defer rows.Close()
	return collectAssessments(rows)
}

func updateAssessment(ctx context.Context, q Querier, a *assessment.Assessment) error {
	tag, err := q.Exec(ctx, `
		UPDATE assessments SET
			status = $1,
			updated_at = $2,
			locked_at = $3,
			graded_at = $4
		WHERE id = $5
	`, string(a.Status), a.UpdatedAt, nullTime(a.LockedAt), nullTime(a.GradedAt), a.ID)
	if err != nil {
		return fmt.Errorf("failed to update assessment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrAssessmentNotFound
	}
	return nil
}

func collectAssessments(rows pgx.Rows) ([]*assessment.Assessment, error) {
	out := make([]*assessment.Assessment, 0)
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAssessment(row pgx.Row) (*assessment.Assessment, error) {
	var (
		a                          assessment.Assessment
		kind, status               string
		cfg                        []byte
		lockAt, lockedAt, gradedAt *time.Time
	)
	err := row.Scan(
		&a.ID,
		&a.ClassID,
		&a.Title,
		&kind,
		&a.MaxScore,
		&lockAt,
		&status,
		&cfg,
		&a.CreatedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
		&lockedAt,
		&gradedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to scan assessment: %w", err)
	}

	var sc scoring.Config
	if err := json.Unmarshal(cfg, &sc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scoring config of %s: %w", a.ID, err)
	}

	a.Kind = assessment.Kind(kind)
	a.Status = assessment.Status(status)
	a.Scoring = sc.Normalize()
	a.LockAt = timeOrZero(lockAt)
	a.LockedAt = timeOrZero(lockedAt)
	a.GradedAt = timeOrZero(gradedAt)
	return &a, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GOAL REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// GoalRepository implements assessment.GoalRepository and assessment.GradingStore.
type GoalRepository struct {
	conn *Connection
}

// NewGoalRepository creates a new GoalRepository.
func NewGoalRepository(conn *Connection) *GoalRepository {
	return &GoalRepository{conn: conn}
}

var (
	_ assessment.GoalRepository = (*GoalRepository)(nil)
	_ assessment.GradingStore   = (*GoalRepository)(nil)
)

const goalColumns = `
	assessment_id, student_id, goal, set_at, actual, outcome, pp_delta,
	pp_applied, rewards, evaluated_at, revision`

// Save inserts the goal or replaces its value.
func (r *GoalRepository) Save(ctx context.Context, g *assessment.Goal) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO assessment_goals (assessment_id, student_id, goal, set_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (assessment_id, student_id)
		DO UPDATE SET goal = EXCLUDED.goal, set_at = EXCLUDED.set_at
	`, g.AssessmentID, g.StudentID, g.Goal, g.SetAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			if constraintName(err) == "assessment_goals_student_id_fkey" {
				return shared.ErrStudentNotFound
			}
			return shared.ErrAssessmentNotFound
		}
		return fmt.Errorf("failed to save goal: %w", err)
	}
	return nil
}

// Get returns one student's goal on an assessment.
func (r *GoalRepository) Get(ctx context.Context, assessmentID, studentID string) (*assessment.Goal, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT `+goalColumns+`
		FROM assessment_goals
		WHERE assessment_id = $1 AND student_id = $2
	`, assessmentID, studentID)
	return scanGoal(row)
}

// ListByAssessment returns every goal on the assessment.
func (r *GoalRepository) ListByAssessment(ctx context.Context, assessmentID string) ([]*assessment.Goal, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+goalColumns+`
		FROM assessment_goals
		WHERE assessment_id = $1
		ORDER BY student_id
	`, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()
	return collectGoals(rows)
}

// ListByStudent returns a student's goals, newest first.
func (r *GoalRepository) ListByStudent(ctx context.Context, studentID string, page shared.Pagination) ([]*assessment.Goal, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+goalColumns+`
		FROM assessment_goals
		WHERE student_id = $1
		ORDER BY set_at DESC, assessment_id
		LIMIT $2 OFFSET $3
	`, studentID, page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list student goals: %w", err)
	}
	defer rows.Close()
	return collectGoals(rows)
}

// CountByAssessment returns how many students set a goal.
func (r *GoalRepository) CountByAssessment(ctx context.Context, assessmentID string) (int, error) {
	var n int
	err := r.conn.QueryRow(ctx,
		`SELECT count(*) FROM assessment_goals WHERE assessment_id = $1`, assessmentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count goals: %w", err)
	}
	return n, nil
}

// OutcomeHistory returns outcome labels of evaluated goals, oldest first.
func (r *GoalRepository) OutcomeHistory(ctx context.Context, studentID string) ([]string, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT outcome
		FROM assessment_goals
		WHERE student_id = $1 AND evaluated_at IS NOT NULL
		ORDER BY evaluated_at, assessment_id
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load outcome history: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SaveEvaluation commits the goal evaluation, the assessment status and the
// ledger entry together. A goal whose stored revision moved since it was
// loaded reports shared.ErrConcurrentModification.
func (r *GoalRepository) SaveEvaluation(ctx context.Context, a *assessment.Assessment, g *assessment.Goal, change student.PPChange) (*student.LedgerEntry, error) {
	if !change.IsNoop() {
		if err := change.Validate(); err != nil {
			return nil, err
		}
	}

	rewards, err := json.Marshal(g.Rewards)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rewards: %w", err)
	}

	var entry *student.LedgerEntry
	err = r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var stored int
		err := tx.QueryRow(ctx, `
			SELECT revision FROM assessment_goals
			WHERE assessment_id = $1 AND student_id = $2
			FOR UPDATE
		`, g.AssessmentID, g.StudentID).Scan(&stored)
		if err != nil {
			if IsNoRows(err) {
				return shared.ErrGoalNotFound
			}
			return fmt.Errorf("failed to lock goal: %w", err)
		}
		if stored != g.Revision-1 {
			return fmt.Errorf("goal %s/%s revision %d, expected %d: %w",
				g.AssessmentID, g.StudentID, stored, g.Revision-1, shared.ErrConcurrentModification)
		}

		applied := g.PPApplied
		if !change.IsNoop() {
			entry, err = applyChange(ctx, tx, change)
			if err != nil {
				return err
			}
			applied += entry.Applied
		}

		_, err = tx.Exec(ctx, `
			UPDATE assessment_goals SET
				actual = $1,
				outcome = $2,
				pp_delta = $3,
				pp_applied = $4,
				rewards = $5,
				evaluated_at = $6,
				revision = $7
			WHERE assessment_id = $8 AND student_id = $9
		`, g.Actual, string(g.Outcome), g.PPDelta, applied, rewards, nullTime(g.EvaluatedAt), g.Revision,
			g.AssessmentID, g.StudentID)
		if err != nil {
			return fmt.Errorf("failed to store evaluation: %w", err)
		}

		return updateAssessment(ctx, tx, a)
	})
	if err != nil {
		return nil, err
	}
	if entry != nil {
		g.Settle(entry.Applied)
	}
	return entry, nil
}

func collectGoals(rows pgx.Rows) ([]*assessment.Goal, error) {
	out := make([]*assessment.Goal, 0)
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGoal(row pgx.Row) (*assessment.Goal, error) {
	var (
		g           assessment.Goal
		outcome     string
		rewards     []byte
		evaluatedAt *time.Time
	)
	err := row.Scan(
		&g.AssessmentID,
		&g.StudentID,
		&g.Goal,
		&g.SetAt,
		&g.Actual,
		&outcome,
		&g.PPDelta,
		&g.PPApplied,
		&rewards,
		&evaluatedAt,
		&g.Revision,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrGoalNotFound
		}
		return nil, fmt.Errorf("failed to scan goal: %w", err)
	}

	if len(rewards) > 0 {
		if err := json.Unmarshal(rewards, &g.Rewards); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rewards: %w", err)
		}
	}
	if len(g.Rewards) == 0 {
		g.Rewards = nil
	}
	g.Outcome = scoring.Outcome(outcome)
	g.EvaluatedAt = timeOrZero(evaluatedAt)
	return &g, nil
}
