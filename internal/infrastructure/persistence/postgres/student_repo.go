package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Blackbeard96/summer-games/internal/domain/leaderboard"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository and leaderboard.Source.
type StudentRepository struct {
	conn *Connection
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

var (
	_ student.Repository = (*StudentRepository)(nil)
	_ leaderboard.Source = (*StudentRepository)(nil)
)

const studentColumns = `id, class_id, display_name, power_points, xp, created_at, updated_at`

// Create inserts a student.
func (r *StudentRepository) Create(ctx context.Context, s *student.Student) error {
	query := `
		INSERT INTO students (` + studentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.conn.Exec(ctx, query,
		s.ID,
		s.ClassID,
		s.DisplayName,
		s.PowerPoints.Int(),
		s.XP,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrStudentAlreadyExists
		}
		return fmt.Errorf("failed to create student: %w", err)
	}
	return nil
}

// GetByID returns a student by ID.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*student.Student, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
	return scanStudent(row)
}

// ListByClass returns the class ordered by PP descending, then id.
func (r *StudentRepository) ListByClass(ctx context.Context, classID string, page shared.Pagination) ([]*student.Student, error) {
	query := `
		SELECT ` + studentColumns + `
		FROM students
		WHERE class_id = $1
		ORDER BY power_points DESC, id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.conn.Query(ctx, query, classID, page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	students := make([]*student.Student, 0, page.Limit())
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// ClassStandings returns every student of the class with their balance.
func (r *StudentRepository) ClassStandings(ctx context.Context, classID string) ([]leaderboard.Entry, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT id, display_name, power_points FROM students WHERE class_id = $1`, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to load class standings: %w", err)
	}
	defer rows.Close()

	entries := make([]leaderboard.Entry, 0)
	for rows.Next() {
		var e leaderboard.Entry
		if err := rows.Scan(&e.StudentID, &e.DisplayName, &e.PP); err != nil {
			return nil, fmt.Errorf("failed to scan standing: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanStudent(row pgx.Row) (*student.Student, error) {
	var (
		s  student.Student
		pp int
	)
	err := row.Scan(&s.ID, &s.ClassID, &s.DisplayName, &pp, &s.XP, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to scan student: %w", err)
	}
	s.PowerPoints = shared.PP(pp)
	return &s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository implements student.LedgerRepository.
type LedgerRepository struct {
	conn *Connection
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(conn *Connection) *LedgerRepository {
	return &LedgerRepository{conn: conn}
}

var _ student.LedgerRepository = (*LedgerRepository)(nil)

// Apply moves one balance inside its own transaction.
func (r *LedgerRepository) Apply(ctx context.Context, change student.PPChange) (*student.LedgerEntry, error) {
	if err := change.Validate(); err != nil {
		return nil, err
	}

	var entry *student.LedgerEntry
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var err error
		entry, err = applyChange(ctx, tx, change)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListByStudent returns entries newest first.
func (r *LedgerRepository) ListByStudent(ctx context.Context, studentID string, page shared.Pagination) ([]*student.LedgerEntry, error) {
	query := `
		SELECT id, student_id, class_id, delta, applied, xp_delta, balance_after,
			   reason, note, source_key, created_at
		FROM pp_ledger
		WHERE student_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.conn.Query(ctx, query, studentID, page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	defer rows.Close()

	entries := make([]*student.LedgerEntry, 0, page.Limit())
	for rows.Next() {
		var (
			e      student.LedgerEntry
			reason string
		)
		err := rows.Scan(&e.ID, &e.StudentID, &e.ClassID, &e.Delta, &e.Applied, &e.XPDelta,
			&e.BalanceAfter, &reason, &e.Note, &e.SourceKey, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Reason = student.Reason(reason)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// applyChange locks the student row, updates the balance and appends the
// ledger entry. It must run inside tx.
func applyChange(ctx context.Context, tx pgx.Tx, change student.PPChange) (*student.LedgerEntry, error) {
	row := tx.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1 FOR UPDATE`, change.StudentID)
	s, err := scanStudent(row)
	if err != nil {
		return nil, err
	}

	entry := student.Apply(s, uuid.NewString(), change)

	_, err = tx.Exec(ctx, `
		INSERT INTO pp_ledger (
			id, student_id, class_id, delta, applied, xp_delta, balance_after,
			reason, note, source_key, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		entry.ID,
		entry.StudentID,
		entry.ClassID,
		entry.Delta,
		entry.Applied,
		entry.XPDelta,
		entry.BalanceAfter,
		string(entry.Reason),
		entry.Note,
		entry.SourceKey,
		entry.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) && constraintName(err) == "pp_ledger_source_key_unique" {
			return nil, shared.ErrDuplicateLedgerEntry
		}
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE students SET power_points = $1, xp = $2, updated_at = $3 WHERE id = $4`,
		s.PowerPoints.Int(), s.XP, s.UpdatedAt, s.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}
	return entry, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// BadgeRepository implements student.BadgeRepository.
type BadgeRepository struct {
	conn *Connection
}

// NewBadgeRepository creates a new BadgeRepository.
func NewBadgeRepository(conn *Connection) *BadgeRepository {
	return &BadgeRepository{conn: conn}
}

var _ student.BadgeRepository = (*BadgeRepository)(nil)

// ListByStudent returns the student's badges, oldest first.
func (r *BadgeRepository) ListByStudent(ctx context.Context, studentID string) ([]student.EarnedBadge, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT code, name, description, earned_at
		FROM student_badges
		WHERE student_id = $1
		ORDER BY earned_at, code
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	defer rows.Close()

	badges := make([]student.EarnedBadge, 0)
	for rows.Next() {
		b := student.EarnedBadge{StudentID: studentID}
		if err := rows.Scan(&b.Code, &b.Name, &b.Description, &b.EarnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

// Award stores the badge and reports whether it was new.
func (r *BadgeRepository) Award(ctx context.Context, b student.EarnedBadge) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
		INSERT INTO student_badges (student_id, code, name, description, earned_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id, code) DO NOTHING
	`, b.StudentID, b.Code, b.Name, b.Description, b.EarnedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return false, shared.ErrStudentNotFound
		}
		return false, fmt.Errorf("failed to award badge: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// NULLABLE TIME HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
