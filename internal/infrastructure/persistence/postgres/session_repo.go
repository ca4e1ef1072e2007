package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Blackbeard96/summer-games/internal/domain/session"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// SessionRepository implements session.Repository and session.AwardStore.
type SessionRepository struct {
	conn *Connection
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(conn *Connection) *SessionRepository {
	return &SessionRepository{conn: conn}
}

var (
	_ session.Repository = (*SessionRepository)(nil)
	_ session.AwardStore = (*SessionRepository)(nil)
)

const roomColumns = `id, class_id, teacher_id, title, status, awards, started_at, ended_at`

// Create inserts an active room. The partial unique index on class_id
// rejects a second active room.
func (r *SessionRepository) Create(ctx context.Context, room *session.Room) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO session_rooms (`+roomColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		room.ID,
		room.ClassID,
		room.TeacherID,
		room.Title,
		string(room.Status),
		room.Awards,
		room.StartedAt,
		nullTime(room.EndedAt),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			if constraintName(err) == "idx_session_rooms_one_active" {
				return shared.ErrSessionAlreadyActive
			}
			return shared.NewDomainError("session", "Start", shared.ErrAlreadyExists, "session already exists")
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByID loads the room with its participants.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*session.Room, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+roomColumns+` FROM session_rooms WHERE id = $1`, id)
	room, err := scanRoom(row)
	if err != nil {
		return nil, err
	}
	return room, r.loadParticipants(ctx, room)
}

// GetActiveByClass returns the active room of a class.
func (r *SessionRepository) GetActiveByClass(ctx context.Context, classID string) (*session.Room, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT `+roomColumns+`
		FROM session_rooms
		WHERE class_id = $1 AND status = 'active'
	`, classID)
	room, err := scanRoom(row)
	if err != nil {
		return nil, err
	}
	return room, r.loadParticipants(ctx, room)
}

// AddParticipant records a join. Re-adding is a no-op.
func (r *SessionRepository) AddParticipant(ctx context.Context, roomID string, p session.Participant) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO session_participants (room_id, student_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (room_id, student_id) DO NOTHING
	`, roomID, p.StudentID, p.JoinedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			if constraintName(err) == "session_participants_student_id_fkey" {
				return shared.ErrStudentNotFound
			}
			return shared.ErrSessionNotFound
		}
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

// End persists the ended status. Ending a room that another caller already
// ended reports a state transition error.
func (r *SessionRepository) End(ctx context.Context, room *session.Room) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE session_rooms SET status = $1, ended_at = $2
		WHERE id = $3 AND status = 'active'
	`, string(room.Status), nullTime(room.EndedAt), room.ID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewDomainError("session", "End", shared.ErrStateTransition, "session already ended")
	}
	return nil
}

// FindActiveStartedBefore returns active rooms started before t.
func (r *SessionRepository) FindActiveStartedBefore(ctx context.Context, t time.Time) ([]*session.Room, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+roomColumns+`
		FROM session_rooms
		WHERE status = 'active' AND started_at < $1
		ORDER BY started_at
	`, t)
	if err != nil {
		return nil, fmt.Errorf("failed to find stale sessions: %w", err)
	}
	defer rows.Close()

	rooms := make([]*session.Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// SaveAward applies every change of the round in one transaction. The room
// row is locked first; a round counter that moved since the room was loaded
// reports shared.ErrConcurrentModification.
func (r *SessionRepository) SaveAward(ctx context.Context, room *session.Room, changes []student.PPChange) ([]*student.LedgerEntry, error) {
	for _, c := range changes {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}

	entries := make([]*student.LedgerEntry, 0, len(changes))
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var (
			status string
			awards int
		)
		err := tx.QueryRow(ctx,
			`SELECT status, awards FROM session_rooms WHERE id = $1 FOR UPDATE`, room.ID).Scan(&status, &awards)
		if err != nil {
			if IsNoRows(err) {
				return shared.ErrSessionNotFound
			}
			return fmt.Errorf("failed to lock session: %w", err)
		}
		if session.Status(status) != session.StatusActive {
			return shared.NewDomainError("session", "Award", shared.ErrInvalidState, "session already ended")
		}
		if awards != room.Awards-1 {
			return fmt.Errorf("session %s award round %d, expected %d: %w",
				room.ID, awards, room.Awards-1, shared.ErrConcurrentModification)
		}

		for _, c := range changes {
			e, err := applyChange(ctx, tx, c)
			if err != nil {
				return fmt.Errorf("award %s: %w", c.StudentID, err)
			}
			entries = append(entries, e)
		}

		_, err = tx.Exec(ctx, `UPDATE session_rooms SET awards = $1 WHERE id = $2`, room.Awards, room.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *SessionRepository) loadParticipants(ctx context.Context, room *session.Room) error {
	rows, err := r.conn.Query(ctx, `
		SELECT student_id, joined_at
		FROM session_participants
		WHERE room_id = $1
		ORDER BY joined_at, student_id
	`, room.ID)
	if err != nil {
		return fmt.Errorf("failed to load participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p session.Participant
		if err := rows.Scan(&p.StudentID, &p.JoinedAt); err != nil {
			return fmt.Errorf("failed to scan participant: %w", err)
		}
		room.Participants = append(room.Participants, p)
	}
	return rows.Err()
}

func scanRoom(row pgx.Row) (*session.Room, error) {
	var (
		room    session.Room
		status  string
		endedAt *time.Time
	)
	err := row.Scan(
		&room.ID,
		&room.ClassID,
		&room.TeacherID,
		&room.Title,
		&status,
		&room.Awards,
		&room.StartedAt,
		&endedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	room.Status = session.Status(status)
	room.EndedAt = timeOrZero(endedAt)
	return &room, nil
}
