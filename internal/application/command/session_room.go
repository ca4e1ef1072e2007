package command

import (
	"context"
	"fmt"
	"time"

	"github.com/Blackbeard96/summer-games/internal/domain/session"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/internal/domain/student"
	"github.com/Blackbeard96/summer-games/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION ROOM COMMANDS
// Live class sessions: the teacher starts a room, students join, the
// teacher awards participation PP to everyone present, then ends it.
// ══════════════════════════════════════════════════════════════════════════════

// StartSessionCommand opens a room for a class.
type StartSessionCommand struct {
	ClassID   string
	TeacherID string
	Title     string
}

// Validate validates the command.
func (c StartSessionCommand) Validate() error {
	if c.ClassID == "" {
		return invalid("start_session", "class_id is required")
	}
	if c.TeacherID == "" {
		return invalid("start_session", "teacher_id is required")
	}
	return nil
}

// JoinSessionCommand adds a student to a room.
type JoinSessionCommand struct {
	SessionID string
	StudentID string
}

// Validate validates the command.
func (c JoinSessionCommand) Validate() error {
	if c.SessionID == "" {
		return invalid("join_session", "session_id is required")
	}
	if c.StudentID == "" {
		return invalid("join_session", "student_id is required")
	}
	return nil
}

// JoinSessionResult reports whether the join was new.
type JoinSessionResult struct {
	Room   *session.Room
	Joined bool
}

// AwardSessionCommand gives PP to every participant.
type AwardSessionCommand struct {
	SessionID string
	Amount    int
	Reason    string
}

// Validate validates the command.
func (c AwardSessionCommand) Validate() error {
	if c.SessionID == "" {
		return invalid("award_session", "session_id is required")
	}
	return nil
}

// AwardSessionResult lists the ledger entries of the round.
type AwardSessionResult struct {
	Room    *session.Room
	Entries []*student.LedgerEntry
}

// EndSessionCommand closes a room.
type EndSessionCommand struct {
	SessionID string
}

// Validate validates the command.
func (c EndSessionCommand) Validate() error {
	if c.SessionID == "" {
		return invalid("end_session", "session_id is required")
	}
	return nil
}

// EndStaleSessionsCommand closes rooms left open longer than MaxAge.
type EndStaleSessionsCommand struct {
	MaxAge time.Duration
}

// SessionHandlerConfig contains configuration for the handler.
type SessionHandlerConfig struct {
	// MaxDuration is how long a room may stay active before the
	// scheduler ends it.
	MaxDuration time.Duration
}

// DefaultSessionHandlerConfig returns default configuration.
func DefaultSessionHandlerConfig() SessionHandlerConfig {
	return SessionHandlerConfig{MaxDuration: 3 * time.Hour}
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SessionHandler handles every session room command.
type SessionHandler struct {
	rooms       session.Repository
	awards      session.AwardStore
	students    student.Repository
	publisher   shared.EventPublisher
	log         *logger.Logger
	now         Clock
	maxDuration time.Duration
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(
	rooms session.Repository,
	awards session.AwardStore,
	students student.Repository,
	publisher shared.EventPublisher,
	log *logger.Logger,
	clock Clock,
	config SessionHandlerConfig,
) *SessionHandler {
	if config.MaxDuration <= 0 {
		config = DefaultSessionHandlerConfig()
	}
	return &SessionHandler{
		rooms:       rooms,
		awards:      awards,
		students:    students,
		publisher:   orPublisher(publisher),
		log:         orLogger(log).With(logger.Component("session")),
		now:         orClock(clock),
		maxDuration: config.MaxDuration,
	}
}

// Start opens a room. A class with an active room gets shared.ErrSessionAlreadyActive.
func (h *SessionHandler) Start(ctx context.Context, cmd StartSessionCommand) (*session.Room, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("start_session: validation failed: %w", err)
	}

	r, err := session.NewRoom(session.NewRoomParams{
		ID:        newID(),
		ClassID:   cmd.ClassID,
		TeacherID: cmd.TeacherID,
		Title:     cmd.Title,
		Now:       h.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("start_session: %w", err)
	}
	if err := h.rooms.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("start_session: failed to save room: %w", err)
	}

	publish(h.publisher, h.log, shared.NewSessionEvent(shared.EventSessionStarted, r.ID, r.ClassID, ""))
	h.log.Info("session started", logger.SessionID(r.ID), logger.ClassID(r.ClassID))
	return r, nil
}

// Join adds a student to an active room of their class. Joining twice is a no-op.
func (h *SessionHandler) Join(ctx context.Context, cmd JoinSessionCommand) (*JoinSessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("join_session: validation failed: %w", err)
	}

	r, err := h.rooms.GetByID(ctx, cmd.SessionID)
	if err != nil {
		return nil, fmt.Errorf("join_session: failed to get room: %w", err)
	}
	s, err := h.students.GetByID(ctx, cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("join_session: failed to get student: %w", err)
	}

	now := h.now()
	joined, err := r.Join(s, now)
	if err != nil {
		return nil, fmt.Errorf("join_session: %w", err)
	}
	if joined {
		if err := h.rooms.AddParticipant(ctx, r.ID, session.Participant{StudentID: s.ID, JoinedAt: now}); err != nil {
			return nil, fmt.Errorf("join_session: failed to save participant: %w", err)
		}
		publish(h.publisher, h.log, shared.NewSessionEvent(shared.EventSessionJoined, r.ID, r.ClassID, s.ID))
	}

	return &JoinSessionResult{Room: r, Joined: joined}, nil
}

// Award gives every participant the same PP in one transaction.
func (h *SessionHandler) Award(ctx context.Context, cmd AwardSessionCommand) (*AwardSessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("award_session: validation failed: %w", err)
	}

	r, err := h.rooms.GetByID(ctx, cmd.SessionID)
	if err != nil {
		return nil, fmt.Errorf("award_session: failed to get room: %w", err)
	}

	changes, err := r.PlanAward(session.Award{Amount: cmd.Amount, Reason: cmd.Reason}, h.now())
	if err != nil {
		return nil, fmt.Errorf("award_session: %w", err)
	}

	entries, err := h.awards.SaveAward(ctx, r, changes)
	if err != nil {
		return nil, fmt.Errorf("award_session: failed to save award: %w", err)
	}

	events := make([]shared.Event, 0, len(entries))
	for _, e := range entries {
		events = append(events, e.ToEvent())
	}
	publish(h.publisher, h.log, events...)

	h.log.Info("session award",
		logger.SessionID(r.ID),
		logger.PPDelta(cmd.Amount),
		logger.Int("participants", len(entries)),
	)
	return &AwardSessionResult{Room: r, Entries: entries}, nil
}

// End closes a room.
func (h *SessionHandler) End(ctx context.Context, cmd EndSessionCommand) (*session.Room, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("end_session: validation failed: %w", err)
	}

	r, err := h.rooms.GetByID(ctx, cmd.SessionID)
	if err != nil {
		return nil, fmt.Errorf("end_session: failed to get room: %w", err)
	}
	if err := h.end(ctx, r); err != nil {
		return nil, fmt.Errorf("end_session: %w", err)
	}
	return r, nil
}

// EndStale ends active rooms older than MaxAge, or the configured maximum
// duration when MaxAge is zero. It returns the ids of ended rooms.
func (h *SessionHandler) EndStale(ctx context.Context, cmd EndStaleSessionsCommand) ([]string, error) {
	maxAge := cmd.MaxAge
	if maxAge <= 0 {
		maxAge = h.maxDuration
	}

	now := h.now()
	stale, err := h.rooms.FindActiveStartedBefore(ctx, now.Add(-maxAge))
	if err != nil {
		return nil, fmt.Errorf("end_stale_sessions: %w", err)
	}

	ended := make([]string, 0, len(stale))
	for _, r := range stale {
		if !r.IsStale(now, maxAge) {
			continue
		}
		if err := h.end(ctx, r); err != nil {
			h.log.Warn("auto-end failed", logger.SessionID(r.ID), logger.Err(err))
			continue
		}
		ended = append(ended, r.ID)
	}
	return ended, nil
}

func (h *SessionHandler) end(ctx context.Context, r *session.Room) error {
	if err := r.End(h.now()); err != nil {
		return err
	}
	if err := h.rooms.End(ctx, r); err != nil {
		return fmt.Errorf("failed to save room: %w", err)
	}
	publish(h.publisher, h.log, shared.NewSessionEvent(shared.EventSessionEnded, r.ID, r.ClassID, ""))
	h.log.Info("session ended", logger.SessionID(r.ID), logger.Int("participants", len(r.Participants)))
	return nil
}
