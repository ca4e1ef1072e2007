package eventhandler

import (
	"context"

	"github.com/Blackbeard96/summer-games/internal/domain/leaderboard"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/internal/domain/student"
	"github.com/Blackbeard96/summer-games/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON PP CHANGED HANDLER
// Keeps the cached class leaderboard in step with the ledger and checks
// balance badges. When the cache cannot be updated it is dropped, and the
// next read rebuilds it from the database.
// ═══════════════════════════════════════════════════════════════════════════

// OnPPChangedHandler reacts to pp.changed.
type OnPPChangedHandler struct {
	students student.Repository
	cache    leaderboard.Cache
	awarder  *BadgeAwarder
	log      *logger.Logger
}

// NewOnPPChangedHandler creates a new OnPPChangedHandler. cache and awarder may be nil.
func NewOnPPChangedHandler(students student.Repository, cache leaderboard.Cache, awarder *BadgeAwarder, log *logger.Logger) *OnPPChangedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnPPChangedHandler{
		students: students,
		cache:    cache,
		awarder:  awarder,
		log:      log.With(logger.String("handler", "on_pp_changed")),
	}
}

// Handle implements shared.EventHandler.
func (h *OnPPChangedHandler) Handle(event shared.Event) error {
	if event.EventType() != shared.EventPPChanged {
		h.log.Warn("received non-PPChangedEvent", logger.String("event_type", string(event.EventType())))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	studentID := event.AggregateID()
	s, err := h.students.GetByID(ctx, studentID)
	if err != nil {
		h.log.Error("failed to get student", logger.StudentID(studentID), logger.Err(err))
		return err
	}

	if h.cache != nil {
		entry := leaderboard.Entry{StudentID: s.ID, DisplayName: s.DisplayName, PP: s.PowerPoints.Int()}
		if err := h.cache.UpdateScore(ctx, s.ClassID, entry); err != nil {
			h.log.Warn("leaderboard update failed, invalidating",
				logger.ClassID(s.ClassID),
				logger.Err(err),
			)
			if err := h.cache.Invalidate(ctx, s.ClassID); err != nil {
				h.log.Error("leaderboard invalidate failed", logger.ClassID(s.ClassID), logger.Err(err))
			}
		}
	}

	if h.awarder != nil {
		if _, err := h.awarder.Award(ctx, s.ID); err != nil {
			h.log.Error("badge evaluation failed", logger.StudentID(s.ID), logger.Err(err))
			return err
		}
	}
	return nil
}
