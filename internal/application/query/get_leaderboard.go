// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Blackbeard96/summer-games/internal/domain/leaderboard"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/pkg/circuitbreaker"
	"github.com/Blackbeard96/summer-games/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Class ranking by PP. Served from the Redis sorted set when warm; on a miss
// the student table is read behind a circuit breaker and the cache refilled.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery contains the query parameters.
type GetLeaderboardQuery struct {
	ClassID string

	// Limit is the number of entries (default 20, max 100).
	Limit int
}

// Validate normalizes the limit and checks the class id.
func (q *GetLeaderboardQuery) Validate() error {
	if q.ClassID == "" {
		return shared.NewDomainError("query", "GetLeaderboard", shared.ErrValidation, "class_id is required")
	}
	if q.Limit < 0 {
		return shared.NewDomainError("query", "GetLeaderboard", shared.ErrValidation, "limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = shared.DefaultPageSize
	}
	if q.Limit > shared.MaxPageSize {
		q.Limit = shared.MaxPageSize
	}
	return nil
}

// LeaderboardEntryDTO is one row of the leaderboard.
type LeaderboardEntryDTO struct {
	Rank        int    `json:"rank"`
	StudentID   string `json:"student_id"`
	DisplayName string `json:"display_name"`
	PP          int    `json:"pp"`
}

// Leaderboard sources.
const (
	SourceCache    = "cache"
	SourceDatabase = "database"
)

// GetLeaderboardResult contains the ranked entries.
type GetLeaderboardResult struct {
	ClassID     string                `json:"class_id"`
	Entries     []LeaderboardEntryDTO `json:"entries"`
	Source      string                `json:"source"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// GetLeaderboardHandler handles GetLeaderboardQuery.
type GetLeaderboardHandler struct {
	source  leaderboard.Source
	cache   leaderboard.Cache
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
}

// NewGetLeaderboardHandler creates a new GetLeaderboardHandler. cache may be
// nil when Redis is not configured. A nil breaker gets the database preset.
func NewGetLeaderboardHandler(
	source leaderboard.Source,
	cache leaderboard.Cache,
	breaker *circuitbreaker.CircuitBreaker,
	log *logger.Logger,
) *GetLeaderboardHandler {
	if log == nil {
		log = logger.Nop()
	}
	if breaker == nil {
		breaker = circuitbreaker.DatabaseBreaker(countsAsOutage, func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		})
	}
	return &GetLeaderboardHandler{
		source:  source,
		cache:   cache,
		breaker: breaker,
		log:     log.With(logger.Component("leaderboard")),
	}
}

// Handle executes the query.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	result := &GetLeaderboardResult{ClassID: q.ClassID, GeneratedAt: time.Now().UTC()}

	if h.cache != nil {
		entries, err := h.cache.Top(ctx, q.ClassID, q.Limit)
		switch {
		case err == nil:
			result.Entries = toDTOs(entries)
			result.Source = SourceCache
			return result, nil
		case !errors.Is(err, leaderboard.ErrCacheMiss):
			h.log.Warn("leaderboard cache read failed", logger.ClassID(q.ClassID), logger.Err(err))
		}
	}

	var standings []leaderboard.Entry
	err := h.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		standings, err = h.source.ClassStandings(ctx, q.ClassID)
		return err
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			return nil, fmt.Errorf("get_leaderboard: %w: %v", shared.ErrServiceUnavailable, err)
		}
		return nil, fmt.Errorf("get_leaderboard: %w", err)
	}

	ranking := leaderboard.Build(standings)
	if h.cache != nil {
		if err := h.cache.Replace(ctx, q.ClassID, ranking.Top(0)); err != nil {
			h.log.Warn("leaderboard cache refill failed", logger.ClassID(q.ClassID), logger.Err(err))
		}
	}

	result.Entries = toDTOs(ranking.Top(q.Limit))
	result.Source = SourceDatabase
	return result, nil
}

// countsAsOutage keeps cancelled requests from tripping the breaker.
func countsAsOutage(err error) bool {
	return !errors.Is(err, context.Canceled)
}

func toDTOs(entries []leaderboard.Entry) []LeaderboardEntryDTO {
	out := make([]LeaderboardEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, LeaderboardEntryDTO{
			Rank:        int(e.Rank),
			StudentID:   e.StudentID,
			DisplayName: e.DisplayName,
			PP:          e.PP,
		})
	}
	return out
}
