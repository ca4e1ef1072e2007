package leaderboard

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned by a Cache that holds nothing for the class.
var ErrCacheMiss = errors.New("leaderboard: cache miss")

// Source reads the authoritative ranking input, i.e. the student table.
type Source interface {
	// ClassStandings returns every student of a class with their PP, unordered.
	ClassStandings(ctx context.Context, classID string) ([]Entry, error)
}

// Cache keeps a ranked copy of class leaderboards. Implementations are
// best-effort: the database stays the source of truth.
type Cache interface {
	// Top returns the cached top-N, or ErrCacheMiss.
	Top(ctx context.Context, classID string, limit int) ([]Entry, error)

	// Replace rebuilds the cached leaderboard of a class.
	Replace(ctx context.Context, classID string, entries []Entry) error

	// UpdateScore sets the PP of one student in the cached leaderboard.
	UpdateScore(ctx context.Context, classID string, entry Entry) error

	// Invalidate drops the cached leaderboard of a class.
	Invalidate(ctx context.Context, classID string) error
}
