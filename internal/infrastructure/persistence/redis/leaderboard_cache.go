package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Blackbeard96/summer-games/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardCache keeps class leaderboards in Redis.
//
// Layout per class:
//   - Sorted set "leaderboard:pp:{class}" maps studentID -> PP
//   - Hash "leaderboard:names:{class}" maps studentID -> display name
//   - String "leaderboard:meta:{class}" marks the board as complete
//
// Ranks are computed by leaderboard.Build on read, so ties rank the same
// way as the database path.
type LeaderboardCache struct {
	cache *Cache
	ttl   time.Duration
}

const (
	keyLeaderboardPP    = "leaderboard:pp:"
	keyLeaderboardNames = "leaderboard:names:"
	keyLeaderboardMeta  = "leaderboard:meta:"
)

var _ leaderboard.Cache = (*LeaderboardCache)(nil)

// NewLeaderboardCache creates a new LeaderboardCache. ttl <= 0 uses TTLLeaderboardCache.
func NewLeaderboardCache(cache *Cache, ttl time.Duration) *LeaderboardCache {
	if ttl <= 0 {
		ttl = TTLLeaderboardCache
	}
	return &LeaderboardCache{cache: cache, ttl: ttl}
}

func leaderboardKeys(classID string) (pp, names, meta string) {
	return keyLeaderboardPP + classID, keyLeaderboardNames + classID, keyLeaderboardMeta + classID
}

// updateScore writes one student only while the board is complete; a
// missing meta key means the next read rebuilds the whole class.
var updateScore = redis.NewScript(`
if redis.call('EXISTS', KEYS[3]) == 0 then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[2], ARGV[2], ARGV[3])
return 1
`)

// Top returns the ranked top-N of a class, or leaderboard.ErrCacheMiss.
func (l *LeaderboardCache) Top(ctx context.Context, classID string, limit int) ([]leaderboard.Entry, error) {
	ppKey, namesKey, metaKey := leaderboardKeys(classID)
	client := l.cache.Client()

	n, err := client.Exists(ctx, metaKey).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard cache: %w", err)
	}
	if n == 0 {
		return nil, leaderboard.ErrCacheMiss
	}

	pipe := client.Pipeline()
	scoresCmd := pipe.ZRevRangeWithScores(ctx, ppKey, 0, -1)
	namesCmd := pipe.HGetAll(ctx, namesKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("leaderboard cache: %w", err)
	}

	names := namesCmd.Val()
	scores := scoresCmd.Val()
	entries := make([]leaderboard.Entry, 0, len(scores))
	for _, z := range scores {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, leaderboard.Entry{
			StudentID:   id,
			DisplayName: names[id],
			PP:          int(z.Score),
		})
	}
	return leaderboard.Build(entries).Top(limit), nil
}

// Replace rebuilds the cached leaderboard of a class in one MULTI block.
func (l *LeaderboardCache) Replace(ctx context.Context, classID string, entries []leaderboard.Entry) error {
	ppKey, namesKey, metaKey := leaderboardKeys(classID)

	pipe := l.cache.Client().TxPipeline()
	pipe.Del(ctx, ppKey, namesKey)

	if len(entries) > 0 {
		members := make([]redis.Z, 0, len(entries))
		names := make(map[string]interface{}, len(entries))
		for _, e := range entries {
			if e.StudentID == "" {
				continue
			}
			members = append(members, redis.Z{Score: float64(e.PP), Member: e.StudentID})
			names[e.StudentID] = e.DisplayName
		}
		if len(members) > 0 {
			pipe.ZAdd(ctx, ppKey, members...)
			pipe.HSet(ctx, namesKey, names)
			pipe.Expire(ctx, ppKey, l.ttl)
			pipe.Expire(ctx, namesKey, l.ttl)
		}
	}
	pipe.Set(ctx, metaKey, time.Now().UTC().Format(time.RFC3339), l.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("leaderboard cache replace: %w", err)
	}
	return nil
}

// UpdateScore sets one student's PP when the class board is cached.
func (l *LeaderboardCache) UpdateScore(ctx context.Context, classID string, entry leaderboard.Entry) error {
	if entry.StudentID == "" {
		return ErrCacheKeyEmpty
	}
	ppKey, namesKey, metaKey := leaderboardKeys(classID)
	err := updateScore.Run(ctx, l.cache.Client(),
		[]string{ppKey, namesKey, metaKey},
		entry.PP, entry.StudentID, entry.DisplayName,
	).Err()
	if err != nil {
		return fmt.Errorf("leaderboard cache update: %w", err)
	}
	return nil
}

// Invalidate drops the cached leaderboard of a class.
func (l *LeaderboardCache) Invalidate(ctx context.Context, classID string) error {
	ppKey, namesKey, metaKey := leaderboardKeys(classID)
	if err := l.cache.Client().Del(ctx, metaKey, ppKey, namesKey).Err(); err != nil {
		return fmt.Errorf("leaderboard cache invalidate: %w", err)
	}
	return nil
}
