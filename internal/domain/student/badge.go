package student

import (
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGES
// ══════════════════════════════════════════════════════════════════════════════

// Badge is a one-time achievement.
type Badge struct {
	Code        string
	Name        string
	Description string
}

// EarnedBadge is a badge owned by a student.
type EarnedBadge struct {
	Badge
	StudentID string
	EarnedAt  time.Time
}

// Badge codes.
const (
	BadgeFirstHit     = "first-hit"
	BadgeHitStreak3   = "hit-streak-3"
	BadgeOverachiever = "overachiever"
	BadgePP1000       = "pp-1000"
)

// Catalog lists every badge that can be earned.
var Catalog = []Badge{
	{Code: BadgeFirstHit, Name: "On Target", Description: "Reached a goal for the first time"},
	{Code: BadgeHitStreak3, Name: "Hat Trick", Description: "Reached three goals in a row"},
	{Code: BadgeOverachiever, Name: "Overachiever", Description: "Beat five goals"},
	{Code: BadgePP1000, Name: "Power Player", Description: "Held 1000 PP"},
}

// LookupBadge returns the catalog entry for code.
func LookupBadge(code string) (Badge, bool) {
	for _, b := range Catalog {
		if b.Code == code {
			return b, true
		}
	}
	return Badge{}, false
}

// BadgeStats is what badge rules look at.
type BadgeStats struct {
	// Reached counts goals hit or exceeded.
	Reached int
	// Exceeded counts goals beaten by more than the tolerance.
	Exceeded int
	// Streak is the number of most recent evaluations in a row that reached the goal.
	Streak  int
	Balance int
}

const (
	streakForBadge  = 3
	exceedsForBadge = 5
	ppForBadge      = 1000
)

// StatsFromOutcomes computes stats from outcome labels, oldest first.
func StatsFromOutcomes(outcomes []string, balance int) BadgeStats {
	st := BadgeStats{Balance: balance}
	for _, o := range outcomes {
		switch o {
		case "hit", "exceed":
			st.Reached++
			st.Streak++
			if o == "exceed" {
				st.Exceeded++
			}
		default:
			st.Streak = 0
		}
	}
	return st
}

// EvaluateBadges returns the badges stats qualify for that are not in owned.
func EvaluateBadges(stats BadgeStats, owned map[string]bool) []Badge {
	qualifies := map[string]bool{
		BadgeFirstHit:     stats.Reached >= 1,
		BadgeHitStreak3:   stats.Streak >= streakForBadge,
		BadgeOverachiever: stats.Exceeded >= exceedsForBadge,
		BadgePP1000:       stats.Balance >= ppForBadge,
	}

	var earned []Badge
	for _, b := range Catalog {
		if qualifies[b.Code] && !owned[b.Code] {
			earned = append(earned, b)
		}
	}
	return earned
}
