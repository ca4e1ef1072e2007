// Package leaderboard ranks the students of a class by PP balance.
package leaderboard

import (
	"errors"
	"fmt"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Rank is a 1-based position. Students with equal PP share a rank.
type Rank int

// IsValid reports whether the rank is positive.
func (r Rank) IsValid() bool {
	return r > 0
}

// String returns "#N".
func (r Rank) String() string {
	return fmt.Sprintf("#%d", r)
}

var (
	ErrNilEntry         = errors.New("leaderboard: nil entry")
	ErrDuplicateStudent = errors.New("leaderboard: student already ranked")
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry is one row of a class leaderboard.
type Entry struct {
	Rank        Rank   `json:"rank"`
	StudentID   string `json:"student_id"`
	DisplayName string `json:"display_name"`
	PP          int    `json:"pp"`
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING
// ══════════════════════════════════════════════════════════════════════════════

// Ranking builds a ranked list from unordered entries.
type Ranking struct {
	entries []*Entry
	byID    map[string]*Entry
}

// NewRanking creates an empty Ranking.
func NewRanking() *Ranking {
	return &Ranking{
		entries: make([]*Entry, 0),
		byID:    make(map[string]*Entry),
	}
}

// Add appends an entry without sorting.
func (r *Ranking) Add(entry *Entry) error {
	if entry == nil {
		return ErrNilEntry
	}
	if _, exists := r.byID[entry.StudentID]; exists {
		return ErrDuplicateStudent
	}
	r.entries = append(r.entries, entry)
	r.byID[entry.StudentID] = entry
	return nil
}

// SortByPP orders by PP descending and assigns competition ranks (1,1,3).
// Ties are listed by student id so the order is stable across stores.
func (r *Ranking) SortByPP() {
	sort.Slice(r.entries, func(i, j int) bool {
		if r.entries[i].PP != r.entries[j].PP {
			return r.entries[i].PP > r.entries[j].PP
		}
		return r.entries[i].StudentID < r.entries[j].StudentID
	})

	for i, entry := range r.entries {
		if i > 0 && entry.PP == r.entries[i-1].PP {
			entry.Rank = r.entries[i-1].Rank
		} else {
			entry.Rank = Rank(i + 1)
		}
	}
}

// GetByID returns the entry of a student, or nil.
func (r *Ranking) GetByID(studentID string) *Entry {
	return r.byID[studentID]
}

// Top returns at most n entries from the head of the ranking.
func (r *Ranking) Top(n int) []Entry {
	if n <= 0 || n > len(r.entries) {
		n = len(r.entries)
	}
	out := make([]Entry, 0, n)
	for _, e := range r.entries[:n] {
		out = append(out, *e)
	}
	return out
}

// Count returns the number of ranked students.
func (r *Ranking) Count() int {
	return len(r.entries)
}

// Build returns a sorted ranking of entries.
func Build(entries []Entry) *Ranking {
	r := NewRanking()
	for i := range entries {
		e := entries[i]
		_ = r.Add(&e)
	}
	r.SortByPP()
	return r
}
