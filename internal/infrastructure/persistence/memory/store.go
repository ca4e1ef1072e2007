// Package memory is an in-process implementation of every repository port.
// It backs the "memory" storage driver for local runs and is the fake used
// by application and HTTP tests. One mutex guards all state, so each method
// is atomic the way a database transaction is.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Blackbeard96/summer-games/internal/domain/assessment"
	"github.com/Blackbeard96/summer-games/internal/domain/leaderboard"
	"github.com/Blackbeard96/summer-games/internal/domain/session"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/internal/domain/student"
)

type goalKey struct{ assessmentID, studentID string }

// Store holds all state in maps. Use the typed views to reach each port.
type Store struct {
	mu sync.RWMutex

	students    map[string]*student.Student
	ledger      []*student.LedgerEntry
	sourceKeys  map[string]struct{}
	badges      map[string][]student.EarnedBadge
	assessments map[string]*assessment.Assessment
	goals       map[goalKey]*assessment.Goal
	goalOrder   []goalKey
	rooms       map[string]*session.Room

	// FailNextApply makes the next ledger write fail. Tests use it to check rollbacks.
	FailNextApply error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		students:    make(map[string]*student.Student),
		sourceKeys:  make(map[string]struct{}),
		badges:      make(map[string][]student.EarnedBadge),
		assessments: make(map[string]*assessment.Assessment),
		goals:       make(map[goalKey]*assessment.Goal),
		rooms:       make(map[string]*session.Room),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Views.
func (s *Store) Students() *StudentStore       { return &StudentStore{s} }
func (s *Store) Ledger() *LedgerStore          { return &LedgerStore{s} }
func (s *Store) Badges() *BadgeStore           { return &BadgeStore{s} }
func (s *Store) Assessments() *AssessmentStore { return &AssessmentStore{s} }
func (s *Store) Goals() *GoalStore             { return &GoalStore{s} }
func (s *Store) Sessions() *SessionStore       { return &SessionStore{s} }

var (
	_ student.Repository        = (*StudentStore)(nil)
	_ leaderboard.Source        = (*StudentStore)(nil)
	_ student.LedgerRepository  = (*LedgerStore)(nil)
	_ student.BadgeRepository   = (*BadgeStore)(nil)
	_ assessment.Repository     = (*AssessmentStore)(nil)
	_ assessment.GoalRepository = (*GoalStore)(nil)
	_ assessment.GradingStore   = (*GoalStore)(nil)
	_ session.Repository        = (*SessionStore)(nil)
	_ session.AwardStore        = (*SessionStore)(nil)
)

// applyLocked is the ledger write shared by every view. Caller holds mu.
func (s *Store) applyLocked(change student.PPChange) (*student.LedgerEntry, error) {
	if s.FailNextApply != nil {
		err := s.FailNextApply
		s.FailNextApply = nil
		return nil, err
	}
	if _, dup := s.sourceKeys[change.SourceKey]; dup {
		return nil, shared.ErrDuplicateLedgerEntry
	}
	st, ok := s.students[change.StudentID]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	entry := student.Apply(st, uuid.NewString(), change)
	s.ledger = append(s.ledger, entry)
	s.sourceKeys[change.SourceKey] = struct{}{}
	c := *entry
	return &c, nil
}

// snapshot and restore give multi-write methods all-or-nothing semantics.
type snapshot struct {
	students   map[string]student.Student
	ledgerLen  int
	sourceKeys map[string]struct{}
}

func (s *Store) snapshotLocked() snapshot {
	snap := snapshot{
		students:   make(map[string]student.Student, len(s.students)),
		ledgerLen:  len(s.ledger),
		sourceKeys: make(map[string]struct{}, len(s.sourceKeys)),
	}
	for id, st := range s.students {
		snap.students[id] = *st
	}
	for k := range s.sourceKeys {
		snap.sourceKeys[k] = struct{}{}
	}
	return snap
}

func (s *Store) restoreLocked(snap snapshot) {
	for id, st := range snap.students {
		c := st
		s.students[id] = &c
	}
	s.ledger = s.ledger[:snap.ledgerLen]
	s.sourceKeys = snap.sourceKeys
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

// StudentStore implements student.Repository and leaderboard.Source.
type StudentStore struct{ s *Store }

// Create implements student.Repository.
func (v *StudentStore) Create(_ context.Context, st *student.Student) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.students[st.ID]; ok {
		return shared.ErrStudentAlreadyExists
	}
	c := *st
	v.s.students[st.ID] = &c
	return nil
}

// GetByID implements student.Repository.
func (v *StudentStore) GetByID(_ context.Context, id string) (*student.Student, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	st, ok := v.s.students[id]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	c := *st
	return &c, nil
}

// ListByClass implements student.Repository.
func (v *StudentStore) ListByClass(_ context.Context, classID string, page shared.Pagination) ([]*student.Student, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	out := make([]*student.Student, 0)
	for _, st := range v.s.students {
		if st.ClassID == classID {
			c := *st
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PowerPoints != out[j].PowerPoints {
			return out[i].PowerPoints > out[j].PowerPoints
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, page), nil
}

// ClassStandings implements leaderboard.Source.
func (v *StudentStore) ClassStandings(_ context.Context, classID string) ([]leaderboard.Entry, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	out := make([]leaderboard.Entry, 0)
	for _, st := range v.s.students {
		if st.ClassID == classID {
			out = append(out, leaderboard.Entry{StudentID: st.ID, DisplayName: st.DisplayName, PP: st.PowerPoints.Int()})
		}
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// LedgerStore implements student.LedgerRepository.
type LedgerStore struct{ s *Store }

// Apply implements student.LedgerRepository.
func (v *LedgerStore) Apply(_ context.Context, change student.PPChange) (*student.LedgerEntry, error) {
	if err := change.Validate(); err != nil {
		return nil, err
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.applyLocked(change)
}

// ListByStudent implements student.LedgerRepository.
func (v *LedgerStore) ListByStudent(_ context.Context, studentID string, page shared.Pagination) ([]*student.LedgerEntry, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	out := make([]*student.LedgerEntry, 0)
	for i := len(v.s.ledger) - 1; i >= 0; i-- {
		if v.s.ledger[i].StudentID == studentID {
			c := *v.s.ledger[i]
			out = append(out, &c)
		}
	}
	return paginate(out, page), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGES
// ══════════════════════════════════════════════════════════════════════════════

// BadgeStore implements student.BadgeRepository.
type BadgeStore struct{ s *Store }

// ListByStudent implements student.BadgeRepository.
func (v *BadgeStore) ListByStudent(_ context.Context, studentID string) ([]student.EarnedBadge, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return append([]student.EarnedBadge{}, v.s.badges[studentID]...), nil
}

// Award implements student.BadgeRepository.
func (v *BadgeStore) Award(_ context.Context, eb student.EarnedBadge) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, owned := range v.s.badges[eb.StudentID] {
		if owned.Code == eb.Code {
			return false, nil
		}
	}
	v.s.badges[eb.StudentID] = append(v.s.badges[eb.StudentID], eb)
	return true, nil
}

func paginate[T any](items []T, page shared.Pagination) []T {
	off := page.Offset()
	if off >= len(items) {
		return []T{}
	}
	end := off + page.Limit()
	if end > len(items) {
		end = len(items)
	}
	return items[off:end]
}
