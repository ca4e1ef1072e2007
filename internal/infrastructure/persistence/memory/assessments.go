package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Blackbeard96/summer-games/internal/domain/assessment"
	"github.com/Blackbeard96/summer-games/internal/domain/scoring"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/internal/domain/student"
)

// AssessmentStore implements assessment.Repository.
type AssessmentStore struct{ s *Store }

func cloneAssessment(a *assessment.Assessment) *assessment.Assessment {
	c := *a
	c.Scoring = a.Scoring.Normalize()
	return &c
}

// Create implements assessment.Repository.
func (v *AssessmentStore) Create(_ context.Context, a *assessment.Assessment) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.assessments[a.ID]; ok {
		return shared.NewDomainError("assessment", "Create", shared.ErrAlreadyExists, "assessment already exists")
	}
	v.s.assessments[a.ID] = cloneAssessment(a)
	return nil
}

// GetByID implements assessment.Repository.
func (v *AssessmentStore) GetByID(_ context.Context, id string) (*assessment.Assessment, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	a, ok := v.s.assessments[id]
	if !ok {
		return nil, shared.ErrAssessmentNotFound
	}
	return cloneAssessment(a), nil
}

// Update implements assessment.Repository.
func (v *AssessmentStore) Update(_ context.Context, a *assessment.Assessment) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.assessments[a.ID]; !ok {
		return shared.ErrAssessmentNotFound
	}
	v.s.assessments[a.ID] = cloneAssessment(a)
	return nil
}

// ListByClass implements assessment.Repository.
func (v *AssessmentStore) ListByClass(_ context.Context, classID string, page shared.Pagination) ([]*assessment.Assessment, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	out := make([]*assessment.Assessment, 0)
	for _, a := range v.s.assessments {
		if a.ClassID == classID {
			out = append(out, cloneAssessment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, page), nil
}

// FindLockDue implements assessment.Repository.
func (v *AssessmentStore) FindLockDue(_ context.Context, now time.Time, limit int) ([]*assessment.Assessment, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	out := make([]*assessment.Assessment, 0)
	for _, a := range v.s.assessments {
		if a.IsLockDue(now) {
			out = append(out, cloneAssessment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LockAt.Before(out[j].LockAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GOALS
// ══════════════════════════════════════════════════════════════════════════════

// GoalStore implements assessment.GoalRepository and assessment.GradingStore.
type GoalStore struct{ s *Store }

func cloneGoal(g *assessment.Goal) *assessment.Goal {
	c := *g
	if g.Actual != nil {
		v := *g.Actual
		c.Actual = &v
	}
	c.Rewards = append([]scoring.Reward(nil), g.Rewards...)
	return &c
}

func (v *GoalStore) putLocked(g *assessment.Goal) {
	k := goalKey{g.AssessmentID, g.StudentID}
	if _, ok := v.s.goals[k]; !ok {
		v.s.goalOrder = append(v.s.goalOrder, k)
	}
	v.s.goals[k] = cloneGoal(g)
}

// Save implements assessment.GoalRepository.
func (v *GoalStore) Save(_ context.Context, g *assessment.Goal) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.assessments[g.AssessmentID]; !ok {
		return shared.ErrAssessmentNotFound
	}
	if _, ok := v.s.students[g.StudentID]; !ok {
		return shared.ErrStudentNotFound
	}
	v.putLocked(g)
	return nil
}

// Get implements assessment.GoalRepository.
func (v *GoalStore) Get(_ context.Context, assessmentID, studentID string) (*assessment.Goal, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	g, ok := v.s.goals[goalKey{assessmentID, studentID}]
	if !ok {
		return nil, shared.ErrGoalNotFound
	}
	return cloneGoal(g), nil
}

// ListByAssessment implements assessment.GoalRepository.
func (v *GoalStore) ListByAssessment(_ context.Context, assessmentID string) ([]*assessment.Goal, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	out := make([]*assessment.Goal, 0)
	for _, k := range v.s.goalOrder {
		if k.assessmentID == assessmentID {
			out = append(out, cloneGoal(v.s.goals[k]))
		}
	}
	return out, nil
}

// ListByStudent implements assessment.GoalRepository.
func (v *GoalStore) ListByStudent(_ context.Context, studentID string, page shared.Pagination) ([]*assessment.Goal, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	out := make([]*assessment.Goal, 0)
	for i := len(v.s.goalOrder) - 1; i >= 0; i-- {
		k := v.s.goalOrder[i]
		if k.studentID == studentID {
			out = append(out, cloneGoal(v.s.goals[k]))
		}
	}
	return paginate(out, page), nil
}

// CountByAssessment implements assessment.GoalRepository.
func (v *GoalStore) CountByAssessment(_ context.Context, assessmentID string) (int, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	n := 0
	for k := range v.s.goals {
		if k.assessmentID == assessmentID {
			n++
		}
	}
	return n, nil
}

// OutcomeHistory implements assessment.GoalRepository.
func (v *GoalStore) OutcomeHistory(_ context.Context, studentID string) ([]string, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	var evaluated []*assessment.Goal
	for k, g := range v.s.goals {
		if k.studentID == studentID && g.IsEvaluated() {
			evaluated = append(evaluated, g)
		}
	}
	sort.Slice(evaluated, func(i, j int) bool {
		return evaluated[i].EvaluatedAt.Before(evaluated[j].EvaluatedAt)
	})
	out := make([]string, 0, len(evaluated))
	for _, g := range evaluated {
		out = append(out, string(g.Outcome))
	}
	return out, nil
}

// SaveEvaluation implements assessment.GradingStore. A goal whose stored
// revision moved since it was loaded reports shared.ErrConcurrentModification.
func (v *GoalStore) SaveEvaluation(_ context.Context, a *assessment.Assessment, g *assessment.Goal, change student.PPChange) (*student.LedgerEntry, error) {
	if !change.IsNoop() {
		if err := change.Validate(); err != nil {
			return nil, err
		}
	}

	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	if _, ok := v.s.assessments[a.ID]; !ok {
		return nil, shared.ErrAssessmentNotFound
	}
	stored, ok := v.s.goals[goalKey{g.AssessmentID, g.StudentID}]
	if !ok {
		return nil, shared.ErrGoalNotFound
	}
	if stored.Revision != g.Revision-1 {
		return nil, fmt.Errorf("goal %s/%s revision %d, expected %d: %w",
			g.AssessmentID, g.StudentID, stored.Revision, g.Revision-1, shared.ErrConcurrentModification)
	}

	var entry *student.LedgerEntry
	if !change.IsNoop() {
		var err error
		entry, err = v.s.applyLocked(change)
		if err != nil {
			return nil, err
		}
		g.Settle(entry.Applied)
	}
	v.putLocked(g)
	v.s.assessments[a.ID] = cloneAssessment(a)
	return entry, nil
}
