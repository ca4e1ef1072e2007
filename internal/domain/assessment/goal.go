package assessment

import (
	"fmt"
	"time"

	"github.com/Blackbeard96/summer-games/internal/domain/scoring"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
)

// Goal is a student's target score on one assessment, plus the evaluation
// once the actual score is known.
type Goal struct {
	AssessmentID string
	StudentID    string
	Goal         float64
	SetAt        time.Time

	// Evaluation. Actual is nil until a score is recorded.
	Actual      *float64
	Outcome     scoring.Outcome
	PPDelta     int
	Rewards     []scoring.Reward
	EvaluatedAt time.Time

	// PPApplied is the net PP the ledger moved for this goal over all
	// revisions. It trails PPDelta when a penalty hit the zero floor.
	PPApplied int

	// Revision counts evaluations; a regrade increments it.
	Revision int
}

// NewGoal creates a goal on an assessment that is still open.
func NewGoal(a *Assessment, studentID string, value float64, now time.Time) (*Goal, error) {
	sid, err := shared.NormalizeID("assessment", "SetGoal", "student id", studentID)
	if err != nil {
		return nil, err
	}
	g := &Goal{AssessmentID: a.ID, StudentID: sid}
	if err := g.Change(a, value, now); err != nil {
		return nil, err
	}
	return g, nil
}

// Change replaces the goal value while goal setting is open.
func (g *Goal) Change(a *Assessment, value float64, now time.Time) error {
	if !a.CanSetGoal(now) {
		return shared.ErrAssessmentLocked
	}
	if err := a.ValidateScore("goal", value); err != nil {
		return err
	}
	g.Goal = value
	g.SetAt = now
	return nil
}

// IsEvaluated reports whether an actual score has been recorded.
func (g *Goal) IsEvaluated() bool {
	return g.Actual != nil
}

// Evaluation is what Evaluate produced.
type Evaluation struct {
	Result scoring.Result

	// Adjustment is the PP to apply now: new delta minus the PP already
	// applied for this goal. Equal to Result.Delta on first grading.
	Adjustment int

	// Previous is the PP applied before this evaluation.
	Previous int
	Regrade  bool
	Revision int
}

// Evaluate scores actual against the goal and records the result.
// Regrading applies only the difference to what was already applied.
func (g *Goal) Evaluate(a *Assessment, actual float64, now time.Time) (Evaluation, error) {
	if !a.CanRecordScore() {
		return Evaluation{}, shared.ErrAssessmentNotReady
	}
	if err := a.ValidateScore("actual", actual); err != nil {
		return Evaluation{}, err
	}

	res, err := scoring.Score(a.ScoreInput(g.Goal, actual), a.Scoring)
	if err != nil {
		return Evaluation{}, err
	}

	ev := Evaluation{
		Result:   res,
		Previous: g.PPApplied,
		Regrade:  g.IsEvaluated(),
	}
	ev.Adjustment = res.Delta - g.PPApplied

	v := actual
	g.Actual = &v
	g.Outcome = res.Outcome
	g.PPDelta = res.Delta
	g.Rewards = res.Rewards
	g.EvaluatedAt = now
	g.Revision++
	ev.Revision = g.Revision

	return ev, nil
}

// Settle records the PP the ledger applied for the current revision.
func (g *Goal) Settle(applied int) {
	g.PPApplied += applied
}

// SourceKey identifies the ledger entry produced by the current revision.
func (g *Goal) SourceKey() string {
	return fmt.Sprintf("goal:%s:%s:r%d", g.AssessmentID, g.StudentID, g.Revision)
}

// XPReward sums the xp line items of the latest evaluation.
func (g *Goal) XPReward() int {
	total := 0
	for _, r := range g.Rewards {
		if r.Kind == scoring.RewardXP {
			total += r.Amount
		}
	}
	return total
}
