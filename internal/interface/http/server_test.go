package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackbeard96/summer-games/internal/application/command"
	"github.com/Blackbeard96/summer-games/internal/application/query"
	"github.com/Blackbeard96/summer-games/internal/infrastructure/persistence/memory"
	"github.com/Blackbeard96/summer-games/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type envelope struct {
	Success bool               `json:"success"`
	Data    json.RawMessage    `json:"data"`
	Error   *handlers.APIError `json:"error"`
}

type testAPI struct {
	t       *testing.T
	handler http.Handler
	tokens  *TokenService
	store   *memory.Store
	teacher string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store := memory.NewStore()
	tokens := NewTokenService("test-secret-test-secret-test-secret", "summer-games-test", time.Hour)
	hash, err := HashPassphrase("summer-secret")
	require.NoError(t, err)

	deps := Dependencies{
		CreateStudent:    command.NewCreateStudentHandler(store.Students(), store.Ledger(), nil, nil),
		AdjustPP:         command.NewAdjustPPHandler(store.Ledger(), nil, nil, nil),
		CreateAssessment: command.NewCreateAssessmentHandler(store.Assessments(), nil, nil, nil),
		SetGoal:          command.NewSetGoalHandler(store.Assessments(), store.Goals(), store.Students(), nil, nil, nil),
		LockAssessment: command.NewLockAssessmentHandler(store.Assessments(), store.Goals(), nil, nil, nil,
			command.DefaultLockAssessmentHandlerConfig()),
		RecordScore: command.NewRecordScoreHandler(store.Assessments(), store.Goals(), store.Goals(), nil, nil, nil, nil),
		Sessions: command.NewSessionHandler(store.Sessions(), store.Sessions(), store.Students(), nil, nil, nil,
			command.DefaultSessionHandlerConfig()),

		Students:    query.NewStudentQueries(store.Students(), store.Ledger(), store.Badges(), store.Goals()),
		Assessments: query.NewAssessmentQueries(store.Assessments(), store.Goals()),
		Leaderboard: query.NewGetLeaderboardHandler(store.Students(), nil, nil, nil),

		Tokens:       tokens,
		TeacherLogin: NewPassphraseLogin("ms-frizzle", hash),
	}

	return &testAPI{
		t:       t,
		handler: NewServer(DefaultConfig(), deps).Handler(),
		tokens:  tokens,
		store:   store,
		teacher: "ms-frizzle",
	}
}

func (a *testAPI) token(subject string, role Role) string {
	a.t.Helper()
	tok, _, err := a.tokens.Issue(subject, role)
	require.NoError(a.t, err)
	return tok
}

func (a *testAPI) teacherToken() string { return a.token(a.teacher, RoleTeacher) }

func (a *testAPI) do(method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func (a *testAPI) createStudent(id, classID string) {
	a.t.Helper()
	rec, _ := a.do(http.MethodPost, "/api/v1/students", a.teacherToken(), map[string]any{
		"id": id, "class_id": classID, "display_name": "Student " + id,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code)
}

func (a *testAPI) createAssessment(classID, kind string, maxScore float64) string {
	a.t.Helper()
	rec, env := a.do(http.MethodPost, "/api/v1/assessments", a.teacherToken(), map[string]any{
		"class_id": classID, "title": "Unit test", "kind": kind, "max_score": maxScore,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, string(env.Data))
	return decodeData[query.AssessmentDTO](a.t, env).ID
}

// ══════════════════════════════════════════════════════════════════════════════
// PROBES & AUTH
// ══════════════════════════════════════════════════════════════════════════════

func TestProbes(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/health", "/ready", "/live"} {
		rec, env := api.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.True(t, env.Success, path)
		assert.NotEmpty(t, rec.Header().Get(handlers.RequestIDHeader), path)
	}
}

func TestUnknownRoute(t *testing.T) {
	api := newTestAPI(t)

	rec, env := api.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestAuthentication(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing", token: ""},
		{name: "garbage", token: "not-a-jwt"},
		{name: "wrong secret", token: func() string {
			tok, _, _ := NewTokenService("other-secret", "summer-games-test", time.Hour).Issue("x", RoleTeacher)
			return tok
		}()},
		{name: "wrong issuer", token: func() string {
			tok, _, _ := NewTokenService("test-secret-test-secret-test-secret", "elsewhere", time.Hour).Issue("x", RoleTeacher)
			return tok
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := api.do(http.MethodGet, "/api/v1/classes/c1/leaderboard", tt.token, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, "unauthorized", env.Error.Code)
		})
	}
}

func TestTokenService_Expired(t *testing.T) {
	svc := NewTokenService("secret", "iss", time.Minute)
	svc.now = func() time.Time { return time.Now().Add(-time.Hour) }
	tok, _, err := svc.Issue("alice", RoleStudent)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Parse(tok)
	assert.Error(t, err)
}

func TestTeacherLogin(t *testing.T) {
	api := newTestAPI(t)

	rec, _ := api.do(http.MethodPost, "/api/v1/auth/token", "", map[string]string{"passphrase": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := api.do(http.MethodPost, "/api/v1/auth/token", "", map[string]string{"passphrase": "summer-secret"})
	require.Equal(t, http.StatusOK, rec.Code)
	tok := decodeData[tokenResponse](t, env)
	assert.Equal(t, RoleTeacher, tok.Role)
	assert.Equal(t, "ms-frizzle", tok.Subject)

	claims, err := api.tokens.Parse(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ms-frizzle", claims.Subject)
}

func TestStudentToken_RequiresTeacherAndKnownStudent(t *testing.T) {
	api := newTestAPI(t)
	api.createStudent("alice", "c1")

	rec, _ := api.do(http.MethodPost, "/api/v1/auth/student-token", api.token("alice", RoleStudent),
		map[string]string{"student_id": "alice"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = api.do(http.MethodPost, "/api/v1/auth/student-token", api.teacherToken(),
		map[string]string{"student_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env := api.do(http.MethodPost, "/api/v1/auth/student-token", api.teacherToken(),
		map[string]string{"student_id": "alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, RoleStudent, decodeData[tokenResponse](t, env).Role)
}

// ══════════════════════════════════════════════════════════════════════════════
// SCORING
// ══════════════════════════════════════════════════════════════════════════════

func TestPreviewScore(t *testing.T) {
	api := newTestAPI(t)
	tok := api.token("alice", RoleStudent)

	rec, env := api.do(http.MethodPost, "/api/v1/score/preview", tok, map[string]any{
		"kind": "test", "goal": 80, "actual": 81, "max_score": 100,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeData[struct {
		Outcome string `json:"outcome"`
		Delta   int    `json:"delta"`
	}](t, env)
	assert.Equal(t, "hit", res.Outcome)
	assert.Equal(t, 50, res.Delta)

	rec, env = api.do(http.MethodPost, "/api/v1/score/preview", tok, map[string]any{
		"kind": "test", "goal": 80, "actual": 120, "max_score": 100,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestMalformedBody(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "{nope"},
		{name: "unknown field", body: `{"goal":1,"actual":1,"max_score":10,"extra":true}`},
		{name: "empty", body: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := api.do(http.MethodPost, "/api/v1/score/preview", api.teacherToken(), tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, "validation_error", env.Error.Code)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// GOAL → GRADE FLOW
// ══════════════════════════════════════════════════════════════════════════════

func TestGoalAndGradeFlow(t *testing.T) {
	api := newTestAPI(t)
	api.createStudent("alice", "c1")
	api.createStudent("bob", "c1")
	id := api.createAssessment("c1", "test", 100)
	alice := api.token("alice", RoleStudent)

	// Students set only their own goal.
	rec, _ := api.do(http.MethodPut, "/api/v1/assessments/"+id+"/goals/bob", alice, map[string]any{"goal": 70})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := api.do(http.MethodPut, "/api/v1/assessments/"+id+"/goals/alice", alice, map[string]any{"goal": 80})
	require.Equal(t, http.StatusOK, rec.Code, string(env.Data))

	// Grading before the lock is a state conflict.
	rec, env = api.do(http.MethodPost, "/api/v1/assessments/"+id+"/scores/alice", api.teacherToken(), map[string]any{"actual": 80})
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_state", env.Error.Code)

	rec, _ = api.do(http.MethodPost, "/api/v1/assessments/"+id+"/lock", api.teacherToken(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Goals are frozen once locked.
	rec, _ = api.do(http.MethodPut, "/api/v1/assessments/"+id+"/goals/alice", alice, map[string]any{"goal": 60})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env = api.do(http.MethodPost, "/api/v1/assessments/"+id+"/scores/alice", api.teacherToken(), map[string]any{"actual": 80})
	require.Equal(t, http.StatusOK, rec.Code, string(env.Data))
	graded := decodeData[recordScoreResponse](t, env)
	assert.Equal(t, "hit", string(graded.Result.Outcome))
	assert.Equal(t, 50, graded.Adjustment)
	assert.False(t, graded.Regrade)
	require.NotNil(t, graded.LedgerEntry)
	assert.Equal(t, 50, graded.LedgerEntry.Applied)

	// A regrade applies only the difference.
	rec, env = api.do(http.MethodPost, "/api/v1/assessments/"+id+"/scores/alice", api.teacherToken(), map[string]any{"actual": 95})
	require.Equal(t, http.StatusOK, rec.Code)
	regraded := decodeData[recordScoreResponse](t, env)
	assert.True(t, regraded.Regrade)
	assert.Equal(t, 50, regraded.Previous)
	assert.Equal(t, regraded.Result.Delta-50, regraded.Adjustment)

	rec, env = api.do(http.MethodGet, "/api/v1/students/alice", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, regraded.Result.Delta, decodeData[query.StudentDTO](t, env).PP)

	rec, env = api.do(http.MethodGet, "/api/v1/students/alice/ledger?page=1&page_size=10", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]query.LedgerEntryDTO](t, env), 2)

	rec, env = api.do(http.MethodGet, "/api/v1/students/alice/goals", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	goals := decodeData[[]query.GoalDTO](t, env)
	require.Len(t, goals, 1)
	assert.Equal(t, 2, goals[0].Revision)

	rec, env = api.do(http.MethodGet, "/api/v1/classes/c1/leaderboard?limit=5", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	board := decodeData[query.GetLeaderboardResult](t, env)
	require.Len(t, board.Entries, 2)
	assert.Equal(t, "alice", board.Entries[0].StudentID)
	assert.Equal(t, 1, board.Entries[0].Rank)
}

func TestGradingWithoutGoal(t *testing.T) {
	api := newTestAPI(t)
	api.createStudent("alice", "c1")
	id := api.createAssessment("c1", "quiz", 10)

	rec, _ := api.do(http.MethodPost, "/api/v1/assessments/"+id+"/lock", api.teacherToken(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := api.do(http.MethodPost, "/api/v1/assessments/"+id+"/scores/alice", api.teacherToken(), map[string]any{"actual": 5})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)

	rec, _ = api.do(http.MethodPost, "/api/v1/assessments/"+id+"/scores/alice", api.teacherToken(), map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetGoal_RequiresGoal(t *testing.T) {
	api := newTestAPI(t)
	api.createStudent("alice", "c1")
	alice := api.token("alice", RoleStudent)
	id := api.createAssessment("c1", "test", 100)

	rec, env := api.do(http.MethodPut, "/api/v1/assessments/"+id+"/goals/alice", alice, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Message, "goal is required")

	rec, env = api.do(http.MethodGet, "/api/v1/students/alice/goals", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeData[[]query.GoalDTO](t, env))

	// An explicit zero is a real goal.
	rec, _ = api.do(http.MethodPut, "/api/v1/assessments/"+id+"/goals/alice", alice, map[string]any{"goal": 0})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStudentIsolation(t *testing.T) {
	api := newTestAPI(t)
	api.createStudent("alice", "c1")
	api.createStudent("bob", "c1")
	alice := api.token("alice", RoleStudent)

	for _, path := range []string{
		"/api/v1/students/bob",
		"/api/v1/students/bob/ledger",
		"/api/v1/students/bob/goals",
	} {
		rec, _ := api.do(http.MethodGet, path, alice, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}

	rec, _ := api.do(http.MethodPost, "/api/v1/assessments", alice, map[string]any{
		"class_id": "c1", "title": "x", "kind": "test", "max_score": 10,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = api.do(http.MethodPost, "/api/v1/students/alice/adjustments", alice, map[string]any{"delta": 100, "note": "me"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = api.do(http.MethodGet, "/api/v1/admin/jobs", alice, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdjustPP(t *testing.T) {
	api := newTestAPI(t)
	api.createStudent("alice", "c1")

	rec, env := api.do(http.MethodPost, "/api/v1/students/alice/adjustments", api.teacherToken(),
		map[string]any{"delta": 30, "note": "helped a classmate"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 30, decodeData[query.LedgerEntryDTO](t, env).BalanceAfter)

	// The balance never drops below zero.
	rec, env = api.do(http.MethodPost, "/api/v1/students/alice/adjustments", api.teacherToken(),
		map[string]any{"delta": -100, "note": "late homework"})
	require.Equal(t, http.StatusCreated, rec.Code)
	entry := decodeData[query.LedgerEntryDTO](t, env)
	assert.Equal(t, -100, entry.Delta)
	assert.Equal(t, -30, entry.Applied)
	assert.Equal(t, 0, entry.BalanceAfter)

	rec, _ = api.do(http.MethodPost, "/api/v1/students/alice/adjustments", api.teacherToken(),
		map[string]any{"delta": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAssessment_GoalsVisibleToTeacherOnly(t *testing.T) {
	api := newTestAPI(t)
	api.createStudent("alice", "c1")
	id := api.createAssessment("c1", "exam", 100)
	alice := api.token("alice", RoleStudent)

	rec, _ := api.do(http.MethodPut, "/api/v1/assessments/"+id+"/goals/alice", alice, map[string]any{"goal": 90})
	require.Equal(t, http.StatusOK, rec.Code)

	_, env := api.do(http.MethodGet, "/api/v1/assessments/"+id, api.teacherToken(), nil)
	asTeacher := decodeData[query.AssessmentDTO](t, env)
	assert.Len(t, asTeacher.Goals, 1)
	assert.Equal(t, 1, asTeacher.GoalCount)

	_, env = api.do(http.MethodGet, "/api/v1/assessments/"+id, alice, nil)
	asStudent := decodeData[query.AssessmentDTO](t, env)
	assert.Empty(t, asStudent.Goals)
	assert.Equal(t, 1, asStudent.GoalCount)

	rec, env = api.do(http.MethodGet, "/api/v1/classes/c1/assessments", api.teacherToken(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]query.AssessmentDTO](t, env), 1)
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

func TestSessionFlow(t *testing.T) {
	api := newTestAPI(t)
	api.createStudent("alice", "c1")
	api.createStudent("bob", "c1")
	teacher := api.teacherToken()

	rec, env := api.do(http.MethodPost, "/api/v1/sessions", teacher, map[string]any{"class_id": "c1", "title": "Warm-up"})
	require.Equal(t, http.StatusCreated, rec.Code, string(env.Data))
	room := decodeData[sessionDTO](t, env)
	assert.Equal(t, "active", room.Status)
	assert.Equal(t, api.teacher, room.TeacherID)

	// Only one active room per class.
	rec, _ = api.do(http.MethodPost, "/api/v1/sessions", teacher, map[string]any{"class_id": "c1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	for _, id := range []string{"alice", "bob"} {
		rec, env = api.do(http.MethodPost, "/api/v1/sessions/"+room.ID+"/join", api.token(id, RoleStudent), nil)
		require.Equal(t, http.StatusOK, rec.Code, string(env.Data))
	}
	rec, env = api.do(http.MethodPost, "/api/v1/sessions/"+room.ID+"/join", api.token("alice", RoleStudent), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	joined := decodeData[struct {
		Joined bool `json:"joined"`
	}](t, env)
	assert.False(t, joined.Joined)

	// Teachers cannot join as students.
	rec, _ = api.do(http.MethodPost, "/api/v1/sessions/"+room.ID+"/join", teacher, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = api.do(http.MethodPost, "/api/v1/sessions/"+room.ID+"/award", teacher, map[string]any{"amount": 10, "reason": "participation"})
	require.Equal(t, http.StatusOK, rec.Code, string(env.Data))
	award := decodeData[struct {
		Session sessionDTO             `json:"session"`
		Entries []query.LedgerEntryDTO `json:"entries"`
	}](t, env)
	assert.Len(t, award.Entries, 2)
	assert.Equal(t, 1, award.Session.Awards)

	rec, env = api.do(http.MethodPost, "/api/v1/sessions/"+room.ID+"/end", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ended := decodeData[sessionDTO](t, env)
	assert.Equal(t, "ended", ended.Status)
	assert.NotNil(t, ended.EndedAt)

	rec, _ = api.do(http.MethodPost, "/api/v1/sessions/"+room.ID+"/award", teacher, map[string]any{"amount": 10, "reason": "late"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	_, env = api.do(http.MethodGet, "/api/v1/students/bob", teacher, nil)
	assert.Equal(t, 10, decodeData[query.StudentDTO](t, env).PP)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN
// ══════════════════════════════════════════════════════════════════════════════

func TestAdminEndpoints_WithoutScheduler(t *testing.T) {
	api := newTestAPI(t)

	rec, env := api.do(http.MethodGet, "/api/v1/admin/jobs", api.teacherToken(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", string(env.Data))

	rec, _ = api.do(http.MethodPost, "/api/v1/admin/jobs/lock_due_assessments/run", api.teacherToken(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = api.do(http.MethodGet, "/api/v1/admin/dead-letters", api.teacherToken(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", string(env.Data))
}
