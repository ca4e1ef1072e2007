package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Blackbeard96/summer-games/internal/application/command"
	"github.com/Blackbeard96/summer-games/internal/application/query"
	"github.com/Blackbeard96/summer-games/internal/domain/assessment"
	"github.com/Blackbeard96/summer-games/internal/domain/scoring"
	"github.com/Blackbeard96/summer-games/internal/domain/session"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/internal/domain/student"
	"github.com/Blackbeard96/summer-games/internal/interface/http/handlers"
	"github.com/Blackbeard96/summer-games/internal/infrastructure/scheduler"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeJSON reads a strict JSON body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return shared.NewDomainError("http", "Decode", shared.ErrValidation, "request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return shared.NewDomainError("http", "Decode", shared.ErrValidation, "request body too large")
		}
		return shared.NewDomainError("http", "Decode", shared.ErrValidation, "invalid JSON: "+err.Error())
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func forbidden(w http.ResponseWriter, r *http.Request) {
	handlers.WriteError(w, r, http.StatusForbidden, "forbidden", "not allowed for this student")
}

func subject(r *http.Request) string {
	if c := ClaimsFrom(r.Context()); c != nil {
		return c.Subject
	}
	return ""
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTH
// ══════════════════════════════════════════════════════════════════════════════

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Subject     string    `json:"subject"`
	Role        Role      `json:"role"`
}

func (s *Server) writeToken(w http.ResponseWriter, r *http.Request, sub string, role Role) {
	tok, exp, err := s.deps.Tokens.Issue(sub, role)
	if err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, tokenResponse{
		AccessToken: tok,
		TokenType:   "Bearer",
		ExpiresAt:   exp,
		Subject:     sub,
		Role:        role,
	}, nil)
}

// handleTeacherLogin exchanges the teacher passphrase for a token.
func (s *Server) handleTeacherLogin(w http.ResponseWriter, r *http.Request) {
	if s.deps.TeacherLogin == nil {
		handlers.WriteError(w, r, http.StatusNotFound, "not_found", "passphrase login is disabled")
		return
	}
	var req struct {
		Passphrase string `json:"passphrase"`
	}
	if err := decodeJSON(r, &req); err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	teacherID, ok := s.deps.TeacherLogin.Verify(req.Passphrase)
	if !ok {
		handlers.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "invalid passphrase")
		return
	}
	s.writeToken(w, r, teacherID, RoleTeacher)
}

// handleStudentToken lets a teacher mint a token for one of their students.
func (s *Server) handleStudentToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StudentID string `json:"student_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	if _, err := s.deps.Students.GetStudent(r.Context(), req.StudentID); err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	s.writeToken(w, r, req.StudentID, RoleStudent)
}

// ══════════════════════════════════════════════════════════════════════════════
// SCORING
// ══════════════════════════════════════════════════════════════════════════════

type previewRequest struct {
	Kind         string          `json:"kind"`
	Goal         float64         `json:"goal"`
	Actual       float64         `json:"actual"`
	MaxScore     float64         `json:"max_score"`
	Scoring      *scoring.Config `json:"scoring,omitempty"`
	AssessmentID string          `json:"assessment_id,omitempty"`
}

func (s *Server) handlePreviewScore(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(r, &req); err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	res, err := s.deps.Assessments.PreviewScore(r.Context(), query.PreviewScoreQuery{
		Kind:         req.Kind,
		Goal:         req.Goal,
		Actual:       req.Actual,
		MaxScore:     req.MaxScore,
		Scoring:      req.Scoring,
		AssessmentID: req.AssessmentID,
	})
	if err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, res, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

func newStudentDTO(st *student.Student) query.StudentDTO {
	return query.StudentDTO{
		ID:          st.ID,
		ClassID:     st.ClassID,
		DisplayName: st.DisplayName,
		PP:          st.PowerPoints.Int(),
		XP:          st.XP,
		Badges:      []query.BadgeDTO{},
		CreatedAt:   st.CreatedAt,
	}
}

func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID          string `json:"id"`
		ClassID     string `json:"class_id"`
		DisplayName string `json:"display_name"`
		InitialPP   int    `json:"initial_pp"`
	}
	if err := decodeJSON(r, &req); err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	st, err := s.deps.CreateStudent.Handle(r.Context(), command.CreateStudentCommand{
		StudentID:   req.ID,
		ClassID:     req.ClassID,
		DisplayName: req.DisplayName,
		InitialPP:   req.InitialPP,
	})
	if err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusCreated, newStudentDTO(st), nil)
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !canActFor(r.Context(), id) {
		forbidden(w, r)
		return
	}
	dto, err := s.deps.Students.GetStudent(r.Context(), id)
	if err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, dto, nil)
}

func (s *Server) pageQuery(r *http.Request) query.PageQuery {
	return query.PageQuery{
		StudentID: chi.URLParam(r, "id"),
		Page:      queryInt(r, "page", 1),
		PageSize:  queryInt(r, "page_size", 20),
	}
}

func pageMeta(pq query.PageQuery, n int) *handlers.Meta {
	return &handlers.Meta{Page: pq.Page, PageSize: pq.PageSize, Count: &n}
}

func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	pq := s.pageQuery(r)
	if !canActFor(r.Context(), pq.StudentID) {
		forbidden(w, r)
		return
	}
	entries, err := s.deps.Students.GetLedger(r.Context(), pq)
	if err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, entries, pageMeta(pq, len(entries)))
}

func (s *Server) handleGetStudentGoals(w http.ResponseWriter, r *http.Request) {
	pq := s.pageQuery(r)
	if !canActFor(r.Context(), pq.StudentID) {
		forbidden(w, r)
		return
	}
	goals, err := s.deps.Students.GetStudentGoals(r.Context(), pq)
	if err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, goals, pageMeta(pq, len(goals)))
}

func (s *Server) handleAdjustPP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta     int    `json:"delta"`
		Note      string `json:"note"`
		SourceKey string `json:"source_key,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	entry, err := s.deps.AdjustPP.Handle(r.Context(), command.AdjustPPCommand{
		StudentID: chi.URLParam(r, "id"),
		Delta:     req.Delta,
		Note:      req.Note,
		SourceKey: req.SourceKey,
		ActorID:   subject(r),
	})
	if err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusCreated, query.NewLedgerEntryDTO(entry), nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// ASSESSMENTS & GOALS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleCreateAssessment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClassID  string          `json:"class_id"`
		Title    string          `json:"title"`
		Kind     string          `json:"kind"`
		MaxScore float64         `json:"max_score"`
		LockAt   *time.Time      `json:"lock_at,omitempty"`
		Scoring  *scoring.Config `json:"scoring,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	cmd := command.CreateAssessmentCommand{
		ClassID:   req.ClassID,
		Title:     req.Title,
		Kind:      assessment.Kind(req.Kind),
		MaxScore:  req.MaxScore,
		Scoring:   req.Scoring,
		CreatedBy: subject(r),
	}
	if req.LockAt != nil {
		cmd.LockAt = req.LockAt.UTC()
	}
	a, err := s.deps.CreateAssessment.Handle(r.Context(), cmd)
	if err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusCreated, query.NewAssessmentDTO(a), nil)
}

func (s *Server) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	c := ClaimsFrom(r.Context())
	dto, err := s.deps.Assessments.GetAssessment(r.Context(), query.GetAssessmentQuery{
		AssessmentID: chi.URLParam(r, "id"),
		WithGoals:    c != nil && c.Role == RoleTeacher,
	})
	if err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, dto, nil)
}

func (s *Server) handleListClassAssessments(w http.ResponseWriter, r *http.Request) {
	page, size := queryInt(r, "page", 1), queryInt(r, "page_size", 20)
	list, err := s.deps.Assessments.ListClassAssessments(r.Context(), chi.URLParam(r, "classID"), page, size)
	if err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	n := len(list)
	handlers.WriteJSON(w, r, http.StatusOK, list, &handlers.Meta{Page: page, PageSize: size, Count: &n})
}

func (s *Server) handleLockAssessment(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.LockAssessment.Handle(r.Context(), command.LockAssessmentCommand{
		AssessmentID: chi.URLParam(r, "id"),
	})
	if err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, query.NewAssessmentDTO(a), nil)
}

func (s *Server) handleSetGoal(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")
	if !canActFor(r.Context(), studentID) {
		forbidden(w, r)
		return
	}
	var req struct {
		Goal *float64 `json:"goal"`
	}
	if err := decodeJSON(r, &req); err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	if req.Goal == nil {
		handlers.WriteError(w, r, http.StatusBadRequest, "validation_error", "goal is required")
		return
	}
	res, err := s.deps.SetGoal.Handle(r.Context(), command.SetGoalCommand{
		AssessmentID: chi.URLParam(r, "id"),
		StudentID:    studentID,
		Goal:         *req.Goal,
	})
	if err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, map[string]any{
		"goal":    query.NewGoalDTO(res.Goal),
		"changed": res.Changed,
	}, nil)
}

type recordScoreResponse struct {
	Goal        query.GoalDTO         `json:"goal"`
	Result      scoring.Result        `json:"result"`
	Adjustment  int                   `json:"adjustment"`
	Previous    int                   `json:"previous"`
	Regrade     bool                  `json:"regrade"`
	LedgerEntry *query.LedgerEntryDTO `json:"ledger_entry,omitempty"`
	Attempts    int                   `json:"attempts"`
}

func (s *Server) handleRecordScore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actual *float64 `json:"actual"`
	}
	if err := decodeJSON(r, &req); err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	if req.Actual == nil {
		handlers.WriteError(w, r, http.StatusBadRequest, "validation_error", "actual is required")
		return
	}
	res, err := s.deps.RecordScore.Handle(r.Context(), command.RecordScoreCommand{
		AssessmentID:  chi.URLParam(r, "id"),
		StudentID:     chi.URLParam(r, "studentID"),
		Actual:        *req.Actual,
		CorrelationID: handlers.RequestIDFrom(r.Context()),
	})
	if err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	out := recordScoreResponse{
		Goal:       query.NewGoalDTO(res.Goal),
		Result:     res.Evaluation.Result,
		Adjustment: res.Evaluation.Adjustment,
		Previous:   res.Evaluation.Previous,
		Regrade:    res.Evaluation.Regrade,
		Attempts:   res.Attempts,
	}
	if res.Entry != nil {
		dto := query.NewLedgerEntryDTO(res.Entry)
		out.LedgerEntry = &dto
	}
	handlers.WriteJSON(w, r, http.StatusOK, out, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Leaderboard.Handle(r.Context(), query.GetLeaderboardQuery{
		ClassID: chi.URLParam(r, "classID"),
		Limit:   queryInt(r, "limit", 0),
	})
	if err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, res, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

type participantDTO struct {
	StudentID string    `json:"student_id"`
	JoinedAt  time.Time `json:"joined_at"`
}

type sessionDTO struct {
	ID           string           `json:"id"`
	ClassID      string           `json:"class_id"`
	TeacherID    string           `json:"teacher_id"`
	Title        string           `json:"title,omitempty"`
	Status       string           `json:"status"`
	Participants []participantDTO `json:"participants"`
	Awards       int              `json:"awards"`
	StartedAt    time.Time        `json:"started_at"`
	EndedAt      *time.Time       `json:"ended_at,omitempty"`
}

func newSessionDTO(room *session.Room) sessionDTO {
	dto := sessionDTO{
		ID:           room.ID,
		ClassID:      room.ClassID,
		TeacherID:    room.TeacherID,
		Title:        room.Title,
		Status:       string(room.Status),
		Participants: make([]participantDTO, 0, len(room.Participants)),
		Awards:       room.Awards,
		StartedAt:    room.StartedAt,
	}
	for _, p := range room.Participants {
		dto.Participants = append(dto.Participants, participantDTO{StudentID: p.StudentID, JoinedAt: p.JoinedAt})
	}
	if !room.EndedAt.IsZero() {
		at := room.EndedAt
		dto.EndedAt = &at
	}
	return dto
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClassID string `json:"class_id"`
		Title   string `json:"title"`
	}
	if err := decodeJSON(r, &req); err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	room, err := s.deps.Sessions.Start(r.Context(), command.StartSessionCommand{
		ClassID:   req.ClassID,
		TeacherID: subject(r),
		Title:     req.Title,
	})
	if err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusCreated, newSessionDTO(room), nil)
}

func (s *Server) handleJoinSession(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Sessions.Join(r.Context(), command.JoinSessionCommand{
		SessionID: chi.URLParam(r, "id"),
		StudentID: subject(r),
	})
	if err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, map[string]any{
		"session": newSessionDTO(res.Room),
		"joined":  res.Joined,
	}, nil)
}

func (s *Server) handleAwardSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int    `json:"amount"`
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	res, err := s.deps.Sessions.Award(r.Context(), command.AwardSessionCommand{
		SessionID: chi.URLParam(r, "id"),
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	entries := make([]query.LedgerEntryDTO, 0, len(res.Entries))
	for _, e := range res.Entries {
		entries = append(entries, query.NewLedgerEntryDTO(e))
	}
	handlers.WriteJSON(w, r, http.StatusOK, map[string]any{
		"session": newSessionDTO(res.Room),
		"entries": entries,
	}, nil)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	room, err := s.deps.Sessions.End(r.Context(), command.EndSessionCommand{SessionID: chi.URLParam(r, "id")})
	if err != nil {
		handlers.WriteDomainError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, newSessionDTO(room), nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		handlers.WriteJSON(w, r, http.StatusOK, []scheduler.JobInfo{}, nil)
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, s.deps.Jobs.ListJobs(), nil)
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		handlers.WriteError(w, r, http.StatusNotFound, "not_found", "scheduler is disabled")
		return
	}
	name := chi.URLParam(r, "name")
	res, err := s.deps.Jobs.RunNow(r.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		handlers.WriteError(w, r, http.StatusNotFound, "not_found", err.Error())
		return
	case errors.Is(err, scheduler.ErrJobRunning):
		handlers.WriteError(w, r, http.StatusConflict, "job_running", err.Error())
		return
	case res == nil:
		handlers.WriteDomainError(w, r, err)
		return
	}

	out := map[string]any{
		"job":         res.JobName,
		"success":     res.Success,
		"duration_ms": res.Duration.Milliseconds(),
	}
	if res.Error != nil {
		out["error"] = res.Error.Error()
	}
	handlers.WriteJSON(w, r, http.StatusOK, out, nil)
}

type deadLetterDTO struct {
	Handler     string    `json:"handler"`
	EventType   string    `json:"event_type"`
	AggregateID string    `json:"aggregate_id"`
	Error       string    `json:"error"`
	Attempts    int       `json:"attempts"`
	FailedAt    time.Time `json:"failed_at"`
}

func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	out := []deadLetterDTO{}
	if s.deps.DeadLetters != nil {
		for _, e := range s.deps.DeadLetters.Entries() {
			dto := deadLetterDTO{
				Handler:  e.HandlerName,
				Attempts: e.Attempts,
				FailedAt: e.FailedAt,
				Error:    fmt.Sprint(e.Error),
			}
			if e.Event != nil {
				dto.EventType = string(e.Event.EventType())
				dto.AggregateID = e.Event.AggregateID()
			}
			out = append(out, dto)
		}
	}
	n := len(out)
	handlers.WriteJSON(w, r, http.StatusOK, out, &handlers.Meta{Count: &n})
}
