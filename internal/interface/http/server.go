// Package http serves the REST API: scoring previews, goals and grading,
// the PP ledger, class leaderboards and live session rooms.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Blackbeard96/summer-games/internal/application/command"
	"github.com/Blackbeard96/summer-games/internal/application/query"
	"github.com/Blackbeard96/summer-games/internal/infrastructure/messaging"
	"github.com/Blackbeard96/summer-games/internal/infrastructure/scheduler"
	"github.com/Blackbeard96/summer-games/internal/interface/http/handlers"
	"github.com/Blackbeard96/summer-games/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	AllowedOrigins []string
	Version        string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 10 * time.Second,
		MaxBodyBytes:   1 << 20,
		AllowedOrigins: []string{"*"},
		Version:        "v1",
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// JobRunner exposes the scheduler to operators.
type JobRunner interface {
	ListJobs() []scheduler.JobInfo
	RunNow(ctx context.Context, name string) (*scheduler.JobResult, error)
}

// DeadLetterSource exposes failed event handler runs.
type DeadLetterSource interface {
	Entries() []messaging.DeadLetterEntry
}

// Dependencies contains everything the handlers call.
type Dependencies struct {
	CreateStudent    *command.CreateStudentHandler
	AdjustPP         *command.AdjustPPHandler
	CreateAssessment *command.CreateAssessmentHandler
	SetGoal          *command.SetGoalHandler
	LockAssessment   *command.LockAssessmentHandler
	RecordScore      *command.RecordScoreHandler
	Sessions         *command.SessionHandler

	Students    *query.StudentQueries
	Assessments *query.AssessmentQueries
	Leaderboard *query.GetLeaderboardHandler

	Tokens *TokenService

	// TeacherLogin is nil when passphrase login is disabled.
	TeacherLogin *PassphraseLogin

	HealthChecker handlers.HealthChecker

	// Jobs and DeadLetters are optional operator endpoints.
	Jobs        JobRunner
	DeadLetters DeadLetterSource

	Logger *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	router     chi.Router
	httpServer *http.Server
	log        *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server.
func NewServer(config Config, deps Dependencies) *Server {
	def := DefaultConfig()
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = def.MaxBodyBytes
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = def.RequestTimeout
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = def.AllowedOrigins
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}

	s := &Server{
		config: config,
		deps:   deps,
		log:    deps.Logger.With(logger.Component("http")),
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(handlers.RequestID)
	r.Use(handlers.RequestLogger(s.log))
	r.Use(handlers.Recoverer(s.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", handlers.RequestIDHeader},
		ExposedHeaders: []string{handlers.RequestIDHeader},
		MaxAge:         300,
	}))
	r.Use(handlers.SecurityHeaders)

	health := handlers.NewHealthHandler(s.deps.HealthChecker)
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)
	r.Get("/live", health.Live)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteError(w, r, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(s.config.RequestTimeout))
		api.Use(handlers.MaxBodySize(s.config.MaxBodyBytes))

		api.Post("/auth/token", s.handleTeacherLogin)

		api.Group(func(pr chi.Router) {
			pr.Use(Authenticate(s.deps.Tokens))
			teacher := RequireRole(RoleTeacher)

			pr.With(teacher).Post("/auth/student-token", s.handleStudentToken)
			pr.Post("/score/preview", s.handlePreviewScore)

			pr.Route("/students", func(sr chi.Router) {
				sr.With(teacher).Post("/", s.handleCreateStudent)
				sr.Get("/{id}", s.handleGetStudent)
				sr.Get("/{id}/ledger", s.handleGetLedger)
				sr.Get("/{id}/goals", s.handleGetStudentGoals)
				sr.With(teacher).Post("/{id}/adjustments", s.handleAdjustPP)
			})

			pr.Route("/assessments", func(ar chi.Router) {
				ar.With(teacher).Post("/", s.handleCreateAssessment)
				ar.Get("/{id}", s.handleGetAssessment)
				ar.With(teacher).Post("/{id}/lock", s.handleLockAssessment)
				ar.Put("/{id}/goals/{studentID}", s.handleSetGoal)
				ar.With(teacher).Post("/{id}/scores/{studentID}", s.handleRecordScore)
			})

			pr.Get("/classes/{classID}/leaderboard", s.handleGetLeaderboard)
			pr.With(teacher).Get("/classes/{classID}/assessments", s.handleListClassAssessments)

			pr.Route("/sessions", func(sr chi.Router) {
				sr.With(teacher).Post("/", s.handleStartSession)
				sr.With(RequireRole(RoleStudent)).Post("/{id}/join", s.handleJoinSession)
				sr.With(teacher).Post("/{id}/award", s.handleAwardSession)
				sr.With(teacher).Post("/{id}/end", s.handleEndSession)
			})

			pr.Route("/admin", func(ad chi.Router) {
				ad.Use(teacher)
				ad.Get("/jobs", s.handleListJobs)
				ad.Post("/jobs/{name}/run", s.handleRunJob)
				ad.Get("/dead-letters", s.handleDeadLetters)
			})
		})
	})
	return r
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.log.Info("starting HTTP server", logger.String("address", s.config.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.log.Info("shutting down HTTP server", logger.Duration("uptime", time.Since(s.startedAt)))
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
