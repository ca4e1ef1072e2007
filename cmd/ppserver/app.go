package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Blackbeard96/summer-games/config"
	"github.com/Blackbeard96/summer-games/internal/application/command"
	"github.com/Blackbeard96/summer-games/internal/application/eventhandler"
	"github.com/Blackbeard96/summer-games/internal/application/query"
	"github.com/Blackbeard96/summer-games/internal/domain/assessment"
	"github.com/Blackbeard96/summer-games/internal/domain/leaderboard"
	"github.com/Blackbeard96/summer-games/internal/domain/session"
	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/internal/domain/student"
	"github.com/Blackbeard96/summer-games/internal/infrastructure/messaging"
	"github.com/Blackbeard96/summer-games/internal/infrastructure/persistence/memory"
	"github.com/Blackbeard96/summer-games/internal/infrastructure/persistence/postgres"
	"github.com/Blackbeard96/summer-games/internal/infrastructure/persistence/redis"
	"github.com/Blackbeard96/summer-games/internal/infrastructure/scheduler"
	"github.com/Blackbeard96/summer-games/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/Blackbeard96/summer-games/internal/interface/http"
	"github.com/Blackbeard96/summer-games/internal/interface/http/handlers"
	"github.com/Blackbeard96/summer-games/pkg/logger"
	"github.com/Blackbeard96/summer-games/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE
// ══════════════════════════════════════════════════════════════════════════════

// stores is one storage backend seen through the domain ports.
type stores struct {
	driver string

	students    student.Repository
	ledger      student.LedgerRepository
	badges      student.BadgeRepository
	standings   leaderboard.Source
	assessments assessment.Repository
	goals       assessment.GoalRepository
	grading     assessment.GradingStore
	rooms       session.Repository
	awards      session.AwardStore

	pinger handlers.Pinger
	close  func()
}

func memoryStores() *stores {
	m := memory.NewStore()
	return &stores{
		driver:      "memory",
		students:    m.Students(),
		ledger:      m.Ledger(),
		badges:      m.Badges(),
		standings:   m.Students(),
		assessments: m.Assessments(),
		goals:       m.Goals(),
		grading:     m.Goals(),
		rooms:       m.Sessions(),
		awards:      m.Sessions(),
		pinger:      m,
		close:       func() {},
	}
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig) (*postgres.Connection, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	return postgres.NewConnection(connectCtx, cfg.URL, postgres.PoolConfig{
		MaxConns:          cfg.MaxConns,
		MinConns:          cfg.MinConns,
		MaxConnLifetime:   cfg.MaxConnLifetime,
		MaxConnIdleTime:   cfg.MaxConnIdleTime,
		HealthCheckPeriod: time.Minute,
	})
}

func postgresStores(conn *postgres.Connection) *stores {
	studentRepo := postgres.NewStudentRepository(conn)
	goalRepo := postgres.NewGoalRepository(conn)
	sessionRepo := postgres.NewSessionRepository(conn)
	return &stores{
		driver:      "postgres",
		students:    studentRepo,
		ledger:      postgres.NewLedgerRepository(conn),
		badges:      postgres.NewBadgeRepository(conn),
		standings:   studentRepo,
		assessments: postgres.NewAssessmentRepository(conn),
		goals:       goalRepo,
		grading:     goalRepo,
		rooms:       sessionRepo,
		awards:      sessionRepo,
		pinger:      conn,
		close:       conn.Close,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION
// ══════════════════════════════════════════════════════════════════════════════

// eventBus is what both bus implementations offer.
type eventBus interface {
	shared.EventPublisher
	shared.EventSubscriber
	Close() error
}

// app holds every long-lived component of the serve command.
type app struct {
	cfg *config.Config
	log *logger.Logger

	stores     *stores
	cache      *redis.Cache
	bus        eventBus
	dispatcher *messaging.Dispatcher
	scheduler  *scheduler.Scheduler
	server     *httpapi.Server
}

// newApp connects storage, cache and bus, then builds the application and
// interface layers on top of them. Call close when done.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL is empty, using the in-memory store; data is lost on exit")
		a.stores = memoryStores()
	} else {
		log.Info("connecting to database...")
		conn, err := openPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.stores = postgresStores(conn)
		log.Info("database connection established")

		if cfg.Database.AutoMigrate {
			m, err := postgres.NewMigrator(conn)
			if err != nil {
				return nil, fmt.Errorf("failed to prepare migrations: %w", err)
			}
			applied, err := m.Migrate(ctx)
			_ = m.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("migrations completed", logger.Int("applied", applied))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var lbCache leaderboard.Cache
	if cfg.Redis.Enabled() {
		log.Info("connecting to Redis...")
		a.cache, err = redis.NewCache(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			if cfg.IsProduction() {
				return nil, fmt.Errorf("failed to connect to Redis: %w", err)
			}
			log.Warn("failed to connect to Redis, caching disabled", logger.Err(err))
			a.cache = nil
			err = nil
		} else {
			lbCache = redis.NewLeaderboardCache(a.cache, cfg.Redis.LeaderboardTTL)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	if a.cache != nil && cfg.Redis.EventChannel != "" {
		redisBus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         messaging.NewGoRedisClient(a.cache.Client()),
			ChannelName:    cfg.Redis.EventChannel,
			LocalBusConfig: busConfig,
			Logger:         log,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to start redis event bus: %w", err)
		}
		a.bus = redisBus
		log.Info("relaying events over Redis", logger.String("channel", cfg.Redis.EventChannel))
	} else {
		a.bus = messaging.NewInMemoryEventBus(busConfig)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	s := a.stores
	clock := func() time.Time { return time.Now().UTC() }

	awarder := eventhandler.NewBadgeAwarder(s.students, s.goals, s.badges, a.bus, log)
	if err := a.registerEventHandlers(awarder, lbCache); err != nil {
		return nil, err
	}

	gradingRetrier := retry.New(
		retry.WithMaxAttempts(cfg.Scoring.GradingAttempts),
		retry.WithInitialDelay(cfg.Scoring.GradingRetryBackoff),
		retry.WithRetryIf(shared.IsRetryable),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("grading conflict, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		}),
	)

	lockHandler := command.NewLockAssessmentHandler(s.assessments, s.goals, a.bus, log, clock,
		command.LockAssessmentHandlerConfig{BatchSize: cfg.Scoring.LockBatchSize})
	sessionHandler := command.NewSessionHandler(s.rooms, s.awards, s.students, a.bus, log, clock,
		command.SessionHandlerConfig{MaxDuration: cfg.Scheduler.SessionMaxDuration})

	// ─────────────────────────────────────────────────────────────────────────
	// 5. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Scheduler.Enabled {
		a.scheduler, err = a.buildScheduler(lockHandler, sessionHandler)
		if err != nil {
			return nil, err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP
	// ─────────────────────────────────────────────────────────────────────────
	tokens, err := tokenService(cfg, log)
	if err != nil {
		return nil, err
	}

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck(s.driver, handlers.PingCheck(s.pinger))
	if a.cache != nil {
		health.AddOptionalCheck("redis", handlers.PingCheck(a.cache))
	}

	deps := httpapi.Dependencies{
		CreateStudent:    command.NewCreateStudentHandler(s.students, s.ledger, log, clock),
		AdjustPP:         command.NewAdjustPPHandler(s.ledger, a.bus, log, clock),
		CreateAssessment: command.NewCreateAssessmentHandler(s.assessments, a.bus, log, clock),
		SetGoal:          command.NewSetGoalHandler(s.assessments, s.goals, s.students, a.bus, log, clock),
		LockAssessment:   lockHandler,
		RecordScore:      command.NewRecordScoreHandler(s.assessments, s.goals, s.grading, gradingRetrier, a.bus, log, clock),
		Sessions:         sessionHandler,

		Students:    query.NewStudentQueries(s.students, s.ledger, s.badges, s.goals),
		Assessments: query.NewAssessmentQueries(s.assessments, s.goals),
		Leaderboard: query.NewGetLeaderboardHandler(s.standings, lbCache, nil, log),

		Tokens:        tokens,
		TeacherLogin:  httpapi.NewPassphraseLogin(cfg.Auth.TeacherID, cfg.Auth.TeacherPassphraseHash),
		HealthChecker: health,
		DeadLetters:   a.dispatcher.DeadLetterQueue(),
		Logger:        log,
	}
	if a.scheduler != nil {
		deps.Jobs = a.scheduler
	}

	a.server = httpapi.NewServer(httpapi.Config{
		Addr:           cfg.HTTP.Addr,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Version:        cfg.App.Version,
	}, deps)

	return a, nil
}

func (a *app) registerEventHandlers(awarder *eventhandler.BadgeAwarder, lbCache leaderboard.Cache) error {
	dcfg := messaging.DefaultDispatcherConfig()
	dcfg.Logger = a.log
	a.dispatcher = messaging.NewDispatcher(a.bus, dcfg)
	a.dispatcher.Use(messaging.RecoveryMiddleware(a.log))
	a.dispatcher.Use(messaging.LoggingMiddleware(a.log))

	onRetry := func(attempt int, err error, delay time.Duration) {
		a.log.Warn("event handler retry",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	}

	if err := a.dispatcher.Register(shared.EventGoalEvaluated, messaging.Registration{
		Name:    "badges_on_goal_evaluated",
		Handler: eventhandler.NewOnGoalEvaluatedHandler(awarder, a.log).Handle,
		Retrier: retry.DatabaseRetrier(shared.IsRetryable, onRetry),
		Timeout: 10 * time.Second,
	}); err != nil {
		return err
	}
	return a.dispatcher.Register(shared.EventPPChanged, messaging.Registration{
		Name:    "leaderboard_on_pp_changed",
		Handler: eventhandler.NewOnPPChangedHandler(a.stores.students, lbCache, awarder, a.log).Handle,
		Retrier: retry.CacheRetrier(),
		Timeout: 10 * time.Second,
	})
}

func (a *app) buildScheduler(locker jobs.DueLocker, ender jobs.StaleEnder) (*scheduler.Scheduler, error) {
	scfg := scheduler.DefaultSchedulerConfig()
	scfg.Logger = a.log
	scfg.DefaultTimeout = a.cfg.Scheduler.JobTimeout
	sch := scheduler.NewScheduler(scfg)

	list := []struct {
		job      scheduler.Job
		interval time.Duration
	}{
		{jobs.NewLockDueAssessmentsJob(locker, a.cfg.Scoring.LockBatchSize, a.log), a.cfg.Scheduler.LockDueInterval},
		{jobs.NewEndStaleSessionsJob(ender, a.cfg.Scheduler.SessionMaxDuration, a.log), a.cfg.Scheduler.StaleSessionsInterval},
	}
	for _, item := range list {
		job := item.job
		if a.cache != nil {
			// Several server instances share one Redis; only one runs each tick.
			job = jobs.Exclusive(job, a.cache, item.interval, a.log)
		}
		if err := sch.Register(job, scheduler.NewIntervalSchedule(item.interval)); err != nil {
			return nil, fmt.Errorf("register job %s: %w", job.Name(), err)
		}
	}
	return sch, nil
}

// tokenService builds the signer. Development runs without a configured
// secret get a random one, so tokens die with the process.
func tokenService(cfg *config.Config, log *logger.Logger) (*httpapi.TokenService, error) {
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		log.Warn("AUTH_JWT_SECRET is empty, using a random secret for this process")
	}
	return httpapi.NewTokenService(secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL), nil
}

// close releases everything newApp opened, in reverse order.
func (a *app) close() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.log.Warn("event bus close failed", logger.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("redis close failed", logger.Err(err))
		}
	}
	if a.stores != nil {
		a.stores.close()
	}
}
