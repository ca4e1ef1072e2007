package messaging

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/pkg/logger"
	"github.com/Blackbeard96/summer-games/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// Dispatcher subscribes named handlers to a bus, wrapping each one with
// middleware, per-attempt timeouts and retries. Events that still fail
// land in the dead letter queue.
type Dispatcher struct {
	bus         shared.EventSubscriber
	middlewares []Middleware
	deadLetterQ *DeadLetterQueue
	log         *logger.Logger
	mu          sync.RWMutex
}

// Registration describes one handler.
type Registration struct {
	Name    string
	Handler shared.EventHandler

	// Retrier runs the handler; nil means a single attempt.
	Retrier *retry.Retrier

	// Timeout bounds each attempt. Zero disables it.
	Timeout time.Duration
}

// DispatcherConfig contains configuration for the Dispatcher.
type DispatcherConfig struct {
	// DeadLetterSize caps the dead letter queue. Zero disables it.
	DeadLetterSize int

	Logger *logger.Logger
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{DeadLetterSize: 500}
}

// NewDispatcher creates a dispatcher on top of bus.
func NewDispatcher(bus shared.EventSubscriber, config DispatcherConfig) *Dispatcher {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	d := &Dispatcher{
		bus: bus,
		log: config.Logger.With(logger.Component("dispatcher")),
	}
	if config.DeadLetterSize > 0 {
		d.deadLetterQ = NewDeadLetterQueue(config.DeadLetterSize)
	}
	return d
}

// Use adds middleware. Only handlers registered afterwards see it.
func (d *Dispatcher) Use(middleware Middleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.middlewares = append(d.middlewares, middleware)
}

// Register subscribes reg to eventType.
func (d *Dispatcher) Register(eventType shared.EventType, reg Registration) error {
	if reg.Handler == nil {
		return errors.New("handler cannot be nil")
	}
	if reg.Name == "" {
		return errors.New("handler name is required")
	}

	d.mu.RLock()
	handler := reg.Handler
	for i := len(d.middlewares) - 1; i >= 0; i-- {
		handler = d.middlewares[i](handler)
	}
	d.mu.RUnlock()

	if err := d.bus.Subscribe(eventType, d.wrap(reg, handler)); err != nil {
		return fmt.Errorf("register %s: %w", reg.Name, err)
	}
	d.log.Debug("handler registered",
		logger.String("handler", reg.Name),
		logger.String("event_type", string(eventType)),
	)
	return nil
}

func (d *Dispatcher) wrap(reg Registration, handler shared.EventHandler) shared.EventHandler {
	return func(event shared.Event) error {
		attempts := 0
		run := func(context.Context) error {
			attempts++
			return executeWithTimeout(handler, event, reg.Timeout)
		}

		var err error
		if reg.Retrier != nil {
			err = reg.Retrier.Do(context.Background(), run)
		} else {
			err = run(context.Background())
		}
		if err == nil {
			return nil
		}

		if d.deadLetterQ != nil {
			d.deadLetterQ.Add(DeadLetterEntry{
				Event:       event,
				HandlerName: reg.Name,
				Error:       err,
				Attempts:    attempts,
				FailedAt:    time.Now().UTC(),
			})
		}
		return fmt.Errorf("handler %s failed after %d attempts: %w", reg.Name, attempts, err)
	}
}

func executeWithTimeout(handler shared.EventHandler, event shared.Event, timeout time.Duration) error {
	if timeout <= 0 {
		return handler(event)
	}

	done := make(chan error, 1)
	go func() {
		done <- handler(event)
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("handler timeout after %v: %w", timeout, shared.ErrTimeout)
	}
}

// DeadLetterQueue returns the dead letter queue, or nil when disabled.
func (d *Dispatcher) DeadLetterQueue() *DeadLetterQueue {
	return d.deadLetterQ
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// Middleware wraps handler execution.
type Middleware func(shared.EventHandler) shared.EventHandler

// RecoveryMiddleware turns a handler panic into an error.
func RecoveryMiddleware(log *logger.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("handler panic recovered",
						logger.String("event_type", string(event.EventType())),
						logger.String("panic", fmt.Sprint(r)),
						logger.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				}
			}()
			return next(event)
		}
	}
}

// LoggingMiddleware logs every handler run.
func LoggingMiddleware(log *logger.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			err := next(event)
			fields := []logger.Field{
				logger.String("event_type", string(event.EventType())),
				logger.String("aggregate_id", event.AggregateID()),
				logger.Duration("duration", time.Since(start)),
			}
			if err != nil {
				log.Warn("handler failed", append(fields, logger.Err(err))...)
			} else {
				log.Debug("handler completed", fields...)
			}
			return err
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEAD LETTER QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetterEntry is an event whose handler gave up.
type DeadLetterEntry struct {
	Event       shared.Event
	HandlerName string
	Error       error
	Attempts    int
	FailedAt    time.Time
}

// DeadLetterQueue keeps the most recent failures, dropping the oldest.
type DeadLetterQueue struct {
	entries []DeadLetterEntry
	maxSize int
	mu      sync.Mutex
}

// NewDeadLetterQueue creates a queue holding at most maxSize entries.
func NewDeadLetterQueue(maxSize int) *DeadLetterQueue {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &DeadLetterQueue{
		entries: make([]DeadLetterEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Add appends an entry.
func (q *DeadLetterQueue) Add(entry DeadLetterEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.maxSize {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, entry)
}

// Entries returns a copy of all entries, oldest first.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadLetterEntry(nil), q.entries...)
}

// Size returns the number of entries.
func (q *DeadLetterQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Pop removes and returns the oldest entry.
func (q *DeadLetterQueue) Pop() (DeadLetterEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return DeadLetterEntry{}, false
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e, true
}
