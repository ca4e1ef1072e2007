// Package command contains write operations (CQRS - Commands).
// Every handler validates its command, loads aggregates through the domain
// ports, persists the result and publishes domain events after the write.
package command

import (
	"time"

	"github.com/google/uuid"

	"github.com/Blackbeard96/summer-games/internal/domain/shared"
	"github.com/Blackbeard96/summer-games/pkg/logger"
)

// Clock returns the current time. Handlers take one so tests can pin time.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func orClock(c Clock) Clock {
	if c == nil {
		return systemClock
	}
	return c
}

func orPublisher(p shared.EventPublisher) shared.EventPublisher {
	if p == nil {
		return shared.NopPublisher{}
	}
	return p
}

func orLogger(l *logger.Logger) *logger.Logger {
	if l == nil {
		return logger.Nop()
	}
	return l
}

func newID() string { return uuid.NewString() }

// publish sends events after the write has committed. A failed publish is
// logged and never undoes the write.
func publish(pub shared.EventPublisher, log *logger.Logger, events ...shared.Event) {
	for _, e := range events {
		if err := pub.Publish(e); err != nil {
			log.Warn("publish event failed",
				logger.String("event_type", string(e.EventType())),
				logger.String("aggregate_id", e.AggregateID()),
				logger.Err(err),
			)
		}
	}
}

// invalid builds the validation error returned by Command.Validate.
func invalid(op, msg string) error {
	return shared.NewDomainError("command", op, shared.ErrValidation, msg)
}
