// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types.
const (
	// Assessment events
	EventAssessmentCreated EventType = "assessment.created"
	EventAssessmentLocked  EventType = "assessment.locked"
	EventGoalSet           EventType = "goal.set"
	EventGoalEvaluated     EventType = "goal.evaluated"

	// Power point events
	EventPPChanged   EventType = "pp.changed"
	EventBadgeEarned EventType = "badge.earned"

	// Live session events
	EventSessionStarted EventType = "session.started"
	EventSessionJoined  EventType = "session.joined"
	EventSessionEnded   EventType = "session.ended"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Assessment Events
// ═══════════════════════════════════════════════════════════════════════════

// AssessmentCreatedEvent is emitted when a teacher opens a new assessment.
type AssessmentCreatedEvent struct {
	BaseEvent
	ClassID string `json:"class_id"`
	Kind    string `json:"kind"`
	Title   string `json:"title"`
}

// Payload implements Event interface.
func (e AssessmentCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"class_id": e.ClassID,
		"kind":     e.Kind,
		"title":    e.Title,
	}
}

// NewAssessmentCreatedEvent creates a new AssessmentCreatedEvent.
func NewAssessmentCreatedEvent(assessmentID, classID, kind, title string) AssessmentCreatedEvent {
	return AssessmentCreatedEvent{
		BaseEvent: NewBaseEvent(EventAssessmentCreated, assessmentID),
		ClassID:   classID,
		Kind:      kind,
		Title:     title,
	}
}

// AssessmentLockedEvent is emitted when goal setting closes for an assessment.
type AssessmentLockedEvent struct {
	BaseEvent
	ClassID   string `json:"class_id"`
	GoalCount int    `json:"goal_count"`
}

// Payload implements Event interface.
func (e AssessmentLockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"class_id":   e.ClassID,
		"goal_count": e.GoalCount,
	}
}

// NewAssessmentLockedEvent creates a new AssessmentLockedEvent.
func NewAssessmentLockedEvent(assessmentID, classID string, goalCount int) AssessmentLockedEvent {
	return AssessmentLockedEvent{
		BaseEvent: NewBaseEvent(EventAssessmentLocked, assessmentID),
		ClassID:   classID,
		GoalCount: goalCount,
	}
}

// GoalSetEvent is emitted when a student sets or changes a goal.
type GoalSetEvent struct {
	BaseEvent
	StudentID string  `json:"student_id"`
	Goal      float64 `json:"goal"`
}

// Payload implements Event interface.
func (e GoalSetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"goal":       e.Goal,
	}
}

// NewGoalSetEvent creates a new GoalSetEvent.
func NewGoalSetEvent(assessmentID, studentID string, goal float64) GoalSetEvent {
	return GoalSetEvent{
		BaseEvent: NewBaseEvent(EventGoalSet, assessmentID),
		StudentID: studentID,
		Goal:      goal,
	}
}

// GoalEvaluatedEvent is emitted after an actual score is recorded against a goal.
type GoalEvaluatedEvent struct {
	BaseEvent
	StudentID string  `json:"student_id"`
	ClassID   string  `json:"class_id"`
	Goal      float64 `json:"goal"`
	Actual    float64 `json:"actual"`
	Outcome   string  `json:"outcome"`
	PPDelta   int     `json:"pp_delta"`
	Revision  int     `json:"revision"`
}

// Payload implements Event interface.
func (e GoalEvaluatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"class_id":   e.ClassID,
		"goal":       e.Goal,
		"actual":     e.Actual,
		"outcome":    e.Outcome,
		"pp_delta":   e.PPDelta,
		"revision":   e.Revision,
	}
}

// NewGoalEvaluatedEvent creates a new GoalEvaluatedEvent.
func NewGoalEvaluatedEvent(assessmentID, studentID, classID string, goal, actual float64, outcome string, delta, revision int) GoalEvaluatedEvent {
	return GoalEvaluatedEvent{
		BaseEvent: NewBaseEvent(EventGoalEvaluated, assessmentID),
		StudentID: studentID,
		ClassID:   classID,
		Goal:      goal,
		Actual:    actual,
		Outcome:   outcome,
		PPDelta:   delta,
		Revision:  revision,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Power Point Events
// ═══════════════════════════════════════════════════════════════════════════

// PPChangedEvent is emitted whenever a ledger entry changes a student's balance.
type PPChangedEvent struct {
	BaseEvent
	ClassID    string `json:"class_id"`
	Delta      int    `json:"delta"`
	Applied    int    `json:"applied"`
	NewBalance int    `json:"new_balance"`
	Reason     string `json:"reason"`
	SourceKey  string `json:"source_key"`
}

// Payload implements Event interface.
func (e PPChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"class_id":    e.ClassID,
		"delta":       e.Delta,
		"applied":     e.Applied,
		"new_balance": e.NewBalance,
		"reason":      e.Reason,
		"source_key":  e.SourceKey,
	}
}

// NewPPChangedEvent creates a new PPChangedEvent. The aggregate is the student.
func NewPPChangedEvent(studentID, classID string, delta, applied, newBalance int, reason, sourceKey string) PPChangedEvent {
	return PPChangedEvent{
		BaseEvent:  NewBaseEvent(EventPPChanged, studentID),
		ClassID:    classID,
		Delta:      delta,
		Applied:    applied,
		NewBalance: newBalance,
		Reason:     reason,
		SourceKey:  sourceKey,
	}
}

// BadgeEarnedEvent is emitted the first time a student unlocks a badge.
type BadgeEarnedEvent struct {
	BaseEvent
	Code string `json:"code"`
	Name string `json:"name"`
}

// Payload implements Event interface.
func (e BadgeEarnedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"code": e.Code,
		"name": e.Name,
	}
}

// NewBadgeEarnedEvent creates a new BadgeEarnedEvent.
func NewBadgeEarnedEvent(studentID, code, name string) BadgeEarnedEvent {
	return BadgeEarnedEvent{
		BaseEvent: NewBaseEvent(EventBadgeEarned, studentID),
		Code:      code,
		Name:      name,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Live Session Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionEvent covers start, join and end of a live class session.
type SessionEvent struct {
	BaseEvent
	ClassID   string `json:"class_id"`
	StudentID string `json:"student_id,omitempty"`
}

// Payload implements Event interface.
func (e SessionEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"class_id":   e.ClassID,
		"student_id": e.StudentID,
	}
}

// NewSessionEvent creates a session lifecycle event.
func NewSessionEvent(eventType EventType, sessionID, classID, studentID string) SessionEvent {
	return SessionEvent{
		BaseEvent: NewBaseEvent(eventType, sessionID),
		ClassID:   classID,
		StudentID: studentID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
