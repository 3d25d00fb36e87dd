package domain

import "time"

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
	AggregateID() string
}

// SessionCreatedEvent is published when a session and its snapshot are persisted
type SessionCreatedEvent struct {
	SessionID   string
	SessionType SessionType
	CreatedBy   string
	StartedAt   time.Time
	Counters    Counters
}

func (e *SessionCreatedEvent) EventType() string     { return "opname.session.created" }
func (e *SessionCreatedEvent) OccurredAt() time.Time { return e.StartedAt }
func (e *SessionCreatedEvent) AggregateID() string   { return e.SessionID }

// SessionCompletedEvent is published when scanning closes
type SessionCompletedEvent struct {
	SessionID   string
	CompletedBy string
	CompletedAt time.Time
	Counters    Counters
}

func (e *SessionCompletedEvent) EventType() string     { return "opname.session.completed" }
func (e *SessionCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }
func (e *SessionCompletedEvent) AggregateID() string   { return e.SessionID }

// SessionLockedEvent carries the final counters of an approved session
type SessionLockedEvent struct {
	SessionID  string
	ApprovedBy string
	ApprovedAt time.Time
	LockedAt   time.Time
	Counters   Counters
}

func (e *SessionLockedEvent) EventType() string     { return "opname.session.locked" }
func (e *SessionLockedEvent) OccurredAt() time.Time { return e.LockedAt }
func (e *SessionLockedEvent) AggregateID() string   { return e.SessionID }

func NewSessionCreatedEvent(s *Session) *SessionCreatedEvent {
	return &SessionCreatedEvent{
		SessionID:   s.SessionID,
		SessionType: s.SessionType,
		CreatedBy:   s.CreatedBy,
		StartedAt:   s.StartedAt,
		Counters:    s.Counters,
	}
}

func NewSessionCompletedEvent(s *Session) *SessionCompletedEvent {
	return &SessionCompletedEvent{
		SessionID:   s.SessionID,
		CompletedBy: s.CompletedBy,
		CompletedAt: *s.CompletedAt,
		Counters:    s.Counters,
	}
}

func NewSessionLockedEvent(s *Session) *SessionLockedEvent {
	return &SessionLockedEvent{
		SessionID:  s.SessionID,
		ApprovedBy: s.ApprovedBy,
		ApprovedAt: *s.ApprovedAt,
		LockedAt:   *s.LockedAt,
		Counters:   s.Counters,
	}
}
