package history

import (
	"context"
	"errors"
	"time"
)

// EventType defines what happened during a row update.
type EventType string

const (
	EventAttempt   EventType = "attempt"
	EventCommit    EventType = "commit"
	EventRetry     EventType = "retry"
	EventExhausted EventType = "exhausted"
	EventNotFound  EventType = "not_found"
)

// Event describes one step of an optimistic row update, exported to
// analytics/statistics systems.
type Event struct {
	Type           EventType `json:"type"`
	OccurredAt     time.Time `json:"occurred_at"`
	Machine        string    `json:"machine"`
	PackageManager string    `json:"package_manager"`
	Status         string    `json:"status,omitempty"`
	Attempt        int       `json:"attempt"`
	Error          string    `json:"error,omitempty"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Send(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Send(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Send(context.Context, Event) error { return nil }
