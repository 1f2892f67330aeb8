package ports

import (
	"context"

	"sim-sms-bridge/internal/domain"
)

// OutcomePublisher publishes settled sends for downstream consumers.
type OutcomePublisher interface {
	Publish(ctx context.Context, o domain.SendOutcome) error
}

// CompletionConsumer receives completion signals from remote gateways.
type CompletionConsumer interface {
	// Consume passes each completion to handler.
	// Blocks until ctx is cancelled or a fatal error occurs.
	Consume(ctx context.Context, handler func(ctx context.Context, c domain.Completion) error) error
}

// CompletionDeduper remembers which completion tokens have been seen so an
// at-least-once transport settles a send only once.
type CompletionDeduper interface {
	// FirstSeen reports true the first time token is marked.
	FirstSeen(ctx context.Context, token string) (bool, error)
}
