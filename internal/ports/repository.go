package ports

import (
	"context"

	"sim-sms-bridge/internal/domain"
)

// SendJournal records every send and how it settled.
type SendJournal interface {
	// Begin persists a pending record.
	Begin(ctx context.Context, r domain.SendRecord) error

	// Settle stores the outcome on the record identified by the outcome token.
	Settle(ctx context.Context, o domain.SendOutcome) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]domain.SendRecord, error)
}
