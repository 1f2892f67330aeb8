package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents where a send stands in the journal.
type Status string

const (
	StatusPending Status = "pending" // Issued to the platform, completion not yet seen
	StatusSent    Status = "sent"    // Platform reported OK
	StatusFailed  Status = "failed"  // Platform reported an error, or the issue step failed
)

// SendRecord is the journal entry for a single SMS send.
type SendRecord struct {
	ID           uuid.UUID
	Token        string
	PhoneNumber  string
	SimCardID    *int
	Status       Status
	ErrorCode    string
	ErrorMessage string
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// NewSendRecord creates a pending record for a send identified by token.
func NewSendRecord(token, phoneNumber string, simCardID *int) SendRecord {
	return SendRecord{
		ID:          uuid.New(),
		Token:       token,
		PhoneNumber: phoneNumber,
		SimCardID:   simCardID,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}

// Settle moves the record to its terminal status.
func (r *SendRecord) Settle(o SendOutcome) {
	at := o.SettledAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	r.CompletedAt = &at
	if o.OK() {
		r.Status = StatusSent
		return
	}
	r.Status = StatusFailed
	r.ErrorCode = o.Code
	r.ErrorMessage = o.Message
}

var ErrRecordNotFound = errors.New("send record not found")
