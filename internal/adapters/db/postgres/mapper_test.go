package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"sim-sms-bridge/internal/domain"
)

func TestMapperRoundTripKeepsOptionalFields(t *testing.T) {
	slot := 2
	done := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := domain.SendRecord{
		ID:          uuid.New(),
		Token:       "tok",
		PhoneNumber: "+4915112345",
		SimCardID:   &slot,
		Status:      domain.StatusSent,
		CreatedAt:   done.Add(-time.Minute),
		CompletedAt: &done,
	}

	got := toDomain(fromDomain(r))
	if got.ID != r.ID || got.Token != r.Token || got.Status != r.Status {
		t.Fatalf("got %+v, want %+v", got, r)
	}
	if got.SimCardID == nil || *got.SimCardID != 2 {
		t.Fatalf("sim card id lost: %v", got.SimCardID)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(done) {
		t.Fatalf("completed_at lost: %v", got.CompletedAt)
	}
}

func TestSettleUpdates(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	ok := settleUpdates(domain.SendOutcome{Token: "a", SettledAt: at})
	if ok["status"] != string(domain.StatusSent) || ok["error_code"] != "" {
		t.Fatalf("unexpected success updates %v", ok)
	}

	failed := settleUpdates(domain.SendOutcome{Token: "b", Code: "RESULT_ERROR_RADIO_OFF", Message: "Radio off", SettledAt: at})
	if failed["status"] != string(domain.StatusFailed) || failed["error_code"] != "RESULT_ERROR_RADIO_OFF" || failed["error_message"] != "Radio off" {
		t.Fatalf("unexpected failure updates %v", failed)
	}
	if ts, _ := failed["completed_at"].(*time.Time); ts == nil || !ts.Equal(at) {
		t.Fatalf("completed_at = %v", failed["completed_at"])
	}
}

func TestToDomainManyPreservesOrder(t *testing.T) {
	models := []SendModel{{Token: "new"}, {Token: "old"}}
	out := toDomainMany(models)
	if len(out) != 2 || out[0].Token != "new" || out[1].Token != "old" {
		t.Fatalf("unexpected %+v", out)
	}
}
