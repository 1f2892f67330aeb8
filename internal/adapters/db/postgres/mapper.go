package postgres

import "sim-sms-bridge/internal/domain"

func toDomain(m *SendModel) domain.SendRecord {
	return domain.SendRecord{
		ID:           m.ID,
		Token:        m.Token,
		PhoneNumber:  m.PhoneNumber,
		SimCardID:    m.SimCardID,
		Status:       domain.Status(m.Status),
		ErrorCode:    m.ErrorCode,
		ErrorMessage: m.ErrorMessage,
		CreatedAt:    m.CreatedAt,
		CompletedAt:  m.CompletedAt,
	}
}

func toDomainMany(models []SendModel) []domain.SendRecord {
	out := make([]domain.SendRecord, len(models))
	for i := range models {
		out[i] = toDomain(&models[i])
	}
	return out
}

func fromDomain(r domain.SendRecord) *SendModel {
	return &SendModel{
		ID:           r.ID,
		Token:        r.Token,
		PhoneNumber:  r.PhoneNumber,
		SimCardID:    r.SimCardID,
		Status:       string(r.Status),
		ErrorCode:    r.ErrorCode,
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt,
		CompletedAt:  r.CompletedAt,
	}
}

// settleUpdates is the column set written when a send settles.
func settleUpdates(o domain.SendOutcome) map[string]any {
	var r domain.SendRecord
	r.Settle(o)
	return map[string]any{
		"status":        string(r.Status),
		"error_code":    r.ErrorCode,
		"error_message": r.ErrorMessage,
		"completed_at":  r.CompletedAt,
	}
}
