package rabbitmq

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sim-sms-bridge/internal/domain"
)

var errMissingToken = errors.New("completion without token")

// outcomeMessage is the JSON body published for every settled send.
type outcomeMessage struct {
	Token       string    `json:"token"`
	PhoneNumber string    `json:"phoneNumber"`
	SimCardID   *int      `json:"simCardId,omitempty"`
	OK          bool      `json:"ok"`
	Code        string    `json:"code,omitempty"`
	Message     string    `json:"message,omitempty"`
	SettledAt   time.Time `json:"settledAt"`
}

func encodeOutcome(o domain.SendOutcome) ([]byte, error) {
	return json.Marshal(outcomeMessage{
		Token:       o.Token,
		PhoneNumber: o.PhoneNumber,
		SimCardID:   o.SimCardID,
		OK:          o.OK(),
		Code:        o.Code,
		Message:     o.Message,
		SettledAt:   o.SettledAt,
	})
}

func decodeCompletion(body []byte) (domain.Completion, error) {
	var c domain.Completion
	if err := json.Unmarshal(body, &c); err != nil {
		return c, fmt.Errorf("unmarshal completion: %w", err)
	}
	if c.Token == "" {
		return c, errMissingToken
	}
	return c, nil
}
