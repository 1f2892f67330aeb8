package domain

import "time"

// ResultOK is the completion result code the platform reports for a
// successfully sent message.
const ResultOK = -1

// Completion is the signal a platform emits once a send has finished.
type Completion struct {
	Token      string `json:"token"`
	ResultCode int    `json:"resultCode"`
}

// SendOutcome is the settled result of one send. A zero Code means success.
type SendOutcome struct {
	Token       string
	PhoneNumber string
	SimCardID   *int
	Code        string
	Message     string
	SettledAt   time.Time
}

func (o SendOutcome) OK() bool { return o.Code == "" }

// Err converts a failed outcome into the caller facing error.
func (o SendOutcome) Err() error {
	if o.OK() {
		return nil
	}
	return SendError(o.Code, o.Message)
}

// Outcome classifies a completion against the result code table.
func (t *ResultCodeTable) Outcome(c Completion) SendOutcome {
	out := SendOutcome{Token: c.Token, SettledAt: time.Now().UTC()}
	if c.ResultCode == ResultOK {
		return out
	}
	out.Code, out.Message = t.Lookup(c.ResultCode)
	return out
}
