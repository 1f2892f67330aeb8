package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sim-sms-bridge/internal/completion"
	"sim-sms-bridge/internal/domain"
	"sim-sms-bridge/internal/ports"
)

// TelephonyService is the central application service: it enumerates active
// SIM cards and sends SMS through a platform, settling each send once its
// completion signal arrives.
type TelephonyService struct {
	perms    ports.PermissionChecker
	platform ports.Platform
	registry *completion.Registry
	log      *slog.Logger

	table       *domain.ResultCodeTable
	journal     ports.SendJournal
	events      ports.OutcomePublisher
	deduper     ports.CompletionDeduper
	sendTimeout time.Duration

	mu       sync.Mutex
	onChange []func(value string)
}

// Option configures the optional collaborators of a TelephonyService.
type Option func(*TelephonyService)

func WithJournal(j ports.SendJournal) Option { return func(s *TelephonyService) { s.journal = j } }

func WithOutcomePublisher(p ports.OutcomePublisher) Option {
	return func(s *TelephonyService) { s.events = p }
}

func WithDeduper(d ports.CompletionDeduper) Option { return func(s *TelephonyService) { s.deduper = d } }

// WithSendTimeout bounds how long SendSms waits for the completion signal.
// Zero waits until the caller's context is done.
func WithSendTimeout(d time.Duration) Option { return func(s *TelephonyService) { s.sendTimeout = d } }

func WithResultCodes(t *domain.ResultCodeTable) Option {
	return func(s *TelephonyService) { s.table = t }
}

// NewTelephonyService wires the service with its dependencies.
func NewTelephonyService(
	perms ports.PermissionChecker,
	platform ports.Platform,
	registry *completion.Registry,
	log *slog.Logger,
	opts ...Option,
) *TelephonyService {
	s := &TelephonyService{
		perms:    perms,
		platform: platform,
		registry: registry,
		log:      log,
		table:    domain.DefaultResultCodes(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListActiveSimCards returns the SIM cards that are active right now, in the
// platform's order.
func (s *TelephonyService) ListActiveSimCards(ctx context.Context) ([]domain.SimCard, error) {
	if !s.perms.Granted(ctx, ports.PermissionReadPhoneState) {
		return nil, domain.PermissionError("Permission not granted to access SIM card info.")
	}

	var subs []domain.Subscription
	err := guard(func() error {
		var err error
		subs, err = s.platform.ActiveSubscriptions(ctx)
		return err
	})
	if err != nil {
		s.log.Error("list subscriptions", "err", err)
		return nil, domain.PlatformError("Failed to retrieve SIM card info: "+err.Error(), err)
	}

	cards := make([]domain.SimCard, 0, len(subs))
	for _, sub := range subs {
		cards = append(cards, domain.NewSimCard(sub))
	}
	return cards, nil
}

// SendRequest is the input for sending one SMS. A nil SimCardID sends through
// the default SIM.
type SendRequest struct {
	PhoneNumber string
	Text        string
	SimCardID   *int
}

// SendSms issues the send and blocks until the platform reports completion,
// the send fails to issue, or ctx is done.
func (s *TelephonyService) SendSms(ctx context.Context, req SendRequest) error {
	if !s.perms.Granted(ctx, ports.PermissionSendSMS) {
		return domain.PermissionError("Permission not granted to send SMS.")
	}

	var mgr ports.SmsManager
	err := guard(func() error {
		var err error
		mgr, err = s.smsManager(ctx, req.SimCardID)
		return err
	})
	if err != nil {
		return classifyIssueError(err)
	}

	l := s.registry.Register()
	log := s.log.With("token", l.Token)
	s.begin(ctx, domain.NewSendRecord(l.Token, req.PhoneNumber, req.SimCardID))

	intent := ports.SentIntent{Token: l.Token, Sink: s.registry}
	err = guard(func() error {
		return mgr.SendTextMessage(ctx, req.PhoneNumber, req.Text, intent)
	})
	if err != nil {
		l.Cancel()
		bridgeErr := classifyIssueError(err)
		log.Warn("sms not issued", "code", bridgeErr.Code, "err", err)
		s.settle(ctx, s.outcome(l.Token, req, bridgeErr.Code, bridgeErr.Message))
		return bridgeErr
	}

	if s.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.sendTimeout)
		defer cancel()
	}

	var c domain.Completion
	select {
	case c = <-l.Done():
	case <-ctx.Done():
		if l.Cancel() {
			werr := domain.PlatformError("Send completion not received: "+ctx.Err().Error(), ctx.Err())
			log.Warn("stopped waiting for completion", "err", ctx.Err())
			s.settle(ctx, s.outcome(l.Token, req, werr.Code, werr.Message))
			return werr
		}
		// Delivered while we were giving up: the signal is already buffered.
		c = <-l.Done()
	}

	outcome := s.table.Outcome(c)
	outcome.PhoneNumber = req.PhoneNumber
	outcome.SimCardID = req.SimCardID
	s.settle(ctx, outcome)

	if outcome.OK() {
		log.Info("sms sent", "sim_card_id", simID(req.SimCardID))
		return nil
	}
	log.Warn("sms failed", "code", outcome.Code, "result_code", c.ResultCode)
	return outcome.Err()
}

// HandleCompletion accepts a completion reported from outside the process
// (webhook, queue). Duplicates are acknowledged without settling again.
func (s *TelephonyService) HandleCompletion(ctx context.Context, c domain.Completion) error {
	if s.deduper != nil {
		first, err := s.deduper.FirstSeen(ctx, c.Token)
		if err != nil {
			s.log.Warn("dedupe completion", "token", c.Token, "err", err)
		} else if !first {
			s.log.Info("duplicate completion ignored", "token", c.Token)
			return nil
		}
	}

	if err := s.registry.Deliver(ctx, c); err != nil {
		return fmt.Errorf("deliver completion %s: %w", c.Token, err)
	}
	return nil
}

// RecentSends returns journaled sends, newest first. Without a journal the
// list is empty.
func (s *TelephonyService) RecentSends(ctx context.Context, limit int) ([]domain.SendRecord, error) {
	if s.journal == nil {
		return []domain.SendRecord{}, nil
	}
	records, err := s.journal.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent sends: %w", err)
	}
	return records, nil
}

// PendingSends is the number of sends waiting for their completion signal.
func (s *TelephonyService) PendingSends() int { return s.registry.Pending() }

func (s *TelephonyService) smsManager(ctx context.Context, simCardID *int) (ports.SmsManager, error) {
	switch {
	case simCardID == nil:
		return s.platform.Default(ctx)
	case s.platform.APILevel() >= ports.APILevelScopedManagers:
		return s.platform.CreateForSubscriptionID(ctx, *simCardID)
	default:
		return s.platform.ForSubscriptionID(ctx, *simCardID)
	}
}

func (s *TelephonyService) outcome(token string, req SendRequest, code, message string) domain.SendOutcome {
	return domain.SendOutcome{
		Token:       token,
		PhoneNumber: req.PhoneNumber,
		SimCardID:   req.SimCardID,
		Code:        code,
		Message:     message,
		SettledAt:   time.Now().UTC(),
	}
}

func (s *TelephonyService) begin(ctx context.Context, r domain.SendRecord) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Begin(ctx, r); err != nil {
		s.log.Error("journal begin failed", "token", r.Token, "err", err)
	}
}

// settle records and publishes a settled send. Neither can change what the
// caller gets back.
func (s *TelephonyService) settle(ctx context.Context, o domain.SendOutcome) {
	ctx = context.WithoutCancel(ctx)
	if s.journal != nil {
		if err := s.journal.Settle(ctx, o); err != nil {
			s.log.Error("journal settle failed", "token", o.Token, "err", err)
		}
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, o); err != nil {
			s.log.Error("publish outcome failed", "token", o.Token, "err", err)
		}
	}
}

func classifyIssueError(err error) *domain.Error {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return domain.InvalidArgumentError(err)
	case errors.Is(err, domain.ErrUnsupported):
		return domain.UnsupportedError(err)
	default:
		return domain.PlatformError("Failed to send SMS: "+err.Error(), err)
	}
}

// guard turns a panicking platform call into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("platform panic: %v", r)
		}
	}()
	return fn()
}

func simID(id *int) any {
	if id == nil {
		return "default"
	}
	return *id
}
