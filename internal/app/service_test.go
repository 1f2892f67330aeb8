package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"sim-sms-bridge/internal/completion"
	"sim-sms-bridge/internal/domain"
	"sim-sms-bridge/internal/ports"
)

func newService(perms fakePerms, p *fakePlatform, opts ...Option) (*TelephonyService, *completion.Registry) {
	reg := completion.NewRegistry()
	return NewTelephonyService(perms, p, reg, discardLogger(), opts...), reg
}

// sendAsync runs SendSms in the background and returns its result channel.
func sendAsync(s *TelephonyService, ctx context.Context, req SendRequest) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.SendSms(ctx, req) }()
	return done
}

func nextIntent(t *testing.T, p *fakePlatform) ports.SentIntent {
	t.Helper()
	select {
	case in := <-p.intents:
		return in
	case <-time.After(time.Second):
		t.Fatal("send was never issued to the platform")
		return ports.SentIntent{}
	}
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(time.Second):
		t.Fatal("SendSms did not settle")
		return nil
	}
}

func codeOf(t *testing.T, err error) (string, string) {
	t.Helper()
	e, ok := domain.AsError(err)
	if !ok {
		t.Fatalf("expected *domain.Error, got %T: %v", err, err)
	}
	return e.Code, e.Message
}

func TestListActiveSimCards_PermissionDenied(t *testing.T) {
	p := newFakePlatform()
	svc, _ := newService(fakePerms{ports.PermissionSendSMS: true}, p)

	_, err := svc.ListActiveSimCards(context.Background())
	if !errors.Is(err, domain.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if code, _ := codeOf(t, err); code != domain.CodePermissionDenied {
		t.Fatalf("unexpected code %s", code)
	}
	if p.subscriptionCalls() != 0 {
		t.Fatalf("platform was queried %d times without permission", p.subscriptionCalls())
	}
}

func TestListActiveSimCards_NoListIsEmpty(t *testing.T) {
	p := newFakePlatform()
	svc, _ := newService(allPerms(), p)

	cards, err := svc.ListActiveSimCards(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cards == nil || len(cards) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", cards)
	}
}

func TestListActiveSimCards_ProjectsInPlatformOrder(t *testing.T) {
	p := newFakePlatform()
	p.subs = []domain.Subscription{
		{ID: 7, DisplayName: "Personal", CarrierName: "Zed", SimSlotIndex: 1},
		{ID: 2, DisplayName: "", CarrierName: "", SimSlotIndex: domain.InvalidSimSlotIndex},
		{ID: 5, DisplayName: "Work", CarrierName: "Acme", SimSlotIndex: 0},
	}
	svc, _ := newService(allPerms(), p)

	cards, err := svc.ListActiveSimCards(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cards) != 3 {
		t.Fatalf("expected 3 cards, got %d", len(cards))
	}
	if cards[0].ID != 7 || cards[1].ID != 2 || cards[2].ID != 5 {
		t.Fatalf("order not preserved: %+v", cards)
	}
	if cards[0].SlotIndex == nil || *cards[0].SlotIndex != 1 {
		t.Fatalf("slot 1 not kept: %+v", cards[0])
	}
	if cards[1].SlotIndex != nil {
		t.Fatalf("invalid slot should be absent: %+v", cards[1])
	}
	if cards[2].DisplayName != "Work" || cards[2].CarrierName != "Acme" {
		t.Fatalf("names not copied: %+v", cards[2])
	}
}

func TestListActiveSimCards_PlatformFailure(t *testing.T) {
	p := newFakePlatform()
	p.subsErr = errors.New("service unavailable")
	svc, _ := newService(allPerms(), p)

	_, err := svc.ListActiveSimCards(context.Background())
	if !errors.Is(err, domain.ErrPlatform) {
		t.Fatalf("expected platform error, got %v", err)
	}
	code, msg := codeOf(t, err)
	if code != domain.CodeGeneric || !strings.Contains(msg, "service unavailable") {
		t.Fatalf("got (%s, %s)", code, msg)
	}
}

type panickingPlatform struct{ *fakePlatform }

func (panickingPlatform) ActiveSubscriptions(context.Context) ([]domain.Subscription, error) {
	panic("binder died")
}

func TestListActiveSimCards_PlatformPanicIsReported(t *testing.T) {
	reg := completion.NewRegistry()
	svc := NewTelephonyService(allPerms(), panickingPlatform{newFakePlatform()}, reg, discardLogger())

	_, err := svc.ListActiveSimCards(context.Background())
	if !errors.Is(err, domain.ErrPlatform) {
		t.Fatalf("expected platform error, got %v", err)
	}
}

func TestSendSms_PermissionDenied(t *testing.T) {
	p := newFakePlatform()
	svc, reg := newService(fakePerms{ports.PermissionReadPhoneState: true}, p)

	err := svc.SendSms(context.Background(), SendRequest{PhoneNumber: "+15551234567", Text: "Hello"})
	if !errors.Is(err, domain.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if reg.Pending() != 0 || len(p.sends) != 0 || len(p.resolved) != 0 {
		t.Fatalf("no listener or platform call expected: pending=%d sends=%v resolved=%v", reg.Pending(), p.sends, p.resolved)
	}
}

func TestSendSms_Success(t *testing.T) {
	p := newFakePlatform()
	journal := &fakeJournal{}
	events := &fakePublisher{}
	svc, reg := newService(allPerms(), p, WithJournal(journal), WithOutcomePublisher(events))

	done := sendAsync(svc, context.Background(), SendRequest{PhoneNumber: "+15551234567", Text: "Hello"})
	intent := nextIntent(t, p)
	if err := intent.Fire(context.Background(), domain.ResultOK); err != nil {
		t.Fatalf("fire: %v", err)
	}

	if err := waitResult(t, done); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if reg.Pending() != 0 {
		t.Fatalf("listener left registered")
	}
	if len(journal.begun) != 1 || len(journal.settled) != 1 || !journal.settled[0].OK() {
		t.Fatalf("journal not updated once: %+v", journal)
	}
	if len(events.outcomes) != 1 || events.outcomes[0].PhoneNumber != "+15551234567" {
		t.Fatalf("outcome not published: %+v", events.outcomes)
	}
}

func TestSendSms_KnownFailureCode(t *testing.T) {
	p := newFakePlatform()
	svc, _ := newService(allPerms(), p)

	done := sendAsync(svc, context.Background(), SendRequest{PhoneNumber: "+15551234567", Text: "Hello"})
	_ = nextIntent(t, p).Fire(context.Background(), domain.ResultErrorRadioOff)

	err := waitResult(t, done)
	if !errors.Is(err, domain.ErrSend) {
		t.Fatalf("expected send error, got %v", err)
	}
	code, msg := codeOf(t, err)
	if code != "RADIO_OFF" || msg != "Radio off" {
		t.Fatalf("got (%s, %s)", code, msg)
	}
}

func TestSendSms_UnknownFailureCode(t *testing.T) {
	p := newFakePlatform()
	svc, _ := newService(allPerms(), p)

	done := sendAsync(svc, context.Background(), SendRequest{PhoneNumber: "+15551234567", Text: "Hello"})
	_ = nextIntent(t, p).Fire(context.Background(), 999)

	code, msg := codeOf(t, waitResult(t, done))
	if code != domain.CodeUnknown || !strings.Contains(msg, "999") {
		t.Fatalf("got (%s, %s)", code, msg)
	}
}

func TestSendSms_SynchronousFailuresDeregister(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"invalid arguments", domain.ErrInvalidArgument, domain.CodeInvalidArguments},
		{"unsupported", domain.ErrUnsupported, domain.CodeNotSupported},
		{"other", errors.New("modem unplugged"), domain.CodeGeneric},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newFakePlatform()
			p.issueErr = tc.err
			journal := &fakeJournal{}
			svc, reg := newService(allPerms(), p, WithJournal(journal))

			err := svc.SendSms(context.Background(), SendRequest{PhoneNumber: "not a number", Text: "x"})
			if code, _ := codeOf(t, err); code != tc.code {
				t.Fatalf("expected %s, got %s", tc.code, code)
			}
			if reg.Pending() != 0 {
				t.Fatalf("listener leaked on synchronous failure")
			}
			if len(journal.settled) != 1 || journal.settled[0].Code != tc.code {
				t.Fatalf("journal not settled: %+v", journal.settled)
			}
		})
	}
}

func TestSendSms_ResolvesManagerByAPILevel(t *testing.T) {
	ok := domain.ResultOK
	id := 2

	cases := []struct {
		name     string
		apiLevel int
		simID    *int
		want     string
	}{
		{"default sim", 34, nil, "default"},
		{"scoped create", ports.APILevelScopedManagers, &id, "create:2"},
		{"legacy lookup", 30, &id, "lookup:2"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newFakePlatform()
			p.apiLevel = tc.apiLevel
			p.autoFire = &ok
			svc, _ := newService(allPerms(), p)

			if err := svc.SendSms(context.Background(), SendRequest{PhoneNumber: "+1555", Text: "hi", SimCardID: tc.simID}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(p.resolved) != 1 || p.resolved[0] != tc.want {
				t.Fatalf("expected %s, got %v", tc.want, p.resolved)
			}
		})
	}
}

func TestSendSms_ConcurrentSendsSettleIndependently(t *testing.T) {
	p := newFakePlatform()
	svc, reg := newService(allPerms(), p)

	first := sendAsync(svc, context.Background(), SendRequest{PhoneNumber: "+1001", Text: "a"})
	in1 := nextIntent(t, p)
	second := sendAsync(svc, context.Background(), SendRequest{PhoneNumber: "+1002", Text: "b"})
	in2 := nextIntent(t, p)

	if in1.Token == in2.Token {
		t.Fatalf("concurrent sends share token %s", in1.Token)
	}

	// Complete in reverse order with different results.
	_ = in2.Fire(context.Background(), domain.ResultErrorNoService)
	_ = in1.Fire(context.Background(), domain.ResultOK)

	if err := waitResult(t, first); err != nil {
		t.Fatalf("first send should succeed, got %v", err)
	}
	if code, _ := codeOf(t, waitResult(t, second)); code != "NO_SERVICE" {
		t.Fatalf("second send should fail with NO_SERVICE, got %s", code)
	}
	if reg.Pending() != 0 {
		t.Fatalf("listeners left registered: %d", reg.Pending())
	}

	// A late duplicate for either token is rejected.
	if err := in1.Fire(context.Background(), domain.ResultOK); !errors.Is(err, completion.ErrUnknownToken) {
		t.Fatalf("duplicate completion accepted: %v", err)
	}
}

func TestSendSms_ContextCancelDeregisters(t *testing.T) {
	p := newFakePlatform()
	svc, reg := newService(allPerms(), p)

	ctx, cancel := context.WithCancel(context.Background())
	done := sendAsync(svc, ctx, SendRequest{PhoneNumber: "+1555", Text: "hi"})
	intent := nextIntent(t, p)
	cancel()

	err := waitResult(t, done)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if reg.Pending() != 0 {
		t.Fatalf("listener left registered after cancel")
	}
	if err := intent.Fire(context.Background(), domain.ResultOK); !errors.Is(err, completion.ErrUnknownToken) {
		t.Fatalf("completion after cancel should be rejected, got %v", err)
	}
}

func TestSendSms_SendTimeout(t *testing.T) {
	p := newFakePlatform()
	svc, reg := newService(allPerms(), p, WithSendTimeout(20*time.Millisecond))

	err := svc.SendSms(context.Background(), SendRequest{PhoneNumber: "+1555", Text: "hi"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if reg.Pending() != 0 {
		t.Fatalf("listener left registered after timeout")
	}
}

func TestHandleCompletion_DuplicateIsAcknowledged(t *testing.T) {
	p := newFakePlatform()
	journal := &fakeJournal{}
	svc, _ := newService(allPerms(), p, WithJournal(journal), WithDeduper(&fakeDeduper{}))

	done := sendAsync(svc, context.Background(), SendRequest{PhoneNumber: "+1555", Text: "hi"})
	intent := nextIntent(t, p)

	c := domain.Completion{Token: intent.Token, ResultCode: domain.ResultOK}
	if err := svc.HandleCompletion(context.Background(), c); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	if err := svc.HandleCompletion(context.Background(), c); err != nil {
		t.Fatalf("duplicate completion should be acknowledged, got %v", err)
	}
	if err := waitResult(t, done); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(journal.settled) != 1 {
		t.Fatalf("send settled %d times", len(journal.settled))
	}
}

func TestHandleCompletion_UnknownToken(t *testing.T) {
	svc, _ := newService(allPerms(), newFakePlatform())

	err := svc.HandleCompletion(context.Background(), domain.Completion{Token: "nope", ResultCode: domain.ResultOK})
	if !errors.Is(err, completion.ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
}

func TestScaffold(t *testing.T) {
	svc, _ := newService(allPerms(), newFakePlatform())

	if svc.Hello() != "Hello world! 👋" {
		t.Fatalf("unexpected greeting %q", svc.Hello())
	}

	var got []string
	svc.OnChange(func(v string) { got = append(got, v) })
	svc.SetValue(context.Background(), "blue")
	if len(got) != 1 || got[0] != "blue" {
		t.Fatalf("onChange not emitted: %v", got)
	}
}
