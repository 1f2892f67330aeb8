package completion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sim-sms-bridge/internal/domain"
)

func TestRegistry_DeliverOnce(t *testing.T) {
	reg := NewRegistry()
	l := reg.Register()

	if err := reg.Deliver(context.Background(), domain.Completion{Token: l.Token, ResultCode: domain.ResultOK}); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if reg.Pending() != 0 {
		t.Fatalf("listener should be deregistered before its signal is consumed, pending=%d", reg.Pending())
	}

	select {
	case c := <-l.Done():
		if c.ResultCode != domain.ResultOK {
			t.Fatalf("unexpected result code %d", c.ResultCode)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("completion was not delivered")
	}

	err := reg.Deliver(context.Background(), domain.Completion{Token: l.Token, ResultCode: 1})
	if !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("second delivery should fail with ErrUnknownToken, got %v", err)
	}
}

func TestRegistry_CancelDeregisters(t *testing.T) {
	reg := NewRegistry()
	l := reg.Register()

	if !l.Cancel() {
		t.Fatal("cancel of a registered listener should report true")
	}
	if l.Cancel() {
		t.Fatal("second cancel should be a no-op")
	}
	if reg.Pending() != 0 {
		t.Fatalf("expected no pending listeners, got %d", reg.Pending())
	}
	if err := reg.Deliver(context.Background(), domain.Completion{Token: l.Token}); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("delivery after cancel should fail, got %v", err)
	}
}

func TestRegistry_CancelAfterDeliverIsNoop(t *testing.T) {
	reg := NewRegistry()
	l := reg.Register()
	_ = reg.Deliver(context.Background(), domain.Completion{Token: l.Token, ResultCode: domain.ResultOK})

	if l.Cancel() {
		t.Fatal("cancel after delivery should report false")
	}
	if len(l.Done()) != 1 {
		t.Fatal("delivered completion should still be readable")
	}
}

func TestRegistry_RegenerateOnCollision(t *testing.T) {
	reg := NewRegistry()
	tokens := []string{"same", "same", "other"}
	reg.newToken = func() string {
		tok := tokens[0]
		tokens = tokens[1:]
		return tok
	}

	a := reg.Register()
	b := reg.Register()
	if a.Token == b.Token {
		t.Fatalf("registry handed out a colliding token %q", a.Token)
	}
}

func TestRegistry_ConcurrentSendsDoNotCrossWire(t *testing.T) {
	reg := NewRegistry()
	const n = 100

	listeners := make([]*Listener, n)
	seen := make(map[string]bool, n)
	for i := range listeners {
		listeners[i] = reg.Register()
		if seen[listeners[i].Token] {
			t.Fatalf("duplicate token %s", listeners[i].Token)
		}
		seen[listeners[i].Token] = true
	}

	var wg sync.WaitGroup
	for i, l := range listeners {
		wg.Add(1)
		go func(code int, token string) {
			defer wg.Done()
			_ = reg.Deliver(context.Background(), domain.Completion{Token: token, ResultCode: code})
		}(i, l.Token)
	}
	wg.Wait()

	for i, l := range listeners {
		select {
		case c := <-l.Done():
			if c.ResultCode != i || c.Token != l.Token {
				t.Fatalf("listener %d got completion %+v", i, c)
			}
		default:
			t.Fatalf("listener %d never fired", i)
		}
	}
}
