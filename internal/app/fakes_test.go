package app

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"sim-sms-bridge/internal/domain"
	"sim-sms-bridge/internal/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePerms grants exactly the listed permissions.
type fakePerms map[ports.Permission]bool

func (f fakePerms) Granted(_ context.Context, p ports.Permission) bool { return f[p] }

func allPerms() fakePerms {
	return fakePerms{ports.PermissionReadPhoneState: true, ports.PermissionSendSMS: true}
}

// fakePlatform records every call and lets tests decide how sends behave.
type fakePlatform struct {
	mu sync.Mutex

	subs     []domain.Subscription
	subsErr  error
	subCalls int

	apiLevel int
	resolved []string // "default", "create:<id>", "lookup:<id>"

	issueErr error
	// autoFire, when set, fires every intent with this result code from
	// another goroutine.
	autoFire *int
	intents  chan ports.SentIntent
	sends    []string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{apiLevel: ports.APILevelScopedManagers, intents: make(chan ports.SentIntent, 16)}
}

func (f *fakePlatform) ActiveSubscriptions(context.Context) ([]domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subCalls++
	return f.subs, f.subsErr
}

func (f *fakePlatform) APILevel() int { return f.apiLevel }

func (f *fakePlatform) Default(context.Context) (ports.SmsManager, error) {
	f.record("default")
	return fakeManager{f}, nil
}

func (f *fakePlatform) CreateForSubscriptionID(_ context.Context, id int) (ports.SmsManager, error) {
	f.record("create:" + strconv.Itoa(id))
	return fakeManager{f}, nil
}

func (f *fakePlatform) ForSubscriptionID(_ context.Context, id int) (ports.SmsManager, error) {
	f.record("lookup:" + strconv.Itoa(id))
	return fakeManager{f}, nil
}

func (f *fakePlatform) record(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, path)
}

func (f *fakePlatform) subscriptionCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subCalls
}

type fakeManager struct{ f *fakePlatform }

func (m fakeManager) SendTextMessage(ctx context.Context, destination, text string, sent ports.SentIntent) error {
	m.f.mu.Lock()
	err := m.f.issueErr
	auto := m.f.autoFire
	m.f.sends = append(m.f.sends, destination)
	m.f.mu.Unlock()

	if err != nil {
		return err
	}
	if auto != nil {
		code := *auto
		go func() { _ = sent.Fire(context.Background(), code) }()
		return nil
	}
	m.f.intents <- sent
	return nil
}

type fakeJournal struct {
	mu      sync.Mutex
	begun   []domain.SendRecord
	settled []domain.SendOutcome
}

func (j *fakeJournal) Begin(_ context.Context, r domain.SendRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.begun = append(j.begun, r)
	return nil
}

func (j *fakeJournal) Settle(_ context.Context, o domain.SendOutcome) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.settled = append(j.settled, o)
	return nil
}

func (j *fakeJournal) Recent(_ context.Context, limit int) ([]domain.SendRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if limit > len(j.begun) {
		limit = len(j.begun)
	}
	return append([]domain.SendRecord(nil), j.begun[:limit]...), nil
}

type fakePublisher struct {
	mu       sync.Mutex
	outcomes []domain.SendOutcome
}

func (p *fakePublisher) Publish(_ context.Context, o domain.SendOutcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, o)
	return nil
}

type fakeDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *fakeDeduper) FirstSeen(_ context.Context, token string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[token] {
		return false, nil
	}
	d.seen[token] = true
	return true, nil
}
