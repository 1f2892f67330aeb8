package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeRedis struct {
	mu   sync.Mutex
	keys map[string]time.Duration
	err  error
}

func (f *fakeRedis) SetNX(_ context.Context, key string, _ interface{}, exp time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = exp
	return redis.NewBoolResult(true, nil)
}

func TestFirstSeen(t *testing.T) {
	f := &fakeRedis{keys: map[string]time.Duration{}}
	d := newDeduper(f, 0)
	ctx := context.Background()

	first, err := d.FirstSeen(ctx, "tok")
	if err != nil || !first {
		t.Fatalf("first report: %v %v", first, err)
	}
	again, err := d.FirstSeen(ctx, "tok")
	if err != nil || again {
		t.Fatalf("duplicate report: %v %v", again, err)
	}

	if ttl, ok := f.keys["simbridge:completion:tok"]; !ok || ttl != DefaultTTL {
		t.Fatalf("key not stored with default ttl: %v", f.keys)
	}
}

func TestFirstSeen_Error(t *testing.T) {
	boom := errors.New("connection refused")
	d := newDeduper(&fakeRedis{keys: map[string]time.Duration{}, err: boom}, time.Minute)

	if _, err := d.FirstSeen(context.Background(), "tok"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
