// Package redis remembers which completion tokens have already been
// reported, so gateways that redeliver do not settle a send twice.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sim-sms-bridge/internal/ports"
)

const (
	keyPrefix  = "simbridge:completion"
	DefaultTTL = 24 * time.Hour
)

type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Deduper implements ports.CompletionDeduper with SETNX.
type Deduper struct {
	rdb setNXer
	ttl time.Duration
}

// NewClient creates a Redis client with the given address, password and DB
// number.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewDeduper(rdb *redis.Client, ttl time.Duration) *Deduper {
	return newDeduper(rdb, ttl)
}

func newDeduper(rdb setNXer, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Deduper{rdb: rdb, ttl: ttl}
}

func key(token string) string {
	return fmt.Sprintf("%s:%s", keyPrefix, token)
}

// FirstSeen marks token and reports whether this was the first report.
func (d *Deduper) FirstSeen(ctx context.Context, token string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, key(token), time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark completion %s: %w", token, err)
	}
	return ok, nil
}

var _ ports.CompletionDeduper = (*Deduper)(nil)
