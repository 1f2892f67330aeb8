package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// SendLimiter is a per client token bucket guarding the send endpoint.
type SendLimiter struct {
	mu      sync.Mutex
	clients map[string]*bucket
	rate    int
	window  time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewSendLimiter allows rate sends per window per client IP.
func NewSendLimiter(rate int, window time.Duration) *SendLimiter {
	l := &SendLimiter{
		clients: make(map[string]*bucket),
		rate:    rate,
		window:  window,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.evictLoop()
	return l
}

func (l *SendLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		remaining, ok := l.take(c.IP())
		c.Set("X-RateLimit-Limit", strconv.Itoa(l.rate))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if ok {
			return c.Next()
		}

		retry := int(l.window.Seconds() / float64(l.rate))
		if retry < 1 {
			retry = 1
		}
		c.Set("Retry-After", strconv.Itoa(retry))
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"code":    "RATE_LIMITED",
			"message": "Too many send requests. Please try again later.",
		})
	}
}

// take refills the client's bucket and spends one token if available.
func (l *SendLimiter) take(client string) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.clients[client]
	if !ok {
		b = &bucket{tokens: float64(l.rate), lastRefill: now}
		l.clients[client] = b
	}

	elapsed := now.Sub(b.lastRefill)
	b.tokens = min(float64(l.rate), b.tokens+float64(l.rate)*elapsed.Seconds()/l.window.Seconds())
	b.lastRefill = now

	if b.tokens < 1 {
		return 0, false
	}
	b.tokens--
	return int(b.tokens), true
}

func (l *SendLimiter) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evict()
		}
	}
}

// evict forgets clients whose bucket has been full for two windows.
func (l *SendLimiter) evict() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for ip, b := range l.clients {
		if now.Sub(b.lastRefill) > 2*l.window {
			delete(l.clients, ip)
		}
	}
}

func (l *SendLimiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}
