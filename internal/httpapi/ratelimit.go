package httpapi

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	limiterMaxChats = 4096
	limiterIdleTTL  = 10 * time.Minute
	limiterBurst    = 5
)

// chatLimiter hands out one token bucket per chat. A non-positive rpm
// disables limiting.
type chatLimiter struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	buckets *expirable.LRU[string, *rate.Limiter]
}

func newChatLimiter(rpm int) *chatLimiter {
	if rpm <= 0 {
		return nil
	}
	burst := limiterBurst
	if rpm < burst {
		burst = rpm
	}
	return &chatLimiter{
		every:   rate.Every(time.Minute / time.Duration(rpm)),
		burst:   burst,
		buckets: expirable.NewLRU[string, *rate.Limiter](limiterMaxChats, nil, limiterIdleTTL),
	}
}

func (l *chatLimiter) Allow(chatID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	b, ok := l.buckets.Get(chatID)
	if !ok {
		b = rate.NewLimiter(l.every, l.burst)
		l.buckets.Add(chatID, b)
	}
	l.mu.Unlock()
	return b.Allow()
}
