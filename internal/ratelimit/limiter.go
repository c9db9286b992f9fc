// SPDX-License-Identifier: MIT

// Package ratelimit provides a global plus per-key token bucket limiter.
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var (
	rateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_ratelimit_exceeded_total",
			Help: "Total rate limit rejections",
		},
		[]string{"limiter", "limit_type"},
	)
)

// Config holds rate limiting configuration
type Config struct {
	// Name labels rejections in metrics.
	Name string

	// Global limits
	GlobalRate  rate.Limit // events per second
	GlobalBurst int        // max burst size

	// Per-key limits
	PerKeyRate  rate.Limit
	PerKeyBurst int

	// Idle keys are forgotten after this long.
	IdleTimeout time.Duration
}

// SMSConfig limits outbound text messages: a few per destination per hour.
func SMSConfig() Config {
	return Config{
		Name:        "sms",
		GlobalRate:  20,
		GlobalBurst: 40,
		PerKeyRate:  rate.Every(10 * time.Minute),
		PerKeyBurst: 3,
		IdleTimeout: time.Hour,
	}
}

type keyed struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter manages a global bucket and one bucket per key.
type Limiter struct {
	config Config
	now    func() time.Time

	global *rate.Limiter
	perKey map[string]*keyed
	mu     sync.Mutex

	lastCleanup time.Time
}

// New creates a new rate limiter with the given config
func New(config Config) *Limiter {
	return &Limiter{
		config:      config,
		now:         time.Now,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		perKey:      make(map[string]*keyed),
		lastCleanup: time.Now(),
	}
}

// Allow reports whether one event for key fits both the per-key and global
// budgets. A rejected event consumes no global token.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.maybeCleanup(now)

	k, ok := l.perKey[key]
	if !ok {
		k = &keyed{limiter: rate.NewLimiter(l.config.PerKeyRate, l.config.PerKeyBurst)}
		l.perKey[key] = k
	}
	k.lastSeen = now

	r := k.limiter.ReserveN(now, 1)
	if !r.OK() || r.DelayFrom(now) > 0 {
		r.CancelAt(now)
		rateLimitExceeded.WithLabelValues(l.config.Name, "per_key").Inc()
		return false
	}
	if !l.global.AllowN(now, 1) {
		r.CancelAt(now)
		rateLimitExceeded.WithLabelValues(l.config.Name, "global").Inc()
		return false
	}
	return true
}

// Keys returns the number of tracked keys.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.perKey)
}

// maybeCleanup drops keys idle longer than IdleTimeout. Caller holds mu.
func (l *Limiter) maybeCleanup(now time.Time) {
	if l.config.IdleTimeout <= 0 || now.Sub(l.lastCleanup) < l.config.IdleTimeout {
		return
	}
	for key, k := range l.perKey {
		if now.Sub(k.lastSeen) >= l.config.IdleTimeout {
			delete(l.perKey, key)
		}
	}
	l.lastCleanup = now
}
