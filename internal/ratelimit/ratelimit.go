// Package ratelimit provides token bucket limiters for throttling API
// clients, so a single caller cannot turn the service into a load generator
// against the school's web server.
package ratelimit

import (
	"sync"
	"time"

	"github.com/atom-api/atom/internal/metrics"
)

// Bucket is a token bucket. It is safe for concurrent use.
type Bucket struct {
	mu         sync.Mutex
	tokens     float64
	burst      float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

// NewBucket creates a full bucket holding burst tokens and refilled at
// refillRate tokens per second.
func NewBucket(burst, refillRate float64) *Bucket {
	return newBucket(burst, refillRate, time.Now)
}

func newBucket(burst, refillRate float64, now func() time.Time) *Bucket {
	return &Bucket{
		tokens:     burst,
		burst:      burst,
		refillRate: refillRate,
		lastRefill: now(),
		now:        now,
	}
}

// refill must be called with mu held.
func (b *Bucket) refill() {
	now := b.now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.refillRate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.lastRefill = now
}

// Allow consumes one token if available.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// RetryAfter returns how long until the next token is available.
func (b *Bucket) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= 1 || b.refillRate <= 0 {
		return 0
	}
	return time.Duration((1 - b.tokens) / b.refillRate * float64(time.Second))
}

// full reports whether the bucket has refilled completely, i.e. its key has
// been idle long enough to forget.
func (b *Bucket) full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return b.tokens >= b.burst
}

// Config configures a Keyed limiter.
type Config struct {
	PerMinute     float64       // sustained requests per minute per key
	Burst         float64       // requests a fresh key may make at once
	CleanupPeriod time.Duration // how often idle keys are dropped
	Metrics       *metrics.Metrics
}

// Keyed keeps one Bucket per key (client IP). Idle keys are dropped by a
// background loop until Stop is called.
type Keyed struct {
	mu      sync.RWMutex
	buckets map[string]*Bucket
	cfg     Config
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

// NewKeyed creates a per-key limiter and starts its cleanup loop.
func NewKeyed(cfg Config) *Keyed {
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = 5 * time.Minute
	}
	k := &Keyed{
		buckets: make(map[string]*Bucket),
		cfg:     cfg,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go k.cleanupLoop()
	return k
}

// Allow reports whether key may make another request. An empty key is
// never limited.
func (k *Keyed) Allow(key string) bool {
	if key == "" {
		return true
	}
	if k.bucket(key).Allow() {
		return true
	}
	k.cfg.Metrics.RecordRateLimited()
	return false
}

// RetryAfter returns how long key has to wait for its next request.
func (k *Keyed) RetryAfter(key string) time.Duration {
	k.mu.RLock()
	b, ok := k.buckets[key]
	k.mu.RUnlock()
	if !ok {
		return 0
	}
	return b.RetryAfter()
}

// Active returns the number of tracked keys.
func (k *Keyed) Active() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.buckets)
}

func (k *Keyed) bucket(key string) *Bucket {
	k.mu.RLock()
	b, ok := k.buckets[key]
	k.mu.RUnlock()
	if ok {
		return b
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if b, ok = k.buckets[key]; ok {
		return b
	}
	b = newBucket(k.cfg.Burst, k.cfg.PerMinute/60, k.now)
	k.buckets[key] = b
	k.cfg.Metrics.SetRateLimitedClients(len(k.buckets))
	return b
}

// sweep drops the buckets that have refilled completely.
func (k *Keyed) sweep() {
	k.mu.Lock()
	for key, b := range k.buckets {
		if b.full() {
			delete(k.buckets, key)
		}
	}
	active := len(k.buckets)
	k.mu.Unlock()

	k.cfg.Metrics.SetRateLimitedClients(active)
}

func (k *Keyed) cleanupLoop() {
	ticker := time.NewTicker(k.cfg.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-k.stopCh:
			return
		case <-ticker.C:
			k.sweep()
		}
	}
}

// Stop ends the cleanup loop. Safe to call more than once.
func (k *Keyed) Stop() {
	k.once.Do(func() { close(k.stopCh) })
}
