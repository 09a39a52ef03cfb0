package scraper

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/atom-api/atom/internal/metrics"
	"golang.org/x/sync/semaphore"
)

// Limiter caps the number of page fetches in flight across the whole process.
// Every fetch, including the nested ones made while resolving teachers or
// substitutions, takes one slot.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int64
	inFlight atomic.Int64
	metrics  *metrics.Metrics
}

// NewLimiter creates a limiter with the given number of slots (minimum 1).
func NewLimiter(capacity int64, m *metrics.Metrics) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(capacity),
		capacity: capacity,
		metrics:  m,
	}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.metrics.RecordLimiterWait(time.Since(start).Seconds())
	l.inFlight.Add(1)
	l.metrics.AddInFlight(1)
	return nil
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	l.inFlight.Add(-1)
	l.metrics.AddInFlight(-1)
	l.sem.Release(1)
}

// Capacity returns the number of slots.
func (l *Limiter) Capacity() int64 {
	return l.capacity
}

// InFlight returns the number of slots currently held.
func (l *Limiter) InFlight() int64 {
	return l.inFlight.Load()
}
