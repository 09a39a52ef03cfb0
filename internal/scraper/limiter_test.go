package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atom-api/atom/internal/metrics"
)

func TestNewLimiter_MinimumCapacity(t *testing.T) {
	assert.Equal(t, int64(1), NewLimiter(0, nil).Capacity())
	assert.Equal(t, int64(10), NewLimiter(10, nil).Capacity())
}

func TestLimiter_BlocksWhenFull(t *testing.T) {
	l := NewLimiter(2, nil)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	assert.Equal(t, int64(2), l.InFlight())

	acquired := make(chan struct{})
	go func() {
		if err := l.Acquire(ctx); err == nil {
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("third Acquire should block while both slots are held")
	case <-time.After(30 * time.Millisecond):
	}

	l.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Acquire did not proceed after Release")
	}

	l.Release()
	l.Release()
	assert.Zero(t, l.InFlight())
}

func TestLimiter_ContextCanceled(t *testing.T) {
	l := NewLimiter(1, nil)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.Acquire(ctx), context.Canceled)
	assert.Equal(t, int64(1), l.InFlight())
}

func TestLimiter_Metrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	l := NewLimiter(3, m)

	require.NoError(t, l.Acquire(context.Background()))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LimiterInFlight))

	l.Release()
	assert.Equal(t, float64(0), testutil.ToFloat64(m.LimiterInFlight))
}
