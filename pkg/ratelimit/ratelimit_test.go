package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time          { return f.now }
func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func TestMemoryLimiterBlocksAfterLimit(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter(3, time.Minute, clock.Now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "a@example.com|10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "a@example.com|10.0.0.1")
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "b@example.com|10.0.0.1")
	assert.True(t, ok, "keys are independent")
}

func TestMemoryLimiterWindowExpires(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter(1, time.Minute, clock.Now)
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "k")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "k")
	assert.False(t, ok)

	clock.Advance(time.Minute)
	ok, _ = l.Allow(ctx, "k")
	assert.True(t, ok)
}

func TestMemoryLimiterReset(t *testing.T) {
	l := NewMemoryLimiter(1, time.Minute, nil)
	ctx := context.Background()

	_, _ = l.Allow(ctx, "k")
	ok, _ := l.Allow(ctx, "k")
	require.False(t, ok)

	require.NoError(t, l.Reset(ctx, "k"))
	ok, _ = l.Allow(ctx, "k")
	assert.True(t, ok)
}

func TestToInt64(t *testing.T) {
	v, err := toInt64(int64(4))
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)

	v, err = toInt64("7")
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	_, err = toInt64(3.5)
	assert.Error(t, err)
}
