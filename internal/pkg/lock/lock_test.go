package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	l.clock = func() time.Time { return now }

	release, err := l.Acquire(ctx, "shop:1", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "shop:1", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	_, err = l.Acquire(ctx, "shop:2", time.Minute)
	assert.NoError(t, err)

	release()
	release()
	_, err = l.Acquire(ctx, "shop:1", time.Minute)
	assert.NoError(t, err)
}

func TestLocalLocker_Expiry(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	l.clock = func() time.Time { return now }

	staleRelease, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	// releasing the expired holder must not drop the new one
	staleRelease()
	_, err = l.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)
}
