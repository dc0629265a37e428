package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
)

func newLockFactory(t *testing.T) (LockFactory, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewLockFactory(client, nil), mr
}

func TestMutex_LockUnlock(t *testing.T) {
	factory, mr := newLockFactory(t)
	ctx := context.Background()

	lock := factory.NewMutex("doc:42", WithLockTTL(time.Second))
	require.NoError(t, lock.Lock(ctx))
	assert.True(t, mr.Exists("piianon:lock:doc:42"))

	require.NoError(t, lock.Unlock(ctx))
	assert.False(t, mr.Exists("piianon:lock:doc:42"))
}

func TestMutex_Contention(t *testing.T) {
	factory, _ := newLockFactory(t)
	ctx := context.Background()

	first := factory.NewMutex("doc:7", WithRetryCount(1), WithRetryDelay(10*time.Millisecond))
	second := factory.NewMutex("doc:7", WithRetryCount(1), WithRetryDelay(10*time.Millisecond))

	require.NoError(t, first.Lock(ctx))
	assert.ErrorIs(t, second.Lock(ctx), ErrLockNotAcquired)

	ok, err := second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, second.Unlock(ctx), ErrLockNotHeld)
	require.NoError(t, first.Unlock(ctx))

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMutex_Extend(t *testing.T) {
	factory, mr := newLockFactory(t)
	ctx := context.Background()

	lock := factory.NewMutex("doc:9", WithLockTTL(time.Second))
	require.NoError(t, lock.Lock(ctx))

	ok, err := lock.Extend(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Greater(t, mr.TTL("piianon:lock:doc:9"), 30*time.Second)
}

//Personal.AI order the ending
