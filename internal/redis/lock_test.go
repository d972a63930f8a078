package redisclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisSlotLockerReleasesKey(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	locker := NewRedisSlotLocker(rdb, 5*time.Second, 0)

	err := locker.WithSlotLock(context.Background(), "lock:slot:a", func(ctx context.Context) error {
		assert.True(t, mr.Exists("lock:slot:a"))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("lock:slot:a"))
}

func TestRedisSlotLockerHeldKeyFailsWithoutWait(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	require.NoError(t, mr.Set("lock:slot:a", "someone-else"))

	locker := NewRedisSlotLocker(rdb, 5*time.Second, 0)
	called := false
	err := locker.WithSlotLock(context.Background(), "lock:slot:a", func(ctx context.Context) error {
		called = true
		return nil
	})

	require.ErrorIs(t, err, ErrLockNotAcquired)
	assert.False(t, called)
	// a foreign token must survive our release attempt
	got, _ := mr.Get("lock:slot:a")
	assert.Equal(t, "someone-else", got)
}

func TestRedisSlotLockerWaitsForRelease(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	require.NoError(t, mr.Set("lock:slot:a", "holder"))

	go func() {
		time.Sleep(60 * time.Millisecond)
		mr.Del("lock:slot:a")
	}()

	locker := NewRedisSlotLocker(rdb, 5*time.Second, time.Second)
	err := locker.WithSlotLock(context.Background(), "lock:slot:a", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
}

func TestRedisSlotLockerMultiKeyReleasesPartialOnFailure(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	require.NoError(t, mr.Set("lock:slot:b", "holder"))

	locker := NewRedisSlotLocker(rdb, 5*time.Second, 0)
	err := locker.WithSlotLocks(context.Background(), []string{"lock:slot:b", "lock:slot:a"}, func(ctx context.Context) error {
		return nil
	})

	require.ErrorIs(t, err, ErrLockNotAcquired)
	assert.False(t, mr.Exists("lock:slot:a"), "keys taken before the failure are released")
}

func TestRedisSlotLockerPropagatesCallbackError(t *testing.T) {
	_, rdb := newMiniredisClient(t)
	locker := NewRedisSlotLocker(rdb, 5*time.Second, 0)
	boom := errors.New("boom")

	err := locker.WithSlotLock(context.Background(), "k", func(ctx context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestRedisSlotLockerCancelledContextIsNotAcquired(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	locker := NewRedisSlotLocker(rdb, 5*time.Second, 500*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := locker.WithSlotLock(ctx, "lock:slot:a", func(ctx context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrLockNotAcquired)
	require.ErrorContains(t, err, context.Canceled.Error())
	assert.False(t, called)
	assert.False(t, mr.Exists("lock:slot:a"))
}

func TestRetryDelayIsSpread(t *testing.T) {
	seen := make(map[time.Duration]bool)
	for i := 0; i < 50; i++ {
		d := retryDelay()
		assert.GreaterOrEqual(t, d, lockRetryInterval/2)
		assert.Less(t, d, lockRetryInterval*3/2)
		seen[d] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestLocalSlotLockerSerializesSameKey(t *testing.T) {
	locker := NewLocalSlotLocker(5 * time.Second)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithSlotLock(context.Background(), "k", func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestLocalSlotLockerDifferentKeysRunInParallel(t *testing.T) {
	locker := NewLocalSlotLocker(time.Second)
	entered := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = locker.WithSlotLock(context.Background(), "a", func(ctx context.Context) error {
			close(entered)
			<-done
			return nil
		})
	}()
	<-entered

	err := locker.WithSlotLock(context.Background(), "b", func(ctx context.Context) error { return nil })
	close(done)
	require.NoError(t, err)
}

func TestLocalSlotLockerTimesOut(t *testing.T) {
	locker := NewLocalSlotLocker(30 * time.Millisecond)
	entered := make(chan struct{})
	done := make(chan struct{})
	defer close(done)

	go func() {
		_ = locker.WithSlotLock(context.Background(), "a", func(ctx context.Context) error {
			close(entered)
			<-done
			return nil
		})
	}()
	<-entered

	err := locker.WithSlotLocks(context.Background(), []string{"a", "b"}, func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, ErrLockNotAcquired)
}

func TestPublisherPublishesJSON(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	sub := rdb.Subscribe(context.Background(), "events")
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	pub := NewPublisher(rdb, "events")
	require.NoError(t, pub.PublishJSON(context.Background(), map[string]string{"type": "x"}))

	msg, err := sub.ReceiveMessage(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"x"}`, msg.Payload)
	_ = mr
}
