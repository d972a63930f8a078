package redisclient

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// localSlotLocker is an in-process Locker for single instance deployments and tests.
type localSlotLocker struct {
	mu    sync.Mutex
	slots map[string]*keyLock
	wait  time.Duration
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalSlotLocker creates a Locker backed by per-key mutexes. Waiters give up
// after wait, or when their context ends.
func NewLocalSlotLocker(wait time.Duration) Locker {
	return &localSlotLocker{
		slots: make(map[string]*keyLock),
		wait:  wait,
	}
}

func (l *localSlotLocker) WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return l.WithSlotLocks(ctx, []string{key}, fn)
}

func (l *localSlotLocker) WithSlotLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	keys = sortedUnique(keys)

	acquired := make([]string, 0, len(keys))
	defer func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			l.release(acquired[i])
		}
	}()

	for _, key := range keys {
		if err := l.acquire(ctx, key); err != nil {
			return err
		}
		acquired = append(acquired, key)
	}

	return fn(ctx)
}

func (l *localSlotLocker) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	kl, ok := l.slots[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.slots[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case kl.ch <- struct{}{}:
		return nil
	case <-timer.C:
		l.unref(key, kl)
		return ErrLockNotAcquired
	case <-ctx.Done():
		l.unref(key, kl)
		return fmt.Errorf("%w: %v", ErrLockNotAcquired, ctx.Err())
	}
}

func (l *localSlotLocker) release(key string) {
	l.mu.Lock()
	kl := l.slots[key]
	l.mu.Unlock()

	<-kl.ch
	l.unref(key, kl)
}

func (l *localSlotLocker) unref(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.slots, key)
	}
}
