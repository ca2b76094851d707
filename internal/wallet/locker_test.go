package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/waleedelsefy/imv-whatsapp-api/internal/logging"
)

func TestLocalLockerSerializesSameKey(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "c1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxSeen)
	}
	if len(l.slots) != 0 {
		t.Fatalf("expected idle keys to be dropped, have %d", len(l.slots))
	}
}

func TestLocalLockerHonoursContext(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "c1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "c1"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}

	other, err := l.Lock(context.Background(), "c2")
	if err != nil {
		t.Fatalf("independent key should not block: %v", err)
	}
	other()
}

func setupRedisLocker(t *testing.T, ttl, wait time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewRedisLocker(client, ttl, wait, logging.Discard()), mr
}

func TestRedisLockerExclusive(t *testing.T) {
	l, mr := setupRedisLocker(t, time.Second, 50*time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "c1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !mr.Exists(lockKeyPrefix + "c1") {
		t.Fatalf("expected lock key in redis")
	}

	if _, err := l.Lock(ctx, "c1"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}

	unlock()
	if mr.Exists(lockKeyPrefix + "c1") {
		t.Fatalf("expected lock key to be released")
	}

	again, err := l.Lock(ctx, "c1")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()
}

func TestRedisLockerDoesNotReleaseForeignToken(t *testing.T) {
	l, mr := setupRedisLocker(t, time.Second, 50*time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "c1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	// Simulate expiry followed by another holder taking over.
	mr.Set(lockKeyPrefix+"c1", "someone-else")
	unlock()

	got, err := mr.Get(lockKeyPrefix + "c1")
	if err != nil || got != "someone-else" {
		t.Fatalf("foreign lock was released: %q %v", got, err)
	}
}

func TestServiceWithRedisLocker(t *testing.T) {
	l, _ := setupRedisLocker(t, time.Second, time.Second)
	svc, _ := newTestService(t, "c1")
	svc.locker = l

	if _, err := svc.CreditTopUp(context.Background(), "c1", dec("12.34")); err != nil {
		t.Fatalf("topup: %v", err)
	}
	snap, _ := svc.Check(context.Background(), "c1")
	if !snap.Available.Equal(dec("12.34")) {
		t.Fatalf("expected 12.34, got %s", snap.Available)
	}
}
