package keylock

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/kataras/golog"
)

func exerciseMutualExclusion(t *testing.T, l Locker) {
	t.Helper()

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "property:1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("max holders = %d, want 1", maxInside)
	}
}

func TestLocalMutualExclusion(t *testing.T) {
	exerciseMutualExclusion(t, NewLocal())
}

func TestLocalDistinctKeysDoNotBlock(t *testing.T) {
	l := NewLocal()
	unlockA, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("lock b: %v", err)
	}
	unlockB()
}

func TestLocalHonoursContext(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second lock = %v, want deadline exceeded", err)
	}
	if len(l.locks) != 1 {
		t.Fatalf("lock table size = %d, want 1", len(l.locks))
	}
}

func TestLocalUnlockIsIdempotentAndCleansUp(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	unlock()
	unlock()
	if len(l.locks) != 0 {
		t.Fatalf("lock table size = %d, want 0", len(l.locks))
	}
}

func newRedisLocker(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, time.Second, nil), mr
}

func TestRedisMutualExclusion(t *testing.T) {
	l, _ := newRedisLocker(t)
	exerciseMutualExclusion(t, l)
}

func TestRedisReleaseOnlyOwnToken(t *testing.T) {
	l, mr := newRedisLocker(t)

	unlock, err := l.Lock(context.Background(), "property:9")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	// Simulate expiry and takeover by another process.
	mr.Set("lock:property:9", "someone-else")
	unlock()

	got, err := mr.Get("lock:property:9")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "someone-else" {
		t.Fatalf("lock value = %q, want other holder kept", got)
	}
}

func TestRedisTimesOut(t *testing.T) {
	l, _ := newRedisLocker(t)
	l.wait = 30 * time.Millisecond

	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	if _, err := l.Lock(context.Background(), "k"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("second lock = %v, want ErrLockTimeout", err)
	}
}

func TestRedisReleaseFailureIsLogged(t *testing.T) {
	l, mr := newRedisLocker(t)
	var out bytes.Buffer
	l.log = golog.New()
	l.log.SetOutput(&out)

	unlock, err := l.Lock(context.Background(), "property:3")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	mr.Close()
	unlock()

	if !strings.Contains(out.String(), "release lock:property:3") {
		t.Fatalf("log = %q, want release failure", out.String())
	}
}
