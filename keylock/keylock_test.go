package keylock

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

func TestMap_SerializesSameKey(t *testing.T) {
	m := NewMap()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, "SSC_2024_1")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("max concurrent holders = %d", maxSeen)
	}
	if m.Len() != 0 {
		t.Fatalf("entries leaked: %d", m.Len())
	}
}

func TestMap_DifferentKeysIndependent(t *testing.T) {
	m := NewMap()
	ctx := context.Background()
	u1, err := m.Lock(ctx, "a")
	if err != nil {
		t.Fatalf("Lock a: %v", err)
	}
	defer u1()

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	u2, err := m.Lock(ctx2, "b")
	if err != nil {
		t.Fatalf("Lock b blocked by a: %v", err)
	}
	u2()
}

func TestMap_ContextCancelWhileWaiting(t *testing.T) {
	m := NewMap()
	unlock, _ := m.Lock(context.Background(), "a")
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := m.Lock(ctx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if m.Len() != 1 {
		t.Fatalf("waiter ref not released: %d", m.Len())
	}
}

func TestLockAll_DedupesAndReleases(t *testing.T) {
	m := NewMap()
	ctx := context.Background()
	release, err := LockAll(ctx, m, []string{"b", "a", "b"})
	if err != nil {
		t.Fatalf("LockAll: %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("Len = %d", m.Len())
	}
	release()
	if m.Len() != 0 {
		t.Fatalf("Len after release = %d", m.Len())
	}
}

// Set RESULTLEDGER_TEST_REDIS_ADDR to run against a live Redis.
func TestRedis_MutualExclusion(t *testing.T) {
	addr := os.Getenv("RESULTLEDGER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RESULTLEDGER_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedis(client)
	l.Prefix = "resultledger:test:" + uuid.NewString() + ":"
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(short, "k"); err == nil {
		t.Fatalf("second holder acquired lock")
	}
	unlock()
	again, err := l.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	again()
}
