package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu      sync.Mutex
	keys    map[string]struct{}
	scanErr error
	delErr  error
	deleted []string
}

func newFakeBackend(keys ...string) *fakeBackend {
	b := &fakeBackend{keys: make(map[string]struct{})}
	for _, k := range keys {
		b.keys[k] = struct{}{}
	}
	return b
}

func (b *fakeBackend) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.scanErr != nil {
		return redis.NewScanCmdResult(nil, 0, b.scanErr)
	}
	var matched []string
	for k := range b.keys {
		if ok, _ := path.Match(match, k); ok {
			matched = append(matched, k)
		}
	}
	return redis.NewScanCmdResult(matched, 0, nil)
}

func (b *fakeBackend) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.delErr != nil {
		return redis.NewIntResult(0, b.delErr)
	}
	for _, k := range keys {
		delete(b.keys, k)
		b.deleted = append(b.deleted, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (b *fakeBackend) deletedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.deleted)
}

func TestInvalidateRemovesMatchingKeys(t *testing.T) {
	backend := newFakeBackend(
		"dashboard:stats",
		"dashboard:recent_orders:1",
		"dashboard:revenue:2025-08",
		"orders:user:7",
		"unrelated:key",
	)
	inv := NewInvalidator(backend, 8)

	inv.Invalidate(context.Background(), DashboardScope())

	assert.ElementsMatch(t, []string{
		"dashboard:stats",
		"dashboard:recent_orders:1",
		"dashboard:revenue:2025-08",
	}, backend.deleted)
	_, stillThere := backend.keys["unrelated:key"]
	assert.True(t, stillThere)
}

func TestInvalidateUserScope(t *testing.T) {
	backend := newFakeBackend("orders:user:7", "orders:user:70", "orders:user:8")
	inv := NewInvalidator(backend, 8)

	inv.Invalidate(context.Background(), UserOrdersScope(7))

	assert.Contains(t, backend.deleted, "orders:user:7")
	assert.Contains(t, backend.deleted, "orders:user:70") // prefix pattern, same as the redis glob
	assert.NotContains(t, backend.deleted, "orders:user:8")
}

func TestInvalidateSwallowsBackendOutage(t *testing.T) {
	backend := newFakeBackend("dashboard:stats")
	backend.scanErr = errors.New("connection refused")
	inv := NewInvalidator(backend, 8)

	// Must not panic or propagate: staleness beats failing a transition.
	inv.Invalidate(context.Background(), DashboardScope())
	assert.Empty(t, backend.deleted)

	backend.scanErr = nil
	backend.delErr = errors.New("connection refused")
	inv.Invalidate(context.Background(), DashboardScope())
	assert.Empty(t, backend.deleted)
}

func TestEnqueueNeverBlocks(t *testing.T) {
	inv := NewInvalidator(newFakeBackend(), 1)

	done := make(chan struct{})
	go func() {
		// No worker is draining; the second enqueue must drop, not block.
		inv.Enqueue(DashboardScope())
		inv.Enqueue(DashboardScope())
		inv.Enqueue(UserOrdersScope(7))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}

func TestWorkerDrainsQueue(t *testing.T) {
	backend := newFakeBackend("dashboard:stats")
	inv := NewInvalidator(backend, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inv.Start(ctx)

	inv.Enqueue(DashboardScope())

	require.Eventually(t, func() bool {
		return backend.deletedCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestScopePatterns(t *testing.T) {
	assert.Equal(t, []string{
		"dashboard:stats",
		"dashboard:recent_orders:*",
		"dashboard:revenue:*",
	}, DashboardScope().Patterns)
	assert.Equal(t, []string{"orders:user:7*"}, UserOrdersScope(7).Patterns)
}
