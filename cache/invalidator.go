package cache

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// Scope is a logical group of cached aggregates made stale by a state
// transition. It resolves to the key-match patterns to sweep.
type Scope struct {
	Name     string
	Patterns []string
}

// DashboardScope covers the admin dashboard aggregates recomputed from orders
// and payments.
func DashboardScope() Scope {
	return Scope{
		Name: "dashboard",
		Patterns: []string{
			"dashboard:stats",
			"dashboard:recent_orders:*",
			"dashboard:revenue:*",
		},
	}
}

// UserOrdersScope covers one user's cached order list views.
func UserOrdersScope(userID uint) Scope {
	return Scope{
		Name:     fmt.Sprintf("orders:user:%d", userID),
		Patterns: []string{fmt.Sprintf("orders:user:%d*", userID)},
	}
}

// Backend is the slice of the cache API the invalidator needs. *redis.Client
// satisfies it.
type Backend interface {
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Invalidator removes stale cache entries after ledger transitions commit.
// Scopes are queued on a bounded channel and drained by a single worker, so
// the money-moving path never blocks on the cache and drops are observable in
// the logs instead of vanishing. Cached entries carry TTLs, so a lost
// invalidation only widens the staleness window; it never breaks correctness.
type Invalidator struct {
	backend Backend
	queue   chan Scope
}

func NewInvalidator(backend Backend, queueSize int) *Invalidator {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Invalidator{
		backend: backend,
		queue:   make(chan Scope, queueSize),
	}
}

// Enqueue schedules invalidation of a scope. Never blocks: when the queue is
// full the scope is dropped and logged, TTL expiry converges the cache later.
func (inv *Invalidator) Enqueue(scope Scope) {
	select {
	case inv.queue <- scope:
	default:
		log.Printf("invalidation queue full, dropping scope %s", scope.Name)
	}
}

// Start runs the worker until ctx is cancelled.
func (inv *Invalidator) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case scope := <-inv.queue:
				inv.Invalidate(ctx, scope)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Invalidate removes every key matching the scope's patterns. Failures are
// logged and swallowed: staleness is preferable to failing a payment
// transition over a cache outage.
func (inv *Invalidator) Invalidate(ctx context.Context, scope Scope) {
	for _, pattern := range scope.Patterns {
		var cursor uint64
		for {
			keys, next, err := inv.backend.Scan(ctx, cursor, pattern, 100).Result()
			if err != nil {
				log.Printf("cache scan failed for pattern %s: %v", pattern, err)
				break
			}
			if len(keys) > 0 {
				if err := inv.backend.Del(ctx, keys...).Err(); err != nil {
					log.Printf("cache delete failed for pattern %s: %v", pattern, err)
					break
				}
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}
}
