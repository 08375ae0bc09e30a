package techu_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/techu/techu/pkg/constants"
	"github.com/techu/techu/pkg/models"
	"github.com/techu/techu/pkg/store"
)

var errStoreDown = errors.New("store down")

func storeDown(op string) error {
	return &constants.BackendUnavailableError{Backend: "redis", Err: fmt.Errorf("%s: %w", op, errStoreDown)}
}

// flakyQueue fails the next n enqueues, or every enqueue when n < 0.
type flakyQueue struct {
	store.QueueStore

	mu       sync.Mutex
	n        int
	attempts int
}

func (q *flakyQueue) Enqueue(ctx context.Context, indexID int64, kind models.StatementKind, payload []byte) (string, error) {
	q.mu.Lock()
	q.attempts++
	fail := q.n != 0
	if q.n > 0 {
		q.n--
	}
	q.mu.Unlock()
	if fail {
		return "", storeDown("enqueue")
	}
	return q.QueueStore.Enqueue(ctx, indexID, kind, payload)
}

func (q *flakyQueue) Attempts() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.attempts
}

// brokenCache fails the operations named in its flags.
type brokenCache struct {
	store.CacheStore

	version bool
	bump    bool
	set     bool
}

func (c *brokenCache) Version(ctx context.Context, indexID int64) (int64, error) {
	if c.version {
		return 0, storeDown("version")
	}
	return c.CacheStore.Version(ctx, indexID)
}

func (c *brokenCache) Bump(ctx context.Context, indexID int64) (int64, error) {
	if c.bump {
		return 0, storeDown("bump")
	}
	return c.CacheStore.Bump(ctx, indexID)
}

func (c *brokenCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.set {
		return storeDown("set")
	}
	return c.CacheStore.Set(ctx, key, value, ttl)
}
