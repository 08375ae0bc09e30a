// Package store holds the two key/value collaborators of the proxy: the
// cache store (cached results, recompute locks and per-index version
// counters) and the queue store (durable per-index FIFO of mutations).
//
// Both are normally the same Redis deployment. Memory implements both
// interfaces in-process for tests and single node development.
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/techu/techu/pkg/constants"
	"github.com/techu/techu/pkg/models"
)

// CacheStore is the Cache Store Client.
type CacheStore interface {
	// Get returns the value stored at key. A missing or expired key is
	// reported as found == false with a nil error.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value at key for ttl. A ttl <= 0 stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Version returns the current version of an index. An index that was
	// never bumped is at version 0.
	Version(ctx context.Context, indexID int64) (int64, error)

	// Bump atomically increments the version of an index and returns the
	// new value.
	Bump(ctx context.Context, indexID int64) (int64, error)

	// TryLock atomically creates key with the given ttl if it does not
	// exist. It reports whether this caller created it. There is no unlock;
	// the key lives until it expires.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// QueueStore is the Queue Store Client.
type QueueStore interface {
	// Enqueue appends a statement payload to the queue of indexID and
	// returns the entry key it was stored under.
	Enqueue(ctx context.Context, indexID int64, kind models.StatementKind, payload []byte) (string, error)

	// Entry looks up a queued entry by its entry key.
	Entry(ctx context.Context, entryKey string) (*models.QueueEntry, error)

	// Pending lists the entry keys queued for indexID, oldest first.
	Pending(ctx context.Context, indexID int64) ([]string, error)
}

// Store is both a CacheStore and a QueueStore.
type Store interface {
	CacheStore
	QueueStore
}

// queueKeyOf derives the queue key from an entry key.
func queueKeyOf(entryKey string) (string, error) {
	parts := strings.Split(entryKey, ":")
	if len(parts) != 4 {
		return "", fmt.Errorf("malformed entry key %q", entryKey)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("malformed entry key %q: %w", entryKey, err)
	}
	return constants.QueueKey(id), nil
}

func unavailable(backend string, indexID int64, op string, err error) error {
	index := ""
	if indexID != 0 {
		index = strconv.FormatInt(indexID, 10)
	}
	return &constants.BackendUnavailableError{
		Backend: backend,
		Index:   index,
		Err:     fmt.Errorf("%s: %w", op, err),
	}
}
