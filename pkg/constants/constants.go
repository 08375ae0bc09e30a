package constants

import (
	"fmt"
	"time"
)

// Key prefixes shared with the queue applier and with every proxy replica.
const (
	QueueKeyPrefix    = "queue"
	CacheKeyPrefix    = "cache"
	LockKeyPrefix     = "lock"
	VersionKeyPrefix  = "version"
	QueueCounterKey   = "techu:counter"
	SearchNamespace   = "search"
	ExcerptsNamespace = "excerpts"
)

// Defaults used when a configuration value is left unset.
const (
	DefaultMaxRetries       = 3
	DefaultLockTTL          = 10 * time.Second
	DefaultLockWaitTimeout  = 10 * time.Second
	DefaultLockPollInterval = 25 * time.Millisecond
	DefaultSearchCacheTTL   = 5 * time.Minute
	DefaultExcerptCacheTTL  = 5 * time.Minute
	DefaultBackendTimeout   = 5 * time.Second
)

// QueueKey returns the list key holding entry keys for an index, oldest first.
func QueueKey(indexID int64) string {
	return fmt.Sprintf("%s:%d", QueueKeyPrefix, indexID)
}

// EntryKey formats {kind}:{index_id}:{submit_time_us}:{counter}.
func EntryKey(kind string, indexID int64, submitted time.Time, counter int64) string {
	return fmt.Sprintf("%s:%d:%d:%d", kind, indexID, submitted.UnixMicro(), counter)
}

// CacheKey formats cache:{namespace}:{query_hash}:{index_id}:{version}.
func CacheKey(namespace, queryHash string, indexID, version int64) string {
	return fmt.Sprintf("%s:%s:%s:%d:%d", CacheKeyPrefix, namespace, queryHash, indexID, version)
}

// LockKey formats the recompute lock of a cache key: lock:{cache_key}. The
// lock is qualified by the same version as the entry it guards, so a version
// bump never leaves readers waiting on a lock for an unreachable key.
func LockKey(cacheKey string) string {
	return LockKeyPrefix + ":" + cacheKey
}

// VersionKey formats version:{index_id}.
func VersionKey(indexID int64) string {
	return fmt.Sprintf("%s:%d", VersionKeyPrefix, indexID)
}
