package constants

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorsMatchSentinels(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name     string
		err      error
		sentinel error
		message  string
	}{
		{
			name:     "query build",
			err:      BuildErrorf("limit", "count must be positive, got %d", 0),
			sentinel: ErrQueryBuild,
			message:  "query build failed: limit: count must be positive, got 0",
		},
		{
			name:     "backend unavailable",
			err:      &BackendUnavailableError{Backend: "searchd", Index: "products", Err: cause},
			sentinel: ErrBackendUnavailable,
			message:  `backend unavailable: searchd (index "products"): connection refused`,
		},
		{
			name:     "max retries",
			err:      &MaxRetriesExceededError{Index: "products", Attempts: 4, Last: cause},
			sentinel: ErrMaxRetries,
			message:  `maximum retries exceeded: index "products" after 4 attempts: connection refused`,
		},
		{
			name:     "lock timeout",
			err:      &LockTimeoutError{Key: "lock:abc", Waited: 2 * time.Second},
			sentinel: ErrLockTimeout,
			message:  "cache lock wait timeout exceeded: lock:abc after 2s",
		},
		{
			name:     "not found",
			err:      &NotFoundError{Kind: "index", ID: int64(42)},
			sentinel: ErrNotFound,
			message:  "index 42: not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("request failed: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.Equal(t, tt.message, tt.err.Error())
		})
	}
}

func TestRetryErrorsUnwrapToCause(t *testing.T) {
	cause := errors.New("i/o timeout")
	err := &MaxRetriesExceededError{
		Index:    "products",
		Attempts: 2,
		Last:     &BackendUnavailableError{Backend: "redis", Index: "products", Err: cause},
	}

	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, err, cause)
}

func TestKeyFormats(t *testing.T) {
	submitted := time.UnixMicro(1700000000123456)

	assert.Equal(t, "queue:7", QueueKey(7))
	assert.Equal(t, "insert:7:1700000000123456:12", EntryKey("insert", 7, submitted, 12))
	assert.Equal(t, "cache:search:deadbeef:7:3", CacheKey(SearchNamespace, "deadbeef", 7, 3))
	assert.Equal(t, "cache:excerpts:deadbeef:7:0", CacheKey(ExcerptsNamespace, "deadbeef", 7, 0))
	assert.Equal(t, "lock:cache:search:deadbeef:7:3", LockKey(CacheKey(SearchNamespace, "deadbeef", 7, 3)))
	assert.Equal(t, "version:7", VersionKey(7))
}
