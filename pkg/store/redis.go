package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/techu/techu/pkg/constants"
	"github.com/techu/techu/pkg/models"
)

const backendRedis = "redis"

// Redis implements Store on a Redis server.
type Redis struct {
	client redis.UniversalClient
	now    func() time.Time
}

var _ Store = (*Redis)(nil)

// NewRedis wraps an existing client. The caller keeps ownership of it.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client, now: time.Now}
}

// DialRedis connects using a redis:// or rediss:// URL.
func DialRedis(ctx context.Context, url string) (*Redis, error) {
	if url == "" {
		return nil, constants.ErrNoRedisURL
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable(backendRedis, 0, "ping", err)
	}
	return NewRedis(client), nil
}

// Ping checks that the server answers.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return unavailable(backendRedis, 0, "ping", err)
	}
	return nil
}

// FlushDB removes every key of the selected database. Only tests call it.
func (r *Redis) FlushDB(ctx context.Context) error {
	return r.client.FlushDB(ctx).Err()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable(backendRedis, 0, "get "+key, err)
	}
	return b, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable(backendRedis, 0, "set "+key, err)
	}
	return nil
}

func (r *Redis) Version(ctx context.Context, indexID int64) (int64, error) {
	v, err := r.client.Get(ctx, constants.VersionKey(indexID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable(backendRedis, indexID, "version", err)
	}
	return v, nil
}

func (r *Redis) Bump(ctx context.Context, indexID int64) (int64, error) {
	v, err := r.client.Incr(ctx, constants.VersionKey(indexID)).Result()
	if err != nil {
		return 0, unavailable(backendRedis, indexID, "bump", err)
	}
	return v, nil
}

func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, unavailable(backendRedis, 0, "lock "+key, err)
	}
	return ok, nil
}

// Enqueue stores the payload at a fresh entry key and appends that key to
// the index queue in one MULTI/EXEC, so the applier never sees a key
// without its payload.
func (r *Redis) Enqueue(ctx context.Context, indexID int64, kind models.StatementKind, payload []byte) (string, error) {
	counter, err := r.client.Incr(ctx, constants.QueueCounterKey).Result()
	if err != nil {
		return "", unavailable(backendRedis, indexID, "queue counter", err)
	}
	entryKey := constants.EntryKey(string(kind), indexID, r.now(), counter)

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, entryKey, payload, 0)
		pipe.RPush(ctx, constants.QueueKey(indexID), entryKey)
		return nil
	})
	if err != nil {
		return "", unavailable(backendRedis, indexID, "enqueue", err)
	}
	return entryKey, nil
}

func (r *Redis) Entry(ctx context.Context, entryKey string) (*models.QueueEntry, error) {
	queueKey, err := queueKeyOf(entryKey)
	if err != nil {
		return nil, err
	}
	b, err := r.client.Get(ctx, entryKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, &constants.NotFoundError{Kind: "queue entry", ID: entryKey}
	}
	if err != nil {
		return nil, unavailable(backendRedis, 0, "entry "+entryKey, err)
	}
	return &models.QueueEntry{QueueKey: queueKey, EntryKey: entryKey, Payload: b}, nil
}

func (r *Redis) Pending(ctx context.Context, indexID int64) ([]string, error) {
	keys, err := r.client.LRange(ctx, constants.QueueKey(indexID), 0, -1).Result()
	if err != nil {
		return nil, unavailable(backendRedis, indexID, "pending", err)
	}
	return keys, nil
}
