package store

import (
	"context"
	"sync"
	"time"

	"github.com/techu/techu/pkg/constants"
	"github.com/techu/techu/pkg/models"
)

type item struct {
	value     []byte
	expiresAt time.Time
}

func (it item) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && !now.Before(it.expiresAt)
}

// Memory is a concurrent in-process Store. Every operation holds a single
// mutex, which makes Bump, TryLock and Enqueue atomic for all callers that
// share the value.
type Memory struct {
	mu       sync.Mutex
	data     map[string]item
	versions map[int64]int64
	queues   map[string][]string
	counter  int64
	now      func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		data:     make(map[string]item),
		versions: make(map[int64]int64),
		queues:   make(map[string][]string),
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

func (m *Memory) getLocked(key string) (item, bool) {
	it, ok := m.data[key]
	if !ok {
		return item{}, false
	}
	if it.expired(m.now()) {
		delete(m.data, key)
		return item{}, false
	}
	return it, true
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.getLocked(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), it.value...), true, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = m.newItem(value, ttl)
	return nil
}

func (m *Memory) newItem(value []byte, ttl time.Duration) item {
	it := item{value: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expiresAt = m.now().Add(ttl)
	}
	return it
}

func (m *Memory) Version(ctx context.Context, indexID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[indexID], nil
}

func (m *Memory) Bump(ctx context.Context, indexID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[indexID]++
	return m.versions[indexID], nil
}

func (m *Memory) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.getLocked(key); held {
		return false, nil
	}
	m.data[key] = m.newItem([]byte("1"), ttl)
	return true, nil
}

func (m *Memory) Enqueue(ctx context.Context, indexID int64, kind models.StatementKind, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	entryKey := constants.EntryKey(string(kind), indexID, m.now(), m.counter)
	queueKey := constants.QueueKey(indexID)
	m.data[entryKey] = m.newItem(payload, 0)
	m.queues[queueKey] = append(m.queues[queueKey], entryKey)
	return entryKey, nil
}

func (m *Memory) Entry(ctx context.Context, entryKey string) (*models.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	queueKey, err := queueKeyOf(entryKey)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.getLocked(entryKey)
	if !ok {
		return nil, &constants.NotFoundError{Kind: "queue entry", ID: entryKey}
	}
	return &models.QueueEntry{
		QueueKey: queueKey,
		EntryKey: entryKey,
		Payload:  append([]byte(nil), it.value...),
	}, nil
}

func (m *Memory) Pending(ctx context.Context, indexID int64) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queues[constants.QueueKey(indexID)]...), nil
}

// HardDeleteExpired drops every expired key.
func (m *Memory) HardDeleteExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, v := range m.data {
		if v.expired(now) {
			delete(m.data, k)
			n++
		}
	}
	return n
}
