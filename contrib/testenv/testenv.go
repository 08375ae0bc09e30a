// Package testenv provides utilities for testing the techu proxy.
//
// It wires a Proxy to in-process collaborators (a memory store, a fake
// search engine and a static index resolver) and, when the environment
// points at them, to a real Redis and a real Sphinx or Manticore searchd.
package testenv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/techu/techu"
	"github.com/techu/techu/internal/fakeengine"
	"github.com/techu/techu/internal/metrics"
	"github.com/techu/techu/pkg/engine"
	"github.com/techu/techu/pkg/logger"
	"github.com/techu/techu/pkg/metadata"
	"github.com/techu/techu/pkg/retry"
	"github.com/techu/techu/pkg/store"
)

const (
	// EnvRedisURL is the environment variable that points integration
	// tests at a Redis server, e.g. redis://localhost:6379/15.
	EnvRedisURL = "TECHU_REDIS_URL"

	// EnvSphinxDSN is the environment variable that points integration
	// tests at a searchd MySQL listener, e.g. tcp(localhost:9306)/.
	EnvSphinxDSN = "TECHU_SPHINX_DSN"
)

// ErrNotConfigured is returned by the integration constructors when their
// environment variable is unset. Tests skip on it.
var ErrNotConfigured = errors.New("testenv: integration target not configured")

// ProductsIndexID is the id of the index every Env knows about.
const ProductsIndexID int64 = 1

// DefaultIndexes is the index catalogue of a new Env.
func DefaultIndexes() map[int64]string {
	return map[int64]string{ProductsIndexID: "products"}
}

// Config returns a configuration with timeouts short enough for tests.
func Config() techu.Config {
	cfg := techu.DefaultConfig()
	cfg.LockTTL = techu.Duration(2 * time.Second)
	cfg.LockWaitTimeout = techu.Duration(time.Second)
	cfg.LockPollInterval = techu.Duration(5 * time.Millisecond)
	cfg.BackendTimeout = techu.Duration(time.Second)
	cfg.Indexes = DefaultIndexes()
	return cfg
}

// Env is a Proxy together with handles on its collaborators.
type Env struct {
	Proxy    *techu.Proxy
	Store    store.Store
	Engine   *fakeengine.Engine
	Resolver *metadata.Static
	Metrics  *metrics.Metrics
}

type options struct {
	configure []func(*techu.Config)
	store     store.Store
	cache     store.CacheStore
	queue     store.QueueStore
	logger    logger.Logger
	retryer   retry.Retryer
	metrics   *metrics.Metrics
}

// Option customizes New.
type Option func(*options)

// WithConfig edits the configuration before the Proxy is built.
func WithConfig(f func(*techu.Config)) Option {
	return func(o *options) {
		o.configure = append(o.configure, f)
	}
}

// WithStore shares a store between several Envs, which is how tests model
// several proxy replicas.
func WithStore(s store.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithCache puts c in front of the Proxy instead of the Env store, for
// tests that inject cache failures.
func WithCache(c store.CacheStore) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithQueue is WithCache for the queue store.
func WithQueue(q store.QueueStore) Option {
	return func(o *options) {
		o.queue = q
	}
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func WithRetryer(r retry.Retryer) Option {
	return func(o *options) {
		o.retryer = r
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// New builds an Env on a fresh memory store and fake engine.
func New(opts ...Option) (*Env, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := Config()
	for _, f := range o.configure {
		f(&cfg)
	}

	s := o.store
	if s == nil {
		s = store.NewMemory()
	}

	env := &Env{
		Store:    s,
		Engine:   fakeengine.New(),
		Resolver: metadata.NewStatic(cfg.Indexes),
		Metrics:  o.metrics,
	}

	var (
		cache store.CacheStore = s
		queue store.QueueStore = s
	)
	if o.cache != nil {
		cache = o.cache
	}
	if o.queue != nil {
		queue = o.queue
	}

	proxy, err := techu.New(techu.Params{
		Config:   cfg,
		Engine:   env.Engine,
		Cache:    cache,
		Queue:    queue,
		Resolver: env.Resolver,
		Logger:   o.logger,
		Retryer:  o.retryer,
		Metrics:  o.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}
	env.Proxy = proxy
	return env, nil
}

func MustNew(opts ...Option) *Env {
	env, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("Failed to create test environment: %v", err))
	}
	return env
}

// NewRedisStore connects to the Redis named by EnvRedisURL and flushes
// the selected database.
func NewRedisStore(ctx context.Context) (*store.Redis, error) {
	url := os.Getenv(EnvRedisURL)
	if url == "" {
		return nil, ErrNotConfigured
	}
	s, err := store.DialRedis(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	if err := s.FlushDB(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to flush Redis: %w", err)
	}
	return s, nil
}

// NewSphinxEngine opens the searchd listener named by EnvSphinxDSN.
func NewSphinxEngine(ctx context.Context) (*engine.SQL, error) {
	dsn := os.Getenv(EnvSphinxDSN)
	if dsn == "" {
		return nil, ErrNotConfigured
	}
	e := engine.NewSQL(dsn)
	if err := e.Ping(ctx, ""); err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("failed to reach searchd: %w", err)
	}
	return e, nil
}
