package techu

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/techu/techu/internal/metrics"
	"github.com/techu/techu/pkg/constants"
	"github.com/techu/techu/pkg/engine"
	"github.com/techu/techu/pkg/logger"
	"github.com/techu/techu/pkg/metadata"
	"github.com/techu/techu/pkg/models"
	"github.com/techu/techu/pkg/retry"
	"github.com/techu/techu/pkg/store"
)

var (
	ErrNoEngine = errors.New("search engine not set")
	ErrNoCache  = errors.New("cache store not set")
	ErrNoQueue  = errors.New("queue store not set")
)

// Params are the collaborators of a Proxy. Engine, Cache, Queue and
// Resolver are required; the rest have working defaults.
type Params struct {
	Config Config

	Engine   engine.Engine
	Cache    store.CacheStore
	Queue    store.QueueStore
	Resolver metadata.Resolver

	// Logger defaults to logger.Nop.
	Logger logger.Logger

	// Retryer defaults to Config.Retryer().
	Retryer retry.Retryer

	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// Proxy is the write coordinator and the read coordinator of one process.
// It holds no shared mutable state of its own besides the in-process
// miss collapsing; everything replicas must agree on lives in the stores.
type Proxy struct {
	cfg      Config
	engine   engine.Engine
	cache    store.CacheStore
	queue    store.QueueStore
	resolver metadata.Resolver
	logger   logger.Logger
	retryer  retry.Retryer
	metrics  *metrics.Metrics

	flight singleflight.Group
}

// New validates p and builds a Proxy.
func New(p Params) (*Proxy, error) {
	switch {
	case p.Engine == nil:
		return nil, ErrNoEngine
	case p.Cache == nil:
		return nil, ErrNoCache
	case p.Queue == nil:
		return nil, ErrNoQueue
	case p.Resolver == nil:
		return nil, constants.ErrNoResolver
	}
	if err := p.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	proxy := &Proxy{
		cfg:      p.Config,
		engine:   p.Engine,
		cache:    p.Cache,
		queue:    p.Queue,
		resolver: p.Resolver,
		logger:   p.Logger,
		retryer:  p.Retryer,
		metrics:  p.Metrics,
	}
	if proxy.logger == nil {
		proxy.logger = logger.Nop{}
	}
	if proxy.retryer == nil {
		proxy.retryer = p.Config.Retryer()
	}
	return proxy, nil
}

// Config returns the configuration the proxy was built with.
func (p *Proxy) Config() Config {
	return p.cfg
}

func (p *Proxy) resolve(ctx context.Context, indexID int64) (models.IndexRef, error) {
	if indexID <= 0 {
		return models.IndexRef{}, badRequest(models.ErrNoIndex)
	}
	ctx, cancel := p.backendContext(ctx)
	defer cancel()
	return p.resolver.Resolve(ctx, indexID)
}

// backendContext bounds a single engine or store call.
func (p *Proxy) backendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.cfg.BackendTimeout.Std())
}

// badRequest turns a request validation failure into a QueryBuildError.
func badRequest(err error) error {
	var qbe *constants.QueryBuildError
	if errors.As(err, &qbe) {
		return err
	}
	return &constants.QueryBuildError{Reason: err.Error()}
}
