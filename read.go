package techu

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/techu/techu/pkg/constants"
	"github.com/techu/techu/pkg/models"
	"github.com/techu/techu/pkg/sphinxql"
)

// computeFunc produces the encoded value of a cache entry.
type computeFunc func(ctx context.Context) ([]byte, error)

// lookup identifies one read-through request.
type lookup struct {
	reqID string
	ns    string
	ref   models.IndexRef
	hash  string
	ttl   time.Duration
}

type cached struct {
	value []byte
	hit   bool
	key   string
}

// Search runs a structured search against the index, serving it from the
// cache when an entry for the current index version exists.
func (p *Proxy) Search(ctx context.Context, indexID int64, req models.SearchRequest) (*models.SearchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, badRequest(err)
	}
	ref, err := p.resolve(ctx, indexID)
	if err != nil {
		return nil, err
	}
	stmt, err := sphinxql.CompileSearch(ref.Name, req)
	if err != nil {
		return nil, err
	}

	compute := func(ctx context.Context) ([]byte, error) {
		ctx, cancel := p.backendContext(ctx)
		defer cancel()
		result, err := p.engine.Query(ctx, ref.Name, stmt)
		if err != nil {
			return nil, err
		}
		return models.Marshal(result)
	}

	l := lookup{
		reqID: uuid.NewString(),
		ns:    constants.SearchNamespace,
		ref:   ref,
		ttl:   p.cfg.SearchCacheTTL.Std(),
	}

	var c cached
	if p.cfg.SearchCacheEnabled {
		if l.hash, err = queryHash(ref.Name, req); err != nil {
			return nil, err
		}
		c, err = p.readThrough(ctx, l, compute)
	} else {
		c.value, err = compute(ctx)
	}
	if err != nil {
		return nil, err
	}

	var result models.SearchResult
	if err := models.Unmarshal(c.value, &result); err != nil {
		return nil, fmt.Errorf("decoding search result %s: %w", c.key, err)
	}
	return &models.SearchResponse{SearchResult: result, Cached: c.hit, CacheKey: c.key}, nil
}

// Excerpts builds highlighted snippets of the request documents using the
// index tokenizer settings. The result maps every caller document id to its
// excerpt.
func (p *Proxy) Excerpts(ctx context.Context, indexID int64, req models.ExcerptRequest) (*models.ExcerptResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, badRequest(err)
	}
	ref, err := p.resolve(ctx, indexID)
	if err != nil {
		return nil, err
	}
	stmt, ids, err := sphinxql.CompileSnippets(ref.Name, req)
	if err != nil {
		return nil, err
	}

	compute := func(ctx context.Context) ([]byte, error) {
		ctx, cancel := p.backendContext(ctx)
		defer cancel()
		snippets, err := p.engine.Snippets(ctx, ref.Name, stmt)
		if err != nil {
			return nil, err
		}
		if len(snippets) != len(ids) {
			return nil, &constants.BackendUnavailableError{
				Backend: "sphinx",
				Index:   ref.Name,
				Err:     fmt.Errorf("got %d excerpts for %d documents", len(snippets), len(ids)),
			}
		}
		excerpts := make(map[string]string, len(ids))
		for i, id := range ids {
			excerpts[id] = snippets[i]
		}
		return models.Marshal(excerpts)
	}

	ttl := p.cfg.ExcerptCacheTTL.Std()
	if req.TTL > 0 {
		ttl = req.TTL
	}
	l := lookup{
		reqID: uuid.NewString(),
		ns:    constants.ExcerptsNamespace,
		ref:   ref,
		ttl:   ttl,
	}

	var c cached
	if p.cfg.ExcerptCacheEnabled {
		if l.hash, err = queryHash(ref.Name, req); err != nil {
			return nil, err
		}
		c, err = p.readThrough(ctx, l, compute)
	} else {
		c.value, err = compute(ctx)
	}
	if err != nil {
		return nil, err
	}

	var excerpts map[string]string
	if err := models.Unmarshal(c.value, &excerpts); err != nil {
		return nil, fmt.Errorf("decoding excerpts %s: %w", c.key, err)
	}
	return &models.ExcerptResponse{Excerpts: excerpts, Cached: c.hit, CacheKey: c.key}, nil
}

// queryHash identifies a request independently of field order in the
// original body: the canonical CBOR encoding sorts map keys.
func queryHash(index string, req any) (string, error) {
	encoded, err := models.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("hashing request: %w", err)
	}
	d := xxhash.New()
	_, _ = d.WriteString(index)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(encoded)
	return fmt.Sprintf("%016x", d.Sum64()), nil
}

// readThrough returns the entry for the current index version, computing
// and storing it on a miss. Identical misses in this process share one
// fill; across processes the recompute lock decides who computes. The
// shared fill is detached from the caller that started it, so one caller
// going away never fails the others waiting on the same key.
func (p *Proxy) readThrough(ctx context.Context, l lookup, compute computeFunc) (cached, error) {
	version, err := p.version(ctx, l.ref.ID)
	if err != nil {
		return p.degraded(ctx, l, compute, err)
	}
	key := constants.CacheKey(l.ns, l.hash, l.ref.ID, version)

	value, found, err := p.get(ctx, key)
	if err != nil {
		return p.degraded(ctx, l, compute, err)
	}
	p.metrics.CacheLookup(l.ns, found)
	if found {
		return cached{value: value, hit: true, key: key}, nil
	}

	ch := p.flight.DoChan(key, func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.fillTimeout())
		defer cancel()
		return p.fill(fillCtx, l, key, compute)
	})
	select {
	case <-ctx.Done():
		return cached{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return cached{}, res.Err
		}
		c := res.Val.(cached)
		if res.Shared && !c.hit {
			p.logger.Debug("cache miss collapsed", "request_id", l.reqID, "key", key)
		}
		return c, nil
	}
}

// fill takes the recompute lock of key or waits for its holder to populate
// the entry. The lock is never released explicitly; it expires after
// lock_ttl.
func (p *Proxy) fill(ctx context.Context, l lookup, key string, compute computeFunc) (cached, error) {
	lockKey := constants.LockKey(key)
	start := time.Now()

	limiter := rate.NewLimiter(rate.Every(p.cfg.LockPollInterval.Std()), 1)
	limiter.Allow()

	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.LockWaitTimeout.Std())
	defer cancel()

	waited := false
	for {
		acquired, err := p.tryLock(ctx, lockKey)
		if err != nil {
			return p.degraded(ctx, l, compute, err)
		}
		if acquired {
			if waited {
				p.metrics.LockWait(l.ns, "acquired", time.Since(start))
				// The previous holder may have stored the entry between
				// our last poll and its lock expiring.
				if value, found, err := p.get(ctx, key); err == nil && found {
					return cached{value: value, hit: true, key: key}, nil
				}
			}
			return p.compute(ctx, l, key, compute)
		}

		waited = true
		if err := limiter.Wait(waitCtx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return cached{}, ctxErr
			}
			elapsed := time.Since(start)
			p.metrics.LockWait(l.ns, "timeout", elapsed)
			p.logger.Warn("cache lock wait timed out",
				"request_id", l.reqID,
				"index", l.ref.Name,
				"lock", lockKey,
				"waited", elapsed,
			)
			return cached{}, &constants.LockTimeoutError{Key: lockKey, Waited: elapsed}
		}

		value, found, err := p.get(ctx, key)
		if err != nil {
			return p.degraded(ctx, l, compute, err)
		}
		if found {
			p.metrics.LockWait(l.ns, "cached", time.Since(start))
			return cached{value: value, hit: true, key: key}, nil
		}
	}
}

// compute runs the statement while holding the lock and stores the result.
// A failed store is logged; the caller still gets the computed value.
func (p *Proxy) compute(ctx context.Context, l lookup, key string, compute computeFunc) (cached, error) {
	value, err := compute(ctx)
	if err != nil {
		return cached{}, err
	}
	p.metrics.Compute(l.ns)

	setCtx, cancel := p.backendContext(ctx)
	defer cancel()
	if err := p.cache.Set(setCtx, key, value, l.ttl); err != nil {
		p.metrics.CacheError(l.ns)
		p.logger.Warn("storing cache entry failed",
			"request_id", l.reqID,
			"index", l.ref.Name,
			"key", key,
			"error", err,
		)
	}
	return cached{value: value, key: key}, nil
}

// degraded serves a read straight from the engine when the cache store is
// unreachable.
func (p *Proxy) degraded(ctx context.Context, l lookup, compute computeFunc, cause error) (cached, error) {
	if err := ctx.Err(); err != nil {
		return cached{}, err
	}
	p.metrics.CacheError(l.ns)
	p.logger.Warn("cache store unavailable, reading from the engine",
		"request_id", l.reqID,
		"index", l.ref.Name,
		"namespace", l.ns,
		"error", cause,
	)
	value, err := compute(ctx)
	if err != nil {
		return cached{}, err
	}
	return cached{value: value}, nil
}

// fillTimeout bounds a detached fill: the lock wait, then one engine call
// and one cache write.
func (p *Proxy) fillTimeout() time.Duration {
	return p.cfg.LockWaitTimeout.Std() + 2*p.cfg.BackendTimeout.Std()
}

func (p *Proxy) version(ctx context.Context, indexID int64) (int64, error) {
	ctx, cancel := p.backendContext(ctx)
	defer cancel()
	return p.cache.Version(ctx, indexID)
}

func (p *Proxy) get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := p.backendContext(ctx)
	defer cancel()
	return p.cache.Get(ctx, key)
}

func (p *Proxy) tryLock(ctx context.Context, key string) (bool, error) {
	ctx, cancel := p.backendContext(ctx)
	defer cancel()
	return p.cache.TryLock(ctx, key, p.cfg.LockTTL.Std())
}

// IndexVersion returns the current cache version of an index.
func (p *Proxy) IndexVersion(ctx context.Context, indexID int64) (int64, error) {
	ref, err := p.resolve(ctx, indexID)
	if err != nil {
		return 0, err
	}
	v, err := p.version(ctx, ref.ID)
	if err != nil {
		return 0, fmt.Errorf("index %d: %w", ref.ID, err)
	}
	return v, nil
}
