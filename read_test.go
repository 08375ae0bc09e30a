package techu_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techu/techu"
	"github.com/techu/techu/contrib/testenv"
	"github.com/techu/techu/internal/fakeengine"
	"github.com/techu/techu/pkg/models"
	"github.com/techu/techu/pkg/store"
)

func phoneSearch() models.SearchRequest {
	return models.SearchRequest{
		Query:   "phone",
		Filters: map[string][]models.Condition{"price": {{Operator: "<", Value: int64(500)}}},
		Limit:   &models.Limit{Offset: 0, Count: 20},
	}
}

func stubPhones(env *testenv.Env, failures ...fakeengine.FailureConfig) {
	env.Engine.AddStub(fakeengine.StubResponse{
		Matcher: fakeengine.RequestMatcher{Kind: models.KindSearch},
		Result: &models.SearchResult{
			Results: []map[string]any{
				{"id": int64(1), "title": "phone a"},
				{"id": int64(2), "title": "phone b"},
			},
			Meta: map[string]string{"total": "2", "total_found": "2"},
		},
		Failures: failures,
	})
}

func TestProxy_Search_cacheHit(t *testing.T) {
	env := testenv.MustNew()
	stubPhones(env)
	ctx := context.Background()

	first, err := env.Proxy.Search(ctx, testenv.ProductsIndexID, phoneSearch())
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Regexp(t, `^cache:search:[0-9a-f]{16}:1:0$`, first.CacheKey)
	require.Len(t, first.Results, 2)
	assert.Equal(t, "phone a", first.Results[0]["title"])
	assert.Equal(t, "2", first.Meta["total_found"])

	second, err := env.Proxy.Search(ctx, testenv.ProductsIndexID, phoneSearch())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.CacheKey, second.CacheKey)
	assert.Equal(t, first.SearchResult, second.SearchResult)

	assert.Equal(t, 1, env.Engine.CallCount(models.KindSearch))

	calls := env.Engine.Calls()
	assert.Equal(t, "SELECT * FROM products WHERE price < ? AND MATCH(?) LIMIT 0, 20", calls[0].Statement.Template)
	assert.Equal(t, []any{int64(500), "phone"}, calls[0].Statement.Args)
}

func TestProxy_Search_coherentAfterWrite(t *testing.T) {
	env := testenv.MustNew()
	stubPhones(env)
	ctx := context.Background()

	before, err := env.Proxy.Search(ctx, testenv.ProductsIndexID, phoneSearch())
	require.NoError(t, err)

	_, err = env.Proxy.Insert(ctx, insertProduct(false))
	require.NoError(t, err)

	after, err := env.Proxy.Search(ctx, testenv.ProductsIndexID, phoneSearch())
	require.NoError(t, err)
	assert.False(t, after.Cached, "a completed write makes older entries unreachable")
	assert.True(t, strings.HasSuffix(after.CacheKey, ":1:1"), after.CacheKey)
	assert.NotEqual(t, before.CacheKey, after.CacheKey)
	assert.Equal(t, 2, env.Engine.CallCount(models.KindSearch))
}

func TestProxy_Search_queuedWriteKeepsCache(t *testing.T) {
	env := testenv.MustNew()
	stubPhones(env)
	ctx := context.Background()

	_, err := env.Proxy.Search(ctx, testenv.ProductsIndexID, phoneSearch())
	require.NoError(t, err)

	_, err = env.Proxy.Insert(ctx, insertProduct(true))
	require.NoError(t, err)

	again, err := env.Proxy.Search(ctx, testenv.ProductsIndexID, phoneSearch())
	require.NoError(t, err)
	assert.True(t, again.Cached)
}

func TestProxy_Search_distinctRequests(t *testing.T) {
	env := testenv.MustNew()
	ctx := context.Background()

	other := phoneSearch()
	other.Filters["price"][0].Value = int64(600)

	a, err := env.Proxy.Search(ctx, testenv.ProductsIndexID, phoneSearch())
	require.NoError(t, err)
	b, err := env.Proxy.Search(ctx, testenv.ProductsIndexID, other)
	require.NoError(t, err)

	assert.NotEqual(t, a.CacheKey, b.CacheKey)
	assert.False(t, b.Cached)
}

func TestProxy_Search_atMostOneRecompute(t *testing.T) {
	shared := store.NewMemory()
	replicas := []*testenv.Env{
		testenv.MustNew(testenv.WithStore(shared)),
		testenv.MustNew(testenv.WithStore(shared)),
	}
	for _, env := range replicas {
		stubPhones(env, fakeengine.FailureConfig{
			Type:     fakeengine.FailureDelay,
			MinDelay: 100 * time.Millisecond,
		})
	}
	ctx := context.Background()

	const perReplica = 10
	responses := make(chan *models.SearchResponse, 2*perReplica)
	var wg sync.WaitGroup
	for _, env := range replicas {
		for i := 0; i < perReplica; i++ {
			wg.Add(1)
			go func(env *testenv.Env) {
				defer wg.Done()
				res, err := env.Proxy.Search(ctx, testenv.ProductsIndexID, phoneSearch())
				if assert.NoError(t, err) {
					responses <- res
				}
			}(env)
		}
	}
	wg.Wait()
	close(responses)

	computed := 0
	for _, env := range replicas {
		computed += env.Engine.CallCount(models.KindSearch)
	}
	assert.Equal(t, 1, computed)

	var key string
	for res := range responses {
		if key == "" {
			key = res.CacheKey
		}
		assert.Equal(t, key, res.CacheKey)
		assert.Len(t, res.Results, 2)
	}
}

func TestProxy_Search_collapsedMissOutlivesFirstCaller(t *testing.T) {
	env := testenv.MustNew()
	stubPhones(env, fakeengine.FailureConfig{
		Type:     fakeengine.FailureDelay,
		MinDelay: 200 * time.Millisecond,
	})

	first, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	firstErr := make(chan error, 1)
	go func() {
		_, err := env.Proxy.Search(first, testenv.ProductsIndexID, phoneSearch())
		firstErr <- err
	}()
	require.Eventually(t, func() bool {
		return env.Engine.CallCount(models.KindSearch) == 1
	}, time.Second, time.Millisecond)

	res, err := env.Proxy.Search(context.Background(), testenv.ProductsIndexID, phoneSearch())
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)
	assert.ErrorIs(t, <-firstErr, context.DeadlineExceeded)
	assert.Equal(t, 1, env.Engine.CallCount(models.KindSearch))

	res, err = env.Proxy.Search(context.Background(), testenv.ProductsIndexID, phoneSearch())
	require.NoError(t, err)
	assert.True(t, res.Cached)
}

func TestProxy_Search_lockTimeout(t *testing.T) {
	shared := store.NewMemory()
	slow := testenv.MustNew(testenv.WithStore(shared))
	stubPhones(slow, fakeengine.FailureConfig{
		Type:     fakeengine.FailureDelay,
		MinDelay: 500 * time.Millisecond,
	})
	impatient := testenv.MustNew(
		testenv.WithStore(shared),
		testenv.WithConfig(func(c *techu.Config) {
			c.LockWaitTimeout = techu.Duration(50 * time.Millisecond)
		}),
	)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := slow.Proxy.Search(ctx, testenv.ProductsIndexID, phoneSearch())
		done <- err
	}()
	require.Eventually(t, func() bool {
		return slow.Engine.CallCount(models.KindSearch) == 1
	}, time.Second, time.Millisecond)

	_, err := impatient.Proxy.Search(ctx, testenv.ProductsIndexID, phoneSearch())
	require.ErrorIs(t, err, techu.ErrLockTimeout)
	var lockErr *techu.LockTimeoutError
	require.ErrorAs(t, err, &lockErr)
	assert.True(t, strings.HasPrefix(lockErr.Key, "lock:cache:search:"), lockErr.Key)
	assert.Zero(t, impatient.Engine.CallCount(models.KindSearch))

	require.NoError(t, <-done)

	res, err := impatient.Proxy.Search(ctx, testenv.ProductsIndexID, phoneSearch())
	require.NoError(t, err)
	assert.True(t, res.Cached)
}

func TestProxy_Search_failedRecomputeExpires(t *testing.T) {
	env := testenv.MustNew(testenv.WithConfig(func(c *techu.Config) {
		c.LockTTL = techu.Duration(30 * time.Millisecond)
	}))
	stubPhones(env)
	env.Engine.FailNext(1)
	ctx := context.Background()

	_, err := env.Proxy.Search(ctx, testenv.ProductsIndexID, phoneSearch())
	require.ErrorIs(t, err, techu.ErrBackendUnavailable)

	// The lock of the failed recompute is still held; the next reader waits
	// for it to expire and then computes.
	res, err := env.Proxy.Search(ctx, testenv.ProductsIndexID, phoneSearch())
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Len(t, res.Results, 2)
}

func TestProxy_Search_cacheDisabled(t *testing.T) {
	env := testenv.MustNew(testenv.WithConfig(func(c *techu.Config) {
		c.SearchCacheEnabled = false
	}))
	stubPhones(env)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := env.Proxy.Search(ctx, testenv.ProductsIndexID, phoneSearch())
		require.NoError(t, err)
		assert.False(t, res.Cached)
		assert.Empty(t, res.CacheKey)
		assert.Len(t, res.Results, 2)
	}
	assert.Equal(t, 2, env.Engine.CallCount(models.KindSearch))
}

func TestProxy_Search_degradedCache(t *testing.T) {
	s := store.NewMemory()
	env := testenv.MustNew(
		testenv.WithStore(s),
		testenv.WithCache(&brokenCache{CacheStore: s, version: true}),
	)
	stubPhones(env)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := env.Proxy.Search(ctx, testenv.ProductsIndexID, phoneSearch())
		require.NoError(t, err)
		assert.False(t, res.Cached)
		assert.Len(t, res.Results, 2)
	}
	assert.Equal(t, 2, env.Engine.CallCount(models.KindSearch))
}

func TestProxy_Search_setFailureStillAnswers(t *testing.T) {
	s := store.NewMemory()
	env := testenv.MustNew(
		testenv.WithStore(s),
		testenv.WithCache(&brokenCache{CacheStore: s, set: true}),
	)
	stubPhones(env)

	res, err := env.Proxy.Search(context.Background(), testenv.ProductsIndexID, phoneSearch())
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Len(t, res.Results, 2)
}

func TestProxy_Search_metaIsBestEffort(t *testing.T) {
	env := testenv.MustNew()
	stubPhones(env, fakeengine.FailureConfig{Type: fakeengine.FailureNoMeta})

	res, err := env.Proxy.Search(context.Background(), testenv.ProductsIndexID, phoneSearch())
	require.NoError(t, err)
	assert.Nil(t, res.Meta)
	assert.Len(t, res.Results, 2)
}

func TestProxy_Search_badRequests(t *testing.T) {
	testCases := []struct {
		name    string
		indexID int64
		req     models.SearchRequest
		want    error
	}{
		{name: "no query", indexID: testenv.ProductsIndexID, req: models.SearchRequest{}, want: techu.ErrQueryBuild},
		{name: "unknown index", indexID: 7, req: phoneSearch(), want: techu.ErrNotFound},
		{
			name:    "unknown option",
			indexID: testenv.ProductsIndexID,
			req:     models.SearchRequest{Query: "phone", Options: map[string]any{"warp_speed": int64(9)}},
			want:    techu.ErrQueryBuild,
		},
		{
			name:    "bad operator",
			indexID: testenv.ProductsIndexID,
			req: models.SearchRequest{
				Query:   "phone",
				Filters: map[string][]models.Condition{"price": {{Operator: "LIKE", Value: "x"}}},
			},
			want: techu.ErrQueryBuild,
		},
		{
			name:    "zero limit",
			indexID: testenv.ProductsIndexID,
			req:     models.SearchRequest{Query: "phone", Limit: &models.Limit{Count: 0}},
			want:    techu.ErrQueryBuild,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := testenv.MustNew()
			_, err := env.Proxy.Search(context.Background(), tc.indexID, tc.req)
			require.ErrorIs(t, err, tc.want)
			assert.Empty(t, env.Engine.Calls())
		})
	}
}

func TestProxy_Excerpts(t *testing.T) {
	env := testenv.MustNew()
	ctx := context.Background()

	req := models.ExcerptRequest{
		Documents: map[string]string{"b": "second text", "a": "first text"},
		Query:     "text",
		Options:   map[string]any{"around": int64(3)},
	}

	first, err := env.Proxy.Excerpts(ctx, testenv.ProductsIndexID, req)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Regexp(t, `^cache:excerpts:[0-9a-f]{16}:1:0$`, first.CacheKey)
	assert.Equal(t, map[string]string{"a": "first text", "b": "second text"}, first.Excerpts)

	second, err := env.Proxy.Excerpts(ctx, testenv.ProductsIndexID, req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Excerpts, second.Excerpts)
	assert.Equal(t, 1, env.Engine.CallCount(models.KindSnippets))

	calls := env.Engine.Calls()
	assert.Equal(t, "CALL SNIPPETS((?, ?), ?, ?, ? AS around)", calls[0].Statement.Template)
}

func TestProxy_Excerpts_list(t *testing.T) {
	env := testenv.MustNew()

	res, err := env.Proxy.Excerpts(context.Background(), testenv.ProductsIndexID, models.ExcerptRequest{
		DocumentList: []string{"first text", "second text"},
		Query:        "text",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"0": "first text", "1": "second text"}, res.Excerpts)
}

func TestProxy_Excerpts_ttlOverride(t *testing.T) {
	now := time.Unix(1700000000, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	env := testenv.MustNew(testenv.WithStore(store.NewMemory().WithClock(clock)))
	ctx := context.Background()
	req := models.ExcerptRequest{
		DocumentList: []string{"first text"},
		Query:        "text",
		TTL:          time.Second,
	}

	_, err := env.Proxy.Excerpts(ctx, testenv.ProductsIndexID, req)
	require.NoError(t, err)

	advance(500 * time.Millisecond)
	res, err := env.Proxy.Excerpts(ctx, testenv.ProductsIndexID, req)
	require.NoError(t, err)
	assert.True(t, res.Cached)

	// Past both the entry ttl and the lock ttl.
	advance(3 * time.Second)
	res, err = env.Proxy.Excerpts(ctx, testenv.ProductsIndexID, req)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, env.Engine.CallCount(models.KindSnippets))
}

func TestProxy_Excerpts_countMismatch(t *testing.T) {
	env := testenv.MustNew()
	env.Engine.AddStub(fakeengine.StubResponse{
		Matcher:  fakeengine.RequestMatcher{Kind: models.KindSnippets},
		Snippets: []string{"only one"},
	})

	_, err := env.Proxy.Excerpts(context.Background(), testenv.ProductsIndexID, models.ExcerptRequest{
		DocumentList: []string{"first", "second"},
		Query:        "text",
	})
	require.ErrorIs(t, err, techu.ErrBackendUnavailable)
}

func TestProxy_Excerpts_badOption(t *testing.T) {
	env := testenv.MustNew()

	_, err := env.Proxy.Excerpts(context.Background(), testenv.ProductsIndexID, models.ExcerptRequest{
		DocumentList: []string{"first"},
		Query:        "text",
		Options:      map[string]any{"html_strip_mode": "shred"},
	})
	require.ErrorIs(t, err, techu.ErrQueryBuild)
	assert.Empty(t, env.Engine.Calls())
}

func TestProxy_IndexVersion(t *testing.T) {
	env := testenv.MustNew()
	ctx := context.Background()

	v, err := env.Proxy.IndexVersion(ctx, testenv.ProductsIndexID)
	require.NoError(t, err)
	assert.Zero(t, v)

	_, err = env.Proxy.Insert(ctx, insertProduct(false))
	require.NoError(t, err)

	v, err = env.Proxy.IndexVersion(ctx, testenv.ProductsIndexID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}
