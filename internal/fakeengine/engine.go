// Package fakeengine provides an in-process fake search engine for tests.
//
// It records every statement it receives and answers with canned
// responses. To flexibly inject failures, you can configure stub responses
// that match specific statements, along with failure configurations that
// specify how they fail (delays, unavailability, dropped SHOW META).
package fakeengine

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/techu/techu/pkg/constants"
	"github.com/techu/techu/pkg/engine"
	"github.com/techu/techu/pkg/models"
)

// ErrInjected is the cause of every injected unavailability.
var ErrInjected = errors.New("fakeengine: injected failure")

// FailureType represents the type of failure to inject during execution
type FailureType string

const (
	// FailureNone indicates no failure injection
	FailureNone FailureType = "none"
	// FailureUnavailable fails the call with a BackendUnavailableError
	FailureUnavailable FailureType = "unavailable"
	// FailureDelay delays before answering, aborting if the context ends
	FailureDelay FailureType = "delay"
	// FailureNoMeta answers a search without SHOW META data
	FailureNoMeta FailureType = "no_meta"
)

// RequestMatcher defines criteria for matching statements. Zero fields
// match anything.
type RequestMatcher struct {
	Kind  models.StatementKind
	Index string
	// Matcher is an optional function to match on the statement itself.
	Matcher func(stmt models.Statement) bool
}

func (m RequestMatcher) matches(index string, stmt models.Statement) bool {
	if m.Kind != "" && m.Kind != stmt.Kind {
		return false
	}
	if m.Index != "" && m.Index != index {
		return false
	}
	return m.Matcher == nil || m.Matcher(stmt)
}

// StubResponse defines a pre-configured answer for matching statements.
type StubResponse struct {
	Matcher RequestMatcher
	// Result answers Query calls
	Result *models.SearchResult
	// Snippets answers Snippets calls
	Snippets []string
	// Affected answers Exec calls
	Affected int64
	// Error is returned instead of a result
	Error error
	// Failures defines failure injection configurations for this response
	Failures []FailureConfig
	// Times limits how many calls the stub answers; 0 means unlimited
	Times int

	used int
}

// FailureConfig defines how and when to inject a specific failure type
type FailureConfig struct {
	Type FailureType
	// Probability of triggering this failure (0.0 to 1.0); 0 means always
	Probability float64
	// MinDelay is the minimum delay for FailureDelay
	MinDelay time.Duration
	// MaxDelay is the maximum delay for FailureDelay
	MaxDelay time.Duration
}

// Call is one statement received by the engine.
type Call struct {
	Index     string
	Statement models.Statement
}

// Engine is a fake engine.Engine.
type Engine struct {
	mu       sync.Mutex
	stubs    []*StubResponse
	failures []FailureConfig
	failNext int
	calls    []Call
}

var _ engine.Engine = (*Engine)(nil)

func New() *Engine {
	return &Engine{}
}

// AddStub registers a stub. Stubs are tried in registration order.
func (e *Engine) AddStub(stub StubResponse) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stubs = append(e.stubs, &stub)
}

// SetFailures sets failures applied to every call without a stub.
func (e *Engine) SetFailures(failures ...FailureConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = failures
}

// FailNext makes the next n calls fail as unavailable.
func (e *Engine) FailNext(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failNext = n
}

// Calls returns every statement received so far, including failed ones.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// CallCount counts received statements of a kind.
func (e *Engine) CallCount(kind models.StatementKind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c.Statement.Kind == kind {
			n++
		}
	}
	return n
}

// Reset forgets calls, stubs and failures.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stubs = nil
	e.failures = nil
	e.failNext = 0
	e.calls = nil
}

// receive records the call and picks the stub and failures that apply.
func (e *Engine) receive(index string, stmt models.Statement) (*StubResponse, []FailureConfig, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, Call{Index: index, Statement: stmt})

	forced := false
	if e.failNext > 0 {
		e.failNext--
		forced = true
	}

	for _, s := range e.stubs {
		if s.Times > 0 && s.used >= s.Times {
			continue
		}
		if s.Matcher.matches(index, stmt) {
			s.used++
			return s, s.Failures, forced
		}
	}
	return nil, e.failures, forced
}

// inject applies failures. It reports whether SHOW META should be dropped
// and the error to fail with.
func inject(ctx context.Context, index string, failures []FailureConfig, forced bool) (noMeta bool, err error) {
	if forced {
		return false, unavailable(index, ErrInjected)
	}
	for _, f := range failures {
		//nolint:gosec // math/rand is fine for failure injection
		if f.Probability > 0 && rand.Float64() >= f.Probability {
			continue
		}
		switch f.Type {
		case FailureUnavailable:
			return false, unavailable(index, ErrInjected)
		case FailureDelay:
			if err := sleep(ctx, f.MinDelay, f.MaxDelay); err != nil {
				return false, unavailable(index, err)
			}
		case FailureNoMeta:
			noMeta = true
		}
	}
	if err := ctx.Err(); err != nil {
		return false, unavailable(index, err)
	}
	return noMeta, nil
}

func sleep(ctx context.Context, minDelay, maxDelay time.Duration) error {
	d := minDelay
	if maxDelay > minDelay {
		//nolint:gosec // math/rand is fine for failure injection
		d += time.Duration(rand.Int63n(int64(maxDelay - minDelay)))
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func unavailable(index string, err error) error {
	return &constants.BackendUnavailableError{Backend: "fakeengine", Index: index, Err: err}
}

func (e *Engine) Exec(ctx context.Context, index string, stmt models.Statement) (int64, error) {
	stub, failures, forced := e.receive(index, stmt)
	if _, err := inject(ctx, index, failures, forced); err != nil {
		return 0, err
	}
	if stub == nil {
		return 1, nil
	}
	if stub.Error != nil {
		return 0, stub.Error
	}
	return stub.Affected, nil
}

func (e *Engine) Query(ctx context.Context, index string, stmt models.Statement) (*models.SearchResult, error) {
	stub, failures, forced := e.receive(index, stmt)
	noMeta, err := inject(ctx, index, failures, forced)
	if err != nil {
		return nil, err
	}

	res := &models.SearchResult{
		Results: []map[string]any{},
		Meta:    map[string]string{"total": "0", "total_found": "0"},
	}
	if stub != nil {
		if stub.Error != nil {
			return nil, stub.Error
		}
		if stub.Result != nil {
			res = &models.SearchResult{Results: stub.Result.Results, Meta: stub.Result.Meta}
		}
	}
	if noMeta {
		res.Meta = nil
	}
	return res, nil
}

func (e *Engine) Snippets(ctx context.Context, index string, stmt models.Statement) ([]string, error) {
	stub, failures, forced := e.receive(index, stmt)
	if _, err := inject(ctx, index, failures, forced); err != nil {
		return nil, err
	}
	if stub != nil {
		if stub.Error != nil {
			return nil, stub.Error
		}
		if stub.Snippets != nil {
			return stub.Snippets, nil
		}
	}
	return echoDocuments(stmt), nil
}

// echoDocuments returns the documents of a CALL SNIPPETS statement
// unchanged.
func echoDocuments(stmt models.Statement) []string {
	n := 1
	const multi = "CALL SNIPPETS(("
	if strings.HasPrefix(stmt.Template, multi) {
		rest := stmt.Template[len(multi):]
		if end := strings.Index(rest, ")"); end >= 0 {
			n = strings.Count(rest[:end], "?")
		}
	}
	out := make([]string, 0, n)
	for i := 0; i < n && i < len(stmt.Args); i++ {
		s, _ := stmt.Args[i].(string)
		out = append(out, s)
	}
	return out
}
