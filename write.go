package techu

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/techu/techu/pkg/constants"
	"github.com/techu/techu/pkg/models"
	"github.com/techu/techu/pkg/retry"
	"github.com/techu/techu/pkg/sphinxql"
)

// Insert adds req.Documents to the index in one multi-row statement.
func (p *Proxy) Insert(ctx context.Context, req models.InsertRequest) (models.WriteResult, error) {
	if err := req.Validate(); err != nil {
		return models.WriteResult{}, badRequest(err)
	}
	ref, err := p.resolve(ctx, req.IndexID)
	if err != nil {
		return models.WriteResult{}, err
	}
	stmt, err := sphinxql.CompileInsert(ref.Name, req.Documents)
	if err != nil {
		return models.WriteResult{}, err
	}
	return p.apply(ctx, ref, stmt, req.Queue)
}

// Update applies one UPDATE per document, in request order. It stops at
// the first document that cannot be made durable and returns the results
// of the documents before it together with the error.
func (p *Proxy) Update(ctx context.Context, req models.UpdateRequest) ([]models.WriteResult, error) {
	if err := req.Validate(); err != nil {
		return nil, badRequest(err)
	}
	ref, err := p.resolve(ctx, req.IndexID)
	if err != nil {
		return nil, err
	}

	// Compile everything first so a malformed document fails the request
	// before any of it is applied.
	stmts := make([]models.Statement, 0, len(req.Documents))
	for _, doc := range req.Documents {
		stmt, err := sphinxql.CompileUpdate(ref.Name, doc)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return p.applyAll(ctx, ref, stmts, req.Queue)
}

// Delete applies one DELETE per id, in request order, with the same
// partial result semantics as Update.
func (p *Proxy) Delete(ctx context.Context, req models.DeleteRequest) ([]models.WriteResult, error) {
	if err := req.Validate(); err != nil {
		return nil, badRequest(err)
	}
	ref, err := p.resolve(ctx, req.IndexID)
	if err != nil {
		return nil, err
	}

	stmts := make([]models.Statement, 0, len(req.IDs))
	for _, id := range req.IDs {
		stmt, err := sphinxql.CompileDelete(ref.Name, id)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return p.applyAll(ctx, ref, stmts, req.Queue)
}

func (p *Proxy) applyAll(ctx context.Context, ref models.IndexRef, stmts []models.Statement, queued bool) ([]models.WriteResult, error) {
	results := make([]models.WriteResult, 0, len(stmts))
	for i, stmt := range stmts {
		res, err := p.apply(ctx, ref, stmt, queued)
		if err != nil {
			return results, fmt.Errorf("statement %d of %d: %w", i+1, len(stmts), err)
		}
		results = append(results, res)
	}
	return results, nil
}

// apply makes one mutation durable. It alternates between executing the
// statement on the engine and appending it to the index queue until one of
// them succeeds or MaxRetries failovers have been spent. Only a direct
// execution bumps the index version.
func (p *Proxy) apply(ctx context.Context, ref models.IndexRef, stmt models.Statement, queued bool) (models.WriteResult, error) {
	reqID := uuid.NewString()
	kind := string(stmt.Kind)

	path := models.PathDirect
	if queued {
		path = models.PathQueued
	}

	var (
		payload []byte
		lastErr error
	)
	attempts := p.cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := retry.Wait(ctx, p.retryer, attempt, lastErr); err != nil {
				return models.WriteResult{}, err
			}
		}
		if err := ctx.Err(); err != nil {
			return models.WriteResult{}, err
		}

		switch path {
		case models.PathDirect:
			err := p.execDirect(ctx, ref, stmt)
			if err == nil {
				version := p.bump(ctx, ref, reqID)
				p.metrics.Write(kind, string(path), "ok")
				return models.WriteResult{Path: path, Version: version, Attempts: attempt + 1}, nil
			}
			lastErr = err

		case models.PathQueued:
			if payload == nil {
				encoded, err := models.EncodeStatement(stmt)
				if err != nil {
					return models.WriteResult{}, fmt.Errorf("encoding queue payload: %w", err)
				}
				payload = encoded
			}
			entryKey, err := p.enqueue(ctx, ref, stmt.Kind, payload)
			if err == nil {
				p.metrics.Write(kind, string(path), "ok")
				return models.WriteResult{Path: path, EntryKey: entryKey, Attempts: attempt + 1}, nil
			}
			lastErr = err
		}

		if err := ctx.Err(); err != nil {
			return models.WriteResult{}, err
		}
		if !failoverable(lastErr) {
			return models.WriteResult{}, lastErr
		}

		p.logger.Warn("write attempt failed, failing over",
			"request_id", reqID,
			"index", ref.Name,
			"kind", kind,
			"path", string(path),
			"attempt", attempt+1,
			"error", lastErr,
		)
		p.metrics.Failover(string(path))
		path = other(path)
	}

	p.metrics.Write(kind, "none", "exhausted")
	p.logger.Error("write failed on every path",
		"request_id", reqID,
		"index", ref.Name,
		"kind", kind,
		"attempts", attempts,
		"error", lastErr,
	)
	return models.WriteResult{}, &constants.MaxRetriesExceededError{
		Index:    ref.Name,
		Attempts: attempts,
		Last:     lastErr,
	}
}

func (p *Proxy) execDirect(ctx context.Context, ref models.IndexRef, stmt models.Statement) error {
	ctx, cancel := p.backendContext(ctx)
	defer cancel()
	_, err := p.engine.Exec(ctx, ref.Name, stmt)
	return err
}

func (p *Proxy) enqueue(ctx context.Context, ref models.IndexRef, kind models.StatementKind, payload []byte) (string, error) {
	ctx, cancel := p.backendContext(ctx)
	defer cancel()
	return p.queue.Enqueue(ctx, ref.ID, kind, payload)
}

// bump increments the index version after a direct write. The mutation is
// already applied at this point, so a failure is logged and reported as
// version 0 instead of failing the write. It runs detached from the caller's
// cancellation for the same reason.
func (p *Proxy) bump(ctx context.Context, ref models.IndexRef, reqID string) int64 {
	ctx, cancel := p.backendContext(context.WithoutCancel(ctx))
	defer cancel()

	version, err := p.cache.Bump(ctx, ref.ID)
	if err != nil {
		p.metrics.BumpFailed()
		p.logger.Error("index version bump failed, cached reads may be stale until they expire",
			"request_id", reqID,
			"index", ref.Name,
			"index_id", ref.ID,
			"error", err,
		)
		return 0
	}
	p.logger.Debug("index version bumped", "request_id", reqID, "index", ref.Name, "version", version)
	return version
}

// failoverable reports whether the other path is worth trying after err.
// A malformed statement fails the same way on both.
func failoverable(err error) bool {
	return !errors.Is(err, constants.ErrQueryBuild)
}

func other(path models.WritePath) models.WritePath {
	if path == models.PathDirect {
		return models.PathQueued
	}
	return models.PathDirect
}
