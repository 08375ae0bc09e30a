// Package engine executes compiled SphinxQL statements against the search
// engine.
//
// Sphinx and Manticore speak the MySQL wire protocol but do not support
// server side prepared statements, so connections are opened with
// client side parameter interpolation and every call still passes its
// bound values separately from the template.
package engine

import (
	"context"

	"github.com/techu/techu/pkg/models"
)

// Engine is the search engine as seen by the coordinators. Every error it
// returns for a statement that reached (or tried to reach) the engine is a
// *constants.BackendUnavailableError.
type Engine interface {
	// Exec runs a mutation and returns the number of affected documents.
	Exec(ctx context.Context, index string, stmt models.Statement) (int64, error)

	// Query runs a search. Meta is filled best-effort from SHOW META on
	// the same connection and is nil when that fails.
	Query(ctx context.Context, index string, stmt models.Statement) (*models.SearchResult, error)

	// Snippets runs CALL SNIPPETS and returns one excerpt per document in
	// statement order.
	Snippets(ctx context.Context, index string, stmt models.Statement) ([]string, error)
}
