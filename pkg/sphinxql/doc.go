// Package sphinxql builds parameterized SphinxQL statements.
//
// Statements are assembled with a fluent interface and every user supplied
// value is bound through a ? placeholder. Build returns the template and the
// bound values in the exact order their placeholders appear, which is the
// order database/sql (and the queue applier) binds them in.
//
// Supported statements:
//   - SELECT with WHERE, MATCH, GROUP BY, WITHIN GROUP ORDER BY, ORDER BY, LIMIT and OPTION
//   - INSERT with one or more VALUES rows
//   - UPDATE ... SET ... WHERE id = ?
//   - DELETE FROM ... WHERE id = ?
//   - CALL SNIPPETS for excerpt generation
//
// Identifiers cannot be bound, so index and field names are validated instead
// and malformed input fails with a [constants.QueryBuildError] before anything
// reaches the engine.
package sphinxql
