package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"

	"github.com/techu/techu/pkg/constants"
	"github.com/techu/techu/pkg/logger"
	"github.com/techu/techu/pkg/models"
)

const backendSphinx = "sphinx"

// SQL is an Engine over database/sql. Each index may live on its own
// searchd; indexes without an explicit DSN use the default one.
type SQL struct {
	mu       sync.Mutex
	dsns     map[string]string
	dbs      map[string]*sql.DB
	fallback string
	open     func(dsn string) (*sql.DB, error)
	logger   logger.Logger
}

var _ Engine = (*SQL)(nil)

// Option configures SQL.
type Option func(*SQL)

// WithIndexDSN routes statements for index to dsn.
func WithIndexDSN(index, dsn string) Option {
	return func(s *SQL) {
		s.dsns[index] = dsn
	}
}

// WithLogger sets the logger used for best-effort failures.
func WithLogger(l logger.Logger) Option {
	return func(s *SQL) {
		s.logger = l
	}
}

// WithDB routes every statement for which no other DSN matches to db.
// It is mainly useful with sqlmock.
func WithDB(db *sql.DB) Option {
	return func(s *SQL) {
		s.dbs[""] = db
	}
}

// NewSQL creates an engine. defaultDSN is a go-sql-driver/mysql DSN such as
// "tcp(127.0.0.1:9306)/"; it may be empty if every index has its own DSN.
func NewSQL(defaultDSN string, opts ...Option) *SQL {
	s := &SQL{
		dsns:     map[string]string{},
		dbs:      map[string]*sql.DB{},
		fallback: defaultDSN,
		open:     Open,
		logger:   logger.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens a connection pool for a searchd MySQL listener, forcing
// client side interpolation.
func Open(dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("sphinx dsn: %w", err)
	}
	cfg.InterpolateParams = true
	return sql.Open("mysql", cfg.FormatDSN())
}

func (s *SQL) db(index string) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dsn, ok := s.dsns[index]
	if !ok {
		dsn = s.fallback
	}
	if db, ok := s.dbs[dsn]; ok {
		return db, nil
	}
	if dsn == "" {
		return nil, constants.ErrNoSphinxDSN
	}
	db, err := s.open(dsn)
	if err != nil {
		return nil, err
	}
	s.dbs[dsn] = db
	return db, nil
}

// Close closes every pool opened by the engine.
func (s *SQL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for dsn, db := range s.dbs {
		if err := db.Close(); err != nil && first == nil {
			first = err
		}
		delete(s.dbs, dsn)
	}
	return first
}

// Ping checks the connection of an index.
func (s *SQL) Ping(ctx context.Context, index string) error {
	db, err := s.db(index)
	if err != nil {
		return unavailable(index, err)
	}
	if err := db.PingContext(ctx); err != nil {
		return unavailable(index, err)
	}
	return nil
}

func (s *SQL) Exec(ctx context.Context, index string, stmt models.Statement) (int64, error) {
	db, err := s.db(index)
	if err != nil {
		return 0, unavailable(index, err)
	}
	res, err := db.ExecContext(ctx, stmt.Template, stmt.Args...)
	if err != nil {
		return 0, unavailable(index, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		// searchd always reports affected rows; treat a missing count as 0
		return 0, nil
	}
	return n, nil
}

func (s *SQL) Query(ctx context.Context, index string, stmt models.Statement) (*models.SearchResult, error) {
	db, err := s.db(index)
	if err != nil {
		return nil, unavailable(index, err)
	}

	// SHOW META describes the previous statement of the same session.
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, unavailable(index, err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, stmt.Template, stmt.Args...)
	if err != nil {
		return nil, unavailable(index, err)
	}
	results, err := scanRows(rows)
	if err != nil {
		return nil, unavailable(index, err)
	}

	meta, err := showMeta(ctx, conn)
	if err != nil {
		s.logger.Debug("show meta failed", "index", index, "error", err)
		meta = nil
	}

	return &models.SearchResult{Results: results, Meta: meta}, nil
}

func (s *SQL) Snippets(ctx context.Context, index string, stmt models.Statement) ([]string, error) {
	db, err := s.db(index)
	if err != nil {
		return nil, unavailable(index, err)
	}
	rows, err := db.QueryContext(ctx, stmt.Template, stmt.Args...)
	if err != nil {
		return nil, unavailable(index, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var snippet sql.NullString
		if err := rows.Scan(&snippet); err != nil {
			return nil, unavailable(index, err)
		}
		out = append(out, snippet.String)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(index, err)
	}
	return out, nil
}

func showMeta(ctx context.Context, conn *sql.Conn) (map[string]string, error) {
	rows, err := conn.QueryContext(ctx, "SHOW META")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	meta := map[string]string{}
	for rows.Next() {
		var name, value sql.NullString
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		meta[name.String] = value.String
	}
	return meta, rows.Err()
}

// scanRows reads every row into a column name to value map. searchd sends
// everything as text, so values are converted by column type.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	results := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = convertValue(values[i], types[i].DatabaseTypeName())
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func convertValue(v any, dbType string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	s := string(b)
	switch {
	case strings.Contains(dbType, "INT"):
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n
		}
	case dbType == "FLOAT" || dbType == "DOUBLE" || dbType == "DECIMAL":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

func unavailable(index string, err error) error {
	return &constants.BackendUnavailableError{Backend: backendSphinx, Index: index, Err: err}
}
