// Package metadata resolves index ids to index references.
//
// The index catalogue itself (indexes, sources, searchd settings) is owned
// by a separate management service; the proxy only reads the id to name
// mapping from it.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/techu/techu/pkg/constants"
	"github.com/techu/techu/pkg/models"
)

// Resolver looks up an index by id. Unknown ids fail with a
// *constants.NotFoundError.
type Resolver interface {
	Resolve(ctx context.Context, indexID int64) (models.IndexRef, error)
}

func notFound(indexID int64) error {
	return &constants.NotFoundError{Kind: "index", ID: indexID}
}

// Static resolves from a fixed id to name map.
type Static struct {
	mu    sync.RWMutex
	names map[int64]string
}

var _ Resolver = (*Static)(nil)

// NewStatic copies names into a new resolver.
func NewStatic(names map[int64]string) *Static {
	s := &Static{names: make(map[int64]string, len(names))}
	for id, name := range names {
		s.names[id] = name
	}
	return s
}

func (s *Static) Resolve(ctx context.Context, indexID int64) (models.IndexRef, error) {
	if err := ctx.Err(); err != nil {
		return models.IndexRef{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.names[indexID]
	if !ok {
		return models.IndexRef{}, notFound(indexID)
	}
	return models.IndexRef{ID: indexID, Name: name}, nil
}

// Put adds or renames an index.
func (s *Static) Put(indexID int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[indexID] = name
}

// Indexes lists every known index ordered by id.
func (s *Static) Indexes() []models.IndexRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := make([]models.IndexRef, 0, len(s.names))
	for id, name := range s.names {
		refs = append(refs, models.IndexRef{ID: id, Name: name})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}

// indexRow maps the sp_index table of the management service.
type indexRow struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"not null"`
}

func (indexRow) TableName() string { return "sp_index" }

// Gorm resolves from the management database.
type Gorm struct {
	db *gorm.DB
}

var _ Resolver = (*Gorm)(nil)

// OpenGorm connects to the PostgreSQL management database.
func OpenGorm(dsn string) (*Gorm, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to metadata database: %w", err)
	}
	return NewGorm(db), nil
}

// NewGorm wraps an open connection.
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (g *Gorm) Resolve(ctx context.Context, indexID int64) (models.IndexRef, error) {
	var row indexRow
	err := g.db.WithContext(ctx).First(&row, "id = ?", indexID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.IndexRef{}, notFound(indexID)
		}
		return models.IndexRef{}, &constants.BackendUnavailableError{Backend: "metadata", Err: err}
	}
	return models.IndexRef{ID: row.ID, Name: row.Name}, nil
}

// Close closes the database connection
func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
