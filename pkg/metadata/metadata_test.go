package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/techu/techu/pkg/constants"
	"github.com/techu/techu/pkg/models"
)

func TestStatic(t *testing.T) {
	s := NewStatic(map[int64]string{1: "products", 2: "orders"})
	ctx := context.Background()

	ref, err := s.Resolve(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.IndexRef{ID: 1, Name: "products"}, ref)

	_, err = s.Resolve(ctx, 3)
	require.ErrorIs(t, err, constants.ErrNotFound)
	assert.EqualError(t, err, "index 3: not found")

	s.Put(3, "users")
	ref, err = s.Resolve(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "users", ref.Name)

	assert.Equal(t, []models.IndexRef{
		{ID: 1, Name: "products"},
		{ID: 2, Name: "orders"},
		{ID: 3, Name: "users"},
	}, s.Indexes())
}

func TestStatic_canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStatic(nil).Resolve(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func newMockGorm(t *testing.T) (*Gorm, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return NewGorm(gdb), mock
}

func TestGorm_Resolve(t *testing.T) {
	g, mock := newMockGorm(t)

	mock.ExpectQuery(`SELECT \* FROM "sp_index" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(42), "products"))

	ref, err := g.Resolve(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, models.IndexRef{ID: 42, Name: "products"}, ref)
}

func TestGorm_Resolve_notFound(t *testing.T) {
	g, mock := newMockGorm(t)

	mock.ExpectQuery(`SELECT \* FROM "sp_index"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	_, err := g.Resolve(context.Background(), 7)
	assert.ErrorIs(t, err, constants.ErrNotFound)
}

func TestGorm_Resolve_unavailable(t *testing.T) {
	g, mock := newMockGorm(t)

	mock.ExpectQuery(`SELECT \* FROM "sp_index"`).
		WillReturnError(errors.New("connection reset"))

	_, err := g.Resolve(context.Background(), 7)
	assert.ErrorIs(t, err, constants.ErrBackendUnavailable)
}
