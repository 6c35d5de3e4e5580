//go:build integration

package postgres

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"ecolisting_ingest/internal/domain"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func ptr[T any](v T) *T { return &v }

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_listings.up.sql"),
			filepath.Join(migrationsPath, "002_create_ingest_runs.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM listing_photos")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM listings")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM ingest_runs")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func listing(externalID string, price float64) domain.Listing {
	return domain.Listing{
		ID:         uuid.NewSHA1(uuid.NameSpaceURL, []byte(externalID)),
		SourceID:   "test-source",
		ExternalID: externalID,
		Price:      ptr(price),
		City:       ptr("Oak Ridge"),
		Latitude:   ptr(29.746832),
		Longitude:  ptr(-95.57128),
		Status:     ptr("for-sale"),
		Beds:       ptr(3),
		Baths:      ptr(2.5),
	}
}

func (s *PostgresIntegrationSuite) count(query string, args ...interface{}) int {
	var n int
	s.Require().NoError(s.db.GetContext(s.ctx, &n, query, args...))
	return n
}

func (s *PostgresIntegrationSuite) TestListingStore_UpsertBatch_Insert() {
	store := NewListingStore(s.db)

	n, err := store.UpsertBatch(s.ctx, []domain.Listing{listing("A", 100), listing("B", 200)})
	s.NoError(err)
	s.Equal(2, n)
	s.Equal(2, s.count("SELECT COUNT(*) FROM listings"))
}

func (s *PostgresIntegrationSuite) TestListingStore_UpsertBatch_Idempotent() {
	store := NewListingStore(s.db)
	rows := []domain.Listing{listing("A", 100), listing("B", 200)}

	_, err := store.UpsertBatch(s.ctx, rows)
	s.NoError(err)
	_, err = store.UpsertBatch(s.ctx, rows)
	s.NoError(err)

	s.Equal(2, s.count("SELECT COUNT(*) FROM listings"))
}

func (s *PostgresIntegrationSuite) TestListingStore_UpsertBatch_OverwritesColumns() {
	store := NewListingStore(s.db)

	_, err := store.UpsertBatch(s.ctx, []domain.Listing{listing("A", 100)})
	s.NoError(err)

	updated := listing("A", 150)
	updated.City = nil
	_, err = store.UpsertBatch(s.ctx, []domain.Listing{updated})
	s.NoError(err)

	var row struct {
		Price float64 `db:"price"`
		City  *string `db:"city"`
	}
	s.NoError(s.db.GetContext(s.ctx, &row, "SELECT price, city FROM listings WHERE external_id = $1", "A"))
	s.Equal(150.0, row.Price)
	s.Nil(row.City)
}

func (s *PostgresIntegrationSuite) TestListingStore_SchemaViolationIsNotTransient() {
	store := NewListingStore(s.db)

	bad := listing("A", 100)
	bad.ExternalID = ""
	_, err := store.UpsertBatch(s.ctx, []domain.Listing{bad})
	s.Error(err)

	var storeErr *StoreError
	s.True(errors.As(err, &storeErr))
	s.Equal("23514", storeErr.Code)
	s.False(storeErr.Transient())
}

func (s *PostgresIntegrationSuite) TestPhotoStore_Replace() {
	listings := NewListingStore(s.db)
	photos := NewPhotoStore(s.db, NewTransactionManager(s.db))

	_, err := listings.UpsertBatch(s.ctx, []domain.Listing{listing("A", 100)})
	s.NoError(err)

	s.NoError(photos.ReplacePhotos(s.ctx, "A", []string{"u1", "u2", "u3"}))
	s.NoError(photos.ReplacePhotos(s.ctx, "A", []string{"u3", "u4"}))

	got, err := photos.GetByExternalID(s.ctx, "A")
	s.NoError(err)
	s.Equal([]domain.Photo{
		{ExternalID: "A", URL: "u3", Sort: 0},
		{ExternalID: "A", URL: "u4", Sort: 1},
	}, got)
}

func (s *PostgresIntegrationSuite) TestPhotoStore_Merge() {
	listings := NewListingStore(s.db)
	photos := NewPhotoStore(s.db, NewTransactionManager(s.db))

	_, err := listings.UpsertBatch(s.ctx, []domain.Listing{listing("A", 100)})
	s.NoError(err)

	s.NoError(photos.MergePhotos(s.ctx, "A", []string{"u1", "u2"}))
	s.NoError(photos.MergePhotos(s.ctx, "A", []string{"u2", "u3"}))

	got, err := photos.GetByExternalID(s.ctx, "A")
	s.NoError(err)
	s.Len(got, 3)
}

func (s *PostgresIntegrationSuite) TestRunStateStore_GetMissingAndUpdate() {
	store := NewRunStateStore(s.db)

	state, err := store.Get(s.ctx, "simplyrets")
	s.NoError(err)
	s.Equal("simplyrets", state.SourceID)
	s.Zero(state.TotalUpserted)

	state.LastRunAt = time.Now().Truncate(time.Microsecond)
	state.LastRunID = "run-1"
	state.TotalUpserted = 42
	s.NoError(store.Update(s.ctx, state))

	got, err := store.Get(s.ctx, "simplyrets")
	s.NoError(err)
	s.Equal(int64(42), got.TotalUpserted)
	s.Equal("run-1", got.LastRunID)
}

func (s *PostgresIntegrationSuite) TestRunLock_Exclusive() {
	first := NewRunLock(s.db, "ingest:test")
	second := NewRunLock(s.db, "ingest:test")

	s.NoError(first.Acquire(s.ctx))
	s.ErrorIs(second.Acquire(s.ctx), ErrLocked)

	s.NoError(first.Release(s.ctx))
	s.NoError(second.Acquire(s.ctx))
	s.NoError(second.Release(s.ctx))
}
