//go:build integration

package persistence

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newPostgresDB starts a PostgreSQL container and applies the SQL migrations
func newPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ordersync_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	m, err := migration.New(sqlDB, findMigrationsPath(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, m.Up())

	version, dirty, err := m.Version()
	require.NoError(t, err)
	require.False(t, dirty)
	require.NotZero(t, version)

	return db
}

// findMigrationsPath walks up from this file to the repository's migrations directory
func findMigrationsPath(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)

	dir := filepath.Dir(file)
	for i := 0; i < 6; i++ {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		dir = filepath.Dir(dir)
	}
	t.Fatal("migrations directory not found")
	return ""
}

func TestPostgres_Repositories(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	db := newPostgresDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("store natural key is unique", func(t *testing.T) {
		repo := NewGormStoreRepository(db)
		store := newTestStore(t, integration.MarketplaceMercadoLivre, "pg-1", now)
		require.NoError(t, repo.Save(ctx, store))

		dup := newTestStore(t, integration.MarketplaceMercadoLivre, "pg-1", now)
		assert.ErrorIs(t, repo.Save(ctx, dup), integration.ErrDuplicateKey)
	})

	t.Run("order items and payload round trip through jsonb", func(t *testing.T) {
		repo := NewGormOrderRepository(db)
		order, _, err := integration.NewOrderFromDraft(uuid.New(), uuid.New(), &integration.OrderDraft{
			Marketplace: integration.MarketplaceShopee,
			ExternalID:  "240101ABCDEF",
			Items:       []integration.OrderItem{{ExternalItemID: "1", Title: "Caneca", Quantity: 1}},
			RawPayload:  integration.Payload{"order_sn": "240101ABCDEF"},
		}, now)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, order))

		found, err := repo.FindByExternalID(ctx, integration.MarketplaceShopee, "240101ABCDEF")
		require.NoError(t, err)
		require.Len(t, found.Items, 1)
		assert.Equal(t, "240101ABCDEF", found.RawPayload["order_sn"])
	})

	t.Run("only one worker claims a job", func(t *testing.T) {
		repo := NewGormSyncJobRepository(db)
		job, err := integration.NewSyncJob(integration.JobTypeSyncProducts, nil, nil, integration.DefaultJobOptions(), now)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, job))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				copyJob := *job
				ok, err := repo.Claim(ctx, &copyJob, now)
				if assert.NoError(t, err) && ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())

		claimed, err := repo.FindByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, integration.JobStatusActive, claimed.Status)
		assert.Equal(t, 1, claimed.Attempts)
	})
}
