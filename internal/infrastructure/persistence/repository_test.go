package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

func newTestStore(t *testing.T, m integration.Marketplace, externalUserID string, now time.Time) *integration.Store {
	t.Helper()
	store, err := integration.NewStore(uuid.New(), uuid.New(), m, &integration.TokenGrant{
		AccessToken:    "APP_USR-access",
		RefreshToken:   "TG-refresh",
		ExpiresIn:      6 * time.Hour,
		ExternalUserID: externalUserID,
	}, now)
	require.NoError(t, err)
	return store
}

func TestGormStoreRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormStoreRepository(newTestDB(t))
	now := time.Now().UTC().Truncate(time.Second)

	store := newTestStore(t, integration.MarketplaceMercadoLivre, "123456", now)
	require.NoError(t, repo.Save(ctx, store))

	t.Run("finds by marketplace account", func(t *testing.T) {
		found, err := repo.FindByExternalUser(ctx, integration.MarketplaceMercadoLivre, "123456")
		require.NoError(t, err)
		assert.Equal(t, store.ID, found.ID)
		assert.Equal(t, "TG-refresh", found.Credential.RefreshToken)
		assert.True(t, store.Credential.ExpiresAt.Equal(found.Credential.ExpiresAt))

		_, err = repo.FindByExternalUser(ctx, integration.MarketplaceShopee, "123456")
		assert.ErrorIs(t, err, integration.ErrStoreNotFound)
	})

	t.Run("updates credential columns only", func(t *testing.T) {
		require.NoError(t, repo.UpdateStatus(ctx, store.ID, integration.StoreStatusReconnectRequired, now))
		cred := integration.StoreCredential{
			ExternalUserID: "123456",
			AccessToken:    "APP_USR-new",
			RefreshToken:   "TG-new",
			ExpiresAt:      now.Add(6 * time.Hour),
		}
		require.NoError(t, repo.UpdateCredential(ctx, store.ID, cred, now))

		found, err := repo.FindByID(ctx, store.ID)
		require.NoError(t, err)
		assert.Equal(t, "APP_USR-new", found.Credential.AccessToken)
		assert.Equal(t, integration.StoreStatusConnected, found.Status)

		assert.ErrorIs(t, repo.UpdateCredential(ctx, uuid.New(), cred, now), integration.ErrStoreNotFound)
	})

	t.Run("lists connected stores only", func(t *testing.T) {
		other := newTestStore(t, integration.MarketplaceShopee, "777", now)
		other.MarkReconnectRequired(now)
		require.NoError(t, repo.Save(ctx, other))

		stores, err := repo.FindSyncable(ctx)
		require.NoError(t, err)
		require.Len(t, stores, 1)
		assert.Equal(t, store.ID, stores[0].ID)
	})

	t.Run("rejects a second store for the same account", func(t *testing.T) {
		dup := newTestStore(t, integration.MarketplaceMercadoLivre, "123456", now)
		assert.ErrorIs(t, repo.Save(ctx, dup), integration.ErrDuplicateKey)
	})
}

func TestGormOrderRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormOrderRepository(newTestDB(t))
	now := time.Now().UTC().Truncate(time.Second)

	order, _, err := integration.NewOrderFromDraft(uuid.New(), uuid.New(), &integration.OrderDraft{
		Marketplace: integration.MarketplaceMercadoLivre,
		ExternalID:  "2000001",
		Status:      integration.OrderStatusPaid,
		Total:       decimal.RequireFromString("129.90"),
		Currency:    "BRL",
		Items: []integration.OrderItem{
			{ExternalItemID: "MLB1", SKU: "CAN-AZ", Title: "Caneca", Quantity: 2, UnitPrice: decimal.RequireFromString("64.95")},
		},
		RawPayload: integration.Payload{"id": "2000001"},
	}, now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, order))

	found, err := repo.FindByExternalID(ctx, integration.MarketplaceMercadoLivre, "2000001")
	require.NoError(t, err)
	assert.True(t, order.Total.Equal(found.Total))
	require.Len(t, found.Items, 1)
	assert.Equal(t, "CAN-AZ", found.Items[0].SKU)
	assert.Equal(t, "2000001", found.RawPayload["id"])

	found.Merge(&integration.OrderDraft{Status: integration.OrderStatusShipped, CustomerState: "SP"}, now.Add(time.Minute))
	require.NoError(t, repo.Update(ctx, found))

	reloaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, integration.OrderStatusShipped, reloaded.Status)
	assert.Equal(t, "SP", reloaded.CustomerState)
	assert.True(t, now.Add(time.Minute).Equal(reloaded.UpdatedAt))

	dup, _, err := integration.NewOrderFromDraft(uuid.New(), uuid.New(), &integration.OrderDraft{
		Marketplace: integration.MarketplaceMercadoLivre,
		ExternalID:  "2000001",
	}, now)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Create(ctx, dup), integration.ErrDuplicateKey)

	_, err = repo.FindByExternalID(ctx, integration.MarketplaceShopee, "2000001")
	assert.ErrorIs(t, err, integration.ErrOrderNotFound)
}

func TestGormProductRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormProductRepository(newTestDB(t))
	now := time.Now().UTC()
	tenantID := uuid.New()
	stock := 3

	product, _, err := integration.NewProductFromDraft(tenantID, uuid.New(), &integration.ProductDraft{
		Marketplace: integration.MarketplaceShopee,
		ExternalID:  "99",
		SKU:         "SKU-1",
		Price:       decimal.RequireFromString("10.5"),
		Stock:       &stock,
	}, now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, product))

	found, err := repo.FindBySKU(ctx, tenantID, " SKU-1 ")
	require.NoError(t, err)
	assert.Equal(t, 3, found.Stock)

	_, err = repo.FindBySKU(ctx, uuid.New(), "SKU-1")
	assert.ErrorIs(t, err, integration.ErrProductNotFound)

	found.Stock = 0
	require.NoError(t, repo.Update(ctx, found))
	reloaded, err := repo.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.Stock)
}

func TestGormSupportTicketRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormSupportTicketRepository(newTestDB(t))
	now := time.Now().UTC()
	storeID := uuid.New()

	newTicket := func(draft *integration.SupportTicketDraft, at time.Time) *integration.SupportTicket {
		ticket, _, err := integration.NewSupportTicketFromDraft(uuid.New(), storeID, draft, at)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, ticket))
		return ticket
	}

	old := now.Add(-40 * 24 * time.Hour)
	stale := newTicket(&integration.SupportTicketDraft{
		Marketplace:  integration.MarketplaceMercadoLivre,
		Kind:         integration.SupportKindQuestion,
		ExternalID:   "Q1",
		Text:         "Tem azul?",
		QuestionDate: &old,
	}, old)
	thread := newTicket(&integration.SupportTicketDraft{
		Marketplace: integration.MarketplaceMercadoLivre,
		Kind:        integration.SupportKindMessage,
		PackID:      "P1",
		Text:        "Quando chega?",
	}, now)

	q, err := repo.FindByQuestion(ctx, integration.MarketplaceMercadoLivre, "Q1")
	require.NoError(t, err)
	assert.Equal(t, stale.ID, q.ID)

	m, err := repo.FindByPack(ctx, integration.MarketplaceMercadoLivre, "P1")
	require.NoError(t, err)
	assert.Equal(t, thread.ID, m.ID)

	_, err = repo.FindByPack(ctx, integration.MarketplaceMercadoLivre, "Q1")
	assert.ErrorIs(t, err, integration.ErrTicketNotFound)

	removed, err := repo.DeleteStale(ctx, storeID, now.Add(-integration.SupportTicketRetention))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = repo.FindByQuestion(ctx, integration.MarketplaceMercadoLivre, "Q1")
	assert.ErrorIs(t, err, integration.ErrTicketNotFound)
}

func TestGormSupportTicketRepository_DeleteStaleBoundary(t *testing.T) {
	ctx := context.Background()
	repo := NewGormSupportTicketRepository(newTestDB(t))
	now := time.Now().UTC()
	storeID := uuid.New()

	create := func(externalID string, asked, touched time.Time) *integration.SupportTicket {
		ticket, _, err := integration.NewSupportTicketFromDraft(uuid.New(), storeID, &integration.SupportTicketDraft{
			Marketplace:  integration.MarketplaceMercadoLivre,
			Kind:         integration.SupportKindQuestion,
			ExternalID:   externalID,
			Text:         "Pergunta " + externalID,
			QuestionDate: &asked,
		}, touched)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, ticket))
		return ticket
	}

	daysAgo := func(n int) time.Time { return now.AddDate(0, 0, -n) }
	create("Q31", daysAgo(31), daysAgo(31))
	create("Q29", daysAgo(29), daysAgo(29))
	create("Q31-ANSWERED", daysAgo(31), daysAgo(1))

	removed, err := repo.DeleteStale(ctx, storeID, now.Add(-integration.SupportTicketRetention))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = repo.FindByQuestion(ctx, integration.MarketplaceMercadoLivre, "Q31")
	assert.ErrorIs(t, err, integration.ErrTicketNotFound)
	_, err = repo.FindByQuestion(ctx, integration.MarketplaceMercadoLivre, "Q29")
	assert.NoError(t, err)
	_, err = repo.FindByQuestion(ctx, integration.MarketplaceMercadoLivre, "Q31-ANSWERED")
	assert.NoError(t, err)
}

func TestGormSyncJobRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormSyncJobRepository(newTestDB(t))
	now := time.Now().UTC()
	storeID := uuid.New()

	job, err := integration.NewSyncJob(integration.JobTypeSyncOrders, &storeID, []byte(`{"storeId":"x"}`), integration.DefaultJobOptions(), now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, job))

	opts := integration.DefaultJobOptions()
	opts.Delay = time.Hour
	later, err := integration.NewSyncJob(integration.JobTypeSyncOrders, nil, nil, opts, now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, later))

	t.Run("finds due jobs only", func(t *testing.T) {
		due, err := repo.FindDue(ctx, integration.JobTypeSyncOrders, now, 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, job.ID, due[0].ID)
		assert.JSONEq(t, `{"storeId":"x"}`, string(due[0].Payload))

		due, err = repo.FindDue(ctx, integration.JobTypeSyncProducts, now, 10)
		require.NoError(t, err)
		assert.Empty(t, due)
	})

	t.Run("claims a job once", func(t *testing.T) {
		first := *job
		second := *job
		ok, err := repo.Claim(ctx, &first, now)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, first.Attempts)

		ok, err = repo.Claim(ctx, &second, now)
		require.NoError(t, err)
		assert.False(t, ok)

		pending, err := repo.ExistsPending(ctx, integration.JobTypeSyncOrders, &storeID)
		require.NoError(t, err)
		assert.True(t, pending)

		stats, err := repo.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Active)
		assert.Equal(t, int64(1), stats.Delayed)
	})

	t.Run("requeues only jobs whose lease expired", func(t *testing.T) {
		orphan, err := integration.NewSyncJob(integration.JobTypeRefreshTokens, nil, nil, integration.DefaultJobOptions(), now.Add(-2*time.Hour))
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, orphan))
		ok, err := repo.Claim(ctx, orphan, now.Add(-time.Hour))
		require.NoError(t, err)
		require.True(t, ok)

		n, err := repo.RequeueStale(ctx, now.Add(-11*time.Minute), now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		reloaded, err := repo.FindByID(ctx, orphan.ID)
		require.NoError(t, err)
		assert.Equal(t, integration.JobStatusWaiting, reloaded.Status)
		assert.Equal(t, 1, reloaded.Attempts)

		running, err := repo.FindByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, integration.JobStatusActive, running.Status)

		require.NoError(t, repo.Delete(ctx, orphan.ID))
	})

	t.Run("updates and deletes", func(t *testing.T) {
		reloaded, err := repo.FindByID(ctx, job.ID)
		require.NoError(t, err)
		reloaded.Start(now)
		reloaded.Complete(now)
		require.NoError(t, repo.Update(ctx, reloaded))

		stats, err := repo.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Completed)

		pending, err := repo.ExistsPending(ctx, integration.JobTypeSyncOrders, &storeID)
		require.NoError(t, err)
		assert.False(t, pending)

		require.NoError(t, repo.Delete(ctx, job.ID))
		_, err = repo.FindByID(ctx, job.ID)
		assert.ErrorIs(t, err, integration.ErrJobNotFound)
	})
}
