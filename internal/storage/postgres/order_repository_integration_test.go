package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func seedCatalog(t *testing.T, store *Store, now time.Time) (domain.User, domain.Product) {
	t.Helper()
	ctx := context.Background()

	user := domain.User{ID: "u-1", Username: "alice", Email: "alice@example.com", Role: domain.RoleUser, CreatedAt: now}
	require.NoError(t, store.Users().Create(ctx, user))
	require.NoError(t, store.Categories().Create(ctx, domain.Category{ID: "c-1", Name: "Kitchen", CreatedAt: now, UpdatedAt: now}))

	product := domain.Product{
		ID: "p-1", Name: "Kettle", Description: "steel", Price: decimal.RequireFromString("9.99"),
		Stock: 10, CategoryID: "c-1", CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.Products().Create(ctx, product))
	return user, product
}

func TestCatalog_PostgresUsersCategoriesProducts(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	user, product := seedCatalog(t, store, now)

	require.ErrorIs(t, store.Users().Create(ctx, domain.User{ID: "u-2", Username: "ALICE", Role: domain.RoleUser, CreatedAt: now}), domain.ErrUsernameTaken)
	got, err := store.Users().GetByUsername(ctx, "Alice")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
	_, err = store.Users().Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	loaded, err := store.Products().Get(ctx, product.ID)
	require.NoError(t, err)
	require.True(t, loaded.Price.Equal(product.Price), "price %s", loaded.Price)
	require.Equal(t, "c-1", loaded.CategoryID)

	require.ErrorIs(t, store.Products().Create(ctx, domain.Product{ID: "p-x", Name: "x", CategoryID: "nope", CreatedAt: now, UpdatedAt: now}), domain.ErrCategoryNotFound)
	require.ErrorIs(t, store.Products().SetStock(ctx, product.ID, -1), domain.ErrStockNegative)
	require.ErrorIs(t, store.Categories().Delete(ctx, "c-1"), domain.ErrCategoryHasProducts)

	byCategory, err := store.Products().ListByCategory(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, byCategory, 1)

	require.NoError(t, store.Products().Create(ctx, domain.Product{ID: "p-0", Name: "Cup", Price: decimal.NewFromInt(2), Stock: 1, CreatedAt: now, UpdatedAt: now}))
	locked, err := store.Products().LockForUpdate(ctx, []string{"p-1", "p-0", "p-1"})
	require.NoError(t, err)
	require.Equal(t, []string{"p-0", "p-1"}, []string{locked[0].ID, locked[1].ID})

	_, err = store.Products().LockForUpdate(ctx, []string{"p-1", "missing"})
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestCart_PostgresSaveAndListByProduct(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	user, product := seedCatalog(t, store, now)

	_, err := store.Carts().GetByUser(ctx, user.ID)
	require.ErrorIs(t, err, domain.ErrCartNotFound)

	cart := domain.Cart{ID: "cart-1", UserID: user.ID, CreatedAt: now, UpdatedAt: now}
	_, err = cart.Add(product.ID, 2, now)
	require.NoError(t, err)
	require.NoError(t, store.Carts().Save(ctx, cart))

	_, err = cart.Add(product.ID, 1, now.Add(time.Second))
	require.NoError(t, err)
	require.NoError(t, store.Carts().Save(ctx, cart))

	loaded, err := store.Carts().GetByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Lines, 1)
	require.Equal(t, 3, loaded.Lines[0].Quantity)

	carts, err := store.Carts().ListByProduct(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, carts, 1)

	_, err = cart.Add("missing", 1, now)
	require.NoError(t, err)
	require.ErrorIs(t, store.Carts().Save(ctx, cart), domain.ErrProductNotFound)
}

func TestOrder_PostgresCreateGetListAndUpdate(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	user, product := seedCatalog(t, store, now)

	newOrder := func(id, number string, placed time.Time) domain.Order {
		line := domain.NewOrderLine(id+"-l1", product, 2)
		order, err := domain.NewOrder(id, number, user.ID, []domain.OrderLine{line}, "1 Main St", "", placed)
		require.NoError(t, err)
		return order
	}

	first := newOrder("o-1", "ORD-1-AAAAAA", now.Add(-2*time.Minute))
	second := newOrder("o-2", "ORD-2-BBBBBB", now.Add(-time.Minute))
	require.NoError(t, store.Orders().Create(ctx, first))
	require.NoError(t, store.Orders().Create(ctx, second))

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		return tx.Orders().Create(ctx, newOrder("o-3", first.OrderNumber, now))
	})
	require.ErrorIs(t, err, domain.ErrOrderNumberTaken)

	got, err := store.Orders().GetByNumber(ctx, first.OrderNumber)
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)
	require.Len(t, got.Lines, 1)
	require.True(t, got.TotalAmount.Equal(decimal.RequireFromString("19.98")))
	require.Empty(t, got.ValidateInvariants())

	listed, err := store.Orders().List(ctx, domain.OrderFilter{UserID: user.ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, second.ID, listed[0].ID)

	delivered := now
	got.Status = domain.OrderStatusDelivered
	got.DeliveryDate = &delivered
	got.Notes = "left at door"
	got.UpdatedAt = now
	require.NoError(t, store.Orders().Update(ctx, got))

	reloaded, err := store.Orders().Get(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusDelivered, reloaded.Status)
	require.NotNil(t, reloaded.DeliveryDate)
	require.True(t, reloaded.DeliveryDate.Equal(delivered))

	second.Status = domain.OrderStatusCancelled
	second.UpdatedAt = now
	require.NoError(t, store.Orders().Update(ctx, second))

	spent, err := store.Orders().SumTotal(ctx, domain.OrderFilter{UserID: user.ID, ExcludeStatus: domain.OrderStatusCancelled})
	require.NoError(t, err)
	require.True(t, spent.Equal(decimal.RequireFromString("19.98")), "spent %s", spent)

	count, err := store.Orders().Count(ctx, domain.OrderFilter{Status: domain.OrderStatusCancelled})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	inRange, err := store.Orders().List(ctx, domain.OrderFilter{From: now.Add(-90 * time.Second), To: now})
	require.NoError(t, err)
	require.Len(t, inRange, 1)

	require.ErrorIs(t, store.Orders().Update(ctx, domain.Order{ID: "missing"}), domain.ErrOrderNotFound)
}

func TestTimeline_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, store.Timeline().Append(ctx, domain.TimelineEvent{OrderID: "o-1", Type: domain.TimelineOrderCreated, Occurred: now}))
	require.NoError(t, store.Timeline().Append(ctx, domain.TimelineEvent{OrderID: "o-1", Type: domain.TimelineCancelled, Reason: "changed mind", Occurred: now.Add(time.Second)}))

	events, err := store.Timeline().List(ctx, "o-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, domain.TimelineOrderCreated, events[0].Type)
	require.Equal(t, "changed mind", events[1].Reason)
}
