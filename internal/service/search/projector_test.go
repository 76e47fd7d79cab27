package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type projectionFixture struct {
	store     *memory.Store
	index     *memory.SearchIndex
	projector *Projector
}

func newProjectionFixture(t *testing.T, options ...Option) *projectionFixture {
	t.Helper()

	store := memory.NewStore()
	index := memory.NewSearchIndex()
	options = append([]Option{WithLogger(testLogger())}, options...)
	f := &projectionFixture{store: store, index: index, projector: NewProjector(store, index, options...)}

	ctx := context.Background()
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.Users().Create(ctx, domain.User{ID: "u1", Username: "alice", Role: domain.RoleUser, CreatedAt: now}))
	require.NoError(t, store.Categories().Create(ctx, domain.Category{ID: "c1", Name: "Kitchen", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, store.Products().Create(ctx, domain.Product{
		ID: "p1", Name: "Kettle", Price: decimal.RequireFromString("24.90"), Stock: 4, CategoryID: "c1", CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.Products().Create(ctx, domain.Product{
		ID: "p2", Name: "Mug", Price: decimal.RequireFromString("3.50"), Stock: 0, CreatedAt: now, UpdatedAt: now,
	}))
	return f
}

func (f *projectionFixture) publish(t *testing.T, ref domain.ProjectionRef) error {
	t.Helper()
	msg := domain.NewProjectionMessage(ref.AggregateType, ref.AggregateID, ref.Deleted, time.Now())
	return f.projector.Publish(context.Background(), msg)
}

func TestProjector_ProductAndCategoryDocuments(t *testing.T) {
	t.Parallel()

	f := newProjectionFixture(t)
	require.NoError(t, f.publish(t, domain.ProductRef("p1")))
	require.NoError(t, f.publish(t, domain.CategoryRef("c1")))

	products, err := f.index.SearchProducts(context.Background(), domain.ProductSearch{Text: "kitchen"})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Kettle", products[0].Name)
	assert.Equal(t, "Kitchen", products[0].CategoryName)
	assert.True(t, products[0].Price.Equal(decimal.RequireFromString("24.90")))

	categories, err := f.index.SearchCategories(context.Background(), domain.CategorySearch{Name: "kit"})
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, 1, categories[0].ProductCount)
}

func TestProjector_MissingAggregateDeletesDocument(t *testing.T) {
	t.Parallel()

	f := newProjectionFixture(t)
	ctx := context.Background()
	require.NoError(t, f.publish(t, domain.ProductRef("p2")))

	require.NoError(t, f.store.Products().Delete(ctx, "p2"))
	require.NoError(t, f.publish(t, domain.ProductRef("p2")))

	products, err := f.index.SearchProducts(ctx, domain.ProductSearch{})
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestProjector_DeleteEventForExistingAggregateUpserts(t *testing.T) {
	t.Parallel()

	f := newProjectionFixture(t)
	require.NoError(t, f.publish(t, domain.ProjectionRef{AggregateType: domain.AggregateProduct, AggregateID: "p1", Deleted: true}))

	products, err := f.index.SearchProducts(context.Background(), domain.ProductSearch{})
	require.NoError(t, err)
	require.Len(t, products, 1, "stale delete must not remove a live product")
}

func TestProjector_OrderDocumentIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newProjectionFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)

	product, err := f.store.Products().Get(ctx, "p1")
	require.NoError(t, err)
	order, err := domain.NewOrder("o1", "ORD-1-AAAAAA", "u1",
		[]domain.OrderLine{domain.NewOrderLine("l1", product, 2)}, "Main st. 1", "", now)
	require.NoError(t, err)
	require.NoError(t, f.store.Orders().Create(ctx, order))

	for i := 0; i < 3; i++ {
		require.NoError(t, f.publish(t, domain.OrderRef("o1")))
	}

	docs, err := f.index.SearchOrders(ctx, domain.OrderSearch{Username: "ALICE"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "alice", docs[0].Username)
	assert.Equal(t, "Pending", docs[0].StatusLabel)
	assert.Equal(t, 2, docs[0].ItemCount)
	assert.Equal(t, "49.80", docs[0].TotalAmount.StringFixed(2))

	require.NoError(t, order.SetStatus(domain.OrderStatusShipped, now.Add(time.Hour)))
	require.NoError(t, f.store.Orders().Update(ctx, order))
	require.NoError(t, f.publish(t, domain.OrderRef("o1")))

	docs, err = f.index.SearchOrders(ctx, domain.OrderSearch{Status: domain.OrderStatusShipped})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Shipped", docs[0].StatusLabel)
}

func TestProjector_CartDocument(t *testing.T) {
	t.Parallel()

	f := newProjectionFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	cart := domain.Cart{ID: "cart-1", UserID: "u1", CreatedAt: now, UpdatedAt: now, Lines: []domain.CartLine{
		{ProductID: "p1", Quantity: 2, AddedAt: now},
		{ProductID: "p2", Quantity: 3, AddedAt: now},
	}}
	require.NoError(t, f.store.Carts().Save(ctx, cart))
	require.NoError(t, f.publish(t, domain.CartRef("u1")))

	min := decimal.RequireFromString("60")
	carts, err := f.index.SearchCarts(ctx, domain.CartSearch{Username: "ali", ProductID: "p2", MinTotal: &min})
	require.NoError(t, err)
	require.Len(t, carts, 1)
	assert.Equal(t, 5, carts[0].TotalItems)
	assert.Equal(t, "60.30", carts[0].TotalPrice.StringFixed(2))
	require.Len(t, carts[0].Items, 2)
	assert.Equal(t, "Kitchen", carts[0].Items[0].CategoryName)

	cart.Clear(now)
	require.NoError(t, f.store.Carts().Save(ctx, cart))
	require.NoError(t, f.publish(t, domain.CartRef("u1")))

	carts, err = f.index.SearchCarts(ctx, domain.CartSearch{})
	require.NoError(t, err)
	assert.Empty(t, carts, "empty cart is removed from the projection")
}

func TestProjector_UnknownAggregate(t *testing.T) {
	t.Parallel()

	f := newProjectionFixture(t)
	err := f.projector.Publish(context.Background(), domain.OutboxMessage{
		ID: "m1", AggregateType: "invoice", AggregateID: "i1", EventType: domain.EventProjectionUpsert, Payload: []byte("{not json"),
	})
	require.ErrorIs(t, err, domain.ErrUnknownAggregate)

	_, err = DecodeEvent(domain.OutboxMessage{ID: "m2"})
	require.ErrorIs(t, err, domain.ErrUnknownAggregate)
}

// flakyIndex отказывает на записи, пока down == true.
type flakyIndex struct {
	*memory.SearchIndex
	down  bool
	calls int
}

func (f *flakyIndex) UpsertProduct(ctx context.Context, doc domain.ProductDocument) error {
	f.calls++
	if f.down {
		return errors.New("connection refused")
	}
	return f.SearchIndex.UpsertProduct(ctx, doc)
}

func TestProjector_BreakerFailsFastWhileStoreIsDown(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	require.NoError(t, store.Products().Create(context.Background(), domain.Product{ID: "p1", Name: "Kettle", Price: decimal.NewFromInt(1)}))
	index := &flakyIndex{SearchIndex: memory.NewSearchIndex(), down: true}
	breaker := NewBreaker(2, time.Hour, nil, testLogger())
	projector := NewProjector(store, index, WithLogger(testLogger()), WithBreaker(breaker))

	apply := func() error {
		return projector.Apply(context.Background(), domain.ProjectionEvent{AggregateType: domain.AggregateProduct, AggregateID: "p1"})
	}

	require.Error(t, apply())
	require.Error(t, apply())
	err := apply()
	require.ErrorIs(t, err, domain.ErrProjectionUnavailable)
	assert.Equal(t, 2, index.calls)
	assert.Same(t, breaker, projector.Breaker())
}

func TestProjector_Rebuild(t *testing.T) {
	t.Parallel()

	f := newProjectionFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	product, err := f.store.Products().Get(ctx, "p2")
	require.NoError(t, err)
	order, err := domain.NewOrder("o1", "ORD-2-BBBBBB", "u1", []domain.OrderLine{domain.NewOrderLine("l1", product, 1)}, "addr", "", now)
	require.NoError(t, err)
	require.NoError(t, f.store.Orders().Create(ctx, order))
	require.NoError(t, f.store.Carts().Save(ctx, domain.Cart{ID: "cart-1", UserID: "u1", Lines: []domain.CartLine{{ProductID: "p1", Quantity: 1}}}))

	stats, err := f.projector.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, RebuildStats{Categories: 1, Products: 2, Orders: 1, Carts: 1}, stats)

	orders, err := f.index.SearchOrders(ctx, domain.OrderSearch{Text: "BBBBBB"})
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	inStock, err := f.index.SearchProducts(ctx, domain.ProductSearch{InStockOnly: true})
	require.NoError(t, err)
	require.Len(t, inStock, 1)
	assert.Equal(t, "p1", inStock[0].ID)
}
