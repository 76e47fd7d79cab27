package mongosearch

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestOrderFilter(t *testing.T) {
	filter := orderFilter(domain.OrderSearch{
		Text:     "a.b",
		Status:   domain.OrderStatusShipped,
		Username: "Alice",
	})

	m := filter.Map()
	assert.Equal(t, "SHIPPED", m["status"])
	assert.Equal(t, primitive.Regex{Pattern: `^Alice$`, Options: "i"}, m["username"])

	or, ok := m["$or"].(bson.A)
	require.True(t, ok)
	assert.Len(t, or, 5)
	assert.Contains(t, or, bson.M{"order_number": primitive.Regex{Pattern: `a\.b`, Options: "i"}})
}

func TestProductFilter(t *testing.T) {
	min := decimal.RequireFromString("5")
	max := decimal.RequireFromString("10.50")

	m := productFilter(domain.ProductSearch{CategoryID: "c-1", InStockOnly: true, MinPrice: &min, MaxPrice: &max}).Map()
	assert.Equal(t, "c-1", m["category_id"])
	assert.Equal(t, bson.M{"$gt": 0}, m["stock"])
	assert.Equal(t, bson.M{"$gte": 5.0, "$lte": 10.5}, m["price"])
	assert.NotContains(t, m, "$or")

	assert.Empty(t, productFilter(domain.ProductSearch{Text: "   "}))
}

func TestCartFilter(t *testing.T) {
	min := decimal.NewFromInt(100)
	m := cartFilter(domain.CartSearch{Username: "bo", ProductID: "p-1", MinTotal: &min}).Map()

	assert.Equal(t, "p-1", m["product_ids"])
	assert.Equal(t, bson.M{"$gte": 100.0}, m["total_price"])
	assert.Equal(t, primitive.Regex{Pattern: "bo", Options: "i"}, m["username"])
}

func TestDocumentsKeepExactMoney(t *testing.T) {
	order := domain.OrderDocument{ID: "o-1", TotalAmount: decimal.RequireFromString("0.30"), Status: domain.OrderStatusPending}
	back := fromOrder(order).toDomain()
	assert.True(t, back.TotalAmount.Equal(order.TotalAmount))

	cart := domain.CartDocument{
		ID: "cart-1",
		Items: []domain.CartDocumentItem{
			{ProductID: "p-1", ProductPrice: decimal.RequireFromString("9.99"), Quantity: 2, Subtotal: decimal.RequireFromString("19.98")},
		},
		TotalItems: 2,
		TotalPrice: decimal.RequireFromString("19.98"),
	}
	stored := fromCart(cart)
	assert.Equal(t, []string{"p-1"}, stored.ProductIDs)

	restored := stored.toDomain()
	require.Len(t, restored.Items, 1)
	assert.True(t, restored.Items[0].Subtotal.Equal(decimal.RequireFromString("19.98")))
	assert.True(t, restored.TotalPrice.Equal(cart.TotalPrice))
}

func openIndexForIntegrationTest(t *testing.T) *Index {
	t.Helper()

	uri := os.Getenv("STOREFRONT_MONGO_TEST_URI")
	if uri == "" {
		t.Skip("STOREFRONT_MONGO_TEST_URI is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	idx, err := Connect(ctx, uri, fmt.Sprintf("storefront_test_%d", time.Now().UnixNano()))
	if err != nil {
		t.Skipf("mongo is not available: %v", err)
	}
	t.Cleanup(func() {
		_ = idx.db.Drop(context.Background())
		_ = idx.Close(context.Background())
	})
	return idx
}

func TestIndex_MongoUpsertSearchDelete(t *testing.T) {
	idx := openIndexForIntegrationTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, idx.UpsertProduct(ctx, domain.ProductDocument{ID: "p-1", Name: "Kettle", Price: decimal.RequireFromString("9.99"), Stock: 3, CategoryName: "Kitchen"}))
	require.NoError(t, idx.UpsertProduct(ctx, domain.ProductDocument{ID: "p-2", Name: "Mug", Price: decimal.RequireFromString("4.50")}))

	min := decimal.RequireFromString("5")
	products, err := idx.SearchProducts(ctx, domain.ProductSearch{MinPrice: &min})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "p-1", products[0].ID)

	inStock, err := idx.SearchProducts(ctx, domain.ProductSearch{InStockOnly: true, Text: "kitch"})
	require.NoError(t, err)
	require.Len(t, inStock, 1)

	require.NoError(t, idx.UpsertOrder(ctx, domain.OrderDocument{ID: "o-1", OrderNumber: "ORD-1-AAAAAA", Username: "alice", Status: domain.OrderStatusPending, OrderDate: now.Add(-time.Minute)}))
	require.NoError(t, idx.UpsertOrder(ctx, domain.OrderDocument{ID: "o-2", OrderNumber: "ORD-2-BBBBBB", Username: "alice", Status: domain.OrderStatusShipped, OrderDate: now}))
	require.NoError(t, idx.UpsertOrder(ctx, domain.OrderDocument{ID: "o-2", OrderNumber: "ORD-2-BBBBBB", Username: "alice", Status: domain.OrderStatusDelivered, OrderDate: now}))

	orders, err := idx.SearchOrders(ctx, domain.OrderSearch{Username: "ALICE"})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "o-2", orders[0].ID)
	assert.Equal(t, domain.OrderStatusDelivered, orders[0].Status)

	require.NoError(t, idx.DeleteOrder(ctx, "o-1"))
	orders, err = idx.SearchOrders(ctx, domain.OrderSearch{})
	require.NoError(t, err)
	require.Len(t, orders, 1)
}
