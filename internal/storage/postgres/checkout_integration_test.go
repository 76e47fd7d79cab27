package postgres

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/inventory"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
)

type checkoutFixture struct {
	store  *Store
	carts  *cart.Service
	orders *orders.Service
}

func newCheckoutFixture(t *testing.T) checkoutFixture {
	t.Helper()
	logger := log.New()
	logger.SetOutput(io.Discard)
	entry := logger.WithField("test", t.Name())

	store := openPostgresStoreForIntegrationTest(t)
	return checkoutFixture{
		store:  store,
		carts:  cart.NewService(store, entry),
		orders: orders.NewService(store, inventory.NewLedger(entry), orders.WithLogger(entry)),
	}
}

func (f checkoutFixture) addUser(t *testing.T, id, username string) {
	t.Helper()
	user := domain.User{ID: id, Username: username, Email: username + "@example.com", Role: domain.RoleUser, CreatedAt: time.Now().UTC()}
	require.NoError(t, f.store.Users().Create(context.Background(), user))
}

func (f checkoutFixture) addProduct(t *testing.T, id string, stock int) {
	t.Helper()
	now := time.Now().UTC()
	product := domain.Product{ID: id, Name: "product " + id, Price: decimal.RequireFromString("3.50"), Stock: stock, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, f.store.Products().Create(context.Background(), product))
}

func (f checkoutFixture) stock(t *testing.T, id string) int {
	t.Helper()
	product, err := f.store.Products().Get(context.Background(), id)
	require.NoError(t, err)
	return product.Stock
}

// concurrently запускает fn в n горутинах одновременно и возвращает их ошибки.
func concurrently(n int, fn func(i int) error) []error {
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = fn(i)
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func TestCheckout_PostgresLastUnitSoldOnce(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	f.addProduct(t, "p-last", 1)
	buyers := []string{"u-1", "u-2"}
	for i, id := range buyers {
		f.addUser(t, id, []string{"alice", "bob"}[i])
		_, err := f.carts.Add(ctx, id, "p-last", 1)
		require.NoError(t, err)
	}

	errs := concurrently(len(buyers), func(i int) error {
		_, err := f.orders.CreateOrder(ctx, buyers[i], "1 Main St", "")
		return err
	})

	var placed, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			placed++
		case errors.Is(err, domain.ErrInsufficientStock):
			rejected++
		default:
			t.Fatalf("unexpected checkout error: %v", err)
		}
	}
	require.Equal(t, 1, placed)
	require.Equal(t, 1, rejected)
	require.Equal(t, 0, f.stock(t, "p-last"))

	count, err := f.store.Orders().Count(ctx, domain.OrderFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestCheckout_PostgresOppositeLineOrderDoesNotDeadlock(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	const rounds = 5
	f.addProduct(t, "p-a", 100)
	f.addProduct(t, "p-b", 100)
	f.addUser(t, "u-1", "alice")
	f.addUser(t, "u-2", "bob")

	for round := 0; round < rounds; round++ {
		// Корзины собираются в разном порядке: {A,B} и {B,A}.
		_, err := f.carts.Add(ctx, "u-1", "p-a", 1)
		require.NoError(t, err)
		_, err = f.carts.Add(ctx, "u-1", "p-b", 1)
		require.NoError(t, err)
		_, err = f.carts.Add(ctx, "u-2", "p-b", 1)
		require.NoError(t, err)
		_, err = f.carts.Add(ctx, "u-2", "p-a", 1)
		require.NoError(t, err)

		errs := concurrently(2, func(i int) error {
			_, err := f.orders.CreateOrder(ctx, []string{"u-1", "u-2"}[i], "1 Main St", "")
			return err
		})
		for _, err := range errs {
			require.NoError(t, err, "round %d", round)
		}
	}

	require.Equal(t, 100-2*rounds, f.stock(t, "p-a"))
	require.Equal(t, 100-2*rounds, f.stock(t, "p-b"))
}

func TestCheckout_PostgresSameCartCheckedOutOnce(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	f.addProduct(t, "p-1", 10)
	f.addUser(t, "u-1", "alice")
	_, err := f.carts.Add(ctx, "u-1", "p-1", 2)
	require.NoError(t, err)

	errs := concurrently(2, func(int) error {
		_, err := f.orders.CreateOrder(ctx, "u-1", "1 Main St", "")
		return err
	})

	var placed, empty int
	for _, err := range errs {
		switch {
		case err == nil:
			placed++
		case errors.Is(err, domain.ErrEmptyCart):
			empty++
		default:
			t.Fatalf("unexpected checkout error: %v", err)
		}
	}
	require.Equal(t, 1, placed)
	require.Equal(t, 1, empty)
	require.Equal(t, 8, f.stock(t, "p-1"))

	count, err := f.orders.CountUserOrders(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestCart_PostgresConcurrentFirstAddsKeepBothLines(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	products := []string{"p-1", "p-2", "p-3"}
	for _, id := range products {
		f.addProduct(t, id, 5)
	}
	f.addUser(t, "u-1", "alice")

	errs := concurrently(len(products), func(i int) error {
		_, err := f.carts.Add(ctx, "u-1", products[i], 1)
		return err
	})
	for _, err := range errs {
		require.NoError(t, err)
	}

	loaded, err := f.store.Carts().GetByUser(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, loaded.Lines, len(products))
}

func TestCart_PostgresAddDuringCheckoutIsNotLost(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	f.addProduct(t, "p-1", 10)
	f.addProduct(t, "p-2", 10)
	f.addUser(t, "u-1", "alice")
	_, err := f.carts.Add(ctx, "u-1", "p-1", 1)
	require.NoError(t, err)

	var order domain.Order
	errs := concurrently(2, func(i int) error {
		if i == 0 {
			var err error
			order, err = f.orders.CreateOrder(ctx, "u-1", "1 Main St", "")
			return err
		}
		_, err := f.carts.Add(ctx, "u-1", "p-2", 1)
		return err
	})
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	loaded, err := f.store.Carts().GetByUser(ctx, "u-1")
	require.NoError(t, err)

	// p-2 либо попал в заказ, либо остался в корзине.
	_, inCart := loaded.Line("p-2")
	inOrder := false
	for _, line := range order.Lines {
		if line.ProductID == "p-2" {
			inOrder = true
		}
	}
	require.True(t, inCart != inOrder, "p-2 in cart=%v in order=%v", inCart, inOrder)
}

func TestCart_PostgresCreateKeepsExistingCart(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	user, product := seedCatalog(t, store, now)

	existing := domain.Cart{ID: "cart-1", UserID: user.ID, CreatedAt: now, UpdatedAt: now}
	_, err := existing.Add(product.ID, 1, now)
	require.NoError(t, err)
	require.NoError(t, store.Carts().Save(ctx, existing))

	require.NoError(t, store.Carts().Create(ctx, domain.Cart{ID: "cart-2", UserID: user.ID, CreatedAt: now, UpdatedAt: now}))
	require.ErrorIs(t, store.Carts().Create(ctx, domain.Cart{ID: "cart-3", UserID: "missing", CreatedAt: now, UpdatedAt: now}), domain.ErrUserNotFound)

	// Save под чужим id пишет позиции в корзину, уже лежащую в базе.
	stale := domain.Cart{ID: "cart-stale", UserID: user.ID, CreatedAt: now, UpdatedAt: now}
	_, err = stale.Add(product.ID, 3, now)
	require.NoError(t, err)
	require.NoError(t, store.Carts().Save(ctx, stale))

	loaded, err := store.Carts().GetByUserForUpdate(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "cart-1", loaded.ID)
	require.Len(t, loaded.Lines, 1)
	require.Equal(t, 3, loaded.Lines[0].Quantity)
}
