package inventory

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func testLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}

func seedProducts(t *testing.T, store *memory.Store, stock map[string]int) {
	t.Helper()
	now := time.Now().UTC()
	for id, qty := range stock {
		require.NoError(t, store.Products().Create(context.Background(), domain.Product{
			ID: id, Name: "product " + id, Price: decimal.NewFromInt(1), Stock: qty, CreatedAt: now, UpdatedAt: now,
		}))
	}
}

func stockOf(t *testing.T, store *memory.Store, id string) int {
	t.Helper()
	p, err := store.Products().Get(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestLedger_ReserveDecrementsEveryLine(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedProducts(t, store, map[string]int{"a": 5, "b": 3})
	ledger := NewLedger(testLogger())

	var reserved map[string]domain.Product
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Repositories) error {
		var err error
		reserved, err = ledger.Reserve(ctx, tx, []domain.StockLine{
			{ProductID: "b", Quantity: 1},
			{ProductID: "a", Quantity: 2},
			{ProductID: "b", Quantity: 1},
		})
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 3, reserved["a"].Stock)
	assert.Equal(t, 1, reserved["b"].Stock)
	assert.Equal(t, 3, stockOf(t, store, "a"))
	assert.Equal(t, 1, stockOf(t, store, "b"))
}

func TestLedger_ShortfallChangesNothing(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedProducts(t, store, map[string]int{"a": 5, "b": 1})
	ledger := NewLedger(testLogger())

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Repositories) error {
		_, err := ledger.Reserve(ctx, tx, []domain.StockLine{{ProductID: "a", Quantity: 2}, {ProductID: "b", Quantity: 2}})
		return err
	})

	var shortfall *domain.InsufficientStockError
	require.ErrorAs(t, err, &shortfall)
	assert.Equal(t, "b", shortfall.ProductID)
	assert.Equal(t, 2, shortfall.Requested)
	assert.Equal(t, 1, shortfall.Available)
	assert.True(t, domain.IsConflict(err))

	assert.Equal(t, 5, stockOf(t, store, "a"))
	assert.Equal(t, 1, stockOf(t, store, "b"))
}

func TestLedger_ReserveValidatesInput(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedProducts(t, store, map[string]int{"a": 5})
	ledger := NewLedger(nil)

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Repositories) error {
		_, err := ledger.Reserve(ctx, tx, []domain.StockLine{{ProductID: "a", Quantity: 0}})
		return err
	})
	require.ErrorIs(t, err, domain.ErrQuantityInvalid)

	err = store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Repositories) error {
		_, err := ledger.Reserve(ctx, tx, []domain.StockLine{{ProductID: "missing", Quantity: 1}})
		return err
	})
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestLedger_ReleaseRestocks(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedProducts(t, store, map[string]int{"a": 0})
	ledger := NewLedger(testLogger())

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Repositories) error {
		return ledger.Release(ctx, tx, []domain.StockLine{{ProductID: "a", Quantity: 4}})
	})
	require.NoError(t, err)
	assert.Equal(t, 4, stockOf(t, store, "a"))

	err = store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Repositories) error {
		return ledger.Release(ctx, tx, []domain.StockLine{{ProductID: "gone", Quantity: 1}})
	})
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestLedger_ConcurrentReservationsNeverOversell(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedProducts(t, store, map[string]int{"a": 10})
	ledger := NewLedger(testLogger())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Repositories) error {
				_, err := ledger.Reserve(ctx, tx, []domain.StockLine{{ProductID: "a", Quantity: 1}})
				return err
			})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			} else if !errors.Is(err, domain.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, success)
	assert.Equal(t, 0, stockOf(t, store, "a"))
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	rec := NewRecorder(nil)
	_, err := rec.Reserve(context.Background(), nil, []domain.StockLine{{ProductID: "a", Quantity: 1}})
	require.NoError(t, err)
	require.NoError(t, rec.Release(context.Background(), nil, []domain.StockLine{{ProductID: "a", Quantity: 1}}))

	reserve, release := rec.Calls()
	assert.Equal(t, 1, reserve)
	assert.Equal(t, 1, release)
	assert.Len(t, rec.Released(), 1)

	rec.ReserveErr = errors.New("reserve failed")
	_, err = rec.Reserve(context.Background(), nil, nil)
	require.Error(t, err)
}
