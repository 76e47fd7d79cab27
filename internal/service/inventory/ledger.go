// Package inventory ведёт складские остатки товаров внутри единицы работы.
package inventory

import (
	"context"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Ledger реализует domain.InventoryLedger поверх ProductRepository текущей транзакции.
type Ledger struct {
	logger *log.Entry
}

// NewLedger создаёт складской журнал.
func NewLedger(logger *log.Entry) *Ledger {
	if logger == nil {
		logger = log.WithField("component", "inventory")
	}
	return &Ledger{logger: logger}
}

// Reserve блокирует товары в порядке id, проверяет остаток по каждой строке
// и только затем списывает. При нехватке не меняет ни одного товара.
func (l *Ledger) Reserve(ctx context.Context, tx domain.Repositories, lines []domain.StockLine) (map[string]domain.Product, error) {
	demand, err := mergeLines(lines)
	if err != nil {
		return nil, err
	}

	locked, err := tx.Products().LockForUpdate(ctx, productIDs(demand))
	if err != nil {
		return nil, err
	}

	reserved := make(map[string]domain.Product, len(locked))
	for _, product := range locked {
		next, err := product.Reserve(demand[product.ID])
		if err != nil {
			l.logger.WithFields(log.Fields{
				"product_id": product.ID,
				"requested":  demand[product.ID],
				"available":  product.Stock,
			}).Info("reservation rejected")
			return nil, err
		}
		reserved[product.ID] = next
	}

	for _, id := range productIDs(demand) {
		if err := tx.Products().SetStock(ctx, id, reserved[id].Stock); err != nil {
			return nil, fmt.Errorf("write reserved stock for %s: %w", id, err)
		}
	}
	return reserved, nil
}

// Release возвращает количества на склад. Товары блокируются в том же порядке, что и при резерве.
func (l *Ledger) Release(ctx context.Context, tx domain.Repositories, lines []domain.StockLine) error {
	supply, err := mergeLines(lines)
	if err != nil {
		return err
	}

	locked, err := tx.Products().LockForUpdate(ctx, productIDs(supply))
	if err != nil {
		return err
	}

	for _, product := range locked {
		next, err := product.Release(supply[product.ID])
		if err != nil {
			return err
		}
		if err := tx.Products().SetStock(ctx, product.ID, next.Stock); err != nil {
			return fmt.Errorf("write released stock for %s: %w", product.ID, err)
		}
	}
	return nil
}

// mergeLines суммирует количества по товару.
func mergeLines(lines []domain.StockLine) (map[string]int, error) {
	merged := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, domain.ErrQuantityInvalid
		}
		merged[line.ProductID] += line.Quantity
	}
	return merged, nil
}

func productIDs(quantities map[string]int) []string {
	ids := make([]string, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var _ domain.InventoryLedger = (*Ledger)(nil)
