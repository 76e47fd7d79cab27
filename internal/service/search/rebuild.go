package search

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const rebuildOrderBatch = 500

// RebuildStats: число документов, записанных при пересборке.
type RebuildStats struct {
	Categories int
	Products   int
	Orders     int
	Carts      int
}

// Rebuild пересобирает все документы проекции из основного хранилища.
// Корзины находятся через товары, поэтому пустые корзины не попадают в проекцию.
func (p *Projector) Rebuild(ctx context.Context) (RebuildStats, error) {
	var stats RebuildStats

	categories, err := p.repos.Categories().List(ctx)
	if err != nil {
		return stats, fmt.Errorf("list categories: %w", err)
	}
	for _, category := range categories {
		if _, err := p.projectCategory(ctx, category.ID); err != nil {
			return stats, err
		}
		stats.Categories++
	}

	products, err := p.repos.Products().List(ctx)
	if err != nil {
		return stats, fmt.Errorf("list products: %w", err)
	}
	cartOwners := make(map[string]struct{})
	for _, product := range products {
		if _, err := p.projectProduct(ctx, product.ID); err != nil {
			return stats, err
		}
		stats.Products++

		carts, err := p.repos.Carts().ListByProduct(ctx, product.ID)
		if err != nil {
			return stats, fmt.Errorf("list carts with product %s: %w", product.ID, err)
		}
		for _, cart := range carts {
			cartOwners[cart.UserID] = struct{}{}
		}
	}

	for offset := 0; ; offset += rebuildOrderBatch {
		batch, err := p.repos.Orders().List(ctx, domain.OrderFilter{Limit: rebuildOrderBatch, Offset: offset})
		if err != nil {
			return stats, fmt.Errorf("list orders: %w", err)
		}
		for _, order := range batch {
			if _, err := p.projectOrder(ctx, order.ID); err != nil {
				return stats, err
			}
			stats.Orders++
		}
		if len(batch) < rebuildOrderBatch {
			break
		}
	}

	for userID := range cartOwners {
		if _, err := p.projectCart(ctx, userID); err != nil {
			return stats, err
		}
		stats.Carts++
	}

	p.logger.WithFields(log.Fields{
		"categories": stats.Categories,
		"products":   stats.Products,
		"orders":     stats.Orders,
		"carts":      stats.Carts,
	}).Info("search projection rebuilt")
	return stats, nil
}
