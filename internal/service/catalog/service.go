// Package catalog управляет категориями и товарами.
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// CategoryInput: изменяемые поля категории.
type CategoryInput struct {
	Name        string
	Description string
}

// ProductInput: изменяемые поля товара. Пустой CategoryID означает товар вне категорий.
type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	CategoryID  string
}

// Service выполняет изменения каталога и ставит события проекции в outbox той же транзакцией.
type Service struct {
	store  domain.Store
	logger *log.Entry
	now    func() time.Time
}

// NewService создаёт сервис каталога.
func NewService(store domain.Store, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog-service")
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (domain.Category, error) {
	now := s.now().UTC()
	category := domain.Category{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := category.Validate(); err != nil {
		return domain.Category{}, err
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		if err := tx.Categories().Create(ctx, category); err != nil {
			return err
		}
		_, err := domain.EnqueueProjection(ctx, tx.Outbox(), now, domain.CategoryRef(category.ID))
		return err
	})
	if err != nil {
		return domain.Category{}, err
	}
	s.logger.WithField("category_id", category.ID).Info("category created")
	return category, nil
}

// UpdateCategory меняет название и описание. Документы товаров категории тоже обновляются.
func (s *Service) UpdateCategory(ctx context.Context, id string, in CategoryInput) (domain.Category, error) {
	var category domain.Category
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		var err error
		category, err = tx.Categories().Get(ctx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		category.Name = strings.TrimSpace(in.Name)
		category.Description = strings.TrimSpace(in.Description)
		category.UpdatedAt = now
		if err := category.Validate(); err != nil {
			return err
		}
		if err := tx.Categories().Update(ctx, category); err != nil {
			return err
		}

		products, err := tx.Products().ListByCategory(ctx, id)
		if err != nil {
			return err
		}
		refs := []domain.ProjectionRef{domain.CategoryRef(id)}
		for _, product := range products {
			refs = append(refs, domain.ProductRef(product.ID))
		}
		_, err = domain.EnqueueProjection(ctx, tx.Outbox(), now, refs...)
		return err
	})
	if err != nil {
		return domain.Category{}, err
	}
	return category, nil
}

// DeleteCategory удаляет категорию без товаров. Иначе domain.ErrCategoryHasProducts.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		if _, err := tx.Categories().Get(ctx, id); err != nil {
			return err
		}
		count, err := tx.Categories().CountProducts(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrCategoryHasProducts
		}
		if err := tx.Categories().Delete(ctx, id); err != nil {
			return err
		}
		_, err = domain.EnqueueProjection(ctx, tx.Outbox(), s.now().UTC(),
			domain.ProjectionRef{AggregateType: domain.AggregateCategory, AggregateID: id, Deleted: true})
		return err
	})
	if err != nil {
		return err
	}
	s.logger.WithField("category_id", id).Info("category deleted")
	return nil
}

func (s *Service) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	return s.store.Categories().Get(ctx, id)
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.store.Categories().List(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (domain.Product, error) {
	now := s.now().UTC()
	product := domain.Product{
		ID:        uuid.NewString(),
		CreatedAt: now,
	}
	applyProductInput(&product, in, now)
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		if err := ensureCategory(ctx, tx, product.CategoryID); err != nil {
			return err
		}
		if err := tx.Products().Create(ctx, product); err != nil {
			return err
		}
		_, err := domain.EnqueueProjection(ctx, tx.Outbox(), now,
			domain.ProductRef(product.ID), domain.CategoryRef(product.CategoryID))
		return err
	})
	if err != nil {
		return domain.Product{}, err
	}
	s.logger.WithFields(log.Fields{"product_id": product.ID, "stock": product.Stock}).Info("product created")
	return product, nil
}

// UpdateProduct перезаписывает поля товара. Корзины с товаром переиндексируются,
// так как их итоги зависят от цены.
func (s *Service) UpdateProduct(ctx context.Context, id string, in ProductInput) (domain.Product, error) {
	var product domain.Product
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		var err error
		product, err = lockProduct(ctx, tx, id)
		if err != nil {
			return err
		}
		previousCategory := product.CategoryID
		now := s.now().UTC()
		applyProductInput(&product, in, now)
		if err := product.Validate(); err != nil {
			return err
		}
		if err := ensureCategory(ctx, tx, product.CategoryID); err != nil {
			return err
		}
		if err := tx.Products().Update(ctx, product); err != nil {
			return err
		}

		carts, err := tx.Carts().ListByProduct(ctx, id)
		if err != nil {
			return err
		}
		refs := []domain.ProjectionRef{
			domain.ProductRef(id),
			domain.CategoryRef(previousCategory),
			domain.CategoryRef(product.CategoryID),
		}
		for _, cart := range carts {
			refs = append(refs, domain.CartRef(cart.UserID))
		}
		_, err = domain.EnqueueProjection(ctx, tx.Outbox(), now, refs...)
		return err
	})
	if err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

// DeleteProduct удаляет товар и убирает его из всех корзин в той же транзакции.
// Позиции уже оформленных заказов хранят копию названия и цены и не затрагиваются.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	removedFrom := 0
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		product, err := lockProduct(ctx, tx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()

		carts, err := tx.Carts().ListByProduct(ctx, id)
		if err != nil {
			return err
		}
		refs := []domain.ProjectionRef{
			{AggregateType: domain.AggregateProduct, AggregateID: id, Deleted: true},
			domain.CategoryRef(product.CategoryID),
		}
		for _, cart := range carts {
			if err := cart.Remove(id, now); err != nil && !errors.Is(err, domain.ErrProductNotInCart) {
				return err
			}
			if err := tx.Carts().Save(ctx, cart); err != nil {
				return err
			}
			refs = append(refs, domain.CartRef(cart.UserID))
		}
		removedFrom = len(carts)

		if err := tx.Products().Delete(ctx, id); err != nil {
			return err
		}
		_, err = domain.EnqueueProjection(ctx, tx.Outbox(), now, refs...)
		return err
	})
	if err != nil {
		return err
	}
	s.logger.WithFields(log.Fields{"product_id": id, "carts": removedFrom}).Info("product deleted")
	return nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return s.store.Products().Get(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.store.Products().List(ctx)
}

func applyProductInput(product *domain.Product, in ProductInput, now time.Time) {
	product.Name = strings.TrimSpace(in.Name)
	product.Description = strings.TrimSpace(in.Description)
	product.Price = in.Price
	product.Stock = in.Stock
	product.CategoryID = strings.TrimSpace(in.CategoryID)
	product.UpdatedAt = now
}

// lockProduct блокирует строку товара, чтобы правка остатка не пересеклась с оформлением заказа.
func lockProduct(ctx context.Context, tx domain.Repositories, id string) (domain.Product, error) {
	locked, err := tx.Products().LockForUpdate(ctx, []string{id})
	if err != nil {
		return domain.Product{}, err
	}
	return locked[0], nil
}

func ensureCategory(ctx context.Context, tx domain.Repositories, id string) error {
	if id == "" {
		return nil
	}
	_, err := tx.Categories().Get(ctx, id)
	return err
}
