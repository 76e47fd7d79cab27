// Package cart управляет корзинами покупателей.
package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/search"
)

// Service изменяет корзины. Добавление проверяет остаток, но не резервирует его:
// остаток списывается только при оформлении заказа.
type Service struct {
	store  domain.Store
	logger *log.Entry
	now    func() time.Time
}

func NewService(store domain.Store, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "cart-service")
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Get возвращает корзину с данными товаров. Отсутствующая корзина отдаётся пустой.
func (s *Service) Get(ctx context.Context, userID string) (domain.CartDocument, error) {
	if _, err := s.store.Users().Get(ctx, userID); err != nil {
		return domain.CartDocument{}, err
	}
	cart, err := s.store.Carts().GetByUser(ctx, userID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return domain.CartDocument{UserID: userID, Items: []domain.CartDocumentItem{}}, nil
	}
	if err != nil {
		return domain.CartDocument{}, err
	}
	return search.BuildCartDocument(ctx, s.store, cart)
}

// Add кладёт товар в корзину или увеличивает количество по уже лежащей позиции.
// Итоговое количество не может превышать текущий остаток товара.
func (s *Service) Add(ctx context.Context, userID, productID string, qty int) (domain.CartDocument, error) {
	if qty <= 0 {
		return domain.CartDocument{}, domain.ErrQuantityInvalid
	}

	var doc domain.CartDocument
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		if _, err := tx.Users().Get(ctx, userID); err != nil {
			return err
		}
		product, err := tx.Products().Get(ctx, productID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		cart, err := loadOrNewCart(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		existing, _ := cart.Line(productID)
		if wanted := existing.Quantity + qty; wanted > product.Stock {
			return &domain.InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   wanted,
				Available:   product.Stock,
			}
		}
		if _, err := cart.Add(productID, qty, now); err != nil {
			return err
		}

		doc, err = s.save(ctx, tx, cart, now)
		return err
	})
	if err != nil {
		return domain.CartDocument{}, err
	}
	s.logger.WithFields(log.Fields{"user_id": userID, "product_id": productID, "qty": qty}).Debug("product added to cart")
	return doc, nil
}

// Remove удаляет позицию. Если товара в корзине нет, возвращает domain.ErrProductNotInCart.
func (s *Service) Remove(ctx context.Context, userID, productID string) (domain.CartDocument, error) {
	var doc domain.CartDocument
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		cart, err := tx.Carts().GetByUserForUpdate(ctx, userID)
		if errors.Is(err, domain.ErrCartNotFound) {
			return domain.ErrProductNotInCart
		}
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := cart.Remove(productID, now); err != nil {
			return err
		}
		doc, err = s.save(ctx, tx, cart, now)
		return err
	})
	if err != nil {
		return domain.CartDocument{}, err
	}
	return doc, nil
}

// Clear очищает корзину. Сама корзина сохраняется.
func (s *Service) Clear(ctx context.Context, userID string) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		cart, err := tx.Carts().GetByUserForUpdate(ctx, userID)
		if errors.Is(err, domain.ErrCartNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		now := s.now().UTC()
		cart.Clear(now)
		_, err = s.save(ctx, tx, cart, now)
		return err
	})
}

func (s *Service) save(ctx context.Context, tx domain.Repositories, cart domain.Cart, now time.Time) (domain.CartDocument, error) {
	if err := tx.Carts().Save(ctx, cart); err != nil {
		return domain.CartDocument{}, err
	}
	if _, err := domain.EnqueueProjection(ctx, tx.Outbox(), now, domain.CartRef(cart.UserID)); err != nil {
		return domain.CartDocument{}, err
	}
	return search.BuildCartDocument(ctx, tx, cart)
}

// loadOrNewCart блокирует корзину пользователя, заводя её при первом добавлении.
func loadOrNewCart(ctx context.Context, tx domain.Repositories, userID string, now time.Time) (domain.Cart, error) {
	cart, err := tx.Carts().GetByUserForUpdate(ctx, userID)
	if !errors.Is(err, domain.ErrCartNotFound) {
		return cart, err
	}
	fresh := domain.Cart{ID: uuid.NewString(), UserID: userID, CreatedAt: now, UpdatedAt: now}
	if err := tx.Carts().Create(ctx, fresh); err != nil {
		return domain.Cart{}, err
	}
	return tx.Carts().GetByUserForUpdate(ctx, userID)
}
