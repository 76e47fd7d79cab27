// Package orders реализует оформление, отмену и сопровождение заказов.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/i18n"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// maxNumberAttempts ограничивает повторы оформления при коллизии номера заказа.
const maxNumberAttempts = 3

// Акторы отмены для логов, метрик и истории заказа.
const (
	actorUser  = "user"
	actorAdmin = "admin"
)

// NumberSource выдаёт номера заказов.
type NumberSource interface {
	Next() string
}

// Service выполняет сценарии заказа, каждый в своей единице работы.
type Service struct {
	store     domain.Store
	ledger    domain.InventoryLedger
	numbers   NumberSource
	localizer *i18n.Localizer
	metrics   *metrics.OrderMetrics
	logger    *log.Entry
	now       func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics задаёт метрики заказов. Без них метрики не пишутся.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithNumberSource подменяет генератор номеров заказа.
func WithNumberSource(numbers NumberSource) Option {
	return func(s *Service) {
		s.numbers = numbers
	}
}

// WithLocalizer задаёт переводы статусов для сводки заказа.
func WithLocalizer(localizer *i18n.Localizer) Option {
	return func(s *Service) {
		s.localizer = localizer
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService создаёт сервис заказов.
func NewService(store domain.Store, ledger domain.InventoryLedger, options ...Option) *Service {
	s := &Service{
		store:  store,
		ledger: ledger,
		now:    time.Now,
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "order-service")
	}
	if s.numbers == nil {
		s.numbers = domain.NewOrderNumberGenerator()
	}
	if s.localizer == nil {
		s.localizer = i18n.New()
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// CreateOrder оформляет заказ из корзины пользователя.
// Остатки всех позиций проверяются и списываются вместе; при нехватке хотя бы одной ничего не меняется.
func (s *Service) CreateOrder(ctx context.Context, userID, shippingAddress, notes string) (domain.Order, error) {
	done := s.metrics.CheckoutStarted()
	defer done()

	logger := s.logger.WithField("user_id", userID)
	if strings.TrimSpace(shippingAddress) == "" {
		s.metrics.RecordCheckoutFailed(metrics.ReasonValidation)
		return domain.Order{}, domain.ErrShippingAddressRequired
	}

	var (
		order domain.Order
		err   error
	)
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		order, err = s.placeOrder(ctx, userID, shippingAddress, notes)
		if !errors.Is(err, domain.ErrOrderNumberTaken) {
			break
		}
		logger.WithField("attempt", attempt).Warn("order number collision")
	}
	if err != nil {
		s.metrics.RecordCheckoutFailed(checkoutFailureReason(err))
		if domain.IsNotFound(err) || domain.IsConflict(err) || domain.IsValidation(err) {
			logger.WithError(err).Info("checkout rejected")
		} else {
			logger.WithError(err).Error("checkout failed")
		}
		return domain.Order{}, err
	}

	s.metrics.RecordOrderCreated(order.ItemCount())
	logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total":        order.TotalAmount.StringFixed(2),
	}).Info("order placed")
	return order, nil
}

func (s *Service) placeOrder(ctx context.Context, userID, shippingAddress, notes string) (domain.Order, error) {
	var order domain.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		if _, err := tx.Users().Get(ctx, userID); err != nil {
			return err
		}
		// Корзина блокируется раньше товаров: повторное оформление той же корзины
		// дождётся фиксации первого и увидит её пустой.
		cart, err := tx.Carts().GetByUserForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if cart.IsEmpty() {
			return domain.ErrEmptyCart
		}

		number := s.numbers.Next()
		reserved, err := s.ledger.Reserve(ctx, tx, cart.StockLines())
		if err != nil {
			return err
		}

		now := s.clock()
		lines := make([]domain.OrderLine, 0, len(cart.Lines))
		refs := []domain.ProjectionRef{domain.CartRef(userID)}
		for _, line := range cart.Lines {
			lines = append(lines, domain.NewOrderLine(uuid.NewString(), reserved[line.ProductID], line.Quantity))
			refs = append(refs, domain.ProductRef(line.ProductID))
		}
		order, err = domain.NewOrder(uuid.NewString(), number, userID, lines, shippingAddress, notes, now)
		if err != nil {
			return err
		}
		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}
		if err := s.appendTimeline(ctx, tx, order.ID, domain.TimelineOrderCreated, order.OrderNumber, now); err != nil {
			return err
		}

		cart.Clear(now)
		if err := tx.Carts().Save(ctx, cart); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		return s.enqueue(ctx, tx, now, append(refs, domain.OrderRef(order.ID))...)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// CancelOrder отменяет заказ по запросу владельца и возвращает остатки на склад.
func (s *Service) CancelOrder(ctx context.Context, orderID, userID string) (domain.Order, error) {
	var (
		order    domain.Order
		released int
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		var err error
		order, err = tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		now := s.clock()
		if err := order.CancelByUser(userID, now); err != nil {
			return err
		}
		if err := s.ledger.Release(ctx, tx, order.StockLines()); err != nil {
			return err
		}
		released = order.ItemCount()
		return s.saveCancellation(ctx, tx, order, actorUser, "cancelled by owner", true, now)
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{"order_id": orderID, "user_id": userID}).Info("order cancellation rejected")
		return domain.Order{}, err
	}

	s.metrics.RecordCancelled(actorUser, released)
	s.logger.WithFields(log.Fields{
		"order_id":       order.ID,
		"order_number":   order.OrderNumber,
		"units_released": released,
	}).Info("order cancelled by owner")
	return order, nil
}

// CancelOrderByAdmin отменяет заказ из любого статуса, кроме DELIVERED.
// Остатки возвращаются только если товар ещё не передан в исполнение.
func (s *Service) CancelOrderByAdmin(ctx context.Context, orderID, reason string) (domain.Order, error) {
	var (
		order    domain.Order
		released int
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		var err error
		order, err = tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		now := s.clock()
		releaseStock, err := order.CancelByAdmin(reason, now)
		if err != nil {
			return err
		}
		if releaseStock {
			if err := s.ledger.Release(ctx, tx, order.StockLines()); err != nil {
				return err
			}
			released = order.ItemCount()
		}
		return s.saveCancellation(ctx, tx, order, actorAdmin, strings.TrimSpace(reason), releaseStock, now)
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Info("admin cancellation rejected")
		return domain.Order{}, err
	}

	s.metrics.RecordCancelled(actorAdmin, released)
	s.logger.WithFields(log.Fields{
		"order_id":       order.ID,
		"order_number":   order.OrderNumber,
		"units_released": released,
		"reason":         reason,
	}).Info("order cancelled by admin")
	return order, nil
}

func (s *Service) saveCancellation(ctx context.Context, tx domain.Repositories, order domain.Order, actor, reason string, stockReleased bool, now time.Time) error {
	if err := tx.Orders().Update(ctx, order); err != nil {
		return err
	}
	if reason == "" {
		reason = "cancelled by " + actor
	}
	if err := s.appendTimeline(ctx, tx, order.ID, domain.TimelineCancelled, reason, now); err != nil {
		return err
	}

	refs := []domain.ProjectionRef{domain.OrderRef(order.ID)}
	if stockReleased {
		for _, line := range order.Lines {
			refs = append(refs, domain.ProductRef(line.ProductID))
		}
	}
	return s.enqueue(ctx, tx, now, refs...)
}

// UpdateOrderStatus выставляет статус заказа без проверки смежности переходов.
// Переходы вне основного пути допускаются и пишутся в лог с уровнем warn.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, error) {
	if !status.Valid() {
		return domain.Order{}, domain.ErrInvalidOrderStatus
	}

	var (
		order    domain.Order
		previous domain.OrderStatus
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		var err error
		order, err = tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		previous = order.Status
		now := s.clock()
		if err := order.SetStatus(status, now); err != nil {
			return err
		}
		if err := tx.Orders().Update(ctx, order); err != nil {
			return err
		}
		if err := s.appendTimeline(ctx, tx, order.ID, domain.TimelineStatusChanged, fmt.Sprintf("%s -> %s", previous, status), now); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, now, domain.OrderRef(order.ID))
	})
	if err != nil {
		return domain.Order{}, err
	}

	logger := s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"from":     previous,
		"to":       status,
	})
	if previous != status && !domain.IsForwardStep(previous, status) {
		logger.Warn("order status moved outside of the fulfilment path")
	} else {
		logger.Info("order status updated")
	}
	s.metrics.RecordStatusChange(string(status))
	return order, nil
}

func (s *Service) enqueue(ctx context.Context, tx domain.Repositories, now time.Time, refs ...domain.ProjectionRef) error {
	n, err := domain.EnqueueProjection(ctx, tx.Outbox(), now, refs...)
	if err != nil {
		return err
	}
	s.metrics.RecordOutboxEnqueued(n)
	return nil
}

func (s *Service) appendTimeline(ctx context.Context, tx domain.Repositories, orderID, eventType, reason string, now time.Time) error {
	err := tx.Timeline().Append(ctx, domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: now,
	})
	if err != nil {
		return fmt.Errorf("append timeline: %w", err)
	}
	s.metrics.RecordTimelineEvent()
	return nil
}

// GetOrder возвращает заказ по id.
func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.store.Orders().Get(ctx, orderID)
}

// GetUserOrder возвращает заказ, только если он принадлежит пользователю.
func (s *Service) GetUserOrder(ctx context.Context, orderID, userID string) (domain.Order, error) {
	order, err := s.store.Orders().Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.UserID != userID {
		return domain.Order{}, domain.ErrAccessDenied
	}
	return order, nil
}

// GetOrderByNumber ищет заказ по номеру.
func (s *Service) GetOrderByNumber(ctx context.Context, number string) (domain.Order, error) {
	return s.store.Orders().GetByNumber(ctx, strings.TrimSpace(number))
}

// GetOrderSummary формирует текстовую сводку заказа на языке tag.
func (s *Service) GetOrderSummary(ctx context.Context, orderID string, tag language.Tag) (string, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	return s.Summary(order, tag), nil
}

// Summary формирует сводку уже загруженного заказа.
func (s *Service) Summary(order domain.Order, tag language.Tag) string {
	return order.Summary(s.localizer.Labeler(tag))
}

// CalculateDeliveryTime возвращает время доставки или domain.NotYetDelivered.
func (s *Service) CalculateDeliveryTime(ctx context.Context, orderID string) (string, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	return order.DeliveryTime(), nil
}

// ListUserOrders возвращает все заказы пользователя, новые первыми.
func (s *Service) ListUserOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.store.Orders().List(ctx, domain.OrderFilter{UserID: userID})
}

// ListUserOrdersByStatus возвращает заказы пользователя в статусе status.
func (s *Service) ListUserOrdersByStatus(ctx context.Context, userID string, status domain.OrderStatus) ([]domain.Order, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidOrderStatus
	}
	return s.store.Orders().List(ctx, domain.OrderFilter{UserID: userID, Status: status})
}

// OrderPage: страница заказов с общим количеством.
type OrderPage struct {
	Orders []domain.Order
	Number int
	Size   int
	Total  int
}

// TotalPages возвращает число страниц при текущем размере.
func (p OrderPage) TotalPages() int {
	if p.Size <= 0 {
		return 0
	}
	return (p.Total + p.Size - 1) / p.Size
}

// ListUserOrdersPage возвращает страницу заказов пользователя.
func (s *Service) ListUserOrdersPage(ctx context.Context, userID string, page domain.Page) (OrderPage, error) {
	return s.listPage(ctx, domain.OrderFilter{UserID: userID}, page)
}

// ListOrdersPage возвращает страницу всех заказов. Пустой status не ограничивает выборку.
func (s *Service) ListOrdersPage(ctx context.Context, status domain.OrderStatus, page domain.Page) (OrderPage, error) {
	if status != "" && !status.Valid() {
		return OrderPage{}, domain.ErrInvalidOrderStatus
	}
	return s.listPage(ctx, domain.OrderFilter{Status: status}, page)
}

func (s *Service) listPage(ctx context.Context, filter domain.OrderFilter, page domain.Page) (OrderPage, error) {
	page = page.Normalize()
	total, err := s.store.Orders().Count(ctx, filter)
	if err != nil {
		return OrderPage{}, err
	}
	filter.Limit = page.Size
	filter.Offset = page.Offset()
	orders, err := s.store.Orders().List(ctx, filter)
	if err != nil {
		return OrderPage{}, err
	}
	return OrderPage{Orders: orders, Number: page.Number, Size: page.Size, Total: total}, nil
}

// CountUserOrders возвращает число заказов пользователя.
func (s *Service) CountUserOrders(ctx context.Context, userID string) (int, error) {
	return s.store.Orders().Count(ctx, domain.OrderFilter{UserID: userID})
}

// TotalSpending суммирует заказы пользователя без учёта отменённых.
func (s *Service) TotalSpending(ctx context.Context, userID string) (decimal.Decimal, error) {
	return s.store.Orders().SumTotal(ctx, domain.OrderFilter{
		UserID:        userID,
		ExcludeStatus: domain.OrderStatusCancelled,
	})
}

// ListOrdersBetween возвращает заказы, оформленные в интервале [from, to].
func (s *Service) ListOrdersBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error) {
	if from.After(to) {
		return nil, domain.ErrInvalidDateRange
	}
	return s.store.Orders().List(ctx, domain.OrderFilter{From: from, To: to})
}

// Timeline возвращает историю заказа.
func (s *Service) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := s.store.Orders().Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.Timeline().List(ctx, orderID)
}

func checkoutFailureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		return metrics.ReasonInsufficientStock
	case errors.Is(err, domain.ErrEmptyCart):
		return metrics.ReasonEmptyCart
	case errors.Is(err, domain.ErrOrderNumberTaken):
		return metrics.ReasonNumberCollision
	case domain.IsNotFound(err):
		return metrics.ReasonNotFound
	case domain.IsValidation(err):
		return metrics.ReasonValidation
	default:
		return metrics.ReasonInternal
	}
}
