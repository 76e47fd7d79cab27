package memory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type cartRepository struct{ sc scope }

func (r cartRepository) GetByUser(_ context.Context, userID string) (domain.Cart, error) {
	var cart domain.Cart
	err := r.sc.view(func(st *state) error {
		found, ok := st.carts[userID]
		if !ok {
			return domain.ErrCartNotFound
		}
		cart = domain.CloneCart(found)
		return nil
	})
	return cart, err
}

func (r cartRepository) GetByUserForUpdate(ctx context.Context, userID string) (domain.Cart, error) {
	return r.GetByUser(ctx, userID)
}

func (r cartRepository) Create(_ context.Context, cart domain.Cart) error {
	return r.sc.update(func(st *state) (func(*state), error) {
		if _, ok := st.carts[cart.UserID]; ok {
			return nil, nil
		}
		st.carts[cart.UserID] = domain.Cart{ID: cart.ID, UserID: cart.UserID, CreatedAt: cart.CreatedAt, UpdatedAt: cart.UpdatedAt}
		return func(st *state) { delete(st.carts, cart.UserID) }, nil
	})
}

func (r cartRepository) Save(_ context.Context, cart domain.Cart) error {
	return r.sc.update(func(st *state) (func(*state), error) {
		for _, line := range cart.Lines {
			if _, ok := st.products[line.ProductID]; !ok {
				return nil, domain.ErrProductNotFound
			}
		}
		prev, existed := st.carts[cart.UserID]
		st.carts[cart.UserID] = domain.CloneCart(cart)
		return func(st *state) {
			if existed {
				st.carts[cart.UserID] = prev
			} else {
				delete(st.carts, cart.UserID)
			}
		}, nil
	})
}

func (r cartRepository) ListByProduct(_ context.Context, productID string) ([]domain.Cart, error) {
	var result []domain.Cart
	err := r.sc.view(func(st *state) error {
		for _, cart := range st.carts {
			if _, ok := cart.Line(productID); ok {
				result = append(result, domain.CloneCart(cart))
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, err
}

type orderRepository struct{ sc scope }

func (r orderRepository) Create(_ context.Context, order domain.Order) error {
	return r.sc.update(func(st *state) (func(*state), error) {
		if _, ok := st.orders[order.ID]; ok {
			return nil, domain.ErrOrderNumberTaken
		}
		if _, ok := st.orderNumber[order.OrderNumber]; ok {
			return nil, domain.ErrOrderNumberTaken
		}
		st.orders[order.ID] = domain.CloneOrder(order)
		st.orderNumber[order.OrderNumber] = order.ID
		return func(st *state) {
			delete(st.orders, order.ID)
			delete(st.orderNumber, order.OrderNumber)
		}, nil
	})
}

func (r orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	var order domain.Order
	err := r.sc.view(func(st *state) error {
		found, ok := st.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		order = domain.CloneOrder(found)
		return nil
	})
	return order, err
}

func (r orderRepository) GetForUpdate(ctx context.Context, id string) (domain.Order, error) {
	return r.Get(ctx, id)
}

func (r orderRepository) GetByNumber(ctx context.Context, number string) (domain.Order, error) {
	var id string
	err := r.sc.view(func(st *state) error {
		found, ok := st.orderNumber[number]
		if !ok {
			return domain.ErrOrderNotFound
		}
		id = found
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return r.Get(ctx, id)
}

// Update меняет только изменяемые поля; позиции и сумма остаются как при создании.
func (r orderRepository) Update(_ context.Context, order domain.Order) error {
	return r.sc.update(func(st *state) (func(*state), error) {
		prev, ok := st.orders[order.ID]
		if !ok {
			return nil, domain.ErrOrderNotFound
		}
		next := domain.CloneOrder(prev)
		next.Status = order.Status
		next.Notes = order.Notes
		next.UpdatedAt = order.UpdatedAt
		next.DeliveryDate = nil
		if order.DeliveryDate != nil {
			delivered := *order.DeliveryDate
			next.DeliveryDate = &delivered
		}
		st.orders[order.ID] = next
		return func(st *state) { st.orders[prev.ID] = prev }, nil
	})
}

func (r orderRepository) List(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	var result []domain.Order
	err := r.sc.view(func(st *state) error {
		result = selectOrders(st, filter)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []domain.Order{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r orderRepository) Count(_ context.Context, filter domain.OrderFilter) (int, error) {
	count := 0
	err := r.sc.view(func(st *state) error {
		count = len(selectOrders(st, filter))
		return nil
	})
	return count, err
}

func (r orderRepository) SumTotal(_ context.Context, filter domain.OrderFilter) (decimal.Decimal, error) {
	total := decimal.Zero
	err := r.sc.view(func(st *state) error {
		for _, order := range selectOrders(st, filter) {
			total = total.Add(order.TotalAmount)
		}
		return nil
	})
	return total, err
}

// selectOrders возвращает заказы по фильтру, новые первыми. Limit/Offset не применяются.
func selectOrders(st *state, filter domain.OrderFilter) []domain.Order {
	result := make([]domain.Order, 0)
	for _, order := range st.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if filter.ExcludeStatus != "" && order.Status == filter.ExcludeStatus {
			continue
		}
		if !filter.From.IsZero() && order.OrderDate.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && order.OrderDate.After(filter.To) {
			continue
		}
		result = append(result, domain.CloneOrder(order))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].OrderDate.Equal(result[j].OrderDate) {
			return result[i].ID > result[j].ID
		}
		return result[i].OrderDate.After(result[j].OrderDate)
	})
	return result
}

type timelineRepository struct{ sc scope }

func (r timelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	return r.sc.update(func(st *state) (func(*state), error) {
		st.timeline[event.OrderID] = append(st.timeline[event.OrderID], event)
		return func(st *state) {
			events := st.timeline[event.OrderID]
			if len(events) > 0 {
				st.timeline[event.OrderID] = events[:len(events)-1]
			}
		}, nil
	})
}

func (r timelineRepository) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	var result []domain.TimelineEvent
	err := r.sc.view(func(st *state) error {
		result = append([]domain.TimelineEvent(nil), st.timeline[orderID]...)
		return nil
	})
	return result, err
}

var (
	_ domain.CartRepository     = cartRepository{}
	_ domain.OrderRepository    = orderRepository{}
	_ domain.TimelineRepository = timelineRepository{}
)
