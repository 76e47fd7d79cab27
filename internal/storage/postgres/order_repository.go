package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type cartRepository struct {
	q dbtx
}

func (r cartRepository) GetByUser(ctx context.Context, userID string) (domain.Cart, error) {
	return r.getOne(ctx, userID, "")
}

// GetByUserForUpdate держит блокировку строки корзины до конца транзакции.
// Оформление заказа и изменения корзины одного пользователя выполняются по очереди.
func (r cartRepository) GetByUserForUpdate(ctx context.Context, userID string) (domain.Cart, error) {
	return r.getOne(ctx, userID, " FOR UPDATE")
}

func (r cartRepository) getOne(ctx context.Context, userID, lock string) (domain.Cart, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var cart domain.Cart
	err := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, created_at, updated_at
		FROM carts
		WHERE user_id = $1`+lock, userID).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}

	lines, err := r.lines(ctx, cart.ID)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.Lines = lines
	return cart, nil
}

// Create вставляет пустую корзину. При гонке двух первых добавлений вторая
// транзакция ждёт фиксации первой на уникальном user_id и ничего не меняет.
func (r cartRepository) Create(ctx context.Context, cart domain.Cart) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO carts (id, user_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id) DO NOTHING
	`, cart.ID, cart.UserID, cart.CreatedAt, cart.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("create cart: %w", err)
	}
	return nil
}

// Save заменяет позиции корзины целиком.
func (r cartRepository) Save(ctx context.Context, cart domain.Cart) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	// Позиции пишутся под id из базы: у существующей корзины он может отличаться от cart.ID.
	var cartID string
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO carts (id, user_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
		RETURNING id
	`, cart.ID, cart.UserID, cart.CreatedAt, cart.UpdatedAt).Scan(&cartID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("upsert cart: %w", err)
	}

	if _, err := r.q.ExecContext(ctx, `DELETE FROM cart_lines WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart lines: %w", err)
	}
	for _, line := range cart.Lines {
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO cart_lines (cart_id, product_id, quantity, added_at)
			VALUES ($1,$2,$3,$4)
		`, cartID, line.ProductID, line.Quantity, line.AddedAt)
		if err != nil {
			if isForeignKeyViolation(err) {
				return domain.ErrProductNotFound
			}
			return fmt.Errorf("insert cart line: %w", err)
		}
	}
	return nil
}

func (r cartRepository) ListByProduct(ctx context.Context, productID string) ([]domain.Cart, error) {
	queryCtx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(queryCtx, `
		SELECT c.user_id
		FROM carts c
		JOIN cart_lines l ON l.cart_id = c.id
		WHERE l.product_id = $1
		ORDER BY c.id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("list carts by product: %w", err)
	}
	var userIDs []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan cart owner: %w", err)
		}
		userIDs = append(userIDs, userID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate carts by product: %w", err)
	}

	carts := make([]domain.Cart, 0, len(userIDs))
	for _, userID := range userIDs {
		cart, err := r.GetByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		carts = append(carts, cart)
	}
	return carts, nil
}

func (r cartRepository) lines(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT product_id, quantity, added_at
		FROM cart_lines
		WHERE cart_id = $1
		ORDER BY added_at, product_id
	`, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.CartLine
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ProductID, &line.Quantity, &line.AddedAt); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart lines: %w", err)
	}
	return lines, nil
}

const orderColumns = `id, order_number, user_id, total_amount, status, order_date, delivery_date, shipping_address, notes, updated_at`

type orderRepository struct {
	q dbtx
}

func (r orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var delivered sql.NullTime
	if order.DeliveryDate != nil {
		delivered = nullTime(*order.DeliveryDate)
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		order.ID, order.OrderNumber, order.UserID, order.TotalAmount, string(order.Status),
		order.OrderDate, delivered, order.ShippingAddress, order.Notes, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderNumberTaken
		}
		if isForeignKeyViolation(err) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, line := range order.Lines {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO order_lines (
				id, order_id, position, product_id, product_name, quantity, unit_price, total_price
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			line.ID, order.ID, i, line.ProductID, line.ProductName,
			line.Quantity, line.UnitPrice, line.TotalPrice,
		); err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}

func (r orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

// GetForUpdate держит блокировку строки заказа до конца транзакции.
func (r orderRepository) GetForUpdate(ctx context.Context, id string) (domain.Order, error) {
	return r.getOne(ctx, `WHERE id = $1 FOR UPDATE`, id)
}

func (r orderRepository) GetByNumber(ctx context.Context, number string) (domain.Order, error) {
	return r.getOne(ctx, `WHERE order_number = $1`, number)
}

func (r orderRepository) getOne(ctx context.Context, where string, arg any) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	order, err := scanOrder(r.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}

	lines, err := r.lines(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines
	return order, nil
}

// Update сохраняет только изменяемые поля заказа.
func (r orderRepository) Update(ctx context.Context, order domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var delivered sql.NullTime
	if order.DeliveryDate != nil {
		delivered = nullTime(*order.DeliveryDate)
	}

	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, delivery_date = $2, notes = $3, updated_at = $4
		WHERE id = $5
	`, string(order.Status), delivered, order.Notes, order.UpdatedAt, order.ID)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return expectAffected(res, domain.ErrOrderNotFound)
}

func (r orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	where, args := orderWhere(filter)
	query := `SELECT ` + orderColumns + ` FROM orders` + where + ` ORDER BY order_date DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	queryCtx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(queryCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	for i := range orders {
		lines, err := r.lines(queryCtx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}
	return orders, nil
}

func (r orderRepository) Count(ctx context.Context, filter domain.OrderFilter) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	where, args := orderWhere(filter)
	var count int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

func (r orderRepository) SumTotal(ctx context.Context, filter domain.OrderFilter) (decimal.Decimal, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	where, args := orderWhere(filter)
	var total decimal.Decimal
	if err := r.q.QueryRowContext(ctx, `SELECT COALESCE(SUM(total_amount), 0) FROM orders`+where, args...).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum orders: %w", err)
	}
	return total, nil
}

func (r orderRepository) lines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, product_id, product_name, quantity, unit_price, total_price
		FROM order_lines
		WHERE order_id = $1
		ORDER BY position
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ID, &line.ProductID, &line.ProductName, &line.Quantity, &line.UnitPrice, &line.TotalPrice); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return lines, nil
}

// orderWhere собирает WHERE по фильтру с позиционными параметрами.
func orderWhere(filter domain.OrderFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.ExcludeStatus != "" {
		add("status <> $%d", string(filter.ExcludeStatus))
	}
	if !filter.From.IsZero() {
		add("order_date >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("order_date <= $%d", filter.To)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o         domain.Order
		status    string
		delivered sql.NullTime
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.TotalAmount, &status,
		&o.OrderDate, &delivered, &o.ShippingAddress, &o.Notes, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	if delivered.Valid {
		at := delivered.Time
		o.DeliveryDate = &at
	}
	return o, nil
}

type timelineRepository struct {
	q dbtx
}

func (r timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO timeline_events (order_id, type, reason, occurred_at)
		VALUES ($1,$2,$3,$4)
	`, event.OrderID, event.Type, event.Reason, event.Occurred)
	if err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}
	return nil
}

func (r timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT order_id, type, reason, occurred_at
		FROM timeline_events
		WHERE order_id = $1
		ORDER BY occurred_at, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list timeline events: %w", err)
	}
	defer rows.Close()

	var events []domain.TimelineEvent
	for rows.Next() {
		var event domain.TimelineEvent
		if err := rows.Scan(&event.OrderID, &event.Type, &event.Reason, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline events: %w", err)
	}
	return events, nil
}

var (
	_ domain.CartRepository     = cartRepository{}
	_ domain.OrderRepository    = orderRepository{}
	_ domain.TimelineRepository = timelineRepository{}
)
