package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending: заказ оформлен, остатки списаны.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusConfirmed: заказ подтверждён магазином.
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	// OrderStatusProcessing: заказ собирается, товар передан в исполнение.
	OrderStatusProcessing OrderStatus = "PROCESSING"
	// OrderStatusShipped: заказ передан в доставку.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusDelivered: заказ доставлен. Терминальный статус.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCancelled: заказ отменён. Терминальный статус.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// OrderStatuses перечисляет статусы в порядке основного пути.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// ParseOrderStatus разбирает статус без учёта регистра.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", ErrInvalidOrderStatus
	}
	return status, nil
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal сообщает, что из статуса нет переходов по основному пути.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// IsForwardStep сообщает, что переход from -> to является следующим шагом основного пути
// или отменой из нетерминального статуса.
func IsForwardStep(from, to OrderStatus) bool {
	if to == OrderStatusCancelled {
		return !from.IsTerminal()
	}
	for i := 0; i < len(OrderStatuses)-2; i++ {
		if OrderStatuses[i] == from {
			return OrderStatuses[i+1] == to
		}
	}
	return false
}

// OrderLine: позиция заказа. Цена зафиксирована на момент оформления.
type OrderLine struct {
	ID          string
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
}

// NewOrderLine строит позицию и вычисляет её сумму.
func NewOrderLine(id string, product Product, qty int) OrderLine {
	return OrderLine{
		ID:          id,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    qty,
		UnitPrice:   product.Price,
		TotalPrice:  product.Price.Mul(decimal.NewFromInt(int64(qty))),
	}
}

// Order агрегирует состояние заказа и его позиции.
// Позиции задаются один раз при создании и больше не меняются.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Lines           []OrderLine
	TotalAmount     decimal.Decimal
	Status          OrderStatus
	OrderDate       time.Time
	DeliveryDate    *time.Time
	ShippingAddress string
	Notes           string
	UpdatedAt       time.Time
}

// NewOrder создаёт заказ в статусе PENDING и считает итоговую сумму.
func NewOrder(id, number, userID string, lines []OrderLine, shippingAddress, notes string, now time.Time) (Order, error) {
	if strings.TrimSpace(shippingAddress) == "" {
		return Order{}, ErrShippingAddressRequired
	}
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.TotalPrice)
	}
	order := Order{
		ID:              id,
		OrderNumber:     number,
		UserID:          userID,
		Lines:           append([]OrderLine(nil), lines...),
		TotalAmount:     total,
		Status:          OrderStatusPending,
		OrderDate:       now,
		ShippingAddress: strings.TrimSpace(shippingAddress),
		Notes:           strings.TrimSpace(notes),
		UpdatedAt:       now,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return Order{}, errs[0]
	}
	return order, nil
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if o.OrderNumber == "" {
		errs = append(errs, ErrOrderNumberRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrLinesRequired)
	}

	// Сверяем сумму заказа с суммой позиций: qty * unit price.
	calc := decimal.Zero
	for _, line := range o.Lines {
		if line.Quantity <= 0 {
			errs = append(errs, ErrQuantityInvalid)
		}
		if line.UnitPrice.IsNegative() {
			errs = append(errs, ErrPriceNegative)
		}
		if !line.TotalPrice.Equal(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))) {
			errs = append(errs, ErrLineTotalMismatch)
		}
		calc = calc.Add(line.TotalPrice)
	}
	if !calc.Equal(o.TotalAmount) {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// StockLines возвращает количества по позициям для возврата на склад.
func (o Order) StockLines() []StockLine {
	lines := make([]StockLine, 0, len(o.Lines))
	for _, line := range o.Lines {
		lines = append(lines, StockLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return lines
}

// ItemCount: суммарное количество единиц в заказе.
func (o Order) ItemCount() int {
	total := 0
	for _, line := range o.Lines {
		total += line.Quantity
	}
	return total
}

// CancelByUser отменяет заказ по запросу владельца. Разрешено только из PENDING.
func (o *Order) CancelByUser(userID string, now time.Time) error {
	if o.UserID != userID {
		return ErrAccessDenied
	}
	if o.Status != OrderStatusPending {
		return ErrOrderCannotBeCancelled
	}
	o.Status = OrderStatusCancelled
	o.UpdatedAt = now
	return nil
}

// CancelByAdmin отменяет заказ из любого статуса, кроме DELIVERED.
// releaseStock=true, если товар ещё не передан в исполнение (PENDING, CONFIRMED).
func (o *Order) CancelByAdmin(reason string, now time.Time) (releaseStock bool, err error) {
	if o.Status == OrderStatusDelivered {
		return false, ErrOrderAlreadyDelivered
	}
	releaseStock = o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
	o.Status = OrderStatusCancelled
	o.UpdatedAt = now
	if reason = strings.TrimSpace(reason); reason != "" {
		note := "Cancellation reason: " + reason
		if o.Notes == "" {
			o.Notes = note
		} else {
			o.Notes = o.Notes + "\n" + note
		}
	}
	return releaseStock, nil
}

// SetStatus выставляет статус без проверки смежности переходов.
// Дата доставки проставляется один раз, при первом переходе в DELIVERED.
func (o *Order) SetStatus(status OrderStatus, now time.Time) error {
	if !status.Valid() {
		return ErrInvalidOrderStatus
	}
	o.Status = status
	o.UpdatedAt = now
	if status == OrderStatusDelivered && o.DeliveryDate == nil {
		delivered := now
		o.DeliveryDate = &delivered
	}
	return nil
}

// NotYetDelivered возвращается DeliveryTime для недоставленных заказов.
const NotYetDelivered = "not yet delivered"

// DeliveryTime описывает время от оформления до доставки.
// DeliveryDate сохраняется при откате статуса администратором, но учитывается только у DELIVERED.
func (o Order) DeliveryTime() string {
	if o.Status != OrderStatusDelivered || o.DeliveryDate == nil {
		return NotYetDelivered
	}
	elapsed := o.DeliveryDate.Sub(o.OrderDate)
	if elapsed < 0 {
		elapsed = 0
	}
	days := int(elapsed / (24 * time.Hour))
	hours := int((elapsed % (24 * time.Hour)) / time.Hour)
	minutes := int((elapsed % time.Hour) / time.Minute)
	return fmt.Sprintf("delivered in %d days %d hours %d minutes", days, hours, minutes)
}

// Summary формирует краткое текстовое описание заказа.
// statusLabel переводит статус в отображаемую строку; nil означает код статуса.
func (o Order) Summary(statusLabel func(OrderStatus) string) string {
	label := string(o.Status)
	if statusLabel != nil {
		label = statusLabel(o.Status)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Order %s | status: %s | placed: %s\n",
		o.OrderNumber, label, o.OrderDate.UTC().Format("2006-01-02 15:04"))
	for _, line := range o.Lines {
		fmt.Fprintf(&b, "  %d x %s @ %s = %s\n",
			line.Quantity, line.ProductName, line.UnitPrice.StringFixed(2), line.TotalPrice.StringFixed(2))
	}
	fmt.Fprintf(&b, "Items: %d | total: %s | ship to: %s", o.ItemCount(), o.TotalAmount.StringFixed(2), o.ShippingAddress)
	return b.String()
}

// CloneOrder возвращает копию заказа без общих слайсов и указателей.
func CloneOrder(src Order) Order {
	dst := src
	dst.Lines = append([]OrderLine(nil), src.Lines...)
	if src.DeliveryDate != nil {
		delivered := *src.DeliveryDate
		dst.DeliveryDate = &delivered
	}
	return dst
}
