package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceScale: число знаков после запятой в ценах, как в колонках NUMERIC(12,2).
const PriceScale = 2

// Category группирует товары каталога.
type Category struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate проверяет обязательные поля категории.
func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrNameRequired
	}
	return nil
}

// Product описывает товар каталога и его складской остаток.
type Product struct {
	ID          string
	Name        string
	Description string
	// Price: текущая цена за единицу. В заказ копируется на момент оформления.
	Price decimal.Decimal
	// Stock: остаток на складе, всегда >= 0.
	Stock int
	// CategoryID пустой, если товар вне категорий.
	CategoryID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate проверяет инварианты товара.
func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrNameRequired
	}
	if p.Price.IsNegative() {
		return ErrPriceNegative
	}
	if !p.Price.Equal(p.Price.Round(PriceScale)) {
		return ErrPricePrecision
	}
	if p.Stock < 0 {
		return ErrStockNegative
	}
	return nil
}

// Reserve списывает qty единиц остатка.
// При нехватке возвращает *InsufficientStockError и не меняет товар.
func (p Product) Reserve(qty int) (Product, error) {
	if qty <= 0 {
		return p, ErrQuantityInvalid
	}
	if p.Stock < qty {
		return p, &InsufficientStockError{
			ProductID:   p.ID,
			ProductName: p.Name,
			Requested:   qty,
			Available:   p.Stock,
		}
	}
	p.Stock -= qty
	return p, nil
}

// Release возвращает qty единиц на склад.
func (p Product) Release(qty int) (Product, error) {
	if qty <= 0 {
		return p, ErrQuantityInvalid
	}
	p.Stock += qty
	return p, nil
}

// StockLine: количество товара для резерва или возврата.
type StockLine struct {
	ProductID string
	Quantity  int
}
