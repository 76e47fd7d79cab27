package domain

import "time"

// CartLine: позиция корзины. Уникальна в пределах пары (корзина, товар).
type CartLine struct {
	ProductID string
	Quantity  int
	AddedAt   time.Time
}

// Cart хранит отложенные пользователем товары до оформления заказа.
type Cart struct {
	ID        string
	UserID    string
	Lines     []CartLine
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Add добавляет товар в корзину. Если товар уже есть, увеличивает количество.
// Возвращает итоговое количество по позиции.
func (c *Cart) Add(productID string, qty int, now time.Time) (int, error) {
	if qty <= 0 {
		return 0, ErrQuantityInvalid
	}
	c.UpdatedAt = now
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines[i].Quantity += qty
			return c.Lines[i].Quantity, nil
		}
	}
	c.Lines = append(c.Lines, CartLine{ProductID: productID, Quantity: qty, AddedAt: now})
	return qty, nil
}

// Remove удаляет позицию по товару.
func (c *Cart) Remove(productID string, now time.Time) error {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			c.UpdatedAt = now
			return nil
		}
	}
	return ErrProductNotInCart
}

// Clear очищает позиции. Сама корзина остаётся.
func (c *Cart) Clear(now time.Time) {
	c.Lines = nil
	c.UpdatedAt = now
}

// Line возвращает позицию по товару.
func (c Cart) Line(productID string) (CartLine, bool) {
	for _, line := range c.Lines {
		if line.ProductID == productID {
			return line, true
		}
	}
	return CartLine{}, false
}

// IsEmpty сообщает, что в корзине нет позиций.
func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// StockLines переводит позиции корзины в строки резерва.
func (c Cart) StockLines() []StockLine {
	lines := make([]StockLine, 0, len(c.Lines))
	for _, line := range c.Lines {
		lines = append(lines, StockLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return lines
}

// CloneCart возвращает копию корзины без общих слайсов.
func CloneCart(src Cart) Cart {
	dst := src
	dst.Lines = append([]CartLine(nil), src.Lines...)
	return dst
}
