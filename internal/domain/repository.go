package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// UserRepository хранит учётные записи.
type UserRepository interface {
	// Create сохраняет пользователя. ErrUsernameTaken, если имя занято.
	Create(ctx context.Context, user User) error
	// Get возвращает пользователя или ErrUserNotFound.
	Get(ctx context.Context, id string) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
}

// CategoryRepository хранит категории каталога.
type CategoryRepository interface {
	Create(ctx context.Context, category Category) error
	// Get возвращает категорию или ErrCategoryNotFound.
	Get(ctx context.Context, id string) (Category, error)
	Update(ctx context.Context, category Category) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Category, error)
	// CountProducts возвращает число товаров в категории.
	CountProducts(ctx context.Context, id string) (int, error)
}

// ProductRepository хранит товары и является складским журналом остатков.
type ProductRepository interface {
	Create(ctx context.Context, product Product) error
	// Get возвращает товар или ErrProductNotFound.
	Get(ctx context.Context, id string) (Product, error)
	Update(ctx context.Context, product Product) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Product, error)
	ListByCategory(ctx context.Context, categoryID string) ([]Product, error)
	// LockForUpdate блокирует строки товаров до конца транзакции.
	// Блокировки берутся в порядке возрастания id; результат в том же порядке.
	// Если хотя бы одного товара нет, возвращает ErrProductNotFound.
	LockForUpdate(ctx context.Context, ids []string) ([]Product, error)
	// SetStock записывает новый остаток товара.
	SetStock(ctx context.Context, id string, stock int) error
}

// CartRepository хранит корзины пользователей.
type CartRepository interface {
	// GetByUser возвращает корзину пользователя или ErrCartNotFound.
	GetByUser(ctx context.Context, userID string) (Cart, error)
	// GetByUserForUpdate читает корзину с блокировкой строки до конца транзакции.
	GetByUserForUpdate(ctx context.Context, userID string) (Cart, error)
	// Create заводит пустую корзину, если у пользователя её ещё нет.
	Create(ctx context.Context, cart Cart) error
	// Save создаёт корзину или полностью заменяет её позиции.
	Save(ctx context.Context, cart Cart) error
	// ListByProduct возвращает корзины, в которых лежит товар.
	ListByProduct(ctx context.Context, productID string) ([]Cart, error)
}

// OrderFilter задаёт выборку заказов. Пустые поля не ограничивают выборку.
type OrderFilter struct {
	UserID        string
	Status        OrderStatus
	ExcludeStatus OrderStatus
	From          time.Time
	To            time.Time
	Limit         int
	Offset        int
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет заказ вместе с позициями. ErrOrderNumberTaken при коллизии номера.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// GetForUpdate читает заказ с блокировкой строки до конца транзакции.
	GetForUpdate(ctx context.Context, id string) (Order, error)
	GetByNumber(ctx context.Context, number string) (Order, error)
	// Update сохраняет изменяемые поля: статус, дату доставки, заметки.
	Update(ctx context.Context, order Order) error
	// List возвращает заказы по фильтру, новые первыми.
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
	Count(ctx context.Context, filter OrderFilter) (int, error)
	// SumTotal суммирует TotalAmount по фильтру.
	SumTotal(ctx context.Context, filter OrderFilter) (decimal.Decimal, error)
}

// Page: параметры постраничной выборки (номер с нуля).
type Page struct {
	Number int
	Size   int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize приводит параметры страницы к допустимым значениям.
func (p Page) Normalize() Page {
	if p.Number < 0 {
		p.Number = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset возвращает смещение первой записи страницы.
func (p Page) Offset() int {
	n := p.Normalize()
	return n.Number * n.Size
}
