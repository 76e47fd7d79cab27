package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Типы агрегатов, которые попадают в поисковую проекцию.
const (
	AggregateOrder    = "order"
	AggregateProduct  = "product"
	AggregateCategory = "category"
	AggregateCart     = "cart"
)

// Типы событий проекции.
const (
	EventProjectionUpsert = "projection.upsert"
	EventProjectionDelete = "projection.delete"
)

// ProjectionEvent: полезная нагрузка outbox-сообщения для поисковой проекции.
// Проекция перечитывает агрегат из основного хранилища, поэтому событие несёт только ссылку.
type ProjectionEvent struct {
	AggregateType string    `json:"aggregate_type"`
	AggregateID   string    `json:"aggregate_id"`
	Delete        bool      `json:"delete,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewProjectionMessage готовит outbox-сообщение об изменении агрегата.
func NewProjectionMessage(aggregateType, aggregateID string, deleted bool, now time.Time) OutboxMessage {
	eventType := EventProjectionUpsert
	if deleted {
		eventType = EventProjectionDelete
	}
	payload, _ := json.Marshal(ProjectionEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Delete:        deleted,
		OccurredAt:    now.UTC(),
	})
	return OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
	}
}

// ProjectionRef ссылается на агрегат, документ которого нужно обновить.
type ProjectionRef struct {
	AggregateType string
	AggregateID   string
	Deleted       bool
}

// OrderRef, ProductRef, CategoryRef и CartRef строят ссылки на обновление документа.
func OrderRef(id string) ProjectionRef {
	return ProjectionRef{AggregateType: AggregateOrder, AggregateID: id}
}

func ProductRef(id string) ProjectionRef {
	return ProjectionRef{AggregateType: AggregateProduct, AggregateID: id}
}

func CategoryRef(id string) ProjectionRef {
	return ProjectionRef{AggregateType: AggregateCategory, AggregateID: id}
}

// CartRef ссылается на корзину по id владельца.
func CartRef(userID string) ProjectionRef {
	return ProjectionRef{AggregateType: AggregateCart, AggregateID: userID}
}

// EnqueueProjection записывает в outbox по одному сообщению на каждую уникальную ссылку.
// Пустые id пропускаются. Возвращает число записанных сообщений.
func EnqueueProjection(ctx context.Context, outbox OutboxRepository, now time.Time, refs ...ProjectionRef) (int, error) {
	seen := make(map[ProjectionRef]struct{}, len(refs))
	count := 0
	for _, ref := range refs {
		if ref.AggregateID == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		if _, err := outbox.Enqueue(ctx, NewProjectionMessage(ref.AggregateType, ref.AggregateID, ref.Deleted, now)); err != nil {
			return count, fmt.Errorf("enqueue %s projection %s: %w", ref.AggregateType, ref.AggregateID, err)
		}
		count++
	}
	return count, nil
}

// OrderDocument: денормализованная копия заказа для поиска.
type OrderDocument struct {
	ID              string
	OrderNumber     string
	UserID          string
	Username        string
	TotalAmount     decimal.Decimal
	Status          OrderStatus
	StatusLabel     string
	ItemCount       int
	OrderDate       time.Time
	DeliveryDate    *time.Time
	ShippingAddress string
	Notes           string
}

// ProductDocument: товар с названием категории.
type ProductDocument struct {
	ID           string
	Name         string
	Description  string
	Price        decimal.Decimal
	Stock        int
	CategoryID   string
	CategoryName string
}

// CategoryDocument: категория с количеством товаров.
type CategoryDocument struct {
	ID           string
	Name         string
	Description  string
	ProductCount int
}

// CartDocumentItem: позиция корзины с данными товара.
type CartDocumentItem struct {
	ProductID    string
	ProductName  string
	ProductPrice decimal.Decimal
	Quantity     int
	Subtotal     decimal.Decimal
	CategoryID   string
	CategoryName string
}

// CartDocument: корзина пользователя с посчитанными итогами.
type CartDocument struct {
	ID         string
	UserID     string
	Username   string
	Items      []CartDocumentItem
	TotalItems int
	TotalPrice decimal.Decimal
}

// OrderSearch: параметры поиска заказов. Text ищется по номеру, адресу, заметкам и имени пользователя.
type OrderSearch struct {
	Text     string
	Status   OrderStatus
	Username string
	UserID   string
	Limit    int
}

// ProductSearch: параметры поиска товаров.
type ProductSearch struct {
	Text        string
	CategoryID  string
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	InStockOnly bool
	Limit       int
}

// CategorySearch: поиск категорий по имени.
type CategorySearch struct {
	Name  string
	Limit int
}

// CartSearch: поиск корзин для администратора.
type CartSearch struct {
	Username  string
	ProductID string
	MinTotal  *decimal.Decimal
	MaxTotal  *decimal.Decimal
	Limit     int
}

// ProjectionStore записывает документы проекции. Все операции идемпотентны по id.
type ProjectionStore interface {
	UpsertOrder(ctx context.Context, doc OrderDocument) error
	DeleteOrder(ctx context.Context, id string) error
	UpsertProduct(ctx context.Context, doc ProductDocument) error
	DeleteProduct(ctx context.Context, id string) error
	UpsertCategory(ctx context.Context, doc CategoryDocument) error
	DeleteCategory(ctx context.Context, id string) error
	UpsertCart(ctx context.Context, doc CartDocument) error
	DeleteCart(ctx context.Context, id string) error
}

// SearchReader выполняет запросы к проекции.
type SearchReader interface {
	SearchOrders(ctx context.Context, q OrderSearch) ([]OrderDocument, error)
	SearchProducts(ctx context.Context, q ProductSearch) ([]ProductDocument, error)
	SearchCategories(ctx context.Context, q CategorySearch) ([]CategoryDocument, error)
	SearchCarts(ctx context.Context, q CartSearch) ([]CartDocument, error)
}

// SearchIndex: поисковое хранилище целиком.
type SearchIndex interface {
	ProjectionStore
	SearchReader
	Ping(ctx context.Context) error
}

// DefaultSearchLimit ограничивает выдачу поиска, если лимит не задан.
const DefaultSearchLimit = 50
