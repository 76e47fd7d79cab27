package domain

import (
	"context"
	"time"
)

// Repositories: набор репозиториев одного хранилища.
// Внутри UnitOfWork.WithinTx все они работают в одной транзакции.
type Repositories interface {
	Users() UserRepository
	Categories() CategoryRepository
	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
	Timeline() TimelineRepository
	Outbox() OutboxRepository
}

// UnitOfWork выполняет fn атомарно: все изменения фиксируются вместе
// или откатываются, если fn вернула ошибку.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
}

// Store: основное транзакционное хранилище.
type Store interface {
	Repositories
	UnitOfWork
	Ping(ctx context.Context) error
}

// InventoryLedger управляет остатками товаров внутри единицы работы.
type InventoryLedger interface {
	// Reserve проверяет и списывает остатки по всем строкам или не меняет ничего.
	// Возвращает заблокированные товары после списания.
	Reserve(ctx context.Context, tx Repositories, lines []StockLine) (map[string]Product, error)
	// Release возвращает остатки на склад.
	Release(ctx context.Context, tx Repositories, lines []StockLine) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
