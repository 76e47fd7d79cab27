// Package search синхронизирует поисковую проекцию с основным хранилищем.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/i18n"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Результаты применения события для метрик.
const (
	resultUpserted = "upserted"
	resultDeleted  = "deleted"
	resultFailed   = "failed"
	resultRejected = "rejected"
)

// Projector применяет события проекции: перечитывает агрегат из основного хранилища
// и записывает документ. Отсутствующий агрегат удаляет документ, поэтому
// повторная и переупорядоченная доставка дают тот же результат.
type Projector struct {
	repos       domain.Repositories
	index       domain.ProjectionStore
	breaker     *Breaker
	statusLabel func(domain.OrderStatus) string
	metrics     *metrics.ProjectionMetrics
	logger      *log.Entry
}

// Option настраивает Projector.
type Option func(*Projector)

func WithLogger(logger *log.Entry) Option {
	return func(p *Projector) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.ProjectionMetrics) Option {
	return func(p *Projector) {
		p.metrics = m
	}
}

// WithBreaker подменяет circuit breaker поискового хранилища.
func WithBreaker(breaker *Breaker) Option {
	return func(p *Projector) {
		p.breaker = breaker
	}
}

// WithStatusLabels задаёт перевод статусов для документов заказов.
func WithStatusLabels(label func(domain.OrderStatus) string) Option {
	return func(p *Projector) {
		p.statusLabel = label
	}
}

// NewProjector создаёт проектор поверх основного хранилища и поискового индекса.
func NewProjector(repos domain.Repositories, index domain.ProjectionStore, options ...Option) *Projector {
	p := &Projector{
		repos: repos,
		index: index,
	}
	for _, option := range options {
		option(p)
	}
	if p.logger == nil {
		p.logger = log.WithField("component", "search-projector")
	}
	if p.statusLabel == nil {
		p.statusLabel = i18n.New().Labeler(i18n.DefaultLanguage)
	}
	if p.breaker == nil {
		p.breaker = NewBreaker(defaultMaxFailures, defaultResetTimeout, func(state BreakerState) {
			p.metrics.SetBreakerOpen(state == BreakerOpen)
		}, p.logger)
	}
	return p
}

// Breaker возвращает circuit breaker проектора.
func (p *Projector) Breaker() *Breaker {
	return p.breaker
}

// Publish реализует domain.OutboxPublisher для доставки без брокера.
func (p *Projector) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	event, err := DecodeEvent(msg)
	if err != nil {
		return err
	}
	return p.Apply(ctx, event)
}

// DecodeEvent извлекает событие проекции из outbox-сообщения.
// Если payload не разбирается, используются поля конверта.
func DecodeEvent(msg domain.OutboxMessage) (domain.ProjectionEvent, error) {
	var event domain.ProjectionEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil || event.AggregateID == "" {
		event = domain.ProjectionEvent{
			AggregateType: msg.AggregateType,
			AggregateID:   msg.AggregateID,
			Delete:        msg.EventType == domain.EventProjectionDelete,
		}
	}
	if event.AggregateID == "" {
		return domain.ProjectionEvent{}, fmt.Errorf("%w: empty aggregate id in outbox message %s", domain.ErrUnknownAggregate, msg.ID)
	}
	return event, nil
}

// Apply приводит документ агрегата в соответствие с основным хранилищем.
func (p *Projector) Apply(ctx context.Context, event domain.ProjectionEvent) error {
	var (
		result string
		err    error
	)
	switch event.AggregateType {
	case domain.AggregateOrder:
		result, err = p.projectOrder(ctx, event.AggregateID)
	case domain.AggregateProduct:
		result, err = p.projectProduct(ctx, event.AggregateID)
	case domain.AggregateCategory:
		result, err = p.projectCategory(ctx, event.AggregateID)
	case domain.AggregateCart:
		result, err = p.projectCart(ctx, event.AggregateID)
	default:
		err = fmt.Errorf("%w: %q", domain.ErrUnknownAggregate, event.AggregateType)
	}

	logger := p.logger.WithFields(log.Fields{
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
	})
	switch {
	case errors.Is(err, domain.ErrProjectionUnavailable):
		p.metrics.RecordApplied(event.AggregateType, resultRejected)
		logger.WithError(err).Debug("projection deferred")
	case err != nil:
		p.metrics.RecordApplied(event.AggregateType, resultFailed)
		logger.WithError(err).Warn("projection failed")
	default:
		p.metrics.RecordApplied(event.AggregateType, result)
		logger.WithField("result", result).Debug("projection applied")
	}
	return err
}

func (p *Projector) projectOrder(ctx context.Context, id string) (string, error) {
	order, err := p.repos.Orders().Get(ctx, id)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return resultDeleted, p.write(ctx, "delete order", func(ctx context.Context) error {
			return p.index.DeleteOrder(ctx, id)
		})
	}
	if err != nil {
		return "", fmt.Errorf("load order %s: %w", id, err)
	}
	doc, err := BuildOrderDocument(ctx, p.repos, order, p.statusLabel)
	if err != nil {
		return "", err
	}
	return resultUpserted, p.write(ctx, "upsert order", func(ctx context.Context) error {
		return p.index.UpsertOrder(ctx, doc)
	})
}

func (p *Projector) projectProduct(ctx context.Context, id string) (string, error) {
	product, err := p.repos.Products().Get(ctx, id)
	if errors.Is(err, domain.ErrProductNotFound) {
		return resultDeleted, p.write(ctx, "delete product", func(ctx context.Context) error {
			return p.index.DeleteProduct(ctx, id)
		})
	}
	if err != nil {
		return "", fmt.Errorf("load product %s: %w", id, err)
	}
	doc, err := BuildProductDocument(ctx, p.repos, product)
	if err != nil {
		return "", err
	}
	return resultUpserted, p.write(ctx, "upsert product", func(ctx context.Context) error {
		return p.index.UpsertProduct(ctx, doc)
	})
}

func (p *Projector) projectCategory(ctx context.Context, id string) (string, error) {
	category, err := p.repos.Categories().Get(ctx, id)
	if errors.Is(err, domain.ErrCategoryNotFound) {
		return resultDeleted, p.write(ctx, "delete category", func(ctx context.Context) error {
			return p.index.DeleteCategory(ctx, id)
		})
	}
	if err != nil {
		return "", fmt.Errorf("load category %s: %w", id, err)
	}
	doc, err := BuildCategoryDocument(ctx, p.repos, category)
	if err != nil {
		return "", err
	}
	return resultUpserted, p.write(ctx, "upsert category", func(ctx context.Context) error {
		return p.index.UpsertCategory(ctx, doc)
	})
}

// projectCart получает id владельца корзины. Пустая корзина удаляется из проекции.
func (p *Projector) projectCart(ctx context.Context, userID string) (string, error) {
	cart, err := p.repos.Carts().GetByUser(ctx, userID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return resultDeleted, nil
	}
	if err != nil {
		return "", fmt.Errorf("load cart of user %s: %w", userID, err)
	}
	if cart.IsEmpty() {
		return resultDeleted, p.write(ctx, "delete cart", func(ctx context.Context) error {
			return p.index.DeleteCart(ctx, cart.ID)
		})
	}
	doc, err := BuildCartDocument(ctx, p.repos, cart)
	if err != nil {
		return "", err
	}
	if len(doc.Items) == 0 {
		return resultDeleted, p.write(ctx, "delete cart", func(ctx context.Context) error {
			return p.index.DeleteCart(ctx, cart.ID)
		})
	}
	return resultUpserted, p.write(ctx, "upsert cart", func(ctx context.Context) error {
		return p.index.UpsertCart(ctx, doc)
	})
}

func (p *Projector) write(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	return p.breaker.Execute(ctx, operation, fn)
}
