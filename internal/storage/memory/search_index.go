package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// SearchIndex: in-memory поисковая проекция. Текстовый поиск: подстрока без учёта регистра.
type SearchIndex struct {
	mu         sync.RWMutex
	orders     map[string]domain.OrderDocument
	products   map[string]domain.ProductDocument
	categories map[string]domain.CategoryDocument
	carts      map[string]domain.CartDocument
}

// NewSearchIndex создаёт пустую проекцию.
func NewSearchIndex() *SearchIndex {
	return &SearchIndex{
		orders:     make(map[string]domain.OrderDocument),
		products:   make(map[string]domain.ProductDocument),
		categories: make(map[string]domain.CategoryDocument),
		carts:      make(map[string]domain.CartDocument),
	}
}

func (i *SearchIndex) Ping(context.Context) error { return nil }

func (i *SearchIndex) UpsertOrder(_ context.Context, doc domain.OrderDocument) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.orders[doc.ID] = doc
	return nil
}

func (i *SearchIndex) DeleteOrder(_ context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.orders, id)
	return nil
}

func (i *SearchIndex) UpsertProduct(_ context.Context, doc domain.ProductDocument) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.products[doc.ID] = doc
	return nil
}

func (i *SearchIndex) DeleteProduct(_ context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.products, id)
	return nil
}

func (i *SearchIndex) UpsertCategory(_ context.Context, doc domain.CategoryDocument) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.categories[doc.ID] = doc
	return nil
}

func (i *SearchIndex) DeleteCategory(_ context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.categories, id)
	return nil
}

func (i *SearchIndex) UpsertCart(_ context.Context, doc domain.CartDocument) error {
	doc.Items = append([]domain.CartDocumentItem(nil), doc.Items...)
	i.mu.Lock()
	defer i.mu.Unlock()
	i.carts[doc.ID] = doc
	return nil
}

func (i *SearchIndex) DeleteCart(_ context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.carts, id)
	return nil
}

func (i *SearchIndex) SearchOrders(_ context.Context, q domain.OrderSearch) ([]domain.OrderDocument, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	result := make([]domain.OrderDocument, 0)
	for _, doc := range i.orders {
		if q.Status != "" && doc.Status != q.Status {
			continue
		}
		if q.UserID != "" && doc.UserID != q.UserID {
			continue
		}
		if q.Username != "" && !strings.EqualFold(doc.Username, q.Username) {
			continue
		}
		if !containsAny(q.Text, doc.OrderNumber, doc.Username, doc.ShippingAddress, doc.Notes, doc.StatusLabel) {
			continue
		}
		result = append(result, doc)
	}
	sort.Slice(result, func(a, b int) bool { return result[a].OrderDate.After(result[b].OrderDate) })
	return limitDocs(result, q.Limit), nil
}

func (i *SearchIndex) SearchProducts(_ context.Context, q domain.ProductSearch) ([]domain.ProductDocument, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	result := make([]domain.ProductDocument, 0)
	for _, doc := range i.products {
		if q.CategoryID != "" && doc.CategoryID != q.CategoryID {
			continue
		}
		if q.InStockOnly && doc.Stock <= 0 {
			continue
		}
		if !inRange(doc.Price, q.MinPrice, q.MaxPrice) {
			continue
		}
		if !containsAny(q.Text, doc.Name, doc.Description, doc.CategoryName) {
			continue
		}
		result = append(result, doc)
	}
	sort.Slice(result, func(a, b int) bool { return result[a].Name < result[b].Name })
	return limitDocs(result, q.Limit), nil
}

func (i *SearchIndex) SearchCategories(_ context.Context, q domain.CategorySearch) ([]domain.CategoryDocument, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	result := make([]domain.CategoryDocument, 0)
	for _, doc := range i.categories {
		if containsAny(q.Name, doc.Name) {
			result = append(result, doc)
		}
	}
	sort.Slice(result, func(a, b int) bool { return result[a].Name < result[b].Name })
	return limitDocs(result, q.Limit), nil
}

func (i *SearchIndex) SearchCarts(_ context.Context, q domain.CartSearch) ([]domain.CartDocument, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	result := make([]domain.CartDocument, 0)
	for _, doc := range i.carts {
		if !containsAny(q.Username, doc.Username) {
			continue
		}
		if q.ProductID != "" && !cartHasProduct(doc, q.ProductID) {
			continue
		}
		if !inRange(doc.TotalPrice, q.MinTotal, q.MaxTotal) {
			continue
		}
		doc.Items = append([]domain.CartDocumentItem(nil), doc.Items...)
		result = append(result, doc)
	}
	sort.Slice(result, func(a, b int) bool { return result[a].Username < result[b].Username })
	return limitDocs(result, q.Limit), nil
}

func containsAny(query string, fields ...string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

func inRange(value decimal.Decimal, min, max *decimal.Decimal) bool {
	if min != nil && value.LessThan(*min) {
		return false
	}
	if max != nil && value.GreaterThan(*max) {
		return false
	}
	return true
}

func cartHasProduct(doc domain.CartDocument, productID string) bool {
	for _, item := range doc.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

func limitDocs[T any](docs []T, limit int) []T {
	if limit <= 0 {
		limit = domain.DefaultSearchLimit
	}
	if len(docs) > limit {
		return docs[:limit]
	}
	return docs
}

var _ domain.SearchIndex = (*SearchIndex)(nil)
