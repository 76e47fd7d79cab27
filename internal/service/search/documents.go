package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// BuildOrderDocument собирает документ заказа. Удалённый пользователь даёт пустое имя.
func BuildOrderDocument(ctx context.Context, repos domain.Repositories, order domain.Order, statusLabel func(domain.OrderStatus) string) (domain.OrderDocument, error) {
	username, err := lookupUsername(ctx, repos, order.UserID)
	if err != nil {
		return domain.OrderDocument{}, err
	}
	label := string(order.Status)
	if statusLabel != nil {
		label = statusLabel(order.Status)
	}
	return domain.OrderDocument{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		UserID:          order.UserID,
		Username:        username,
		TotalAmount:     order.TotalAmount,
		Status:          order.Status,
		StatusLabel:     label,
		ItemCount:       order.ItemCount(),
		OrderDate:       order.OrderDate,
		DeliveryDate:    order.DeliveryDate,
		ShippingAddress: order.ShippingAddress,
		Notes:           order.Notes,
	}, nil
}

// BuildProductDocument добавляет к товару название категории.
func BuildProductDocument(ctx context.Context, repos domain.Repositories, product domain.Product) (domain.ProductDocument, error) {
	names := categoryNames{repos: repos}
	categoryName, err := names.lookup(ctx, product.CategoryID)
	if err != nil {
		return domain.ProductDocument{}, err
	}
	return domain.ProductDocument{
		ID:           product.ID,
		Name:         product.Name,
		Description:  product.Description,
		Price:        product.Price,
		Stock:        product.Stock,
		CategoryID:   product.CategoryID,
		CategoryName: categoryName,
	}, nil
}

// BuildCategoryDocument добавляет к категории число её товаров.
func BuildCategoryDocument(ctx context.Context, repos domain.Repositories, category domain.Category) (domain.CategoryDocument, error) {
	count, err := repos.Categories().CountProducts(ctx, category.ID)
	if err != nil {
		return domain.CategoryDocument{}, fmt.Errorf("count products of category %s: %w", category.ID, err)
	}
	return domain.CategoryDocument{
		ID:           category.ID,
		Name:         category.Name,
		Description:  category.Description,
		ProductCount: count,
	}, nil
}

// BuildCartDocument раскрывает позиции корзины данными товаров и считает итоги.
// Позиции с уже удалёнными товарами пропускаются.
func BuildCartDocument(ctx context.Context, repos domain.Repositories, cart domain.Cart) (domain.CartDocument, error) {
	username, err := lookupUsername(ctx, repos, cart.UserID)
	if err != nil {
		return domain.CartDocument{}, err
	}

	doc := domain.CartDocument{
		ID:         cart.ID,
		UserID:     cart.UserID,
		Username:   username,
		Items:      make([]domain.CartDocumentItem, 0, len(cart.Lines)),
		TotalPrice: decimal.Zero,
	}
	names := categoryNames{repos: repos}
	for _, line := range cart.Lines {
		product, err := repos.Products().Get(ctx, line.ProductID)
		if errors.Is(err, domain.ErrProductNotFound) {
			continue
		}
		if err != nil {
			return domain.CartDocument{}, fmt.Errorf("load cart product %s: %w", line.ProductID, err)
		}
		categoryName, err := names.lookup(ctx, product.CategoryID)
		if err != nil {
			return domain.CartDocument{}, err
		}

		subtotal := product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		doc.Items = append(doc.Items, domain.CartDocumentItem{
			ProductID:    product.ID,
			ProductName:  product.Name,
			ProductPrice: product.Price,
			Quantity:     line.Quantity,
			Subtotal:     subtotal,
			CategoryID:   product.CategoryID,
			CategoryName: categoryName,
		})
		doc.TotalItems += line.Quantity
		doc.TotalPrice = doc.TotalPrice.Add(subtotal)
	}
	return doc, nil
}

func lookupUsername(ctx context.Context, repos domain.Repositories, userID string) (string, error) {
	user, err := repos.Users().Get(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load user %s: %w", userID, err)
	}
	return user.Username, nil
}

// categoryNames кэширует названия категорий в пределах одной сборки документа.
type categoryNames struct {
	repos domain.Repositories
	cache map[string]string
}

func (c *categoryNames) lookup(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", nil
	}
	if name, ok := c.cache[id]; ok {
		return name, nil
	}
	category, err := c.repos.Categories().Get(ctx, id)
	switch {
	case errors.Is(err, domain.ErrCategoryNotFound):
	case err != nil:
		return "", fmt.Errorf("load category %s: %w", id, err)
	}
	if c.cache == nil {
		c.cache = make(map[string]string)
	}
	c.cache[id] = category.Name
	return category.Name, nil
}
