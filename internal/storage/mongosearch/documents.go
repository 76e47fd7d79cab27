package mongosearch

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Денежные поля хранятся дважды: float64 для диапазонных запросов и строка для точного значения.

type orderDoc struct {
	ID              string     `bson:"_id"`
	OrderNumber     string     `bson:"order_number"`
	UserID          string     `bson:"user_id"`
	Username        string     `bson:"username"`
	TotalAmount     float64    `bson:"total_amount"`
	TotalAmountText string     `bson:"total_amount_text"`
	Status          string     `bson:"status"`
	StatusLabel     string     `bson:"status_label"`
	ItemCount       int        `bson:"item_count"`
	OrderDate       time.Time  `bson:"order_date"`
	DeliveryDate    *time.Time `bson:"delivery_date,omitempty"`
	ShippingAddress string     `bson:"shipping_address"`
	Notes           string     `bson:"notes"`
}

func fromOrder(d domain.OrderDocument) orderDoc {
	return orderDoc{
		ID:              d.ID,
		OrderNumber:     d.OrderNumber,
		UserID:          d.UserID,
		Username:        d.Username,
		TotalAmount:     d.TotalAmount.InexactFloat64(),
		TotalAmountText: d.TotalAmount.String(),
		Status:          string(d.Status),
		StatusLabel:     d.StatusLabel,
		ItemCount:       d.ItemCount,
		OrderDate:       d.OrderDate.UTC(),
		DeliveryDate:    d.DeliveryDate,
		ShippingAddress: d.ShippingAddress,
		Notes:           d.Notes,
	}
}

func (d orderDoc) toDomain() domain.OrderDocument {
	return domain.OrderDocument{
		ID:              d.ID,
		OrderNumber:     d.OrderNumber,
		UserID:          d.UserID,
		Username:        d.Username,
		TotalAmount:     exact(d.TotalAmountText, d.TotalAmount),
		Status:          domain.OrderStatus(d.Status),
		StatusLabel:     d.StatusLabel,
		ItemCount:       d.ItemCount,
		OrderDate:       d.OrderDate,
		DeliveryDate:    d.DeliveryDate,
		ShippingAddress: d.ShippingAddress,
		Notes:           d.Notes,
	}
}

type productDoc struct {
	ID           string  `bson:"_id"`
	Name         string  `bson:"name"`
	Description  string  `bson:"description"`
	Price        float64 `bson:"price"`
	PriceText    string  `bson:"price_text"`
	Stock        int     `bson:"stock"`
	CategoryID   string  `bson:"category_id"`
	CategoryName string  `bson:"category_name"`
}

func fromProduct(d domain.ProductDocument) productDoc {
	return productDoc{
		ID:           d.ID,
		Name:         d.Name,
		Description:  d.Description,
		Price:        d.Price.InexactFloat64(),
		PriceText:    d.Price.String(),
		Stock:        d.Stock,
		CategoryID:   d.CategoryID,
		CategoryName: d.CategoryName,
	}
}

func (d productDoc) toDomain() domain.ProductDocument {
	return domain.ProductDocument{
		ID:           d.ID,
		Name:         d.Name,
		Description:  d.Description,
		Price:        exact(d.PriceText, d.Price),
		Stock:        d.Stock,
		CategoryID:   d.CategoryID,
		CategoryName: d.CategoryName,
	}
}

type categoryDoc struct {
	ID           string `bson:"_id"`
	Name         string `bson:"name"`
	Description  string `bson:"description"`
	ProductCount int    `bson:"product_count"`
}

type cartItemDoc struct {
	ProductID    string `bson:"product_id"`
	ProductName  string `bson:"product_name"`
	ProductPrice string `bson:"product_price"`
	Quantity     int    `bson:"quantity"`
	Subtotal     string `bson:"subtotal"`
	CategoryID   string `bson:"category_id"`
	CategoryName string `bson:"category_name"`
}

type cartDoc struct {
	ID             string        `bson:"_id"`
	UserID         string        `bson:"user_id"`
	Username       string        `bson:"username"`
	Items          []cartItemDoc `bson:"items"`
	ProductIDs     []string      `bson:"product_ids"`
	TotalItems     int           `bson:"total_items"`
	TotalPrice     float64       `bson:"total_price"`
	TotalPriceText string        `bson:"total_price_text"`
}

func fromCart(d domain.CartDocument) cartDoc {
	doc := cartDoc{
		ID:             d.ID,
		UserID:         d.UserID,
		Username:       d.Username,
		Items:          make([]cartItemDoc, 0, len(d.Items)),
		ProductIDs:     make([]string, 0, len(d.Items)),
		TotalItems:     d.TotalItems,
		TotalPrice:     d.TotalPrice.InexactFloat64(),
		TotalPriceText: d.TotalPrice.String(),
	}
	for _, item := range d.Items {
		doc.Items = append(doc.Items, cartItemDoc{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ProductPrice: item.ProductPrice.String(),
			Quantity:     item.Quantity,
			Subtotal:     item.Subtotal.String(),
			CategoryID:   item.CategoryID,
			CategoryName: item.CategoryName,
		})
		doc.ProductIDs = append(doc.ProductIDs, item.ProductID)
	}
	return doc
}

func (d cartDoc) toDomain() domain.CartDocument {
	out := domain.CartDocument{
		ID:         d.ID,
		UserID:     d.UserID,
		Username:   d.Username,
		Items:      make([]domain.CartDocumentItem, 0, len(d.Items)),
		TotalItems: d.TotalItems,
		TotalPrice: exact(d.TotalPriceText, d.TotalPrice),
	}
	for _, item := range d.Items {
		out.Items = append(out.Items, domain.CartDocumentItem{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ProductPrice: exact(item.ProductPrice, 0),
			Quantity:     item.Quantity,
			Subtotal:     exact(item.Subtotal, 0),
			CategoryID:   item.CategoryID,
			CategoryName: item.CategoryName,
		})
	}
	return out
}

// exact восстанавливает точное значение из строки, падая обратно на float.
func exact(text string, fallback float64) decimal.Decimal {
	if v, err := decimal.NewFromString(text); err == nil {
		return v
	}
	return decimal.NewFromFloat(fallback)
}
