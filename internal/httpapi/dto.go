package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
)

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

type categoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type productRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CategoryID  string          `json:"category_id"`
}

type addCartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type createOrderRequest struct {
	ShippingAddress string `json:"shipping_address"`
	Notes           string `json:"notes"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func toUser(u domain.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Email: u.Email, Role: string(u.Role), CreatedAt: u.CreatedAt}
}

type categoryResponse struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	ProductCount *int       `json:"product_count,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

func toCategory(c domain.Category) categoryResponse {
	return categoryResponse{ID: c.ID, Name: c.Name, Description: c.Description, CreatedAt: &c.CreatedAt, UpdatedAt: &c.UpdatedAt}
}

func toCategoryDocument(d domain.CategoryDocument) categoryResponse {
	count := d.ProductCount
	return categoryResponse{ID: d.ID, Name: d.Name, Description: d.Description, ProductCount: &count}
}

type productResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Stock        int             `json:"stock"`
	CategoryID   string          `json:"category_id,omitempty"`
	CategoryName string          `json:"category_name,omitempty"`
}

func toProduct(p domain.Product) productResponse {
	return productResponse{ID: p.ID, Name: p.Name, Description: p.Description, Price: p.Price, Stock: p.Stock, CategoryID: p.CategoryID}
}

func toProductDocument(d domain.ProductDocument) productResponse {
	return productResponse{
		ID:           d.ID,
		Name:         d.Name,
		Description:  d.Description,
		Price:        d.Price,
		Stock:        d.Stock,
		CategoryID:   d.CategoryID,
		CategoryName: d.CategoryName,
	}
}

type cartItemResponse struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductPrice decimal.Decimal `json:"product_price"`
	Quantity     int             `json:"quantity"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

type cartResponse struct {
	ID         string             `json:"id,omitempty"`
	UserID     string             `json:"user_id"`
	Username   string             `json:"username,omitempty"`
	Items      []cartItemResponse `json:"items"`
	TotalItems int                `json:"total_items"`
	TotalPrice decimal.Decimal    `json:"total_price"`
}

func toCart(d domain.CartDocument) cartResponse {
	items := make([]cartItemResponse, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, cartItemResponse{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ProductPrice: item.ProductPrice,
			Quantity:     item.Quantity,
			Subtotal:     item.Subtotal,
		})
	}
	return cartResponse{
		ID:         d.ID,
		UserID:     d.UserID,
		Username:   d.Username,
		Items:      items,
		TotalItems: d.TotalItems,
		TotalPrice: d.TotalPrice,
	}
}

type orderLineResponse struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	OrderNumber     string              `json:"order_number"`
	UserID          string              `json:"user_id"`
	Username        string              `json:"username,omitempty"`
	Items           []orderLineResponse `json:"items,omitempty"`
	ItemCount       int                 `json:"item_count"`
	TotalAmount     decimal.Decimal     `json:"total_amount"`
	Status          domain.OrderStatus  `json:"status"`
	StatusLabel     string              `json:"status_label"`
	OrderDate       time.Time           `json:"order_date"`
	DeliveryDate    *time.Time          `json:"delivery_date,omitempty"`
	ShippingAddress string              `json:"shipping_address"`
	Notes           string              `json:"notes,omitempty"`
}

func toOrder(o domain.Order, label func(domain.OrderStatus) string) orderResponse {
	lines := make([]orderLineResponse, 0, len(o.Lines))
	for _, line := range o.Lines {
		lines = append(lines, orderLineResponse{
			ID:          line.ID,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			TotalPrice:  line.TotalPrice,
		})
	}
	return orderResponse{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		Items:           lines,
		ItemCount:       o.ItemCount(),
		TotalAmount:     o.TotalAmount,
		Status:          o.Status,
		StatusLabel:     label(o.Status),
		OrderDate:       o.OrderDate,
		DeliveryDate:    o.DeliveryDate,
		ShippingAddress: o.ShippingAddress,
		Notes:           o.Notes,
	}
}

func toOrders(list []domain.Order, label func(domain.OrderStatus) string) []orderResponse {
	out := make([]orderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, toOrder(o, label))
	}
	return out
}

// toOrderDocument переводит статус заново: проекция хранит подпись на языке по умолчанию.
func toOrderDocument(d domain.OrderDocument, label func(domain.OrderStatus) string) orderResponse {
	return orderResponse{
		ID:              d.ID,
		OrderNumber:     d.OrderNumber,
		UserID:          d.UserID,
		Username:        d.Username,
		ItemCount:       d.ItemCount,
		TotalAmount:     d.TotalAmount,
		Status:          d.Status,
		StatusLabel:     label(d.Status),
		OrderDate:       d.OrderDate,
		DeliveryDate:    d.DeliveryDate,
		ShippingAddress: d.ShippingAddress,
		Notes:           d.Notes,
	}
}

type orderPageResponse struct {
	Orders        []orderResponse `json:"orders"`
	Page          int             `json:"page"`
	Size          int             `json:"size"`
	TotalElements int             `json:"total_elements"`
	TotalPages    int             `json:"total_pages"`
}

func toOrderPage(p orders.OrderPage, label func(domain.OrderStatus) string) orderPageResponse {
	return orderPageResponse{
		Orders:        toOrders(p.Orders, label),
		Page:          p.Number,
		Size:          p.Size,
		TotalElements: p.Total,
		TotalPages:    p.TotalPages(),
	}
}

type timelineEventResponse struct {
	Type       string    `json:"type"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
