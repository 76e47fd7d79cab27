// Package httpapi: REST API магазина на gin.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/i18n"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/service/users"
)

const createOrderOperation = "create-order"

// Services: зависимости обработчиков.
type Services struct {
	Users       *users.Service
	Catalog     *catalog.Service
	Carts       *cart.Service
	Orders      *orders.Service
	Search      domain.SearchReader
	Idempotency *idempotency.Guard
	Tokens      TokenVerifier
	Localizer   *i18n.Localizer
}

// Options: необязательные настройки роутера.
type Options struct {
	CORSOrigins []string
	Metrics     *metrics.HTTPMetrics
	Logger      *log.Entry
}

type handler struct {
	svc    Services
	logger *log.Entry
}

// NewRouter собирает gin.Engine со всеми маршрутами /api.
func NewRouter(svc Services, opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	if svc.Localizer == nil {
		svc.Localizer = i18n.New()
	}
	h := &handler{svc: svc, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	if opts.Metrics != nil {
		r.Use(httpMetrics(opts.Metrics))
	}
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.New(corsConfig(opts.CORSOrigins)))
	}

	api := r.Group("/api", h.authenticate)

	api.GET("/auth/me", h.me)

	products := api.Group("/products")
	products.GET("", h.listProducts)
	products.GET("/search", h.searchProducts)
	products.GET("/category/:categoryId", h.productsByCategory)
	products.GET("/price-range", h.productsByPriceRange)
	products.GET("/in-stock", h.productsInStock)
	products.GET("/:id", h.getProduct)

	categories := api.Group("/categories")
	categories.GET("", h.listCategories)
	categories.GET("/search", h.searchCategories)
	categories.GET("/:id", h.getCategory)

	cartGroup := api.Group("/cart")
	cartGroup.GET("", h.getCart)
	cartGroup.POST("/items", h.addCartItem)
	cartGroup.DELETE("/items/:productId", h.removeCartItem)
	cartGroup.DELETE("", h.clearCart)

	ordersGroup := api.Group("/orders")
	ordersGroup.POST("", h.idempotent(createOrderOperation), h.createOrder)
	ordersGroup.GET("/my-orders", h.myOrders)
	ordersGroup.GET("/my-orders/paged", h.myOrdersPaged)
	ordersGroup.GET("/my-orders/status/:status", h.myOrdersByStatus)
	ordersGroup.GET("/my-orders/count", h.myOrderCount)
	ordersGroup.GET("/my-orders/total-spending", h.myTotalSpending)
	ordersGroup.GET("/my-orders/:id", h.myOrder)
	ordersGroup.GET("/my-orders/:id/summary", h.myOrderSummary)
	ordersGroup.GET("/my-orders/:id/delivery-time", h.myOrderDeliveryTime)
	ordersGroup.PUT("/:id/cancel", h.cancelOrder)
	ordersGroup.GET("/search", h.searchMyOrders)
	ordersGroup.GET("/search/status", h.searchMyOrdersByStatus)
	ordersGroup.GET("/number/:orderNumber", h.myOrderByNumber)

	admin := api.Group("/admin", requireAdmin)
	admin.POST("/users", h.createUser)

	admin.POST("/categories", h.createCategory)
	admin.PUT("/categories/:id", h.updateCategory)
	admin.DELETE("/categories/:id", h.deleteCategory)
	admin.POST("/products", h.createProduct)
	admin.PUT("/products/:id", h.updateProduct)
	admin.DELETE("/products/:id", h.deleteProduct)

	admin.GET("/carts/search", h.searchCarts)

	admin.GET("/orders", h.allOrders)
	admin.GET("/orders/status/:status", h.ordersByStatus)
	admin.GET("/orders/between", h.ordersBetween)
	admin.GET("/orders/search", h.searchOrders)
	admin.GET("/orders/:id", h.adminOrder)
	admin.GET("/orders/:id/summary", h.adminOrderSummary)
	admin.GET("/orders/:id/delivery-time", h.adminOrderDeliveryTime)
	admin.GET("/orders/:id/timeline", h.orderTimeline)
	admin.PUT("/orders/:id/status", h.updateOrderStatus)
	admin.PUT("/orders/:id/cancel", h.adminCancelOrder)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: codeNotFound, Message: "route not found"})
	})
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", "Accept-Language", headerIdempotencyKey},
		ExposeHeaders: []string{"Content-Length", headerReplayed},
		MaxAge:        12 * time.Hour,
	}
	for _, origin := range origins {
		if strings.TrimSpace(origin) == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func (h *handler) labeler(c *gin.Context) func(domain.OrderStatus) string {
	return h.svc.Localizer.Labeler(requestLanguage(c))
}
