package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/users"
)

func (h *handler) me(c *gin.Context) {
	c.JSON(http.StatusOK, toUser(currentUser(c)))
}

func (h *handler) createUser(c *gin.Context) {
	var req createUserRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	user, err := h.svc.Users.Create(c.Request.Context(), users.Input{Username: req.Username, Email: req.Email, Role: req.Role})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toUser(user))
}

func (h *handler) listProducts(c *gin.Context) {
	products, err := h.svc.Catalog.ListProducts(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProduct(p))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) getProduct(c *gin.Context) {
	product, err := h.svc.Catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toProduct(product))
}

func (h *handler) searchProducts(c *gin.Context) {
	h.respondProducts(c, domain.ProductSearch{Text: strings.TrimSpace(c.Query("q"))})
}

func (h *handler) productsByCategory(c *gin.Context) {
	h.respondProducts(c, domain.ProductSearch{CategoryID: c.Param("categoryId")})
}

func (h *handler) productsByPriceRange(c *gin.Context) {
	minPrice, err := queryDecimal(c, "min")
	if err != nil {
		h.fail(c, err)
		return
	}
	maxPrice, err := queryDecimal(c, "max")
	if err != nil {
		h.fail(c, err)
		return
	}
	if minPrice == nil && maxPrice == nil {
		h.fail(c, invalidField("min", "min or max price is required"))
		return
	}
	if minPrice != nil && maxPrice != nil && minPrice.GreaterThan(*maxPrice) {
		h.fail(c, invalidField("min", "min must not exceed max"))
		return
	}
	h.respondProducts(c, domain.ProductSearch{MinPrice: minPrice, MaxPrice: maxPrice})
}

func (h *handler) productsInStock(c *gin.Context) {
	h.respondProducts(c, domain.ProductSearch{InStockOnly: true})
}

func (h *handler) respondProducts(c *gin.Context, q domain.ProductSearch) {
	docs, err := h.svc.Search.SearchProducts(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]productResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toProductDocument(d))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) listCategories(c *gin.Context) {
	categories, err := h.svc.Catalog.ListCategories(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]categoryResponse, 0, len(categories))
	for _, category := range categories {
		out = append(out, toCategory(category))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) getCategory(c *gin.Context) {
	category, err := h.svc.Catalog.GetCategory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toCategory(category))
}

func (h *handler) searchCategories(c *gin.Context) {
	docs, err := h.svc.Search.SearchCategories(c.Request.Context(), domain.CategorySearch{Name: strings.TrimSpace(c.Query("name"))})
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]categoryResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toCategoryDocument(d))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) createCategory(c *gin.Context) {
	var req categoryRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	category, err := h.svc.Catalog.CreateCategory(c.Request.Context(), catalog.CategoryInput(req))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toCategory(category))
}

func (h *handler) updateCategory(c *gin.Context) {
	var req categoryRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	category, err := h.svc.Catalog.UpdateCategory(c.Request.Context(), c.Param("id"), catalog.CategoryInput(req))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toCategory(category))
}

func (h *handler) deleteCategory(c *gin.Context) {
	if err := h.svc.Catalog.DeleteCategory(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) createProduct(c *gin.Context) {
	var req productRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	product, err := h.svc.Catalog.CreateProduct(c.Request.Context(), catalog.ProductInput(req))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toProduct(product))
}

func (h *handler) updateProduct(c *gin.Context) {
	var req productRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	product, err := h.svc.Catalog.UpdateProduct(c.Request.Context(), c.Param("id"), catalog.ProductInput(req))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toProduct(product))
}

func (h *handler) deleteProduct(c *gin.Context) {
	if err := h.svc.Catalog.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) searchCarts(c *gin.Context) {
	minTotal, err := queryDecimal(c, "min_total")
	if err != nil {
		h.fail(c, err)
		return
	}
	maxTotal, err := queryDecimal(c, "max_total")
	if err != nil {
		h.fail(c, err)
		return
	}
	docs, err := h.svc.Search.SearchCarts(c.Request.Context(), domain.CartSearch{
		Username:  strings.TrimSpace(c.Query("username")),
		ProductID: strings.TrimSpace(c.Query("product_id")),
		MinTotal:  minTotal,
		MaxTotal:  maxTotal,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]cartResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toCart(d))
	}
	c.JSON(http.StatusOK, out)
}

// bindJSON разбирает тело запроса. Ошибка разбора становится ответом 400.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return invalidRequest("invalid request body: " + err.Error())
	}
	return nil
}

func queryDecimal(c *gin.Context, name string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, invalidField(name, "must be a decimal number")
	}
	return &value, nil
}
