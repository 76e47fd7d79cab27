package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func (h *handler) getCart(c *gin.Context) {
	doc, err := h.svc.Carts.Get(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toCart(doc))
}

func (h *handler) addCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		h.fail(c, invalidField("product_id", "product_id is required"))
		return
	}
	doc, err := h.svc.Carts.Add(c.Request.Context(), currentUser(c).ID, req.ProductID, req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toCart(doc))
}

func (h *handler) removeCartItem(c *gin.Context) {
	doc, err := h.svc.Carts.Remove(c.Request.Context(), currentUser(c).ID, c.Param("productId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toCart(doc))
}

func (h *handler) clearCart(c *gin.Context) {
	if err := h.svc.Carts.Clear(c.Request.Context(), currentUser(c).ID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	order, err := h.svc.Orders.CreateOrder(c.Request.Context(), currentUser(c).ID, req.ShippingAddress, req.Notes)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toOrder(order, h.labeler(c)))
}

func (h *handler) myOrders(c *gin.Context) {
	list, err := h.svc.Orders.ListUserOrders(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrders(list, h.labeler(c)))
}

func (h *handler) myOrdersPaged(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	result, err := h.svc.Orders.ListUserOrdersPage(c.Request.Context(), currentUser(c).ID, page)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderPage(result, h.labeler(c)))
}

func (h *handler) myOrdersByStatus(c *gin.Context) {
	status, err := domain.ParseOrderStatus(c.Param("status"))
	if err != nil {
		h.fail(c, err)
		return
	}
	list, err := h.svc.Orders.ListUserOrdersByStatus(c.Request.Context(), currentUser(c).ID, status)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrders(list, h.labeler(c)))
}

func (h *handler) myOrderCount(c *gin.Context) {
	count, err := h.svc.Orders.CountUserOrders(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *handler) myTotalSpending(c *gin.Context) {
	total, err := h.svc.Orders.TotalSpending(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total_spending": total})
}

func (h *handler) myOrder(c *gin.Context) {
	order, ok := h.ownedOrder(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toOrder(order, h.labeler(c)))
}

func (h *handler) myOrderSummary(c *gin.Context) {
	order, ok := h.ownedOrder(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": h.svc.Orders.Summary(order, requestLanguage(c))})
}

func (h *handler) myOrderDeliveryTime(c *gin.Context) {
	order, ok := h.ownedOrder(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivery_time": order.DeliveryTime()})
}

func (h *handler) myOrderByNumber(c *gin.Context) {
	order, err := h.svc.Orders.GetOrderByNumber(c.Request.Context(), c.Param("orderNumber"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if order.UserID != currentUser(c).ID {
		h.fail(c, domain.ErrAccessDenied)
		return
	}
	c.JSON(http.StatusOK, toOrder(order, h.labeler(c)))
}

func (h *handler) ownedOrder(c *gin.Context) (domain.Order, bool) {
	order, err := h.svc.Orders.GetUserOrder(c.Request.Context(), c.Param("id"), currentUser(c).ID)
	if err != nil {
		h.fail(c, err)
		return domain.Order{}, false
	}
	return order, true
}

func (h *handler) cancelOrder(c *gin.Context) {
	order, err := h.svc.Orders.CancelOrder(c.Request.Context(), c.Param("id"), currentUser(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrder(order, h.labeler(c)))
}

func (h *handler) searchMyOrders(c *gin.Context) {
	h.respondOrderSearch(c, domain.OrderSearch{
		Text:   strings.TrimSpace(c.Query("q")),
		UserID: currentUser(c).ID,
	})
}

func (h *handler) searchMyOrdersByStatus(c *gin.Context) {
	status, err := domain.ParseOrderStatus(c.Query("status"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondOrderSearch(c, domain.OrderSearch{Status: status, UserID: currentUser(c).ID})
}

func (h *handler) searchOrders(c *gin.Context) {
	q := domain.OrderSearch{
		Text:     strings.TrimSpace(c.Query("q")),
		Username: strings.TrimSpace(c.Query("username")),
	}
	if raw := c.Query("status"); raw != "" {
		status, err := domain.ParseOrderStatus(raw)
		if err != nil {
			h.fail(c, err)
			return
		}
		q.Status = status
	}
	h.respondOrderSearch(c, q)
}

func (h *handler) respondOrderSearch(c *gin.Context, q domain.OrderSearch) {
	docs, err := h.svc.Search.SearchOrders(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	label := h.labeler(c)
	out := make([]orderResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toOrderDocument(d, label))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) allOrders(c *gin.Context) {
	h.respondOrderPage(c, "")
}

func (h *handler) ordersByStatus(c *gin.Context) {
	status, err := domain.ParseOrderStatus(c.Param("status"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondOrderPage(c, status)
}

func (h *handler) respondOrderPage(c *gin.Context, status domain.OrderStatus) {
	page, err := parsePage(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	result, err := h.svc.Orders.ListOrdersPage(c.Request.Context(), status, page)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderPage(result, h.labeler(c)))
}

func (h *handler) ordersBetween(c *gin.Context) {
	from, err := queryTime(c, "from")
	if err != nil {
		h.fail(c, err)
		return
	}
	to, err := queryTime(c, "to")
	if err != nil {
		h.fail(c, err)
		return
	}
	list, err := h.svc.Orders.ListOrdersBetween(c.Request.Context(), from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrders(list, h.labeler(c)))
}

func (h *handler) adminOrder(c *gin.Context) {
	order, err := h.svc.Orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrder(order, h.labeler(c)))
}

func (h *handler) adminOrderSummary(c *gin.Context) {
	summary, err := h.svc.Orders.GetOrderSummary(c.Request.Context(), c.Param("id"), requestLanguage(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (h *handler) adminOrderDeliveryTime(c *gin.Context) {
	text, err := h.svc.Orders.CalculateDeliveryTime(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivery_time": text})
}

func (h *handler) orderTimeline(c *gin.Context) {
	events, err := h.svc.Orders.Timeline(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]timelineEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, timelineEventResponse{Type: e.Type, Reason: e.Reason, OccurredAt: e.Occurred})
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) updateOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	order, err := h.svc.Orders.UpdateOrderStatus(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrder(order, h.labeler(c)))
}

func (h *handler) adminCancelOrder(c *gin.Context) {
	var req cancelRequest
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			h.fail(c, err)
			return
		}
	}
	order, err := h.svc.Orders.CancelOrderByAdmin(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrder(order, h.labeler(c)))
}

// parsePage читает page (с нуля) и size. Размер ограничивается domain.Page.Normalize.
func parsePage(c *gin.Context) (domain.Page, error) {
	var page domain.Page
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return page, invalidField("page", "must be a non-negative integer")
		}
		page.Number = n
	}
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return page, invalidField("size", "must be a positive integer")
		}
		page.Size = n
	}
	return page.Normalize(), nil
}

func queryTime(c *gin.Context, name string) (time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return time.Time{}, invalidField(name, "is required")
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, invalidField(name, "must be an RFC 3339 timestamp")
	}
	return t, nil
}
