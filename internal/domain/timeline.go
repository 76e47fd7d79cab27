package domain

import "time"

// Типы событий в истории заказа.
const (
	TimelineOrderCreated  = "order_created"
	TimelineStatusChanged = "status_changed"
	TimelineCancelled     = "order_cancelled"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
