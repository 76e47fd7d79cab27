// Package i18n переводит отображаемые строки статусов заказа.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DefaultLanguage используется проекцией и как запасной вариант при разборе Accept-Language.
var DefaultLanguage = language.English

var statusLabels = map[language.Tag]map[domain.OrderStatus]string{
	language.English: {
		domain.OrderStatusPending:    "Pending",
		domain.OrderStatusConfirmed:  "Confirmed",
		domain.OrderStatusProcessing: "Processing",
		domain.OrderStatusShipped:    "Shipped",
		domain.OrderStatusDelivered:  "Delivered",
		domain.OrderStatusCancelled:  "Cancelled",
	},
	language.Turkish: {
		domain.OrderStatusPending:    "Beklemede",
		domain.OrderStatusConfirmed:  "Onaylandı",
		domain.OrderStatusProcessing: "Hazırlanıyor",
		domain.OrderStatusShipped:    "Kargoya Verildi",
		domain.OrderStatusDelivered:  "Teslim Edildi",
		domain.OrderStatusCancelled:  "İptal Edildi",
	},
	language.Russian: {
		domain.OrderStatusPending:    "Ожидает подтверждения",
		domain.OrderStatusConfirmed:  "Подтверждён",
		domain.OrderStatusProcessing: "В обработке",
		domain.OrderStatusShipped:    "Отправлен",
		domain.OrderStatusDelivered:  "Доставлен",
		domain.OrderStatusCancelled:  "Отменён",
	},
}

// Localizer выбирает язык по Accept-Language и отдаёт переведённые строки.
type Localizer struct {
	matcher   language.Matcher
	supported []language.Tag
	catalog   catalog.Catalog
}

// New собирает каталог сообщений для всех поддерживаемых языков.
func New() *Localizer {
	builder := catalog.NewBuilder(catalog.Fallback(DefaultLanguage))
	supported := []language.Tag{DefaultLanguage}
	for tag, labels := range statusLabels {
		if tag != DefaultLanguage {
			supported = append(supported, tag)
		}
		for status, label := range labels {
			_ = builder.SetString(tag, statusKey(status), label)
		}
	}

	return &Localizer{
		matcher:   language.NewMatcher(supported),
		supported: supported,
		catalog:   builder,
	}
}

// Match разбирает заголовок Accept-Language. Пустой или нераспознанный заголовок даёт DefaultLanguage.
func (l *Localizer) Match(acceptLanguage string) language.Tag {
	if acceptLanguage == "" {
		return DefaultLanguage
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLanguage
	}
	_, index, confidence := l.matcher.Match(tags...)
	if confidence == language.No {
		return DefaultLanguage
	}
	return l.supported[index]
}

// StatusLabel возвращает отображаемое имя статуса на языке tag.
func (l *Localizer) StatusLabel(tag language.Tag, status domain.OrderStatus) string {
	if !status.Valid() {
		return string(status)
	}
	return l.printer(tag).Sprintf(statusKey(status))
}

// Labeler фиксирует язык и возвращает функцию для domain.Order.Summary.
func (l *Localizer) Labeler(tag language.Tag) func(domain.OrderStatus) string {
	printer := l.printer(tag)
	return func(status domain.OrderStatus) string {
		if !status.Valid() {
			return string(status)
		}
		return printer.Sprintf(statusKey(status))
	}
}

// printer сводит tag к поддерживаемому языку, чтобы не зависеть от порядка языков в каталоге.
func (l *Localizer) printer(tag language.Tag) *message.Printer {
	chosen := DefaultLanguage
	for _, supported := range l.supported {
		if supported == tag {
			chosen = tag
			break
		}
	}
	return message.NewPrinter(chosen, message.Catalog(l.catalog))
}

func statusKey(status domain.OrderStatus) string {
	return "order.status." + string(status)
}
