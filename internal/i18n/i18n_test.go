package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestLocalizer_Match(t *testing.T) {
	t.Parallel()

	l := New()
	tests := []struct {
		header string
		want   language.Tag
	}{
		{header: "", want: language.English},
		{header: "tr-TR,tr;q=0.9,en;q=0.8", want: language.Turkish},
		{header: "ru", want: language.Russian},
		{header: "de-DE", want: language.English},
		{header: "not a header;;", want: language.English},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, l.Match(tt.header), "header %q", tt.header)
	}
}

func TestLocalizer_StatusLabel(t *testing.T) {
	t.Parallel()

	l := New()
	assert.Equal(t, "Shipped", l.StatusLabel(language.English, domain.OrderStatusShipped))
	assert.Equal(t, "İptal Edildi", l.StatusLabel(language.Turkish, domain.OrderStatusCancelled))
	assert.Equal(t, "Доставлен", l.StatusLabel(language.Russian, domain.OrderStatusDelivered))
	assert.Equal(t, "Pending", l.StatusLabel(language.German, domain.OrderStatusPending), "unsupported language falls back")
	assert.Equal(t, "LOST", l.StatusLabel(language.English, domain.OrderStatus("LOST")))
}

func TestLocalizer_EveryStatusHasEveryTranslation(t *testing.T) {
	t.Parallel()

	for tag, labels := range statusLabels {
		for _, status := range domain.OrderStatuses {
			assert.NotEmpty(t, labels[status], "%s has no label for %s", tag, status)
		}
	}

	label := New().Labeler(language.Turkish)
	assert.Equal(t, "Beklemede", label(domain.OrderStatusPending))
}
