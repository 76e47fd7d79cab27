package inventory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Recorder оборачивает InventoryLedger, считает вызовы и позволяет подменить ошибки в тестах.
type Recorder struct {
	Next domain.InventoryLedger

	mu           sync.Mutex
	ReserveErr   error
	ReleaseErr   error
	reserveCalls int
	releaseCalls int
	released     []domain.StockLine
}

// NewRecorder оборачивает next. Без next вызовы только учитываются.
func NewRecorder(next domain.InventoryLedger) *Recorder {
	return &Recorder{Next: next}
}

func (r *Recorder) Reserve(ctx context.Context, tx domain.Repositories, lines []domain.StockLine) (map[string]domain.Product, error) {
	r.mu.Lock()
	r.reserveCalls++
	err := r.ReserveErr
	r.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if r.Next == nil {
		return map[string]domain.Product{}, nil
	}
	return r.Next.Reserve(ctx, tx, lines)
}

func (r *Recorder) Release(ctx context.Context, tx domain.Repositories, lines []domain.StockLine) error {
	r.mu.Lock()
	r.releaseCalls++
	r.released = append(r.released, lines...)
	err := r.ReleaseErr
	r.mu.Unlock()

	if err != nil {
		return err
	}
	if r.Next == nil {
		return nil
	}
	return r.Next.Release(ctx, tx, lines)
}

// Calls возвращает число вызовов Reserve и Release.
func (r *Recorder) Calls() (reserve, release int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reserveCalls, r.releaseCalls
}

// Released возвращает все строки, переданные в Release.
func (r *Recorder) Released() []domain.StockLine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.StockLine(nil), r.released...)
}

var _ domain.InventoryLedger = (*Recorder)(nil)
