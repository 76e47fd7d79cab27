package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultSweepInterval   = 10 * time.Minute
	defaultSweepBatchSize  = 500
	defaultSweepMaxBatches = 20
)

// SweepStats: итог одного прохода очистки.
type SweepStats struct {
	Deleted int
	Batches int
	// Truncated: проход упёрся в лимит порций, просроченные ключи ещё остались.
	Truncated bool
}

// KeySweeper удаляет ключи оформления заказа с истёкшим сроком хранения.
// После удаления повтор CreateOrder с тем же Idempotency-Key оформит новый заказ.
type KeySweeper struct {
	repo       domain.IdempotencyRepository
	logger     *log.Entry
	metrics    *metrics.IdempotencyMetrics
	interval   time.Duration
	batchSize  int
	maxBatches int
	now        func() time.Time
}

// SweepOption настраивает KeySweeper.
type SweepOption func(*KeySweeper)

func WithLogger(logger *log.Entry) SweepOption {
	return func(s *KeySweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.IdempotencyMetrics) SweepOption {
	return func(s *KeySweeper) {
		s.metrics = m
	}
}

// WithInterval задаёт паузу между проходами. Непозитивное значение игнорируется.
func WithInterval(interval time.Duration) SweepOption {
	return func(s *KeySweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithBatchSize задаёт число ключей, удаляемых одним запросом.
func WithBatchSize(size int) SweepOption {
	return func(s *KeySweeper) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithMaxBatches ограничивает число порций за проход.
func WithMaxBatches(n int) SweepOption {
	return func(s *KeySweeper) {
		if n > 0 {
			s.maxBatches = n
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) SweepOption {
	return func(s *KeySweeper) {
		if now != nil {
			s.now = now
		}
	}
}

func NewKeySweeper(repo domain.IdempotencyRepository, options ...SweepOption) *KeySweeper {
	s := &KeySweeper{
		repo:       repo,
		logger:     log.WithField("component", "checkout-key-sweeper"),
		interval:   defaultSweepInterval,
		batchSize:  defaultSweepBatchSize,
		maxBatches: defaultSweepMaxBatches,
		now:        time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Run чистит ключи до отмены ctx. Если проход упёрся в лимит порций,
// следующий начинается сразу, не дожидаясь интервала.
func (s *KeySweeper) Run(ctx context.Context) {
	if s.repo == nil {
		s.logger.Warn("checkout key sweeper disabled: no idempotency store")
		return
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		stats, err := s.Sweep(ctx)
		if errors.Is(err, context.Canceled) {
			return
		}
		next := s.interval
		if err == nil && stats.Truncated {
			next = 0
		}
		timer.Reset(next)
	}
}

// Sweep удаляет ключи, срок которых истёк к текущему моменту, порциями по batchSize.
func (s *KeySweeper) Sweep(ctx context.Context) (SweepStats, error) {
	cutoff := s.now().UTC()

	var stats SweepStats
	for stats.Batches < s.maxBatches {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		deleted, err := s.repo.DeleteExpired(ctx, cutoff, s.batchSize)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.metrics.RecordCleanupRun("error", stats.Deleted)
				s.logger.WithError(err).WithField("deleted", stats.Deleted).Warn("checkout key sweep failed")
			}
			return stats, err
		}
		stats.Batches++
		stats.Deleted += deleted
		s.metrics.RecordDeleted(deleted)
		if deleted < s.batchSize {
			break
		}
	}
	stats.Truncated = stats.Batches == s.maxBatches && stats.Deleted == s.batchSize*s.maxBatches

	s.metrics.RecordCleanupRun("ok", stats.Deleted)
	if stats.Deleted > 0 {
		s.logger.WithFields(log.Fields{
			"deleted":   stats.Deleted,
			"batches":   stats.Batches,
			"cutoff":    cutoff,
			"truncated": stats.Truncated,
		}).Info("expired checkout keys removed")
	}
	return stats, nil
}
