package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// BreakerState: состояние circuit breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

const (
	defaultMaxFailures  = 5
	defaultResetTimeout = 10 * time.Second
)

// Breaker защищает поисковое хранилище: после maxFailures ошибок подряд
// вызовы отклоняются с domain.ErrProjectionUnavailable до истечения resetTimeout.
// Затем пропускается одна пробная операция.
type Breaker struct {
	maxFailures  int
	resetTimeout time.Duration
	onChange     func(BreakerState)
	logger       *log.Entry
	now          func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
	probing     bool
}

// NewBreaker создаёт circuit breaker. onChange вызывается при каждой смене состояния и может быть nil.
func NewBreaker(maxFailures int, resetTimeout time.Duration, onChange func(BreakerState), logger *log.Entry) *Breaker {
	if maxFailures <= 0 {
		maxFailures = defaultMaxFailures
	}
	if resetTimeout <= 0 {
		resetTimeout = defaultResetTimeout
	}
	if logger == nil {
		logger = log.WithField("component", "search-breaker")
	}
	return &Breaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		onChange:     onChange,
		logger:       logger,
		now:          time.Now,
	}
}

// State возвращает текущее состояние.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute выполняет fn, если breaker пропускает вызов.
// Отмена ctx не считается отказом хранилища.
func (b *Breaker) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if err := b.admit(operation); err != nil {
		return err
	}

	err := fn(ctx)
	if err != nil && ctx.Err() != nil {
		b.release()
		return err
	}
	b.record(operation, err)
	return err
}

func (b *Breaker) admit(operation string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.lastFailure) < b.resetTimeout {
			return fmt.Errorf("%w: circuit open for %s", domain.ErrProjectionUnavailable, operation)
		}
		b.setState(BreakerHalfOpen, operation)
		b.probing = true
	case BreakerHalfOpen:
		if b.probing {
			return fmt.Errorf("%w: probe in flight for %s", domain.ErrProjectionUnavailable, operation)
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
}

func (b *Breaker) record(operation string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if err == nil {
		b.failures = 0
		if b.state != BreakerClosed {
			b.setState(BreakerClosed, operation)
		}
		return
	}

	b.failures++
	b.lastFailure = b.now()
	if b.state == BreakerHalfOpen || b.failures >= b.maxFailures {
		b.logger.WithError(err).WithFields(log.Fields{
			"operation": operation,
			"failures":  b.failures,
		}).Warn("search store circuit opened")
		b.setState(BreakerOpen, operation)
	}
}

func (b *Breaker) setState(state BreakerState, operation string) {
	if b.state == state {
		return
	}
	b.state = state
	if state != BreakerOpen {
		b.logger.WithFields(log.Fields{"operation": operation, "state": state.String()}).Info("search store circuit state changed")
	}
	if b.onChange != nil {
		b.onChange(state)
	}
}
