// Package idempotency хранит ответы на запросы с Idempotency-Key и чистит устаревшие ключи.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Response: сохранённый ответ, который отдаётся при повторе запроса.
type Response struct {
	Status int
	Body   []byte
}

// Guard регистрирует ключи и решает, выполнять запрос или вернуть сохранённый ответ.
type Guard struct {
	repo    domain.IdempotencyRepository
	ttl     time.Duration
	metrics *metrics.IdempotencyMetrics
	logger  *log.Entry
}

func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, m *metrics.IdempotencyMetrics, logger *log.Entry) *Guard {
	if ttl <= 0 {
		ttl = domain.DefaultIdempotencyTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency-guard")
	}
	return &Guard{repo: repo, ttl: ttl, metrics: m, logger: logger}
}

// RequestHash строит хэш запроса по операции, владельцу и телу.
func RequestHash(operation, subject string, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(operation))
	sum.Write([]byte{0})
	sum.Write([]byte(subject))
	sum.Write([]byte{0})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}

// Begin регистрирует ключ. Если ключ новый, возвращает (nil, nil) и запрос нужно выполнить,
// а затем вызвать Finish. Если ответ уже сохранён, возвращает его.
// Ключ с другим хэшем даёт ErrIdempotencyHashMismatch, незавершённый запрос даёт ErrIdempotencyInFlight.
func (g *Guard) Begin(ctx context.Context, key, requestHash string) (*Response, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, domain.ErrIdempotencyKeyRequired
	}

	record, err := g.repo.CreateProcessing(ctx, key, requestHash, time.Now().UTC().Add(g.ttl))
	switch {
	case err == nil:
		g.metrics.RecordRequest("fresh")
		return nil, nil
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		g.metrics.RecordRequest("conflict")
		return nil, err
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
	default:
		return nil, fmt.Errorf("create idempotency record: %w", err)
	}

	if !record.Replayable() {
		g.metrics.RecordRequest("in_flight")
		return nil, domain.ErrIdempotencyInFlight
	}
	g.metrics.RecordRequest("replayed")
	return &Response{Status: record.HTTPStatus, Body: append([]byte(nil), record.ResponseBody...)}, nil
}

// Finish сохраняет ответ. Успешные (2xx) ответы помечаются done, остальные failed.
func (g *Guard) Finish(ctx context.Context, key string, status int, body []byte) {
	var err error
	if status >= 200 && status < 300 {
		err = g.repo.MarkDone(ctx, key, body, status)
	} else {
		err = g.repo.MarkFailed(ctx, key, body, status)
	}
	if err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
	}
}
