package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/service/search"
	"github.com/vladislavdragonenkov/storefront/internal/service/users"
)

// outboxBacklogChecker отвечает degraded, когда pending-сообщений накопилось maxPending или больше.
func outboxBacklogChecker(repo domain.OutboxRepository, maxPending int) health.Checker {
	return health.NewFuncChecker("outbox", func(ctx context.Context) (health.Status, string) {
		stats, err := repo.Stats(ctx)
		if err != nil {
			return health.StatusDegraded, err.Error()
		}
		if maxPending > 0 && stats.PendingCount >= maxPending {
			return health.StatusDegraded, fmt.Sprintf("%d pending messages", stats.PendingCount)
		}
		return health.StatusHealthy, ""
	})
}

func breakerChecker(breaker *search.Breaker) health.Checker {
	return health.NewFuncChecker("search-breaker", func(context.Context) (health.Status, string) {
		if state := breaker.State(); state != search.BreakerClosed {
			return health.StatusDegraded, "circuit " + state.String()
		}
		return health.StatusHealthy, ""
	})
}

// bootstrapAdmin создаёт администратора с заданным именем, если его ещё нет.
// Возвращает учётную запись, чтобы оператор мог выпустить для неё токен.
func bootstrapAdmin(ctx context.Context, svc *users.Service, username string, logger *log.Entry) (domain.User, error) {
	existing, err := svc.GetByUsername(ctx, username)
	switch {
	case err == nil:
		if existing.Role != domain.RoleAdmin {
			return domain.User{}, fmt.Errorf("bootstrap admin %q exists with role %s", username, existing.Role)
		}
		logger.WithField("user_id", existing.ID).Info("bootstrap admin already exists")
		return existing, nil
	case !errors.Is(err, domain.ErrUserNotFound):
		return domain.User{}, fmt.Errorf("lookup bootstrap admin: %w", err)
	}

	admin, err := svc.Create(ctx, users.Input{Username: username, Role: string(domain.RoleAdmin)})
	if err != nil {
		return domain.User{}, fmt.Errorf("create bootstrap admin: %w", err)
	}
	logger.WithFields(log.Fields{"user_id": admin.ID, "username": admin.Username}).Info("bootstrap admin created")
	return admin, nil
}
